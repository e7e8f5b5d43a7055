package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/jobsync/internal/shared"
)

// SourceBullhorn identifies jobs copied from Bullhorn.
const SourceBullhorn = "bullhorn"

// Local job statuses.
const (
	JobStatusOpen   = "open"
	JobStatusClosed = "closed"
)

// Job is a Bullhorn JobOrder as seen by the sync runner.
type Job struct {
	ID               int       `json:"id"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	City             string    `json:"city,omitempty"`
	State            string    `json:"state,omitempty"`
	Country          string    `json:"country,omitempty"`
	Zip              string    `json:"zip,omitempty"`
	EmploymentType   string    `json:"employment_type,omitempty"`
	Salary           float64   `json:"salary,omitempty"`
	IsOpen           bool      `json:"is_open"`
	IsPublic         bool      `json:"is_public"`
	DateAdded        time.Time `json:"date_added"`
	DateLastModified time.Time `json:"date_last_modified"`
	Categories       []string  `json:"categories,omitempty"`
}

// SourceID returns the identifier stored on the local copy.
func (j Job) SourceID() string {
	return strconv.Itoa(j.ID)
}

// Location joins the non-empty address parts, e.g. "Boston, MA, US".
func (j Job) Location() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{j.City, j.State, j.Country} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// Status maps the open and public flags to a local status.
func (j Job) Status() string {
	if j.IsOpen && j.IsPublic {
		return JobStatusOpen
	}
	return JobStatusClosed
}

// JobPage is one page of a Bullhorn job search.
type JobPage struct {
	Total int   `json:"total"`
	Start int   `json:"start"`
	Count int   `json:"count"`
	Data  []Job `json:"data"`
}

// Next returns the start offset of the following page and whether one exists.
func (p JobPage) Next() (int, bool) {
	next := p.Start + p.Count
	return next, p.Count > 0 && next < p.Total
}

// LocalJob is a job listing stored in the local job board.
//
// Several rows may share a source ID; the sync runner keeps the oldest and deletes the rest.
type LocalJob struct {
	base
	source           string
	sourceID         string
	title            string
	description      string
	location         string
	employmentType   string
	salary           float64
	status           string
	categories       []string
	remoteModifiedAt time.Time
}

// LocalJobFields carries the mutable attributes of a [LocalJob].
type LocalJobFields struct {
	Source           string
	SourceID         string
	Title            string
	Description      string
	Location         string
	EmploymentType   string
	Salary           float64
	Status           string
	Categories       []string
	RemoteModifiedAt time.Time
}

// NewLocalJob creates a LocalJob with creation timestamps set to now.
func NewLocalJob(sequence int, f LocalJobFields) *LocalJob {
	j := &LocalJob{base: newBase(sequence)}
	j.setFields(f)
	if j.status == "" {
		j.status = JobStatusOpen
	}
	return j
}

// NewLocalJobFromRemote copies a Bullhorn job into a new LocalJob.
func NewLocalJobFromRemote(sequence int, job Job) *LocalJob {
	return NewLocalJob(sequence, FieldsFromRemote(job))
}

// FieldsFromRemote maps a Bullhorn job onto local job fields.
func FieldsFromRemote(job Job) LocalJobFields {
	return LocalJobFields{
		Source:           SourceBullhorn,
		SourceID:         job.SourceID(),
		Title:            strings.TrimSpace(job.Title),
		Description:      job.Description,
		Location:         job.Location(),
		EmploymentType:   job.EmploymentType,
		Salary:           job.Salary,
		Status:           job.Status(),
		Categories:       job.Categories,
		RemoteModifiedAt: job.DateLastModified,
	}
}

func (j *LocalJob) setFields(f LocalJobFields) {
	j.source = f.Source
	j.sourceID = f.SourceID
	j.title = f.Title
	j.description = f.Description
	j.location = f.Location
	j.employmentType = f.EmploymentType
	j.salary = f.Salary
	j.status = f.Status
	j.categories = f.Categories
	j.remoteModifiedAt = f.RemoteModifiedAt
}

func (j *LocalJob) Source() string              { return j.source }
func (j *LocalJob) SourceID() string            { return j.sourceID }
func (j *LocalJob) Title() string               { return j.title }
func (j *LocalJob) Description() string         { return j.description }
func (j *LocalJob) Location() string            { return j.location }
func (j *LocalJob) EmploymentType() string      { return j.employmentType }
func (j *LocalJob) Salary() float64             { return j.salary }
func (j *LocalJob) Status() string              { return j.status }
func (j *LocalJob) Categories() []string        { return j.categories }
func (j *LocalJob) RemoteModifiedAt() time.Time { return j.remoteModifiedAt }

// Fields returns a copy of the job's mutable attributes.
func (j *LocalJob) Fields() LocalJobFields {
	return LocalJobFields{
		Source:           j.source,
		SourceID:         j.sourceID,
		Title:            j.title,
		Description:      j.description,
		Location:         j.location,
		EmploymentType:   j.employmentType,
		Salary:           j.salary,
		Status:           j.status,
		Categories:       j.categories,
		RemoteModifiedAt: j.remoteModifiedAt,
	}
}

// Apply overwrites the job with the remote copy, keeping identity and creation time.
func (j *LocalJob) Apply(job Job) {
	j.setFields(FieldsFromRemote(job))
	j.touch()
}

// Close marks the listing closed.
func (j *LocalJob) Close() {
	j.status = JobStatusClosed
	j.touch()
}

// Matches reports whether the local copy already reflects the remote job's last modification.
func (j *LocalJob) Matches(job Job) bool {
	if j.sourceID != job.SourceID() {
		return false
	}
	if job.DateLastModified.IsZero() {
		return false
	}
	return j.remoteModifiedAt.Equal(job.DateLastModified) && j.status == job.Status()
}

// Validate checks required fields.
func (j *LocalJob) Validate() error {
	if strings.TrimSpace(j.sourceID) == "" {
		return fmt.Errorf("%w: source_id is required", shared.ErrValidation)
	}
	if strings.TrimSpace(j.title) == "" {
		return fmt.Errorf("%w: title is required", shared.ErrValidation)
	}
	if j.source == "" {
		return fmt.Errorf("%w: source is required", shared.ErrValidation)
	}
	if j.status != JobStatusOpen && j.status != JobStatusClosed {
		return fmt.Errorf("%w: unknown status %q", shared.ErrValidation, j.status)
	}
	return nil
}
