package models

import (
	"fmt"
	"strings"

	"github.com/desertthunder/jobsync/internal/shared"
)

// Application statuses.
const (
	ApplicationPending = "pending"
	ApplicationSynced  = "synced"
	ApplicationFailed  = "failed"
)

// Application is an applicant collected by the local job board, waiting to be pushed to Bullhorn.
type Application struct {
	base
	jobSourceID  string
	firstName    string
	lastName     string
	email        string
	phone        string
	resume       string
	status       string
	candidateID  int
	submissionID int
	attempts     int
	lastError    string
}

// ApplicationFields carries the applicant-supplied attributes of an [Application].
type ApplicationFields struct {
	JobSourceID string `json:"job_source_id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Resume      string `json:"resume"`
}

// NewApplication creates a pending application.
func NewApplication(sequence int, f ApplicationFields) *Application {
	return &Application{
		base:        newBase(sequence),
		jobSourceID: strings.TrimSpace(f.JobSourceID),
		firstName:   strings.TrimSpace(f.FirstName),
		lastName:    strings.TrimSpace(f.LastName),
		email:       strings.ToLower(strings.TrimSpace(f.Email)),
		phone:       strings.TrimSpace(f.Phone),
		resume:      f.Resume,
		status:      ApplicationPending,
	}
}

func (a *Application) JobSourceID() string { return a.jobSourceID }
func (a *Application) FirstName() string   { return a.firstName }
func (a *Application) LastName() string    { return a.lastName }
func (a *Application) Email() string       { return a.email }
func (a *Application) Phone() string       { return a.phone }
func (a *Application) Resume() string      { return a.resume }
func (a *Application) Status() string      { return a.status }
func (a *Application) CandidateID() int    { return a.candidateID }
func (a *Application) SubmissionID() int   { return a.submissionID }
func (a *Application) Attempts() int       { return a.attempts }
func (a *Application) LastError() string   { return a.lastError }

// Name returns the applicant's full name.
func (a *Application) Name() string {
	return strings.TrimSpace(a.firstName + " " + a.lastName)
}

// Restore sets the fields owned by the sync runner when loading from storage.
func (a *Application) Restore(status string, candidateID, submissionID, attempts int, lastError string) {
	a.status = status
	a.candidateID = candidateID
	a.submissionID = submissionID
	a.attempts = attempts
	a.lastError = lastError
}

// MarkSynced records the Bullhorn candidate and submission created for this application.
func (a *Application) MarkSynced(candidateID, submissionID int) {
	a.status = ApplicationSynced
	a.candidateID = candidateID
	a.submissionID = submissionID
	a.lastError = ""
	a.touch()
}

// RecordFailure counts a failed attempt. The application fails permanently once
// attempts reach maxAttempts; until then it stays pending.
func (a *Application) RecordFailure(err error, maxAttempts int) {
	a.attempts++
	if err != nil {
		a.lastError = err.Error()
	}
	if a.attempts >= maxAttempts {
		a.status = ApplicationFailed
	}
	a.touch()
}

// Validate checks required fields.
func (a *Application) Validate() error {
	if a.firstName == "" && a.lastName == "" {
		return fmt.Errorf("%w: name is required", shared.ErrValidation)
	}
	if a.email == "" || !strings.Contains(a.email, "@") {
		return fmt.Errorf("%w: a valid email is required", shared.ErrValidation)
	}
	switch a.status {
	case ApplicationPending, ApplicationSynced, ApplicationFailed:
	default:
		return fmt.Errorf("%w: unknown status %q", shared.ErrValidation, a.status)
	}
	return nil
}
