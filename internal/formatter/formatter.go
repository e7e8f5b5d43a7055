// package formatter provides functions to export local job listings to various formats (JSON, CSV, Markdown, plain text)
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/jobsync/internal/models"
	"github.com/desertthunder/jobsync/internal/shared"
	"github.com/desertthunder/jobsync/internal/tasks"
)

// Format is an export format accepted by `jobs export --format`.
type Format string

const (
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
	FormatText     Format = "text"
)

// Formats lists the supported export formats.
var Formats = []Format{FormatJSON, FormatCSV, FormatMarkdown, FormatText}

// ParseFormat validates a format name. "md" and "txt" are accepted as aliases.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "text", "txt":
		return FormatText, nil
	}
	return "", fmt.Errorf("%w: unknown format %q (want json, csv, markdown or text)", shared.ErrInvalidFlag, s)
}

// Extension returns the file extension used for the format.
func (f Format) Extension() string {
	switch f {
	case FormatMarkdown:
		return "md"
	case FormatText:
		return "txt"
	default:
		return string(f)
	}
}

// JobRecord is the public representation of a local job, shared by exports and the JSON feed.
type JobRecord struct {
	ID               string     `json:"id"`
	SourceID         string     `json:"source_id"`
	Title            string     `json:"title"`
	Description      string     `json:"description,omitempty"`
	Location         string     `json:"location,omitempty"`
	EmploymentType   string     `json:"employment_type,omitempty"`
	Salary           float64    `json:"salary,omitempty"`
	Status           string     `json:"status"`
	Categories       []string   `json:"categories,omitempty"`
	RemoteModifiedAt *time.Time `json:"remote_modified_at,omitempty"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// NewJobRecord converts a local job to its public representation.
func NewJobRecord(job *models.LocalJob) JobRecord {
	r := JobRecord{
		ID:             job.ID(),
		SourceID:       job.SourceID(),
		Title:          job.Title(),
		Description:    job.Description(),
		Location:       job.Location(),
		EmploymentType: job.EmploymentType(),
		Salary:         job.Salary(),
		Status:         job.Status(),
		Categories:     job.Categories(),
		UpdatedAt:      job.UpdatedAt(),
	}
	if t := job.RemoteModifiedAt(); !t.IsZero() {
		r.RemoteModifiedAt = &t
	}
	return r
}

// JobRecords converts a slice of local jobs.
func JobRecords(jobs []*models.LocalJob) []JobRecord {
	records := make([]JobRecord, 0, len(jobs))
	for _, job := range jobs {
		records = append(records, NewJobRecord(job))
	}
	return records
}

// Export renders jobs in the given format.
func Export(format Format, jobs []*models.LocalJob) ([]byte, error) {
	switch format {
	case FormatJSON:
		return ExportToJSON(jobs)
	case FormatCSV:
		return ExportToCSV(jobs)
	case FormatMarkdown:
		return ExportToMarkdown(jobs, "Jobs")
	case FormatText:
		return ExportToText(jobs)
	}
	return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidFlag, format)
}

// ExportToJSON renders jobs as an indented JSON array.
func ExportToJSON(jobs []*models.LocalJob) ([]byte, error) {
	return shared.MarshalJSON(JobRecords(jobs), true)
}

// ExportToCSV converts jobs to CSV format with columns: ID, Source ID, Title, Location, Employment Type, Salary, Status, Categories
func ExportToCSV(jobs []*models.LocalJob) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Source ID", "Title", "Location", "Employment Type", "Salary", "Status", "Categories"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, job := range jobs {
		record := []string{
			job.ID(),
			job.SourceID(),
			job.Title(),
			job.Location(),
			job.EmploymentType(),
			formatSalary(job.Salary()),
			job.Status(),
			strings.Join(job.Categories(), "; "),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts jobs to a Markdown document headed by title
func ExportToMarkdown(jobs []*models.LocalJob, title string) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("# %s\n\n", title))
	buf.WriteString(fmt.Sprintf("**Jobs**: %d\n\n", len(jobs)))

	buf.WriteString("## Listings\n\n")
	for i, job := range jobs {
		locationPart := ""
		if job.Location() != "" {
			locationPart = fmt.Sprintf(" (%s)", job.Location())
		}
		buf.WriteString(fmt.Sprintf("%d. **%s**%s [%s] `#%s`\n", i+1, job.Title(), locationPart, job.Status(), job.SourceID()))
		if len(job.Categories()) > 0 {
			buf.WriteString(fmt.Sprintf("   - Categories: %s\n", strings.Join(job.Categories(), ", ")))
		}
		if job.EmploymentType() != "" {
			buf.WriteString(fmt.Sprintf("   - Type: %s\n", job.EmploymentType()))
		}
	}

	return buf.Bytes(), nil
}

// ExportToText converts jobs to plain text format
func ExportToText(jobs []*models.LocalJob) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Jobs: %d\n\n", len(jobs)))
	for i, job := range jobs {
		buf.WriteString(fmt.Sprintf("%d. [%s] %s", i+1, job.SourceID(), job.Title()))
		if job.Location() != "" {
			buf.WriteString(" - " + job.Location())
		}
		buf.WriteString(fmt.Sprintf(" (%s)\n", job.Status()))
	}

	return buf.Bytes(), nil
}

// WriteExport writes jobs to path in the given format.
//
// Defaults to jobs.{ext} as the filename.
func WriteExport(format Format, jobs []*models.LocalJob, path string) (string, error) {
	if path == "" {
		path = "jobs." + format.Extension()
	}

	data, err := Export(format, jobs)
	if err != nil {
		return "", fmt.Errorf("failed to generate %s: %w", format, err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write export file: %w", err)
	}

	return path, nil
}

// FormatRunResult renders a sync invocation result for the terminal.
func FormatRunResult(result *tasks.RunResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Run:         %s\n", result.RunID)
	fmt.Fprintf(&b, "Status:      %s\n", result.Status)
	fmt.Fprintf(&b, "Trigger:     %s\n", result.Trigger)
	fmt.Fprintf(&b, "Progress:    %d/%d tasks\n", result.Index, result.Total)
	fmt.Fprintf(&b, "Invocations: %d\n", result.Invocations)
	fmt.Fprintf(&b, "Elapsed:     %s\n", result.Elapsed.Round(time.Millisecond))
	if result.Continuation != "" {
		fmt.Fprintf(&b, "Continue:    %s\n", result.Continuation)
	}

	if len(result.Results) > 0 {
		b.WriteString("\nTasks:\n")
		for _, r := range result.Results {
			line := fmt.Sprintf("  %-14s %-10s %s", r.Name, r.Status, r.StatsString())
			if r.Error != "" {
				line += "  error: " + r.Error
			}
			b.WriteString(strings.TrimRight(line, " ") + "\n")
		}
	}

	return b.String()
}

func formatSalary(v float64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
