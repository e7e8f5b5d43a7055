package formatter

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/jobsync/internal/models"
	"github.com/desertthunder/jobsync/internal/shared"
	"github.com/desertthunder/jobsync/internal/tasks"
	th "github.com/desertthunder/jobsync/internal/testing"
)

func sampleJobs() []*models.LocalJob {
	engineer := models.NewLocalJob(1, models.LocalJobFields{
		Source:           models.SourceBullhorn,
		SourceID:         "101",
		Title:            "Backend Engineer",
		Location:         "Denver, CO, US",
		EmploymentType:   "Contract",
		Salary:           95000,
		Categories:       []string{"Engineering", "Remote"},
		RemoteModifiedAt: time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC),
	})
	engineer.SetID("job-1")

	designer := models.NewLocalJob(2, models.LocalJobFields{
		Source:   models.SourceBullhorn,
		SourceID: "102",
		Title:    "Designer, Senior",
		Status:   models.JobStatusClosed,
	})
	designer.SetID("job-2")

	return []*models.LocalJob{engineer, designer}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    Format
		wantErr bool
	}{
		{"json", FormatJSON, false},
		{"CSV", FormatCSV, false},
		{"md", FormatMarkdown, false},
		{" markdown ", FormatMarkdown, false},
		{"txt", FormatText, false},
		{"xml", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, shared.ErrInvalidFlag) {
				t.Errorf("expected ErrInvalidFlag, got %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestExporters(t *testing.T) {
	jobs := sampleJobs()

	t.Run("ExportToJSON", func(t *testing.T) {
		data, err := ExportToJSON(jobs)
		if err != nil {
			t.Fatalf("ExportToJSON failed: %v", err)
		}

		var records []JobRecord
		if err := json.Unmarshal(data, &records); err != nil {
			t.Fatalf("output is not valid JSON: %v", err)
		}
		if len(records) != 2 {
			t.Fatalf("expected 2 records, got %d", len(records))
		}
		if records[0].SourceID != "101" || records[0].RemoteModifiedAt == nil {
			t.Errorf("unexpected first record: %+v", records[0])
		}
		if records[1].RemoteModifiedAt != nil {
			t.Error("zero remote modification time should be omitted")
		}
	})

	t.Run("ExportToCSV", func(t *testing.T) {
		data, err := ExportToCSV(jobs)
		if err != nil {
			t.Fatalf("ExportToCSV failed: %v", err)
		}

		output := string(data)
		if !strings.Contains(output, "ID,Source ID,Title,Location,Employment Type,Salary,Status,Categories") {
			t.Errorf("CSV missing headers, got: %s", output)
		}
		if !strings.Contains(output, `job-1,101,Backend Engineer,"Denver, CO, US",Contract,95000,open,Engineering; Remote`) {
			t.Errorf("CSV missing first job row, got: %s", output)
		}
		if !strings.Contains(output, `"Designer, Senior"`) {
			t.Errorf("CSV should quote titles containing commas, got: %s", output)
		}
	})

	t.Run("ExportToMarkdown", func(t *testing.T) {
		data, err := ExportToMarkdown(jobs, "Open Roles")
		if err != nil {
			t.Fatalf("ExportToMarkdown failed: %v", err)
		}

		output := string(data)
		for _, want := range []string{
			"# Open Roles",
			"**Jobs**: 2",
			"1. **Backend Engineer** (Denver, CO, US) [open] `#101`",
			"   - Categories: Engineering, Remote",
			"2. **Designer, Senior** [closed] `#102`",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("Markdown missing %q, got:\n%s", want, output)
			}
		}
	})

	t.Run("ExportToText", func(t *testing.T) {
		data, err := ExportToText(jobs)
		if err != nil {
			t.Fatalf("ExportToText failed: %v", err)
		}

		output := string(data)
		if !strings.Contains(output, "Jobs: 2") {
			t.Errorf("text missing count, got: %s", output)
		}
		if !strings.Contains(output, "1. [101] Backend Engineer - Denver, CO, US (open)") {
			t.Errorf("text missing first job, got: %s", output)
		}
		if !strings.Contains(output, "2. [102] Designer, Senior (closed)") {
			t.Errorf("text missing second job, got: %s", output)
		}
	})

	t.Run("Export with unknown format", func(t *testing.T) {
		if _, err := Export(Format("yaml"), jobs); !errors.Is(err, shared.ErrInvalidFlag) {
			t.Errorf("expected ErrInvalidFlag, got %v", err)
		}
	})

	t.Run("empty", func(t *testing.T) {
		for _, format := range Formats {
			if _, err := Export(format, nil); err != nil {
				t.Errorf("%s export of no jobs failed: %v", format, err)
			}
		}
	})
}

func TestWriteExport(t *testing.T) {
	jobs := sampleJobs()

	t.Run("WithCustomPath", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "feed.csv")

		got, err := WriteExport(FormatCSV, jobs, path)
		if err != nil {
			t.Fatalf("WriteExport failed: %v", err)
		}
		if got != path {
			t.Errorf("expected %s, got %s", path, got)
		}

		th.AssertFileExists(t, path)
		if content := th.MustReadFile(t, path); !strings.Contains(content, "Backend Engineer") {
			t.Errorf("file missing job data: %s", content)
		}
	})

	t.Run("WithDefaultPath", func(t *testing.T) {
		original := th.MustGetwd(t)
		defer th.MustChdir(t, original)
		th.MustChdir(t, t.TempDir())

		got, err := WriteExport(FormatMarkdown, jobs, "")
		if err != nil {
			t.Fatalf("WriteExport failed: %v", err)
		}
		if got != "jobs.md" {
			t.Errorf("expected jobs.md, got %s", got)
		}
		th.AssertFileExists(t, got)
	})

	t.Run("UnwritablePath", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "missing", "dir", "jobs.json")
		if _, err := WriteExport(FormatJSON, jobs, path); err == nil {
			t.Error("expected error writing into a missing directory")
		}
	})
}

func TestFormatRunResult(t *testing.T) {
	result := &tasks.RunResult{
		RunID:        "run-1",
		Trigger:      models.TriggerManual,
		Status:       models.RunPaused,
		Index:        1,
		Total:        2,
		Invocations:  1,
		Elapsed:      25 * time.Second,
		Continuation: tasks.MethodLoopback,
		Results: []tasks.TaskResult{
			{Name: "jobs", Status: tasks.TaskStatusCompleted, Stats: map[string]int{"created": 3, "updated": 1}},
			{Name: "applications", Status: tasks.TaskStatusFailed, Error: "not authenticated"},
		},
	}

	output := FormatRunResult(result)
	for _, want := range []string{
		"Run:         run-1",
		"Status:      paused",
		"Progress:    1/2 tasks",
		"Continue:    loopback",
		"created=3 updated=1",
		"error: not authenticated",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q:\n%s", want, output)
		}
	}
}
