package models

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/desertthunder/jobsync/internal/shared"
)

func TestJob(t *testing.T) {
	t.Run("Location skips empty parts", func(t *testing.T) {
		job := Job{City: "Boston", State: " ", Country: "US"}
		if got := job.Location(); got != "Boston, US" {
			t.Errorf("Location() = %q, want %q", got, "Boston, US")
		}
	})

	t.Run("Status", func(t *testing.T) {
		tests := []struct {
			name   string
			job    Job
			status string
		}{
			{name: "open and public", job: Job{IsOpen: true, IsPublic: true}, status: JobStatusOpen},
			{name: "open but private", job: Job{IsOpen: true}, status: JobStatusClosed},
			{name: "closed", job: Job{IsPublic: true}, status: JobStatusClosed},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if got := tt.job.Status(); got != tt.status {
					t.Errorf("Status() = %q, want %q", got, tt.status)
				}
			})
		}
	})

	t.Run("JobPage.Next", func(t *testing.T) {
		page := JobPage{Total: 5, Start: 0, Count: 2}
		if next, ok := page.Next(); !ok || next != 2 {
			t.Errorf("Next() = %d, %v; want 2, true", next, ok)
		}

		last := JobPage{Total: 5, Start: 4, Count: 1}
		if _, ok := last.Next(); ok {
			t.Error("last page should not have a next page")
		}

		empty := JobPage{Total: 5, Start: 2}
		if _, ok := empty.Next(); ok {
			t.Error("an empty page should stop pagination")
		}
	})
}

func TestLocalJob(t *testing.T) {
	modified := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	remote := Job{ID: 42, Title: " Engineer ", City: "Austin", State: "TX", IsOpen: true, IsPublic: true, DateLastModified: modified}

	t.Run("NewLocalJobFromRemote", func(t *testing.T) {
		job := NewLocalJobFromRemote(1, remote)

		if job.SourceID() != "42" {
			t.Errorf("expected source id 42, got %s", job.SourceID())
		}
		if job.Title() != "Engineer" {
			t.Errorf("expected trimmed title, got %q", job.Title())
		}
		if job.Source() != SourceBullhorn {
			t.Errorf("expected source %s, got %s", SourceBullhorn, job.Source())
		}
		if err := job.Validate(); err != nil {
			t.Errorf("expected valid job, got %v", err)
		}
	})

	t.Run("Matches", func(t *testing.T) {
		job := NewLocalJobFromRemote(1, remote)
		if !job.Matches(remote) {
			t.Error("fresh copy should match its remote")
		}

		changed := remote
		changed.DateLastModified = modified.Add(time.Minute)
		if job.Matches(changed) {
			t.Error("a newer remote modification should not match")
		}

		closed := remote
		closed.IsOpen = false
		if job.Matches(closed) {
			t.Error("a status change should not match")
		}

		other := remote
		other.ID = 7
		if job.Matches(other) {
			t.Error("a different source id should not match")
		}
	})

	t.Run("Apply keeps identity", func(t *testing.T) {
		job := NewLocalJobFromRemote(3, remote)
		job.SetID("local-1")
		created := job.CreatedAt()

		changed := remote
		changed.Title = "Senior Engineer"
		job.Apply(changed)

		if job.ID() != "local-1" || job.Sequence() != 3 {
			t.Errorf("Apply should keep identity, got %s/%d", job.ID(), job.Sequence())
		}
		if !job.CreatedAt().Equal(created) {
			t.Error("Apply should keep creation time")
		}
		if job.Title() != "Senior Engineer" {
			t.Errorf("expected new title, got %s", job.Title())
		}
	})

	t.Run("Validate", func(t *testing.T) {
		tests := []struct {
			name   string
			fields LocalJobFields
		}{
			{name: "missing source id", fields: LocalJobFields{Source: SourceBullhorn, Title: "x"}},
			{name: "missing title", fields: LocalJobFields{Source: SourceBullhorn, SourceID: "1"}},
			{name: "missing source", fields: LocalJobFields{SourceID: "1", Title: "x"}},
			{name: "bad status", fields: LocalJobFields{Source: SourceBullhorn, SourceID: "1", Title: "x", Status: "archived"}},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				err := NewLocalJob(1, tt.fields).Validate()
				if !errors.Is(err, shared.ErrValidation) {
					t.Errorf("expected ErrValidation, got %v", err)
				}
			})
		}
	})
}

func TestApplication(t *testing.T) {
	fields := ApplicationFields{JobSourceID: "42", FirstName: "Ada", LastName: "Lovelace", Email: " ADA@Example.com "}

	t.Run("NewApplication normalizes", func(t *testing.T) {
		app := NewApplication(1, fields)
		if app.Email() != "ada@example.com" {
			t.Errorf("expected normalized email, got %q", app.Email())
		}
		if app.Status() != ApplicationPending {
			t.Errorf("expected pending, got %s", app.Status())
		}
		if app.Name() != "Ada Lovelace" {
			t.Errorf("expected full name, got %q", app.Name())
		}
	})

	t.Run("RecordFailure", func(t *testing.T) {
		app := NewApplication(1, fields)

		app.RecordFailure(fmt.Errorf("boom"), 2)
		if app.Status() != ApplicationPending || app.Attempts() != 1 {
			t.Errorf("first failure should stay pending, got %s after %d attempts", app.Status(), app.Attempts())
		}

		app.RecordFailure(fmt.Errorf("boom again"), 2)
		if app.Status() != ApplicationFailed {
			t.Errorf("expected failed after max attempts, got %s", app.Status())
		}
		if app.LastError() != "boom again" {
			t.Errorf("expected last error recorded, got %q", app.LastError())
		}
	})

	t.Run("MarkSynced", func(t *testing.T) {
		app := NewApplication(1, fields)
		app.RecordFailure(fmt.Errorf("boom"), 3)
		app.MarkSynced(10, 20)

		if app.Status() != ApplicationSynced || app.CandidateID() != 10 || app.SubmissionID() != 20 {
			t.Errorf("unexpected synced state: %s %d %d", app.Status(), app.CandidateID(), app.SubmissionID())
		}
		if app.LastError() != "" {
			t.Error("MarkSynced should clear the last error")
		}
	})

	t.Run("Validate", func(t *testing.T) {
		if err := NewApplication(1, ApplicationFields{FirstName: "A", Email: "nope"}).Validate(); !errors.Is(err, shared.ErrValidation) {
			t.Errorf("expected ErrValidation for bad email, got %v", err)
		}
		if err := NewApplication(1, ApplicationFields{Email: "a@b.c"}).Validate(); !errors.Is(err, shared.ErrValidation) {
			t.Errorf("expected ErrValidation for missing name, got %v", err)
		}
		if err := NewApplication(1, fields).Validate(); err != nil {
			t.Errorf("expected valid application, got %v", err)
		}
	})
}

func TestSyncRun(t *testing.T) {
	t.Run("lifecycle", func(t *testing.T) {
		run := NewSyncRun(1, TriggerManual)
		run.Resume()
		run.Pause(2 * time.Second)

		if run.Status() != RunPaused || run.Invocations() != 1 {
			t.Errorf("unexpected paused state: %s after %d invocations", run.Status(), run.Invocations())
		}
		if run.Finished() {
			t.Error("paused run should not be finished")
		}

		run.Resume()
		run.Complete(5*time.Second, `{"jobs":"completed"}`)

		if !run.Finished() || run.CompletedAt() == nil {
			t.Error("completed run should be finished with a completion time")
		}
		if run.Invocations() != 2 || run.Elapsed() != 5*time.Second {
			t.Errorf("unexpected totals: %d invocations, %s", run.Invocations(), run.Elapsed())
		}
	})

	t.Run("Fail", func(t *testing.T) {
		run := NewSyncRun(1, TriggerCron)
		run.Fail(time.Second, fmt.Errorf("bullhorn down"))

		if run.Status() != RunFailed || run.ErrorMessage() != "bullhorn down" {
			t.Errorf("unexpected failed state: %s %q", run.Status(), run.ErrorMessage())
		}
	})

	t.Run("ParseTrigger", func(t *testing.T) {
		if _, err := ParseTrigger("loopback"); err != nil {
			t.Errorf("loopback should parse: %v", err)
		}
		if _, err := ParseTrigger("webhook"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}
