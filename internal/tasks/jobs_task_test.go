package tasks

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/desertthunder/jobsync/internal/models"
	"github.com/desertthunder/jobsync/internal/shared"
)

func (f *fixture) seedJob(t *testing.T, job models.Job) *models.LocalJob {
	t.Helper()
	local := models.NewLocalJobFromRemote(0, job)
	if err := f.jobs.Create(local); err != nil {
		t.Fatalf("failed to seed job %d: %v", job.ID, err)
	}
	return local
}

func (f *fixture) liveJobs(t *testing.T) []*models.LocalJob {
	t.Helper()
	jobs, err := f.jobs.List(map[string]any{})
	if err != nil {
		t.Fatalf("failed to list jobs: %v", err)
	}
	return jobs
}

func TestJobsTask(t *testing.T) {
	cfg := JobsTaskConfig{PageSize: 2, LocalPageSize: 2, DuplicateBatch: 25, SaveBatch: 2}

	t.Run("reconciles local jobs", func(t *testing.T) {
		f := setup(t)

		stale := remoteJob(1, "Old Title")
		stale.DateLastModified = stale.DateLastModified.Add(-24 * time.Hour)
		kept := f.seedJob(t, stale)
		f.seedJob(t, stale)
		f.seedJob(t, remoteJob(2, "Designer"))
		gone := f.seedJob(t, remoteJob(9, "Filled Role"))

		f.ats.SetJobs(remoteJob(1, "New Title"), remoteJob(2, "Designer"), remoteJob(3, "Analyst"))

		task := NewJobsTask(f.store, f.ats, f.jobs, cfg)
		result, err := task.Run(context.Background(), f.budget(time.Minute), nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := map[string]int{
			"remote_jobs":        3,
			"local_jobs":         4,
			"duplicates_deleted": 1,
			"created":            1,
			"updated":            1,
			"unchanged":          1,
			"expired":            1,
		}
		for k, v := range want {
			if result.Stats[k] != v {
				t.Errorf("stat %s = %d, want %d (all: %v)", k, result.Stats[k], v, result.Stats)
			}
		}

		live := f.liveJobs(t)
		if len(live) != 3 {
			t.Fatalf("expected 3 live jobs, got %d", len(live))
		}

		updated, err := f.jobs.Get(kept.ID())
		if err != nil {
			t.Fatalf("oldest duplicate should be kept: %v", err)
		}
		if updated.Title() != "New Title" {
			t.Errorf("expected updated title, got %q", updated.Title())
		}

		if _, err := f.jobs.Get(gone.ID()); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("job missing remotely should be deleted, got %v", err)
		}

		if _, ok, _ := f.store.Get(task.Key()); ok {
			t.Error("task state should be cleared")
		}
	})

	t.Run("pages through remote jobs", func(t *testing.T) {
		f := setup(t)

		var jobs []models.Job
		for i := 1; i <= 5; i++ {
			jobs = append(jobs, remoteJob(i, fmt.Sprintf("Job %d", i)))
		}
		f.ats.SetJobs(jobs...)

		task := NewJobsTask(f.store, f.ats, f.jobs, cfg)
		if _, err := task.Run(context.Background(), f.budget(time.Minute), nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if f.ats.Searches() != 3 {
			t.Errorf("expected 3 searches for 5 jobs in pages of 2, got %d", f.ats.Searches())
		}
		if n := len(f.liveJobs(t)); n != 5 {
			t.Errorf("expected 5 jobs saved, got %d", n)
		}
	})

	t.Run("resumes after budget exhaustion", func(t *testing.T) {
		f := setup(t)

		var jobs []models.Job
		for i := 1; i <= 5; i++ {
			jobs = append(jobs, remoteJob(i, fmt.Sprintf("Job %d", i)))
		}
		f.ats.SetJobs(jobs...)
		f.ats.OnSearch = func(start, count int) { f.clock.Advance(6 * time.Second) }

		task := NewJobsTask(f.store, f.ats, f.jobs, cfg)
		_, err := task.Run(context.Background(), f.budget(10*time.Second), nil)
		if !errors.Is(err, shared.ErrBudgetExhausted) {
			t.Fatalf("expected budget exhaustion, got %v", err)
		}
		if n := len(f.liveJobs(t)); n != 0 {
			t.Errorf("no jobs should be saved before fetching completes, got %d", n)
		}

		f.ats.OnSearch = nil
		result, err := task.Run(context.Background(), f.budget(10*time.Second), nil)
		if err != nil {
			t.Fatalf("resume failed: %v", err)
		}
		if f.ats.Searches() != 3 {
			t.Errorf("resumed fetch should continue at the saved offset, got %d searches", f.ats.Searches())
		}
		if result.Stats["created"] != 5 {
			t.Errorf("expected 5 created, got %v", result.Stats)
		}
	})

	t.Run("remote failure leaves local jobs", func(t *testing.T) {
		f := setup(t)
		f.seedJob(t, remoteJob(1, "Engineer"))
		f.ats.SearchErr = shared.ErrServiceUnavailable

		task := NewJobsTask(f.store, f.ats, f.jobs, cfg)
		result, err := task.Run(context.Background(), f.budget(time.Minute), nil)
		if !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Fatalf("expected service error, got %v", err)
		}
		if result.Status != TaskStatusFailed {
			t.Errorf("expected failed, got %s", result.Status)
		}
		if n := len(f.liveJobs(t)); n != 1 {
			t.Errorf("local jobs should be untouched, got %d", n)
		}
	})

	t.Run("closed remote jobs update status", func(t *testing.T) {
		f := setup(t)
		f.seedJob(t, remoteJob(1, "Engineer"))

		closed := remoteJob(1, "Engineer")
		closed.IsOpen = false
		f.ats.SetJobs(closed)

		task := NewJobsTask(f.store, f.ats, f.jobs, cfg)
		if _, err := task.Run(context.Background(), f.budget(time.Minute), nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		live := f.liveJobs(t)
		if len(live) != 1 || live[0].Status() != models.JobStatusClosed {
			t.Errorf("expected the job to be closed, got %+v", live)
		}
	})
}

func TestLocalJobs(t *testing.T) {
	f := setup(t)

	for range 30 {
		f.seedJob(t, remoteJob(7, "Duplicate"))
	}
	f.seedJob(t, remoteJob(8, "Unique"))

	local := NewLocalJobs(f.jobs, 10, 25)
	data := NewTaskData()
	ctx := context.Background()

	t.Run("BuildIndex", func(t *testing.T) {
		calls := 0
		for {
			calls++
			done, err := local.BuildIndex(ctx, data)
			if err != nil {
				t.Fatalf("build index failed: %v", err)
			}
			if done {
				break
			}
		}
		if calls != 4 {
			t.Errorf("expected 4 pages for 31 jobs, got %d", calls)
		}

		idx, err := local.Index(data)
		if err != nil {
			t.Fatalf("failed to read index: %v", err)
		}
		if len(idx.Duplicates) != 29 {
			t.Errorf("expected 29 duplicates, got %d", len(idx.Duplicates))
		}
		if _, ok := idx.Lookup("8"); !ok {
			t.Error("unique job should be indexed")
		}
		if data.Has(localOffsetKey) {
			t.Error("offset should be dropped once the scan is done")
		}
	})

	t.Run("DeleteDuplicates", func(t *testing.T) {
		done, err := local.DeleteDuplicates(ctx, data)
		if err != nil {
			t.Fatalf("delete failed: %v", err)
		}
		if done {
			t.Fatal("first batch should leave duplicates behind")
		}
		if n := len(f.liveJobs(t)); n != 6 {
			t.Errorf("expected 6 live jobs after one batch of 25, got %d", n)
		}

		done, err = local.DeleteDuplicates(ctx, data)
		if err != nil || !done {
			t.Fatalf("second batch should finish, done=%v err=%v", done, err)
		}

		live := f.liveJobs(t)
		if len(live) != 2 {
			t.Fatalf("expected 2 live jobs, got %d", len(live))
		}
		idx, _ := local.Index(data)
		if id, _ := idx.Lookup("7"); id != live[0].ID() {
			t.Error("the oldest duplicate should be the one kept")
		}
		if data.Stats()["duplicates_deleted"] != 29 {
			t.Errorf("expected 29 deletions, got %v", data.Stats())
		}
	})
}
