package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/jobsync/internal/models"
	"github.com/desertthunder/jobsync/internal/shared"
)

type recordingContinuation struct {
	mu     sync.Mutex
	runIDs []string
	method string
	err    error
}

func (c *recordingContinuation) Continue(ctx context.Context, runID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runIDs = append(c.runIDs, runID)
	return c.method, c.err
}

func (f *fixture) sync(tasks ...Runnable) *Sync {
	return NewSync(f.store, f.runs, tasks...).WithClock(f.clock.Now).WithBudget(10 * time.Second)
}

func TestSyncRun(t *testing.T) {
	t.Run("completes all tasks", func(t *testing.T) {
		f := setup(t)

		var a, b int
		s := f.sync(
			NewTask("first", f.store, Step{Name: "a", Run: f.tick(time.Second, &a)}),
			NewTask("second", f.store, Step{Name: "b", Run: f.tick(time.Second, &b)}),
		)

		result, err := s.Run(context.Background(), models.TriggerManual, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Status != models.RunCompleted {
			t.Errorf("expected completed, got %s", result.Status)
		}
		if len(result.Results) != 2 || result.Failed() != 0 {
			t.Errorf("expected two successful results, got %+v", result.Results)
		}
		if result.Elapsed != 2*time.Second {
			t.Errorf("expected 2s elapsed, got %v", result.Elapsed)
		}

		if _, ok, _ := f.store.Get(SyncStateKey); ok {
			t.Error("sync state should be cleared on completion")
		}
		if _, ok, _ := f.store.Get(SyncLockKey); ok {
			t.Error("lock should be released")
		}

		last := &RunResult{}
		if ok, err := f.store.GetJSON(LastSyncKey, last); !ok || err != nil {
			t.Fatalf("expected last sync summary, got ok=%v err=%v", ok, err)
		}
		if last.RunID != result.RunID {
			t.Errorf("last sync run id mismatch: %s != %s", last.RunID, result.RunID)
		}

		run, err := f.runs.Get(result.RunID)
		if err != nil {
			t.Fatalf("failed to load run: %v", err)
		}
		if run.Status() != models.RunCompleted || run.Summary() == "" || run.CompletedAt() == nil {
			t.Errorf("run record not completed: status=%s summary=%q", run.Status(), run.Summary())
		}
	})

	t.Run("locked", func(t *testing.T) {
		f := setup(t)

		if _, err := f.store.Add(SyncLockKey, "other", time.Minute); err != nil {
			t.Fatalf("failed to take lock: %v", err)
		}

		var a int
		s := f.sync(NewTask("first", f.store, Step{Name: "a", Run: f.tick(0, &a)}))
		if _, err := s.Run(context.Background(), models.TriggerManual, nil); !errors.Is(err, shared.ErrSyncLocked) {
			t.Fatalf("expected ErrSyncLocked, got %v", err)
		}
		if a != 0 {
			t.Error("no task should run without the lock")
		}

		if owner, _, _ := f.store.Get(SyncLockKey); owner != "other" {
			t.Errorf("lock holder should be untouched, got %q", owner)
		}
	})

	t.Run("expired lock is taken over", func(t *testing.T) {
		f := setup(t)

		if _, err := f.store.Add(SyncLockKey, "crashed", time.Minute); err != nil {
			t.Fatalf("failed to take lock: %v", err)
		}
		f.clock.Advance(2 * time.Minute)

		var a int
		s := f.sync(NewTask("first", f.store, Step{Name: "a", Run: f.tick(0, &a)}))
		if _, err := s.Run(context.Background(), models.TriggerSchedule, nil); err != nil {
			t.Fatalf("expected stale lock to be replaced, got %v", err)
		}
		if a != 1 {
			t.Errorf("expected task to run once, got %d", a)
		}
	})

	t.Run("failing task is recorded and skipped", func(t *testing.T) {
		f := setup(t)

		var b int
		s := f.sync(
			NewTask("broken", f.store, Step{Name: "a", Run: func(context.Context, *TaskData) (bool, error) {
				return false, shared.ErrServiceUnavailable
			}}),
			NewTask("healthy", f.store, Step{Name: "b", Run: f.tick(0, &b)}),
		)

		progress := make(chan ProgressUpdate, 16)
		result, err := s.Run(context.Background(), models.TriggerManual, progress)
		if err != nil {
			t.Fatalf("a failing task should not fail the run: %v", err)
		}
		close(progress)

		if b != 1 {
			t.Error("task after the failing one should still run")
		}
		if result.Failed() != 1 || result.Results[0].Status != TaskStatusFailed {
			t.Errorf("expected first task recorded as failed, got %+v", result.Results)
		}
		if result.Status != models.RunCompleted {
			t.Errorf("expected run completed, got %s", result.Status)
		}

		failed := false
		for u := range progress {
			if u.Phase == TaskFailed {
				failed = true
			}
		}
		if !failed {
			t.Error("expected a task_failed progress update")
		}
	})

	t.Run("pauses on budget exhaustion and resumes", func(t *testing.T) {
		f := setup(t)

		var a, b, c int
		cont := &recordingContinuation{method: MethodREST}
		s := f.sync(
			NewTask("first", f.store, Step{Name: "a", Run: f.tick(6*time.Second, &a)}),
			NewTask("second", f.store, Step{Name: "b", Run: f.tick(6*time.Second, &b)}),
			NewTask("third", f.store, Step{Name: "c", Run: f.tick(time.Second, &c)}),
		).WithContinuation(cont)

		first, err := s.Run(context.Background(), models.TriggerManual, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if first.Status != models.RunPaused {
			t.Fatalf("expected paused, got %s", first.Status)
		}
		if first.Index != 2 || c != 0 {
			t.Errorf("expected pause before third task, index=%d c=%d", first.Index, c)
		}
		if first.Continuation != MethodREST {
			t.Errorf("expected rest continuation, got %q", first.Continuation)
		}
		if len(cont.runIDs) != 1 || cont.runIDs[0] != first.RunID {
			t.Errorf("continuation should receive the run id, got %v", cont.runIDs)
		}
		if _, ok, _ := f.store.Get(SyncLockKey); ok {
			t.Error("lock should be released before continuing")
		}

		run, _ := f.runs.Get(first.RunID)
		if run.Status() != models.RunPaused {
			t.Errorf("expected paused run record, got %s", run.Status())
		}

		second, err := s.Run(context.Background(), models.TriggerREST, nil)
		if err != nil {
			t.Fatalf("resume failed: %v", err)
		}
		if second.RunID != first.RunID {
			t.Error("resumed invocation should continue the same run")
		}
		if second.Status != models.RunCompleted {
			t.Errorf("expected completed, got %s", second.Status)
		}
		if second.Invocations != 2 {
			t.Errorf("expected 2 invocations, got %d", second.Invocations)
		}
		if second.Elapsed != 13*time.Second {
			t.Errorf("expected cumulative elapsed of 13s, got %v", second.Elapsed)
		}
		if a != 1 || b != 1 || c != 1 {
			t.Errorf("each task should run once, got a=%d b=%d c=%d", a, b, c)
		}
	})

	t.Run("pause inside a task", func(t *testing.T) {
		f := setup(t)

		pages := 0
		pager := NewTask("pager", f.store, Step{Name: "page", Run: func(ctx context.Context, data *TaskData) (bool, error) {
			pages++
			f.clock.Advance(4 * time.Second)
			n := data.Int("n") + 1
			return n == 5, data.Set("n", n)
		}})
		s := f.sync(pager)

		first, err := s.Run(context.Background(), models.TriggerManual, nil)
		if err != nil || first.Status != models.RunPaused {
			t.Fatalf("expected paused run, got %v (%v)", first, err)
		}
		if pages != 3 {
			t.Errorf("expected 3 pages within budget, got %d", pages)
		}

		second, err := s.Run(context.Background(), models.TriggerCron, nil)
		if err != nil || second.Status != models.RunCompleted {
			t.Fatalf("expected completed run, got %v (%v)", second, err)
		}
		if pages != 5 {
			t.Errorf("expected pagination to resume at page 4, got %d calls", pages)
		}
	})

	t.Run("continuation failure keeps the run paused", func(t *testing.T) {
		f := setup(t)

		var a, b int
		cont := &recordingContinuation{method: MethodLoopback, err: errors.New("connection refused")}
		s := f.sync(
			NewTask("first", f.store, Step{Name: "a", Run: f.tick(11*time.Second, &a)}),
			NewTask("second", f.store, Step{Name: "b", Run: f.tick(0, &b)}),
		).WithContinuation(cont)

		result, err := s.Run(context.Background(), models.TriggerManual, nil)
		if err != nil {
			t.Fatalf("continuation errors should not fail the invocation: %v", err)
		}
		if result.Status != models.RunPaused {
			t.Errorf("expected paused, got %s", result.Status)
		}
		if _, ok, _ := f.store.Get(SyncStateKey); !ok {
			t.Error("state should remain for the next scheduled run")
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		f := setup(t)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		var a int
		cont := &recordingContinuation{method: MethodREST}
		s := f.sync(NewTask("first", f.store, Step{Name: "a", Run: f.tick(0, &a)})).WithContinuation(cont)

		result, err := s.Run(ctx, models.TriggerManual, nil)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if result == nil || result.Status != models.RunPaused {
			t.Errorf("expected paused result, got %+v", result)
		}
		if len(cont.runIDs) != 0 {
			t.Error("cancelled invocations should not schedule a continuation")
		}
	})

	t.Run("stale state starts a new run", func(t *testing.T) {
		f := setup(t)

		if err := f.store.SetJSON(SyncStateKey, &SyncState{RunID: "missing", Index: 1}, 0); err != nil {
			t.Fatalf("failed to seed state: %v", err)
		}

		var a int
		s := f.sync(NewTask("first", f.store, Step{Name: "a", Run: f.tick(0, &a)}))
		result, err := s.Run(context.Background(), models.TriggerManual, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.RunID == "missing" || a != 1 {
			t.Errorf("expected a fresh run from the first task, got run=%s a=%d", result.RunID, a)
		}
	})
}

func TestSyncConcurrentRuns(t *testing.T) {
	f := setup(t)

	release := make(chan struct{})
	started := make(chan struct{})
	s := f.sync(NewTask("slow", f.store, Step{Name: "wait", Run: func(context.Context, *TaskData) (bool, error) {
		close(started)
		<-release
		return true, nil
	}}))

	errs := make(chan error, 1)
	go func() {
		_, err := s.Run(context.Background(), models.TriggerManual, nil)
		errs <- err
	}()

	<-started
	if _, err := s.Run(context.Background(), models.TriggerREST, nil); !errors.Is(err, shared.ErrSyncLocked) {
		t.Errorf("expected ErrSyncLocked while another invocation runs, got %v", err)
	}

	close(release)
	if err := <-errs; err != nil {
		t.Fatalf("first invocation failed: %v", err)
	}
}

func TestSyncStatusAndReset(t *testing.T) {
	f := setup(t)

	var a, b int
	s := f.sync(
		NewTask("first", f.store, Step{Name: "a", Run: f.tick(11*time.Second, &a)}),
		NewTask("second", f.store, Step{Name: "b", Run: f.tick(0, &b)}),
	)

	paused, err := s.Run(context.Background(), models.TriggerManual, nil)
	if err != nil || paused.Status != models.RunPaused {
		t.Fatalf("expected paused run, got %v (%v)", paused, err)
	}
	_ = f.store.SetJSON(TaskKeyPrefix+"second", &taskState{Index: 0, Data: NewTaskData()}, 0)

	status, err := s.Status()
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if status.Running {
		t.Error("no invocation should be running")
	}
	if status.State == nil || status.State.Index != 1 {
		t.Errorf("expected checkpoint at index 1, got %+v", status.State)
	}
	if status.LastRun == nil || status.LastRun.ID() != paused.RunID {
		t.Error("expected the paused run as the latest run")
	}

	if err := s.Reset(); err != nil {
		t.Fatalf("reset failed: %v", err)
	}

	for _, key := range []string{SyncStateKey, SyncLockKey, TaskKeyPrefix + "second"} {
		if _, ok, _ := f.store.Get(key); ok {
			t.Errorf("expected %s to be cleared", key)
		}
	}

	run, _ := f.runs.Get(paused.RunID)
	if run.Status() != models.RunFailed {
		t.Errorf("reset should fail the paused run, got %s", run.Status())
	}

	status, err = s.Status()
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if status.State != nil {
		t.Error("expected no checkpoint after reset")
	}
}
