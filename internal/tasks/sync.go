package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/jobsync/internal/models"
	"github.com/desertthunder/jobsync/internal/shared"
)

// Continuation schedules the next invocation of a paused run and returns the method used.
//
// Implemented by [Selector].
type Continuation interface {
	Continue(ctx context.Context, runID string) (string, error)
}

// SyncState is the checkpoint of a run that has not finished yet.
type SyncState struct {
	RunID       string         `json:"run_id"`
	Trigger     models.Trigger `json:"trigger"`
	Index       int            `json:"index"`
	Elapsed     time.Duration  `json:"elapsed"`
	StartedAt   time.Time      `json:"started_at"`
	Invocations int            `json:"invocations"`
	Results     []TaskResult   `json:"results"`
}

// RunResult describes the outcome of one invocation of [Sync.Run].
type RunResult struct {
	RunID        string           `json:"run_id"`
	Trigger      models.Trigger   `json:"trigger"`
	Status       models.RunStatus `json:"status"`
	Index        int              `json:"index"`
	Total        int              `json:"total"`
	Invocations  int              `json:"invocations"`
	Elapsed      time.Duration    `json:"elapsed"`
	StartedAt    time.Time        `json:"started_at"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
	Results      []TaskResult     `json:"results"`
	Continuation string           `json:"continuation,omitempty"`
}

// Failed returns the number of tasks that failed.
func (r *RunResult) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Status == TaskStatusFailed {
			n++
		}
	}
	return n
}

// Status is a point-in-time view of the runner.
type Status struct {
	Running            bool            `json:"running"`
	State              *SyncState      `json:"state,omitempty"`
	LastRun            *models.SyncRun `json:"-"`
	LastSync           *RunResult      `json:"last_sync,omitempty"`
	ContinuationMethod string          `json:"continuation_method,omitempty"`
}

// Sync walks an ordered list of tasks within a time budget.
//
// Progress is checkpointed in the transient store under [SyncStateKey] so a
// paused run resumes at the same task on its next invocation. Only one
// invocation runs at a time, guarded by a TTL lock under [SyncLockKey].
type Sync struct {
	store        Store
	runs         RunStore
	tasks        []Runnable
	continuation Continuation
	budget       time.Duration
	lockTTL      time.Duration
	now          func() time.Time
	logger       *log.Logger
}

// NewSync creates a runner over tasks with a 25s budget and a 5m lock TTL.
func NewSync(store Store, runs RunStore, tasks ...Runnable) *Sync {
	return &Sync{
		store:   store,
		runs:    runs,
		tasks:   tasks,
		budget:  25 * time.Second,
		lockTTL: 5 * time.Minute,
		now:     time.Now,
		logger:  log.New(io.Discard),
	}
}

// WithLogger sets the logger.
func (s *Sync) WithLogger(logger *log.Logger) *Sync {
	s.logger = logger
	return s
}

// WithBudget sets the per-invocation time budget.
func (s *Sync) WithBudget(d time.Duration) *Sync {
	s.budget = d
	return s
}

// WithLockTTL sets how long the lock survives a crashed holder.
func (s *Sync) WithLockTTL(d time.Duration) *Sync {
	s.lockTTL = d
	return s
}

// WithClock replaces the clock used to measure the budget.
func (s *Sync) WithClock(now func() time.Time) *Sync {
	s.now = now
	return s
}

// WithContinuation sets how paused runs are continued.
func (s *Sync) WithContinuation(c Continuation) *Sync {
	s.continuation = c
	return s
}

func (s *Sync) Tasks() []Runnable     { return s.tasks }
func (s *Sync) Budget() time.Duration { return s.budget }

// Run executes one invocation.
//
// It returns [shared.ErrSyncLocked] when another invocation holds the lock.
// When the budget runs out the run is paused, the lock released and the
// configured continuation asked to schedule the next invocation.
func (s *Sync) Run(ctx context.Context, trigger models.Trigger, progress chan<- ProgressUpdate) (*RunResult, error) {
	owner := shared.GenerateID()
	acquired, err := s.store.Add(SyncLockKey, owner, s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire sync lock: %w", err)
	}
	if !acquired {
		return nil, shared.ErrSyncLocked
	}

	locked := true
	release := func() {
		if !locked {
			return
		}
		locked = false
		if _, err := s.store.CompareAndDelete(SyncLockKey, owner); err != nil {
			s.logger.Warn("failed to release sync lock", "error", err)
		}
	}
	defer release()

	budget := NewBudgetWithClock(s.budget, s.now)

	state, run, err := s.begin(trigger)
	if err != nil {
		return nil, err
	}

	logger := shared.WithLogger(s.logger, "run", state.RunID)
	logger.Info("sync invocation started", "trigger", trigger, "index", state.Index, "invocation", state.Invocations)
	sendProgress(progress, syncStartedUpdate(state, len(s.tasks)))

	var interrupted error
	for state.Index < len(s.tasks) {
		if interrupted = ctx.Err(); interrupted != nil {
			break
		}
		if budget.Exhausted() {
			interrupted = shared.ErrBudgetExhausted
			break
		}

		task := s.tasks[state.Index]
		step := state.Index + 1
		sendProgress(progress, taskStartedUpdate(step, len(s.tasks), task.Name()))

		result, err := task.Run(ctx, budget, progress)
		if isInterruption(err) {
			interrupted = err
			break
		}

		if err != nil {
			logger.Error("task failed", "task", task.Name(), "error", err)
			result.Name = task.Name()
			result.Status = TaskStatusFailed
			result.Error = err.Error()
			sendProgress(progress, taskFailedUpdate(step, len(s.tasks), result))
		} else {
			logger.Info("task completed", "task", task.Name(), "stats", result.StatsString())
			sendProgress(progress, taskCompletedUpdate(step, len(s.tasks), result))
		}

		state.Results = append(state.Results, result)
		state.Index++

		if err := s.store.SetJSON(SyncStateKey, state, 0); err != nil {
			return nil, s.fail(state, run, budget, fmt.Errorf("failed to save sync state: %w", err))
		}
	}

	if interrupted != nil {
		return s.pause(ctx, state, run, budget, interrupted, release, progress)
	}

	return s.complete(state, run, budget, progress)
}

func isInterruption(err error) bool {
	return errors.Is(err, shared.ErrBudgetExhausted) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// begin resumes the checkpointed run or starts a new one.
func (s *Sync) begin(trigger models.Trigger) (*SyncState, *models.SyncRun, error) {
	state := &SyncState{}
	ok, err := s.store.GetJSON(SyncStateKey, state)
	if err != nil && !errors.Is(err, shared.ErrTransientCodec) {
		return nil, nil, fmt.Errorf("failed to load sync state: %w", err)
	}
	if err != nil {
		s.logger.Warn("discarding unreadable sync state", "error", err)
		ok = false
	}

	if ok && state.RunID != "" {
		run, err := s.runs.Get(state.RunID)
		switch {
		case err == nil && !run.Finished():
			run.Resume()
			if err := s.runs.Update(run); err != nil {
				return nil, nil, fmt.Errorf("failed to resume sync run: %w", err)
			}
			state.Invocations = run.Invocations()
			return state, run, nil
		case err != nil && !errors.Is(err, shared.ErrNotFound):
			return nil, nil, fmt.Errorf("failed to load sync run: %w", err)
		}
		s.logger.Warn("discarding stale sync state", "run", state.RunID)
	}

	run := models.NewSyncRun(0, trigger)
	run.SetStartedAt(s.now())
	run.Resume()
	if err := s.runs.Create(run); err != nil {
		return nil, nil, fmt.Errorf("failed to create sync run: %w", err)
	}

	state = &SyncState{
		RunID:       run.ID(),
		Trigger:     trigger,
		StartedAt:   run.StartedAt(),
		Invocations: run.Invocations(),
	}

	// Task checkpoints left by an abandoned run must not leak into this one.
	if _, err := s.store.DeletePrefix(TaskKeyPrefix); err != nil {
		return nil, nil, fmt.Errorf("failed to clear task states: %w", err)
	}
	if err := s.store.SetJSON(SyncStateKey, state, 0); err != nil {
		return nil, nil, fmt.Errorf("failed to save sync state: %w", err)
	}
	return state, run, nil
}

func (s *Sync) pause(ctx context.Context, state *SyncState, run *models.SyncRun, budget *Budget, cause error, release func(), progress chan<- ProgressUpdate) (*RunResult, error) {
	state.Elapsed += budget.Elapsed()
	if err := s.store.SetJSON(SyncStateKey, state, 0); err != nil {
		return nil, s.fail(state, run, budget, fmt.Errorf("failed to save sync state: %w", err))
	}

	run.Pause(state.Elapsed)
	if err := s.runs.Update(run); err != nil {
		s.logger.Warn("failed to record paused run", "run", run.ID(), "error", err)
	}

	result := s.result(state, run)
	sendProgress(progress, syncPausedUpdate(state.Index+1, len(s.tasks), budget.Elapsed()))
	s.logger.Info("sync invocation paused", "run", run.ID(), "index", state.Index, "elapsed", state.Elapsed)

	release()

	if !errors.Is(cause, shared.ErrBudgetExhausted) {
		return result, cause
	}

	if s.continuation == nil {
		s.logger.Info("no continuation configured, next scheduled run resumes", "run", run.ID())
		return result, nil
	}

	method, err := s.continuation.Continue(ctx, run.ID())
	result.Continuation = method
	sendProgress(progress, continuationUpdate(method, err))
	if err != nil {
		s.logger.Warn("continuation failed, next scheduled run resumes", "method", method, "error", err)
	}
	return result, nil
}

func (s *Sync) complete(state *SyncState, run *models.SyncRun, budget *Budget, progress chan<- ProgressUpdate) (*RunResult, error) {
	state.Elapsed += budget.Elapsed()

	summary, err := json.Marshal(state.Results)
	if err != nil {
		return nil, fmt.Errorf("failed to encode summary: %w", err)
	}
	run.Complete(state.Elapsed, string(summary))
	if err := s.runs.Update(run); err != nil {
		return nil, fmt.Errorf("failed to record completed run: %w", err)
	}

	if err := s.store.Delete(SyncStateKey); err != nil {
		return nil, fmt.Errorf("failed to clear sync state: %w", err)
	}

	result := s.result(state, run)
	if err := s.store.SetJSON(LastSyncKey, result, 0); err != nil {
		s.logger.Warn("failed to record last sync", "error", err)
	}

	sendProgress(progress, syncCompletedUpdate(result))
	s.logger.Info("sync completed", "run", run.ID(), "elapsed", state.Elapsed, "failed", result.Failed())
	return result, nil
}

// fail marks the run failed and drops its checkpoint.
func (s *Sync) fail(state *SyncState, run *models.SyncRun, budget *Budget, cause error) error {
	run.Fail(state.Elapsed+budget.Elapsed(), cause)
	if err := s.runs.Update(run); err != nil {
		s.logger.Warn("failed to record failed run", "run", run.ID(), "error", err)
	}
	if err := s.store.Delete(SyncStateKey); err != nil {
		s.logger.Warn("failed to clear sync state", "error", err)
	}
	return cause
}

func (s *Sync) result(state *SyncState, run *models.SyncRun) *RunResult {
	return &RunResult{
		RunID:       run.ID(),
		Trigger:     run.Trigger(),
		Status:      run.Status(),
		Index:       state.Index,
		Total:       len(s.tasks),
		Invocations: run.Invocations(),
		Elapsed:     state.Elapsed,
		StartedAt:   state.StartedAt,
		CompletedAt: run.CompletedAt(),
		Results:     state.Results,
	}
}

// Status reports the lock, the checkpoint and the most recent run.
func (s *Sync) Status() (*Status, error) {
	status := &Status{}

	_, running, err := s.store.Get(SyncLockKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read sync lock: %w", err)
	}
	status.Running = running

	state := &SyncState{}
	if ok, err := s.store.GetJSON(SyncStateKey, state); err != nil {
		return nil, fmt.Errorf("failed to read sync state: %w", err)
	} else if ok {
		status.State = state
	}

	last := &RunResult{}
	if ok, err := s.store.GetJSON(LastSyncKey, last); err != nil {
		return nil, fmt.Errorf("failed to read last sync: %w", err)
	} else if ok {
		status.LastSync = last
	}

	method, _, err := s.store.Get(ContinuationMethodKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read continuation method: %w", err)
	}
	status.ContinuationMethod = method

	run, err := s.runs.Latest()
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, fmt.Errorf("failed to load latest run: %w", err)
	}
	status.LastRun = run

	return status, nil
}

// Reset clears the checkpoint, all task checkpoints and the lock.
//
// A paused run is marked failed.
func (s *Sync) Reset() error {
	state := &SyncState{}
	ok, err := s.store.GetJSON(SyncStateKey, state)
	if err != nil && !errors.Is(err, shared.ErrTransientCodec) {
		return fmt.Errorf("failed to read sync state: %w", err)
	}

	if ok && state.RunID != "" {
		run, err := s.runs.Get(state.RunID)
		if err == nil && !run.Finished() {
			run.Fail(state.Elapsed, errors.New("reset"))
			if err := s.runs.Update(run); err != nil {
				return fmt.Errorf("failed to mark run as reset: %w", err)
			}
		}
	}

	for _, key := range []string{SyncStateKey, SyncLockKey} {
		if err := s.store.Delete(key); err != nil {
			return fmt.Errorf("failed to delete %s: %w", key, err)
		}
	}
	if _, err := s.store.DeletePrefix(TaskKeyPrefix); err != nil {
		return fmt.Errorf("failed to clear task states: %w", err)
	}
	return nil
}
