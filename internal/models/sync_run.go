package models

import (
	"fmt"
	"time"

	"github.com/desertthunder/jobsync/internal/shared"
)

// Trigger names what started a sync invocation.
type Trigger string

const (
	TriggerManual   Trigger = "manual"
	TriggerSchedule Trigger = "schedule"
	TriggerREST     Trigger = "rest"
	TriggerLoopback Trigger = "loopback"
	TriggerCron     Trigger = "cron"
)

// ParseTrigger validates a trigger name.
func ParseTrigger(s string) (Trigger, error) {
	switch t := Trigger(s); t {
	case TriggerManual, TriggerSchedule, TriggerREST, TriggerLoopback, TriggerCron:
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown trigger %q", shared.ErrInvalidArgument, s)
}

// RunStatus is the lifecycle state of a [SyncRun].
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunPaused    RunStatus = "paused"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// SyncRun records one sync run from its first invocation to completion.
//
// A run spans several invocations when the time budget runs out.
type SyncRun struct {
	base
	trigger      Trigger
	status       RunStatus
	invocations  int
	elapsed      time.Duration
	summary      string
	errorMessage string
	startedAt    time.Time
	completedAt  *time.Time
}

// NewSyncRun creates a running SyncRun started now.
func NewSyncRun(sequence int, trigger Trigger) *SyncRun {
	b := newBase(sequence)
	return &SyncRun{base: b, trigger: trigger, status: RunRunning, startedAt: b.createdAt}
}

func (r *SyncRun) Trigger() Trigger         { return r.trigger }
func (r *SyncRun) Status() RunStatus        { return r.status }
func (r *SyncRun) Invocations() int         { return r.invocations }
func (r *SyncRun) Elapsed() time.Duration   { return r.elapsed }
func (r *SyncRun) Summary() string          { return r.summary }
func (r *SyncRun) ErrorMessage() string     { return r.errorMessage }
func (r *SyncRun) StartedAt() time.Time     { return r.startedAt }
func (r *SyncRun) CompletedAt() *time.Time  { return r.completedAt }
func (r *SyncRun) SetStartedAt(t time.Time) { r.startedAt = t }

// Restore sets progress fields when loading from storage.
func (r *SyncRun) Restore(status RunStatus, invocations int, elapsed time.Duration, summary, errorMessage string, completedAt *time.Time) {
	r.status = status
	r.invocations = invocations
	r.elapsed = elapsed
	r.summary = summary
	r.errorMessage = errorMessage
	r.completedAt = completedAt
}

// Resume marks the start of another invocation.
func (r *SyncRun) Resume() {
	r.status = RunRunning
	r.invocations++
	r.touch()
}

// Pause records the cumulative elapsed time at the end of an exhausted invocation.
func (r *SyncRun) Pause(elapsed time.Duration) {
	r.status = RunPaused
	r.elapsed = elapsed
	r.touch()
}

// Complete finishes the run with a summary of the task results.
func (r *SyncRun) Complete(elapsed time.Duration, summary string) {
	now := time.Now()
	r.status = RunCompleted
	r.elapsed = elapsed
	r.summary = summary
	r.completedAt = &now
	r.updatedAt = now
}

// Fail finishes the run with an error.
func (r *SyncRun) Fail(elapsed time.Duration, err error) {
	now := time.Now()
	r.status = RunFailed
	r.elapsed = elapsed
	if err != nil {
		r.errorMessage = err.Error()
	}
	r.completedAt = &now
	r.updatedAt = now
}

// Finished reports whether the run reached a terminal status.
func (r *SyncRun) Finished() bool {
	return r.status == RunCompleted || r.status == RunFailed
}

// Validate checks the trigger and status.
func (r *SyncRun) Validate() error {
	if _, err := ParseTrigger(string(r.trigger)); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	switch r.status {
	case RunRunning, RunPaused, RunCompleted, RunFailed:
	default:
		return fmt.Errorf("%w: unknown status %q", shared.ErrValidation, r.status)
	}
	return nil
}
