package tasks

import (
	"fmt"
	"time"
)

// ProgressUpdate represents a progress event during a sync invocation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	SyncStarted Phase = iota
	TaskStarted
	StepRan
	TaskCompleted
	TaskFailed
	SyncPaused
	SyncCompleted
	ContinuationScheduled
)

func (p Phase) String() string {
	switch p {
	case SyncStarted:
		return "sync_started"
	case TaskStarted:
		return "task_started"
	case StepRan:
		return "step_ran"
	case TaskCompleted:
		return "task_completed"
	case TaskFailed:
		return "task_failed"
	case SyncPaused:
		return "sync_paused"
	case SyncCompleted:
		return "sync_completed"
	case ContinuationScheduled:
		return "continuation_scheduled"
	default:
		return ""
	}
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

func syncStartedUpdate(state *SyncState, total int) ProgressUpdate {
	msg := fmt.Sprintf("Starting sync run %s", state.RunID)
	if state.Invocations > 1 {
		msg = fmt.Sprintf("Resuming sync run %s (invocation %d)", state.RunID, state.Invocations)
	}
	return ProgressUpdate{Phase: SyncStarted, Step: state.Index, Total: total, Message: msg, Data: state}
}

func taskStartedUpdate(step, total int, name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   TaskStarted,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Running task %s...", step, total, name),
	}
}

func stepRanUpdate(task string, step, total int, name string, done bool) ProgressUpdate {
	msg := fmt.Sprintf("%s: %s (continuing)", task, name)
	if done {
		msg = fmt.Sprintf("%s: %s done", task, name)
	}
	return ProgressUpdate{Phase: StepRan, Step: step, Total: total, Message: msg}
}

func taskCompletedUpdate(step, total int, result TaskResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   TaskCompleted,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s %s", step, total, result.Name, result.StatsString()),
		Data:    result,
	}
}

func taskFailedUpdate(step, total int, result TaskResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   TaskFailed,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %s", step, total, result.Name, result.Error),
		Data:    result,
	}
}

func syncPausedUpdate(step, total int, elapsed time.Duration) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SyncPaused,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Time budget exhausted after %s, pausing at task %d/%d", elapsed.Round(time.Millisecond), step, total),
	}
}

func syncCompletedUpdate(result *RunResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SyncCompleted,
		Step:    len(result.Results),
		Total:   len(result.Results),
		Message: fmt.Sprintf("Sync completed in %s over %d invocation(s)", result.Elapsed.Round(time.Millisecond), result.Invocations),
		Data:    result,
	}
}

func continuationUpdate(method string, err error) ProgressUpdate {
	msg := fmt.Sprintf("Continuation scheduled via %s", method)
	if err != nil {
		msg = fmt.Sprintf("Continuation via %s failed: %v", method, err)
	}
	return ProgressUpdate{Phase: ContinuationScheduled, Message: msg, Data: method}
}
