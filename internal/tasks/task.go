package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/jobsync/internal/shared"
)

// Task result statuses.
const (
	TaskStatusCompleted = "completed"
	TaskStatusPaused    = "paused"
	TaskStatusFailed    = "failed"
)

const statsKey = "_stats"

// StepFunc performs one unit of work.
//
// Returning done=false asks the task to call the step again while the budget
// allows, which is how paginated and batched steps make progress.
type StepFunc func(ctx context.Context, data *TaskData) (done bool, err error)

// Step is a named unit of a [Task].
type Step struct {
	Name string
	Run  StepFunc
}

// TaskData is a JSON-backed scratch map persisted between invocations.
type TaskData struct {
	values map[string]json.RawMessage
}

// NewTaskData returns an empty scratch map.
func NewTaskData() *TaskData {
	return &TaskData{values: map[string]json.RawMessage{}}
}

// Get decodes the value under key into v and reports whether it was present.
func (d *TaskData) Get(key string, v any) (bool, error) {
	raw, ok := d.values[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, fmt.Errorf("failed to decode task data %q: %w", key, err)
	}
	return true, nil
}

// Set encodes v under key.
func (d *TaskData) Set(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode task data %q: %w", key, err)
	}
	d.values[key] = raw
	return nil
}

func (d *TaskData) Delete(key string) { delete(d.values, key) }
func (d *TaskData) Keys() []string    { return slices.Sorted(maps.Keys(d.values)) }
func (d *TaskData) Len() int          { return len(d.values) }

func (d *TaskData) Has(key string) bool {
	_, ok := d.values[key]
	return ok
}

// Int returns the integer under key, or zero.
func (d *TaskData) Int(key string) int {
	var n int
	if _, err := d.Get(key, &n); err != nil {
		return 0
	}
	return n
}

// Count adds n to a named counter reported in the task result.
func (d *TaskData) Count(name string, n int) {
	stats := d.Stats()
	stats[name] += n
	_ = d.Set(statsKey, stats)
}

// Stats returns the counters recorded with [TaskData.Count].
func (d *TaskData) Stats() map[string]int {
	stats := map[string]int{}
	_, _ = d.Get(statsKey, &stats)
	return stats
}

func (d *TaskData) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.values)
}

func (d *TaskData) UnmarshalJSON(b []byte) error {
	values := map[string]json.RawMessage{}
	if err := json.Unmarshal(b, &values); err != nil {
		return err
	}
	d.values = values
	return nil
}

// TaskResult summarizes one task within a sync run.
type TaskResult struct {
	Name   string         `json:"name"`
	Status string         `json:"status"`
	Error  string         `json:"error,omitempty"`
	Stats  map[string]int `json:"stats,omitempty"`
}

// StatsString renders the counters as "k=v" pairs.
func (r TaskResult) StatsString() string {
	parts := make([]string, 0, len(r.Stats))
	for _, k := range slices.Sorted(maps.Keys(r.Stats)) {
		parts = append(parts, fmt.Sprintf("%s=%d", k, r.Stats[k]))
	}
	return strings.Join(parts, " ")
}

// Runnable is a unit the [Sync] runner walks through.
type Runnable interface {
	Name() string
	Run(ctx context.Context, budget *Budget, progress chan<- ProgressUpdate) (TaskResult, error)
	Reset() error
}

type taskState struct {
	Index int       `json:"index"`
	Data  *TaskData `json:"data"`
}

// Task runs an ordered list of steps, checkpointing {index, data} in the
// transient store so a later invocation resumes where this one stopped.
type Task struct {
	name   string
	steps  []Step
	store  Store
	logger *log.Logger
}

// NewTask creates a task persisted under [TaskKeyPrefix]+name.
func NewTask(name string, store Store, steps ...Step) *Task {
	return &Task{name: name, steps: steps, store: store, logger: log.New(io.Discard)}
}

// WithLogger sets the logger used for step diagnostics.
func (t *Task) WithLogger(logger *log.Logger) *Task {
	t.logger = shared.WithLogger(logger, "task", t.name)
	return t
}

func (t *Task) Name() string  { return t.name }
func (t *Task) Key() string   { return TaskKeyPrefix + t.name }
func (t *Task) Steps() []Step { return t.steps }

// Reset discards any checkpoint of this task.
func (t *Task) Reset() error {
	return t.store.Delete(t.Key())
}

// Run executes steps from the checkpoint until all are done or the budget runs out.
//
// On exhaustion or cancellation the checkpoint is saved and the returned error
// wraps [shared.ErrBudgetExhausted] or the context error. This holds whether the
// interruption is seen between steps or returned by a step. Any other step error
// clears the checkpoint and fails the task.
func (t *Task) Run(ctx context.Context, budget *Budget, progress chan<- ProgressUpdate) (TaskResult, error) {
	state, err := t.load()
	if err != nil {
		return TaskResult{Name: t.name, Status: TaskStatusFailed, Error: err.Error()}, err
	}

	for state.Index < len(t.steps) {
		if err := ctx.Err(); err != nil {
			return t.pause(state, err)
		}
		if budget.Exhausted() {
			return t.pause(state, shared.ErrBudgetExhausted)
		}

		step := t.steps[state.Index]
		done, err := step.Run(ctx, state.Data)
		if isInterruption(err) {
			return t.pause(state, fmt.Errorf("%s: %w", step.Name, err))
		}
		if err != nil {
			t.logger.Error("step failed", "step", step.Name, "error", err)
			if resetErr := t.Reset(); resetErr != nil {
				t.logger.Warn("failed to clear task state", "error", resetErr)
			}
			err = fmt.Errorf("%s: %s: %w", t.name, step.Name, err)
			return TaskResult{Name: t.name, Status: TaskStatusFailed, Error: err.Error(), Stats: state.Data.Stats()}, err
		}

		sendProgress(progress, stepRanUpdate(t.name, state.Index+1, len(t.steps), step.Name, done))
		if done {
			t.logger.Debug("step done", "step", step.Name)
			state.Index++
		}

		if err := t.save(state); err != nil {
			return TaskResult{Name: t.name, Status: TaskStatusFailed, Error: err.Error()}, err
		}
	}

	if err := t.Reset(); err != nil {
		return TaskResult{Name: t.name, Status: TaskStatusFailed, Error: err.Error()}, err
	}

	return TaskResult{Name: t.name, Status: TaskStatusCompleted, Stats: state.Data.Stats()}, nil
}

func (t *Task) pause(state *taskState, cause error) (TaskResult, error) {
	if err := t.save(state); err != nil {
		return TaskResult{Name: t.name, Status: TaskStatusFailed, Error: err.Error()}, err
	}
	t.logger.Debug("task paused", "index", state.Index, "cause", cause)
	return TaskResult{Name: t.name, Status: TaskStatusPaused, Stats: state.Data.Stats()}, fmt.Errorf("%s: %w", t.name, cause)
}

func (t *Task) load() (*taskState, error) {
	state := &taskState{Data: NewTaskData()}
	ok, err := t.store.GetJSON(t.Key(), state)
	if err != nil {
		if errors.Is(err, shared.ErrTransientCodec) {
			t.logger.Warn("discarding unreadable task state", "error", err)
			return &taskState{Data: NewTaskData()}, nil
		}
		return nil, fmt.Errorf("failed to load task state: %w", err)
	}
	if !ok || state.Data == nil || state.Data.values == nil {
		state.Data = NewTaskData()
	}
	if state.Index < 0 || state.Index > len(t.steps) {
		state.Index = 0
	}
	return state, nil
}

func (t *Task) save(state *taskState) error {
	if err := t.store.SetJSON(t.Key(), state, 0); err != nil {
		return fmt.Errorf("failed to save task state: %w", err)
	}
	return nil
}
