package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/jobsync/internal/models"
	"github.com/desertthunder/jobsync/internal/services"
	"github.com/desertthunder/jobsync/internal/shared"
)

// ApplicationsTaskName is the checkpoint name of the applications task.
const ApplicationsTaskName = "applications"

const (
	applicationQueueKey = "queue"
	collectLimit        = 500
)

// ApplicationsTaskConfig sizes the applications task.
type ApplicationsTaskConfig struct {
	Batch       int
	MaxAttempts int
}

// NewApplicationsTaskConfig reads batch sizes from the loaded configuration.
func NewApplicationsTaskConfig(cfg *shared.Config) ApplicationsTaskConfig {
	return ApplicationsTaskConfig{
		Batch:       cfg.Sync.ApplicationBatch,
		MaxAttempts: cfg.Sync.MaxApplicationAttempts,
	}
}

// ApplicationsTask pushes collected applications to Bullhorn as candidates and job submissions.
//
// Steps: collect_pending, submit.
type ApplicationsTask struct {
	*Task
	sink   services.CandidateSink
	apps   ApplicationStore
	cfg    ApplicationsTaskConfig
	logger *log.Logger
}

// NewApplicationsTask creates the applications task.
func NewApplicationsTask(store Store, sink services.CandidateSink, apps ApplicationStore, cfg ApplicationsTaskConfig) *ApplicationsTask {
	if cfg.Batch <= 0 {
		cfg.Batch = 10
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}

	t := &ApplicationsTask{sink: sink, apps: apps, cfg: cfg, logger: log.New(io.Discard)}
	t.Task = NewTask(ApplicationsTaskName, store,
		Step{Name: "collect_pending", Run: t.collectPending},
		Step{Name: "submit", Run: t.submit},
	)
	return t
}

// WithLogger sets the logger.
func (t *ApplicationsTask) WithLogger(logger *log.Logger) *ApplicationsTask {
	t.Task.WithLogger(logger)
	t.logger = shared.WithLogger(logger, "task", ApplicationsTaskName)
	return t
}

func (t *ApplicationsTask) collectPending(ctx context.Context, data *TaskData) (bool, error) {
	pending, err := t.apps.Pending(collectLimit, t.cfg.MaxAttempts)
	if err != nil {
		return false, fmt.Errorf("failed to load pending applications: %w", err)
	}

	queue := make([]string, 0, len(pending))
	for _, app := range pending {
		queue = append(queue, app.ID())
	}
	data.Count("pending", len(queue))
	return true, data.Set(applicationQueueKey, queue)
}

// submit pushes up to one batch of queued applications.
//
// A failed push is recorded on the application and does not fail the task.
func (t *ApplicationsTask) submit(ctx context.Context, data *TaskData) (bool, error) {
	var queue []string
	if _, err := data.Get(applicationQueueKey, &queue); err != nil {
		return false, err
	}

	n := min(t.cfg.Batch, len(queue))
	for _, id := range queue[:n] {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		app, err := t.apps.Get(id)
		if errors.Is(err, shared.ErrNotFound) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("failed to load application %s: %w", id, err)
		}

		candidateID, submissionID, err := t.push(ctx, app)
		if err != nil {
			t.logger.Warn("application push failed", "application", id, "attempt", app.Attempts()+1, "error", err)
			if markErr := t.apps.MarkFailed(id, err, t.cfg.MaxAttempts); markErr != nil {
				return false, fmt.Errorf("failed to record failure of %s: %w", id, markErr)
			}
			data.Count("failed", 1)
			continue
		}

		if err := t.apps.MarkSynced(id, candidateID, submissionID); err != nil {
			return false, fmt.Errorf("failed to mark %s synced: %w", id, err)
		}
		data.Count("submitted", 1)
	}

	queue = queue[n:]
	if err := data.Set(applicationQueueKey, queue); err != nil {
		return false, err
	}
	return len(queue) == 0, nil
}

// push finds or creates the candidate and submits them to the job, if any.
func (t *ApplicationsTask) push(ctx context.Context, app *models.Application) (int, int, error) {
	candidateID, err := t.sink.FindCandidate(ctx, app.Email())
	if errors.Is(err, shared.ErrCandidateNotFound) {
		candidateID, err = t.sink.CreateCandidate(ctx, app)
	}
	if err != nil {
		return 0, 0, err
	}

	if app.JobSourceID() == "" {
		return candidateID, 0, nil
	}

	jobID, err := strconv.Atoi(app.JobSourceID())
	if err != nil {
		return candidateID, 0, fmt.Errorf("%w: job source id %q", shared.ErrInvalidInput, app.JobSourceID())
	}

	submissionID, err := t.sink.CreateSubmission(ctx, candidateID, jobID)
	if err != nil {
		return candidateID, 0, err
	}
	return candidateID, submissionID, nil
}
