package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/jobsync/internal/models"
	"github.com/desertthunder/jobsync/internal/services"
	"github.com/desertthunder/jobsync/internal/shared"
)

// JobsTaskName is the checkpoint name of the jobs task.
const JobsTaskName = "jobs"

const (
	remoteStartKey = "remote_start"
	remoteJobsKey  = "remote"
	saveCursorKey  = "save_cursor"
	expireQueueKey = "expire_queue"
	expireBuiltKey = "expire_built"

	maxRemotePage   = 500
	defaultPageSize = 100
)

// JobsTaskConfig sizes the batches of the jobs task.
type JobsTaskConfig struct {
	PageSize       int
	LocalPageSize  int
	DuplicateBatch int
	SaveBatch      int
}

// NewJobsTaskConfig reads batch sizes from the loaded configuration.
func NewJobsTaskConfig(cfg *shared.Config) JobsTaskConfig {
	return JobsTaskConfig{
		PageSize:       cfg.Bullhorn.PageSize,
		LocalPageSize:  cfg.Sync.LocalPageSize,
		DuplicateBatch: cfg.Sync.DuplicateBatch,
		SaveBatch:      cfg.Sync.SaveBatch,
	}
}

// JobsTask mirrors Bullhorn job orders into the local job store.
//
// Steps: fetch_remote, index_local, delete_duplicates, save_jobs, expire_jobs.
type JobsTask struct {
	*Task
	source services.JobSource
	jobs   JobStore
	local  *LocalJobs
	cfg    JobsTaskConfig
	logger *log.Logger
}

// NewJobsTask creates the jobs task.
func NewJobsTask(store Store, source services.JobSource, jobs JobStore, cfg JobsTaskConfig) *JobsTask {
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	cfg.PageSize = min(cfg.PageSize, maxRemotePage)
	if cfg.SaveBatch <= 0 {
		cfg.SaveBatch = 25
	}

	t := &JobsTask{
		source: source,
		jobs:   jobs,
		local:  NewLocalJobs(jobs, cfg.LocalPageSize, cfg.DuplicateBatch),
		cfg:    cfg,
		logger: log.New(io.Discard),
	}
	t.Task = NewTask(JobsTaskName, store,
		Step{Name: "fetch_remote", Run: t.fetchRemote},
		Step{Name: "index_local", Run: t.local.BuildIndex},
		Step{Name: "delete_duplicates", Run: t.local.DeleteDuplicates},
		Step{Name: "save_jobs", Run: t.saveJobs},
		Step{Name: "expire_jobs", Run: t.expireJobs},
	)
	return t
}

// WithLogger sets the logger of the task and its local job scanner.
func (t *JobsTask) WithLogger(logger *log.Logger) *JobsTask {
	t.Task.WithLogger(logger)
	t.logger = shared.WithLogger(logger, "task", JobsTaskName)
	t.local.WithLogger(t.logger)
	return t
}

// fetchRemote reads one page of Bullhorn job orders per call.
func (t *JobsTask) fetchRemote(ctx context.Context, data *TaskData) (bool, error) {
	start := data.Int(remoteStartKey)

	var remote []models.Job
	if _, err := data.Get(remoteJobsKey, &remote); err != nil {
		return false, err
	}

	page, err := t.source.SearchJobs(ctx, start, t.cfg.PageSize)
	if err != nil {
		return false, fmt.Errorf("failed to fetch jobs at %d: %w", start, err)
	}
	remote = append(remote, page.Data...)
	if err := data.Set(remoteJobsKey, remote); err != nil {
		return false, err
	}

	next, more := page.Next()
	if more && next > start {
		return false, data.Set(remoteStartKey, next)
	}

	data.Delete(remoteStartKey)
	data.Count("remote_jobs", len(remote))
	t.logger.Debug("remote jobs fetched", "count", len(remote), "total", page.Total)
	return true, nil
}

// saveJobs creates or updates up to one batch of local jobs from the fetched remote jobs.
func (t *JobsTask) saveJobs(ctx context.Context, data *TaskData) (bool, error) {
	var remote []models.Job
	if _, err := data.Get(remoteJobsKey, &remote); err != nil {
		return false, err
	}
	idx, err := t.local.Index(data)
	if err != nil {
		return false, err
	}

	cursor := data.Int(saveCursorKey)
	end := min(cursor+t.cfg.SaveBatch, len(remote))

	for _, job := range remote[cursor:end] {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if err := t.saveJob(idx, data, job); err != nil {
			return false, err
		}
	}

	if err := t.local.SaveIndex(data, idx); err != nil {
		return false, err
	}
	if err := data.Set(saveCursorKey, end); err != nil {
		return false, err
	}
	return end >= len(remote), nil
}

func (t *JobsTask) saveJob(idx *JobIndex, data *TaskData, job models.Job) error {
	if id, ok := idx.Lookup(job.SourceID()); ok {
		local, err := t.jobs.Get(id)
		switch {
		case err == nil && local.Matches(job):
			data.Count("unchanged", 1)
			return nil
		case err == nil:
			local.Apply(job)
			if err := t.jobs.Update(local); err != nil {
				return fmt.Errorf("failed to update job %s: %w", job.SourceID(), err)
			}
			data.Count("updated", 1)
			return nil
		case !errors.Is(err, shared.ErrNotFound):
			return fmt.Errorf("failed to load job %s: %w", id, err)
		}
		delete(idx.Sources, job.SourceID())
	}

	local := models.NewLocalJobFromRemote(0, job)
	if err := t.jobs.Create(local); err != nil {
		if errors.Is(err, shared.ErrValidation) {
			t.logger.Warn("skipping invalid remote job", "source_id", job.SourceID(), "error", err)
			data.Count("skipped", 1)
			return nil
		}
		return fmt.Errorf("failed to create job %s: %w", job.SourceID(), err)
	}
	idx.Add(job.SourceID(), local.ID())
	data.Count("created", 1)
	return nil
}

// expireJobs deletes local jobs whose source ID no longer appears remotely, one batch per call.
func (t *JobsTask) expireJobs(ctx context.Context, data *TaskData) (bool, error) {
	var queue []string
	if !data.Has(expireBuiltKey) {
		var remote []models.Job
		if _, err := data.Get(remoteJobsKey, &remote); err != nil {
			return false, err
		}
		idx, err := t.local.Index(data)
		if err != nil {
			return false, err
		}

		seen := make(map[string]struct{}, len(remote))
		for _, job := range remote {
			seen[job.SourceID()] = struct{}{}
		}
		for _, sourceID := range idx.SourceIDs() {
			if _, ok := seen[sourceID]; !ok {
				queue = append(queue, idx.Sources[sourceID]...)
			}
		}

		// The fetched jobs and the index are no longer needed once the queue exists.
		data.Delete(remoteJobsKey)
		data.Delete(localIndexKey)
		if err := data.Set(expireBuiltKey, true); err != nil {
			return false, err
		}
	} else if _, err := data.Get(expireQueueKey, &queue); err != nil {
		return false, err
	}

	n := min(t.cfg.SaveBatch, len(queue))
	for _, id := range queue[:n] {
		if err := t.jobs.Delete(id); err != nil && !errors.Is(err, shared.ErrNotFound) {
			return false, fmt.Errorf("failed to expire job %s: %w", id, err)
		}
	}
	queue = queue[n:]
	data.Count("expired", n)

	if err := data.Set(expireQueueKey, queue); err != nil {
		return false, err
	}
	return len(queue) == 0, nil
}
