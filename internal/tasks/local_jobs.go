package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/jobsync/internal/shared"
)

const (
	localIndexKey  = "local_index"
	localOffsetKey = "local_offset"
)

// JobIndex maps external source IDs to local job IDs.
type JobIndex struct {
	Sources    map[string][]string `json:"sources"`
	Duplicates []string            `json:"duplicates"`
}

// NewJobIndex returns an empty index.
func NewJobIndex() *JobIndex {
	return &JobIndex{Sources: map[string][]string{}}
}

// Add records a local job, keeping ids in scan order.
func (i *JobIndex) Add(sourceID, id string) {
	i.Sources[sourceID] = append(i.Sources[sourceID], id)
}

// Lookup returns the local job kept for sourceID.
func (i *JobIndex) Lookup(sourceID string) (string, bool) {
	ids := i.Sources[sourceID]
	if len(ids) == 0 {
		return "", false
	}
	return ids[0], true
}

// SourceIDs returns the indexed source IDs in sorted order.
func (i *JobIndex) SourceIDs() []string {
	return slices.Sorted(maps.Keys(i.Sources))
}

// split keeps the oldest job of every group and queues the rest as duplicates.
func (i *JobIndex) split() {
	i.Duplicates = i.Duplicates[:0]
	for _, sourceID := range i.SourceIDs() {
		ids := i.Sources[sourceID]
		if len(ids) > 1 {
			i.Duplicates = append(i.Duplicates, ids[1:]...)
			i.Sources[sourceID] = ids[:1]
		}
	}
}

// LocalJobs scans the local job store in pages to index synced jobs and
// reconcile duplicates a batch at a time.
type LocalJobs struct {
	jobs     JobStore
	pageSize int
	batch    int
	logger   *log.Logger
}

// NewLocalJobs creates a scanner reading pageSize jobs and deleting batch duplicates per call.
func NewLocalJobs(jobs JobStore, pageSize, batch int) *LocalJobs {
	if pageSize <= 0 {
		pageSize = 100
	}
	if batch <= 0 {
		batch = 25
	}
	return &LocalJobs{jobs: jobs, pageSize: pageSize, batch: batch, logger: log.New(io.Discard)}
}

// WithLogger sets the logger.
func (l *LocalJobs) WithLogger(logger *log.Logger) *LocalJobs {
	l.logger = logger
	return l
}

// Index returns the index stored in data, or an empty one.
func (l *LocalJobs) Index(data *TaskData) (*JobIndex, error) {
	idx := NewJobIndex()
	if _, err := data.Get(localIndexKey, idx); err != nil {
		return nil, err
	}
	if idx.Sources == nil {
		idx.Sources = map[string][]string{}
	}
	return idx, nil
}

// SaveIndex stores idx in data.
func (l *LocalJobs) SaveIndex(data *TaskData, idx *JobIndex) error {
	return data.Set(localIndexKey, idx)
}

// BuildIndex reads one page of local jobs into the index.
//
// It reports done after the last page, at which point the duplicates list is final.
func (l *LocalJobs) BuildIndex(ctx context.Context, data *TaskData) (bool, error) {
	idx, err := l.Index(data)
	if err != nil {
		return false, err
	}

	offset := data.Int(localOffsetKey)
	page, err := l.jobs.Page(offset, l.pageSize)
	if err != nil {
		return false, fmt.Errorf("failed to read local jobs at offset %d: %w", offset, err)
	}

	for _, job := range page {
		if job.SourceID() == "" {
			continue
		}
		idx.Add(job.SourceID(), job.ID())
	}
	offset += len(page)

	done := len(page) < l.pageSize
	if done {
		idx.split()
		data.Delete(localOffsetKey)
		data.Count("local_jobs", offset)
		l.logger.Debug("local index built", "jobs", offset, "sources", len(idx.Sources), "duplicates", len(idx.Duplicates))
	} else if err := data.Set(localOffsetKey, offset); err != nil {
		return false, err
	}

	return done, l.SaveIndex(data, idx)
}

// DeleteDuplicates deletes up to one batch of queued duplicates.
func (l *LocalJobs) DeleteDuplicates(ctx context.Context, data *TaskData) (bool, error) {
	idx, err := l.Index(data)
	if err != nil {
		return false, err
	}

	n := min(l.batch, len(idx.Duplicates))
	for _, id := range idx.Duplicates[:n] {
		if err := l.jobs.Delete(id); err != nil && !errors.Is(err, shared.ErrNotFound) {
			return false, fmt.Errorf("failed to delete duplicate job %s: %w", id, err)
		}
	}
	idx.Duplicates = idx.Duplicates[n:]
	data.Count("duplicates_deleted", n)

	if n > 0 {
		l.logger.Debug("deleted duplicate jobs", "count", n, "remaining", len(idx.Duplicates))
	}

	return len(idx.Duplicates) == 0, l.SaveIndex(data, idx)
}
