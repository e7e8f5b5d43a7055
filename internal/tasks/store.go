package tasks

import (
	"time"

	"github.com/desertthunder/jobsync/internal/models"
)

// Transient key names shared by the runner, its tasks and the HTTP handlers.
const (
	SyncStateKey          = "jobsync_sync_state"
	SyncLockKey           = "jobsync_sync_lock"
	LastSyncKey           = "jobsync_last_sync"
	ContinuationMethodKey = "jobsync_continuation_method"
	TaskKeyPrefix         = "jobsync_task_"
	LoopbackNoncePrefix   = "jobsync_loopback_nonce_"
)

// Store is the transient store the runner checkpoints into.
//
// Implemented by repositories.TransientRepository.
type Store interface {
	Get(key string) (string, bool, error)
	Set(key, value string, ttl time.Duration) error
	Add(key, value string, ttl time.Duration) (bool, error)
	Delete(key string) error
	CompareAndDelete(key, value string) (bool, error)
	Take(key string) (string, bool, error)
	DeletePrefix(prefix string) (int64, error)
	GetJSON(key string, v any) (bool, error)
	SetJSON(key string, v any, ttl time.Duration) error
}

// RunStore persists sync run history.
type RunStore interface {
	Create(run *models.SyncRun) error
	Get(id string) (*models.SyncRun, error)
	Update(run *models.SyncRun) error
	Latest() (*models.SyncRun, error)
}

// JobStore is the local job store scanned and written by the jobs task.
type JobStore interface {
	Create(job *models.LocalJob) error
	Get(id string) (*models.LocalJob, error)
	Update(job *models.LocalJob) error
	Delete(id string) error
	Page(offset, limit int) ([]*models.LocalJob, error)
}

// ApplicationStore is the queue of collected applications.
type ApplicationStore interface {
	Get(id string) (*models.Application, error)
	Pending(limit, maxAttempts int) ([]*models.Application, error)
	MarkSynced(id string, candidateID, submissionID int) error
	MarkFailed(id string, cause error, maxAttempts int) error
}
