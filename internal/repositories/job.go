package repositories

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/jobsync/internal/models"
	"github.com/desertthunder/jobsync/internal/shared"
)

const jobColumns = `
	id, sequence, source, source_id, title, description, location, employment_type,
	salary, status, categories, remote_modified_at, created_at, updated_at, deleted_at
`

// JobRepository implements models.Repository[*models.LocalJob] for the local job board.
//
// Rows are never unique by source ID; the sync runner reconciles duplicates.
type JobRepository struct {
	db *sql.DB
}

// NewJobRepository creates a new JobRepository with the given database connection
func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new job into the database with generated ID and sequence
func (r *JobRepository) Create(job *models.LocalJob) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(r.db, "jobs")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	categories, err := encodeCategories(job.Categories())
	if err != nil {
		return err
	}

	id := shared.GenerateID()

	query := `
		INSERT INTO jobs (
			id, sequence, source, source_id, title, description, location, employment_type,
			salary, status, categories, remote_modified_at, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	remoteModified := job.RemoteModifiedAt()
	_, err = r.db.Exec(query,
		id,
		sequence,
		job.Source(),
		job.SourceID(),
		job.Title(),
		job.Description(),
		job.Location(),
		job.EmploymentType(),
		job.Salary(),
		job.Status(),
		categories,
		nullTime(&remoteModified),
		job.CreatedAt(),
		job.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}

	job.SetID(id)
	job.SetSequence(sequence)
	return nil
}

// Get retrieves a job by ID, excluding soft-deleted jobs
func (r *JobRepository) Get(id string) (*models.LocalJob, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = ? AND deleted_at IS NULL`
	return r.scanOne(r.db.QueryRow(query, id), id)
}

// GetBySourceID retrieves the oldest live job copied from the given remote record
func (r *JobRepository) GetBySourceID(source, sourceID string) (*models.LocalJob, error) {
	query := `
		SELECT ` + jobColumns + ` FROM jobs
		WHERE source = ? AND source_id = ? AND deleted_at IS NULL
		ORDER BY sequence ASC
		LIMIT 1
	`
	return r.scanOne(r.db.QueryRow(query, source, sourceID), source+":"+sourceID)
}

// Update modifies an existing job in the database
func (r *JobRepository) Update(job *models.LocalJob) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	categories, err := encodeCategories(job.Categories())
	if err != nil {
		return err
	}

	now := time.Now()
	job.SetUpdatedAt(now)

	query := `
		UPDATE jobs
		SET title = ?, description = ?, location = ?, employment_type = ?, salary = ?,
			status = ?, categories = ?, remote_modified_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	remoteModified := job.RemoteModifiedAt()
	result, err := r.db.Exec(query,
		job.Title(),
		job.Description(),
		job.Location(),
		job.EmploymentType(),
		job.Salary(),
		job.Status(),
		categories,
		nullTime(&remoteModified),
		now,
		job.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	return affected(result, fmt.Errorf("%w: job %s", shared.ErrNotFound, job.ID()))
}

// Delete soft-deletes a job by ID
func (r *JobRepository) Delete(id string) error {
	query := `
		UPDATE jobs
		SET deleted_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}

	return affected(result, fmt.Errorf("%w: job %s", shared.ErrNotFound, id))
}

// List retrieves all jobs matching the given criteria, excluding soft-deleted jobs.
//
// Supported criteria: "source", "source_id", "status" (strings) and "limit" (int).
func (r *JobRepository) List(criteria map[string]any) ([]*models.LocalJob, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE deleted_at IS NULL`
	args := []any{}

	for _, column := range []string{"source", "source_id", "status"} {
		if v, ok := criteria[column].(string); ok && v != "" {
			query += " AND " + column + " = ?"
			args = append(args, v)
		}
	}

	query += " ORDER BY sequence ASC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	return r.query(query, args...)
}

// Page returns up to limit live jobs ordered by sequence, starting at offset.
func (r *JobRepository) Page(offset, limit int) ([]*models.LocalJob, error) {
	query := `
		SELECT ` + jobColumns + ` FROM jobs
		WHERE deleted_at IS NULL
		ORDER BY sequence ASC
		LIMIT ? OFFSET ?
	`
	return r.query(query, limit, offset)
}

// Count returns the number of live jobs.
func (r *JobRepository) Count() (int, error) {
	var count int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM jobs WHERE deleted_at IS NULL").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	return count, nil
}

func (r *JobRepository) query(query string, args ...any) ([]*models.LocalJob, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.LocalJob
	for rows.Next() {
		job, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return jobs, nil
}

// scanOne scans a single row into a [models.LocalJob]
func (r *JobRepository) scanOne(row *sql.Row, ref string) (*models.LocalJob, error) {
	job, err := r.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: job %s", shared.ErrNotFound, ref)
	}
	return job, err
}

func (r *JobRepository) scan(s scanner) (*models.LocalJob, error) {
	var (
		id             string
		sequence       int
		f              models.LocalJobFields
		categories     string
		remoteModified sql.NullTime
		createdAt      time.Time
		updatedAt      time.Time
		deletedAt      sql.NullTime
	)

	err := s.Scan(
		&id, &sequence, &f.Source, &f.SourceID, &f.Title, &f.Description, &f.Location, &f.EmploymentType,
		&f.Salary, &f.Status, &categories, &remoteModified, &createdAt, &updatedAt, &deletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}

	if categories != "" {
		if err := json.Unmarshal([]byte(categories), &f.Categories); err != nil {
			return nil, fmt.Errorf("failed to decode categories of job %s: %w", id, err)
		}
	}
	if remoteModified.Valid {
		f.RemoteModifiedAt = remoteModified.Time
	}

	job := models.NewLocalJob(sequence, f)
	job.SetID(id)
	job.SetCreatedAt(createdAt)
	job.SetUpdatedAt(updatedAt)
	if deletedAt.Valid {
		job.SetDeletedAt(&deletedAt.Time)
	}

	return job, nil
}

func encodeCategories(categories []string) (string, error) {
	if len(categories) == 0 {
		return "", nil
	}
	data, err := json.Marshal(categories)
	if err != nil {
		return "", fmt.Errorf("failed to encode categories: %w", err)
	}
	return string(data), nil
}
