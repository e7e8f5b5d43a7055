package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/jobsync/internal/models"
	"github.com/desertthunder/jobsync/internal/shared"
)

const syncRunColumns = `
	id, sequence, trigger_source, status, invocations, elapsed_ms, summary,
	error_message, started_at, completed_at, created_at, updated_at
`

// SyncRunRepository implements models.Repository[*models.SyncRun] for sync run history.
//
// Runs are history records and are hard-deleted.
type SyncRunRepository struct {
	db *sql.DB
}

// NewSyncRunRepository creates a new SyncRunRepository with the given database connection
func NewSyncRunRepository(db *sql.DB) *SyncRunRepository {
	return &SyncRunRepository{db: db}
}

// Create inserts a new run into the database with generated ID and sequence
func (r *SyncRunRepository) Create(run *models.SyncRun) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(r.db, "sync_runs")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()

	query := `
		INSERT INTO sync_runs (
			id, sequence, trigger_source, status, invocations, elapsed_ms, summary,
			error_message, started_at, completed_at, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		id,
		sequence,
		string(run.Trigger()),
		string(run.Status()),
		run.Invocations(),
		run.Elapsed().Milliseconds(),
		run.Summary(),
		nullString(run.ErrorMessage()),
		run.StartedAt(),
		nullTime(run.CompletedAt()),
		run.CreatedAt(),
		run.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert sync run: %w", err)
	}

	run.SetID(id)
	run.SetSequence(sequence)
	return nil
}

// Get retrieves a run by ID
func (r *SyncRunRepository) Get(id string) (*models.SyncRun, error) {
	query := `SELECT ` + syncRunColumns + ` FROM sync_runs WHERE id = ?`

	run, err := r.scan(r.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: sync run %s", shared.ErrNotFound, id)
	}
	return run, err
}

// Latest returns the most recently created run.
func (r *SyncRunRepository) Latest() (*models.SyncRun, error) {
	query := `SELECT ` + syncRunColumns + ` FROM sync_runs ORDER BY sequence DESC LIMIT 1`

	run, err := r.scan(r.db.QueryRow(query))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no sync runs", shared.ErrNotFound)
	}
	return run, err
}

// Update modifies an existing run in the database
func (r *SyncRunRepository) Update(run *models.SyncRun) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	run.SetUpdatedAt(now)

	query := `
		UPDATE sync_runs
		SET status = ?, invocations = ?, elapsed_ms = ?, summary = ?, error_message = ?,
			completed_at = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.Exec(query,
		string(run.Status()),
		run.Invocations(),
		run.Elapsed().Milliseconds(),
		run.Summary(),
		nullString(run.ErrorMessage()),
		nullTime(run.CompletedAt()),
		now,
		run.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update sync run: %w", err)
	}

	return affected(result, fmt.Errorf("%w: sync run %s", shared.ErrNotFound, run.ID()))
}

// Delete removes a run by ID
func (r *SyncRunRepository) Delete(id string) error {
	result, err := r.db.Exec("DELETE FROM sync_runs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete sync run: %w", err)
	}

	return affected(result, fmt.Errorf("%w: sync run %s", shared.ErrNotFound, id))
}

// List retrieves runs newest first.
//
// Supported criteria: "status", "trigger" (strings) and "limit" (int).
func (r *SyncRunRepository) List(criteria map[string]any) ([]*models.SyncRun, error) {
	query := `SELECT ` + syncRunColumns + ` FROM sync_runs WHERE 1 = 1`
	args := []any{}

	if status, ok := criteria["status"].(string); ok && status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}

	if trigger, ok := criteria["trigger"].(string); ok && trigger != "" {
		query += " AND trigger_source = ?"
		args = append(args, trigger)
	}

	query += " ORDER BY sequence DESC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.SyncRun
	for rows.Next() {
		run, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return runs, nil
}

// Recent returns up to limit runs, newest first.
func (r *SyncRunRepository) Recent(limit int) ([]*models.SyncRun, error) {
	return r.List(map[string]any{"limit": limit})
}

func (r *SyncRunRepository) scan(s scanner) (*models.SyncRun, error) {
	var (
		id           string
		sequence     int
		trigger      string
		status       string
		invocations  int
		elapsedMS    int64
		summary      string
		errorMessage sql.NullString
		startedAt    time.Time
		completedAt  sql.NullTime
		createdAt    time.Time
		updatedAt    time.Time
	)

	err := s.Scan(
		&id, &sequence, &trigger, &status, &invocations, &elapsedMS, &summary,
		&errorMessage, &startedAt, &completedAt, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan sync run: %w", err)
	}

	var completed *time.Time
	if completedAt.Valid {
		completed = &completedAt.Time
	}

	run := models.NewSyncRun(sequence, models.Trigger(trigger))
	run.SetID(id)
	run.Restore(models.RunStatus(status), invocations, time.Duration(elapsedMS)*time.Millisecond, summary, errorMessage.String, completed)
	run.SetStartedAt(startedAt)
	run.SetCreatedAt(createdAt)
	run.SetUpdatedAt(updatedAt)

	return run, nil
}
