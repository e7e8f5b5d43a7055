package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/jobsync/internal/models"
	"github.com/desertthunder/jobsync/internal/shared"
)

const applicationColumns = `
	id, sequence, job_source_id, first_name, last_name, email, phone, resume, status,
	candidate_id, submission_id, attempts, last_error, created_at, updated_at, deleted_at
`

// ApplicationRepository implements models.Repository[*models.Application] for collected applicants.
type ApplicationRepository struct {
	db *sql.DB
}

// NewApplicationRepository creates a new ApplicationRepository with the given database connection
func NewApplicationRepository(db *sql.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

// Create inserts a new application into the database with generated ID and sequence
func (r *ApplicationRepository) Create(app *models.Application) error {
	if err := app.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(r.db, "applications")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()

	query := `
		INSERT INTO applications (
			id, sequence, job_source_id, first_name, last_name, email, phone, resume, status,
			candidate_id, submission_id, attempts, last_error, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		id,
		sequence,
		app.JobSourceID(),
		app.FirstName(),
		app.LastName(),
		app.Email(),
		app.Phone(),
		app.Resume(),
		app.Status(),
		app.CandidateID(),
		app.SubmissionID(),
		app.Attempts(),
		app.LastError(),
		app.CreatedAt(),
		app.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert application: %w", err)
	}

	app.SetID(id)
	app.SetSequence(sequence)
	return nil
}

// Get retrieves an application by ID, excluding soft-deleted applications
func (r *ApplicationRepository) Get(id string) (*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE id = ? AND deleted_at IS NULL`

	app, err := r.scan(r.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: application %s", shared.ErrNotFound, id)
	}
	return app, err
}

// Update persists the sync-owned fields of an application
func (r *ApplicationRepository) Update(app *models.Application) error {
	if err := app.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	app.SetUpdatedAt(now)

	query := `
		UPDATE applications
		SET status = ?, candidate_id = ?, submission_id = ?, attempts = ?, last_error = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query,
		app.Status(),
		app.CandidateID(),
		app.SubmissionID(),
		app.Attempts(),
		app.LastError(),
		now,
		app.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update application: %w", err)
	}

	return affected(result, fmt.Errorf("%w: application %s", shared.ErrNotFound, app.ID()))
}

// Delete soft-deletes an application by ID
func (r *ApplicationRepository) Delete(id string) error {
	result, err := r.db.Exec(
		"UPDATE applications SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL",
		time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete application: %w", err)
	}

	return affected(result, fmt.Errorf("%w: application %s", shared.ErrNotFound, id))
}

// List retrieves all applications matching the given criteria, excluding soft-deleted applications.
//
// Supported criteria: "status", "job_source_id", "email" (strings) and "limit" (int).
func (r *ApplicationRepository) List(criteria map[string]any) ([]*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE deleted_at IS NULL`
	args := []any{}

	for _, column := range []string{"status", "job_source_id", "email"} {
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

// Pending returns up to limit pending applications that have been attempted fewer than maxAttempts times.
func (r *ApplicationRepository) Pending(limit, maxAttempts int) ([]*models.Application, error) {
	query := `
		SELECT ` + applicationColumns + ` FROM applications
		WHERE deleted_at IS NULL AND status = ? AND attempts < ?
		ORDER BY sequence ASC
		LIMIT ?
	`
	return r.query(query, models.ApplicationPending, maxAttempts, limit)
}

// MarkSynced records the Bullhorn identifiers of a pushed application.
func (r *ApplicationRepository) MarkSynced(id string, candidateID, submissionID int) error {
	app, err := r.Get(id)
	if err != nil {
		return err
	}
	app.MarkSynced(candidateID, submissionID)
	return r.Update(app)
}

// MarkFailed records a failed push; the application fails permanently after maxAttempts.
func (r *ApplicationRepository) MarkFailed(id string, cause error, maxAttempts int) error {
	app, err := r.Get(id)
	if err != nil {
		return err
	}
	app.RecordFailure(cause, maxAttempts)
	return r.Update(app)
}

func (r *ApplicationRepository) query(query string, args ...any) ([]*models.Application, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query applications: %w", err)
	}
	defer rows.Close()

	var apps []*models.Application
	for rows.Next() {
		app, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return apps, nil
}

func (r *ApplicationRepository) scan(s scanner) (*models.Application, error) {
	var (
		id           string
		sequence     int
		f            models.ApplicationFields
		status       string
		candidateID  int
		submissionID int
		attempts     int
		lastError    string
		createdAt    time.Time
		updatedAt    time.Time
		deletedAt    sql.NullTime
	)

	err := s.Scan(
		&id, &sequence, &f.JobSourceID, &f.FirstName, &f.LastName, &f.Email, &f.Phone, &f.Resume, &status,
		&candidateID, &submissionID, &attempts, &lastError, &createdAt, &updatedAt, &deletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan application: %w", err)
	}

	app := models.NewApplication(sequence, f)
	app.SetID(id)
	app.Restore(status, candidateID, submissionID, attempts, lastError)
	app.SetCreatedAt(createdAt)
	app.SetUpdatedAt(updatedAt)
	if deletedAt.Valid {
		app.SetDeletedAt(&deletedAt.Time)
	}

	return app, nil
}
