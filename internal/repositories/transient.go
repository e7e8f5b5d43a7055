package repositories

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/jobsync/internal/shared"
)

// TransientRepository is an expiring key-value store backed by the transients table.
//
// Expired rows are invisible to reads and are replaced by writes; [TransientRepository.Purge]
// removes them physically. A ttl of zero means the value never expires.
type TransientRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewTransientRepository creates a new TransientRepository with the given database connection
func NewTransientRepository(db *sql.DB) *TransientRepository {
	return &TransientRepository{db: db, now: time.Now}
}

// WithClock replaces the clock used for expiry checks.
func (r *TransientRepository) WithClock(now func() time.Time) *TransientRepository {
	r.now = now
	return r
}

func (r *TransientRepository) nowMillis() int64 {
	return r.now().UnixMilli()
}

func (r *TransientRepository) expiresAt(ttl time.Duration) any {
	if ttl <= 0 {
		return nil
	}
	return r.now().Add(ttl).UnixMilli()
}

// Get returns the live value stored under key.
func (r *TransientRepository) Get(key string) (string, bool, error) {
	query := `
		SELECT value FROM transients
		WHERE key = ? AND (expires_at IS NULL OR expires_at > ?)
	`

	var value string
	err := r.db.QueryRow(query, key, r.nowMillis()).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read transient %s: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key, replacing any existing value.
func (r *TransientRepository) Set(key, value string, ttl time.Duration) error {
	query := `
		INSERT INTO transients (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at
	`

	if _, err := r.db.Exec(query, key, value, r.expiresAt(ttl)); err != nil {
		return fmt.Errorf("failed to write transient %s: %w", key, err)
	}
	return nil
}

// Add stores value under key only if no live value exists and reports whether it did.
//
// The expired-row cleanup and the insert run in one transaction, so concurrent callers
// racing for the same key see exactly one winner.
func (r *TransientRepository) Add(key, value string, ttl time.Duration) (bool, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"DELETE FROM transients WHERE key = ? AND expires_at IS NOT NULL AND expires_at <= ?",
		key, r.nowMillis(),
	); err != nil {
		return false, fmt.Errorf("failed to clear expired transient %s: %w", key, err)
	}

	result, err := tx.Exec(
		"INSERT OR IGNORE INTO transients (key, value, expires_at) VALUES (?, ?, ?)",
		key, value, r.expiresAt(ttl),
	)
	if err != nil {
		return false, fmt.Errorf("failed to add transient %s: %w", key, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transient %s: %w", key, err)
	}

	return rows == 1, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (r *TransientRepository) Delete(key string) error {
	if _, err := r.db.Exec("DELETE FROM transients WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to delete transient %s: %w", key, err)
	}
	return nil
}

// CompareAndDelete removes key only while it still holds value.
func (r *TransientRepository) CompareAndDelete(key, value string) (bool, error) {
	result, err := r.db.Exec("DELETE FROM transients WHERE key = ? AND value = ?", key, value)
	if err != nil {
		return false, fmt.Errorf("failed to delete transient %s: %w", key, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows == 1, nil
}

// Take returns the live value under key and deletes it in the same transaction.
func (r *TransientRepository) Take(key string) (string, bool, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return "", false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var value string
	err = tx.QueryRow(
		"SELECT value FROM transients WHERE key = ? AND (expires_at IS NULL OR expires_at > ?)",
		key, r.nowMillis(),
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read transient %s: %w", key, err)
	}

	if _, err := tx.Exec("DELETE FROM transients WHERE key = ?", key); err != nil {
		return "", false, fmt.Errorf("failed to delete transient %s: %w", key, err)
	}

	if err := tx.Commit(); err != nil {
		return "", false, fmt.Errorf("failed to commit transient %s: %w", key, err)
	}

	return value, true, nil
}

// DeletePrefix removes every key starting with prefix and returns how many were removed.
func (r *TransientRepository) DeletePrefix(prefix string) (int64, error) {
	result, err := r.db.Exec("DELETE FROM transients WHERE substr(key, 1, length(?)) = ?", prefix, prefix)
	if err != nil {
		return 0, fmt.Errorf("failed to delete transients with prefix %s: %w", prefix, err)
	}
	return result.RowsAffected()
}

// Purge physically removes expired rows and returns how many were removed.
func (r *TransientRepository) Purge() (int64, error) {
	result, err := r.db.Exec("DELETE FROM transients WHERE expires_at IS NOT NULL AND expires_at <= ?", r.nowMillis())
	if err != nil {
		return 0, fmt.Errorf("failed to purge transients: %w", err)
	}
	return result.RowsAffected()
}

// GetJSON decodes the live value under key into v and reports whether one existed.
func (r *TransientRepository) GetJSON(key string, v any) (bool, error) {
	raw, ok, err := r.Get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("%w: %s: %v", shared.ErrTransientCodec, key, err)
	}
	return true, nil
}

// SetJSON encodes v and stores it under key.
func (r *TransientRepository) SetJSON(key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", shared.ErrTransientCodec, key, err)
	}
	return r.Set(key, string(data), ttl)
}
