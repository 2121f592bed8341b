package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hermesdl/hermesctl/internal/api"
	"github.com/hermesdl/hermesctl/internal/shared"
)

// HistoryEntry is one cached download record.
type HistoryEntry struct {
	ID           string
	URL          string
	Title        string
	Status       api.Status
	Progress     float64
	FileSize     *int64
	Duration     *float64
	ErrorMessage string
	RecordedAt   time.Time
}

// HistoryRepository persists finished download records.
type HistoryRepository struct {
	db *sql.DB
}

// NewHistoryRepository creates a new HistoryRepository with the given database connection
func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Record upserts a job's final state. Recording the same job twice replaces
// the earlier row, so re-running a follow after a retry keeps one entry per
// job.
func (r *HistoryRepository) Record(status *api.DownloadStatus, displayProgress float64) error {
	if status == nil || status.DownloadID == "" {
		return fmt.Errorf("%w: missing download id", shared.ErrInvalidInput)
	}

	var url string
	var fileSize *int64
	var duration *float64
	if status.Result != nil {
		url = status.Result.URL
		fileSize = status.Result.FileSize
		duration = status.Result.Duration
	}

	var errorMessage any
	if status.Error != "" {
		errorMessage = status.Error
	}

	query := `
		INSERT INTO download_history (
			id, url, title, status, progress, file_size, duration,
			error_message, recorded_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			url = excluded.url,
			title = excluded.title,
			status = excluded.status,
			progress = excluded.progress,
			file_size = excluded.file_size,
			duration = excluded.duration,
			error_message = excluded.error_message,
			recorded_at = excluded.recorded_at
	`

	_, err := r.db.Exec(query,
		status.DownloadID,
		url,
		status.Title(),
		string(status.Status),
		displayProgress,
		fileSize,
		duration,
		errorMessage,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record download: %w", err)
	}
	return nil
}

// Get returns a single history entry by job ID.
func (r *HistoryRepository) Get(id string) (*HistoryEntry, error) {
	query := `
		SELECT id, url, title, status, progress, file_size, duration,
			error_message, recorded_at
		FROM download_history
		WHERE id = ?
	`

	entry, err := scanEntry(r.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get history entry: %w", err)
	}
	return entry, nil
}

// List returns history entries newest first. A non-empty status narrows the
// result; limit <= 0 means no limit.
func (r *HistoryRepository) List(status string, limit int) ([]HistoryEntry, error) {
	query := `
		SELECT id, url, title, status, progress, file_size, duration,
			error_message, recorded_at
		FROM download_history
	`
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY recorded_at DESC, id"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history rows: %w", err)
	}
	return entries, nil
}

// Delete removes one history entry.
func (r *HistoryRepository) Delete(id string) error {
	result, err := r.db.Exec("DELETE FROM download_history WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete history entry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", shared.ErrJobNotFound, id)
	}
	return nil
}

// Clear removes every history entry.
func (r *HistoryRepository) Clear() error {
	if _, err := r.db.Exec("DELETE FROM download_history"); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*HistoryEntry, error) {
	var entry HistoryEntry
	var status string
	var errorMessage sql.NullString

	err := row.Scan(
		&entry.ID,
		&entry.URL,
		&entry.Title,
		&status,
		&entry.Progress,
		&entry.FileSize,
		&entry.Duration,
		&errorMessage,
		&entry.RecordedAt,
	)
	if err != nil {
		return nil, err
	}

	entry.Status = api.NormalizeStatus(status)
	entry.ErrorMessage = errorMessage.String
	return &entry, nil
}
