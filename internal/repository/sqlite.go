package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"yesman/middleman/internal/metrics"
	"yesman/middleman/internal/models"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS tbl_usernames (
	id INTEGER PRIMARY KEY,
	rank TEXT,
	elo INTEGER,
	userid TEXT NOT NULL,
	username TEXT,
	start_date DATETIME NOT NULL,
	end_date DATETIME NOT NULL,
	is_current INTEGER NOT NULL DEFAULT 1
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_usernames_one_current
	ON tbl_usernames (userid) WHERE is_current = 1;

CREATE TRIGGER IF NOT EXISTS trg_update_usernames
BEFORE INSERT ON tbl_usernames
BEGIN
	UPDATE tbl_usernames
	SET end_date = DATETIME('now'),
		is_current = 0
	WHERE userid = NEW.userid AND is_current = 1;
END;
`

// The NOT EXISTS guard makes an unchanged (userid, username) a no-op; the
// trigger only fires when a row is actually inserted.
const sqliteInsertHistory = `
INSERT INTO tbl_usernames (rank, elo, userid, username, start_date, end_date, is_current)
SELECT ?, ?, ?, ?, DATETIME('now'), '9999-12-31', 1
WHERE NOT EXISTS (
	SELECT 1
	FROM tbl_usernames
	WHERE userid = ? AND is_current = 1 AND username IS ?
)
`

const sqliteSelectHistory = `
SELECT id, rank, elo, userid, username, start_date, end_date, is_current
FROM tbl_usernames
`

// SQLiteStore implements UsernameStore on a local SQLite file
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (creating if needed) the database at path
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{db: db, path: path}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	log.Info().Str("path", path).Msg("SQLite history store ready")
	return store, nil
}

// UpsertHistory implements UsernameStore
func (s *SQLiteStore) UpsertHistory(ctx context.Context, records []models.ResolvedRecord) (UpsertSummary, error) {
	start := time.Now()
	summary, err := s.upsert(ctx, records)

	status := "success"
	if err != nil {
		status = "error"
		metrics.RecordError("repository", "upsert")
	}
	metrics.RecordDBQuery("upsert", TableUsernames, status, time.Since(start).Seconds())
	metrics.RecordRowsInserted(summary.Inserted)

	return summary, err
}

func (s *SQLiteStore) upsert(ctx context.Context, records []models.ResolvedRecord) (UpsertSummary, error) {
	var summary UpsertSummary

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, sqliteSchema); err != nil {
		return summary, fmt.Errorf("failed to create schema: %w", err)
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return summary, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, sqliteInsertHistory)
	if err != nil {
		return summary, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		res, err := stmt.ExecContext(ctx,
			rec.Rank, rec.Elo, rec.UserID, rec.Username,
			rec.UserID, rec.Username,
		)
		if err != nil {
			return UpsertSummary{}, fmt.Errorf("failed to insert history for userid=%s: %w", rec.UserID, err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return UpsertSummary{}, fmt.Errorf("failed to read rows affected: %w", err)
		}
		if n > 0 {
			summary.Inserted += n
		} else {
			summary.Unchanged++
		}
	}

	if err := tx.Commit(); err != nil {
		return UpsertSummary{}, fmt.Errorf("failed to commit history batch: %w", err)
	}

	log.Debug().
		Int64("inserted", summary.Inserted).
		Int64("unchanged", summary.Unchanged).
		Msg("Username history batch committed")

	return summary, nil
}

// History implements UsernameStore
func (s *SQLiteStore) History(ctx context.Context, userID string) ([]models.UsernameHistoryRow, error) {
	rows, err := s.db.QueryContext(ctx, sqliteSelectHistory+` WHERE userid = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var history []models.UsernameHistoryRow
	for rows.Next() {
		row, err := scanHistoryRow(rows)
		if err != nil {
			return nil, err
		}
		history = append(history, *row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history: %w", err)
	}

	return history, nil
}

// Current implements UsernameStore
func (s *SQLiteStore) Current(ctx context.Context, userID string) (*models.UsernameHistoryRow, error) {
	row, err := scanHistoryRow(s.db.QueryRowContext(ctx, sqliteSelectHistory+` WHERE userid = ? AND is_current = 1`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("current username for userid=%s: %w", userID, ErrNotFound)
	}
	return row, err
}

// Health checks the database is reachable
func (s *SQLiteStore) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// Close closes the database
func (s *SQLiteStore) Close() {
	if err := s.db.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close SQLite database")
		return
	}
	log.Info().Str("path", s.path).Msg("SQLite database closed")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHistoryRow(r rowScanner) (*models.UsernameHistoryRow, error) {
	var row models.UsernameHistoryRow
	err := r.Scan(
		&row.ID, &row.Rank, &row.Elo, &row.UserID, &row.Username,
		&row.StartDate, &row.EndDate, &row.IsCurrent,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan history row: %w", err)
	}
	return &row, nil
}
