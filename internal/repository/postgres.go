package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"yesman/middleman/internal/metrics"
	"yesman/middleman/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS tbl_usernames (
		id BIGSERIAL PRIMARY KEY,
		rank TEXT,
		elo BIGINT,
		userid TEXT NOT NULL,
		username TEXT,
		start_date TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		end_date TIMESTAMPTZ NOT NULL,
		is_current BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_usernames_one_current
		ON tbl_usernames (userid) WHERE is_current`,
	`CREATE OR REPLACE FUNCTION fn_supersede_username() RETURNS TRIGGER AS $$
	BEGIN
		UPDATE tbl_usernames
		SET end_date = NOW(),
			is_current = FALSE
		WHERE userid = NEW.userid AND is_current;
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql`,
	`CREATE OR REPLACE TRIGGER trg_update_usernames
		BEFORE INSERT ON tbl_usernames
		FOR EACH ROW EXECUTE FUNCTION fn_supersede_username()`,
}

const postgresInsertHistory = `
	INSERT INTO tbl_usernames (rank, elo, userid, username, start_date, end_date, is_current)
	SELECT $1::text, $2::bigint, $3::text, $4::text, NOW(), '9999-12-31 00:00:00+00'::timestamptz, TRUE
	WHERE NOT EXISTS (
		SELECT 1
		FROM tbl_usernames
		WHERE userid = $3::text AND is_current AND username IS NOT DISTINCT FROM $4::text
	)
`

const postgresSelectHistory = `
	SELECT id, rank, elo, userid, username, start_date, end_date, is_current
	FROM tbl_usernames
`

// PostgresStore implements UsernameStore on a PostgreSQL connection pool
type PostgresStore struct {
	Pool *pgxpool.Pool
}

// NewPostgresStore creates a new connection pool and ensures the schema exists
func NewPostgresStore(ctx context.Context, cfg Config) (*PostgresStore, error) {
	return NewPostgresStoreFromDSN(ctx, cfg.DSN())
}

// NewPostgresStoreFromDSN is NewPostgresStore for a ready-made connection string
func NewPostgresStoreFromDSN(ctx context.Context, dsn string) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	// One batch per run; a small pool is plenty
	poolConfig.MaxConns = 4
	poolConfig.MinConns = 0
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{Pool: pool}
	if err := store.ensureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info().
		Str("host", poolConfig.ConnConfig.Host).
		Str("database", poolConfig.ConnConfig.Database).
		Msg("Successfully connected to database")

	return store, nil
}

// execer is satisfied by *pgxpool.Pool, *pgxpool.Conn and pgx.Tx
type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

func (s *PostgresStore) ensureSchema(ctx context.Context, db execer) error {
	for _, stmt := range postgresSchema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// UpsertHistory implements UsernameStore
func (s *PostgresStore) UpsertHistory(ctx context.Context, records []models.ResolvedRecord) (UpsertSummary, error) {
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

func (s *PostgresStore) upsert(ctx context.Context, records []models.ResolvedRecord) (UpsertSummary, error) {
	var summary UpsertSummary

	conn, err := s.Pool.Acquire(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	if err := s.ensureSchema(ctx, conn); err != nil {
		return summary, err
	}

	tx, err := conn.Begin(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, rec := range records {
		tag, err := tx.Exec(ctx, postgresInsertHistory, rec.Rank, rec.Elo, rec.UserID, rec.Username)
		if err != nil {
			return UpsertSummary{}, fmt.Errorf("failed to insert history for userid=%s: %w", rec.UserID, err)
		}

		if n := tag.RowsAffected(); n > 0 {
			summary.Inserted += n
		} else {
			summary.Unchanged++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return UpsertSummary{}, fmt.Errorf("failed to commit history batch: %w", err)
	}

	log.Debug().
		Int64("inserted", summary.Inserted).
		Int64("unchanged", summary.Unchanged).
		Msg("Username history batch committed")

	return summary, nil
}

// History implements UsernameStore
func (s *PostgresStore) History(ctx context.Context, userID string) ([]models.UsernameHistoryRow, error) {
	rows, err := s.Pool.Query(ctx, postgresSelectHistory+` WHERE userid = $1 ORDER BY id`, userID)
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
func (s *PostgresStore) Current(ctx context.Context, userID string) (*models.UsernameHistoryRow, error) {
	var row models.UsernameHistoryRow
	err := s.Pool.QueryRow(ctx, postgresSelectHistory+` WHERE userid = $1 AND is_current`, userID).Scan(
		&row.ID, &row.Rank, &row.Elo, &row.UserID, &row.Username,
		&row.StartDate, &row.EndDate, &row.IsCurrent,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("current username for userid=%s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get current username: %w", err)
	}
	return &row, nil
}

// Health checks if the database is healthy
func (s *PostgresStore) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.Pool.Ping(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	return nil
}

// PoolStats returns database pool statistics
func (s *PostgresStore) PoolStats() map[string]interface{} {
	stat := s.Pool.Stat()
	return map[string]interface{}{
		"total_conns":    stat.TotalConns(),
		"acquired_conns": stat.AcquiredConns(),
		"idle_conns":     stat.IdleConns(),
		"max_conns":      stat.MaxConns(),
	}
}

// Close closes the database connection pool
func (s *PostgresStore) Close() {
	if s.Pool != nil {
		s.Pool.Close()
		log.Info().Msg("Database connection pool closed")
	}
}
