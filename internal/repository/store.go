package repository

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"

	"yesman/middleman/internal/models"
)

// TableUsernames is the slowly-changing username history table
const TableUsernames = "tbl_usernames"

// ErrNotFound is returned when no current row exists for a user
var ErrNotFound = errors.New("not found")

// UpsertSummary reports what a batch upsert did
type UpsertSummary struct {
	Inserted  int64 // New current rows (including ones that superseded an older row)
	Unchanged int64 // Records whose (userid, username) was already current
}

// UsernameStore persists resolved records as a slowly-changing dimension.
// At most one row per userid is current; a changed username closes the old
// row and opens a new one in the same statement.
type UsernameStore interface {
	// UpsertHistory writes a whole batch in one transaction on one connection
	UpsertHistory(ctx context.Context, records []models.ResolvedRecord) (UpsertSummary, error)
	// History returns every row for a user, oldest first
	History(ctx context.Context, userID string) ([]models.UsernameHistoryRow, error)
	// Current returns the current row for a user or ErrNotFound
	Current(ctx context.Context, userID string) (*models.UsernameHistoryRow, error)
	Health(ctx context.Context) error
	Close()
}

// Config holds database configuration
type Config struct {
	Driver string // "sqlite" or "postgres"

	// SQLite
	Path string

	// PostgreSQL
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
}

// DSN returns the PostgreSQL connection URL with user info escaped
func (c Config) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, c.Port),
		Path:     "/" + c.Database,
	}
	if c.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {c.SSLMode}}.Encode()
	}
	return u.String()
}

// Open connects to the configured backend and creates the schema
func Open(ctx context.Context, cfg Config) (UsernameStore, error) {
	switch cfg.Driver {
	case "sqlite", "":
		return NewSQLiteStore(ctx, cfg.Path)
	case "postgres":
		return NewPostgresStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}
