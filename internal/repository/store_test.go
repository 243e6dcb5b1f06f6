package repository

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"yesman/middleman/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var userSeq atomic.Int64

// uniqueUserID keeps tests independent when they share a database
func uniqueUserID() string {
	return fmt.Sprintf("%d%03d", time.Now().UnixNano(), userSeq.Add(1))
}

func name(s string) sql.NullString {
	return sql.NullString{String: s, Valid: true}
}

func record(userID string, username sql.NullString) models.ResolvedRecord {
	return models.ResolvedRecord{Position: 1, UserID: userID, Username: username, Rank: "A", Elo: 1500}
}

func setupSQLiteStore(t *testing.T) (UsernameStore, context.Context) {
	ctx := context.Background()
	store, err := NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "database", "yesman.db"))
	require.NoError(t, err, "Failed to open test database")
	t.Cleanup(store.Close)
	return store, ctx
}

// storeContract runs the behaviour every UsernameStore backend must share
func storeContract(t *testing.T, setup func(t *testing.T) (UsernameStore, context.Context)) {
	t.Run("idempotent for unchanged username", func(t *testing.T) {
		store, ctx := setup(t)
		uid := uniqueUserID()

		summary, err := store.UpsertHistory(ctx, []models.ResolvedRecord{record(uid, name("Bob"))})
		require.NoError(t, err)
		assert.Equal(t, int64(1), summary.Inserted)

		summary, err = store.UpsertHistory(ctx, []models.ResolvedRecord{record(uid, name("Bob"))})
		require.NoError(t, err)
		assert.Equal(t, int64(0), summary.Inserted, "second upsert must not insert")
		assert.Equal(t, int64(1), summary.Unchanged)

		history, err := store.History(ctx, uid)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.True(t, history[0].IsCurrent)
		assert.True(t, history[0].IsOpen())
		assert.Equal(t, "Bob", history[0].Username.String)
	})

	t.Run("supersedes changed username", func(t *testing.T) {
		store, ctx := setup(t)
		uid := uniqueUserID()

		_, err := store.UpsertHistory(ctx, []models.ResolvedRecord{record(uid, name("Bob"))})
		require.NoError(t, err)
		_, err = store.UpsertHistory(ctx, []models.ResolvedRecord{record(uid, name("Alice"))})
		require.NoError(t, err)

		history, err := store.History(ctx, uid)
		require.NoError(t, err)
		require.Len(t, history, 2)

		bob, alice := history[0], history[1]
		assert.Equal(t, "Bob", bob.Username.String)
		assert.False(t, bob.IsCurrent)
		assert.False(t, bob.IsOpen(), "superseded row must be closed")
		assert.False(t, bob.EndDate.Before(bob.StartDate))

		assert.Equal(t, "Alice", alice.Username.String)
		assert.True(t, alice.IsCurrent)
		assert.True(t, alice.IsOpen())

		current, err := store.Current(ctx, uid)
		require.NoError(t, err)
		assert.Equal(t, alice.ID, current.ID)
	})

	t.Run("reverting to an old name opens a new row", func(t *testing.T) {
		store, ctx := setup(t)
		uid := uniqueUserID()

		for _, n := range []string{"Bob", "Alice", "Bob"} {
			_, err := store.UpsertHistory(ctx, []models.ResolvedRecord{record(uid, name(n))})
			require.NoError(t, err)
		}

		history, err := store.History(ctx, uid)
		require.NoError(t, err)
		require.Len(t, history, 3)

		currents := 0
		for _, row := range history {
			if row.IsCurrent {
				currents++
			}
		}
		assert.Equal(t, 1, currents)
		assert.Equal(t, "Bob", history[2].Username.String)
		assert.True(t, history[2].IsCurrent)
	})

	t.Run("absent username is stored and not duplicated", func(t *testing.T) {
		store, ctx := setup(t)
		uid := uniqueUserID()

		_, err := store.UpsertHistory(ctx, []models.ResolvedRecord{record(uid, sql.NullString{})})
		require.NoError(t, err)
		_, err = store.UpsertHistory(ctx, []models.ResolvedRecord{record(uid, sql.NullString{})})
		require.NoError(t, err)

		history, err := store.History(ctx, uid)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.False(t, history[0].Username.Valid)
		assert.True(t, history[0].IsCurrent)

		_, err = store.UpsertHistory(ctx, []models.ResolvedRecord{record(uid, name("Zed"))})
		require.NoError(t, err)

		current, err := store.Current(ctx, uid)
		require.NoError(t, err)
		assert.Equal(t, "Zed", current.Username.String)
	})

	t.Run("batch covers many users", func(t *testing.T) {
		store, ctx := setup(t)
		a, b := uniqueUserID(), uniqueUserID()

		summary, err := store.UpsertHistory(ctx, []models.ResolvedRecord{
			{Position: 1, UserID: a, Username: name("Ann"), Rank: "Gold", Elo: 2001},
			{Position: 2, UserID: b, Username: name("Ben"), Rank: "Silver", Elo: 1800},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2), summary.Inserted)

		current, err := store.Current(ctx, a)
		require.NoError(t, err)
		assert.Equal(t, "Gold", current.Rank)
		assert.Equal(t, int64(2001), current.Elo)
	})

	t.Run("current not found", func(t *testing.T) {
		store, ctx := setup(t)

		_, err := store.Current(ctx, uniqueUserID())
		assert.ErrorIs(t, err, ErrNotFound)

		history, err := store.History(ctx, uniqueUserID())
		require.NoError(t, err)
		assert.Empty(t, history)
	})

	t.Run("health", func(t *testing.T) {
		store, ctx := setup(t)
		assert.NoError(t, store.Health(ctx))
	})
}

func TestSQLiteStore(t *testing.T) {
	storeContract(t, setupSQLiteStore)
}

func TestSQLiteStore_FailedBatchWritesNothing(t *testing.T) {
	store, ctx := setupSQLiteStore(t)
	uid := uniqueUserID()

	cancelled, cancel := context.WithCancel(ctx)
	cancel()

	_, err := store.UpsertHistory(cancelled, []models.ResolvedRecord{record(uid, name("Bob"))})
	assert.Error(t, err)

	history, err := store.History(ctx, uid)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "mysql"})
	assert.Error(t, err)
}

func TestOpen_SQLite(t *testing.T) {
	store, err := Open(context.Background(), Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "yesman.db")})
	require.NoError(t, err)
	defer store.Close()

	assert.IsType(t, &SQLiteStore{}, store)
}
