package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"yesman/middleman/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApp_IngestEndToEnd(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/leaderboard":
			fmt.Fprint(w, `{"rows":[{"id":"u29_1","key":"A","value":1000.2},{"id":"u29_2","key":"B","value":999}]}`)
		case r.URL.Path == "/history/1":
			fmt.Fprintf(w, `<table><tr><td>fulda</td><td>x</td><td><a href="%s/profile/1">g</a></td></tr></table>`, srv.URL)
		case strings.HasPrefix(r.URL.Path, "/history/"):
			fmt.Fprint(w, `<table><tr><td>other</td><td>x</td><td><a href="/nowhere">g</a></td></tr></table>`)
		case r.URL.Path == "/profile/1":
			fmt.Fprint(w, `<p><b>Zed</b></p>`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	cfg := &config.Config{
		LeaderboardURL: srv.URL + "/leaderboard",
		HistoryBaseURL: srv.URL + "/history/",
		HTTPTimeout:    5 * time.Second,
		SnapshotPath:   filepath.Join(dir, "resources", "leaderboard.json"),
		MaxEntries:     500,
		UserIDPrefix:   "u29_",
		GameFilter:     "fulda",
		MaxHistoryRows: 10,
		RequestRPS:     1000,
		RequestBurst:   100,
		RepeatInterval: time.Hour,
		DatabaseDriver: config.DriverSQLite,
		SQLitePath:     filepath.Join(dir, "database", "yesman.db"),
	}
	require.NoError(t, cfg.Validate())

	ctx := context.Background()
	a, err := New(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.Job.Ingest(ctx))

	data, err := os.ReadFile(cfg.SnapshotPath)
	require.NoError(t, err, "snapshot was written")
	assert.True(t, strings.HasPrefix(string(data), "{\n  \"rows\": ["), "snapshot is indented: %s", data)

	current, err := a.Store.Current(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "Zed", current.Username.String)
	assert.Equal(t, int64(1001), current.Elo)
	assert.Equal(t, "A", current.Rank)

	unresolved, err := a.Store.Current(ctx, "2")
	require.NoError(t, err)
	assert.False(t, unresolved.Username.Valid)
	assert.Equal(t, int64(999), unresolved.Elo)
}
