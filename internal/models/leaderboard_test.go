package models

import (
	"database/sql"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripPrefix(t *testing.T) {
	assert.Equal(t, "12345", StripPrefix("u29_12345", DefaultUserIDPrefix))
	assert.Equal(t, "77777", StripPrefix("77777", DefaultUserIDPrefix), "ids without the prefix are left alone")
	assert.Equal(t, "x_u29_1", StripPrefix("x_u29_1", DefaultUserIDPrefix), "only a leading prefix is stripped")
}

func TestEloCeiling(t *testing.T) {
	cases := map[string]int64{
		"1500.0":  1500,
		"1500.1":  1501,
		"1499.99": 1500,
		"1000.2":  1001,
		"-3.5":    -3,
	}
	for in, want := range cases {
		assert.Equal(t, want, EloCeiling(decimal.RequireFromString(in)), "ceiling of %s", in)
	}
}

func TestParseSnapshot(t *testing.T) {
	snap, err := ParseSnapshot([]byte(`{"rows":[{"id":"u29_1","key":"A","value":1000.2},{"id":42,"key":7,"value":"99.5"}]}`))
	require.NoError(t, err)
	require.Len(t, snap.Rows, 2)

	assert.Equal(t, FlexString("u29_1"), snap.Rows[0].ID)
	assert.Equal(t, FlexString("A"), snap.Rows[0].Key)
	assert.Equal(t, int64(1001), EloCeiling(snap.Rows[0].Value))

	assert.Equal(t, FlexString("42"), snap.Rows[1].ID, "numeric ids keep their text form")
	assert.Equal(t, FlexString("7"), snap.Rows[1].Key)
	assert.Equal(t, int64(100), EloCeiling(snap.Rows[1].Value))
}

func TestParseSnapshot_Malformed(t *testing.T) {
	inputs := []string{
		`{}`,
		`{"rows": "not-a-list"}`,
		`{"rows": null}`,
		`{"rows": {"id": "u29_1"}}`,
		`[]`,
		`not json`,
	}
	for _, in := range inputs {
		_, err := ParseSnapshot([]byte(in))
		assert.ErrorIs(t, err, ErrMalformedSnapshot, "input %q", in)
	}
}

func TestParseSnapshot_EmptyRows(t *testing.T) {
	snap, err := ParseSnapshot([]byte(`{"rows": []}`))
	require.NoError(t, err)
	assert.Empty(t, snap.Rows)
}

func TestLeaderboardEntry_ToResolvedRecord(t *testing.T) {
	entry := LeaderboardEntry{ID: "u29_1", Key: "A", Value: decimal.RequireFromString("1000.2")}

	rec := entry.ToResolvedRecord(1, DefaultUserIDPrefix, sql.NullString{String: "Zed", Valid: true})

	assert.Equal(t, ResolvedRecord{
		Position: 1,
		UserID:   "1",
		Username: sql.NullString{String: "Zed", Valid: true},
		Rank:     "A",
		Elo:      1001,
	}, rec)
}
