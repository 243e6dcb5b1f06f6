package models

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxLeaderboardEntries caps how many snapshot rows a single run resolves
const MaxLeaderboardEntries = 500

// DefaultUserIDPrefix is the namespace prefix the leaderboard puts in front of numeric ids
const DefaultUserIDPrefix = "u29_"

// ErrMalformedSnapshot is returned when a snapshot document has no usable rows array
var ErrMalformedSnapshot = errors.New("malformed leaderboard snapshot")

// FlexString accepts either a JSON string or a JSON number and keeps its text form
type FlexString string

// UnmarshalJSON implements json.Unmarshaler
func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", string(data))
	}
	*f = FlexString(n.String())
	return nil
}

// LeaderboardEntry is a single row of the downloaded leaderboard
type LeaderboardEntry struct {
	ID    FlexString      `json:"id"`    // Prefixed numeric user id, e.g. "u29_12345"
	Key   FlexString      `json:"key"`   // Rank label
	Value decimal.Decimal `json:"value"` // Raw rating
}

// Snapshot is a previously downloaded leaderboard document
type Snapshot struct {
	Rows []LeaderboardEntry `json:"rows"`
}

// ParseSnapshot decodes a leaderboard document.
// The document must be an object whose rows field is an array.
func ParseSnapshot(data []byte) (*Snapshot, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}

	raw, ok := doc["rows"]
	if !ok {
		return nil, fmt.Errorf("%w: rows not found", ErrMalformedSnapshot)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, fmt.Errorf("%w: rows is not a list", ErrMalformedSnapshot)
	}

	var snap Snapshot
	if err := json.Unmarshal(raw, &snap.Rows); err != nil {
		return nil, fmt.Errorf("failed to decode leaderboard rows: %w", err)
	}
	return &snap, nil
}

// StripPrefix removes prefix from id when present; ids without it are returned unchanged
func StripPrefix(id, prefix string) string {
	return strings.TrimPrefix(id, prefix)
}

// EloCeiling rounds a raw rating up to the next whole number
func EloCeiling(value decimal.Decimal) int64 {
	return value.Ceil().IntPart()
}

// ResolvedRecord is one leaderboard entry with its display name resolved
type ResolvedRecord struct {
	Position int            `json:"position"` // 1-based order in the snapshot
	UserID   string         `json:"userid"`
	Username sql.NullString `json:"username"`
	Rank     string         `json:"rank"`
	Elo      int64          `json:"elo"`
}

// ToResolvedRecord converts a leaderboard entry into a resolved record
func (e *LeaderboardEntry) ToResolvedRecord(position int, prefix string, username sql.NullString) ResolvedRecord {
	return ResolvedRecord{
		Position: position,
		UserID:   StripPrefix(string(e.ID), prefix),
		Username: username,
		Rank:     string(e.Key),
		Elo:      EloCeiling(e.Value),
	}
}
