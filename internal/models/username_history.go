package models

import (
	"database/sql"
	"time"
)

// OpenEndDate marks the end_date of the current row for a user
var OpenEndDate = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)

// UsernameHistoryRow is a single validity interval of a (userid, username) association
type UsernameHistoryRow struct {
	ID        int64          `db:"id"`
	Rank      string         `db:"rank"`
	Elo       int64          `db:"elo"`
	UserID    string         `db:"userid"`
	Username  sql.NullString `db:"username"`
	StartDate time.Time      `db:"start_date"`
	EndDate   time.Time      `db:"end_date"`
	IsCurrent bool           `db:"is_current"`
}

// IsOpen reports whether the row still carries the far-future end date
func (r *UsernameHistoryRow) IsOpen() bool {
	return !r.EndDate.Before(OpenEndDate)
}
