package store

import (
	"database/sql"
	"time"
)

// parseNullTime converts a nullable RFC3339 column into *time.Time, matching
// the parse_datetime_prop/parse_datetime_str leniency in the original
// implementation: a malformed timestamp is treated as absent rather than
// failing the whole read.
func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		t, err = time.Parse(time.RFC3339, ns.String)
		if err != nil {
			return nil
		}
	}
	t = t.UTC()
	return &t
}
