// Package durationparse resolves the "since" filters accepted by event_list
// and report_generate: either a short duration string ("7d", "24h", "30m",
// "10s", "2w") or an absolute YYYY-MM-DD date. Grounded on
// original_source/src/time_utils.rs's parse_duration/parse_date_filter.
package durationparse

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/wayfind/intent-engine/internal/ierr"
)

// Resolve parses input as a duration-ago string first, falling back to a
// YYYY-MM-DD date. now is the reference point "ago" is relative to.
func Resolve(input string, now time.Time) (time.Time, error) {
	input = strings.TrimSpace(input)

	if t, err := parseDuration(input, now); err == nil {
		return t, nil
	}

	if d, err := time.Parse("2006-01-02", input); err == nil {
		return d, nil
	}

	return time.Time{}, ierr.InvalidInput(fmt.Sprintf("invalid date format %q: use a duration (7d, 1w) or a date (2025-01-01)", input))
}

func parseDuration(input string, now time.Time) (time.Time, error) {
	if len(input) < 2 {
		return time.Time{}, ierr.InvalidInput("duration must be in format like '7d', '24h', '30m', '5w', or '10s'")
	}

	numPart, unit := input[:len(input)-1], input[len(input)-1:]
	n, err := strconv.ParseInt(numPart, 10, 64)
	if err != nil {
		return time.Time{}, ierr.InvalidInput(fmt.Sprintf("invalid number in duration: %q", numPart))
	}

	var offset time.Duration
	switch unit {
	case "d":
		offset = time.Duration(n) * 24 * time.Hour
	case "h":
		offset = time.Duration(n) * time.Hour
	case "m":
		offset = time.Duration(n) * time.Minute
	case "s":
		offset = time.Duration(n) * time.Second
	case "w":
		offset = time.Duration(n) * 7 * 24 * time.Hour
	default:
		return time.Time{}, ierr.InvalidInput(fmt.Sprintf("invalid duration unit %q: use d, h, m, s, or w", unit))
	}

	return now.Add(-offset), nil
}
