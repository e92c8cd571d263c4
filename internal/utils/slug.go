package utils

import (
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// unixEpochOrdinal is the proleptic Gregorian ordinal of 1970-01-01,
// counting 0001-01-01 as day 1.
const unixEpochOrdinal = 719163

// Slugify folds s to ASCII (compatibility decomposition, other characters
// dropped), lower-cases it, keeps letters, digits and underscores, and
// collapses runs of spaces and hyphens into one hyphen.
func Slugify(s string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(norm.NFKD.String(strings.TrimSpace(s))) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
		case r == '-' || r == ' ' || r == '\t' || r == '\n':
			pendingDash = true
		}
	}
	return b.String()
}

// DateOrdinal returns the day ordinal of t's calendar date (UTC).
func DateOrdinal(t time.Time) int {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return unixEpochOrdinal + int(day.Unix()/86400)
}
