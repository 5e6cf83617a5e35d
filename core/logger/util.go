package logger

import (
	"strings"
	"time"
)

// Took returns the time elapsed since start in whole milliseconds.
func Took(start time.Time) time.Duration { return RoundMS(time.Since(start)) }

// RoundMS rounds d to the millisecond. Negative durations become zero.
func RoundMS(d time.Duration) time.Duration { return max(d, 0).Round(time.Millisecond) }

// SummarizeStrings joins at most limit values and reports whether any were left out.
func SummarizeStrings(values []string, limit int) (string, bool) {
	limit = max(limit, 0)
	if len(values) <= limit {
		return strings.Join(values, ", "), false
	}
	return strings.Join(values[:limit], ", "), true
}
