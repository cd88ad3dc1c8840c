package repository

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/lib/pq"
)

var transientPattern = regexp.MustCompile(`(?i)(connection (refused|reset|closed)|broken pipe|timeout|timed out|deadline exceeded|database is locked|too many connections|deadlock|i/o timeout|EOF)`)

// IsTransient reports whether a storage error is worth retrying: lost
// connections, timeouts, lock contention.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case strings.HasPrefix(string(pqErr.Code), "08"): // connection exception
			return true
		case pqErr.Code == "40001", pqErr.Code == "40P01": // serialization failure, deadlock
			return true
		case strings.HasPrefix(string(pqErr.Code), "57"): // operator intervention
			return true
		}
		return false
	}

	return transientPattern.MatchString(err.Error())
}
