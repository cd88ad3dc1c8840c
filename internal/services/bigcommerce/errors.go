package bigcommerce

import (
	"context"
	"errors"
	"net"
	"net/http"
	"regexp"
)

var transientPattern = regexp.MustCompile(`(?i)(connection (refused|reset|closed)|broken pipe|timeout|timed out|unexpected EOF|server closed idle connection)`)

// IsTransient reports whether a failed upstream call is worth repeating:
// network timeouts, dropped connections and 5xx responses. Quota errors are
// retried by the gateway and are not transient here.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= http.StatusInternalServerError
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return transientPattern.MatchString(err.Error())
}
