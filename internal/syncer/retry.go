package syncer

import (
	"context"
	"fmt"
	"time"

	"catalogsync/internal/gateway"
	"catalogsync/internal/logger"
)

const (
	defaultRetryAttempts = 3
	defaultRetryBackoff  = 500 * time.Millisecond
)

// RetryPolicy repeats a unit of work that failed with a transient error,
// waiting BaseBackoff * 2^retry between attempts.
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	Clock       gateway.Clock
	IsTransient func(error) bool
}

func (p RetryPolicy) withDefaults(isTransient func(error) bool) RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultRetryAttempts
	}
	if p.BaseBackoff <= 0 {
		p.BaseBackoff = defaultRetryBackoff
	}
	if p.Clock == nil {
		p.Clock = gateway.RealClock{}
	}
	if p.IsTransient == nil {
		p.IsTransient = isTransient
	}
	return p
}

// Do runs fn until it succeeds, fails permanently or runs out of attempts.
// It returns the number of attempts made.
func (p RetryPolicy) Do(ctx context.Context, log *logger.Logger, what string, fn func(ctx context.Context) error) (int, error) {
	var err error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 {
			wait := p.BaseBackoff * time.Duration(1<<(attempt-1))
			log.Warn("retrying %s in %s (attempt %d/%d): %v", what, wait, attempt+1, p.MaxAttempts, err)
			if sleepErr := p.Clock.Sleep(ctx, wait); sleepErr != nil {
				return attempt, fmt.Errorf("%s: %w", what, sleepErr)
			}
		}

		err = fn(ctx)
		if err == nil {
			return attempt + 1, nil
		}
		if !p.IsTransient(err) {
			return attempt + 1, err
		}
	}
	return p.MaxAttempts, fmt.Errorf("%s after %d attempts: %w", what, p.MaxAttempts, err)
}
