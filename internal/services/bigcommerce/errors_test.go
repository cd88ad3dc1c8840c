package bigcommerce

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "deadline reached" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"net timeout", &net.OpError{Op: "read", Net: "tcp", Err: timeoutError{}}, true},
		{"wrapped i/o timeout", fmt.Errorf("failed to make request: %w", errors.New("read tcp: i/o timeout")), true},
		{"connection reset", errors.New("read: connection reset by peer"), true},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", fmt.Errorf("failed to make request: %w", context.Canceled), false},
		{"bad gateway", &StatusError{StatusCode: 502}, true},
		{"service unavailable", fmt.Errorf("page 3: %w", &StatusError{StatusCode: 503}), true},
		{"not found", &StatusError{StatusCode: 404}, false},
		{"decode", errors.New("failed to decode response: invalid character"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}
