package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"syscall"
	"testing"
	"time"

	"github.com/licitaradar/licitaradar/internal/retry"
)

func TestRetryPolicy_Delays(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		calls int
		want  []time.Duration
	}{
		{"rate limited waits a minute", fmt.Errorf("x: %w", ErrRateLimited), 3, []time.Duration{quotaDelay, quotaDelay}},
		{"overload backs off", fmt.Errorf("x: %w", ErrOverloaded), 3, []time.Duration{2 * time.Second, 4 * time.Second}},
		{"connection reset backs off", &url.Error{Op: "Post", URL: "https://x", Err: syscall.ECONNRESET}, 3, []time.Duration{2 * time.Second, 4 * time.Second}},
		{"dial timeout backs off", fmt.Errorf("gemini generate: %w", &net.OpError{Op: "dial", Net: "tcp", Err: timeoutErr{}}), 3, []time.Duration{2 * time.Second, 4 * time.Second}},
		{"other errors fail fast", errors.New("bad request"), 1, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := RetryPolicy()
			var slept []time.Duration
			p.Sleep = func(_ context.Context, d time.Duration) error {
				slept = append(slept, d)
				return nil
			}
			calls := 0
			err := retry.Do(context.Background(), p, func(context.Context) error {
				calls++
				return tt.err
			})
			if err == nil {
				t.Fatal("expected error")
			}
			if calls != tt.calls {
				t.Errorf("calls = %d, want %d", calls, tt.calls)
			}
			if fmt.Sprint(slept) != fmt.Sprint(tt.want) {
				t.Errorf("slept = %v, want %v", slept, tt.want)
			}
		})
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsNetworkError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"url error", &url.Error{Op: "Get", URL: "https://x", Err: errors.New("EOF")}, true},
		{"wrapped net error", fmt.Errorf("embed: %w", &net.OpError{Op: "read", Net: "tcp", Err: syscall.ECONNRESET}), true},
		{"cancelled request", &url.Error{Op: "Post", URL: "https://x", Err: context.Canceled}, false},
		{"deadline", fmt.Errorf("x: %w", context.DeadlineExceeded), false},
		{"plain error", errors.New("invalid argument"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNetworkError(tt.err); got != tt.want {
				t.Errorf("IsNetworkError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
