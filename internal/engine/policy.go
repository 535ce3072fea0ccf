package engine

import (
	"context"
	"errors"
	"net"
	"net/url"
	"time"

	"github.com/licitaradar/licitaradar/internal/retry"
)

const (
	quotaDelay    = 61 * time.Second
	overloadBase  = 2 * time.Second
	modelAttempts = 3
)

// RetryPolicy is the retry table for generative model calls: quota
// exhaustion waits out the provider's per-minute window, overload and
// transport failures back off exponentially. Other errors are not retried.
func RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: modelAttempts,
		Rules: []retry.Rule{
			{Name: "rate-limited", Match: IsRateLimited, Delay: retry.Fixed(quotaDelay)},
			{Name: "overloaded", Match: IsOverloaded, Delay: retry.Exponential(overloadBase)},
			{Name: "network", Match: IsNetworkError, Delay: retry.Exponential(overloadBase)},
		},
	}
}

func IsRateLimited(err error) bool { return errors.Is(err, ErrRateLimited) }

func IsOverloaded(err error) bool { return errors.Is(err, ErrOverloaded) }

// IsNetworkError reports transport failures such as connection resets and
// dial or read timeouts. Context cancellation and deadlines are excluded.
func IsNetworkError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
