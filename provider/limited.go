package provider

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Limited wraps a Provider with a token-bucket rate limit and a per-call
// timeout so background subsystems cannot exhaust provider capacity.
type Limited struct {
	next    Provider
	limiter *rate.Limiter
	timeout time.Duration
}

// NewLimited wraps next. A non-positive perSecond disables rate limiting;
// a non-positive timeout leaves the caller's deadline alone.
func NewLimited(next Provider, perSecond float64, burst int, timeout time.Duration) *Limited {
	l := &Limited{next: next, timeout: timeout}
	if perSecond > 0 {
		if burst < 1 {
			burst = 1
		}
		l.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
	return l
}

func (l *Limited) Invoke(ctx context.Context, role Role, prompt string, opts Options) (*Response, error) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	if l.limiter != nil {
		if err := l.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}
	return l.next.Invoke(ctx, role, prompt, opts)
}

// WithTimeout bounds every call made through p.
func WithTimeout(p Provider, timeout time.Duration) Provider {
	return Func(func(ctx context.Context, role Role, prompt string, opts Options) (*Response, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return p.Invoke(ctx, role, prompt, opts)
	})
}
