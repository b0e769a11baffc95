package ratelimit

import (
	"context"
	"sync"
	"time"

	"eduops-notify/utils"
)

// Limiter is the single point of cross-worker coordination for outbound
// sends. The external relay enforces a per-minute cap; exceeding it
// degrades the whole account, so every dispatch worker shares one
// limiter instance.
type Limiter interface {
	// Allow consumes one send slot if available. When denied it
	// returns the duration until the next slot opens.
	Allow(ctx context.Context) (bool, time.Duration, error)
	// Wait blocks until a slot is consumed or the context is done.
	Wait(ctx context.Context) error
}

type fixedWindow struct {
	count       int
	windowStart time.Time
}

// FixedWindowLimiter counts sends in fixed windows (default one
// minute). It is safe for concurrent use.
type FixedWindowLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	clock  utils.Clock
	state  fixedWindow
}

// NewFixedWindowLimiter builds a limiter allowing limit sends per
// window. A nil clock falls back to the system clock.
func NewFixedWindowLimiter(limit int, window time.Duration, clock utils.Clock) *FixedWindowLimiter {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	if window <= 0 {
		window = time.Minute
	}
	return &FixedWindowLimiter{
		limit:  limit,
		window: window,
		clock:  clock,
	}
}

func (l *FixedWindowLimiter) Allow(ctx context.Context) (bool, time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return false, 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if l.state.windowStart.IsZero() || now.Sub(l.state.windowStart) >= l.window {
		l.state = fixedWindow{count: 0, windowStart: now}
	}

	if l.state.count >= l.limit {
		retryAfter := l.window - now.Sub(l.state.windowStart)
		return false, retryAfter, nil
	}

	l.state.count++
	return true, 0, nil
}

func (l *FixedWindowLimiter) Wait(ctx context.Context) error {
	for {
		allowed, retryAfter, err := l.Allow(ctx)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		timer := time.NewTimer(retryAfter)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Unlimited is a pass-through limiter for tests and development.
type Unlimited struct{}

func (Unlimited) Allow(ctx context.Context) (bool, time.Duration, error) {
	return true, 0, ctx.Err()
}

func (Unlimited) Wait(ctx context.Context) error { return ctx.Err() }
