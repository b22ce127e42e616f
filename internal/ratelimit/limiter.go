package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"kycverify/pkg/platform/circuit"
)

// Class groups endpoints that share a budget.
type Class string

const (
	ClassSubmit Class = "submit"
	ClassRead   Class = "read"
)

// Limit is a request budget per window.
type Limit struct {
	Requests int
	Window   time.Duration
}

// Limiter checks a key against its class budget. While the primary store
// keeps failing the breaker routes checks to the in-memory fallback.
type Limiter struct {
	primary  Store
	fallback Store
	breaker  *circuit.Breaker
	limits   map[Class]Limit
	logger   *slog.Logger
}

func NewLimiter(primary Store, limits map[Class]Limit, logger *slog.Logger) *Limiter {
	return &Limiter{
		primary:  primary,
		fallback: NewInMemory(),
		breaker:  circuit.New("ratelimit"),
		limits:   limits,
		logger:   logger,
	}
}

// Check reports whether key may make another request of class. Degraded is
// true when the fallback answered. A class without a budget is unlimited.
func (l *Limiter) Check(ctx context.Context, key string, class Class) (res Result, degraded bool, err error) {
	limit, ok := l.limits[class]
	if !ok || limit.Requests <= 0 {
		return Result{Allowed: true}, false, nil
	}
	key = string(class) + ":" + key

	if l.primary == nil {
		res, err = l.fallback.Allow(ctx, key, limit.Requests, limit.Window)
		return res, false, err
	}
	if l.breaker.Allow() {
		res, err = l.primary.Allow(ctx, key, limit.Requests, limit.Window)
		if err == nil {
			if _, change := l.breaker.RecordSuccess(); change.Closed {
				l.logger.InfoContext(ctx, "rate limit store recovered")
			}
			return res, false, nil
		}
		if _, change := l.breaker.RecordFailure(); change.Opened {
			l.logger.WarnContext(ctx, "rate limit store failing, using in-memory fallback", "error", err)
		}
	}
	res, err = l.fallback.Allow(ctx, key, limit.Requests, limit.Window)
	return res, true, err
}
