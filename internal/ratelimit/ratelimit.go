package ratelimit

import (
	"context"
	"log/slog"
	"time"
)

// Decision is the outcome of gating one request identity against the
// window budget. RetryAfter is only meaningful when Allowed is false.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// CounterStore increments the window counter for a key and reports the
// count after the increment plus the time left in the current window.
// Implementations must make the increment atomic.
type CounterStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)
}

type Config struct {
	Limit  int
	Window time.Duration
	// FailOpen controls behavior when the counter store is unreachable:
	// true allows the request through, false denies it. The safe default
	// for signup/signin is fail-closed.
	FailOpen bool
}

// Limiter gates an identity against a fixed-window request budget backed
// by a remote counter.
type Limiter struct {
	store  CounterStore
	cfg    Config
	log    *slog.Logger
	prefix string
}

func New(store CounterStore, cfg Config, log *slog.Logger) *Limiter {
	if cfg.Limit <= 0 {
		cfg.Limit = 5
	}

	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}

	return &Limiter{
		store:  store,
		cfg:    cfg,
		log:    log,
		prefix: "ratelimit:",
	}
}

func (l *Limiter) Check(ctx context.Context, identity string) Decision {
	count, ttl, err := l.store.Incr(ctx, l.prefix+identity, l.cfg.Window)

	if err != nil {
		l.log.ErrorContext(ctx, "rate limit store unavailable",
			"identity", identity,
			"fail_open", l.cfg.FailOpen,
			"err", err,
		)

		if l.cfg.FailOpen {
			return Decision{Allowed: true, Remaining: l.cfg.Limit}
		}

		return Decision{Allowed: false, RetryAfter: l.cfg.Window}
	}

	if count > int64(l.cfg.Limit) {
		retry := ttl

		if retry <= 0 {
			retry = l.cfg.Window
		}

		return Decision{Allowed: false, RetryAfter: retry}
	}

	return Decision{Allowed: true, Remaining: l.cfg.Limit - int(count)}
}
