package ratelimit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFixedWindowBudget(t *testing.T) {
	current := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore().WithClock(func() time.Time { return current })

	limiter := New(store, Config{Limit: 3, Window: time.Minute}, discardLogger())

	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		d := limiter.Check(ctx, "203.0.113.7")

		if !d.Allowed {
			t.Fatalf("request %d: expected allowed, got denied", i)
		}

		if want := 3 - i; d.Remaining != want {
			t.Fatalf("request %d: remaining = %d, want %d", i, d.Remaining, want)
		}
	}

	// The (K+1)-th request inside the window is denied.
	d := limiter.Check(ctx, "203.0.113.7")

	if d.Allowed {
		t.Fatal("4th request in window: expected denied")
	}

	if d.RetryAfter <= 0 {
		t.Fatalf("denied decision should carry a retry hint, got %v", d.RetryAfter)
	}

	// A different identity is unaffected.
	if d := limiter.Check(ctx, "198.51.100.9"); !d.Allowed {
		t.Fatal("separate identity should not share the budget")
	}

	// Once the window elapses the budget resets.
	current = current.Add(61 * time.Second)

	if d := limiter.Check(ctx, "203.0.113.7"); !d.Allowed {
		t.Fatal("request after window elapsed: expected allowed")
	}
}

type failingStore struct{}

func (failingStore) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	return 0, 0, errors.New("counter store down")
}

func TestStoreFailurePolicy(t *testing.T) {
	ctx := context.Background()

	closed := New(failingStore{}, Config{Limit: 5, Window: time.Minute, FailOpen: false}, discardLogger())

	if d := closed.Check(ctx, "10.0.0.1"); d.Allowed {
		t.Fatal("fail-closed limiter must deny when the store is down")
	}

	open := New(failingStore{}, Config{Limit: 5, Window: time.Minute, FailOpen: true}, discardLogger())

	if d := open.Check(ctx, "10.0.0.1"); !d.Allowed {
		t.Fatal("fail-open limiter must allow when the store is down")
	}
}
