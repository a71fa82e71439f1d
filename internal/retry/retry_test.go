package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sapphirelabs/sapphire-exchange/internal/domain"
)

func instantPolicy(attempts int) *Policy {
	p := NewPolicy(attempts, time.Millisecond)
	p.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return p
}

func TestDoSucceedsFirstTry(t *testing.T) {
	calls := 0
	err := instantPolicy(3).Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestDoRetriesRetryableErrors(t *testing.T) {
	calls := 0
	err := instantPolicy(3).Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return &domain.NetworkError{Op: "send", Err: errors.New("connection reset")}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	fatal := domain.Validation("title", "required")
	calls := 0
	err := instantPolicy(3).Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return fatal
	})
	if !errors.Is(err, fatal) {
		t.Fatalf("Do = %v, want %v", err, fatal)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (no retry on validation error)", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	transient := &domain.TimeoutError{Op: "publish"}
	calls := 0
	err := instantPolicy(3).Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return transient
	})
	if err == nil {
		t.Fatal("Do succeeded, want exhaustion error")
	}
	if !errors.Is(err, transient) {
		t.Fatalf("exhaustion error does not wrap last failure: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestDoHonorsContextBetweenAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := NewPolicy(3, time.Millisecond)
	p.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }

	calls := 0
	err := p.Do(ctx, "op", func(ctx context.Context) error {
		calls++
		cancel()
		return &domain.TimeoutError{Op: "send"}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Do = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}
