package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sapphirelabs/sapphire-exchange/internal/domain"
)

func TestCacheSetGetDelete(t *testing.T) {
	ctx := context.Background()
	c := NewCache()

	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := c.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "v" {
		t.Fatalf("Get = %q, want %q", got, "v")
	}

	if err := c.Delete(ctx, "k", "missing"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := c.Get(ctx, "k"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Get after delete = %v, want ErrNotFound", err)
	}
}

func TestCacheExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewCache().WithClock(func() time.Time { return now })

	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	now = now.Add(59 * time.Second)
	if _, err := c.Get(ctx, "k"); err != nil {
		t.Fatalf("Get before expiry: %v", err)
	}

	now = now.Add(2 * time.Second)
	if _, err := c.Get(ctx, "k"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Get after expiry = %v, want ErrNotFound", err)
	}
}

func TestCacheCopiesValues(t *testing.T) {
	ctx := context.Background()
	c := NewCache()

	src := []byte("original")
	if err := c.Set(ctx, "k", src, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	src[0] = 'X'

	got, err := c.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "original" {
		t.Fatalf("cached value was mutated through the caller's slice: %q", got)
	}
}

func TestLockManagerExclusion(t *testing.T) {
	ctx := context.Background()
	m := NewLockManager()

	unlock, err := m.Acquire(ctx, "item-1", time.Minute)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	if _, err := m.Acquire(ctx, "item-1", time.Minute); !errors.Is(err, domain.ErrLockHeld) {
		t.Fatalf("second Acquire = %v, want ErrLockHeld", err)
	}
	if _, err := m.Acquire(ctx, "item-2", time.Minute); err != nil {
		t.Fatalf("Acquire on a different key: %v", err)
	}

	unlock()
	unlock() // second call is a no-op

	if _, err := m.Acquire(ctx, "item-1", time.Minute); err != nil {
		t.Fatalf("Acquire after unlock: %v", err)
	}
}

func TestLockManagerTTLExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewLockManager()
	m.now = func() time.Time { return now }

	if _, err := m.Acquire(ctx, "item-1", 30*time.Second); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	now = now.Add(31 * time.Second)
	if _, err := m.Acquire(ctx, "item-1", 30*time.Second); err != nil {
		t.Fatalf("Acquire after TTL lapse: %v", err)
	}
}

func TestBusPublishSubscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := NewBus()
	ch, err := b.Subscribe(ctx, domain.ChannelBids)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := b.Publish(ctx, domain.ChannelBids, []byte("hello")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := b.Publish(ctx, domain.ChannelAuctions, []byte("other")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case got := <-ch:
		if string(got) != "hello" {
			t.Fatalf("received %q, want %q", got, "hello")
		}
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}

	select {
	case got := <-ch:
		t.Fatalf("received unexpected cross-channel message %q", got)
	default:
	}

	cancel()
	for range ch {
	}
}
