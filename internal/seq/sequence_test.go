package seq

import (
	"context"
	"testing"
	"time"

	"github.com/sapphirelabs/sapphire-exchange/internal/chain"
	"github.com/sapphirelabs/sapphire-exchange/internal/domain"
)

func TestBaseDeterministic(t *testing.T) {
	day := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	a := Base("user-1", day)
	b := Base("user-1", day)
	if a != b {
		t.Fatalf("same inputs produced %d and %d", a, b)
	}
	if a&0x80000000 != 0 {
		t.Fatalf("base %d has the sign bit set", a)
	}

	if Base("user-2", day) == a {
		t.Fatal("different users produced the same base")
	}
	if Base("user-1", day.AddDate(0, 0, 1)) == a {
		t.Fatal("different days produced the same base")
	}
}

func TestBaseIgnoresTimeOfDay(t *testing.T) {
	morning := time.Date(2026, 3, 14, 1, 0, 0, 0, time.UTC)
	evening := time.Date(2026, 3, 14, 23, 59, 59, 0, time.UTC)
	if Base("user-1", morning) != Base("user-1", evening) {
		t.Fatal("base changed within the same day")
	}
}

func TestNextReturnsBaseWhenFree(t *testing.T) {
	ledger := chain.NewMemoryLedger("AR")
	ledger.Credit("seq-wallet", domain.MustAmount("1.0", "AR"))

	gen := NewGenerator(ledger)
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	got, err := gen.Next(context.Background(), "user-1", "seq-wallet", now)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if want := Base("user-1", now); got != want {
		t.Fatalf("Next = %d, want base %d", got, want)
	}
}

func TestNextProbesPastClaimedSlots(t *testing.T) {
	ledger := chain.NewMemoryLedger("AR")
	ledger.Credit("funder", domain.MustAmount("10.0", "AR"))

	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	base := Base("user-1", now)

	// Claim the base and the next slot via seq: memos.
	amt := domain.MustAmount("0.000001", "AR")
	for _, n := range []uint32{base, base + 1} {
		if _, err := ledger.SendValue(context.Background(), "funder", "seq-wallet", amt, Memo(n)); err != nil {
			t.Fatalf("claim %d: %v", n, err)
		}
	}

	gen := NewGenerator(ledger)
	got, err := gen.Next(context.Background(), "user-1", "seq-wallet", now)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if got != base+2 {
		t.Fatalf("Next = %d, want %d", got, base+2)
	}
}

func TestNextIgnoresUnrelatedMemos(t *testing.T) {
	ledger := chain.NewMemoryLedger("AR")
	ledger.Credit("funder", domain.MustAmount("10.0", "AR"))

	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	base := Base("user-1", now)

	amt := domain.MustAmount("0.000001", "AR")
	for _, memo := range []string{"bid:abc123", "seq:not-a-number", ""} {
		if _, err := ledger.SendValue(context.Background(), "funder", "seq-wallet", amt, memo); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	gen := NewGenerator(ledger)
	got, err := gen.Next(context.Background(), "user-1", "seq-wallet", now)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if got != base {
		t.Fatalf("Next = %d, want untouched base %d", got, base)
	}
}
