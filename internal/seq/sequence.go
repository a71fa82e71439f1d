// Package seq derives the sequence numbers that tag published auction posts.
// Every user derives the same base sequence for the same calendar day, so
// readers can locate a user's posts without an index; uniqueness within the
// day is resolved by probing the sequencing wallet's history.
package seq

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/sapphirelabs/sapphire-exchange/internal/domain"
)

// maxProbe bounds the linear probe for a free sequence slot. If every offset
// in [0, maxProbe) is taken, sequence generation fails.
const maxProbe = 1000

// memoPrefix marks a sequence-claim memo in the sequencing wallet history.
const memoPrefix = "seq:"

// Base derives the deterministic base sequence for (userID, day): the first
// four bytes of SHA-256(userID + ":" + YYYY-MM-DD), big endian, masked to 31
// bits so the value stays positive in every consumer.
func Base(userID string, day time.Time) uint32 {
	input := userID + ":" + day.UTC().Format("2006-01-02")
	sum := sha256.Sum256([]byte(input))
	return binary.BigEndian.Uint32(sum[:4]) & 0x7FFFFFFF
}

// Memo formats the wallet memo that claims a sequence slot.
func Memo(sequence uint32) string {
	return fmt.Sprintf("%s%d", memoPrefix, sequence)
}

// Generator allocates unused sequence numbers by inspecting a sequencing
// wallet's transaction history for prior claims.
type Generator struct {
	transfer domain.ValueTransferPort
}

// NewGenerator creates a Generator over the given value-transfer port.
func NewGenerator(transfer domain.ValueTransferPort) *Generator {
	return &Generator{transfer: transfer}
}

// Next returns the first free sequence for (userID, now): the base sequence
// if unclaimed, otherwise base+offset for the smallest offset in [1,1000)
// whose slot is free. Claims are judged by "seq:<n>" memos in the sequencing
// wallet's history. When no offset is free, Next fails.
func (g *Generator) Next(ctx context.Context, userID, sequenceWallet string, now time.Time) (uint32, error) {
	base := Base(userID, now)

	used, err := g.claimedSequences(ctx, sequenceWallet)
	if err != nil {
		return 0, err
	}

	for offset := uint32(0); offset < maxProbe; offset++ {
		candidate := (base + offset) & 0x7FFFFFFF
		if !used[candidate] {
			return candidate, nil
		}
	}
	return 0, fmt.Errorf("seq: no free sequence in [%d,%d) for user %s", base, base+maxProbe, userID)
}

// Claim records a sequence as taken by sending a dust transfer carrying the
// seq: memo to the sequencing wallet. Later Next calls for the same day then
// probe past it.
func (g *Generator) Claim(ctx context.Context, from, sequenceWallet string, sequence uint32, amount domain.Amount) error {
	if _, err := g.transfer.SendValue(ctx, from, sequenceWallet, amount, Memo(sequence)); err != nil {
		return fmt.Errorf("seq: claim sequence %d: %w", sequence, err)
	}
	return nil
}

// claimedSequences reads the sequencing wallet history and collects every
// sequence number claimed by a seq: memo.
func (g *Generator) claimedSequences(ctx context.Context, sequenceWallet string) (map[uint32]bool, error) {
	info, err := g.transfer.GetAccountInfo(ctx, sequenceWallet)
	if err != nil {
		return nil, fmt.Errorf("seq: read sequencing wallet %s: %w", sequenceWallet, err)
	}

	used := make(map[uint32]bool)
	for _, tx := range info.Transactions {
		if !strings.HasPrefix(tx.Memo, memoPrefix) {
			continue
		}
		var n uint32
		if _, err := fmt.Sscanf(tx.Memo, memoPrefix+"%d", &n); err == nil {
			used[n] = true
		}
	}
	return used, nil
}
