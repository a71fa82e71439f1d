// Package chain provides ValueTransferPort implementations: an HTTP node RPC
// adapter for real chains, a deterministic in-memory ledger used in tests and
// database-simulated mode, and a registry that fans out cross-chain
// operations concurrently.
package chain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/sapphirelabs/sapphire-exchange/internal/domain"
)

// MemoryLedger is a deterministic in-memory ValueTransferPort. It enforces
// the same invariants as a real chain adapter: transfers from underfunded
// accounts fail, history is append-only, and every transfer gets a 64-hex
// reference.
type MemoryLedger struct {
	currency string
	clock    func() time.Time

	mu       sync.RWMutex
	balances map[string]*big.Rat
	history  map[string][]domain.TransactionRef // address -> newest first
	seq      uint64

	failNext error
}

// NewMemoryLedger creates a ledger for the given currency ticker.
func NewMemoryLedger(currency string) *MemoryLedger {
	return &MemoryLedger{
		currency: currency,
		clock:    func() time.Time { return time.Now().UTC() },
		balances: make(map[string]*big.Rat),
		history:  make(map[string][]domain.TransactionRef),
	}
}

// WithClock overrides the ledger clock. Tests use this to place deposits
// before or after an auction end.
func (l *MemoryLedger) WithClock(clock func() time.Time) *MemoryLedger {
	l.clock = clock
	return l
}

// Credit funds an account directly, bypassing transfer rules. Test setup and
// faucet use only.
func (l *MemoryLedger) Credit(address string, amount domain.Amount) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ensure(address).Add(l.ensure(address), amount.Rat())
}

// FailNextTransfer makes the next SendValue call fail with err.
func (l *MemoryLedger) FailNextTransfer(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failNext = err
}

// SendValue moves amount from one account to another, recording the transfer
// in both histories. It fails when the source balance is insufficient.
func (l *MemoryLedger) SendValue(ctx context.Context, from, to string, amount domain.Amount, memo string) (domain.TransactionRef, error) {
	if err := ctx.Err(); err != nil {
		return domain.TransactionRef{}, &domain.TimeoutError{Op: "send_value"}
	}
	if amount.Currency != l.currency {
		return domain.TransactionRef{}, domain.Validation("currency",
			"ledger carries %s, got %s", l.currency, amount.Currency)
	}
	if amount.IsNegative() || amount.IsZero() {
		return domain.TransactionRef{}, domain.Validation("amount", "must be positive")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.failNext != nil {
		err := l.failNext
		l.failNext = nil
		return domain.TransactionRef{}, err
	}

	balance := l.ensure(from)
	if balance.Cmp(amount.Rat()) < 0 {
		return domain.TransactionRef{}, &domain.InsufficientFundsError{
			Account:   from,
			Required:  amount.Value,
			Available: balance.FloatString(8),
		}
	}

	balance.Sub(balance, amount.Rat())
	l.ensure(to).Add(l.ensure(to), amount.Rat())

	l.seq++
	ref := domain.TransactionRef{
		Hash:      l.txHash(from, to, memo, l.seq),
		From:      from,
		To:        to,
		Amount:    amount,
		Memo:      memo,
		Timestamp: l.clock(),
	}
	l.history[from] = append([]domain.TransactionRef{ref}, l.history[from]...)
	l.history[to] = append([]domain.TransactionRef{ref}, l.history[to]...)

	return ref, nil
}

// GetBalance returns the account balance.
func (l *MemoryLedger) GetBalance(ctx context.Context, address string) (domain.Amount, error) {
	if err := ctx.Err(); err != nil {
		return domain.Amount{}, &domain.TimeoutError{Op: "get_balance"}
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	bal, ok := l.balances[address]
	if !ok {
		return domain.Amount{Value: "0", Currency: l.currency}, nil
	}
	return domain.Amount{Value: bal.FloatString(8), Currency: l.currency}, nil
}

// ValidateAddress accepts any non-empty address in the simulated ledger.
func (l *MemoryLedger) ValidateAddress(address string) bool {
	return address != ""
}

// GetAccountInfo returns balance and full transaction history, newest first.
func (l *MemoryLedger) GetAccountInfo(ctx context.Context, address string) (domain.AccountInfo, error) {
	if err := ctx.Err(); err != nil {
		return domain.AccountInfo{}, &domain.TimeoutError{Op: "get_account_info"}
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	info := domain.AccountInfo{
		Address: address,
		Balance: domain.Amount{Value: "0", Currency: l.currency},
	}
	if bal, ok := l.balances[address]; ok {
		info.Balance = domain.Amount{Value: bal.FloatString(8), Currency: l.currency}
	}
	txs := l.history[address]
	info.Transactions = make([]domain.TransactionRef, len(txs))
	copy(info.Transactions, txs)
	info.BlockCount = len(txs)
	return info, nil
}

func (l *MemoryLedger) ensure(address string) *big.Rat {
	if _, ok := l.balances[address]; !ok {
		l.balances[address] = new(big.Rat)
	}
	return l.balances[address]
}

func (l *MemoryLedger) txHash(from, to, memo string, seq uint64) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%s|%s|%d", from, to, memo, seq))
	return hex.EncodeToString(sum[:])
}

var _ domain.ValueTransferPort = (*MemoryLedger)(nil)
