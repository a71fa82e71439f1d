package chain

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sapphirelabs/sapphire-exchange/internal/domain"
)

// Registry holds one ValueTransferPort per currency and fans cross-chain
// operations out concurrently with per-operation timeouts, collecting partial
// failures instead of aborting the whole batch.
type Registry struct {
	mu     sync.RWMutex
	ports  map[string]domain.ValueTransferPort
	logger *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		ports:  make(map[string]domain.ValueTransferPort),
		logger: logger.With(slog.String("component", "chain_registry")),
	}
}

// Register adds a port for the given currency ticker.
func (r *Registry) Register(currency string, port domain.ValueTransferPort) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ports[currency] = port
}

// Port returns the port for currency, or ErrNotFound.
func (r *Registry) Port(currency string) (domain.ValueTransferPort, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	port, ok := r.ports[currency]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return port, nil
}

// Currencies returns the registered currency tickers, sorted.
func (r *Registry) Currencies() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.ports))
	for c := range r.ports {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// BalanceSet is the fan-in result of a cross-chain balance query: whatever
// succeeded, plus per-currency errors for whatever did not.
type BalanceSet struct {
	Balances map[string]domain.Amount
	Errors   map[string]error
}

// AllBalances queries the balance of each currency's address concurrently.
// addresses maps currency ticker to the account address on that chain;
// currencies without an address are skipped. Each query gets its own timeout.
func (r *Registry) AllBalances(ctx context.Context, addresses map[string]string, timeout time.Duration) BalanceSet {
	r.mu.RLock()
	type entry struct {
		currency string
		port     domain.ValueTransferPort
		address  string
	}
	var entries []entry
	for currency, port := range r.ports {
		if addr := addresses[currency]; addr != "" {
			entries = append(entries, entry{currency, port, addr})
		}
	}
	r.mu.RUnlock()

	result := BalanceSet{
		Balances: make(map[string]domain.Amount, len(entries)),
		Errors:   make(map[string]error),
	}
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	for _, e := range entries {
		g.Go(func() error {
			opCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			balance, err := e.port.GetBalance(opCtx, e.address)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors[e.currency] = err
				return nil // partial failure, keep the batch going
			}
			result.Balances[e.currency] = balance
			return nil
		})
	}
	_ = g.Wait()

	if len(result.Errors) > 0 {
		r.logger.WarnContext(ctx, "balance fan-out completed with partial failures",
			slog.Int("ok", len(result.Balances)),
			slog.Int("failed", len(result.Errors)),
		)
	}
	return result
}

// HealthCheck pings every registered port concurrently by querying the
// balance of the given probe address per currency. Returns per-currency
// errors for ports that failed; an empty map means all healthy.
func (r *Registry) HealthCheck(ctx context.Context, probes map[string]string, timeout time.Duration) map[string]error {
	set := r.AllBalances(ctx, probes, timeout)
	return set.Errors
}
