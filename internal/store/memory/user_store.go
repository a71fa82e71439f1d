// Package memory implements the store interfaces in process memory. It backs
// tests and the standalone CLI mode; production deployments use the postgres
// package behind the same interfaces.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sapphirelabs/sapphire-exchange/internal/domain"
)

// UserStore is an in-memory domain.UserStore.
type UserStore struct {
	mu     sync.RWMutex
	users  map[string]domain.User
	events map[string][]domain.ReputationEvent
	now    func() time.Time
}

// NewUserStore creates an empty UserStore.
func NewUserStore() *UserStore {
	return &UserStore{
		users:  make(map[string]domain.User),
		events: make(map[string][]domain.ReputationEvent),
		now:    time.Now,
	}
}

func (s *UserStore) Create(ctx context.Context, u domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[u.ID]; ok {
		return fmt.Errorf("store: user %s: %w", u.ID, domain.ErrAlreadyExists)
	}
	for _, existing := range s.users {
		if existing.DeletedAt == nil && strings.EqualFold(existing.Username, u.Username) {
			return fmt.Errorf("store: username %s: %w", u.Username, domain.ErrAlreadyExists)
		}
	}
	s.users[u.ID] = cloneUser(u)
	return nil
}

func (s *UserStore) GetByID(ctx context.Context, id string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok || u.DeletedAt != nil {
		return domain.User{}, fmt.Errorf("store: user %s: %w", id, domain.ErrNotFound)
	}
	return cloneUser(u), nil
}

func (s *UserStore) GetByUsername(ctx context.Context, username string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.DeletedAt == nil && strings.EqualFold(u.Username, username) {
			return cloneUser(u), nil
		}
	}
	return domain.User{}, fmt.Errorf("store: username %s: %w", username, domain.ErrNotFound)
}

func (s *UserStore) Update(ctx context.Context, u domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.users[u.ID]
	if !ok || existing.DeletedAt != nil {
		return fmt.Errorf("store: user %s: %w", u.ID, domain.ErrNotFound)
	}
	s.users[u.ID] = cloneUser(u)
	return nil
}

func (s *UserStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok || u.DeletedAt != nil {
		return fmt.Errorf("store: user %s: %w", id, domain.ErrNotFound)
	}
	now := s.now().UTC()
	u.DeletedAt = &now
	s.users[id] = u
	return nil
}

func (s *UserStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.User
	for _, u := range s.users {
		if u.DeletedAt == nil {
			out = append(out, cloneUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return paginate(out, opts), nil
}

func (s *UserStore) AdjustReputation(ctx context.Context, id string, delta float64, reason string) (domain.User, error) {
	if reason == "" {
		return domain.User{}, domain.Validation("reason", "required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok || u.DeletedAt != nil {
		return domain.User{}, fmt.Errorf("store: user %s: %w", id, domain.ErrNotFound)
	}

	score := u.ReputationScore + delta
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	now := s.now().UTC()
	u.ReputationScore = score
	u.UpdatedAt = now
	s.users[id] = u
	s.events[id] = append(s.events[id], domain.ReputationEvent{
		UserID:    id,
		Delta:     delta,
		Reason:    reason,
		Score:     score,
		CreatedAt: now,
	})
	return cloneUser(u), nil
}

func (s *UserStore) ReputationHistory(ctx context.Context, id string, opts domain.ListOpts) ([]domain.ReputationEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.events[id]
	// Newest first.
	out := make([]domain.ReputationEvent, len(events))
	for i, ev := range events {
		out[len(events)-1-i] = ev
	}
	return paginate(out, opts), nil
}

func cloneUser(u domain.User) domain.User {
	cp := u
	if u.Addresses != nil {
		cp.Addresses = make(map[string]string, len(u.Addresses))
		for k, v := range u.Addresses {
			cp.Addresses[k] = v
		}
	}
	cp.Inventory = append([]string(nil), u.Inventory...)
	return cp
}

// paginate applies clamped ListOpts to an already-ordered slice.
func paginate[T any](in []T, opts domain.ListOpts) []T {
	opts = opts.Clamp()
	if opts.Offset >= len(in) {
		return []T{}
	}
	end := opts.Offset + opts.Limit
	if end > len(in) {
		end = len(in)
	}
	return in[opts.Offset:end]
}
