package content

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"regexp"
	"sync"

	"github.com/sapphirelabs/sapphire-exchange/internal/domain"
)

// contentIDPattern matches the store's content-ID shape: 43 base64url chars,
// the unpadded encoding of a 32-byte digest.
var contentIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{43}$`)

// costPerKiB is the simulated publish cost in store units per KiB.
const costPerKiB = 0.0005

// MemoryStore is a deterministic in-memory ContentStorePort used in tests and
// local mode. It enforces the same rules as a real backend: publishing costs
// units, an underfunded account cannot publish, and content is immutable.
type MemoryStore struct {
	mu       sync.RWMutex
	objects  map[string][]byte
	tags     map[string]map[string]string
	balances map[string]float64

	// failNext, when set, makes the next Publish fail with the given error.
	failNext error
	// chargeTo is the account debited on publish (set via SetBalance).
	chargeTo string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects:  make(map[string][]byte),
		tags:     make(map[string]map[string]string),
		balances: make(map[string]float64),
	}
}

// SetBalance funds an account and marks it as the account debited by
// subsequent publishes.
func (s *MemoryStore) SetBalance(address string, units float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[address] = units
	s.chargeTo = address
}

// FailNextPublish makes the next Publish call return err. Used to exercise
// publish-failure paths in tests.
func (s *MemoryStore) FailNextPublish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

// Publish stores data immutably and returns its content ID: the base64url
// encoding of SHA-256(data), which is exactly 43 characters.
func (s *MemoryStore) Publish(ctx context.Context, data []byte, tags map[string]string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &domain.TimeoutError{Op: "publish"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return "", err
	}

	sum := sha256.Sum256(data)
	id := base64.RawURLEncoding.EncodeToString(sum[:])

	if _, exists := s.objects[id]; !exists {
		stored := make([]byte, len(data))
		copy(stored, data)
		s.objects[id] = stored
		s.tags[id] = tags
		if s.chargeTo != "" {
			s.balances[s.chargeTo] -= s.cost(len(data))
		}
	}
	return id, nil
}

// Retrieve returns the stored bytes or domain.ErrNotFound.
func (s *MemoryStore) Retrieve(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &domain.TimeoutError{Op: "retrieve"}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.objects[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Balance returns the account's store-unit balance. Unknown accounts have a
// zero balance.
func (s *MemoryStore) Balance(ctx context.Context, address string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances[address], nil
}

// EstimateCost returns the simulated publish cost for a payload of size bytes.
func (s *MemoryStore) EstimateCost(ctx context.Context, size int) (float64, error) {
	return s.cost(size), nil
}

func (s *MemoryStore) cost(size int) float64 {
	kib := float64(size) / 1024
	if kib < 1 {
		kib = 1
	}
	return kib * costPerKiB
}

// Tags returns the tags recorded for a content ID, for test assertions.
func (s *MemoryStore) Tags(id string) map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tags[id]
}

// ValidateID reports whether id has the 43-character base64url shape.
func (s *MemoryStore) ValidateID(id string) bool {
	return contentIDPattern.MatchString(id)
}

var _ domain.ContentStorePort = (*MemoryStore)(nil)
