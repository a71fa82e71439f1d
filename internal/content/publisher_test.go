package content

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/sapphirelabs/sapphire-exchange/internal/domain"
)

func newTestPublisher(t *testing.T) (*Publisher, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	store.SetBalance("publisher-wallet", 1.0)
	pub := NewPublisher(store, Config{Account: "publisher-wallet"}, slog.Default())
	return pub, store
}

func TestPublishRoundTrip(t *testing.T) {
	pub, _ := newTestPublisher(t)
	ctx := context.Background()

	doc := map[string]any{
		"item_id": "abc",
		"title":   "Vintage camera",
		"nested":  map[string]any{"b": 2, "a": 1},
	}

	id, hash, err := pub.Publish(ctx, doc, map[string]string{TagDataType: "auction-post"})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(id) != 43 {
		t.Errorf("content id length = %d, want 43", len(id))
	}

	var got map[string]any
	if err := pub.Retrieve(ctx, id, &got); err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if got["title"] != "Vintage camera" {
		t.Errorf("retrieved title = %v", got["title"])
	}

	ok, err := pub.VerifyIntegrity(ctx, id, hash)
	if err != nil {
		t.Fatalf("VerifyIntegrity() error = %v", err)
	}
	if !ok {
		t.Error("round-trip hash did not verify")
	}
}

func TestPublishCanonicalHashStable(t *testing.T) {
	// Two maps with different insertion orders must hash identically.
	a := map[string]any{"x": 1, "y": "two", "z": []any{1, 2}}
	b := map[string]any{"z": []any{1, 2}, "y": "two", "x": 1}

	ha, err := HashDocument(a)
	if err != nil {
		t.Fatalf("HashDocument() error = %v", err)
	}
	hb, _ := HashDocument(b)
	if ha != hb {
		t.Errorf("canonical hashes differ: %s vs %s", ha, hb)
	}
}

func TestPublishInsufficientFunds(t *testing.T) {
	store := NewMemoryStore()
	store.SetBalance("poor-wallet", 0.01)
	pub := NewPublisher(store, Config{Account: "poor-wallet"}, slog.Default())

	_, _, err := pub.Publish(context.Background(), map[string]any{"a": 1}, nil)
	var ife *domain.InsufficientFundsError
	if !errors.As(err, &ife) {
		t.Fatalf("error = %v, want InsufficientFundsError", err)
	}
}

func TestPublishStoreFailure(t *testing.T) {
	pub, store := newTestPublisher(t)
	store.FailNextPublish(&domain.NetworkError{Op: "publish", Err: errors.New("gateway down")})

	_, _, err := pub.Publish(context.Background(), map[string]any{"a": 1}, nil)
	if !domain.IsRetryable(err) {
		t.Fatalf("error = %v, want retryable network error", err)
	}
}

func TestRetrieveNotFound(t *testing.T) {
	pub, _ := newTestPublisher(t)

	var out map[string]any
	err := pub.Retrieve(context.Background(), "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", &out)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestVerifyIntegrityMismatch(t *testing.T) {
	pub, _ := newTestPublisher(t)
	ctx := context.Background()

	id, _, err := pub.Publish(ctx, map[string]any{"a": 1}, nil)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	ok, err := pub.VerifyIntegrity(ctx, id, "deadbeef")
	if ok {
		t.Error("corrupt hash verified")
	}
	var ie *domain.IntegrityError
	if !errors.As(err, &ie) {
		t.Fatalf("error = %v, want IntegrityError", err)
	}
}

func TestMemoryStoreValidateID(t *testing.T) {
	store := NewMemoryStore()
	cases := []struct {
		id   string
		want bool
	}{
		{"dBs1H5RkEZUPoBq-RxgVhcpGfA2k1M3zvauRxLmpUbc", true},
		{"short", false},
		{"dBs1H5RkEZUPoBq-RxgVhcpGfA2k1M3zvauRxLmpUbcX", false}, // 44 chars
		{"dBs1H5RkEZUPoBq+RxgVhcpGfA2k1M3zvauRxLmpUb=", false},  // std base64 chars
	}
	for _, tc := range cases {
		if got := store.ValidateID(tc.id); got != tc.want {
			t.Errorf("ValidateID(%q) = %v, want %v", tc.id, got, tc.want)
		}
	}
}

func TestMemoryStoreTagsRecorded(t *testing.T) {
	pub, store := newTestPublisher(t)

	id, _, err := pub.Publish(context.Background(), map[string]any{"a": 1},
		map[string]string{TagDataType: "bid", "Item-ID": "xyz"})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	tags := store.Tags(id)
	if tags[TagAppName] != AppName {
		t.Errorf("App-Name tag = %q", tags[TagAppName])
	}
	if tags[TagDataType] != "bid" {
		t.Errorf("Data-Type tag = %q", tags[TagDataType])
	}
}
