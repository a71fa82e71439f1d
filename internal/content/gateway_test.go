package content

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/sapphirelabs/sapphire-exchange/internal/domain"
)

const testContentID = "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

func newTestGateway(t *testing.T, handler http.Handler) *Gateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	gw, err := NewGateway(GatewayConfig{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewGateway: %v", err)
	}
	return gw
}

func TestGatewayPublishAndRetrieve(t *testing.T) {
	payload := []byte(`{"hello":"world"}`)
	gw := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/tx":
			json.NewEncoder(w).Encode(map[string]string{"id": testContentID})
		case r.Method == http.MethodGet && r.URL.Path == "/tx/"+testContentID+"/data":
			w.Write(payload)
		default:
			http.NotFound(w, r)
		}
	}))

	id, err := gw.Publish(context.Background(), payload, map[string]string{"Data-Type": "test"})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if id != testContentID {
		t.Fatalf("id = %q, want %q", id, testContentID)
	}

	data, err := gw.Retrieve(context.Background(), id)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if string(data) != string(payload) {
		t.Fatalf("data = %q, want %q", data, payload)
	}
}

func TestGatewayPublishRejectsMalformedID(t *testing.T) {
	gw := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": "bogus"})
	}))

	_, err := gw.Publish(context.Background(), []byte("x"), nil)
	var ne *domain.NetworkError
	if !errors.As(err, &ne) {
		t.Fatalf("Publish = %v, want NetworkError", err)
	}
}

func TestGatewayRetrieveRetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	gw := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("data"))
	}))

	data, err := gw.Retrieve(context.Background(), testContentID)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if string(data) != "data" {
		t.Fatalf("data = %q, want %q", data, "data")
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("gateway called %d times, want 2", got)
	}
}

func TestGatewayRetrieveNotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	gw := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "no such tx", http.StatusNotFound)
	}))

	_, err := gw.Retrieve(context.Background(), testContentID)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Retrieve = %v, want ErrNotFound", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("gateway called %d times, want 1", got)
	}
}

func TestGatewayBalanceConvertsWinston(t *testing.T) {
	gw := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/wallet/") {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"winston": "2500000000000"})
	}))

	balance, err := gw.Balance(context.Background(), "addr")
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if balance != 2.5 {
		t.Fatalf("balance = %v, want 2.5", balance)
	}
}
