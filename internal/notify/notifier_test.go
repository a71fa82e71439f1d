package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type stubSender struct {
	name     string
	err      error
	subjects []string
	bodies   []string
}

func (s *stubSender) Send(_ context.Context, subject, body string) error {
	if s.err != nil {
		return s.err
	}
	s.subjects = append(s.subjects, subject)
	s.bodies = append(s.bodies, body)
	return nil
}

func (s *stubSender) Name() string { return s.name }

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifierFanOut(t *testing.T) {
	a := &stubSender{name: "a"}
	b := &stubSender{name: "b"}
	n := New([]Sender{a, b}, discard())

	if err := n.Send(context.Background(), "auction sold"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	for _, s := range []*stubSender{a, b} {
		if len(s.bodies) != 1 || s.bodies[0] != "auction sold" {
			t.Fatalf("sender %s got %v", s.name, s.bodies)
		}
		if s.subjects[0] != DefaultSubject {
			t.Fatalf("sender %s subject = %q", s.name, s.subjects[0])
		}
	}
}

func TestNotifierPartialFailure(t *testing.T) {
	broken := &stubSender{name: "broken", err: errors.New("webhook down")}
	ok := &stubSender{name: "ok"}
	n := New([]Sender{broken, ok}, discard())

	err := n.Notify(context.Background(), "subject", "body")
	if err == nil {
		t.Fatal("expected aggregated error")
	}
	if !strings.Contains(err.Error(), "broken") {
		t.Fatalf("error should name the failed sender: %v", err)
	}
	if len(ok.bodies) != 1 {
		t.Fatal("healthy sender should still receive the message")
	}
}

func TestNotifierNoSenders(t *testing.T) {
	n := New(nil, discard())
	if err := n.Send(context.Background(), "dropped"); err != nil {
		t.Fatalf("no-sender notifier should be a no-op, got %v", err)
	}
}

func TestDiscordSender(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewDiscordSender(srv.URL)
	if err := s.Send(context.Background(), "Sold", "item i1 went for 2.5 NANO"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if want := "**Sold**\nitem i1 went for 2.5 NANO"; got["content"] != want {
		t.Fatalf("content = %q, want %q", got["content"], want)
	}
}

func TestDiscordSenderHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s := NewDiscordSender(srv.URL)
	err := s.Send(context.Background(), "s", "b")
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected status error, got %v", err)
	}
}
