package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestProvider(t *testing.T, status int, body string) (*Provider, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return NewProvider("test", srv.URL, "", "test-model", 2*time.Second, 100), srv
}

const okBody = `{"choices":[{"message":{"role":"assistant","content":"hello"}}]}`

func TestCompletePrimary(t *testing.T) {
	primary, _ := newTestProvider(t, http.StatusOK, okBody)
	client := NewClient(primary, nil)
	text, err := client.Complete(context.Background(), "sys", []Message{{Role: RoleUser, Content: "hi"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "hello" {
		t.Fatalf("unexpected text: %q", text)
	}
}

func TestCompleteFallsBack(t *testing.T) {
	primary, _ := newTestProvider(t, http.StatusInternalServerError, "boom")
	fallback, _ := newTestProvider(t, http.StatusOK, okBody)
	client := NewClient(primary, fallback)
	text, err := client.Complete(context.Background(), "", []Message{{Role: RoleUser, Content: "hi"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "hello" {
		t.Fatalf("unexpected text: %q", text)
	}
}

func TestCompleteBothFail(t *testing.T) {
	primary, _ := newTestProvider(t, http.StatusInternalServerError, "boom")
	fallback, _ := newTestProvider(t, http.StatusBadGateway, "boom")
	client := NewClient(primary, fallback)
	if _, err := client.Complete(context.Background(), "", []Message{{Role: RoleUser, Content: "hi"}}); err == nil {
		t.Fatalf("expected error when both providers fail")
	}
}

func TestCircuitBreakerOpensAndResets(t *testing.T) {
	b := newCircuitBreaker(2, 50*time.Millisecond)
	b.Fail()
	if b.Open() {
		t.Fatalf("breaker should stay closed below threshold")
	}
	b.Fail()
	if !b.Open() {
		t.Fatalf("breaker should open at threshold")
	}
	time.Sleep(60 * time.Millisecond)
	if b.Open() {
		t.Fatalf("breaker should reset after the cool-down")
	}
}
