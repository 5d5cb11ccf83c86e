package graph

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// testClient returns a client pointed at srv that records sleeps instead of
// performing them.
func testClient(srv *httptest.Server) (*Client, *[]time.Duration) {
	var sleeps []time.Duration
	c := NewClient(zerolog.Nop())
	c.BaseURL = srv.URL
	c.Sleep = func(d time.Duration) { sleeps = append(sleeps, d) }
	return c, &sleeps
}

func TestDoRetriesThrottledThenSucceeds(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"id":"plan-1"}`))
	}))
	defer srv.Close()

	c, sleeps := testClient(srv)
	raw, err := c.Do(context.Background(), http.MethodGet, "/planner/plans/plan-1", "tok", nil, "")
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if string(raw) != `{"id":"plan-1"}` {
		t.Errorf("unexpected body: %s", raw)
	}
	if calls != 2 {
		t.Errorf("expected 2 attempts, got %d", calls)
	}
	if len(*sleeps) != 1 || (*sleeps)[0] != 7*time.Second {
		t.Errorf("expected one 7s sleep, got %v", *sleeps)
	}
}

func TestDoRetryBudgetExhausted(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, sleeps := testClient(srv)
	_, err := c.Do(context.Background(), http.MethodPost, "/planner/tasks", "tok", map[string]string{"title": "x"}, "")
	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("expected ErrRetryExhausted, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", calls)
	}
	// No Retry-After header means the default wait each time.
	for i, d := range *sleeps {
		if d != 60*time.Second {
			t.Errorf("sleep %d: expected 60s default, got %v", i, d)
		}
	}
	if len(*sleeps) != 3 {
		t.Errorf("expected 3 sleeps, got %d", len(*sleeps))
	}
}

func TestDoNoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c, _ := testClient(srv)
	raw, err := c.Do(context.Background(), http.MethodPatch, "/planner/tasks/t1/details", "tok", map[string]string{"description": "d"}, `W/"etag"`)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if raw != nil {
		t.Errorf("expected nil payload for 204, got %s", raw)
	}
}

func TestDoSendsConditionalHeaders(t *testing.T) {
	var gotIfMatch, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIfMatch = r.Header.Get("If-Match")
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c, _ := testClient(srv)
	_, err := c.Do(context.Background(), http.MethodPatch, "/planner/plans/p1/details", "tok-123", map[string]string{}, `W/"abc"`)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if gotIfMatch != `W/"abc"` {
		t.Errorf("If-Match = %q", gotIfMatch)
	}
	if gotAuth != "Bearer tok-123" {
		t.Errorf("Authorization = %q", gotAuth)
	}
}

func TestDoStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":{"code":"nameAlreadyExists"}}`))
	}))
	defer srv.Close()

	c, _ := testClient(srv)
	_, err := c.Do(context.Background(), http.MethodPost, "/teams/g1/channels", "tok", map[string]string{"displayName": "X"}, "")
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsStatus(err, http.StatusConflict) {
		t.Errorf("expected conflict status, got %v", err)
	}
	if IsStatus(err, http.StatusNotFound) {
		t.Error("IsStatus matched a code the error does not carry")
	}
	if StatusCode(err) != http.StatusConflict {
		t.Errorf("StatusCode = %d", StatusCode(err))
	}
}

func TestRetryAfterParsing(t *testing.T) {
	tests := []struct {
		header string
		want   time.Duration
	}{
		{"30", 30 * time.Second},
		{"0", 0},
		{"", 60 * time.Second},
		{"not-a-number", 60 * time.Second},
	}
	for _, tt := range tests {
		resp := &http.Response{Header: http.Header{}}
		if tt.header != "" {
			resp.Header.Set("Retry-After", tt.header)
		}
		if got := retryAfter(resp); got != tt.want {
			t.Errorf("retryAfter(%q) = %v, want %v", tt.header, got, tt.want)
		}
	}
}
