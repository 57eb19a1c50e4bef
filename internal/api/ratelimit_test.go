package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// fakeClock is a manually advanced clock.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(burst int) (*RateLimiter, *fakeClock) {
	clk := &fakeClock{t: time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)}
	return NewRateLimiter(1, burst, WithIdleWindow(time.Hour), withLimiterClock(clk.now)), clk
}

func TestRateLimiter_BurstThenRefill(t *testing.T) {
	rl, clk := newTestLimiter(3)

	for i := range 3 {
		if !rl.Allow("127.0.0.1") {
			t.Fatalf("request %d denied within burst", i+1)
		}
	}
	if rl.Allow("127.0.0.1") {
		t.Fatal("request over burst allowed")
	}

	clk.advance(time.Second)
	if !rl.Allow("127.0.0.1") {
		t.Error("token not refilled after one second")
	}
}

func TestRateLimiter_PerClient(t *testing.T) {
	rl, _ := newTestLimiter(1)

	if !rl.Allow("127.0.0.1") || rl.Allow("127.0.0.1") {
		t.Fatal("127.0.0.1 should get exactly one request")
	}
	if !rl.Allow("::1") {
		t.Error("::1 has its own bucket")
	}
}

func TestRateLimiter_SweepsIdleBuckets(t *testing.T) {
	rl, clk := newTestLimiter(1)
	rl.Allow("127.0.0.1")

	clk.advance(30 * time.Minute)
	rl.Allow("127.0.0.2")

	clk.advance(45 * time.Minute)
	rl.Allow("127.0.0.3") // triggers the sweep

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.buckets["127.0.0.1"]; ok {
		t.Error("bucket idle for 75m should be swept")
	}
	for _, c := range []string{"127.0.0.2", "127.0.0.3"} {
		if _, ok := rl.buckets[c]; !ok {
			t.Errorf("bucket %s should be kept", c)
		}
	}
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl, _ := newTestLimiter(2)
	h := rl.Middleware(okHandler)

	serve := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/processes", nil)
		req.RemoteAddr = "127.0.0.1:51234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	for i := range 2 {
		if rec := serve(); rec.Code != http.StatusOK {
			t.Errorf("request %d: expected 200, got %d", i+1, rec.Code)
		}
	}

	rec := serve()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "1" {
		t.Error("expected Retry-After header")
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if !strings.Contains(rec.Body.String(), "Too Many Requests") {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestClientAddr(t *testing.T) {
	for remote, want := range map[string]string{
		"[::1]:40000":     "::1",
		"127.0.0.1:51234": "127.0.0.1",
		"pipe":            "pipe",
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remote
		if got := clientAddr(req); got != want {
			t.Errorf("clientAddr(%q) = %q, want %q", remote, got, want)
		}
	}
}
