package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiterBudget(t *testing.T) {
	rl := newRateLimiter(100, time.Minute)

	for i := 0; i < 100; i++ {
		ok, _ := rl.allow("10.0.0.1")
		if !ok {
			t.Fatalf("request %d rejected within budget", i+1)
		}
	}
	ok, retryAfter := rl.allow("10.0.0.1")
	if ok {
		t.Fatal("101st request must be rejected")
	}
	if retryAfter <= 0 || retryAfter > time.Minute {
		t.Errorf("retryAfter out of range: %s", retryAfter)
	}

	// Other clients keep their own budget.
	if ok, _ := rl.allow("10.0.0.2"); !ok {
		t.Error("second client rejected on first request")
	}
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	rl := newRateLimiter(2, time.Minute)
	base := time.Now()
	rl.now = func() time.Time { return base }

	rl.allow("c")
	rl.allow("c")
	if ok, _ := rl.allow("c"); ok {
		t.Fatal("third request within the window must be rejected")
	}

	// After the window slides past the first hit, one slot frees up.
	rl.now = func() time.Time { return base.Add(61 * time.Second) }
	if ok, _ := rl.allow("c"); !ok {
		t.Error("request after the window must be admitted")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := newRateLimiter(1, time.Minute)
	handler := rl.middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/universal-swap/health", nil)
	req.RemoteAddr = "10.0.0.1:50000"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request: want=200 got=%d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: want=429 got=%d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("429 response missing Retry-After")
	}
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:1234"
	if got := clientKey(req); got != "192.0.2.7" {
		t.Errorf("remote addr key: want=192.0.2.7 got=%s", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := clientKey(req); got != "203.0.113.9" {
		t.Errorf("forwarded key: want=203.0.113.9 got=%s", got)
	}
}
