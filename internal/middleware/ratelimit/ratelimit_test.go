package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestLimiter(t *testing.T, perMinute int) (*Limiter, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)}
	rl := NewLimiter(Config{RequestsPerMinute: perMinute})
	rl.now = clock.now
	t.Cleanup(rl.Stop)
	return rl, clock
}

func TestLimiterAllow(t *testing.T) {
	rl, clock := newTestLimiter(t, 2)

	want := []bool{true, true, false, false}
	for i, w := range want {
		if got, _ := rl.Allow("1.2.3.4"); got != w {
			t.Fatalf("request %d: Allow = %v, want %v", i+1, got, w)
		}
	}
	if ok, _ := rl.Allow("5.6.7.8"); !ok {
		t.Error("other client should not share the budget")
	}

	m := rl.GetMetrics()
	if m.TotalHits != 2 || m.ClientCount != 2 {
		t.Errorf("metrics = %+v", m)
	}

	clock.t = clock.t.Add(40 * time.Second)
	ok, retry := rl.Allow("1.2.3.4")
	if ok || retry != 20*time.Second {
		t.Fatalf("Allow = %v, retry %v", ok, retry)
	}

	clock.t = clock.t.Add(20 * time.Second)
	if ok, _ := rl.Allow("1.2.3.4"); !ok {
		t.Error("new window should allow")
	}
}

func TestRejectedRequestsDoNotExtendWindow(t *testing.T) {
	rl, clock := newTestLimiter(t, 1)
	rl.Allow("ip")
	for i := 0; i < 5; i++ {
		clock.t = clock.t.Add(15 * time.Second)
		rl.Allow("ip")
	}
	if ok, _ := rl.Allow("ip"); !ok {
		t.Error("window should have closed 60s after the first request")
	}
}

func TestCleanupExpired(t *testing.T) {
	rl, clock := newTestLimiter(t, 1)
	rl.Allow("a")
	clock.t = clock.t.Add(30 * time.Second)
	rl.Allow("b")
	clock.t = clock.t.Add(31 * time.Second)

	if n := rl.cleanupExpired(); n != 1 {
		t.Errorf("removed %d, want 1", n)
	}
	if m := rl.GetMetrics(); m.ClientCount != 1 {
		t.Errorf("clients = %d", m.ClientCount)
	}
}

func TestNewLimiterDefaults(t *testing.T) {
	rl := NewLimiter(Config{})
	defer rl.Stop()
	if rl.requestsPerMinute != DefaultConfig().RequestsPerMinute {
		t.Errorf("requestsPerMinute = %d", rl.requestsPerMinute)
	}
	rl.Stop()
}

func TestRetryAfterSeconds(t *testing.T) {
	tests := map[time.Duration]string{
		0:                      "1",
		500 * time.Millisecond: "1",
		20 * time.Second:       "20",
		20*time.Second + 1:     "21",
	}
	for d, want := range tests {
		if got := RetryAfterSeconds(d); got != want {
			t.Errorf("RetryAfterSeconds(%v) = %s, want %s", d, got, want)
		}
	}
}

func TestMiddleware(t *testing.T) {
	rl, _ := newTestLimiter(t, 1)

	h := rl.Middleware(func(*http.Request) string { return "ip" }, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }))

	codes := []int{http.StatusNoContent, http.StatusTooManyRequests}
	for i, want := range codes {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", nil))
		if rec.Code != want {
			t.Fatalf("request %d: status %d, want %d", i+1, rec.Code, want)
		}
		if want == http.StatusTooManyRequests && rec.Header().Get("Retry-After") != "60" {
			t.Errorf("Retry-After = %q", rec.Header().Get("Retry-After"))
		}
	}
}
