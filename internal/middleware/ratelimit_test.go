package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute, nil, discardLogger())
	defer rl.Stop()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	want := []bool{true, true, false, false}
	for i, w := range want {
		if got := rl.Allow("1.2.3.4"); got != w {
			t.Errorf("request %d: Allow = %v, want %v", i, got, w)
		}
	}

	if !rl.Allow("5.6.7.8") {
		t.Error("other IP should have its own bucket")
	}

	now = now.Add(time.Minute + time.Second)
	if !rl.Allow("1.2.3.4") {
		t.Error("bucket should reset after the window")
	}
}

func TestRateLimiter_EvictIdle(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute, nil, discardLogger())
	defer rl.Stop()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	rl.Allow("1.2.3.4")

	now = now.Add(3 * time.Minute)
	rl.evictIdle(2 * time.Minute)

	if n := rl.Stats().TrackedIPs; n != 0 {
		t.Errorf("tracked IPs = %d, want 0", n)
	}
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute, []string{"10.0.0.1"}, discardLogger())
	defer rl.Stop()

	blocked := 0
	rl.OnBlocked(func(string) { blocked++ })

	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(remote string) int {
		req := httptest.NewRequest(http.MethodGet, "/v1/routes", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := do("1.2.3.4:5000"); code != http.StatusOK {
		t.Errorf("first request = %d", code)
	}
	if code := do("1.2.3.4:5001"); code != http.StatusTooManyRequests {
		t.Errorf("second request = %d, want 429", code)
	}
	for i := 0; i < 3; i++ {
		if code := do("10.0.0.1:80"); code != http.StatusOK {
			t.Errorf("whitelisted request = %d", code)
		}
	}
	if blocked != 1 {
		t.Errorf("blocked callback ran %d times, want 1", blocked)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"remote addr", nil, "192.0.2.1:1234", "192.0.2.1"},
		{"forwarded chain", map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.1"}, "10.0.0.1:80", "203.0.113.5"},
		{"forwarded with port", map[string]string{"X-Forwarded-For": "203.0.113.5:999"}, "10.0.0.1:80", "203.0.113.5"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.7"}, "10.0.0.1:80", "198.51.100.7"},
		{"bare remote", nil, "192.0.2.9", "192.0.2.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := ClientIP(req); got != tt.want {
				t.Errorf("ClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}
