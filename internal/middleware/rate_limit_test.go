package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// TestRateLimitByIP_AllowsRequestsUnderLimit verifies requests under the limit pass through
func TestRateLimitByIP_AllowsRequestsUnderLimit(t *testing.T) {
	middleware := RateLimitByIP(RateLimitConfig{RequestsPerMinute: 5})

	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest("POST", "/otps", nil)
		req.RemoteAddr = "192.168.1.1:8080"
		recorder := httptest.NewRecorder()

		handler.ServeHTTP(recorder, req)
		if recorder.Code != http.StatusOK {
			t.Errorf("request %d: expected status 200, got %d", i+1, recorder.Code)
		}
	}
}

// TestRateLimitByIP_BlocksRequestsOverLimit verifies excess requests get 429
func TestRateLimitByIP_BlocksRequestsOverLimit(t *testing.T) {
	middleware := RateLimitByIP(RateLimitConfig{RequestsPerMinute: 2})

	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func() int {
		req := httptest.NewRequest("POST", "/verifications/submit", nil)
		req.RemoteAddr = "10.0.0.9:4000"
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, req)
		return recorder.Code
	}

	send()
	send()

	if code := send(); code != http.StatusTooManyRequests {
		t.Errorf("expected status 429 over the limit, got %d", code)
	}
}

// TestRateLimitByIP_SeparateBucketsPerIP verifies one client cannot exhaust another's budget
func TestRateLimitByIP_SeparateBucketsPerIP(t *testing.T) {
	middleware := RateLimitByIP(RateLimitConfig{RequestsPerMinute: 1})

	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(addr string) int {
		req := httptest.NewRequest("POST", "/otps", nil)
		req.RemoteAddr = addr
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, req)
		return recorder.Code
	}

	if code := send("10.0.0.1:1000"); code != http.StatusOK {
		t.Fatalf("first client: expected 200, got %d", code)
	}
	if code := send("10.0.0.1:1000"); code != http.StatusTooManyRequests {
		t.Errorf("first client second request: expected 429, got %d", code)
	}
	if code := send("10.0.0.2:1000"); code != http.StatusOK {
		t.Errorf("second client: expected 200, got %d", code)
	}
}
