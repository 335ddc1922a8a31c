package middleware

import (
	"bytes"
	"context"
	"crypto/tls"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"storefront-agent/internal/domain"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestSecurityHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	SecurityHeaders(okHandler()).ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/agents", nil))

	expected := map[string]string{
		"X-Frame-Options":        "DENY",
		"X-Content-Type-Options": "nosniff",
		"Referrer-Policy":        "no-referrer",
		"Cache-Control":          "no-store",
	}
	for header, want := range expected {
		if got := w.Header().Get(header); got != want {
			t.Errorf("Header %s = %q, want %q", header, got, want)
		}
	}
	if hsts := w.Header().Get("Strict-Transport-Security"); hsts != "" {
		t.Errorf("HSTS header should not be set without TLS, got: %q", hsts)
	}
}

func TestSecurityHeadersHSTSWithTLS(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.TLS = &tls.ConnectionState{}
	w := httptest.NewRecorder()
	SecurityHeaders(okHandler()).ServeHTTP(w, req)

	if got := w.Header().Get("Strict-Transport-Security"); got == "" {
		t.Error("HSTS should be set on TLS connections")
	}
}

func requestFrom(remote string) *http.Request {
	req := httptest.NewRequest("POST", "/api/v1/process", nil)
	req.RemoteAddr = remote
	return req
}

func TestRateLimitBlocksExcessiveTraffic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handler := RateLimit(ctx, RateLimitConfig{RequestsPerSecond: 0.1, Burst: 3})(okHandler())

	for i := range 3 {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestFrom("192.0.2.1:1234"))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, w.Code)
		}
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("192.0.2.1:1234"))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestRateLimitSeparatesClientsByIP(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handler := RateLimit(ctx, RateLimitConfig{RequestsPerSecond: 0.1, Burst: 1})(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("192.0.2.1:1000"))
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("192.0.2.1:2000"))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("same IP on another port: status = %d, want 429", w.Code)
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("192.0.2.2:1000"))
	if w.Code != http.StatusOK {
		t.Errorf("second client: status = %d, want 200", w.Code)
	}
}

func TestRateLimitDisabled(t *testing.T) {
	handler := RateLimit(context.Background(), RateLimitConfig{})(okHandler())
	for range 50 {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestFrom("192.0.2.1:1"))
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		trusted []string
		want    string
	}{
		{"direct", "192.0.2.1:443", nil, nil, "192.0.2.1"},
		{"ipv6", "[2001:db8::1]:443", nil, nil, "2001:db8::1"},
		{"spoofed header ignored", "192.0.2.1:443", map[string]string{"X-Forwarded-For": "203.0.113.9"}, nil, "192.0.2.1"},
		{"untrusted proxy", "192.0.2.1:443", map[string]string{"X-Forwarded-For": "203.0.113.9"}, []string{"10.0.0.1"}, "192.0.2.1"},
		{"trusted xff", "10.0.0.1:443", map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1"}, []string{"10.0.0.1"}, "203.0.113.9"},
		{"trusted real ip", "10.0.0.1:443", map[string]string{"X-Real-IP": "203.0.113.7"}, []string{"10.0.0.1"}, "203.0.113.7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := requestFrom(tt.remote)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := clientIP(req, tt.trusted); got != tt.want {
				t.Errorf("clientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRequestIDAssignsULID(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = domain.RequestIDFromContext(r.Context())
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	if len(seen) != 26 {
		t.Errorf("request id = %q, want a 26-char ULID", seen)
	}
	if w.Header().Get(RequestIDHeader) != seen {
		t.Errorf("response header = %q, want %q", w.Header().Get(RequestIDHeader), seen)
	}
}

func TestRequestIDPropagatesCallerValue(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = domain.RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(RequestIDHeader, "checkout-42")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "checkout-42" {
		t.Errorf("request id = %q, want %q", seen, "checkout-42")
	}

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set(RequestIDHeader, "bad id with spaces\n")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if seen == "bad id with spaces\n" {
		t.Error("invalid caller request id should be replaced")
	}
}

func TestAccessLogAndChain(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}), RequestID, AccessLog(logger))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("POST", "/api/v1/route", nil))

	out := buf.String()
	if !strings.Contains(out, "status=202") || !strings.Contains(out, "path=/api/v1/route") {
		t.Errorf("unexpected access log: %s", out)
	}
	if !strings.Contains(out, "request_id="+w.Header().Get(RequestIDHeader)) {
		t.Errorf("access log should carry the request id: %s", out)
	}
}
