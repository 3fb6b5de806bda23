package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name          string
		remoteAddr    string
		xForwardedFor string
		xRealIP       string
		want          string
	}{
		{
			name:       "remote addr with port",
			remoteAddr: "203.0.113.10:54321",
			want:       "203.0.113.10",
		},
		{
			name:       "remote addr without port",
			remoteAddr: "203.0.113.10",
			want:       "203.0.113.10",
		},
		{
			name:       "ipv6 remote addr",
			remoteAddr: "[2001:db8::1]:443",
			want:       "2001:db8::1",
		},
		{
			name:          "prefers X-Forwarded-For",
			remoteAddr:    "10.0.0.1:1234",
			xForwardedFor: "203.0.113.50",
			want:          "203.0.113.50",
		},
		{
			name:          "uses first IP from X-Forwarded-For chain",
			remoteAddr:    "10.0.0.1:1234",
			xForwardedFor: "203.0.113.50, 70.41.3.18, 150.172.238.178",
			want:          "203.0.113.50",
		},
		{
			name:          "trims whitespace in X-Forwarded-For",
			remoteAddr:    "10.0.0.1:1234",
			xForwardedFor: "  203.0.113.50  ",
			want:          "203.0.113.50",
		},
		{
			name:       "falls back to X-Real-IP",
			remoteAddr: "10.0.0.1:1234",
			xRealIP:    "203.0.113.60",
			want:       "203.0.113.60",
		},
		{
			name:          "prefers X-Forwarded-For over X-Real-IP",
			remoteAddr:    "10.0.0.1:1234",
			xForwardedFor: "203.0.113.50",
			xRealIP:       "203.0.113.60",
			want:          "203.0.113.50",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xForwardedFor != "" {
				req.Header.Set("X-Forwarded-For", tt.xForwardedFor)
			}
			if tt.xRealIP != "" {
				req.Header.Set("X-Real-IP", tt.xRealIP)
			}

			if got := ClientIP(req); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
