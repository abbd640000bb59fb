package security

import (
	"context"
	"net"
	"net/http"
	"strings"
)

// IPExtractor resolves the client address of an HTTP request, used as the
// rate limiting key and in audit records.
type IPExtractor struct {
	// TrustProxy enables X-Forwarded-For and X-Real-IP.
	// Only enable behind a reverse proxy that overwrites these headers.
	TrustProxy bool

	// TrustedProxyCount is the number of proxies appending to X-Forwarded-For.
	// Zero is treated as one.
	TrustedProxyCount int
}

// ClientIP returns the client IP of r
func (e IPExtractor) ClientIP(r *http.Request) string {
	if e.TrustProxy {
		if ip := e.fromForwardedFor(r.Header.Get("X-Forwarded-For")); ip != "" {
			return ip
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xri) != nil {
			return xri
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// fromForwardedFor picks the entry appended by the outermost trusted proxy
func (e IPExtractor) fromForwardedFor(xff string) string {
	if xff == "" {
		return ""
	}

	hops := strings.Split(xff, ",")
	proxies := e.TrustedProxyCount
	if proxies <= 0 {
		proxies = 1
	}

	idx := len(hops) - proxies - 1
	if idx < 0 {
		idx = 0
	}

	ip := strings.TrimSpace(hops[idx])
	if net.ParseIP(ip) == nil {
		return ""
	}
	return ip
}

type clientIPContextKey struct{}

// WithClientIP adds the resolved client IP to the context so audit records
// written deeper in the call stack can carry it.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// GetClientIP retrieves the client IP from the context
func GetClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPContextKey{}).(string); ok {
		return ip
	}
	return ""
}
