// Package clientip resolves the peer address used to key per-IP rate limits.
package clientip

import (
	"net"
	"net/http"
	"strings"
)

// RealClientIP extracts the client address from r.RemoteAddr. Forwarding
// headers are deliberately ignored: they are client-controlled, and the
// chat backend terminates connections directly, so trusting them would let
// a caller pick their own rate-limit bucket.
func RealClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr without a port, e.g. in tests.
		return strings.TrimSpace(r.RemoteAddr)
	}
	return strings.TrimSpace(host)
}
