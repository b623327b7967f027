package clientip

import (
	"net/http/httptest"
	"testing"
)

func TestRealClientIP(t *testing.T) {
	t.Run("host port split", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/api/chat/direct", nil)
		r.RemoteAddr = "203.0.113.7:51234"
		if got := RealClientIP(r); got != "203.0.113.7" {
			t.Errorf("got %q, want 203.0.113.7", got)
		}
	})

	t.Run("no port", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.RemoteAddr = "203.0.113.7"
		if got := RealClientIP(r); got != "203.0.113.7" {
			t.Errorf("got %q, want 203.0.113.7", got)
		}
	})

	t.Run("forwarding headers ignored", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.RemoteAddr = "203.0.113.7:51234"
		r.Header.Set("X-Forwarded-For", "198.51.100.1")
		r.Header.Set("X-Real-IP", "198.51.100.2")
		if got := RealClientIP(r); got != "203.0.113.7" {
			t.Errorf("got %q, want the transport address", got)
		}
	})

	t.Run("ipv6", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.RemoteAddr = "[2001:db8::1]:443"
		if got := RealClientIP(r); got != "2001:db8::1" {
			t.Errorf("got %q, want 2001:db8::1", got)
		}
	})
}
