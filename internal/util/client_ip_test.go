package util

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientIPDirectPeer(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "203.0.113.9:4711"
	r.Header.Set("X-Forwarded-For", "198.51.100.1")
	if got := ClientIP(r); got != "203.0.113.9" {
		t.Fatalf("forwarded header must be ignored for public peers, got %q", got)
	}
}

func TestClientIPBehindProxy(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.5:4711"
	r.Header.Set("X-Forwarded-For", "198.51.100.1, 10.0.0.5")
	if got := ClientIP(r); got != "198.51.100.1" {
		t.Fatalf("expected forwarded client ip, got %q", got)
	}
}

func TestClientIPNoForwardedHeader(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "127.0.0.1:9999"
	if got := ClientIP(r); got != "127.0.0.1" {
		t.Fatalf("got %q", got)
	}
}
