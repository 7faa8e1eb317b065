package core

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientIdentifierFingerprintWins(t *testing.T) {
	r := httptest.NewRequest("POST", "/api/use-credit", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.9")
	assert.Equal(t, "fp-123", ClientIdentifier(r, "fp-123"))
}

func TestClientIdentifierForwardedFirstHop(t *testing.T) {
	r := httptest.NewRequest("POST", "/api/use-credit", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1, 10.0.0.2")
	assert.Equal(t, "203.0.113.9", ClientIdentifier(r, ""))
}

func TestClientIdentifierRemoteAddrFallback(t *testing.T) {
	r := httptest.NewRequest("POST", "/api/use-credit", nil)
	r.RemoteAddr = "192.0.2.7:51234"
	assert.Equal(t, "192.0.2.7", ClientIdentifier(r, ""))
}

func TestClientIdentifierWhitespaceFingerprint(t *testing.T) {
	r := httptest.NewRequest("POST", "/api/use-credit", nil)
	r.RemoteAddr = "192.0.2.7:51234"
	assert.Equal(t, "192.0.2.7", ClientIdentifier(r, "   "))
}
