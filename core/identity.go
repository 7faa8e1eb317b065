package core

import (
	"net"
	"net/http"
	"strings"
)

// ClientIdentifier derives the quota key for a request. A caller
// supplied fingerprint wins; otherwise the first hop of the
// X-Forwarded-For chain; otherwise the direct connection address.
// The result is an opaque stable string, empty when nothing usable is
// available.
func ClientIdentifier(r *http.Request, fingerprint string) string {
	if fp := strings.TrimSpace(fingerprint); fp != "" {
		return fp
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first := strings.TrimSpace(strings.SplitN(fwd, ",", 2)[0]); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
