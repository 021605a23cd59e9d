// Package identity derives the client identity used to partition rate limits.
//
// The X-Forwarded-For header is client-controlled. Trust it only when every
// request reaches the service through a proxy that overwrites or sanitizes
// the header; otherwise disable it with Extractor.TrustForwardedFor so a
// client cannot pick its own rate limit bucket.
package identity

import (
	"net"
	"net/http"
	"strings"
)

// HeaderForwardedFor is the header consulted before the peer address.
const HeaderForwardedFor = "X-Forwarded-For"

// ClientIP returns the left-most X-Forwarded-For entry when forwardedFor has
// any non-space content, otherwise the host part of remoteAddr. A header of
// only spaces counts as absent. The result may be empty.
func ClientIP(forwardedFor, remoteAddr string) string {
	if xff := strings.TrimSpace(forwardedFor); xff != "" {
		first, _, _ := strings.Cut(xff, ",")

		return strings.TrimSpace(first)
	}

	return PeerAddr(remoteAddr)
}

// PeerAddr strips the port from remoteAddr, returning it as-is when it has none.
func PeerAddr(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}

	return host
}

// FromRequest applies ClientIP to a stdlib request.
func FromRequest(r *http.Request) string {
	return ClientIP(r.Header.Get(HeaderForwardedFor), r.RemoteAddr)
}

// Extractor resolves identities according to the deployment's proxy trust.
type Extractor struct {
	TrustForwardedFor bool
}

// Extract returns the client identity given the forwarded-for header value and peer address.
func (e Extractor) Extract(forwardedFor, remoteAddr string) string {
	if !e.TrustForwardedFor {
		return PeerAddr(remoteAddr)
	}

	return ClientIP(forwardedFor, remoteAddr)
}
