// Package webhook authenticates inbound purchase provider events.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body
const SignatureHeader = "X-Signature"

// Guard checks webhook signatures and origin addresses
type Guard struct {
	secret      []byte
	allowList   []string
	trustedHops int
}

// NewGuard creates a guard. An empty allow-list admits every origin.
// trustedHops is the number of reverse proxies in front of the server.
func NewGuard(secret []byte, allowList []string, trustedHops int) *Guard {
	return &Guard{
		secret:      secret,
		allowList:   allowList,
		trustedHops: trustedHops,
	}
}

// Sign returns the hex signature the provider would send for body
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature recomputes the signature over the exact raw bytes and
// compares it in constant time. A missing or non-hex signature fails.
func (g *Guard) VerifySignature(raw []byte, signature string) bool {
	if signature == "" || len(g.secret) == 0 {
		return false
	}
	provided, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, g.secret)
	mac.Write(raw)
	return hmac.Equal(provided, mac.Sum(nil))
}

// AllowListEnabled reports whether origin filtering is active
func (g *Guard) AllowListEnabled() bool {
	return len(g.allowList) > 0
}

// Allowed reports whether ip matches an allow-list entry exactly or by prefix
func (g *Guard) Allowed(ip string) bool {
	if len(g.allowList) == 0 {
		return true
	}
	if ip == "" {
		return false
	}
	for _, entry := range g.allowList {
		if ip == entry || strings.HasPrefix(ip, entry) {
			return true
		}
	}
	return false
}

// ClientIP returns the caller's address as seen by the outermost trusted proxy.
func (g *Guard) ClientIP(r *http.Request) string {
	return ClientIP(r, g.trustedHops)
}

// ClientIP extracts the caller's address from r. Each trusted proxy appends
// the peer it saw to X-Forwarded-For, so with n trusted hops the address is
// the n-th entry from the right; everything left of it is caller supplied.
// With no trusted hops the header is ignored.
func ClientIP(r *http.Request, trustedHops int) string {
	var ip string
	if trustedHops > 0 {
		if hops := forwardedHops(r.Header.Values("X-Forwarded-For")); len(hops) > 0 {
			ip = hops[max(len(hops)-trustedHops, 0)]
		}
	}
	if ip == "" {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		ip = host
	}
	return strings.TrimPrefix(ip, "::ffff:")
}

// forwardedHops flattens repeated X-Forwarded-For headers into one list
func forwardedHops(values []string) []string {
	var hops []string
	for _, v := range values {
		for _, hop := range strings.Split(v, ",") {
			if hop = strings.TrimSpace(hop); hop != "" {
				hops = append(hops, hop)
			}
		}
	}
	return hops
}

// ParseAllowList splits a comma separated list, dropping blanks
func ParseAllowList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
