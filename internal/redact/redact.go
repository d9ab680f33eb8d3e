// Package redact produces log-safe representations of license keys and
// customer contact details.
package redact

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// fingerprintLen is the number of hex characters kept from the key digest
const fingerprintLen = 16

// Fingerprint returns a short, stable digest of a license key so that log
// lines can be correlated without ever containing the key itself.
func Fingerprint(key string) string {
	sum := blake2b.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:fingerprintLen]
}

// Email masks the local part of an email address, keeping the first and last
// characters: "alice@example.com" becomes "a***e@example.com".
func Email(email string) string {
	if email == "" {
		return ""
	}
	user, domain, ok := strings.Cut(email, "@")
	if !ok || user == "" {
		return "***"
	}
	if len(user) <= 2 {
		return user[:1] + "*@" + domain
	}
	return user[:1] + "***" + user[len(user)-1:] + "@" + domain
}
