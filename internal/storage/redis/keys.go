package redis

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Key prefix for all license data
const keyPrefix = "licsrv"

// licenseKey returns the Redis key for the record holding a credential.
// Credentials can be long signed tokens so the key uses their digest.
func licenseKey(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return fmt.Sprintf("%s:license:%s", keyPrefix, hex.EncodeToString(sum[:]))
}

// eventIndexKey returns the Redis key for the event id -> credential index
func eventIndexKey(eventID string) string {
	return fmt.Sprintf("%s:idx:event:%s", keyPrefix, eventID)
}
