package model

import "time"

// UnknownPlayer is recorded when a purchase event carries no username
const UnknownPlayer = "unknown"

// Record is the store-side issuance record for a credential
type Record struct {
	Credential string
	Player     string
	Email      string // optional, only used for notification
	ExpiresAt  time.Time
	CreatedAt  time.Time
	EventID    string // purchase event that produced this record, may be empty
}

// Expired reports whether the record has expired at the given time
func (r *Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Claims is the identity and lifetime data embedded in a signed credential
type Claims struct {
	ID        string // unique issuance id (jti)
	Player    string
	ProductID int64
	IssuedAt  time.Time
	ExpiresAt time.Time // zero for credentials that carry no expiry
}
