package model

import "errors"

// Common errors used across the application
var (
	// License errors
	ErrLicenseNotFound = errors.New("license not found")
	ErrLicenseExists   = errors.New("license already exists")
	// ErrLicenseRevoked is returned by event lookups whose license was revoked
	ErrLicenseRevoked = errors.New("license revoked")
)
