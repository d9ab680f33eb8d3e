package storage

import (
	"context"

	"github.com/mcoot/tebex-license-server/internal/model"
)

// Storage defines the interface for license persistence.
// Implementations must be safe for concurrent use.
type Storage interface {
	// InsertLicense appends a new record; model.ErrLicenseExists if the
	// credential (or the record's event id) is already stored
	InsertLicense(ctx context.Context, rec *model.Record) error

	// GetLicense looks a record up by its exact credential string
	GetLicense(ctx context.Context, credential string) (*model.Record, error)

	// GetLicenseByEvent returns the record issued for a purchase event.
	// model.ErrLicenseRevoked if that record has since been revoked.
	GetLicenseByEvent(ctx context.Context, eventID string) (*model.Record, error)

	// DeleteLicense revokes a credential; GetLicense no longer finds it.
	// The record's event id stays claimed so the purchase cannot be
	// replayed into a new license. model.ErrLicenseNotFound if there was
	// nothing to revoke.
	DeleteLicense(ctx context.Context, credential string) error

	// Ping reports whether the backing store is reachable
	Ping(ctx context.Context) error

	// Close releases connections held by the store
	Close() error
}
