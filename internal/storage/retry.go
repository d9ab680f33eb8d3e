package storage

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"log/slog"
	"syscall"
)

// maxAttempts is the number of tries for an operation that failed with a
// connection-reset class error: the original attempt plus one retry
const maxAttempts = 2

// IsConnectionReset reports whether err indicates a dropped connection that
// is worth retrying on a fresh one
func IsConnectionReset(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}

// RetryOnce runs op, retrying it a single time if the first attempt fails
// with a connection-reset class error. Other errors are returned as-is.
func RetryOnce(ctx context.Context, logger *slog.Logger, name string, op func(ctx context.Context) error) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if !IsConnectionReset(err) || ctx.Err() != nil {
			return err
		}

		logger.WarnContext(ctx, "store connection reset",
			slog.String("operation", name),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
	}
	return err
}
