package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mcoot/tebex-license-server/internal/model"
	"github.com/mcoot/tebex-license-server/internal/testutil"
)

func TestIsConnectionReset(t *testing.T) {
	assert.True(t, IsConnectionReset(syscall.ECONNRESET))
	assert.True(t, IsConnectionReset(fmt.Errorf("write: %w", syscall.EPIPE)))
	assert.True(t, IsConnectionReset(io.ErrUnexpectedEOF))
	assert.False(t, IsConnectionReset(nil))
	assert.False(t, IsConnectionReset(model.ErrLicenseExists))
	assert.False(t, IsConnectionReset(errors.New("syntax error")))
}

func TestRetryOnceRetriesConnectionReset(t *testing.T) {
	calls := 0
	err := RetryOnce(context.Background(), testutil.NopLogger(), "insert", func(context.Context) error {
		calls++
		if calls == 1 {
			return fmt.Errorf("read tcp: %w", syscall.ECONNRESET)
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetryOnceGivesUpAfterSecondReset(t *testing.T) {
	calls := 0
	err := RetryOnce(context.Background(), testutil.NopLogger(), "insert", func(context.Context) error {
		calls++
		return syscall.ECONNRESET
	})

	assert.ErrorIs(t, err, syscall.ECONNRESET)
	assert.Equal(t, 2, calls)
}

func TestRetryOnceDoesNotRetryOtherErrors(t *testing.T) {
	calls := 0
	err := RetryOnce(context.Background(), testutil.NopLogger(), "insert", func(context.Context) error {
		calls++
		return model.ErrLicenseExists
	})

	assert.ErrorIs(t, err, model.ErrLicenseExists)
	assert.Equal(t, 1, calls)
}
