package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// ErrUnhealthy is returned when the server answers but reports its store down.
var ErrUnhealthy = errors.New("server unhealthy")

const healthPollInterval = 500 * time.Millisecond

func newHealthCmd() *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check that the server is up and its store reachable",
		Long: `Call GET /health once, or with --wait keep polling until the server
reports healthy or the duration runs out (useful after a deploy).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := pollHealth(cmd.Context(), wait)

			out := NewOutput(cfg.Output)
			if result != nil {
				out.Print(*result)
			}
			return err
		},
	}

	cmd.Flags().DurationVar(&wait, "wait", 0, "Keep polling for up to this long")

	return cmd
}

// pollHealth returns the last answer seen, if any, alongside the error.
func pollHealth(ctx context.Context, wait time.Duration) (*HealthResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	deadline := time.Now().Add(wait)

	for {
		result, err := checkHealth()
		if err == nil {
			return result, nil
		}
		if time.Now().Add(healthPollInterval).After(deadline) {
			return result, err
		}

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(healthPollInterval):
		}
	}
}

// Any HTTP answer yields a result; only transport failures leave it nil.
func checkHealth() (*HealthResult, error) {
	var result HealthResult
	err := client.Get("/health", &result)
	var apiErr *APIError
	switch {
	case err == nil && result.OK:
		return &result, nil
	case err == nil:
		return &result, ErrUnhealthy
	case errors.As(err, &apiErr):
		return &HealthResult{}, fmt.Errorf("%w: %w", ErrUnhealthy, err)
	default:
		return nil, fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
}
