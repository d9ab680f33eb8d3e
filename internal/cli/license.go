package cli

import (
	"errors"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcoot/tebex-license-server/internal/credential"
	"github.com/mcoot/tebex-license-server/internal/dependencies/clock"
	"github.com/mcoot/tebex-license-server/internal/dependencies/random"
	"github.com/mcoot/tebex-license-server/internal/model"
)

// ErrInvalidLicense is returned by validate when the server says no
var ErrInvalidLicense = errors.New("license is not valid")

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <key>",
		Short: "Ask the server whether a license key is valid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := client.Validate(args[0])
			if err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			if !result.Valid {
				return ErrInvalidLicense
			}
			return nil
		},
	}
}

func newInspectCmd() *cobra.Command {
	var secret string

	cmd := &cobra.Command{
		Use:   "inspect <key>",
		Short: "Decode a signed license key locally",
		Long: `Decode the claims inside a signed license key without contacting the server.

With --secret the signature and expiry are verified as the server would.
Without it the claims are shown unverified.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := inspect(args[0], secret)
			if err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", cfg.LicenseSecret, "License signing secret; verifies the key (env: LICENSE_SECRET)")

	return cmd
}

func inspect(key, secret string) (InspectResult, error) {
	var (
		claims *model.Claims
		err    error
	)
	if secret == "" {
		claims, err = credential.Inspect(key)
	} else {
		var codec *credential.SignedCodec
		codec, err = credential.NewSignedCodec([]byte(secret), credential.DefaultLifetime, clock.New(), random.New())
		if err != nil {
			return InspectResult{}, err
		}
		claims, err = codec.Verify(key)
	}
	if err != nil {
		return InspectResult{}, err
	}

	return InspectResult{
		ID:        claims.ID,
		Player:    claims.Player,
		Product:   claims.ProductID,
		IssuedAt:  claims.IssuedAt.Format(time.RFC3339),
		ExpiresAt: claims.ExpiresAt.Format(time.RFC3339),
		Verified:  secret != "",
	}, nil
}

func newRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <key>",
		Short: "Revoke a license key (requires the admin token)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result RevokeResult

			if err := client.Delete("/admin/licenses/"+url.PathEscape(args[0]), &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			return nil
		},
	}
}
