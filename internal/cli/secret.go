package cli

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcoot/tebex-license-server/internal/dependencies/random"
)

func newSecretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Secret helpers",
	}

	cmd.AddCommand(newSecretGenerateCmd())

	return cmd
}

func newSecretGenerateCmd() *cobra.Command {
	var size int

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Print a random hex secret for LICENSE_SECRET, TEBEX_SECRET or ADMIN_TOKEN",
		RunE: func(cmd *cobra.Command, args []string) error {
			if size < 16 {
				return fmt.Errorf("--bytes must be at least 16")
			}
			b, err := random.New().Bytes(size)
			if err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(SecretResult{Secret: hex.EncodeToString(b)})
			return nil
		},
	}

	cmd.Flags().IntVar(&size, "bytes", 32, "Number of random bytes")

	return cmd
}
