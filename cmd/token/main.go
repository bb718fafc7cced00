// Command token prints a signed access token for the configured secret.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"rocket-relations/internal/auth"
	"rocket-relations/internal/config"
)

func newCommand() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:          "token <user-id> [role ...]",
		Short:        "Print a signed access token",
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			tok, err := auth.GenerateAccessToken(args[0], args[1:], cfg.JWTSecret, ttl)
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", auth.AccessTokenTTL, "token lifetime")
	return cmd
}

func main() {
	if err := newCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
