package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"multipost/infrastructure/configuration"
	"multipost/interfaces/middleware"
)

func newTokenCommand() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the /api routes",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := middleware.IssueToken(configuration.C.App.SecretKey, subject, ttl)
			if err != nil {
				return configError(fmt.Errorf("%w (set app.secretKey or SECRET_KEY)", err))
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "multipost", "Token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}
