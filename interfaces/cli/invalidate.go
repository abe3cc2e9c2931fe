package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"multipost/domain/model"
)

func newInvalidateCommand(newApp AppFactory) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "invalidate <platform>",
		Short: "Mark a platform's stored credential unusable",
		Long: `Flag the stored credential for a platform as invalid. The record is kept
but every publish fails fast with an auth error until the platform is authorized again.`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if reason == "" {
				return usageError(errors.New("--reason is required"))
			}
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			p := model.ParsePlatformID(args[0])
			if err := app.Creds.Invalidate(cmd.Context(), p, reason); err != nil {
				return fmt.Errorf("invalidate %s: %w", p, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), warnStyle.Render(fmt.Sprintf("✓ %s credential invalidated: %s", p, reason)))
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Why the credential is being invalidated")
	return cmd
}
