package cli

import (
	"github.com/spf13/cobra"
)

func newStatusCommand(newApp AppFactory, opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show authentication status for every registered platform",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			statuses, err := app.Platforms.Status(cmd.Context())
			if err != nil {
				return err
			}
			return printStatus(cmd.OutOrStdout(), opts.output, statuses)
		},
	}
}
