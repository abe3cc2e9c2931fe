package cli

import (
	"errors"

	"github.com/spf13/cobra"
	"multipost/domain/model"
)

func newHistoryCommand(newApp AppFactory, opts *options) *cobra.Command {
	var requestID, platform string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded publish outcomes for a request or a platform",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (requestID == "") == (platform == "") {
				return usageError(errors.New("exactly one of --request or --platform is required"))
			}
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			var outcomes []*model.PublishOutcome
			if requestID != "" {
				outcomes, err = app.Tracker.HistoryByRequest(cmd.Context(), requestID)
			} else {
				outcomes, err = app.Tracker.HistoryByPlatform(cmd.Context(), model.ParsePlatformID(platform))
			}
			if err != nil {
				return err
			}
			return printOutcomes(cmd.OutOrStdout(), opts.output, outcomes)
		},
	}
	cmd.Flags().StringVar(&requestID, "request", "", "Publish request ID")
	cmd.Flags().StringVar(&platform, "platform", "", "Platform ID")
	return cmd
}

