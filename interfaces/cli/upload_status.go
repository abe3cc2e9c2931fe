package cli

import (
	"github.com/spf13/cobra"
	"multipost/domain/model"
)

func newUploadStatusCommand(newApp AppFactory, opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "upload-status <platform> <remote-id>",
		Short: "Ask a platform for the processing state of an uploaded video",
		Args:  usageArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			st, err := app.Platforms.UploadStatus(cmd.Context(), model.ParsePlatformID(args[0]), args[1])
			if err != nil {
				return err
			}
			return printUploadStatus(cmd.OutOrStdout(), opts.output, st)
		},
	}
}
