package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"multipost/domain/model"
	"multipost/infrastructure/backup"
)

func newCredentialsCommand(newApp AppFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage stored platform credentials",
	}
	cmd.AddCommand(newBackupCommand(newApp))
	return cmd
}

func newBackupCommand(newApp AppFactory) *cobra.Command {
	var (
		platform string
		toS3     bool
	)
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Export stored credentials as a timestamped zip archive",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			storage := app.Config.Storage
			var archiver backup.Archiver
			if toS3 {
				if storage.BackupBucket == "" {
					return configError(errors.New("--s3 needs storage.backupBucket (BACKUP_BUCKET)"))
				}
				archiver, err = backup.NewS3Archiver(cmd.Context(), backup.S3Config{
					Bucket:    storage.BackupBucket,
					Prefix:    "credentials/",
					Region:    storage.S3Region,
					Endpoint:  storage.S3Endpoint,
					AccessKey: storage.S3AccessKey,
					SecretKey: storage.S3SecretKey,
				})
				if err != nil {
					return configError(err)
				}
			} else {
				archiver = backup.NewDirArchiver(storage.BackupDir)
			}

			location, err := backup.NewCredentialBackup(app.Store, archiver).Backup(cmd.Context(), model.ParsePlatformID(platform))
			if err != nil {
				return fmt.Errorf("backup credentials: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("✓ Credentials backed up to "+location))
			return nil
		},
	}
	cmd.Flags().StringVar(&platform, "platform", "", "Back up a single platform")
	cmd.Flags().BoolVar(&toS3, "s3", false, "Upload the archive to the configured S3 bucket")
	return cmd
}
