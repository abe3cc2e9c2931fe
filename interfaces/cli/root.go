package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"multipost/infrastructure/configuration"
	"multipost/infrastructure/logger"
)

// Exit codes.
const (
	ExitOK          = 0
	ExitNoSuccess   = 1
	ExitUsageConfig = 2
)

// exitError carries the process exit code for err.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func usageError(err error) error  { return &exitError{code: ExitUsageConfig, err: err} }
func configError(err error) error { return &exitError{code: ExitUsageConfig, err: err} }

// ExitCode maps a command error to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return ExitNoSuccess
}

type options struct {
	output    string
	logLevel  string
	logFormat string
}

// NewRootCommand builds the command tree. newApp is called lazily by the
// commands that need the wired services.
func NewRootCommand(newApp AppFactory) *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "multipost",
		Short: "Publish one video to several social platforms",
		Long: `multipost uploads a local video to YouTube, Facebook and TikTok in parallel,
keeps each platform's OAuth credentials fresh, and records one outcome per platform.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// stdout is reserved for command output.
			logger.SetOutput(cmd.ErrOrStderr())
			logger.Configure(opts.logFormat, opts.logLevel)
			switch opts.output {
			case outputTable, outputJSON, outputYAML:
				return nil
			}
			return usageError(fmt.Errorf("unknown output format %q", opts.output))
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return usageError(err) })
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", outputTable, "Output format: table, json or yaml")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "Log format (json or text)")

	root.AddCommand(
		newStatusCommand(newApp, opts),
		newAuthCommand(newApp),
		newPublishCommand(newApp, opts),
		newHistoryCommand(newApp, opts),
		newUploadStatusCommand(newApp, opts),
		newInvalidateCommand(newApp),
		newCredentialsCommand(newApp),
		newServeCommand(newApp),
		newTokenCommand(),
	)
	return root
}

// usageArgs turns a positional-argument validation failure into a usage error.
func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return usageError(err)
		}
		return nil
	}
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	configuration.LoadEnvFromFile("config.env", ".env")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := NewRootCommand(defaultAppFactory).ExecuteContext(ctx)
	var ee *exitError
	if err != nil && (!errors.As(err, &ee) || ee.err != nil) {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
	}
	return ExitCode(err)
}
