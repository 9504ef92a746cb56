// Package cli implements the fibersim command line.
package cli

import (
	"log/slog"

	"github.com/Swind/go-fiber-runner/internal/logging"
	"github.com/spf13/cobra"
)

var (
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
)

// NewRootCmd creates the root cobra command for the fibersim CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "fibersim",
		Short: "fibersim runs cooperative firmware task scenarios on a host",
		Long: "fibersim drives a fixed-capacity cooperative task scheduler from a frame loop,\n" +
			"the way a host emulator runs firmware tasks, and records what every task did.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebug {
				flagLogLevel = "debug"
			}
			logger = logging.NewLoggerWithWriter(logging.ParseLevel(flagLogLevel), flagLogFormat, cmd.ErrOrStderr())
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newRunCmd(),
		newValidateCmd(),
		newHistoryCmd(),
	)

	return root
}
