package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var verbose bool

const defaultMaxImageBytes = 10 * 1024 * 1024

func NewRootCommand() *cobra.Command {
	rootCmd := cobra.Command{
		Use:   "depthctl",
		Short: "Smoke-test the depth estimation worker",
		Long: `Smoke-test the depth estimation worker.

'local' runs a job in-process against the configured model server.
'remote' sends a job to a deployed /runsync endpoint.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cmd.SilenceUsage = true
		},
		SilenceErrors: true,
	}
	setPersistentFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		newLocalCommand(),
		newRemoteCommand(),
	)

	return &rootCmd
}

func setPersistentFlags(flags *pflag.FlagSet) {
	flags.BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
}

func newLogger() (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return cfg.Build()
}
