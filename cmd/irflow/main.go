package main

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ludo-technologies/irflow/internal/config"
	"github.com/ludo-technologies/irflow/internal/version"
	"github.com/ludo-technologies/irflow/service"
)

// newRootCmd builds the command tree. Each call returns fresh flag state.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "irflow",
		Short: "Dataflow analysis and execution for block-structured IR",
		Long: `irflow analyzes and runs programs written in a small block-structured
intermediate representation with closures, threads and non-local control
transfer (break, next, redo, retry, return).

Programs come from YAML files or from Go packages translated through SSA.

Features:
  • Live variables, defined variables, reaching definitions and reachability
  • Findings for dead stores, undefined uses and unreachable code
  • A reference interpreter with lambda, proc and thread block semantics`,
		Version:       version.Short(),
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().Bool(service.FlagDebug, false, "Enable debug logging on stderr")

	rootCmd.AddCommand(NewAnalyzeCmd())
	rootCmd.AddCommand(NewRunCmd())
	rootCmd.AddCommand(NewInitCmd())
	rootCmd.AddCommand(NewVersionCmd())
	return rootCmd
}

// newLogger writes human-readable logs to w. Debug raises the level from
// warnings to debug events.
func newLogger(w io.Writer, debug bool) zerolog.Logger {
	level := zerolog.WarnLevel
	if debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}).
		Level(level).
		With().Timestamp().Logger()
}

// commandLogger builds the logger for cmd. An unset --debug flag falls
// back to runtime.debug from the configuration found for startPath.
func commandLogger(cmd *cobra.Command, configPath, startPath string) (zerolog.Logger, bool) {
	debug, _ := cmd.Flags().GetBool(service.FlagDebug)
	if !cmd.Flags().Changed(service.FlagDebug) {
		if cfg, err := config.LoadConfig(configPath, startPath); err == nil {
			debug = cfg.Runtime.Debug
		}
	}
	return newLogger(cmd.ErrOrStderr(), debug), debug
}

// explicitFlags lists the flags the user passed on the command line
func explicitFlags(cmd *cobra.Command) map[string]bool {
	explicit := make(map[string]bool)
	cmd.Flags().Visit(func(f *pflag.Flag) {
		explicit[f.Name] = true
	})
	return explicit
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
