// Package cli provides the command-line interface for tracediff.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ccollicutt/tracediff/internal/cli/commands"
	"github.com/ccollicutt/tracediff/internal/cli/plugins"
	"github.com/ccollicutt/tracediff/internal/logging"
	"github.com/ccollicutt/tracediff/pkg/config"
)

// ExitInterrupted is returned when the run was cancelled by a signal.
const ExitInterrupted = 130

// Execute runs the root command with os.Args and returns the exit code.
func Execute(ctx context.Context) int {
	return execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	rootCmd := NewRootCommand()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	commands.ExitCode = 0

	// Check if the first argument might be a plugin command
	if len(args) > 0 {
		potentialCommand := args[0]
		// Skip flags (start with -)
		if len(potentialCommand) > 0 && potentialCommand[0] != '-' {
			if !isBuiltinCommand(rootCmd, potentialCommand) {
				if pluginPath, err := plugins.FindPlugin(potentialCommand); err == nil {
					return runPlugin(ctx, &plugins.Invocation{
						Command: potentialCommand,
						Path:    pluginPath,
						Args:    args[1:],
						Stdin:   os.Stdin,
						Stdout:  stdout,
						Stderr:  stderr,
					})
				}
				// Plugin not found - will fall through to Cobra which will show error
			}
		}
	}

	err := rootCmd.ExecuteContext(ctx)
	_ = logging.FromContext(rootCmd.Context()).Sync()
	if err != nil {
		if errors.Is(err, context.Canceled) {
			_, _ = fmt.Fprintln(stderr, "Interrupted")
			return ExitInterrupted
		}
		if len(args) > 0 {
			potentialCommand := args[0]
			if len(potentialCommand) > 0 && potentialCommand[0] != '-' {
				if !isBuiltinCommand(rootCmd, potentialCommand) {
					_, _ = fmt.Fprintln(stderr, plugins.FormatNotFoundError(potentialCommand, plugins.List()))
					return 2
				}
			}
		}
		// Print error to stderr (SilenceErrors prevents Cobra from doing this)
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2 // Configuration or runtime error
	}
	return commands.ExitCode
}

func runPlugin(ctx context.Context, inv *plugins.Invocation) int {
	code, err := plugins.Execute(ctx, inv)
	if err != nil {
		_, _ = fmt.Fprintln(inv.Stderr, "Interrupted")
		return ExitInterrupted
	}
	return code
}

// isBuiltinCommand checks if a command name is a built-in cobra command.
func isBuiltinCommand(rootCmd *cobra.Command, name string) bool {
	for _, cmd := range rootCmd.Commands() {
		if cmd.Name() == name || cmd.HasAlias(name) {
			return true
		}
	}
	// Also check for special commands like help and completion
	return name == "help" || name == "completion"
}

// NewRootCommand creates the root cobra command.
func NewRootCommand() *cobra.Command {
	logCfg := logging.DefaultConfig()

	rootCmd := &cobra.Command{
		Use:   "tracediff",
		Short: "Compare execution traces line by line",
		Long: `tracediff compares an execution trace produced by an emulator (output.log)
against a reference trace (nestest.log) and prints every line whose compared
fields differ.

Rules select which fields are compared:
  - tail: one token per line, the last by default
  - positional: a key token plus one field, optionally from fixed columns
  - fields: any list of token indices

PLUGINS:
  tracediff supports plugins for extended functionality. Plugins are standalone
  binaries named tracediff-<command> that are automatically discovered and invoked.

  Plugin locations (searched in order):
    1. Same directory as the tracediff binary
    2. ~/.tracediff/plugins/
    3. Anywhere in PATH

  Plugins receive TRACEDIFF_BIN, TRACEDIFF_PLUGIN and TRACEDIFF_PLUGIN_DIR
  in their environment.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(cmd, &logCfg)
		},
	}

	rootCmd.PersistentFlags().StringVar(&logCfg.Level, "log-level", logCfg.Level, "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&logCfg.Format, "log-format", logCfg.Format, "Log format (console|json)")

	rootCmd.AddCommand(commands.NewCompareCommand())
	rootCmd.AddCommand(commands.NewDetectCommand())
	rootCmd.AddCommand(commands.NewDiagnoseCommand())
	rootCmd.AddCommand(commands.NewValidateCommand())
	rootCmd.AddCommand(commands.NewVersionCommand())

	return rootCmd
}

// setupLogging builds the logger from flags and TRACEDIFF_LOG_* variables and
// stores it in the command context. Flags win over the environment.
func setupLogging(cmd *cobra.Command, cfg *logging.Config) error {
	env, err := config.LoadEnv()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if env.LogLevel != "" && !flags.Changed("log-level") {
		cfg.Level = env.LogLevel
	}
	if env.LogFormat != "" && !flags.Changed("log-format") {
		cfg.Format = env.LogFormat
	}

	logger, err := logging.New(*cfg)
	if err != nil {
		return fmt.Errorf("configuring logging: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = logging.NewContext(ctx, logger)

	cmd.SetContext(ctx)
	if root := cmd.Root(); root != cmd {
		root.SetContext(ctx)
	}
	return nil
}
