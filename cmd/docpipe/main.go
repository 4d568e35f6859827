package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/alnah/go-docpipe/internal/apierr"
	"github.com/alnah/go-docpipe/internal/cli"
	"github.com/alnah/go-docpipe/internal/config"
	"github.com/alnah/go-docpipe/internal/interrupt"
	"github.com/alnah/go-docpipe/internal/lang"
	"github.com/alnah/go-docpipe/internal/logging"
	"github.com/alnah/go-docpipe/internal/transcript"
)

// Injected at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

// Exit codes.
const (
	ExitOK         = 0
	ExitGeneral    = 1
	ExitUsage      = 2
	ExitSetup      = 3
	ExitValidation = 4
	ExitService    = 5
)

func main() {
	// Load .env file if present (ignore error if missing).
	_ = godotenv.Load()

	// First Ctrl+C cancels the run; a second one exits at once.
	handler, ctx := interrupt.NewHandler(context.Background())

	env := cli.DefaultEnv()
	var verbose bool

	rootCmd := &cobra.Command{
		Use:     "docpipe",
		Short:   "Translate, polish and summarize documents with LLMs, chunk by chunk",
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		// Silence Cobra's default error/usage printing; we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(env, verbose)
			if err != nil {
				return err
			}
			env.Logger = logging.WithRunID(logger, logging.NewRunID()).With(zap.String("command", cmd.Name()))
			return nil
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug details (API calls, token counts)")

	rootCmd.AddCommand(cli.TranslateCmd(env))
	rootCmd.AddCommand(cli.PolishCmd(env))
	rootCmd.AddCommand(cli.ArticleCmd(env))
	rootCmd.AddCommand(cli.WatchCmd(env))
	rootCmd.AddCommand(cli.ConfigCmd(env))

	err := rootCmd.ExecuteContext(ctx)
	handler.Stop()
	_ = env.Logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}

// newLogger builds the stderr logger at the configured level.
// A config that fails to load falls back to info; the command reports it.
func newLogger(env *cli.Env, verbose bool) (*zap.Logger, error) {
	level := "info"
	if cfg, err := env.ConfigLoader.Load(); err == nil && cfg.LogLevel != "" {
		level = cfg.LogLevel
	}
	if verbose {
		level = "debug"
	}
	return logging.New(level, os.Stderr)
}

// exitCode maps errors to exit codes.
func exitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	// Check for context cancellation (interrupt).
	if errors.Is(err, context.Canceled) {
		return interrupt.ExitInterrupt
	}

	// Usage errors (ExitUsage = 2): Cobra flag/arg parsing errors.
	// Cobra doesn't expose typed errors, so we check for known error message patterns.
	if isCobraUsageError(err) {
		return ExitUsage
	}

	// Setup errors (ExitSetup = 3).
	if errors.Is(err, cli.ErrAPIKeyMissing) || errors.Is(err, cli.ErrModelMissing) ||
		errors.Is(err, apierr.ErrConfiguration) || errors.Is(err, logging.ErrInvalidLevel) ||
		errors.Is(err, config.ErrNotDirectory) || errors.Is(err, config.ErrNotWritable) {
		return ExitSetup
	}

	// Validation errors (ExitValidation = 4).
	if errors.Is(err, cli.ErrFileNotFound) || errors.Is(err, cli.ErrOutputExists) ||
		errors.Is(err, cli.ErrNoMarkdownFiles) ||
		errors.Is(err, config.ErrUnknownKey) || errors.Is(err, config.ErrInvalidValue) ||
		errors.Is(err, lang.ErrInvalid) ||
		errors.Is(err, transcript.ErrMalformed) {
		return ExitValidation
	}

	// Service errors (ExitService = 5).
	if errors.Is(err, apierr.ErrRateLimit) ||
		errors.Is(err, apierr.ErrQuotaExceeded) || errors.Is(err, apierr.ErrTimeout) ||
		errors.Is(err, apierr.ErrAuthFailed) || errors.Is(err, apierr.ErrBadRequest) ||
		errors.Is(err, apierr.ErrMalformedResponse) {
		return ExitService
	}

	return ExitGeneral
}

// cobraUsageErrorPatterns contains error message substrings that indicate Cobra usage errors.
// Cobra doesn't expose typed errors, so string matching is the only reliable approach.
var cobraUsageErrorPatterns = []string{
	"required flag",             // Missing required flag
	"unknown flag",              // Flag doesn't exist
	"unknown shorthand",         // Short flag doesn't exist
	"unknown command",           // Subcommand doesn't exist
	"flag needs an argument",    // Flag provided without value
	"invalid argument",          // Invalid flag value type
	"if any flags in the group", // Mutually exclusive flag violation
	"accepts ",                  // Wrong number of arguments (e.g., "accepts 1 arg(s)")
	"requires at least",         // Too few arguments
	"requires at most",          // Too many arguments
}

// isCobraUsageError checks if an error is a Cobra usage/parsing error.
func isCobraUsageError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := err.Error()
	for _, pattern := range cobraUsageErrorPatterns {
		if strings.Contains(errMsg, pattern) {
			return true
		}
	}
	return false
}
