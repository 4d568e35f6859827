package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alnah/go-docpipe/internal/config"
	"github.com/alnah/go-docpipe/internal/orchestrator"
	"github.com/alnah/go-docpipe/internal/template"
	"github.com/alnah/go-docpipe/internal/usage"
	"github.com/alnah/go-docpipe/internal/watch"
)

// WatchCmd creates the watch command.
// The env parameter provides injectable dependencies for testing.
func WatchCmd(env *Env) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "watch <input-dir> [output-dir]",
		Short: "Translate Markdown files as they appear in a directory",
		Long: `Watch a directory and translate every .md file that is created or
changed, once it has stopped changing. Outputs are named <lang>_<name>.md;
a changed file is translated again and its output replaced.

The output directory defaults to config output-dir, then to the input
directory. Press Ctrl+C to stop; the usage total is printed on exit.`,
		Example: `  docpipe watch inbox/ translated/
  docpipe watch notes/ -l en`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, env, &flags)
			if err != nil {
				return err
			}
			outputDir := ""
			if len(args) == 2 {
				outputDir = args[1]
			}
			return runWatch(cmd.Context(), env, cfg, args[0], outputDir)
		},
	}

	flags.bind(cmd, "Output directory (same as the second argument)")
	return cmd
}

// runWatch translates files from inputDir until ctx is cancelled.
// Cancellation is a normal stop and returns nil.
func runWatch(ctx context.Context, env *Env, cfg config.Config, inputDir, outputDir string) error {
	s, err := newSession(env, cfg)
	if err != nil {
		return err
	}
	s.replace = true

	switch {
	case outputDir != "":
	case cfg.OutputDir != "":
		outputDir = cfg.OutputDir
	default:
		outputDir = inputDir
	}
	outputDir = config.ExpandPath(outputDir)
	if err := config.EnsureOutputDir(outputDir); err != nil {
		return fmt.Errorf("invalid output directory: %w", err)
	}

	w, err := watch.New(inputDir, watch.WithLogger(s.logger))
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	target := s.target.String()
	transform := orchestrator.CompletionTransform(s.client, template.TranslateName, s.target)
	var (
		total usage.Stats
		count int
	)

	handler := func(ctx context.Context, input string) error {
		if strings.HasPrefix(filepath.Base(input), target+"_") {
			return nil
		}
		output := filepath.Join(outputDir, batchOutputName(target, input))
		if fileExists(output) {
			fmt.Fprintf(env.Stderr, "Replacing %s\n", output)
		}
		st, err := s.processFile(input, output, func(o *orchestrator.Orchestrator, content string) (orchestrator.Result, error) {
			return o.Process(ctx, content, transform)
		})
		if err != nil {
			return err
		}
		total = usage.Merge(total, st)
		count++
		return nil
	}

	fmt.Fprintf(env.Stderr, "Watching %s -> %s (%s). Press Ctrl+C to stop.\n", inputDir, outputDir, s.target.DisplayName())
	err = w.Run(ctx, handler)

	fmt.Fprintf(env.Stderr, "\nStopped after %d files\n", count)
	printSummary(env.Stderr, total, cfg.Currency)

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
