package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/alnah/go-docpipe/internal/config"
	"github.com/alnah/go-docpipe/internal/format"
	"github.com/alnah/go-docpipe/internal/orchestrator"
)

// ArticleCmd creates the article command (transcript to article).
// The env parameter provides injectable dependencies for testing.
func ArticleCmd(env *Env) *cobra.Command {
	var (
		flags  runFlags
		window time.Duration
	)

	cmd := &cobra.Command{
		Use:   "article <transcript>",
		Short: "Turn a transcript into an article",
		Long: `Turn a transcript into a single Markdown article.

An SRT subtitle file is cut into time windows (default 60m); each window is
rewritten, then the parts are merged with an introduction and a conclusion.
Any other text file is split by paragraphs instead.

The output is written as <name>_article.md.`,
		Example: `  docpipe article lecture.srt
  docpipe article lecture.srt --window 30m -l en
  docpipe article notes.txt -o article.md`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, env, &flags)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("window") {
				if window <= 0 {
					return fmt.Errorf("%w: window must be positive, got %s", config.ErrInvalidValue, window)
				}
				cfg.Window = config.Duration{Duration: window}
			}
			return runArticle(cmd.Context(), env, cfg, args[0], flags.output)
		},
	}

	flags.bind(cmd, "Output file (default: <input>_article.md)")
	cmd.Flags().DurationVarP(&window, "window", "w", 0, "Transcript duration covered by one call (default 60m)")
	return cmd
}

// runArticle executes the article command with a validated config.
func runArticle(ctx context.Context, env *Env, cfg config.Config, input, output string) error {
	s, err := newSession(env, cfg)
	if err != nil {
		return err
	}

	output = config.ResolveOutputPath(output, cfg.OutputDir, deriveOutputName(input, "_article"))
	warnNonMarkdownExtension(env.Stderr, output)

	fmt.Fprintf(env.Stderr, "Using %s (article in %s, %s windows)\n",
		cfg.Provider, s.target.DisplayName(), format.DurationHuman(cfg.Window.Duration))

	total, err := s.processFile(input, output, func(o *orchestrator.Orchestrator, content string) (orchestrator.Result, error) {
		return o.Article(ctx, content, s.client, orchestrator.ArticleOptions{
			Window:       cfg.Window.Duration,
			MaxChunkSize: cfg.MaxChunkSize,
			Target:       s.target,
		})
	})
	if err != nil {
		return err
	}

	printSummary(env.Stderr, total, cfg.Currency)
	return nil
}
