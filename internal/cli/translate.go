package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alnah/go-docpipe/internal/config"
	"github.com/alnah/go-docpipe/internal/format"
	"github.com/alnah/go-docpipe/internal/orchestrator"
	"github.com/alnah/go-docpipe/internal/template"
	"github.com/alnah/go-docpipe/internal/usage"
)

// TranslateCmd creates the translate command.
// The env parameter provides injectable dependencies for testing.
func TranslateCmd(env *Env) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "translate <file|directory>",
		Short: "Translate a Markdown document",
		Long: `Translate a Markdown document chunk by chunk, keeping its structure.

A file is written as <name>_<lang>.md in the output directory
(config output-dir, or the current directory).
A directory translates every .md file in it as <lang>_<name>.md; files
whose output already exists are skipped, so an interrupted batch resumes.

A chunk whose translation fails keeps its original text.`,
		Example: `  docpipe translate README.md
  docpipe translate README.md -l en -o README.en.md
  docpipe translate docs/ -o docs-zh/ -j 4`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, env, &flags)
			if err != nil {
				return err
			}
			info, err := os.Stat(args[0])
			if err != nil {
				if os.IsNotExist(err) {
					return fmt.Errorf("%s: %w", args[0], ErrFileNotFound)
				}
				return fmt.Errorf("cannot access input: %w", err)
			}
			if info.IsDir() {
				return runTranslateDir(cmd.Context(), env, cfg, args[0], flags.output)
			}
			return runTranslateFile(cmd.Context(), env, cfg, args[0], flags.output, template.TranslateName)
		},
	}

	flags.bind(cmd, "Output file, or output directory for a directory input")
	return cmd
}

// runTranslateFile handles a single-file translate (or polish, with tmpl).
func runTranslateFile(ctx context.Context, env *Env, cfg config.Config, input, output string, tmpl template.Name) error {
	s, err := newSession(env, cfg)
	if err != nil {
		return err
	}

	suffix := "_" + s.target.String()
	if tmpl == template.PolishName {
		suffix = "_polished"
	}
	output = config.ResolveOutputPath(output, cfg.OutputDir, deriveOutputName(input, suffix))
	warnNonMarkdownExtension(env.Stderr, output)

	fmt.Fprintf(env.Stderr, "Using %s (%s -> %s)\n", cfg.Provider, tmpl, s.target.DisplayName())
	total, err := s.processFile(input, output, func(o *orchestrator.Orchestrator, content string) (orchestrator.Result, error) {
		return o.Process(ctx, content, orchestrator.CompletionTransform(s.client, tmpl, s.target))
	})
	if err != nil {
		return err
	}

	printSummary(env.Stderr, total, cfg.Currency)
	return nil
}

// markdownFiles lists the .md files of dir in name order, skipping outputs
// of earlier runs ("<lang>_" prefix).
func markdownFiles(dir, target string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot read directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !isMarkdown(name) || strings.HasPrefix(name, target+"_") {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	return files, nil
}

// runTranslateDir translates every Markdown file of dir into outputDir.
// A failing file is reported and the batch continues; only an abort
// (interrupt, missing credentials, configuration) stops it.
func runTranslateDir(ctx context.Context, env *Env, cfg config.Config, dir, outputDir string) error {
	s, err := newSession(env, cfg)
	if err != nil {
		return err
	}

	switch {
	case outputDir != "":
	case cfg.OutputDir != "":
		outputDir = cfg.OutputDir
	default:
		outputDir = dir
	}
	outputDir = config.ExpandPath(outputDir)
	if err := config.EnsureOutputDir(outputDir); err != nil {
		return fmt.Errorf("invalid output directory: %w", err)
	}

	target := s.target.String()
	files, err := markdownFiles(dir, target)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("%s: %w", dir, ErrNoMarkdownFiles)
	}

	fmt.Fprintf(env.Stderr, "Translating %d files to %s (%s)\n", len(files), s.target.DisplayName(), cfg.Provider)

	var (
		total               usage.Stats
		done, skipped, fail int
		firstErr            error
	)
	transform := orchestrator.CompletionTransform(s.client, template.TranslateName, s.target)
	for i, input := range files {
		output := filepath.Join(outputDir, batchOutputName(target, input))
		fmt.Fprintf(env.Stderr, "%s %s\n", format.Progress(i+1, len(files)), filepath.Base(input))

		if fileExists(output) {
			fmt.Fprintf(env.Stderr, "  Skipping: %s already exists\n", output)
			skipped++
			continue
		}

		st, err := s.processFile(input, output, func(o *orchestrator.Orchestrator, content string) (orchestrator.Result, error) {
			return o.Process(ctx, content, transform)
		})
		if err != nil {
			if isAbort(err) {
				printSummary(env.Stderr, total, cfg.Currency)
				return err
			}
			fmt.Fprintf(env.Stderr, "  Error: %v\n", err)
			fail++
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		total = usage.Merge(total, st)
		done++
	}

	fmt.Fprintf(env.Stderr, "\nTranslated %d of %d files (%d skipped, %d failed)\n", done, len(files), skipped, fail)
	printSummary(env.Stderr, total, cfg.Currency)

	if firstErr != nil {
		return fmt.Errorf("%d of %d files failed: %w", fail, len(files), firstErr)
	}
	return nil
}
