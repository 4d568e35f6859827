package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/alnah/go-docpipe/internal/apierr"
	"github.com/alnah/go-docpipe/internal/completion"
	"github.com/alnah/go-docpipe/internal/config"
	"github.com/alnah/go-docpipe/internal/format"
	"github.com/alnah/go-docpipe/internal/lang"
	"github.com/alnah/go-docpipe/internal/orchestrator"
	"github.com/alnah/go-docpipe/internal/usage"
)

// Flag names shared by the processing commands.
const (
	flagOutput       = "output"
	flagProvider     = "provider"
	flagModel        = "model"
	flagLang         = "lang"
	flagMaxChunkSize = "max-chunk-size"
	flagConcurrency  = "concurrency"
	flagRetries      = "retries"
)

// runFlags holds command-line overrides of the configuration.
// Only flags set explicitly override the loaded config.
type runFlags struct {
	output       string
	provider     string
	model        string
	targetLang   string
	maxChunkSize int
	concurrency  int
	retries      int
}

func (f *runFlags) bind(cmd *cobra.Command, outputHelp string) {
	fl := cmd.Flags()
	fl.StringVarP(&f.output, flagOutput, "o", "", outputHelp)
	fl.StringVar(&f.provider, flagProvider, "", fmt.Sprintf("Completion provider: %v", completion.Providers()))
	fl.StringVar(&f.model, flagModel, "", "Model or endpoint ID (default: provider default)")
	fl.StringVarP(&f.targetLang, flagLang, "l", "", "Target language (ISO 639-1 code, e.g., zh, en, fr)")
	fl.IntVar(&f.maxChunkSize, flagMaxChunkSize, 0, "Maximum chunk size in characters")
	fl.IntVarP(&f.concurrency, flagConcurrency, "j", 0, "Chunks processed at once")
	fl.IntVar(&f.retries, flagRetries, 0, "Retries on rate limit or timeout")
}

// apply copies explicitly set flags into cfg.
func (f *runFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed(flagProvider) {
		cfg.Provider = f.provider
	}
	if changed(flagModel) {
		cfg.Model = f.model
	}
	if changed(flagLang) {
		cfg.TargetLang = f.targetLang
	}
	if changed(flagMaxChunkSize) {
		cfg.MaxChunkSize = f.maxChunkSize
	}
	if changed(flagConcurrency) {
		cfg.Concurrency = f.concurrency
	}
	if changed(flagRetries) {
		cfg.Retries = f.retries
	}
}

// loadConfig loads the configuration, applies flag overrides and validates.
func loadConfig(cmd *cobra.Command, env *Env, flags *runFlags) (config.Config, error) {
	cfg, err := env.ConfigLoader.Load()
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	if flags != nil {
		flags.apply(cmd, &cfg)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// ---------------------------------------------------------------------------
// session - one configured client shared by the files of a command
// ---------------------------------------------------------------------------

type session struct {
	env    *Env
	cfg    config.Config
	target lang.Language
	client completion.Client
	logger *zap.Logger
	// replace lets processFile overwrite an existing output.
	replace bool
}

// newSession resolves the provider, API key and model, then builds the client.
// Missing credentials fail here, before any input is read.
func newSession(env *Env, cfg config.Config) (*session, error) {
	p, err := completion.LookupProvider(cfg.Provider)
	if err != nil {
		return nil, err
	}

	apiKey := env.Getenv(p.KeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s (set it with: export %s=...)", ErrAPIKeyMissing, p.KeyEnv, p.KeyEnv)
	}
	if cfg.Model == "" && p.DefaultModel == "" {
		return nil, fmt.Errorf("%w for provider %s (set it with: docpipe config set %s <model-id>)",
			ErrModelMissing, p.Name, config.KeyModel)
	}

	logger := env.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("provider", p.Name))

	client, err := env.ClientFactory.NewClient(p.Name, apiKey,
		completion.WithModel(cfg.Model),
		completion.WithBaseURL(cfg.BaseURL),
		completion.WithPricing(cfg.Pricing()),
		completion.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	return &session{
		env:    env,
		cfg:    cfg,
		target: cfg.Language(),
		client: client,
		logger: logger,
	}, nil
}

// run executes one orchestrated pass with a fresh progress printer, then
// reports the units that kept their original text. Unit failures never fail
// the run: the result always carries a complete document.
func (s *session) run(fn func(o *orchestrator.Orchestrator) (orchestrator.Result, error)) (orchestrator.Result, error) {
	printer := &progressPrinter{w: s.env.Stderr, currency: s.cfg.Currency}
	o := orchestrator.New(
		orchestrator.WithMaxChunkSize(s.cfg.MaxChunkSize),
		orchestrator.WithConcurrency(s.cfg.Concurrency),
		orchestrator.WithRetries(s.cfg.Retries, 0, 0),
		orchestrator.WithProgress(printer.update),
		orchestrator.WithLogger(s.logger),
	)

	res, err := fn(o)
	if err != nil {
		return orchestrator.Result{}, err
	}

	for _, f := range res.Failures {
		fmt.Fprintf(s.env.Stderr, "  Warning: %v (original text kept)\n", f)
	}
	return res, nil
}

// processFile reads input, runs it through fn and writes output.
// Unless replace is set, the output path is checked before any call so a
// clash costs nothing.
func (s *session) processFile(input, output string, fn func(o *orchestrator.Orchestrator, content string) (orchestrator.Result, error)) (usage.Stats, error) {
	if !s.replace && fileExists(output) {
		return usage.Stats{}, fmt.Errorf("%s: %w", output, ErrOutputExists)
	}

	content, err := readInput(input)
	if err != nil {
		return usage.Stats{}, err
	}

	fmt.Fprintf(s.env.Stderr, "Processing %s (%s)...\n", input, format.Size(int64(len(content))))
	start := time.Now()

	res, err := s.run(func(o *orchestrator.Orchestrator) (orchestrator.Result, error) {
		return fn(o, content)
	})
	if err != nil {
		return usage.Stats{}, err
	}

	write := writeFileAtomic
	if s.replace {
		write = replaceFile
	}
	if err := write(output, res.Text); err != nil {
		return usage.Stats{}, err
	}

	s.logger.Info("file written",
		zap.String("input", input),
		zap.String("output", output),
		zap.Int("failures", len(res.Failures)),
		zap.Duration("elapsed", time.Since(start)),
	)
	fmt.Fprintf(s.env.Stderr, "Done: %s (%s)\n", output, format.Duration(time.Since(start)))
	return res.Usage, nil
}

// isAbort reports whether err must stop a multi-file run.
func isAbort(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, ErrAPIKeyMissing) ||
		apierr.IsFatal(err)
}
