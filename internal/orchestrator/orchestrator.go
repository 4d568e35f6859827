// Package orchestrator runs a document through a text transform chunk by
// chunk, isolating per-chunk failures and accumulating usage.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/alnah/go-docpipe/internal/apierr"
	"github.com/alnah/go-docpipe/internal/completion"
	"github.com/alnah/go-docpipe/internal/lang"
	"github.com/alnah/go-docpipe/internal/segment"
	"github.com/alnah/go-docpipe/internal/template"
	"github.com/alnah/go-docpipe/internal/usage"
)

// Transform turns one chunk into its output text and reports the usage spent.
type Transform func(ctx context.Context, c segment.Chunk) (string, usage.Stats, error)

// Result is the outcome of a run.
// Failures lists the units that fell back to their original text, in order.
type Result struct {
	Text     string
	Usage    usage.Stats
	Failures []*ChunkError
}

// Stage names the step of a run a unit failed in.
type Stage string

// Stages.
const (
	StageTransform Stage = "transform"
	StageWindow    Stage = "window"
	StageSynthesis Stage = "synthesis"
)

// ChunkError records a unit that could not be transformed.
type ChunkError struct {
	Position int
	Part     int
	Stage    Stage
	Err      error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("%s failed at position %d.%d: %v", e.Stage, e.Position, e.Part, e.Err)
}

func (e *ChunkError) Unwrap() error {
	return e.Err
}

// Progress is reported after each unit completes.
type Progress struct {
	Done     int
	Total    int
	Position int
	Failed   bool
	// Usage is cumulative over the units done so far.
	Usage usage.Stats
}

// Orchestrator processes documents. It holds no per-run state and is safe
// for concurrent use.
type Orchestrator struct {
	maxChunkSize int
	concurrency  int
	retry        apierr.RetryConfig
	onProgress   func(Progress)
	logger       *zap.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMaxChunkSize sets the maximum chunk size in characters.
// n <= 0 disables sub-splitting.
func WithMaxChunkSize(n int) Option {
	return func(o *Orchestrator) {
		o.maxChunkSize = n
	}
}

// WithConcurrency bounds how many chunks are transformed at once.
// The default, 1, processes chunks strictly in order.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n >= 1 {
			o.concurrency = n
		}
	}
}

// WithRetries retries transient transform failures (rate limit, timeout)
// up to n times with exponential backoff between base and max.
func WithRetries(n int, base, max time.Duration) Option {
	return func(o *Orchestrator) {
		if n >= 0 {
			o.retry.MaxRetries = n
		}
		if base > 0 {
			o.retry.BaseDelay = base
		}
		if max > 0 {
			o.retry.MaxDelay = max
		}
	}
}

// WithProgress sets a callback invoked after each unit.
// Calls are serialized.
func WithProgress(fn func(Progress)) Option {
	return func(o *Orchestrator) {
		o.onProgress = fn
	}
}

// WithLogger sets the logger. Failed units are logged at warn level.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// New creates an Orchestrator.
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		maxChunkSize: segment.DefaultMaxChunkSize,
		concurrency:  1,
		retry: apierr.RetryConfig{
			BaseDelay: time.Second,
			MaxDelay:  30 * time.Second,
		},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Process segments document and runs every non-blank chunk through
// transform. A chunk whose transform fails keeps its original text and is
// listed in Result.Failures. Configuration errors and context cancellation
// abort the run and return an error with a zero Result.
//
// The output joins the chunk outputs in position order with each chunk's
// original trailing separator, so the identity transform reproduces
// document exactly.
func (o *Orchestrator) Process(ctx context.Context, document string, transform Transform) (Result, error) {
	chunks := segment.Segment(document, o.maxChunkSize)
	segment.Sort(chunks)

	outputs := make([]segment.Chunk, len(chunks))
	stats := make([]usage.Stats, len(chunks))
	failures := make([]*ChunkError, len(chunks))
	tracker := o.newTracker(len(chunks))

	err := o.forEach(ctx, len(chunks), func(ctx context.Context, i int) error {
		c := chunks[i]
		outputs[i] = c

		if c.IsBlank() {
			tracker.done(c.Position, false, usage.Stats{})
			return nil
		}

		text, st, err := o.attempt(ctx, c.Position, func(ctx context.Context) (string, usage.Stats, error) {
			return transform(ctx, c)
		})
		if err != nil {
			if abortErr := o.abort(ctx, err); abortErr != nil {
				return fmt.Errorf("chunk at line %d: %w", c.Position+1, abortErr)
			}
			failures[i] = o.fail(c.Position, c.Part(), StageTransform, err)
			tracker.done(c.Position, true, usage.Stats{})
			return nil
		}

		outputs[i] = c.WithText(text)
		stats[i] = st
		tracker.done(c.Position, false, st)
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	return Result{
		Text:     segment.Join(outputs),
		Usage:    usage.Sum(stats...),
		Failures: compact(failures),
	}, nil
}

// CompletionTransform sends each chunk through a prompt template.
func CompletionTransform(client completion.Client, tmpl template.Name, target lang.Language) Transform {
	system := tmpl.System(target)
	return func(ctx context.Context, c segment.Chunk) (string, usage.Stats, error) {
		resp, err := client.Complete(ctx, completion.Request{
			Prompt:       tmpl.User(c.Text, target),
			SystemPrompt: system,
		})
		if err != nil {
			return "", usage.Stats{}, err
		}
		return strings.TrimSpace(resp.Text), resp.Usage, nil
	}
}

// ---------------------------------------------------------------------------
// Run helpers shared by Process and Article
// ---------------------------------------------------------------------------

// forEach calls fn for 0..n-1, sequentially or with bounded parallelism.
// The first error stops the run.
func (o *Orchestrator) forEach(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	if o.concurrency <= 1 {
		for i := range n {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(ctx, i); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for i := range n {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, i)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	// errgroup cancels gctx on first error only; a parent cancellation that
	// raced the last unit is still fatal.
	return ctx.Err()
}

type outcome struct {
	text  string
	stats usage.Stats
}

// attempt runs fn under the retry policy.
func (o *Orchestrator) attempt(ctx context.Context, position int, fn func(ctx context.Context) (string, usage.Stats, error)) (string, usage.Stats, error) {
	cfg := o.retry
	cfg.OnRetry = func(retry int, err error) {
		o.logger.Info("retrying",
			zap.Int("position", position),
			zap.Int("retry", retry),
			zap.Error(err),
		)
	}
	res, err := apierr.RetryWithBackoff(ctx, cfg, func(ctx context.Context) (outcome, error) {
		text, st, err := fn(ctx)
		return outcome{text: text, stats: st}, err
	}, apierr.IsTransient)
	return res.text, res.stats, err
}

// abort returns the error that must stop the run, or nil if err only
// affects the current unit.
func (o *Orchestrator) abort(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if apierr.IsFatal(err) {
		return err
	}
	return nil
}

func (o *Orchestrator) fail(position, part int, stage Stage, err error) *ChunkError {
	o.logger.Warn("chunk failed, keeping original text",
		zap.Int("position", position),
		zap.Int("part", part),
		zap.String("stage", string(stage)),
		zap.Error(err),
	)
	return &ChunkError{Position: position, Part: part, Stage: stage, Err: err}
}

func compact(failures []*ChunkError) []*ChunkError {
	var out []*ChunkError
	for _, f := range failures {
		if f != nil {
			out = append(out, f)
		}
	}
	return out
}

// tracker accumulates progress across units.
type tracker struct {
	mu      sync.Mutex
	total   int
	count   int
	running usage.Stats
	notify  func(Progress)
}

func (o *Orchestrator) newTracker(total int) *tracker {
	return &tracker{total: total, notify: o.onProgress}
}

func (t *tracker) done(position int, failed bool, st usage.Stats) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.count++
	t.running = usage.Merge(t.running, st)
	if t.notify != nil {
		t.notify(Progress{
			Done:     t.count,
			Total:    t.total,
			Position: position,
			Failed:   failed,
			Usage:    t.running,
		})
	}
}
