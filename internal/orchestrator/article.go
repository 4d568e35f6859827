package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/alnah/go-docpipe/internal/completion"
	"github.com/alnah/go-docpipe/internal/lang"
	"github.com/alnah/go-docpipe/internal/segment"
	"github.com/alnah/go-docpipe/internal/template"
	"github.com/alnah/go-docpipe/internal/transcript"
	"github.com/alnah/go-docpipe/internal/usage"
)

// ArticleOptions configures transcript-to-article conversion.
// Zero values select the defaults.
type ArticleOptions struct {
	// Window is the duration of transcript covered by one call (default 60m).
	Window time.Duration
	// ParagraphGap is the pause that starts a new paragraph (default 2s).
	ParagraphGap time.Duration
	// MaxChunkSize bounds the parts of untimed input, in characters
	// (default segment.DefaultMaxChunkSize).
	MaxChunkSize int
	// Target is the article language (default lang.Default).
	Target lang.Language
}

func (a ArticleOptions) withDefaults() ArticleOptions {
	if a.Window <= 0 {
		a.Window = transcript.DefaultWindow
	}
	if a.ParagraphGap <= 0 {
		a.ParagraphGap = transcript.DefaultParagraphGap
	}
	if a.MaxChunkSize <= 0 {
		a.MaxChunkSize = segment.DefaultMaxChunkSize
	}
	a.Target = a.Target.OrDefault()
	return a
}

// Article turns a transcript into one article. An SRT input is cut into
// time windows; any other input is packed into paragraph groups. Each part
// is rewritten by one call ("part i of n"), then one synthesis call merges
// the parts and adds an introduction and conclusion.
//
// A failed part falls back to its plain text; a failed synthesis falls back
// to the concatenated parts. Both are listed in Result.Failures.
func (o *Orchestrator) Article(ctx context.Context, input string, client completion.Client, opts ArticleOptions) (Result, error) {
	opts = opts.withDefaults()

	parts, err := o.articleParts(input, opts)
	if err != nil {
		return Result{}, err
	}
	if len(parts) == 0 {
		return Result{}, nil
	}

	system := template.ArticleName.System(opts.Target)
	outputs := make([]string, len(parts))
	stats := make([]usage.Stats, len(parts)+1)
	failures := make([]*ChunkError, len(parts)+1)
	tracker := o.newTracker(len(parts) + 1)

	err = o.forEach(ctx, len(parts), func(ctx context.Context, i int) error {
		prompt := template.WindowPrompt(parts[i], i+1, len(parts), opts.Target)
		text, st, err := o.attempt(ctx, i, func(ctx context.Context) (string, usage.Stats, error) {
			return complete(ctx, client, prompt, system)
		})
		if err != nil {
			if abortErr := o.abort(ctx, err); abortErr != nil {
				return fmt.Errorf("part %d of %d: %w", i+1, len(parts), abortErr)
			}
			outputs[i] = parts[i]
			failures[i] = o.fail(i, 0, StageWindow, err)
			tracker.done(i, true, usage.Stats{})
			return nil
		}
		outputs[i] = text
		stats[i] = st
		tracker.done(i, false, st)
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	merged := strings.Join(outputs, "\n\n")
	synthesis := len(parts)
	prompt := template.SynthesisPrompt(merged, opts.Target)

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	text, st, err := o.attempt(ctx, synthesis, func(ctx context.Context) (string, usage.Stats, error) {
		return complete(ctx, client, prompt, system)
	})
	if err != nil {
		if abortErr := o.abort(ctx, err); abortErr != nil {
			return Result{}, fmt.Errorf("synthesis: %w", abortErr)
		}
		failures[synthesis] = o.fail(synthesis, 0, StageSynthesis, err)
		tracker.done(synthesis, true, usage.Stats{})
		text = merged
	} else {
		stats[synthesis] = st
		tracker.done(synthesis, false, st)
	}

	return Result{
		Text:     text,
		Usage:    usage.Sum(stats...),
		Failures: compact(failures),
	}, nil
}

// articleParts returns the plain-text parts of input: one per time window
// for SRT input, paragraph groups otherwise. Blank parts are dropped.
func (o *Orchestrator) articleParts(input string, opts ArticleOptions) ([]string, error) {
	var parts []string

	entries, err := transcript.Parse(input)
	switch {
	case err == nil:
		windows := transcript.Windows(entries, opts.Window)
		o.logger.Info("transcript parsed",
			zap.Int("entries", len(entries)),
			zap.Duration("duration", transcript.Duration(entries)),
			zap.Int("windows", len(windows)),
		)
		for _, w := range windows {
			o.logger.Debug("window",
				zap.Int("index", w.Index),
				zap.String("from", transcript.FormatTimestamp(w.Start)),
				zap.String("to", transcript.FormatTimestamp(w.End)),
				zap.Int("entries", len(w.Entries)),
			)
			parts = append(parts, w.Text(opts.ParagraphGap))
		}
	case errors.Is(err, transcript.ErrMalformed):
		o.logger.Info("input is not a subtitle file, splitting by paragraphs", zap.Error(err))
		parts = segment.Paragraphs(strings.TrimSpace(input), opts.MaxChunkSize)
	default:
		return nil, err
	}

	kept := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return kept, nil
}

func complete(ctx context.Context, client completion.Client, prompt, system string) (string, usage.Stats, error) {
	resp, err := client.Complete(ctx, completion.Request{Prompt: prompt, SystemPrompt: system})
	if err != nil {
		return "", usage.Stats{}, err
	}
	return strings.TrimSpace(resp.Text), resp.Usage, nil
}
