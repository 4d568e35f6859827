package orchestrator_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/alnah/go-docpipe/internal/apierr"
	"github.com/alnah/go-docpipe/internal/completion"
	"github.com/alnah/go-docpipe/internal/lang"
	"github.com/alnah/go-docpipe/internal/orchestrator"
	"github.com/alnah/go-docpipe/internal/segment"
	"github.com/alnah/go-docpipe/internal/template"
	"github.com/alnah/go-docpipe/internal/usage"
)

const threeSections = "# A\n\none\n\n# B\n\ntwo\n\n# C\n\nthree"

// ---------------------------------------------------------------------------
// TestProcess_Identity - identity transform reproduces the input
// ---------------------------------------------------------------------------

func TestProcess_Identity(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("A paragraph of text.\n\n", 80)
	docs := map[string]string{
		"empty":            "",
		"scenario":         "# Title\n\nHello world.\n\n## Sub\n\nMore text.",
		"trailing newline": "# Title\n\nbody\n",
		"leading blank":    "\n\n# Title\nbody",
		"no headings":      "just\n\ntext\n\n\n",
		"fenced heading":   "```\n# not a heading\n```\n# Real\nx",
		"sub-split":        "# Big\n\n" + long + "## After\n\ntail",
	}

	for name, doc := range docs {
		for _, max := range []int{0, 50, 1000} {
			t.Run(fmt.Sprintf("%s/max=%d", name, max), func(t *testing.T) {
				t.Parallel()

				o := orchestrator.New(orchestrator.WithMaxChunkSize(max))
				res, err := o.Process(context.Background(), doc, identity)
				if err != nil {
					t.Fatalf("Process() unexpected error: %v", err)
				}
				if res.Text != doc {
					t.Errorf("Process(identity) = %q, want %q", res.Text, doc)
				}
				if !res.Usage.IsZero() {
					t.Errorf("Usage = %+v, want zero", res.Usage)
				}
				if len(res.Failures) != 0 {
					t.Errorf("Failures = %v, want none", res.Failures)
				}
			})
		}
	}
}

// ---------------------------------------------------------------------------
// TestProcess_FailureIsolation - a failing chunk keeps its text
// ---------------------------------------------------------------------------

func TestProcess_FailureIsolation(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	rec := &recordingTransform{fn: func(_ context.Context, c segment.Chunk, call int) (string, usage.Stats, error) {
		if call == 1 {
			return "", stats(99, 99), &completion.ServiceError{Provider: "test", Err: apierr.ErrBadRequest}
		}
		return strings.ToUpper(c.Text), stats(10, 5), nil
	}}

	o := orchestrator.New(orchestrator.WithLogger(zap.New(core)))
	res, err := o.Process(context.Background(), threeSections, rec.transform)
	if err != nil {
		t.Fatalf("Process() unexpected error: %v", err)
	}

	want := "# A\n\nONE\n\n# B\n\ntwo\n\n# C\n\nTHREE"
	if res.Text != want {
		t.Errorf("Text = %q, want %q", res.Text, want)
	}
	if res.Usage != usage.Merge(stats(10, 5), stats(10, 5)) {
		t.Errorf("Usage = %+v, want chunks 1 and 3 only", res.Usage)
	}

	if len(res.Failures) != 1 {
		t.Fatalf("Failures = %v, want 1", res.Failures)
	}
	f := res.Failures[0]
	if f.Position != 4 || f.Part != 0 || f.Stage != orchestrator.StageTransform {
		t.Errorf("failure = %+v, want position 4 part 0 stage transform", f)
	}
	if !errors.Is(f, apierr.ErrBadRequest) {
		t.Errorf("failure does not unwrap to cause: %v", f)
	}

	entries := logs.FilterMessage("chunk failed, keeping original text").All()
	if len(entries) != 1 {
		t.Fatalf("got %d warn entries, want 1", len(entries))
	}
	if got := entries[0].ContextMap()["position"]; got != int64(4) {
		t.Errorf("logged position = %v, want 4", got)
	}
}

// ---------------------------------------------------------------------------
// TestProcess_Order - output follows position, not completion order
// ---------------------------------------------------------------------------

func TestProcess_Order(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	for i := range 20 {
		fmt.Fprintf(&b, "## Section %d\n\nbody %d\n\n", i, i)
	}
	doc := b.String()

	tag := func(_ context.Context, c segment.Chunk) (string, usage.Stats, error) {
		time.Sleep(time.Duration(rand.IntN(3)) * time.Millisecond)
		return fmt.Sprintf("[%d] %s", c.Position, c.Text), stats(1, 1), nil
	}

	sequential, err := orchestrator.New().Process(context.Background(), doc, tag)
	if err != nil {
		t.Fatalf("sequential Process() error: %v", err)
	}

	for _, n := range []int{2, 4, 8} {
		t.Run(fmt.Sprintf("concurrency=%d", n), func(t *testing.T) {
			t.Parallel()

			res, err := orchestrator.New(orchestrator.WithConcurrency(n)).Process(context.Background(), doc, tag)
			if err != nil {
				t.Fatalf("Process() error: %v", err)
			}
			if res.Text != sequential.Text {
				t.Errorf("concurrent output differs:\n got %q\nwant %q", res.Text, sequential.Text)
			}
			if res.Usage != sequential.Usage {
				t.Errorf("Usage = %+v, want %+v", res.Usage, sequential.Usage)
			}
		})
	}
}

func TestProcess_SequentialByDefault(t *testing.T) {
	t.Parallel()

	rec := &recordingTransform{fn: func(_ context.Context, c segment.Chunk, _ int) (string, usage.Stats, error) {
		return c.Text, usage.Stats{}, nil
	}}
	if _, err := orchestrator.New().Process(context.Background(), threeSections, rec.transform); err != nil {
		t.Fatalf("Process() error: %v", err)
	}

	want := []int{0, 4, 8}
	if fmt.Sprint(rec.positions) != fmt.Sprint(want) {
		t.Errorf("call order = %v, want %v", rec.positions, want)
	}
}

// ---------------------------------------------------------------------------
// TestProcess_BlankChunks - blank chunks skip the transform
// ---------------------------------------------------------------------------

func TestProcess_BlankChunks(t *testing.T) {
	t.Parallel()

	doc := "\n\n\n# Title\n\nbody"
	rec := &recordingTransform{fn: func(_ context.Context, c segment.Chunk, _ int) (string, usage.Stats, error) {
		return "T", stats(1, 1), nil
	}}

	res, err := orchestrator.New().Process(context.Background(), doc, rec.transform)
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if rec.calls() != 1 {
		t.Errorf("transform calls = %d, want 1", rec.calls())
	}
	if !strings.HasPrefix(res.Text, "\n\n\n") || !strings.HasSuffix(res.Text, "T") {
		t.Errorf("Text = %q, want blank prefix kept and chunk transformed", res.Text)
	}
}

// ---------------------------------------------------------------------------
// TestProcess_Progress
// ---------------------------------------------------------------------------

func TestProcess_Progress(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var got []orchestrator.Progress

	rec := &recordingTransform{fn: func(_ context.Context, c segment.Chunk, call int) (string, usage.Stats, error) {
		if call == 2 {
			return "", usage.Stats{}, apierr.ErrTimeout
		}
		return c.Text, stats(100, 10), nil
	}}

	o := orchestrator.New(orchestrator.WithProgress(func(p orchestrator.Progress) {
		mu.Lock()
		got = append(got, p)
		mu.Unlock()
	}))
	res, err := o.Process(context.Background(), threeSections, rec.transform)
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}

	if len(got) != 3 {
		t.Fatalf("progress calls = %d, want 3", len(got))
	}
	for i, p := range got {
		if p.Done != i+1 || p.Total != 3 {
			t.Errorf("progress[%d] = %d/%d, want %d/3", i, p.Done, p.Total, i+1)
		}
	}
	if !got[2].Failed || got[0].Failed {
		t.Errorf("Failed flags = %v %v %v, want only last", got[0].Failed, got[1].Failed, got[2].Failed)
	}
	if got[2].Position != 8 {
		t.Errorf("last position = %d, want 8", got[2].Position)
	}
	if got[2].Usage != res.Usage {
		t.Errorf("final cumulative usage = %+v, want %+v", got[2].Usage, res.Usage)
	}
}

// ---------------------------------------------------------------------------
// TestProcess_Fatal - configuration errors and cancellation abort the run
// ---------------------------------------------------------------------------

func TestProcess_ConfigurationErrorAborts(t *testing.T) {
	t.Parallel()

	for _, n := range []int{1, 3} {
		t.Run(fmt.Sprintf("concurrency=%d", n), func(t *testing.T) {
			t.Parallel()

			rec := &recordingTransform{fn: func(_ context.Context, _ segment.Chunk, _ int) (string, usage.Stats, error) {
				return "", usage.Stats{}, &completion.ServiceError{Provider: "ark", Err: apierr.ErrConfiguration}
			}}

			res, err := orchestrator.New(orchestrator.WithConcurrency(n)).Process(context.Background(), threeSections, rec.transform)
			if !errors.Is(err, apierr.ErrConfiguration) {
				t.Fatalf("Process() error = %v, want ErrConfiguration", err)
			}
			if res.Text != "" || len(res.Failures) != 0 {
				t.Errorf("Result = %+v, want zero value", res)
			}
			if n == 1 && rec.calls() != 1 {
				t.Errorf("transform calls = %d, want 1 (stop at first)", rec.calls())
			}
		})
	}
}

func TestProcess_ContextCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &recordingTransform{fn: func(ctx context.Context, c segment.Chunk, _ int) (string, usage.Stats, error) {
		cancel()
		return "", usage.Stats{}, ctx.Err()
	}}

	_, err := orchestrator.New().Process(ctx, threeSections, rec.transform)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Process() error = %v, want context.Canceled", err)
	}
	if rec.calls() != 1 {
		t.Errorf("transform calls = %d, want 1", rec.calls())
	}
}

// ---------------------------------------------------------------------------
// TestProcess_Retries
// ---------------------------------------------------------------------------

func TestProcess_Retries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		retries    int
		wantCalls  int
		wantFailed bool
	}{
		{"transient recovers", apierr.ErrRateLimit, 3, 3, false},
		{"transient exhausted", apierr.ErrTimeout, 1, 2, true},
		{"permanent not retried", apierr.ErrAuthFailed, 3, 1, true},
		{"no retries by default", apierr.ErrRateLimit, 0, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := &recordingTransform{fn: func(_ context.Context, c segment.Chunk, call int) (string, usage.Stats, error) {
				if call < 2 {
					return "", usage.Stats{}, tt.err
				}
				return "done", stats(1, 1), nil
			}}

			o := orchestrator.New(orchestrator.WithRetries(tt.retries, time.Millisecond, time.Millisecond))
			res, err := o.Process(context.Background(), "# Only\nbody", rec.transform)
			if err != nil {
				t.Fatalf("Process() error: %v", err)
			}
			if rec.calls() != tt.wantCalls {
				t.Errorf("calls = %d, want %d", rec.calls(), tt.wantCalls)
			}
			if failed := len(res.Failures) == 1; failed != tt.wantFailed {
				t.Errorf("failed = %v, want %v (failures %v)", failed, tt.wantFailed, res.Failures)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// TestCompletionTransform
// ---------------------------------------------------------------------------

func TestCompletionTransform(t *testing.T) {
	t.Parallel()

	client := &fakeClient{respond: func(req completion.Request, _ int) (completion.Response, error) {
		return completion.Response{Text: "\n# Titre\n\nBonjour.\n\n", Usage: stats(20, 10)}, nil
	}}
	transform := orchestrator.CompletionTransform(client, template.TranslateName, lang.MustParse("fr"))

	res, err := orchestrator.New().Process(context.Background(), "# Title\n\nHello.\n\n", transform)
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if res.Text != "# Titre\n\nBonjour.\n\n" {
		t.Errorf("Text = %q, want trimmed output plus original separator", res.Text)
	}
	if res.Usage != stats(20, 10) {
		t.Errorf("Usage = %+v", res.Usage)
	}

	reqs := client.calls()
	if len(reqs) != 1 {
		t.Fatalf("requests = %d, want 1", len(reqs))
	}
	if !strings.Contains(reqs[0].Prompt, "# Title\n\nHello.") || !strings.Contains(reqs[0].Prompt, "French") {
		t.Errorf("Prompt = %q, want chunk text and target language", reqs[0].Prompt)
	}
	if reqs[0].SystemPrompt == "" {
		t.Error("SystemPrompt is empty")
	}
}

func TestChunkError(t *testing.T) {
	t.Parallel()

	err := &orchestrator.ChunkError{Position: 12, Part: 1, Stage: orchestrator.StageWindow, Err: apierr.ErrTimeout}
	if got := err.Error(); !strings.Contains(got, "window") || !strings.Contains(got, "12.1") {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(err, apierr.ErrTimeout) {
		t.Error("ChunkError should unwrap")
	}
}
