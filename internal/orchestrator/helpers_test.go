package orchestrator_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/alnah/go-docpipe/internal/completion"
	"github.com/alnah/go-docpipe/internal/segment"
	"github.com/alnah/go-docpipe/internal/transcript"
	"github.com/alnah/go-docpipe/internal/usage"
)

// ---------------------------------------------------------------------------
// Shared fakes
// ---------------------------------------------------------------------------

// identity returns every chunk unchanged with zero usage.
func identity(_ context.Context, c segment.Chunk) (string, usage.Stats, error) {
	return c.Text, usage.Stats{}, nil
}

// recordingTransform wraps fn and records the positions it was called with.
type recordingTransform struct {
	mu        sync.Mutex
	positions []int
	fn        func(ctx context.Context, c segment.Chunk, call int) (string, usage.Stats, error)
}

func (r *recordingTransform) transform(ctx context.Context, c segment.Chunk) (string, usage.Stats, error) {
	r.mu.Lock()
	call := len(r.positions)
	r.positions = append(r.positions, c.Position)
	r.mu.Unlock()
	return r.fn(ctx, c, call)
}

func (r *recordingTransform) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.positions)
}

// fakeClient implements completion.Client with a scripted responder.
type fakeClient struct {
	mu       sync.Mutex
	requests []completion.Request
	respond  func(req completion.Request, call int) (completion.Response, error)
}

func (f *fakeClient) Complete(_ context.Context, req completion.Request) (completion.Response, error) {
	f.mu.Lock()
	call := len(f.requests)
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.respond == nil {
		return completion.Response{Text: "ok"}, nil
	}
	return f.respond(req, call)
}

func (f *fakeClient) calls() []completion.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]completion.Request, len(f.requests))
	copy(out, f.requests)
	return out
}

// srt renders n cues of the given length back to back, starting at zero.
func srt(n int, cue time.Duration) string {
	var b strings.Builder
	for i := range n {
		start := time.Duration(i) * cue
		fmt.Fprintf(&b, "%d\n%s --> %s\ncue %d\n\n",
			i+1, transcript.FormatTimestamp(start), transcript.FormatTimestamp(start+cue), i+1)
	}
	return b.String()
}

func stats(prompt, completionTokens int) usage.Stats {
	return usage.DefaultPricing().Cost(prompt, completionTokens)
}
