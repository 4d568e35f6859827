package orchestrator_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/alnah/go-docpipe/internal/apierr"
	"github.com/alnah/go-docpipe/internal/completion"
	"github.com/alnah/go-docpipe/internal/lang"
	"github.com/alnah/go-docpipe/internal/orchestrator"
)

// windowEcho answers window prompts with "W<call>" and the synthesis prompt
// with "ARTICLE".
func windowEcho(req completion.Request, call int) (completion.Response, error) {
	if strings.Contains(req.Prompt, "Merge them into a single coherent") {
		return completion.Response{Text: "ARTICLE", Usage: stats(1000, 500)}, nil
	}
	return completion.Response{Text: fmt.Sprintf("W%d", call), Usage: stats(100, 50)}, nil
}

// ---------------------------------------------------------------------------
// TestArticle_Windows - 90 minutes, 60 minute windows
// ---------------------------------------------------------------------------

func TestArticle_Windows(t *testing.T) {
	t.Parallel()

	client := &fakeClient{respond: windowEcho}
	input := srt(1080, 5*time.Second)

	res, err := orchestrator.New().Article(context.Background(), input, client, orchestrator.ArticleOptions{
		Target: lang.MustParse("en"),
	})
	if err != nil {
		t.Fatalf("Article() error: %v", err)
	}

	reqs := client.calls()
	if len(reqs) != 3 {
		t.Fatalf("calls = %d, want 2 windows + synthesis", len(reqs))
	}
	if !strings.Contains(reqs[0].Prompt, "part 1 of 2") || !strings.Contains(reqs[1].Prompt, "part 2 of 2") {
		t.Error("window prompts do not number their parts")
	}
	// Cue 720 ends at exactly 3600s and closes the first window.
	if !strings.Contains(reqs[0].Prompt, "cue 720") || strings.Contains(reqs[0].Prompt, "cue 721") {
		t.Error("first window should end with cue 720")
	}
	if !strings.Contains(reqs[1].Prompt, "cue 721") || !strings.Contains(reqs[1].Prompt, "cue 1080") {
		t.Error("second window should hold cues 721-1080")
	}
	if strings.Contains(reqs[0].Prompt, "-->") {
		t.Error("timing lines leaked into the window text")
	}
	if !strings.Contains(reqs[2].Prompt, "W0\n\nW1") {
		t.Errorf("synthesis prompt = %q, want both window outputs", reqs[2].Prompt)
	}
	for i, r := range reqs {
		if r.SystemPrompt == "" {
			t.Errorf("request %d has no system prompt", i)
		}
	}

	if res.Text != "ARTICLE" {
		t.Errorf("Text = %q, want synthesis output", res.Text)
	}
	want := stats(100+100+1000, 50+50+500)
	if res.Usage.PromptTokens != want.PromptTokens || res.Usage.CompletionTokens != want.CompletionTokens {
		t.Errorf("Usage = %+v, want %+v", res.Usage, want)
	}
	if len(res.Failures) != 0 {
		t.Errorf("Failures = %v", res.Failures)
	}
}

func TestArticle_ShortTranscriptStillSynthesized(t *testing.T) {
	t.Parallel()

	client := &fakeClient{respond: windowEcho}
	res, err := orchestrator.New().Article(context.Background(), srt(10, 2*time.Second), client, orchestrator.ArticleOptions{})
	if err != nil {
		t.Fatalf("Article() error: %v", err)
	}
	if len(client.calls()) != 2 {
		t.Errorf("calls = %d, want 1 window + synthesis", len(client.calls()))
	}
	if res.Text != "ARTICLE" {
		t.Errorf("Text = %q", res.Text)
	}
}

// ---------------------------------------------------------------------------
// TestArticle_Failures - fallbacks per stage
// ---------------------------------------------------------------------------

func TestArticle_WindowFailureFallsBack(t *testing.T) {
	t.Parallel()

	client := &fakeClient{respond: func(req completion.Request, call int) (completion.Response, error) {
		if call == 0 {
			return completion.Response{}, &completion.ServiceError{Provider: "test", Err: apierr.ErrBadRequest}
		}
		return windowEcho(req, call)
	}}

	res, err := orchestrator.New().Article(context.Background(), srt(1080, 5*time.Second), client, orchestrator.ArticleOptions{})
	if err != nil {
		t.Fatalf("Article() error: %v", err)
	}

	reqs := client.calls()
	synthesis := reqs[len(reqs)-1].Prompt
	if !strings.Contains(synthesis, "cue 1 cue 2") {
		t.Error("failed window should contribute its plain text to the synthesis")
	}
	if len(res.Failures) != 1 || res.Failures[0].Stage != orchestrator.StageWindow || res.Failures[0].Position != 0 {
		t.Errorf("Failures = %+v, want window 0", res.Failures)
	}
	if res.Usage.PromptTokens != 1100 {
		t.Errorf("PromptTokens = %d, want 1100 (window 2 + synthesis)", res.Usage.PromptTokens)
	}
}

func TestArticle_SynthesisFailureReturnsParts(t *testing.T) {
	t.Parallel()

	client := &fakeClient{respond: func(req completion.Request, call int) (completion.Response, error) {
		if call == 2 {
			return completion.Response{}, apierr.ErrTimeout
		}
		return windowEcho(req, call)
	}}

	res, err := orchestrator.New().Article(context.Background(), srt(1080, 5*time.Second), client, orchestrator.ArticleOptions{})
	if err != nil {
		t.Fatalf("Article() error: %v", err)
	}
	if res.Text != "W0\n\nW1" {
		t.Errorf("Text = %q, want concatenated windows", res.Text)
	}
	if len(res.Failures) != 1 || res.Failures[0].Stage != orchestrator.StageSynthesis {
		t.Errorf("Failures = %+v, want synthesis", res.Failures)
	}
}

func TestArticle_ConfigurationErrorAborts(t *testing.T) {
	t.Parallel()

	client := &fakeClient{respond: func(completion.Request, int) (completion.Response, error) {
		return completion.Response{}, &completion.ServiceError{Provider: "ark", Err: apierr.ErrConfiguration}
	}}

	_, err := orchestrator.New().Article(context.Background(), srt(5, time.Second), client, orchestrator.ArticleOptions{})
	if !errors.Is(err, apierr.ErrConfiguration) {
		t.Fatalf("Article() error = %v, want ErrConfiguration", err)
	}
	if len(client.calls()) != 1 {
		t.Errorf("calls = %d, want 1", len(client.calls()))
	}
}

// ---------------------------------------------------------------------------
// TestArticle_PlainText - untimed input is packed by paragraphs
// ---------------------------------------------------------------------------

func TestArticle_PlainText(t *testing.T) {
	t.Parallel()

	paragraph := strings.Repeat("x", 40)
	input := strings.Repeat(paragraph+"\n\n", 5)

	client := &fakeClient{respond: windowEcho}
	res, err := orchestrator.New().Article(context.Background(), input, client, orchestrator.ArticleOptions{
		MaxChunkSize: 100,
	})
	if err != nil {
		t.Fatalf("Article() error: %v", err)
	}

	// 40+2+40 = 82 fits, a third paragraph would not: groups of 2, 2, 1.
	reqs := client.calls()
	if len(reqs) != 4 {
		t.Fatalf("calls = %d, want 3 parts + synthesis", len(reqs))
	}
	if !strings.Contains(reqs[0].Prompt, "part 1 of 3") {
		t.Errorf("first prompt = %q", reqs[0].Prompt)
	}
	if res.Text != "ARTICLE" {
		t.Errorf("Text = %q", res.Text)
	}
}

func TestArticle_EmptyInput(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	res, err := orchestrator.New().Article(context.Background(), "  \n\n", client, orchestrator.ArticleOptions{})
	if err != nil {
		t.Fatalf("Article() error: %v", err)
	}
	if res.Text != "" || len(client.calls()) != 0 {
		t.Errorf("empty input: Text = %q, calls = %d", res.Text, len(client.calls()))
	}
}
