package digest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/philmod/tldrist/internal/pipeline"
)

type stubClient struct {
	content string
	err     error
}

func (s *stubClient) CreateChatCompletion(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	if s.err != nil {
		return openai.ChatCompletionResponse{}, s.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: s.content}}},
	}, nil
}

func fixedComposer(client *stubClient) *Composer {
	c := NewComposer(client, "m")
	c.now = func() time.Time { return time.Date(2026, 8, 27, 7, 30, 0, 0, time.UTC) }
	return c
}

func TestCompose_SubjectAndBody(t *testing.T) {
	c := fixedComposer(&stubClient{content: "A fine batch of reading."})
	processed := []pipeline.ProcessedItem{
		{Title: "First Article", URL: "https://a.example/one", Summary: "Para one.\n\nPara two."},
	}
	subject, html, err := c.Compose(context.Background(), processed, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if subject != "tl;drist reading digest - August 27, 2026" {
		t.Fatalf("subject = %q", subject)
	}
	for _, want := range []string{
		"First Article",
		`href="https://a.example/one"`,
		"A fine batch of reading.",
		"<p style=\"line-height: 1.5;\">Para one.</p>",
		"Wednesday, August 27, 2026",
	} {
		if !strings.Contains(html, want) {
			t.Fatalf("digest missing %q:\n%s", want, html)
		}
	}
}

func TestCompose_EmptyDigest(t *testing.T) {
	c := fixedComposer(&stubClient{err: errors.New("must not be called")})
	subject, html, err := c.Compose(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if subject == "" {
		t.Fatal("empty digest still needs a subject")
	}
	if !strings.Contains(html, "Nothing to digest") {
		t.Fatalf("empty digest body = %q", html)
	}
}

func TestCompose_IntroFailureFallsBack(t *testing.T) {
	c := fixedComposer(&stubClient{err: errors.New("backend down")})
	processed := []pipeline.ProcessedItem{
		{Title: "Only Item", URL: "https://a.example/", Summary: "Summary."},
	}
	_, html, err := c.Compose(context.Background(), processed, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(html, "Here are 1 items") {
		t.Fatalf("expected fallback intro, got:\n%s", html)
	}
}

func TestCompose_FigureEmbeddedAsDataURI(t *testing.T) {
	c := fixedComposer(&stubClient{content: "intro"})
	processed := []pipeline.ProcessedItem{{
		Title:         "Paper",
		URL:           "https://arxiv.org/abs/2401.00001",
		Summary:       "Summary.",
		ImageData:     []byte{0x89, 0x50, 0x4e, 0x47},
		ImageMIMEType: "image/png",
		ImageCaption:  "Throughput curve",
	}}
	_, html, err := c.Compose(context.Background(), processed, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(html, `src="data:image/png;base64,iVBORw==`) {
		t.Fatalf("data URI missing:\n%s", html)
	}
	if !strings.Contains(html, "Throughput curve") {
		t.Fatal("caption missing from digest")
	}
}

func TestCompose_FailuresFootnote(t *testing.T) {
	c := fixedComposer(&stubClient{content: "intro"})
	processed := []pipeline.ProcessedItem{
		{Title: "Good", URL: "https://a.example/", Summary: "Summary."},
	}
	failed := []pipeline.FailedItem{
		{URL: "https://b.example/", Reason: "HTTP 403"},
		{URL: "", Reason: "no URL"},
	}
	_, html, err := c.Compose(context.Background(), processed, failed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(html, "https://b.example/ — HTTP 403") {
		t.Fatalf("footnote missing failed URL:\n%s", html)
	}
	if !strings.Contains(html, "(no URL) — no URL") {
		t.Fatalf("footnote missing placeholder for empty URL:\n%s", html)
	}
}

func TestParagraphs(t *testing.T) {
	got := paragraphs("one\n\n\n\ntwo\n\n  \n\nthree")
	if len(got) != 3 || got[0] != "one" || got[2] != "three" {
		t.Fatalf("paragraphs = %v", got)
	}
}
