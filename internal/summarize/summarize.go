package summarize

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/philmod/tldrist/internal/figure"
	"github.com/philmod/tldrist/internal/llm"
)

// Per-call sampling parameters. PDF summaries run cooler and longer than
// article summaries; the constrained figure call is the strictest.
const (
	articleTemperature float32 = 0.3
	articleMaxTokens           = 1024
	pdfTemperature     float32 = 0.2
	pdfMaxTokens               = 2048
	figureTemperature  float32 = 0.1
	figureMaxTokens            = 512

	// maxContentChars clamps prompt size for very long inputs.
	maxContentChars = 50_000
	// figureScanPages bounds how much of the paper the figure call sees.
	figureScanPages = 12
)

const articlePrompt = `You are a helpful assistant that summarizes articles concisely.

Please provide a summary of the following article. The summary should:
- Be 2-4 paragraphs long
- Capture the main points and key takeaways
- Be written in a clear, informative style
- Include any important facts, figures, or conclusions

Article Title: %s

Article Content:
%s

Summary:`

const pdfPrompt = `You are a helpful assistant that summarizes academic papers.

Please provide a summary of the following paper. The summary should:
- Be 3-5 paragraphs long
- Explain the problem, the approach, and the key results
- Be accessible to a technical reader outside the paper's subfield
- Mention concrete numbers where the paper reports them

Paper Title: %s

Paper Text:
%s

Summary:`

const figurePrompt = `You are analyzing an academic paper to find its single most informative figure.

Reply with exactly one JSON object and nothing else, using this shape:
{"figure_label": "<number as printed in the caption, e.g. 2 or 3a>", "page_number": <1-indexed page>, "description": "<one-sentence caption for a newsletter>", "reason": "<why this figure>"}

If no figure is worth showing, reply with {}.

Paper Text:
%s`

// Summarizer produces summaries and figure hints through the generation
// collaborator. Stateless; safe for concurrent use.
type Summarizer struct {
	Client llm.Client
	Model  string
}

// SummarizeArticle generates a summary for an extracted web article.
func (s *Summarizer) SummarizeArticle(ctx context.Context, title, content string) (string, error) {
	log.Info().Str("title", title).Msg("summarizing article")
	prompt := fmt.Sprintf(articlePrompt, title, clamp(content))
	return llm.GenerateFreeform(ctx, s.Client, s.Model, prompt, articleTemperature, articleMaxTokens)
}

// SummarizePDF generates a summary for a paper from its PDF bytes.
func (s *Summarizer) SummarizePDF(ctx context.Context, title string, pdfBytes []byte) (string, error) {
	log.Info().Str("title", title).Msg("summarizing paper")
	text, err := figure.Text(pdfBytes, 0)
	if err != nil {
		return "", fmt.Errorf("extract PDF text: %w", err)
	}
	prompt := fmt.Sprintf(pdfPrompt, title, clamp(text))
	return llm.GenerateFreeform(ctx, s.Client, s.Model, prompt, pdfTemperature, pdfMaxTokens)
}

// IdentifyFigure asks the collaborator which figure best represents the
// paper. Always best-effort: any failure, including malformed JSON, yields
// nil rather than an error.
func (s *Summarizer) IdentifyFigure(ctx context.Context, pdfBytes []byte) *figure.Hint {
	text, err := figure.Text(pdfBytes, figureScanPages)
	if err != nil {
		log.Debug().Err(err).Msg("figure identification skipped, unreadable PDF")
		return nil
	}
	raw, err := llm.GenerateFreeform(ctx, s.Client, s.Model, fmt.Sprintf(figurePrompt, clamp(text)), figureTemperature, figureMaxTokens)
	if err != nil {
		log.Debug().Err(err).Msg("figure identification call failed")
		return nil
	}
	return parseFigureReply(raw)
}

func parseFigureReply(raw string) *figure.Hint {
	var payload struct {
		FigureLabel string `json:"figure_label"`
		PageNumber  int    `json:"page_number"`
		Description string `json:"description"`
		Reason      string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &payload); err != nil {
		log.Debug().Err(err).Msg("figure reply is not valid JSON")
		return nil
	}
	if payload.PageNumber < 1 && payload.FigureLabel == "" {
		return nil
	}
	return &figure.Hint{
		Label:       payload.FigureLabel,
		PageNumber:  payload.PageNumber,
		Description: payload.Description,
		Reason:      payload.Reason,
	}
}

// stripCodeFence removes a single surrounding markdown fence, which chat
// models add despite instructions.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		// Drop the language tag line.
		s = s[i+1:]
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func clamp(s string) string {
	if len(s) > maxContentChars {
		return s[:maxContentChars]
	}
	return s
}
