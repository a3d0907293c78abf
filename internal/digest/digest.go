package digest

import (
	"context"
	"encoding/base64"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/philmod/tldrist/internal/llm"
	"github.com/philmod/tldrist/internal/pipeline"
)

const (
	introTemperature float32 = 0.5
	introMaxTokens           = 512
)

const introPrompt = `You are writing the opening paragraph of a personal reading digest email.

The digest contains summaries of these items:
%s

Write one short, friendly paragraph (2-3 sentences) introducing the digest.
Mention a common thread across the items if one exists. Plain text only, no
greeting line and no sign-off.`

// Composer renders the digest email. The intro paragraph comes from the
// generation collaborator; the rest is a fixed template.
type Composer struct {
	Client llm.Client
	Model  string

	// now is swapped in tests.
	now func() time.Time
}

// NewComposer returns a Composer using the real clock.
func NewComposer(client llm.Client, model string) *Composer {
	return &Composer{Client: client, Model: model, now: time.Now}
}

// Compose builds the digest subject and HTML body. An intro generation
// failure falls back to a static line rather than failing the digest.
func (c *Composer) Compose(ctx context.Context, processed []pipeline.ProcessedItem, failed []pipeline.FailedItem) (string, string, error) {
	now := time.Now
	if c.now != nil {
		now = c.now
	}
	subject := fmt.Sprintf("tl;drist reading digest - %s", now().Format("January 2, 2006"))

	if len(processed) == 0 && len(failed) == 0 {
		return subject, emptyDigestHTML, nil
	}

	intro := c.intro(ctx, processed)

	var body strings.Builder
	data := digestData{
		Date:  now().Format("Monday, January 2, 2006"),
		Intro: intro,
		Items: make([]digestItem, 0, len(processed)),
	}
	for i, item := range processed {
		di := digestItem{
			Index:   i + 1,
			Title:   item.Title,
			URL:     template.URL(item.URL),
			Summary: paragraphs(item.Summary),
		}
		if len(item.ImageData) > 0 {
			di.ImageSrc = template.URL(fmt.Sprintf("data:%s;base64,%s",
				item.ImageMIMEType, base64.StdEncoding.EncodeToString(item.ImageData)))
			di.ImageCaption = item.ImageCaption
		}
		data.Items = append(data.Items, di)
	}
	for _, f := range failed {
		url := f.URL
		if url == "" {
			url = "(no URL)"
		}
		data.Failures = append(data.Failures, fmt.Sprintf("%s — %s", url, f.Reason))
	}

	if err := digestTemplate.Execute(&body, data); err != nil {
		return "", "", fmt.Errorf("render digest: %w", err)
	}
	return subject, body.String(), nil
}

// intro generates the opening paragraph, falling back to a static line.
func (c *Composer) intro(ctx context.Context, processed []pipeline.ProcessedItem) string {
	if len(processed) == 0 {
		return "Nothing new was summarized this time, but a few items needed attention."
	}
	var titles strings.Builder
	for _, item := range processed {
		fmt.Fprintf(&titles, "- %s\n", item.Title)
	}
	intro, err := llm.GenerateFreeform(ctx, c.Client, c.Model,
		fmt.Sprintf(introPrompt, titles.String()), introTemperature, introMaxTokens)
	if err != nil {
		log.Warn().Err(err).Msg("intro generation failed, using fallback")
		return fmt.Sprintf("Here are %d items from your reading list, summarized.", len(processed))
	}
	return strings.TrimSpace(intro)
}

// paragraphs splits a summary on blank lines so the template can emit one
// <p> per paragraph.
func paragraphs(s string) []string {
	var out []string
	for _, p := range strings.Split(s, "\n\n") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

type digestItem struct {
	Index        int
	Title        string
	URL          template.URL
	Summary      []string
	ImageSrc     template.URL
	ImageCaption string
}

type digestData struct {
	Date     string
	Intro    string
	Items    []digestItem
	Failures []string
}

const emptyDigestHTML = `<!DOCTYPE html>
<html>
<body style="font-family: Georgia, serif; max-width: 640px; margin: 0 auto; padding: 24px;">
<h1 style="font-size: 22px;">tl;drist</h1>
<p>Your reading list is empty. Nothing to digest today.</p>
</body>
</html>
`

var digestTemplate = template.Must(template.New("digest").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Georgia, serif; max-width: 640px; margin: 0 auto; padding: 24px; color: #222;">
<h1 style="font-size: 22px; border-bottom: 2px solid #222; padding-bottom: 8px;">tl;drist</h1>
<p style="color: #666; font-size: 13px;">{{.Date}}</p>
{{if .Intro}}<p style="font-style: italic;">{{.Intro}}</p>{{end}}
{{range .Items}}
<div style="margin-top: 32px;">
<h2 style="font-size: 17px;">{{.Index}}. <a href="{{.URL}}" style="color: #1a5276;">{{.Title}}</a></h2>
{{if .ImageSrc}}<img src="{{.ImageSrc}}" alt="{{.ImageCaption}}" style="max-width: 100%; border: 1px solid #ddd;"/>
{{if .ImageCaption}}<p style="color: #666; font-size: 12px; font-style: italic;">{{.ImageCaption}}</p>{{end}}{{end}}
{{range .Summary}}<p style="line-height: 1.5;">{{.}}</p>
{{end}}</div>
{{end}}
{{if .Failures}}
<div style="margin-top: 40px; border-top: 1px solid #ccc; padding-top: 12px;">
<p style="color: #999; font-size: 12px;">Could not process:</p>
<ul style="color: #999; font-size: 12px;">
{{range .Failures}}<li>{{.}}</li>
{{end}}</ul>
</div>
{{end}}
</body>
</html>
`))
