package extract

import (
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
	"github.com/markusmobius/go-trafilatura"
	"github.com/rs/zerolog/log"
)

// minWords is the validity gate for extracted content. Fixed by design,
// not configurable.
const minWords = 50

// Article is the result of extracting readable text from one fetched page.
type Article struct {
	URL       string
	Title     string
	Content   string
	WordCount int
}

// IsValid reports whether the article carries meaningful content.
func (a *Article) IsValid() bool {
	return a != nil && a.WordCount >= minWords
}

// FromHTML extracts article text from raw HTML. Trafilatura runs first,
// configured to drop comments and tables; when it yields fewer than 50
// words the more permissive readability algorithm is applied to the same
// input. Returns nil when no candidate passes the validity gate.
func FromHTML(pageURL, html string) *Article {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		parsed = nil
	}

	var title, content string
	result, err := trafilatura.Extract(strings.NewReader(html), trafilatura.Options{
		OriginalURL:     parsed,
		ExcludeComments: true,
		ExcludeTables:   true,
		EnableFallback:  true,
	})
	if err == nil && result != nil {
		content = result.ContentText
		title = result.Metadata.Title
	}

	if countWords(content) < minWords {
		log.Debug().Str("url", pageURL).Msg("falling back to readability")
		content, title = fromReadability(html, parsed, title)
	}

	return finalize(pageURL, title, content)
}

// finalize applies the word-count gate and builds the Article.
func finalize(pageURL, title, content string) *Article {
	content = strings.TrimSpace(content)
	wc := countWords(content)
	if wc < minWords {
		return nil
	}
	return &Article{URL: pageURL, Title: title, Content: content, WordCount: wc}
}

// fromReadability is the permissive second pass. The page metadata title
// wins when present; otherwise readability's derived title is used.
func fromReadability(html string, pageURL *url.URL, fallbackTitle string) (string, string) {
	art, err := readability.FromReader(strings.NewReader(html), pageURL)
	if err != nil {
		log.Debug().Err(err).Msg("readability extraction failed")
		return "", fallbackTitle
	}
	title := fallbackTitle
	if title == "" {
		title = art.Title
	}
	return strings.TrimSpace(art.TextContent), title
}

func countWords(s string) int {
	return len(strings.Fields(s))
}
