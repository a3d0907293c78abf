package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"github.com/philmod/tldrist/internal/extract"
)

const defaultUserAgent = "Mozilla/5.0 (compatible; TLDRist/1.0; +https://github.com/philmod/tldrist)"

// maxBodyBytes bounds response reads; arXiv PDFs fit comfortably.
const maxBodyBytes = 64 << 20

// Fetcher retrieves raw bytes for article URLs and arXiv papers. One fetch
// attempt per task; a hung request relies solely on the per-request timeout.
// Safe for concurrent use: the only state is the shared http.Client.
type Fetcher struct {
	HTTPClient *http.Client
	UserAgent  string
	// Timeout bounds each request. Zero means 30s.
	Timeout time.Duration
	// RedirectMaxHops caps redirect following to avoid loops. Zero means
	// default (5).
	RedirectMaxHops int
	// ArxivBaseURL overrides the arXiv host, for tests. Empty means the
	// real site.
	ArxivBaseURL string
}

// ArxivPaper is the alternate input type for PDF-class tasks.
type ArxivPaper struct {
	URL    string
	PDFURL string
	Title  string
	PDF    []byte
}

// Fetch retrieves a URL and extracts readable article content from it.
// Failures come back as *TransportError or *ContentError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*extract.Article, error) {
	log.Info().Str("url", rawURL).Msg("fetching article")
	body, _, err := f.get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	article := extract.FromHTML(rawURL, string(body))
	if article == nil {
		return nil, &ContentError{Reason: "content extraction failed"}
	}
	log.Info().Str("url", rawURL).Str("title", article.Title).Int("word_count", article.WordCount).Msg("article extracted")
	return article, nil
}

// FetchPDF resolves an arXiv abstract or PDF URL to the paper's canonical
// PDF. The abstract page supplies a human title when reachable; otherwise a
// generated title carries the identifier.
func (f *Fetcher) FetchPDF(ctx context.Context, rawURL string) (*ArxivPaper, error) {
	id, ok := ArxivID(rawURL)
	if !ok {
		return nil, &ContentError{Reason: "not an arXiv URL"}
	}

	title := f.arxivTitle(ctx, id)

	pdfURL := f.arxivBase() + "/pdf/" + id + ".pdf"
	log.Info().Str("url", pdfURL).Msg("fetching PDF")
	body, contentType, err := f.get(ctx, pdfURL)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "application/pdf") {
		return nil, &ContentError{Reason: "not a PDF: " + contentType}
	}

	return &ArxivPaper{URL: rawURL, PDFURL: arxivPDFURL(id), Title: title, PDF: body}, nil
}

func (f *Fetcher) arxivBase() string {
	if f.ArxivBaseURL != "" {
		return strings.TrimRight(f.ArxivBaseURL, "/")
	}
	return "https://arxiv.org"
}

// arxivTitle scrapes the abstract page for the paper title. Best-effort:
// any failure falls back to a generated title.
func (f *Fetcher) arxivTitle(ctx context.Context, id string) string {
	fallback := fmt.Sprintf("arXiv paper %s", id)
	body, _, err := f.get(ctx, f.arxivBase()+"/abs/"+id)
	if err != nil {
		log.Warn().Err(err).Str("id", id).Msg("abstract page fetch failed, using generated title")
		return fallback
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return fallback
	}
	title := strings.TrimSpace(doc.Find("h1.title").First().Text())
	title = strings.TrimSpace(strings.TrimPrefix(title, "Title:"))
	if title == "" {
		return fallback
	}
	return title
}

// get performs a single bounded GET and maps transport outcomes onto the
// failure taxonomy. Returns body bytes and the declared content type.
func (f *Fetcher) get(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", &TransportError{Detail: err.Error()}
	}
	if req.URL == nil || !isHTTPScheme(req.URL) {
		return nil, "", &TransportError{Detail: fmt.Sprintf("unsupported URL scheme: %q", rawURL)}
	}
	ua := f.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	req.Header.Set("User-Agent", ua)

	timeout := f.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(req.Context(), timeout)
	defer cancel()
	req = req.WithContext(ctx)

	resp, err := f.httpClient().Do(req)
	if err != nil {
		return nil, "", classifyTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", &TransportError{Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, "", classifyTransport(err)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

func (f *Fetcher) httpClient() *http.Client {
	if f.HTTPClient != nil {
		// Clone to attach the redirect policy without mutating the
		// caller's client.
		base := *f.HTTPClient
		base.CheckRedirect = f.checkRedirectFunc()
		return &base
	}
	return &http.Client{CheckRedirect: f.checkRedirectFunc()}
}

func (f *Fetcher) checkRedirectFunc() func(req *http.Request, via []*http.Request) error {
	max := f.RedirectMaxHops
	if max <= 0 {
		max = 5
	}
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= max {
			return errors.New("too many redirects")
		}
		if req.URL == nil || !isHTTPScheme(req.URL) {
			return errors.New("redirect to unsupported scheme")
		}
		return nil
	}
}

func classifyTransport(err error) *TransportError {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return &TransportError{Timeout: true}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TransportError{Timeout: true}
	}
	return &TransportError{Detail: err.Error()}
}

func isHTTPScheme(u *url.URL) bool {
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}
