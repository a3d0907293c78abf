package fetch

import "regexp"

// Both the abstract and PDF path forms resolve to the same paper
// identifier; old-style identifiers with a category prefix are accepted
// alongside the modern numeric form.
var arxivPattern = regexp.MustCompile(`^https?://(?:www\.)?arxiv\.org/(?:abs|pdf)/([a-z-]+(?:\.[A-Z]{2})?/\d{7}|\d{4}\.\d{4,5}(?:v\d+)?)(?:\.pdf)?/?$`)

// ArxivID extracts the paper identifier from an arXiv abstract or PDF URL.
func ArxivID(rawURL string) (string, bool) {
	m := arxivPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// IsArxiv reports whether a URL points at an arXiv paper and should take
// the PDF path through the pipeline.
func IsArxiv(rawURL string) bool {
	_, ok := ArxivID(rawURL)
	return ok
}

// arxivPDFURL is the canonical PDF location both URL forms map to.
func arxivPDFURL(id string) string { return "https://arxiv.org/pdf/" + id + ".pdf" }
