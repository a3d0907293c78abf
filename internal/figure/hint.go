package figure

import "strings"

// Hint is the advisory figure location returned by the summarization
// collaborator. All fields may be absent; it is never trusted blindly.
type Hint struct {
	// Label is the figure number as printed in its caption, e.g. "2" or
	// "3a".
	Label string
	// PageNumber is 1-indexed. Zero means unknown.
	PageNumber int
	// Description is a short caption for the digest.
	Description string
	// Reason explains why the collaborator picked this figure.
	Reason string
}

// Usable reports whether the hint names a page to look at.
func (h Hint) Usable() bool {
	return h.PageNumber >= 1
}

// HasLabel reports whether a caption search is possible.
func (h Hint) HasLabel() bool {
	return strings.TrimSpace(h.Label) != ""
}
