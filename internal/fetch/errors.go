package fetch

import "fmt"

// TransportError covers everything that went wrong on the wire: non-2xx
// statuses, timeouts, and connection failures. Reason strings have stable
// prefixes because they surface verbatim in the digest footnote.
type TransportError struct {
	Status  int
	Timeout bool
	Detail  string
}

func (e *TransportError) Error() string { return e.Reason() }

// Reason renders the short, user-visible failure string.
func (e *TransportError) Reason() string {
	switch {
	case e.Timeout:
		return "timeout"
	case e.Status != 0:
		return fmt.Sprintf("HTTP %d", e.Status)
	default:
		return "request error: " + e.Detail
	}
}

// ContentError marks a response that arrived fine but could not be used:
// extraction below the word threshold, or a non-PDF reply where a PDF was
// expected.
type ContentError struct {
	Reason string
}

func (e *ContentError) Error() string { return e.Reason }
