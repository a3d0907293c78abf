package figure

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Text returns the plain text of up to maxPages pages (0 = all). PDF
// summarization and figure identification both ground their prompts on
// this output.
func Text(pdfBytes []byte, maxPages int) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(pdfBytes), int64(len(pdfBytes)))
	if err != nil {
		return "", fmt.Errorf("open PDF: %w", err)
	}
	total := reader.NumPage()
	if total == 0 {
		return "", fmt.Errorf("PDF has no pages")
	}
	if maxPages > 0 && maxPages < total {
		total = maxPages
	}

	var sb strings.Builder
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// PageCount reports the number of pages, or 0 when the stream is
// unreadable.
func PageCount(pdfBytes []byte) int {
	reader, err := pdf.NewReader(bytes.NewReader(pdfBytes), int64(len(pdfBytes)))
	if err != nil {
		return 0
	}
	return reader.NumPage()
}
