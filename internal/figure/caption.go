package figure

import (
	"bytes"
	"image"
	"image/png"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog/log"
)

// textRow is one visual line of page text with its geometry in PDF points.
// y is the baseline measured from the page bottom, fontSize the dominant
// glyph height on the line.
type textRow struct {
	text     string
	y        float64
	fontSize float64
}

// renderAboveCaption is the second strategy: find the figure caption on
// the page, then render the region directly above it on the assumption
// that the figure sits there.
func (l *Locator) renderAboveCaption(reader *pdf.Reader, pdfBytes []byte, hint Hint) ([]byte, string) {
	page := reader.Page(hint.PageNumber)
	if page.V.IsNull() {
		return nil, ""
	}
	pageWidth, pageHeight := pageSize(page)

	rows := groupRows(page.Content().Text)
	captionTop, found := findCaptionTop(rows, hint.Label, pageHeight)
	if !found {
		log.Debug().Str("label", hint.Label).Int("page", hint.PageNumber).Msg("no caption match on page")
		return nil, ""
	}

	g := l.geometry
	clipTop := math.Max(0, captionTop-g.MaxHeightFrac*pageHeight)
	clipBottom := captionTop - g.CaptionGap
	if clipBottom <= clipTop {
		return nil, ""
	}

	doc, err := fitz.NewFromMemory(pdfBytes)
	if err != nil {
		log.Debug().Err(err).Msg("render open failed")
		return nil, ""
	}
	defer doc.Close()

	rendered, err := doc.ImageDPI(hint.PageNumber-1, g.DPI)
	if err != nil {
		log.Debug().Err(err).Int("page", hint.PageNumber).Msg("page render failed")
		return nil, ""
	}

	scale := g.DPI / 72.0
	clip := image.Rect(
		int(g.SideMargin*scale),
		int(clipTop*scale),
		int((pageWidth-g.SideMargin)*scale),
		int(clipBottom*scale),
	).Intersect(rendered.Bounds())
	if clip.Empty() {
		return nil, ""
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, rendered.SubImage(clip)); err != nil {
		log.Debug().Err(err).Msg("clip encode failed")
		return nil, ""
	}
	return buf.Bytes(), "image/png"
}

// captionPatterns returns the search patterns in priority order. The
// first pattern matching anywhere on the page wins.
func captionPatterns(label string) []*regexp.Regexp {
	quoted := regexp.QuoteMeta(strings.TrimSpace(label))
	return []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bfigure\s*` + quoted + `\b`),
		regexp.MustCompile(`(?i)\bfig\.\s*` + quoted + `\b`),
	}
}

// findCaptionTop locates the caption line and returns the distance of its
// top edge from the page top, in points.
func findCaptionTop(rows []textRow, label string, pageHeight float64) (float64, bool) {
	for _, re := range captionPatterns(label) {
		for _, row := range rows {
			if re.MatchString(row.text) {
				return pageHeight - (row.y + row.fontSize), true
			}
		}
	}
	return 0, false
}

// groupRows buckets glyphs into visual lines. Glyph fragments arrive in
// draw order, one or a few characters at a time, so fragments are sorted
// and joined with a space wherever the horizontal gap exceeds a quarter
// of the font size.
func groupRows(fragments []pdf.Text) []textRow {
	if len(fragments) == 0 {
		return nil
	}
	sorted := make([]pdf.Text, len(fragments))
	copy(sorted, fragments)
	sort.SliceStable(sorted, func(i, j int) bool {
		if math.Abs(sorted[i].Y-sorted[j].Y) > rowTolerance {
			return sorted[i].Y > sorted[j].Y
		}
		return sorted[i].X < sorted[j].X
	})

	var rows []textRow
	var b strings.Builder
	cur := textRow{y: sorted[0].Y, fontSize: sorted[0].FontSize}
	lastEnd := sorted[0].X

	flush := func() {
		cur.text = b.String()
		if strings.TrimSpace(cur.text) != "" {
			rows = append(rows, cur)
		}
		b.Reset()
	}

	for i, frag := range sorted {
		if i > 0 && math.Abs(frag.Y-cur.y) > rowTolerance {
			flush()
			cur = textRow{y: frag.Y, fontSize: frag.FontSize}
			lastEnd = frag.X
		} else if i > 0 && frag.X-lastEnd > 0.25*math.Max(frag.FontSize, 1) {
			b.WriteByte(' ')
		}
		b.WriteString(frag.S)
		lastEnd = frag.X + frag.W
		if frag.FontSize > cur.fontSize {
			cur.fontSize = frag.FontSize
		}
	}
	flush()
	return rows
}

// rowTolerance is the baseline jitter (points) still considered one line.
const rowTolerance = 2.0

// pageSize reads the MediaBox, falling back to US Letter when the page
// tree keeps it on an ancestor node.
func pageSize(p pdf.Page) (w, h float64) {
	box := p.V.Key("MediaBox")
	if box.Len() >= 4 {
		w = box.Index(2).Float64() - box.Index(0).Float64()
		h = box.Index(3).Float64() - box.Index(1).Float64()
	}
	if w <= 0 || h <= 0 {
		return 612, 792
	}
	return w, h
}
