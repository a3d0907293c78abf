package figure

import (
	"bytes"
	"context"
	"runtime"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

// Geometry collects the tuning parameters of the caption-anchored
// estimate. The defaults are a coarse approximation: figures are assumed
// to sit directly above their caption and occupy up to 40% of the page.
type Geometry struct {
	// MaxHeightFrac is the portion of page height scanned above the
	// caption.
	MaxHeightFrac float64
	// CaptionGap is the vertical gap (in points) left between the clip
	// bottom and the caption top.
	CaptionGap float64
	// SideMargin is trimmed from each horizontal page edge, in points.
	SideMargin float64
	// DPI is the render resolution for the clipped region.
	DPI float64
}

// DefaultGeometry returns the tuning used in production.
func DefaultGeometry() Geometry {
	return Geometry{
		MaxHeightFrac: 0.4,
		CaptionGap:    5,
		SideMargin:    10,
		DPI:           150,
	}
}

// Locator extracts a representative image from a paper PDF. It never
// fails the caller: every problem degrades to "no image", because a
// missing figure must not fail the item. Stateless across calls apart
// from the render gate, so a single Locator is shared by all concurrent
// pipeline tasks.
type Locator struct {
	geometry Geometry
	// renderGate bounds concurrent CPU-bound parsing and rasterization so
	// figure work cannot monopolize the process.
	renderGate *semaphore.Weighted
}

// NewLocator builds a Locator with default geometry.
func NewLocator() *Locator {
	return NewLocatorWithGeometry(DefaultGeometry())
}

// NewLocatorWithGeometry builds a Locator with explicit tuning.
func NewLocatorWithGeometry(g Geometry) *Locator {
	return &Locator{
		geometry:   g,
		renderGate: semaphore.NewWeighted(int64(runtime.GOMAXPROCS(0))),
	}
}

// Locate runs the strategy chain against the hinted page:
//
//  1. largest embedded raster image on the page
//  2. caption-anchored geometric estimate, rendered to PNG
//
// Returns (nil, "") when no figure can be produced; that is not an error
// condition.
func (l *Locator) Locate(ctx context.Context, pdfBytes []byte, hint Hint) (data []byte, mimeType string) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("figure extraction panicked")
			data, mimeType = nil, ""
		}
	}()

	if !hint.Usable() {
		return nil, ""
	}

	reader, err := pdf.NewReader(bytes.NewReader(pdfBytes), int64(len(pdfBytes)))
	if err != nil {
		log.Warn().Err(err).Msg("unreadable PDF, skipping figure")
		return nil, ""
	}
	pageCount := reader.NumPage()
	if pageCount == 0 || hint.PageNumber > pageCount {
		log.Debug().Int("page", hint.PageNumber).Int("pages", pageCount).Msg("hinted page out of range")
		return nil, ""
	}

	if err := l.renderGate.Acquire(ctx, 1); err != nil {
		return nil, ""
	}
	defer l.renderGate.Release(1)

	if data, mimeType = l.largestEmbeddedImage(pdfBytes, hint.PageNumber); data != nil {
		log.Debug().Int("page", hint.PageNumber).Str("mime", mimeType).Msg("figure from embedded raster")
		return data, mimeType
	}

	if !hint.HasLabel() {
		return nil, ""
	}
	data, mimeType = l.renderAboveCaption(reader, pdfBytes, hint)
	if data != nil {
		log.Debug().Int("page", hint.PageNumber).Str("label", hint.Label).Msg("figure from caption estimate")
	}
	return data, mimeType
}
