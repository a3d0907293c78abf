package figure

import (
	"bytes"
	"image"
	"io"
	"sort"
	"strconv"
	"strings"

	_ "image/jpeg"
	_ "image/png"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog/log"
)

// largestEmbeddedImage enumerates the raster images embedded on the page
// and returns the one with the largest pixel area. Academic PDFs almost
// always embed figures as rasters, which makes this both cheap and
// reliable. Ties go to the lowest object number, i.e. first seen.
func (l *Locator) largestEmbeddedImage(pdfBytes []byte, page int) ([]byte, string) {
	pages, err := api.ExtractImagesRaw(bytes.NewReader(pdfBytes), []string{strconv.Itoa(page)}, model.NewDefaultConfiguration())
	if err != nil {
		log.Debug().Err(err).Int("page", page).Msg("embedded image enumeration failed")
		return nil, ""
	}

	var (
		best     []byte
		bestArea int
		bestType string
	)
	for _, byObj := range pages {
		objNrs := make([]int, 0, len(byObj))
		for nr := range byObj {
			objNrs = append(objNrs, nr)
		}
		sort.Ints(objNrs)
		for _, nr := range objNrs {
			img := byObj[nr]
			raw, err := io.ReadAll(img)
			if err != nil {
				continue
			}
			cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
			if err != nil {
				// Unsupported encodings (JBIG2 etc.) are skipped rather
				// than guessed at.
				continue
			}
			if area := cfg.Width * cfg.Height; area > bestArea {
				best, bestArea, bestType = raw, area, img.FileType
			}
		}
	}
	if best == nil {
		return nil, ""
	}
	return best, mimeForFileType(bestType)
}

func mimeForFileType(ext string) string {
	switch strings.ToLower(ext) {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "tif", "tiff":
		return "image/tiff"
	case "webp":
		return "image/webp"
	case "":
		return "application/octet-stream"
	default:
		return "image/" + strings.ToLower(ext)
	}
}
