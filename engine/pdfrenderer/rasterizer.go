package pdfrenderer

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"
)

const (
	// DefaultPageIndex is the only page the pipeline renders
	DefaultPageIndex = 0
	// DefaultScale renders at 4x (288 DPI) so downstream OCR stays legible
	DefaultScale = 4.0
	// DefaultMaxSurfacePixels caps a single surface at 64 megapixels
	DefaultMaxSurfacePixels int64 = 64 << 20
)

// PixelSurface is the rendered page, opaque and ready for encoding
type PixelSurface struct {
	Width  int
	Height int
	Pix    *image.NRGBA
}

// RasterizePage renders one page of doc at scale onto a white surface
func RasterizePage(doc Document, pageIndex int, scale float64, maxPixels int64) (*PixelSurface, error) {
	count, err := doc.PageCount()
	if err != nil {
		return nil, stageError(StagePage, ErrPageAccess, err)
	}
	if pageIndex < 0 || pageIndex >= count {
		return nil, stageError(StagePage, ErrPageAccess, fmt.Errorf("page %d requested, document has %d pages", pageIndex, count))
	}

	width, height, err := doc.PageSize(pageIndex)
	if err != nil {
		return nil, stageError(StagePage, ErrPageAccess, err)
	}
	viewW, viewH := viewport(width, height, scale)

	surface, err := newSurface(viewW, viewH, maxPixels)
	if err != nil {
		return nil, stageError(StageSurface, ErrContextUnavailable, err)
	}

	rendered, err := renderPage(doc, pageIndex, PointsPerInch*scale)
	if err != nil {
		return nil, stageError(StageRender, ErrRender, fmt.Errorf("viewport %dx%d at scale %.1f: %w", viewW, viewH, scale, err))
	}

	// Engines round the viewport differently; resample with the best filter available
	if b := rendered.Bounds(); b.Dx() != viewW || b.Dy() != viewH {
		Logger.Debug("Resampling rendered page to viewport", "rendered", b.Size(), "viewportWidth", viewW, "viewportHeight", viewH)
		rendered = imaging.Resize(rendered, viewW, viewH, imaging.Lanczos)
	}

	// Composite in place so the page never costs a third full-size buffer
	draw.Draw(surface, surface.Bounds(), rendered, rendered.Bounds().Min, draw.Over)

	return &PixelSurface{
		Width:  viewW,
		Height: viewH,
		Pix:    surface,
	}, nil
}

func viewport(width, height, scale float64) (int, int) {
	w := math.Ceil(width * scale)
	h := math.Ceil(height * scale)
	if math.IsNaN(w) || math.IsNaN(h) || w > math.MaxInt32 || h > math.MaxInt32 {
		return 0, 0
	}
	return int(w), int(h)
}

func newSurface(width, height int, maxPixels int64) (*image.NRGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid viewport %dx%d", width, height)
	}
	if maxPixels > 0 && int64(width)*int64(height) > maxPixels {
		return nil, fmt.Errorf("viewport %dx%d exceeds %d pixel limit", width, height, maxPixels)
	}
	return imaging.New(width, height, color.White), nil
}

func renderPage(doc Document, pageIndex int, dpi float64) (img image.Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			img = nil
			err = fmt.Errorf("panic during render: %v", r)
		}
	}()
	img, err = doc.RenderPage(pageIndex, dpi)
	if err != nil {
		return nil, err
	}
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("engine returned an empty image")
	}
	return img, nil
}
