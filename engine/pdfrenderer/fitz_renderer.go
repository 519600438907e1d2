package pdfrenderer

import (
	"context"
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"
)

// FitzEngine renders with go-fitz (MuPDF). MuPDF contexts are per document,
// so the engine itself holds no state.
type FitzEngine struct {
}

// NewFitzEngine creates a new Fitz-based engine
func NewFitzEngine() (*FitzEngine, error) {
	return &FitzEngine{}, nil
}

// Name implements Engine
func (e *FitzEngine) Name() string {
	return BackendFitz
}

// OpenDocument implements Engine
func (e *FitzEngine) OpenDocument(ctx context.Context, data []byte) (Document, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("unable to open PDF document: %w", err)
	}
	return &fitzDocument{doc: doc}, nil
}

type fitzDocument struct {
	doc *fitz.Document
}

func (d *fitzDocument) PageCount() (int, error) {
	return d.doc.NumPage(), nil
}

func (d *fitzDocument) PageSize(index int) (float64, float64, error) {
	// Bound is reported at 72 DPI, i.e. in points
	rect, err := d.doc.Bound(index)
	if err != nil {
		return 0, 0, fmt.Errorf("unable to get size of page %d: %w", index, err)
	}
	return float64(rect.Dx()), float64(rect.Dy()), nil
}

func (d *fitzDocument) RenderPage(index int, dpi float64) (image.Image, error) {
	img, err := d.doc.ImageDPI(index, dpi)
	if err != nil {
		return nil, fmt.Errorf("unable to render page %d: %w", index, err)
	}
	return img, nil
}

func (d *fitzDocument) Close() error {
	return d.doc.Close()
}
