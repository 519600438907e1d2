package pdfrenderer

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"time"
)

// Logger is global since we will need it everywhere
var Logger = slog.Default()

// PointsPerInch is the PDF user-space unit: scale 1.0 renders at 72 DPI
const PointsPerInch = 72.0

// Engine is the process-wide rendering engine handle. Implementations are
// safe for concurrent use once constructed.
type Engine interface {
	// Name identifies the backend in logs
	Name() string

	// OpenDocument parses raw document bytes into a Document owned by the caller
	OpenDocument(ctx context.Context, data []byte) (Document, error)
}

// Document is a parsed document scoped to a single conversion
type Document interface {
	PageCount() (int, error)

	// PageSize returns the page dimensions in points
	PageSize(index int) (width, height float64, err error)

	// RenderPage paints one page at the given resolution
	RenderPage(index int, dpi float64) (image.Image, error)

	// Close releases the engine resources held by the document
	Close() error
}

// EngineFactory builds the engine; the Loader calls it at most once per success
type EngineFactory func(ctx context.Context) (Engine, error)

// Backend names accepted by NewEngineFactory
const (
	BackendPDFium = "pdfium"
	BackendFitz   = "fitz"
)

// EngineOptions configures the backend chosen by NewEngineFactory
type EngineOptions struct {
	Backend         string
	MaxInstances    int
	InstanceTimeout time.Duration
}

// NewEngineFactory returns the factory for the configured backend
func NewEngineFactory(opts EngineOptions) (EngineFactory, error) {
	switch strings.ToLower(opts.Backend) {
	case "", BackendPDFium:
		return func(ctx context.Context) (Engine, error) {
			return NewPDFiumEngine(opts.MaxInstances, opts.InstanceTimeout)
		}, nil
	case BackendFitz:
		return func(ctx context.Context) (Engine, error) {
			return NewFitzEngine()
		}, nil
	default:
		return nil, fmt.Errorf("unknown render backend %q (supported: %s, %s)", opts.Backend, BackendPDFium, BackendFitz)
	}
}
