package pdfrenderer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Input is an uploaded document
type Input struct {
	Name  string
	Bytes []byte
}

// Result is the uniform outcome of a conversion: either File and ImageURL are
// set, or Error is, never both.
type Result struct {
	ImageURL string    `json:"imageUrl"`
	File     *Artifact `json:"file"`
	Error    string    `json:"error,omitempty"`
}

// OK reports whether the conversion produced an image
func (r Result) OK() bool {
	return r.File != nil
}

func failure(err error) Result {
	return Result{ImageURL: "", File: nil, Error: userMessage(err)}
}

// Converter turns the first page of a PDF into a PNG
type Converter struct {
	loader           *Loader
	minter           URLMinter
	pageIndex        int
	scale            float64
	maxSurfacePixels int64
}

// ConverterOption customises a Converter
type ConverterOption func(*Converter)

// WithURLMinter replaces the default data: URL minter
func WithURLMinter(minter URLMinter) ConverterOption {
	return func(c *Converter) {
		c.minter = minter
	}
}

// WithMaxSurfacePixels caps the size of the rendered surface
func WithMaxSurfacePixels(maxPixels int64) ConverterOption {
	return func(c *Converter) {
		c.maxSurfacePixels = maxPixels
	}
}

// NewConverter creates a converter that draws its engine from loader
func NewConverter(loader *Loader, opts ...ConverterOption) *Converter {
	c := &Converter{
		loader:           loader,
		minter:           DataURLMinter{},
		pageIndex:        DefaultPageIndex,
		scale:            DefaultScale,
		maxSurfacePixels: DefaultMaxSurfacePixels,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Loader exposes the engine loader for status reporting
func (c *Converter) Loader() *Loader {
	return c.loader
}

// Convert runs the whole pipeline. It never panics and never returns a Go
// error: every failure is reported in Result.Error.
func (c *Converter) Convert(ctx context.Context, in Input) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			err := stageError(StagePipeline, ErrUnclassified, fmt.Errorf("panic: %v", r))
			Logger.Error("Panic recovered during conversion", "fileName", in.Name, "panic", r)
			result = failure(err)
		}
	}()

	file, err := c.convert(ctx, in)
	if err != nil {
		return failure(err)
	}

	url, err := c.minter.MintURL(file)
	if err == nil && url == "" {
		err = errors.New("empty URL")
	}
	if err != nil {
		err = stageError(StagePublish, ErrUnclassified, err)
		Logger.Error("Unable to create preview URL", "stage", StagePublish, "fileName", in.Name, "imageName", file.Name, "error", err)
		return failure(err)
	}

	return Result{ImageURL: url, File: file}
}

func (c *Converter) convert(ctx context.Context, in Input) (*Artifact, error) {
	logger := Logger.With("fileName", in.Name, "size", len(in.Bytes))

	engine, err := c.loader.Acquire(ctx)
	if err != nil {
		if !errors.Is(err, ErrEngineLoad) {
			err = stageError(StageEngineLoad, ErrUnclassified, err)
		}
		logger.Error("Render engine unavailable", "stage", StageEngineLoad, "error", err)
		return nil, err
	}

	doc, err := ParseDocument(ctx, engine, in.Bytes)
	if err != nil {
		logger.Error("Unable to parse PDF document", "stage", StageParse, "backend", engine.Name(), "error", err)
		return nil, err
	}

	surface, err := c.rasterize(doc, logger)
	if err != nil {
		logger.Error("Unable to rasterize page", "stage", StageOf(err), "page", c.pageIndex, "scale", c.scale, "error", err)
		return nil, err
	}

	file, err := EncodePNG(surface, in.Name)
	if err != nil {
		logger.Error("Unable to encode page image", "stage", StageEncode, "width", surface.Width, "height", surface.Height, "error", err)
		return nil, err
	}

	logger.Info("Converted PDF to image", "imageName", file.Name, "width", surface.Width, "height", surface.Height, "imageSize", len(file.Bytes))
	return file, nil
}

// rasterize owns the document: it is closed as soon as the page is on the surface
func (c *Converter) rasterize(doc Document, logger *slog.Logger) (*PixelSurface, error) {
	defer func() {
		if err := doc.Close(); err != nil {
			logger.Warn("Unable to release PDF document", "error", err)
		}
	}()
	return RasterizePage(doc, c.pageIndex, c.scale, c.maxSurfacePixels)
}
