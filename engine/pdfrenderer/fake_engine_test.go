package pdfrenderer

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"math"
	"sync"
	"sync/atomic"
)

// fakePage describes one page of a scripted document
type fakePage struct {
	width, height float64
	fill          color.Color // nil renders a transparent (blank) page
	renderErr     error
	renderPanic   bool
	sizeErr       error
	renderSkew    int // extra pixels added to the rendered width
	renderOrigin  image.Point
	halfFill      bool // only the left half is painted
}

// fakeEngine opens documents by looking the input bytes up in docs
type fakeEngine struct {
	mu        sync.Mutex
	docs      map[string][]fakePage
	openPanic bool
	opened    atomic.Int64
	closed    atomic.Int64
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{docs: make(map[string][]fakePage)}
}

// add registers a document and returns the bytes that open it
func (e *fakeEngine) add(key string, pages ...fakePage) []byte {
	data := []byte("%PDF-1.7\n" + key)
	e.mu.Lock()
	e.docs[string(data)] = pages
	e.mu.Unlock()
	return data
}

func (e *fakeEngine) Name() string { return "fake" }

func (e *fakeEngine) OpenDocument(ctx context.Context, data []byte) (Document, error) {
	if e.openPanic {
		panic("engine exploded")
	}
	e.mu.Lock()
	pages, ok := e.docs[string(data)]
	e.mu.Unlock()
	if !ok {
		return nil, errors.New("corrupt cross-reference table")
	}
	e.opened.Add(1)
	return &fakeDocument{engine: e, pages: pages}, nil
}

type fakeDocument struct {
	engine *fakeEngine
	pages  []fakePage
	closed bool
}

func (d *fakeDocument) PageCount() (int, error) {
	return len(d.pages), nil
}

func (d *fakeDocument) PageSize(index int) (float64, float64, error) {
	p := d.pages[index]
	if p.sizeErr != nil {
		return 0, 0, p.sizeErr
	}
	return p.width, p.height, nil
}

func (d *fakeDocument) RenderPage(index int, dpi float64) (image.Image, error) {
	p := d.pages[index]
	if p.renderPanic {
		panic("content stream exploded")
	}
	if p.renderErr != nil {
		return nil, p.renderErr
	}
	w := int(math.Ceil(p.width*dpi/PointsPerInch)) + p.renderSkew
	h := int(math.Ceil(p.height * dpi / PointsPerInch))
	img := image.NewRGBA(image.Rect(0, 0, w, h).Add(p.renderOrigin))
	if p.fill != nil {
		painted := img.Bounds()
		if p.halfFill {
			painted.Max.X = painted.Min.X + w/2
		}
		draw.Draw(img, painted, &image.Uniform{C: p.fill}, image.Point{}, draw.Src)
	}
	return img, nil
}

func (d *fakeDocument) Close() error {
	if !d.closed {
		d.closed = true
		d.engine.closed.Add(1)
	}
	return nil
}

// staticFactory always hands out engine
func staticFactory(engine Engine) EngineFactory {
	return func(ctx context.Context) (Engine, error) {
		return engine, nil
	}
}
