package pdfrenderer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"time"

	"github.com/disintegration/imaging"
	"github.com/klippa-app/go-pdfium"
	"github.com/klippa-app/go-pdfium/references"
	"github.com/klippa-app/go-pdfium/requests"
	"github.com/klippa-app/go-pdfium/webassembly"
)

// PDFiumEngine renders with go-pdfium on WebAssembly (pure Go, no CGo).
// Each opened document checks an instance out of the pool and returns it on Close.
type PDFiumEngine struct {
	pool            pdfium.Pool
	instanceTimeout time.Duration
}

// NewPDFiumEngine starts the WebAssembly runtime and its instance pool
func NewPDFiumEngine(maxInstances int, instanceTimeout time.Duration) (*PDFiumEngine, error) {
	if maxInstances < 1 {
		maxInstances = 1
	}
	if instanceTimeout <= 0 {
		instanceTimeout = 30 * time.Second
	}

	Logger.Info("Initializing PDFium WebAssembly pool", "maxInstances", maxInstances)
	pool, err := webassembly.Init(webassembly.Config{
		MinIdle:  1,
		MaxIdle:  maxInstances,
		MaxTotal: maxInstances,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PDFium WebAssembly: %w", err)
	}

	// Probe one instance so a broken runtime fails the load, not the first parse
	instance, err := pool.GetInstance(instanceTimeout)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to get PDFium instance: %w", err)
	}
	instance.Close()

	return &PDFiumEngine{
		pool:            pool,
		instanceTimeout: instanceTimeout,
	}, nil
}

// Name implements Engine
func (e *PDFiumEngine) Name() string {
	return BackendPDFium
}

// OpenDocument implements Engine
func (e *PDFiumEngine) OpenDocument(ctx context.Context, data []byte) (Document, error) {
	instance, err := e.pool.GetInstance(e.instanceTimeout)
	if err != nil {
		return nil, fmt.Errorf("unable to get PDFium instance: %w", err)
	}

	doc, err := instance.OpenDocument(&requests.OpenDocument{
		File: &data,
	})
	if err != nil {
		instance.Close()
		return nil, fmt.Errorf("unable to open PDF document: %w", err)
	}

	return &pdfiumDocument{instance: instance, doc: doc.Document}, nil
}

// Close shuts the pool down; only used when the process owns the engine's whole lifetime
func (e *PDFiumEngine) Close() error {
	if e.pool == nil {
		return nil
	}
	err := e.pool.Close()
	e.pool = nil
	return err
}

type pdfiumDocument struct {
	instance pdfium.Pdfium
	doc      references.FPDF_DOCUMENT
}

func (d *pdfiumDocument) page(index int) requests.Page {
	return requests.Page{
		ByIndex: &requests.PageByIndex{
			Document: d.doc,
			Index:    index,
		},
	}
}

func (d *pdfiumDocument) PageCount() (int, error) {
	resp, err := d.instance.FPDF_GetPageCount(&requests.FPDF_GetPageCount{
		Document: d.doc,
	})
	if err != nil {
		return 0, fmt.Errorf("unable to get page count: %w", err)
	}
	return resp.PageCount, nil
}

func (d *pdfiumDocument) PageSize(index int) (float64, float64, error) {
	resp, err := d.instance.GetPageSize(&requests.GetPageSize{
		Page: d.page(index),
	})
	if err != nil {
		return 0, 0, fmt.Errorf("unable to get size of page %d: %w", index, err)
	}
	return resp.Width, resp.Height, nil
}

func (d *pdfiumDocument) RenderPage(index int, dpi float64) (image.Image, error) {
	pageRender, err := d.instance.RenderPageInDPI(&requests.RenderPageInDPI{
		DPI:  int(math.Round(dpi)),
		Page: d.page(index),
	})
	if err != nil {
		return nil, fmt.Errorf("unable to render page %d: %w", index, err)
	}
	// The result image lives in WebAssembly memory until Cleanup
	defer pageRender.Cleanup()

	if pageRender.Result.Image == nil {
		return nil, fmt.Errorf("unable to render page %d: no image returned", index)
	}
	return imaging.Clone(pageRender.Result.Image), nil
}

func (d *pdfiumDocument) Close() error {
	if d.instance == nil {
		return nil
	}
	_, closeErr := d.instance.FPDF_CloseDocument(&requests.FPDF_CloseDocument{
		Document: d.doc,
	})
	releaseErr := d.instance.Close()
	d.instance = nil
	return errors.Join(closeErr, releaseErr)
}
