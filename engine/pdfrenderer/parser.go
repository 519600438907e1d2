package pdfrenderer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
)

// headerWindow is how far into the file the %PDF- marker may start
const headerWindow = 1024

var pdfHeader = []byte("%PDF-")

// ParseDocument opens data with the engine. Input that is obviously not a PDF
// is rejected before the engine sees it.
func ParseDocument(ctx context.Context, engine Engine, data []byte) (doc Document, err error) {
	if len(data) == 0 {
		return nil, stageError(StageParse, ErrDocumentParse, errors.New("document is empty"))
	}
	window := data
	if len(window) > headerWindow {
		window = window[:headerWindow]
	}
	if !bytes.Contains(window, pdfHeader) {
		return nil, stageError(StageParse, ErrDocumentParse, errors.New("missing %PDF- header"))
	}

	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = stageError(StageParse, ErrDocumentParse, fmt.Errorf("panic: %v", r))
		}
	}()

	doc, err = engine.OpenDocument(ctx, data)
	if err != nil {
		return nil, stageError(StageParse, ErrDocumentParse, err)
	}
	if doc == nil {
		return nil, stageError(StageParse, ErrDocumentParse, errors.New("engine returned no document"))
	}
	return doc, nil
}
