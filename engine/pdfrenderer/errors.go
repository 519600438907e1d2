package pdfrenderer

import (
	"errors"
	"fmt"
)

// Stage names a step of the conversion pipeline
type Stage string

const (
	StageEngineLoad Stage = "engine-load"
	StageParse      Stage = "parse"
	StagePage       Stage = "page"
	StageSurface    Stage = "surface"
	StageRender     Stage = "render"
	StageEncode     Stage = "encode"
	StagePublish    Stage = "publish"
	StagePipeline   Stage = "pipeline"
)

// Error kinds returned (wrapped in a *StageError) by the pipeline stages.
var (
	ErrEngineLoad         = errors.New("render engine failed to load")
	ErrDocumentParse      = errors.New("document could not be parsed")
	ErrPageAccess         = errors.New("page does not exist")
	ErrContextUnavailable = errors.New("drawing surface unavailable")
	ErrRender             = errors.New("page render failed")
	ErrEncode             = errors.New("image encode failed")
	ErrUnclassified       = errors.New("conversion failed")
)

// StageError tags a failure with the stage it came from
type StageError struct {
	Stage Stage
	Kind  error
	Err   error
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Stage, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Stage, e.Kind, e.Err)
}

// Unwrap exposes both the kind sentinel and the cause to errors.Is/As
func (e *StageError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func stageError(stage Stage, kind error, err error) *StageError {
	return &StageError{Stage: stage, Kind: kind, Err: err}
}

// StageOf reports the stage an error was raised in, or "" if it carries none
func StageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

// userMessage turns a pipeline error into the text placed in Result.Error
func userMessage(err error) string {
	switch {
	case errors.Is(err, ErrContextUnavailable):
		return "Failed to get drawing surface for page"
	case errors.Is(err, ErrEncode):
		return "Failed to create image"
	default:
		return fmt.Sprintf("Failed to convert PDF: %v", err)
	}
}
