package pdfrenderer

import (
	"bytes"
	"errors"
	"fmt"
	"image/png"
	"path"
	"strings"

	"github.com/disintegration/imaging"
)

// MimeTypePNG is the type of every artifact the pipeline produces
const MimeTypePNG = "image/png"

const (
	sourceExt   = ".pdf"
	imageExt    = ".png"
	defaultBase = "page"
)

// Artifact is the encoded image handed to the caller for storage
type Artifact struct {
	Bytes    []byte `json:"bytes"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
}

// EncodePNG compresses the surface to PNG at the highest compression level
func EncodePNG(surface *PixelSurface, sourceName string) (*Artifact, error) {
	if surface == nil || surface.Pix == nil {
		return nil, stageError(StageEncode, ErrEncode, errors.New("no surface to encode"))
	}
	if surface.Width <= 0 || surface.Height <= 0 || surface.Pix.Bounds().Empty() {
		return nil, stageError(StageEncode, ErrEncode, fmt.Errorf("zero-sized surface %dx%d", surface.Width, surface.Height))
	}

	var buf bytes.Buffer
	err := imaging.Encode(&buf, surface.Pix, imaging.PNG, imaging.PNGCompressionLevel(png.BestCompression))
	if err != nil {
		return nil, stageError(StageEncode, ErrEncode, err)
	}
	// An encoder that reports success but writes nothing is a failure too
	if buf.Len() == 0 {
		return nil, stageError(StageEncode, ErrEncode, errors.New("encoder produced no data"))
	}

	return &Artifact{
		Bytes:    buf.Bytes(),
		Name:     ImageName(sourceName),
		MimeType: MimeTypePNG,
	}, nil
}

// ImageName swaps a trailing .pdf (any case) for .png; other names just gain .png
func ImageName(sourceName string) string {
	base := path.Base(strings.ReplaceAll(sourceName, `\`, "/"))
	if base == "." || base == "/" {
		base = ""
	}
	if len(base) >= len(sourceExt) && strings.EqualFold(base[len(base)-len(sourceExt):], sourceExt) {
		base = base[:len(base)-len(sourceExt)]
	}
	if base == "" {
		base = defaultBase
	}
	return base + imageExt
}
