package vision

import (
	"image"

	"github.com/disintegration/imaging"

	"github.com/surface-data/surface.report/internal/monitoring"
)

// Preprocessor loads and resizes images for model inference. It implements
// analyze.Preprocessor.
type Preprocessor struct {
	TargetWidth  int
	TargetHeight int
}

// NewPreprocessor returns a preprocessor with the model's expected input size.
func NewPreprocessor() *Preprocessor {
	return &Preprocessor{TargetWidth: 640, TargetHeight: 640}
}

// Load decodes and resizes the image. A nil image with a nil error signals
// that the file could not be turned into a usable model input; the analyzer
// downgrades such images to a processing failure.
func (p *Preprocessor) Load(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		monitoring.Logf("vision: cannot decode %s: %v", path, err)
		return nil, nil
	}

	w, h := p.TargetWidth, p.TargetHeight
	if w <= 0 || h <= 0 {
		w, h = 640, 640
	}
	return imaging.Resize(img, w, h, imaging.Lanczos), nil
}
