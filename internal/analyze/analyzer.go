// Package analyze wraps a black-box defect-detection model and converts its
// raw predictions into normalised road-condition metrics. The analyzer is only
// invoked for images that passed the quality gate; that invariant is enforced
// by the pipeline, not here.
package analyze

import (
	"context"
	"fmt"
	"image"

	"github.com/surface-data/surface.report/internal/monitoring"
)

// DetectionModel runs inference on a preprocessed image.
type DetectionModel interface {
	Predict(ctx context.Context, img image.Image) (ModelOutput, error)
	Info() ModelInfo
}

// Preprocessor loads an image from disk and prepares it for inference
// (resize, normalise). A nil image with a nil error means the file could not
// be turned into a usable input.
type Preprocessor interface {
	Load(path string) (image.Image, error)
}

// Analyzer assesses road condition for gated images.
type Analyzer struct {
	model DetectionModel
	pre   Preprocessor
}

// NewAnalyzer creates an analyzer over the given model and preprocessor.
func NewAnalyzer(model DetectionModel, pre Preprocessor) *Analyzer {
	return &Analyzer{model: model, pre: pre}
}

// Assess runs preprocessing and inference for one image.
//
// A (nil, nil) return means preprocessing could not produce a usable input;
// the caller should treat the image as a processing failure rather than a
// valid road assessment. Inference failures return an error.
func (a *Analyzer) Assess(ctx context.Context, imagePath string) (*Metrics, error) {
	img, err := a.pre.Load(imagePath)
	if err != nil {
		monitoring.Logf("analyze: preprocessing failed for %s: %v", imagePath, err)
		return nil, nil
	}
	if img == nil {
		return nil, nil
	}

	out, err := a.model.Predict(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("model inference for %s: %w", imagePath, err)
	}

	m := FromModelOutput(out, a.model.Info())
	return &m, nil
}
