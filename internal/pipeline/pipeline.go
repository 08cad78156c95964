// Package pipeline sequences the quality gate and the defect analyzer into a
// single per-image run. The gate invariant lives here: the analyzer runs iff
// the gate marked the image usable, and an analyzer failure downgrades the
// whole result to a quality failure rather than letting a half-analysed image
// through to persistence.
package pipeline

import (
	"context"
	"time"

	"github.com/surface-data/surface.report/internal/analyze"
	"github.com/surface-data/surface.report/internal/monitoring"
	"github.com/surface-data/surface.report/internal/quality"
)

// Gate is the usability check stage.
type Gate interface {
	Evaluate(imagePath string) quality.Assessment
}

// Analyzer is the defect-detection stage.
type Analyzer interface {
	Assess(ctx context.Context, imagePath string) (*analyze.Metrics, error)
}

// Pipeline runs Gate then, conditionally, Analyzer for one image at a time.
// A Pipeline instance is owned by a single worker; construct one per worker
// rather than sharing.
type Pipeline struct {
	gate     Gate
	analyzer Analyzer
}

// New creates a pipeline from its two stages.
func New(gate Gate, analyzer Analyzer) *Pipeline {
	return &Pipeline{gate: gate, analyzer: analyzer}
}

// Process evaluates one image end to end. It never returns an error: every
// failure mode is folded into the result, so a batch run can treat each image
// uniformly.
func (p *Pipeline) Process(ctx context.Context, imagePath string) Result {
	start := time.Now()

	assessment := p.gate.Evaluate(imagePath)

	res := Result{
		ImagePath:       imagePath,
		Quality:         assessment,
		Timestamp:       start,
		PipelineVersion: Version,
	}

	if !assessment.Usable {
		res.ProcessingTime = time.Since(start)
		return res
	}

	metrics, err := p.analyzer.Assess(ctx, imagePath)
	if err != nil || metrics == nil {
		if err != nil {
			monitoring.Logf("pipeline: defect analysis failed for %s: %v", imagePath, err)
		}
		// Fail closed: the gate passed but analysis did not unambiguously
		// succeed, so downgrade to a quality failure.
		res.Quality = quality.Failed(imagePath, quality.ReasonProcessingError, assessment.AssessmentVersion)
		res.ProcessingTime = time.Since(start)
		return res
	}

	res.Success = true
	res.Defects = metrics
	res.ProcessingTime = time.Since(start)
	return res
}
