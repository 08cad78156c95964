package pipeline

import (
	"time"

	"github.com/surface-data/surface.report/internal/analyze"
	"github.com/surface-data/surface.report/internal/quality"
)

// Version tags every result with the pipeline revision that produced it.
const Version = "1.0.0"

// Result is the transient per-image outcome of one pipeline run. It is
// handed to the persistence stage (or directly to a caller) and then
// discarded; it is never stored as-is.
type Result struct {
	ImagePath string
	Success   bool

	Quality quality.Assessment

	// Defects is set only when the gate passed and the analyzer produced a
	// valid assessment.
	Defects *analyze.Metrics

	ProcessingTime  time.Duration
	Timestamp       time.Time
	PipelineVersion string
}
