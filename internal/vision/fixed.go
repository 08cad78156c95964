package vision

import (
	"context"
	"image"
	"sync/atomic"

	"github.com/surface-data/surface.report/internal/analyze"
)

// FixedModel returns a canned prediction on every call. It backs offline runs
// and tests where no inference server is available, and counts invocations so
// tests can assert the analyzer was (or was not) reached.
type FixedModel struct {
	Output analyze.ModelOutput
	Err    error
	calls  atomic.Int64
}

// Info identifies the fixed model.
func (m *FixedModel) Info() analyze.ModelInfo {
	return analyze.ModelInfo{Name: "fixed", Version: "0"}
}

// Predict returns the configured output or error.
func (m *FixedModel) Predict(ctx context.Context, img image.Image) (analyze.ModelOutput, error) {
	m.calls.Add(1)
	if m.Err != nil {
		return analyze.ModelOutput{}, m.Err
	}
	return m.Output, nil
}

// Calls reports how many times Predict has run.
func (m *FixedModel) Calls() int64 {
	return m.calls.Load()
}
