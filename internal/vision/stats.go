// Package vision provides the concrete image capabilities consumed by the
// quality gate and the defect analyzer: pure-Go pixel statistics, a fallback
// road segmenter, model preprocessing, and detection-model backends.
package vision

import (
	"fmt"

	"github.com/disintegration/imaging"
	"gonum.org/v1/gonum/stat"

	"github.com/surface-data/surface.report/internal/quality"
)

// StatsAnalyser computes stage-1 pixel statistics from decoded images.
// It implements quality.PixelAnalyser.
type StatsAnalyser struct{}

// NewStatsAnalyser returns a ready-to-use analyser. It holds no state.
func NewStatsAnalyser() *StatsAnalyser {
	return &StatsAnalyser{}
}

// Analyse decodes the image, converts it to grayscale, and measures Laplacian
// variance plus the dark/bright pixel fractions against the given cutoffs.
func (a *StatsAnalyser) Analyse(path string, darkCutoff, brightCutoff int) (quality.PixelStats, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return quality.PixelStats{}, fmt.Errorf("decode image %s: %w", path, err)
	}

	gray := imaging.Grayscale(img)
	bounds := gray.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w < 3 || h < 3 {
		return quality.PixelStats{}, fmt.Errorf("image %s too small for analysis: %dx%d", path, w, h)
	}

	// One luminance value per pixel. Grayscale NRGBA stores identical R/G/B.
	lum := make([]float64, w*h)
	for y := 0; y < h; y++ {
		row := gray.Pix[y*gray.Stride:]
		for x := 0; x < w; x++ {
			lum[y*w+x] = float64(row[x*4])
		}
	}

	var dark, bright int
	for _, v := range lum {
		if v < float64(darkCutoff) {
			dark++
		}
		if v >= float64(brightCutoff) {
			bright++
		}
	}

	// 4-neighbour Laplacian over interior pixels; variance of the response is
	// the blur measure.
	lap := make([]float64, 0, (w-2)*(h-2))
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			c := lum[y*w+x]
			resp := 4*c - lum[(y-1)*w+x] - lum[(y+1)*w+x] - lum[y*w+x-1] - lum[y*w+x+1]
			lap = append(lap, resp)
		}
	}
	lapVar := stat.Variance(lap, nil)

	total := float64(len(lum))
	return quality.PixelStats{
		Width:        w,
		Height:       h,
		LaplacianVar: lapVar,
		DarkFrac:     float64(dark) / total,
		BrightFrac:   float64(bright) / total,
	}, nil
}
