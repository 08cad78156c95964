// Package quality implements the two-stage usability gate that every image
// must pass before the expensive defect analysis runs. Stage 1 is a set of
// cheap pixel heuristics (blur, exposure, resolution); stage 2 is road-surface
// segmentation. Stage 2 never runs when stage 1 fails.
package quality

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/surface-data/surface.report/internal/monitoring"
)

// GateVersion tags every assessment so persisted rows can be traced back to
// the thresholds and scoring formula that produced them.
const GateVersion = "1.0.0"

// PixelStats are the raw stage-1 measurements for one image.
type PixelStats struct {
	Width  int
	Height int

	// LaplacianVar is the variance of the Laplacian over the grayscale image;
	// low values indicate blur.
	LaplacianVar float64

	// DarkFrac and BrightFrac are the fractions of pixels below DarkPixelValue
	// and at or above BrightPixelValue respectively.
	DarkFrac   float64
	BrightFrac float64
}

// PixelAnalyser computes stage-1 pixel statistics for an image on disk.
type PixelAnalyser interface {
	Analyse(path string, darkCutoff, brightCutoff int) (PixelStats, error)
}

// RoadSegmenter estimates the fraction of the frame covered by road surface,
// as a percentage in [0,100].
type RoadSegmenter interface {
	RoadSurfacePct(path string) (float64, error)
}

// Gate evaluates image usability. It holds no per-image state and is safe for
// concurrent use as long as its capabilities are.
type Gate struct {
	cfg       Config
	pixels    PixelAnalyser
	segmenter RoadSegmenter
}

// NewGate creates a gate with the given thresholds and capabilities.
func NewGate(cfg Config, pixels PixelAnalyser, segmenter RoadSegmenter) *Gate {
	return &Gate{cfg: cfg, pixels: pixels, segmenter: segmenter}
}

// Evaluate runs the two-stage check and always returns a well-formed
// assessment; failures of any kind surface as an unusable assessment with the
// appropriate reason, never as an error to the caller.
func (g *Gate) Evaluate(imagePath string) Assessment {
	if _, err := os.Stat(imagePath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Failed(imagePath, ReasonFileNotFound, GateVersion)
		}
		return Failed(imagePath, ReasonProcessingError, GateVersion)
	}

	// Stage 1: cheap heuristics.
	stats, err := g.pixels.Analyse(imagePath, g.cfg.DarkPixelValue, g.cfg.BrightPixelValue)
	if err != nil {
		monitoring.Logf("quality: pixel analysis failed for %s: %v", imagePath, err)
		return Failed(imagePath, ReasonProcessingError, GateVersion)
	}

	blurScore := g.blurScore(stats)
	exposureScore := g.exposureScore(stats)
	sizeScore := g.sizeScore(stats)

	reasons := g.heuristicFailures(stats)
	if len(reasons) > 0 {
		// Failed heuristics: skip the expensive segmentation entirely.
		return Assessment{
			ImagePath:         imagePath,
			OverallScore:      min3(blurScore, exposureScore, sizeScore),
			Usable:            false,
			FailureReasons:    reasons,
			BlurScore:         blurScore,
			ExposureScore:     exposureScore,
			SizeScore:         sizeScore,
			Timestamp:         time.Now(),
			AssessmentVersion: GateVersion,
		}
	}

	// Stage 2: road-surface segmentation.
	roadPct, err := g.segmenter.RoadSurfacePct(imagePath)
	if err != nil {
		monitoring.Logf("quality: segmentation failed for %s: %v", imagePath, err)
		return Failed(imagePath, ReasonProcessingError, GateVersion)
	}

	sufficient := roadPct >= g.cfg.MinRoadSurfacePct
	if !sufficient {
		reasons = append(reasons, ReasonInsufficientRoad)
	}

	return Assessment{
		ImagePath:         imagePath,
		OverallScore:      g.overallScore(blurScore, exposureScore, sizeScore, roadPct),
		Usable:            len(reasons) == 0,
		FailureReasons:    reasons,
		BlurScore:         blurScore,
		ExposureScore:     exposureScore,
		SizeScore:         sizeScore,
		RoadSurfacePct:    roadPct,
		SufficientRoad:    sufficient,
		Timestamp:         time.Now(),
		AssessmentVersion: GateVersion,
	}
}

// blurScore maps Laplacian variance to 0-100. Sharp images score 100; blurry
// images score their variance directly, so near-zero variance scores near zero.
func (g *Gate) blurScore(s PixelStats) float64 {
	if s.LaplacianVar < g.cfg.BlurThreshold {
		return clamp(s.LaplacianVar, 0, 100)
	}
	return 100.0
}

// exposureScore penalises the worse of the dark and bright fractions.
func (g *Gate) exposureScore(s PixelStats) float64 {
	tooDark := s.DarkFrac > g.cfg.DarkFraction
	tooBright := s.BrightFrac > g.cfg.BrightFraction
	if tooDark || tooBright {
		penalty := maxf(s.DarkFrac, s.BrightFrac) * 100
		return clamp(100.0-penalty, 0, 100)
	}
	return 100.0
}

// sizeScore scores undersized images by how close they come to the minimum
// pixel count.
func (g *Gate) sizeScore(s PixelStats) float64 {
	if s.Width < g.cfg.MinWidth || s.Height < g.cfg.MinHeight {
		minPixels := float64(g.cfg.MinWidth * g.cfg.MinHeight)
		actual := float64(s.Width * s.Height)
		return clamp(actual/minPixels*100, 0, 100)
	}
	return 100.0
}

func (g *Gate) heuristicFailures(s PixelStats) []FailureReason {
	var reasons []FailureReason

	if s.LaplacianVar < g.cfg.BlurThreshold {
		reasons = append(reasons, ReasonTooBlurry)
	}
	if s.DarkFrac > g.cfg.DarkFraction {
		reasons = append(reasons, ReasonTooDark)
	}
	if s.BrightFrac > g.cfg.BrightFraction {
		reasons = append(reasons, ReasonTooBright)
	}
	if s.Width < g.cfg.MinWidth || s.Height < g.cfg.MinHeight {
		reasons = append(reasons, ReasonResolutionTooSmall)
	}
	return reasons
}

// overallScore combines the weighted heuristic score with a road-surface
// bonus or penalty: up to +20 above the coverage threshold, flat -30 below it.
func (g *Gate) overallScore(blur, exposure, size, roadPct float64) float64 {
	heuristic := blur*0.4 + exposure*0.3 + size*0.3

	roadBonus := -30.0
	if roadPct >= g.cfg.MinRoadSurfacePct {
		roadBonus = roadPct / 5.0
		if roadBonus > 20.0 {
			roadBonus = 20.0
		}
	}
	return clamp(heuristic+roadBonus, 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func min3(a, b, c float64) float64 {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
