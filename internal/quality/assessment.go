package quality

import "time"

// Assessment is the outcome of gating one image. It is created exactly once
// per image, whether or not the image passed, and is immutable afterwards.
//
// Invariant: Usable == (len(FailureReasons) == 0).
type Assessment struct {
	ImagePath      string
	OverallScore   float64 // 0-100
	Usable         bool
	FailureReasons []FailureReason

	// Stage 1 sub-scores (0-100 each).
	BlurScore     float64
	ExposureScore float64
	SizeScore     float64

	// Stage 2 results. RoadSurfacePct is 0 when stage 2 was skipped.
	RoadSurfacePct float64
	SufficientRoad bool

	Timestamp         time.Time
	AssessmentVersion string
}

// Failed builds an unusable assessment for a single terminal failure
// (missing file, decode error) with all sub-scores zeroed.
func Failed(imagePath string, reason FailureReason, version string) Assessment {
	return Assessment{
		ImagePath:         imagePath,
		OverallScore:      0,
		Usable:            false,
		FailureReasons:    []FailureReason{reason},
		Timestamp:         time.Now(),
		AssessmentVersion: version,
	}
}

// HasReason reports whether the assessment carries the given failure reason.
func (a Assessment) HasReason(r FailureReason) bool {
	for _, have := range a.FailureReasons {
		if have == r {
			return true
		}
	}
	return false
}
