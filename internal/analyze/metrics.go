package analyze

import "time"

// CrackSeverity buckets crack confidence into coarse grades.
type CrackSeverity string

const (
	CrackNone     CrackSeverity = "none"
	CrackMinor    CrackSeverity = "minor"
	CrackModerate CrackSeverity = "moderate"
	CrackSevere   CrackSeverity = "severe"
)

// Rating buckets the overall score into the reporting grades used downstream.
type Rating string

const (
	RatingExcellent Rating = "excellent"
	RatingGood      Rating = "good"
	RatingFair      Rating = "fair"
	RatingPoor      Rating = "poor"
	RatingSevere    Rating = "severe_issues"
)

// ModelOutput is the raw prediction set a detection model returns. Confidences
// are expected in [0,1] but are clamped again during normalisation.
type ModelOutput struct {
	CrackConfidence   float64
	PotholeConfidence float64
	PotholeCount      int
	SurfaceRoughness  float64
	LaneVisibility    float64
	DebrisScore       float64
	WeatherCondition  string // "dry", "wet", "unknown"
	Confidence        float64
}

// ModelInfo identifies the model that produced a prediction.
type ModelInfo struct {
	Name    string
	Version string
}

// Metrics is a normalised defect assessment for one image. At most one exists
// per image, and only for images that passed the quality gate.
type Metrics struct {
	OverallScore      float64 // 0-100, higher is better condition
	Rating            Rating
	CrackConfidence   float64
	CrackSeverity     CrackSeverity
	PotholeConfidence float64
	PotholeCount      int
	SurfaceRoughness  float64
	LaneVisibility    float64
	DebrisScore       float64
	WeatherCondition  string
	ModelConfidence   float64
	ModelName         string
	ModelVersion      string
	Timestamp         time.Time
}

// FromModelOutput normalises a raw prediction: confidences clamped to [0,1],
// crack severity bucketed, and the overall score derived from the worst of
// crack, pothole and roughness signals.
func FromModelOutput(out ModelOutput, info ModelInfo) Metrics {
	crack := clamp01(out.CrackConfidence)
	pothole := clamp01(out.PotholeConfidence)
	roughness := clamp01(out.SurfaceRoughness)

	score := 100 * (1 - max3(crack, pothole, roughness))
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	weather := out.WeatherCondition
	if weather != "dry" && weather != "wet" {
		weather = "unknown"
	}

	count := out.PotholeCount
	if count < 0 {
		count = 0
	}

	return Metrics{
		OverallScore:      score,
		Rating:            RatingForScore(score),
		CrackConfidence:   crack,
		CrackSeverity:     severityFor(crack),
		PotholeConfidence: pothole,
		PotholeCount:      count,
		SurfaceRoughness:  roughness,
		LaneVisibility:    clamp01(out.LaneVisibility),
		DebrisScore:       clamp01(out.DebrisScore),
		WeatherCondition:  weather,
		ModelConfidence:   clamp01(out.Confidence),
		ModelName:         info.Name,
		ModelVersion:      info.Version,
		Timestamp:         time.Now(),
	}
}

// RatingForScore maps an overall score to its reporting bucket.
func RatingForScore(score float64) Rating {
	switch {
	case score >= 90:
		return RatingExcellent
	case score >= 75:
		return RatingGood
	case score >= 50:
		return RatingFair
	case score >= 25:
		return RatingPoor
	default:
		return RatingSevere
	}
}

func severityFor(crackConf float64) CrackSeverity {
	switch {
	case crackConf < 0.2:
		return CrackNone
	case crackConf < 0.5:
		return CrackMinor
	case crackConf < 0.8:
		return CrackModerate
	default:
		return CrackSevere
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func max3(a, b, c float64) float64 {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}
