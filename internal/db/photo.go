package db

import (
	"time"

	"github.com/surface-data/surface.report/internal/analyze"
	"github.com/surface-data/surface.report/internal/geo"
	"github.com/surface-data/surface.report/internal/quality"
)

// Photo is one persisted image record. Rows are created when an image is
// first saved and are never mutated or deleted by the pipeline.
type Photo struct {
	ID            int64
	StreetPointID *int64
	Source        string
	SourceImageID *string
	Location      *geo.Point
	DateTaken     *time.Time
	CompassAngle  *float64
	CreatedAt     time.Time
}

// PhotoRecord is a photo joined with its quality and (optional) road
// analysis results.
type PhotoRecord struct {
	Photo    Photo
	Quality  *quality.Assessment
	Analysis *analyze.Metrics
}

// SaveStatus distinguishes the outcomes of a persistence attempt.
type SaveStatus string

const (
	// SaveStatusSaved means a new photo and its results were written.
	SaveStatusSaved SaveStatus = "saved"
	// SaveStatusDuplicate means an equivalent photo already existed and
	// nothing was written; the outcome carries the existing identifiers.
	SaveStatusDuplicate SaveStatus = "duplicate"
)

// SaveOutcome reports what a SaveResult call did. AnalysisID is nil when no
// road analysis row exists for the photo.
type SaveOutcome struct {
	Status     SaveStatus
	PhotoID    int64
	QualityID  int64
	AnalysisID *int64
}

// ProcessingStats summarises what has been persisted so far.
type ProcessingStats struct {
	TotalPhotos     int64
	QualityAssessed int64
	UsablePhotos    int64
	RoadAnalyzed    int64
	AvgQualityScore *float64
	AvgRoadScore    *float64
}
