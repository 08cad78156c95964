package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/surface-data/surface.report/internal/analyze"
	"github.com/surface-data/surface.report/internal/geo"
	"github.com/surface-data/surface.report/internal/quality"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.MigrateUp(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func usableQuality() quality.Assessment {
	return quality.Assessment{
		ImagePath:         "road.jpg",
		OverallScore:      92,
		Usable:            true,
		BlurScore:         100,
		ExposureScore:     100,
		SizeScore:         100,
		RoadSurfacePct:    55,
		SufficientRoad:    true,
		Timestamp:         time.Now(),
		AssessmentVersion: "1.0.0",
	}
}

func goodMetrics() *analyze.Metrics {
	return &analyze.Metrics{
		OverallScore:     85,
		Rating:           analyze.RatingGood,
		CrackConfidence:  0.1,
		CrackSeverity:    analyze.CrackNone,
		WeatherCondition: "dry",
		ModelName:        "test-model",
		ModelVersion:     "1",
	}
}

func testPhoto() Photo {
	id := "img-123"
	angle := 90.0
	taken := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	return Photo{
		Source:        "mapillary",
		SourceImageID: &id,
		Location:      &geo.Point{Lat: 55.9533, Lon: -3.1883},
		DateTaken:     &taken,
		CompassAngle:  &angle,
	}
}

func TestSaveResultFullRecord(t *testing.T) {
	store := NewPhotoStore(newTestDB(t))
	ctx := context.Background()

	out, err := store.SaveResult(ctx, testPhoto(), usableQuality(), goodMetrics())
	if err != nil {
		t.Fatalf("SaveResult: %v", err)
	}
	if out.Status != SaveStatusSaved {
		t.Fatalf("status = %s, want %s", out.Status, SaveStatusSaved)
	}
	if out.PhotoID == 0 || out.QualityID == 0 {
		t.Errorf("missing ids: %+v", out)
	}
	if out.AnalysisID == nil {
		t.Error("expected analysis id for full record")
	}

	rec, err := store.GetPhotoWithResults(ctx, out.PhotoID)
	if err != nil {
		t.Fatalf("GetPhotoWithResults: %v", err)
	}
	if rec == nil {
		t.Fatal("saved photo not found")
	}
	if rec.Quality == nil || !rec.Quality.Usable {
		t.Errorf("quality = %+v, want usable", rec.Quality)
	}
	if rec.Analysis == nil {
		t.Fatal("analysis missing")
	}
	if rec.Analysis.Rating != analyze.RatingGood {
		t.Errorf("rating = %s, want %s", rec.Analysis.Rating, analyze.RatingGood)
	}
	if rec.Photo.DateTaken == nil || !rec.Photo.DateTaken.Equal(*testPhoto().DateTaken) {
		t.Errorf("date taken = %v, want %v", rec.Photo.DateTaken, testPhoto().DateTaken)
	}
}

func TestSaveResultGatedPhotoHasNoAnalysis(t *testing.T) {
	store := NewPhotoStore(newTestDB(t))
	ctx := context.Background()

	q := quality.Failed("road.jpg", quality.ReasonTooBlurry, "1.0.0")
	out, err := store.SaveResult(ctx, testPhoto(), q, nil)
	if err != nil {
		t.Fatalf("SaveResult: %v", err)
	}
	if out.AnalysisID != nil {
		t.Error("gated photo has an analysis id")
	}

	rec, err := store.GetPhotoWithResults(ctx, out.PhotoID)
	if err != nil {
		t.Fatalf("GetPhotoWithResults: %v", err)
	}
	if rec.Analysis != nil {
		t.Error("gated photo has an analysis row")
	}
	if !rec.Quality.HasReason(quality.ReasonTooBlurry) {
		t.Errorf("reasons = %v, want %s", rec.Quality.FailureReasons, quality.ReasonTooBlurry)
	}
}

func TestSaveResultDuplicateBySourceImageID(t *testing.T) {
	store := NewPhotoStore(newTestDB(t))
	ctx := context.Background()

	first, err := store.SaveResult(ctx, testPhoto(), usableQuality(), goodMetrics())
	if err != nil {
		t.Fatalf("first save: %v", err)
	}

	// Same source image id, different location.
	dup := testPhoto()
	dup.Location = &geo.Point{Lat: 51.5, Lon: -0.1}
	second, err := store.SaveResult(ctx, dup, usableQuality(), goodMetrics())
	if err != nil {
		t.Fatalf("second save: %v", err)
	}

	if second.Status != SaveStatusDuplicate {
		t.Fatalf("status = %s, want %s", second.Status, SaveStatusDuplicate)
	}
	if second.PhotoID != first.PhotoID {
		t.Errorf("duplicate photo id = %d, want existing %d", second.PhotoID, first.PhotoID)
	}
	if second.QualityID != first.QualityID {
		t.Errorf("duplicate quality id = %d, want existing %d", second.QualityID, first.QualityID)
	}
	if second.AnalysisID == nil || *second.AnalysisID != *first.AnalysisID {
		t.Errorf("duplicate analysis id = %v, want existing %v", second.AnalysisID, first.AnalysisID)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalPhotos != 1 {
		t.Errorf("total photos = %d after duplicate save, want 1", stats.TotalPhotos)
	}
}

func TestSaveResultDuplicateByLocationAndTime(t *testing.T) {
	store := NewPhotoStore(newTestDB(t))
	ctx := context.Background()

	// No native image id on either photo; identity falls back to
	// location + capture time.
	photo := testPhoto()
	photo.SourceImageID = nil

	if _, err := store.SaveResult(ctx, photo, usableQuality(), nil); err != nil {
		t.Fatalf("first save: %v", err)
	}

	second, err := store.SaveResult(ctx, photo, usableQuality(), nil)
	if err != nil {
		t.Fatalf("second save: %v", err)
	}
	if second.Status != SaveStatusDuplicate {
		t.Fatalf("status = %s, want %s", second.Status, SaveStatusDuplicate)
	}

	// Same location at a different time is a distinct photo.
	later := testPhoto()
	later.SourceImageID = nil
	taken := photo.DateTaken.Add(time.Hour)
	later.DateTaken = &taken

	third, err := store.SaveResult(ctx, later, usableQuality(), nil)
	if err != nil {
		t.Fatalf("third save: %v", err)
	}
	if third.Status != SaveStatusSaved {
		t.Errorf("status = %s for different capture time, want %s", third.Status, SaveStatusSaved)
	}
}

func TestSaveResultRollsBackOnAnalysisFailure(t *testing.T) {
	db := newTestDB(t)
	store := NewPhotoStore(db)
	ctx := context.Background()

	// An out-of-range score violates the table check constraint, failing the
	// third insert of the transaction.
	bad := goodMetrics()
	bad.OverallScore = 150

	if _, err := store.SaveResult(ctx, testPhoto(), usableQuality(), bad); err == nil {
		t.Fatal("expected constraint violation")
	}

	var photos, qualities int64
	if err := db.QueryRow(`SELECT COUNT(*) FROM photos`).Scan(&photos); err != nil {
		t.Fatalf("count photos: %v", err)
	}
	if err := db.QueryRow(`SELECT COUNT(*) FROM quality_results`).Scan(&qualities); err != nil {
		t.Fatalf("count quality results: %v", err)
	}
	if photos != 0 || qualities != 0 {
		t.Errorf("rollback left %d photos and %d quality rows, want 0 and 0", photos, qualities)
	}

	// The failed save must not poison the identity: a clean retry succeeds.
	out, err := store.SaveResult(ctx, testPhoto(), usableQuality(), goodMetrics())
	if err != nil {
		t.Fatalf("retry after rollback: %v", err)
	}
	if out.Status != SaveStatusSaved {
		t.Errorf("retry status = %s, want %s", out.Status, SaveStatusSaved)
	}
}

func TestPhotosWithinRadius(t *testing.T) {
	store := NewPhotoStore(newTestDB(t))
	ctx := context.Background()

	center := geo.Point{Lat: 55.9533, Lon: -3.1883}

	near := testPhoto()
	nearID := "near"
	near.SourceImageID = &nearID
	near.Location = &geo.Point{Lat: 55.9535, Lon: -3.1884} // ~23m away

	far := testPhoto()
	farID := "far"
	far.SourceImageID = &farID
	far.Location = &geo.Point{Lat: 55.9633, Lon: -3.1883} // ~1.1km away

	for _, p := range []Photo{near, far} {
		if _, err := store.SaveResult(ctx, p, usableQuality(), nil); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	photos, err := store.PhotosWithinRadius(ctx, center, 100)
	if err != nil {
		t.Fatalf("PhotosWithinRadius: %v", err)
	}
	if len(photos) != 1 {
		t.Fatalf("got %d photos within 100m, want 1", len(photos))
	}
	if *photos[0].SourceImageID != "near" {
		t.Errorf("got photo %s, want near", *photos[0].SourceImageID)
	}
}

func TestStatsAndHistogram(t *testing.T) {
	store := NewPhotoStore(newTestDB(t))
	ctx := context.Background()

	// One analysed photo and one gated photo.
	if _, err := store.SaveResult(ctx, testPhoto(), usableQuality(), goodMetrics()); err != nil {
		t.Fatalf("save analysed: %v", err)
	}
	gated := testPhoto()
	gatedID := "img-456"
	gated.SourceImageID = &gatedID
	gatedTaken := testPhoto().DateTaken.Add(time.Minute)
	gated.DateTaken = &gatedTaken
	if _, err := store.SaveResult(ctx, gated, quality.Failed("x.jpg", quality.ReasonTooDark, "1.0.0"), nil); err != nil {
		t.Fatalf("save gated: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalPhotos != 2 || stats.QualityAssessed != 2 {
		t.Errorf("totals = %d/%d, want 2/2", stats.TotalPhotos, stats.QualityAssessed)
	}
	if stats.UsablePhotos != 1 || stats.RoadAnalyzed != 1 {
		t.Errorf("usable/analysed = %d/%d, want 1/1", stats.UsablePhotos, stats.RoadAnalyzed)
	}
	if stats.AvgRoadScore == nil || *stats.AvgRoadScore != 85 {
		t.Errorf("avg road score = %v, want 85", stats.AvgRoadScore)
	}

	hist, err := store.ScoreHistogram(ctx)
	if err != nil {
		t.Fatalf("ScoreHistogram: %v", err)
	}
	if hist[8] != 1 {
		t.Errorf("hist[8] = %d for score 85, want 1", hist[8])
	}

	counts, err := store.RatingCounts(ctx)
	if err != nil {
		t.Fatalf("RatingCounts: %v", err)
	}
	if counts["good"] != 1 {
		t.Errorf("good count = %d, want 1", counts["good"])
	}
}

func TestGetPhotoWithResultsMissing(t *testing.T) {
	store := NewPhotoStore(newTestDB(t))

	rec, err := store.GetPhotoWithResults(context.Background(), 999)
	if err != nil {
		t.Fatalf("GetPhotoWithResults: %v", err)
	}
	if rec != nil {
		t.Fatalf("got %+v for missing photo, want nil", rec)
	}
}
