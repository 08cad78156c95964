package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/surface-data/surface.report/internal/analyze"
	"github.com/surface-data/surface.report/internal/geo"
	"github.com/surface-data/surface.report/internal/monitoring"
	"github.com/surface-data/surface.report/internal/quality"
)

// PhotoStore persists photos and their assessment results. All writes for one
// image happen inside a single transaction; a duplicate check precedes every
// write, which makes the pipeline safely re-runnable over the same inputs.
//
// A store is safe for concurrent use; each call runs in its own connection
// and transaction scope.
type PhotoStore struct {
	db *DB
}

// NewPhotoStore creates a PhotoStore backed by the given database.
func NewPhotoStore(db *DB) *PhotoStore {
	return &PhotoStore{db: db}
}

// FindDuplicate looks for an existing photo equivalent to the given identity.
// The primary key is (source, sourceImageID) when the native id is present;
// the secondary key is exact (location, dateTaken), consulted only when the
// primary finds no match. Returns (nil, nil) when no duplicate is found.
func (s *PhotoStore) FindDuplicate(ctx context.Context, source, sourceImageID string, loc *geo.Point, dateTaken *time.Time) (*Photo, error) {
	if sourceImageID != "" {
		photo, err := s.queryPhoto(ctx,
			`SELECT photo_id, street_point_id, source, source_image_id, latitude, longitude, date_taken_ms, compass_angle, created_at
			 FROM photos WHERE source = ? AND source_image_id = ?`,
			source, sourceImageID)
		if err != nil {
			return nil, fmt.Errorf("check duplicate by source id: %w", err)
		}
		if photo != nil {
			return photo, nil
		}
	}

	if loc != nil && dateTaken != nil {
		photo, err := s.queryPhoto(ctx,
			`SELECT photo_id, street_point_id, source, source_image_id, latitude, longitude, date_taken_ms, compass_angle, created_at
			 FROM photos WHERE latitude = ? AND longitude = ? AND date_taken_ms = ?`,
			loc.Lat, loc.Lon, dateTaken.UnixMilli())
		if err != nil {
			return nil, fmt.Errorf("check duplicate by location+time: %w", err)
		}
		if photo != nil {
			return photo, nil
		}
	}

	return nil, nil
}

// SaveResult persists one image's pipeline outcome. On a duplicate it writes
// nothing and returns the existing identifiers; otherwise it inserts the
// photo, its quality result, and (when present) its road analysis inside one
// transaction. Any failure rolls back all three inserts.
func (s *PhotoStore) SaveResult(ctx context.Context, photo Photo, q quality.Assessment, m *analyze.Metrics) (SaveOutcome, error) {
	var imageID string
	if photo.SourceImageID != nil {
		imageID = *photo.SourceImageID
	}

	existing, err := s.FindDuplicate(ctx, photo.Source, imageID, photo.Location, photo.DateTaken)
	if err != nil {
		return SaveOutcome{}, err
	}
	if existing != nil {
		monitoring.Logf("db: duplicate photo %s:%s (existing id %d), skipping save", photo.Source, imageID, existing.ID)
		return s.existingOutcome(ctx, existing.ID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return SaveOutcome{}, fmt.Errorf("begin save tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO photos (street_point_id, source, source_image_id, latitude, longitude, date_taken_ms, compass_angle)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		nullInt64(photo.StreetPointID),
		photo.Source,
		nullString(photo.SourceImageID),
		nullLat(photo.Location),
		nullLon(photo.Location),
		nullTimeMs(photo.DateTaken),
		nullFloat64(photo.CompassAngle),
	)
	if err != nil {
		return SaveOutcome{}, fmt.Errorf("insert photo: %w", err)
	}
	photoID, err := res.LastInsertId()
	if err != nil {
		return SaveOutcome{}, fmt.Errorf("get photo insert id: %w", err)
	}

	reasons, err := encodeReasons(q.FailureReasons)
	if err != nil {
		return SaveOutcome{}, err
	}
	res, err = tx.ExecContext(ctx,
		`INSERT INTO quality_results (photo_id, overall_score, blur_score, exposure_score, size_score,
		 road_surface_pct, has_sufficient_road, is_usable, failure_reasons, assessment_version)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		photoID, q.OverallScore, q.BlurScore, q.ExposureScore, q.SizeScore,
		q.RoadSurfacePct, q.SufficientRoad, q.Usable, reasons, q.AssessmentVersion,
	)
	if err != nil {
		return SaveOutcome{}, fmt.Errorf("insert quality result: %w", err)
	}
	qualityID, err := res.LastInsertId()
	if err != nil {
		return SaveOutcome{}, fmt.Errorf("get quality insert id: %w", err)
	}

	var analysisID *int64
	if m != nil {
		res, err = tx.ExecContext(ctx,
			`INSERT INTO road_analysis_results (photo_id, overall_quality_score, quality_rating,
			 crack_confidence, crack_severity, pothole_confidence, pothole_count,
			 surface_roughness, lane_marking_visibility, debris_score,
			 weather_condition, assessment_confidence, model_name, model_version)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			photoID, m.OverallScore, string(m.Rating),
			m.CrackConfidence, string(m.CrackSeverity), m.PotholeConfidence, m.PotholeCount,
			m.SurfaceRoughness, m.LaneVisibility, m.DebrisScore,
			m.WeatherCondition, m.ModelConfidence, m.ModelName, m.ModelVersion,
		)
		if err != nil {
			return SaveOutcome{}, fmt.Errorf("insert road analysis: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return SaveOutcome{}, fmt.Errorf("get analysis insert id: %w", err)
		}
		analysisID = &id
	}

	if err := tx.Commit(); err != nil {
		return SaveOutcome{}, fmt.Errorf("commit save tx: %w", err)
	}

	return SaveOutcome{
		Status:     SaveStatusSaved,
		PhotoID:    photoID,
		QualityID:  qualityID,
		AnalysisID: analysisID,
	}, nil
}

// existingOutcome assembles a Duplicate outcome from the persisted rows of an
// already-saved photo.
func (s *PhotoStore) existingOutcome(ctx context.Context, photoID int64) (SaveOutcome, error) {
	out := SaveOutcome{Status: SaveStatusDuplicate, PhotoID: photoID}

	err := s.db.QueryRowContext(ctx,
		`SELECT quality_id FROM quality_results WHERE photo_id = ?`, photoID).Scan(&out.QualityID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return SaveOutcome{}, fmt.Errorf("query existing quality id: %w", err)
	}

	var analysisID int64
	err = s.db.QueryRowContext(ctx,
		`SELECT analysis_id FROM road_analysis_results WHERE photo_id = ?`, photoID).Scan(&analysisID)
	if err == nil {
		out.AnalysisID = &analysisID
	} else if !errors.Is(err, sql.ErrNoRows) {
		return SaveOutcome{}, fmt.Errorf("query existing analysis id: %w", err)
	}

	return out, nil
}

// GetPhotoWithResults returns a photo with its quality and road analysis
// results joined in. Returns (nil, nil) when the photo does not exist.
func (s *PhotoStore) GetPhotoWithResults(ctx context.Context, photoID int64) (*PhotoRecord, error) {
	photo, err := s.queryPhoto(ctx,
		`SELECT photo_id, street_point_id, source, source_image_id, latitude, longitude, date_taken_ms, compass_angle, created_at
		 FROM photos WHERE photo_id = ?`, photoID)
	if err != nil {
		return nil, fmt.Errorf("query photo %d: %w", photoID, err)
	}
	if photo == nil {
		return nil, nil
	}

	record := &PhotoRecord{Photo: *photo}

	var (
		q          quality.Assessment
		reasonsRaw string
		calculated sql.NullString
	)
	err = s.db.QueryRowContext(ctx,
		`SELECT overall_score, blur_score, exposure_score, size_score, road_surface_pct,
		 has_sufficient_road, is_usable, failure_reasons, assessment_version, date_calculated
		 FROM quality_results WHERE photo_id = ?`, photoID).Scan(
		&q.OverallScore, &q.BlurScore, &q.ExposureScore, &q.SizeScore, &q.RoadSurfacePct,
		&q.SufficientRoad, &q.Usable, &reasonsRaw, &q.AssessmentVersion, &calculated,
	)
	switch {
	case err == nil:
		q.FailureReasons, err = decodeReasons(reasonsRaw)
		if err != nil {
			return nil, err
		}
		record.Quality = &q
	case errors.Is(err, sql.ErrNoRows):
		// Photo without a quality row should not occur; tolerate it on read.
	default:
		return nil, fmt.Errorf("query quality result for photo %d: %w", photoID, err)
	}

	var (
		m        analyze.Metrics
		rating   string
		severity string
	)
	err = s.db.QueryRowContext(ctx,
		`SELECT overall_quality_score, quality_rating, crack_confidence, crack_severity,
		 pothole_confidence, pothole_count, surface_roughness, lane_marking_visibility,
		 debris_score, weather_condition, assessment_confidence, model_name, model_version
		 FROM road_analysis_results WHERE photo_id = ?`, photoID).Scan(
		&m.OverallScore, &rating, &m.CrackConfidence, &severity,
		&m.PotholeConfidence, &m.PotholeCount, &m.SurfaceRoughness, &m.LaneVisibility,
		&m.DebrisScore, &m.WeatherCondition, &m.ModelConfidence, &m.ModelName, &m.ModelVersion,
	)
	switch {
	case err == nil:
		m.Rating = analyze.Rating(rating)
		m.CrackSeverity = analyze.CrackSeverity(severity)
		record.Analysis = &m
	case errors.Is(err, sql.ErrNoRows):
		// No road analysis: the image never passed the gate.
	default:
		return nil, fmt.Errorf("query road analysis for photo %d: %w", photoID, err)
	}

	return record, nil
}

// PhotosWithinRadius returns photos whose location lies within radiusM metres
// of center. A bounding-box index scan prefilters candidates; the exact
// great-circle distance is applied afterwards.
func (s *PhotoStore) PhotosWithinRadius(ctx context.Context, center geo.Point, radiusM float64) ([]Photo, error) {
	box := geo.BoxAround(center, radiusM)

	rows, err := s.db.QueryContext(ctx,
		`SELECT photo_id, street_point_id, source, source_image_id, latitude, longitude, date_taken_ms, compass_angle, created_at
		 FROM photos
		 WHERE latitude BETWEEN ? AND ? AND longitude BETWEEN ? AND ?
		 ORDER BY photo_id`,
		box.MinLat, box.MaxLat, box.MinLon, box.MaxLon)
	if err != nil {
		return nil, fmt.Errorf("query photos in box: %w", err)
	}
	defer rows.Close()

	var photos []Photo
	for rows.Next() {
		photo, err := scanPhoto(rows)
		if err != nil {
			return nil, err
		}
		if photo.Location != nil && geo.DistanceM(center, *photo.Location) <= radiusM {
			photos = append(photos, *photo)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate photos: %w", err)
	}

	return photos, nil
}

// Stats summarises processing progress across all persisted photos.
func (s *PhotoStore) Stats(ctx context.Context) (ProcessingStats, error) {
	var (
		stats      ProcessingStats
		avgQuality sql.NullFloat64
		avgRoad    sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(p.photo_id),
			COUNT(q.quality_id),
			COUNT(CASE WHEN q.is_usable THEN 1 END),
			COUNT(r.analysis_id),
			AVG(q.overall_score),
			AVG(r.overall_quality_score)
		FROM photos p
		LEFT JOIN quality_results q ON p.photo_id = q.photo_id
		LEFT JOIN road_analysis_results r ON p.photo_id = r.photo_id
	`).Scan(
		&stats.TotalPhotos, &stats.QualityAssessed, &stats.UsablePhotos,
		&stats.RoadAnalyzed, &avgQuality, &avgRoad,
	)
	if err != nil {
		return ProcessingStats{}, fmt.Errorf("query processing stats: %w", err)
	}

	if avgQuality.Valid {
		stats.AvgQualityScore = &avgQuality.Float64
	}
	if avgRoad.Valid {
		stats.AvgRoadScore = &avgRoad.Float64
	}
	return stats, nil
}

// RatingCounts returns the number of analysed photos per quality rating.
func (s *PhotoStore) RatingCounts(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT quality_rating, COUNT(*) FROM road_analysis_results GROUP BY quality_rating`)
	if err != nil {
		return nil, fmt.Errorf("query rating counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var rating string
		var n int64
		if err := rows.Scan(&rating, &n); err != nil {
			return nil, fmt.Errorf("scan rating count: %w", err)
		}
		counts[rating] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rating counts: %w", err)
	}
	return counts, nil
}

// ScoreHistogram buckets analysed road scores into ten-point bins (0-9, ...,
// 90-100) for reporting.
func (s *PhotoStore) ScoreHistogram(ctx context.Context) ([10]int64, error) {
	var hist [10]int64

	rows, err := s.db.QueryContext(ctx, `SELECT overall_quality_score FROM road_analysis_results`)
	if err != nil {
		return hist, fmt.Errorf("query road scores: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var score float64
		if err := rows.Scan(&score); err != nil {
			return hist, fmt.Errorf("scan road score: %w", err)
		}
		bin := int(score / 10)
		if bin > 9 {
			bin = 9
		}
		if bin < 0 {
			bin = 0
		}
		hist[bin]++
	}
	if err := rows.Err(); err != nil {
		return hist, fmt.Errorf("iterate road scores: %w", err)
	}
	return hist, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *PhotoStore) queryPhoto(ctx context.Context, query string, args ...interface{}) (*Photo, error) {
	row := s.db.QueryRowContext(ctx, query, args...)
	photo, err := scanPhoto(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return photo, nil
}

func scanPhoto(row rowScanner) (*Photo, error) {
	var (
		photo       Photo
		streetPoint sql.NullInt64
		imageID     sql.NullString
		lat, lon    sql.NullFloat64
		takenMs     sql.NullInt64
		compass     sql.NullFloat64
		created     sql.NullString
	)
	err := row.Scan(&photo.ID, &streetPoint, &photo.Source, &imageID,
		&lat, &lon, &takenMs, &compass, &created)
	if err != nil {
		return nil, err
	}
	photo.CreatedAt = parseTimestamp(created)

	if streetPoint.Valid {
		photo.StreetPointID = &streetPoint.Int64
	}
	if imageID.Valid {
		photo.SourceImageID = &imageID.String
	}
	if lat.Valid && lon.Valid {
		photo.Location = &geo.Point{Lat: lat.Float64, Lon: lon.Float64}
	}
	if takenMs.Valid {
		t := time.UnixMilli(takenMs.Int64).UTC()
		photo.DateTaken = &t
	}
	if compass.Valid {
		photo.CompassAngle = &compass.Float64
	}
	return &photo, nil
}

// parseTimestamp reads the TEXT form sqlite stores for CURRENT_TIMESTAMP
// defaults. A zero time is returned for anything unparseable.
func parseTimestamp(s sql.NullString) time.Time {
	if !s.Valid {
		return time.Time{}
	}
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, s.String); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func encodeReasons(reasons []quality.FailureReason) (string, error) {
	if reasons == nil {
		reasons = []quality.FailureReason{}
	}
	data, err := json.Marshal(reasons)
	if err != nil {
		return "", fmt.Errorf("encode failure reasons: %w", err)
	}
	return string(data), nil
}

func decodeReasons(raw string) ([]quality.FailureReason, error) {
	var reasons []quality.FailureReason
	if err := json.Unmarshal([]byte(raw), &reasons); err != nil {
		return nil, fmt.Errorf("decode failure reasons: %w", err)
	}
	if len(reasons) == 0 {
		return nil, nil
	}
	return reasons, nil
}

// Nullable argument helpers.

func nullInt64(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullString(v *string) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullFloat64(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullLat(p *geo.Point) interface{} {
	if p == nil {
		return nil
	}
	return p.Lat
}

func nullLon(p *geo.Point) interface{} {
	if p == nil {
		return nil
	}
	return p.Lon
}

func nullTimeMs(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}
