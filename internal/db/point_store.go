package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/surface-data/surface.report/internal/geo"
	"github.com/surface-data/surface.report/internal/monitoring"
)

// StreetPoint is one survey location on the road network. Points come from a
// bulk import and act as the work queue for the batch runner: a point is
// "processed" once at least one photo references it.
type StreetPoint struct {
	ID            int64
	TOID          *string
	Location      geo.Point
	SourceProduct *string
	VersionDate   *time.Time
	CreatedAt     time.Time
}

// StreetPointStore persists and queries survey points.
type StreetPointStore struct {
	db *DB
}

// NewStreetPointStore creates a StreetPointStore backed by the given database.
func NewStreetPointStore(db *DB) *StreetPointStore {
	return &StreetPointStore{db: db}
}

// InsertPoints bulk-inserts survey points inside one transaction. Points whose
// TOID already exists are skipped, so repeated imports of the same extract are
// harmless. Returns the number of rows actually inserted.
func (s *StreetPointStore) InsertPoints(ctx context.Context, points []StreetPoint) (int64, error) {
	if len(points) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin point import tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO street_points (toid, latitude, longitude, source_product, version_date_ms)
		 VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare point insert: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	for _, p := range points {
		res, err := stmt.ExecContext(ctx,
			nullString(p.TOID), p.Location.Lat, p.Location.Lon,
			nullString(p.SourceProduct), nullTimeMs(p.VersionDate))
		if err != nil {
			return 0, fmt.Errorf("insert street point: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("count inserted point rows: %w", err)
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit point import tx: %w", err)
	}

	monitoring.Logf("db: imported %d of %d street points", inserted, len(points))
	return inserted, nil
}

// UnprocessedPoints returns up to limit points that have no photo yet, in
// stable id order starting after the first offset such points. The stable
// ordering makes interrupted batch runs resumable by offset.
func (s *StreetPointStore) UnprocessedPoints(ctx context.Context, limit, offset int) ([]StreetPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sp.street_point_id, sp.toid, sp.latitude, sp.longitude,
		       sp.source_product, sp.version_date_ms, sp.created_at
		FROM street_points sp
		LEFT JOIN photos p ON p.street_point_id = sp.street_point_id
		WHERE p.photo_id IS NULL
		ORDER BY sp.street_point_id
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query unprocessed points: %w", err)
	}
	defer rows.Close()

	var points []StreetPoint
	for rows.Next() {
		point, err := scanStreetPoint(rows)
		if err != nil {
			return nil, err
		}
		points = append(points, *point)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unprocessed points: %w", err)
	}
	return points, nil
}

// GetPoint returns a single street point by id, or (nil, nil) when it does
// not exist.
func (s *StreetPointStore) GetPoint(ctx context.Context, id int64) (*StreetPoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT street_point_id, toid, latitude, longitude, source_product, version_date_ms, created_at
		FROM street_points WHERE street_point_id = ?`, id)

	point, err := scanStreetPoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query street point %d: %w", id, err)
	}
	return point, nil
}

// Count returns the total number of street points.
func (s *StreetPointStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM street_points`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count street points: %w", err)
	}
	return n, nil
}

// CountUnprocessed returns the number of street points with no photo yet.
func (s *StreetPointStore) CountUnprocessed(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM street_points sp
		LEFT JOIN photos p ON p.street_point_id = sp.street_point_id
		WHERE p.photo_id IS NULL`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unprocessed points: %w", err)
	}
	return n, nil
}

func scanStreetPoint(row rowScanner) (*StreetPoint, error) {
	var (
		point   StreetPoint
		toid    sql.NullString
		product sql.NullString
		version sql.NullInt64
		created sql.NullString
	)
	err := row.Scan(&point.ID, &toid, &point.Location.Lat, &point.Location.Lon,
		&product, &version, &created)
	if err != nil {
		return nil, err
	}
	point.CreatedAt = parseTimestamp(created)

	if toid.Valid {
		point.TOID = &toid.String
	}
	if product.Valid {
		point.SourceProduct = &product.String
	}
	if version.Valid {
		t := time.UnixMilli(version.Int64).UTC()
		point.VersionDate = &t
	}
	return &point, nil
}
