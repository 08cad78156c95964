package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/surface-data/surface.report/internal/db"
	"github.com/surface-data/surface.report/internal/geo"
	"github.com/surface-data/surface.report/internal/imagery"
)

func main() {
	var dbPath string
	var bboxStr string
	var maxFeatures int

	flag.StringVar(&dbPath, "db", "surface_data.db", "path to sqlite db")
	flag.StringVar(&bboxStr, "bbox", "", "bounding box as min_lon,min_lat,max_lon,max_lat")
	flag.IntVar(&maxFeatures, "max", 0, "max features to import (0 = all)")
	flag.Parse()

	_ = godotenv.Load()

	box, err := parseBBox(bboxStr)
	if err != nil {
		log.Fatalf("invalid bbox: %v", err)
	}

	dbConn, err := db.NewDB(dbPath)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer dbConn.Close()
	if err := dbConn.MigrateUp(); err != nil {
		log.Fatalf("migrate db: %v", err)
	}
	if version, _, err := dbConn.MigrateVersion(); err == nil {
		log.Printf("database schema at version %d", version)
	}

	client, err := imagery.NewFeaturesClient(nil, os.Getenv("OS_API_KEY"))
	if err != nil {
		log.Fatalf("create features client: %v", err)
	}

	ctx := context.Background()
	features, err := client.FetchFeatures(ctx, box, maxFeatures)
	if err != nil {
		log.Fatalf("fetch features: %v", err)
	}

	points := make([]db.StreetPoint, 0, len(features))
	for _, f := range features {
		toid := f.TOID
		product := f.SourceProduct
		points = append(points, db.StreetPoint{
			TOID:          &toid,
			Location:      f.Location,
			SourceProduct: &product,
			VersionDate:   f.VersionDate,
		})
	}

	inserted, err := db.NewStreetPointStore(dbConn).InsertPoints(ctx, points)
	if err != nil {
		log.Fatalf("insert points: %v", err)
	}

	fmt.Printf("fetched %d features, inserted %d new street points\n", len(features), inserted)
}

func parseBBox(s string) (geo.BoundingBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return geo.BoundingBox{}, fmt.Errorf("want 4 comma-separated values, got %d", len(parts))
	}

	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return geo.BoundingBox{}, fmt.Errorf("invalid coordinate %q: %w", p, err)
		}
		vals[i] = v
	}

	box := geo.BoundingBox{MinLon: vals[0], MinLat: vals[1], MaxLon: vals[2], MaxLat: vals[3]}
	if box.MinLon >= box.MaxLon || box.MinLat >= box.MaxLat {
		return geo.BoundingBox{}, fmt.Errorf("min must be less than max")
	}
	return box, nil
}
