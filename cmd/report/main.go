package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/surface-data/surface.report/internal/db"
	"github.com/surface-data/surface.report/internal/report"
)

func main() {
	var dbPath string
	var outPath string

	flag.StringVar(&dbPath, "db", "surface_data.db", "path to sqlite db")
	flag.StringVar(&outPath, "out", "condition_report.html", "output HTML file")
	flag.Parse()

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

	reporter := report.NewReporter(db.NewPhotoStore(dbConn))
	if err := reporter.RenderToFile(context.Background(), outPath); err != nil {
		log.Fatalf("render report: %v", err)
	}

	fmt.Printf("report written to %s\n", outPath)
}
