package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/surface-data/surface.report/internal/analyze"
	"github.com/surface-data/surface.report/internal/batch"
	"github.com/surface-data/surface.report/internal/db"
	"github.com/surface-data/surface.report/internal/imagery"
	"github.com/surface-data/surface.report/internal/pipeline"
	"github.com/surface-data/surface.report/internal/quality"
	"github.com/surface-data/surface.report/internal/vision"
)

func main() {
	var dbPath string
	var configPath string
	var batchSize int
	var offset int
	var workers int
	var maxPoints int
	var radiusM float64
	var imagesPerPoint int
	var rateLimit int
	var downloadDir string
	var keepImages bool
	var pauseSec int
	var ollamaURL string
	var ollamaModel string
	var offline bool

	flag.StringVar(&dbPath, "db", "surface_data.db", "path to sqlite db")
	flag.StringVar(&configPath, "config", "", "optional quality config JSON (defaults used when empty)")
	flag.IntVar(&batchSize, "batch", 50, "points per batch")
	flag.IntVar(&offset, "offset", 0, "skip this many unprocessed points (resume)")
	flag.IntVar(&workers, "workers", 1, "worker count; >1 enables parallel mode")
	flag.IntVar(&maxPoints, "max-points", 0, "stop after this many points (0 = all)")
	flag.Float64Var(&radiusM, "radius", 50, "image search radius around a point in metres")
	flag.IntVar(&imagesPerPoint, "images", 3, "max images per point")
	flag.IntVar(&rateLimit, "rate", 500, "max provider requests per minute")
	flag.StringVar(&downloadDir, "download-dir", "images", "directory for downloaded images")
	flag.BoolVar(&keepImages, "keep-images", false, "keep downloaded images after processing")
	flag.IntVar(&pauseSec, "pause", 2, "seconds to pause between batches")
	flag.StringVar(&ollamaURL, "ollama-url", "http://localhost:11434", "ollama server URL")
	flag.StringVar(&ollamaModel, "ollama-model", "llava:13b", "ollama vision model")
	flag.BoolVar(&offline, "offline", false, "use the fixed detection model instead of ollama")
	flag.Parse()

	// .env carries MAPILLARY_ACCESS_TOKEN; absence of the file is fine.
	_ = godotenv.Load()

	cfg := quality.DefaultConfig()
	if configPath != "" {
		var err error
		cfg, err = quality.LoadConfig(configPath)
		if err != nil {
			log.Fatalf("load quality config: %v", err)
		}
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

	source, err := imagery.NewMapillaryClient(nil, os.Getenv("MAPILLARY_ACCESS_TOKEN"))
	if err != nil {
		log.Fatalf("create imagery client: %v", err)
	}

	newProcessor := func() batch.Processor {
		gate := quality.NewGate(cfg, vision.NewStatsAnalyser(), vision.NewColourSegmenter())

		var model analyze.DetectionModel
		if offline {
			model = &vision.FixedModel{}
		} else {
			m, err := vision.NewOllamaModel(ollamaURL, ollamaModel)
			if err != nil {
				log.Fatalf("create ollama model: %v", err)
			}
			model = m
		}

		analyzer := analyze.NewAnalyzer(model, vision.NewPreprocessor())
		return pipeline.New(gate, analyzer)
	}

	runCfg := batch.Config{
		Source:              "mapillary",
		BatchSize:           batchSize,
		Offset:              offset,
		Workers:             workers,
		RadiusM:             radiusM,
		ImagesPerPoint:      imagesPerPoint,
		MaxPoints:           maxPoints,
		DownloadDir:         downloadDir,
		KeepImages:          keepImages,
		PauseBetweenBatches: time.Duration(pauseSec) * time.Second,
	}

	runner := batch.NewRunner(runCfg,
		db.NewStreetPointStore(dbConn),
		source,
		db.NewPhotoStore(dbConn),
		batch.NewRateLimiter(rateLimit, time.Minute),
		newProcessor,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	snap, err := runner.Run(ctx)
	printSummary(snap)
	if err != nil {
		log.Fatalf("run ended early: %v", err)
	}
}

func printSummary(snap batch.Snapshot) {
	fmt.Printf("processed %d points in %s: %d with imagery, %d without, %d failed\n",
		snap.PointsProcessed, snap.Elapsed.Round(time.Second),
		snap.PointsSuccessful, snap.PointsNoImage, snap.PointsFailed)
	fmt.Printf("images: %d found, %d saved, %d duplicates\n",
		snap.ImagesFound, snap.ImagesSaved, snap.ImagesDuplicate)
	for _, e := range snap.Errors {
		fmt.Printf("  point %d: %s\n", e.PointID, e.Message)
	}
}
