package batch

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/surface-data/surface.report/internal/analyze"
	"github.com/surface-data/surface.report/internal/db"
	"github.com/surface-data/surface.report/internal/geo"
	"github.com/surface-data/surface.report/internal/imagery"
	"github.com/surface-data/surface.report/internal/monitoring"
	"github.com/surface-data/surface.report/internal/pipeline"
	"github.com/surface-data/surface.report/internal/quality"
)

// ImageSource provides imagery around a point.
type ImageSource interface {
	FetchImages(ctx context.Context, box geo.BoundingBox, limit int) ([]imagery.ImageMeta, error)
	DownloadImage(ctx context.Context, img imagery.ImageMeta, dir string) (string, error)
}

// PointSource lists unprocessed street points in stable order.
type PointSource interface {
	UnprocessedPoints(ctx context.Context, limit, offset int) ([]db.StreetPoint, error)
}

// ResultSink persists one image's pipeline outcome.
type ResultSink interface {
	SaveResult(ctx context.Context, photo db.Photo, q quality.Assessment, m *analyze.Metrics) (db.SaveOutcome, error)
}

// Processor evaluates one image end to end.
type Processor interface {
	Process(ctx context.Context, imagePath string) pipeline.Result
}

// Config controls a batch run.
type Config struct {
	Source string // photo source tag, e.g. "mapillary"

	BatchSize int
	Offset    int // skip this many unprocessed points before starting

	// Workers > 1 enables the parallel worker pool; 0 or 1 runs sequentially.
	Workers int

	RadiusM        float64
	ImagesPerPoint int
	MaxPoints      int // 0 means run until the queue is empty

	DownloadDir string
	KeepImages  bool

	PauseBetweenBatches time.Duration
}

// DefaultConfig returns conservative settings for a provider-friendly run.
func DefaultConfig() Config {
	return Config{
		Source:              "mapillary",
		BatchSize:           50,
		Workers:             1,
		RadiusM:             50,
		ImagesPerPoint:      3,
		DownloadDir:         "images",
		PauseBetweenBatches: 2 * time.Second,
	}
}

// Runner drives the batch loop: list unprocessed points, fetch and process
// their imagery, persist results, repeat. Cancellation is honoured at batch
// boundaries; an in-flight batch always runs to completion so its results are
// persisted.
type Runner struct {
	cfg     Config
	points  PointSource
	images  ImageSource
	sink    ResultSink
	limiter *RateLimiter

	// newProcessor is called once per worker at pool start; each worker owns
	// its processor for the lifetime of the run.
	newProcessor func() Processor
}

// NewRunner assembles a runner. newProcessor must return a fresh, independent
// Processor on every call.
func NewRunner(cfg Config, points PointSource, images ImageSource, sink ResultSink, limiter *RateLimiter, newProcessor func() Processor) *Runner {
	return &Runner{
		cfg:          cfg,
		points:       points,
		images:       images,
		sink:         sink,
		limiter:      limiter,
		newProcessor: newProcessor,
	}
}

// Run executes the batch loop until the queue is empty, MaxPoints is reached,
// or ctx is cancelled. The returned snapshot covers the whole run, including
// a cancelled run's completed batches.
func (r *Runner) Run(ctx context.Context) (Snapshot, error) {
	progress := NewProgress(r.cfg.MaxPoints)

	workers := r.cfg.Workers
	if workers < 1 {
		workers = 1
	}

	processors := make([]Processor, workers)
	for i := range processors {
		processors[i] = r.newProcessor()
	}

	offset := r.cfg.Offset
	pointsSeen := 0

	for {
		if err := ctx.Err(); err != nil {
			monitoring.Logf("batch: run cancelled after %d points", pointsSeen)
			return progress.Snapshot(), err
		}

		batchSize := r.cfg.BatchSize
		if r.cfg.MaxPoints > 0 && pointsSeen+batchSize > r.cfg.MaxPoints {
			batchSize = r.cfg.MaxPoints - pointsSeen
		}
		if batchSize <= 0 {
			break
		}

		points, err := r.points.UnprocessedPoints(ctx, batchSize, offset)
		if err != nil {
			return progress.Snapshot(), fmt.Errorf("list unprocessed points: %w", err)
		}
		if len(points) == 0 {
			monitoring.Logf("batch: queue empty, run complete")
			break
		}

		monitoring.Logf("batch: processing %d points at offset %d with %d worker(s)",
			len(points), offset, workers)

		saved := r.runBatch(ctx, points, processors, progress)
		pointsSeen += len(points)

		// Points that gained a photo drop out of the unprocessed listing and
		// shift everything after them left; skip only past the ones that
		// stayed in the queue.
		offset += len(points) - saved

		snap := progress.Snapshot()
		monitoring.Logf("batch: %d/%d points done, %d images saved, %d duplicates, eta %s",
			snap.PointsProcessed, snap.TotalPoints, snap.ImagesSaved, snap.ImagesDuplicate, snap.ETA)

		if len(points) < batchSize {
			break
		}
		if r.cfg.PauseBetweenBatches > 0 {
			select {
			case <-time.After(r.cfg.PauseBetweenBatches):
			case <-ctx.Done():
			}
		}
	}

	return progress.Snapshot(), nil
}

// runBatch processes one batch, sequentially or across the worker pool, and
// returns the number of points that gained at least one saved photo.
func (r *Runner) runBatch(ctx context.Context, points []db.StreetPoint, processors []Processor, progress *Progress) int {
	if len(processors) == 1 {
		saved := 0
		for _, point := range points {
			if r.processPoint(ctx, point, processors[0], progress) {
				saved++
			}
		}
		return saved
	}

	work := make(chan db.StreetPoint)
	var wg sync.WaitGroup
	var mu sync.Mutex
	saved := 0

	for _, proc := range processors {
		wg.Add(1)
		go func(proc Processor) {
			defer wg.Done()
			for point := range work {
				if r.processPoint(ctx, point, proc, progress) {
					mu.Lock()
					saved++
					mu.Unlock()
				}
			}
		}(proc)
	}

	for _, point := range points {
		work <- point
	}
	close(work)
	wg.Wait()

	return saved
}

// processPoint handles one street point end to end and reports whether any
// photo was newly saved for it.
func (r *Runner) processPoint(ctx context.Context, point db.StreetPoint, proc Processor, progress *Progress) bool {
	if err := r.limiter.Wait(ctx); err != nil {
		progress.PointFailed(point.ID, fmt.Sprintf("rate limit wait: %v", err))
		return false
	}

	box := geo.BoxAround(point.Location, r.cfg.RadiusM)
	images, err := r.images.FetchImages(ctx, box, r.cfg.ImagesPerPoint)
	if err != nil {
		progress.PointFailed(point.ID, fmt.Sprintf("fetch images: %v", err))
		return false
	}
	if len(images) == 0 {
		progress.PointNoImage()
		return false
	}
	progress.ImagesFound(len(images))

	anySaved := false
	anyDuplicate := false
	var imageErrs []string
	for _, img := range images {
		if err := r.limiter.Wait(ctx); err != nil {
			progress.PointFailed(point.ID, fmt.Sprintf("rate limit wait: %v", err))
			return anySaved
		}

		path, err := r.images.DownloadImage(ctx, img, r.cfg.DownloadDir)
		if err != nil {
			monitoring.Logf("batch: point %d: %v, skipping image", point.ID, err)
			imageErrs = append(imageErrs, fmt.Sprintf("download image %s: %v", img.ID, err))
			continue
		}

		result := proc.Process(ctx, path)

		photo := db.Photo{
			StreetPointID: &point.ID,
			Source:        r.cfg.Source,
			SourceImageID: &img.ID,
			Location:      img.Location,
			DateTaken:     img.CapturedAt,
			CompassAngle:  img.Heading,
		}
		outcome, err := r.sink.SaveResult(ctx, photo, result.Quality, result.Defects)
		if err != nil {
			monitoring.Logf("batch: point %d: save image %s: %v", point.ID, img.ID, err)
			imageErrs = append(imageErrs, fmt.Sprintf("save image %s: %v", img.ID, err))
			continue
		}

		switch outcome.Status {
		case db.SaveStatusSaved:
			progress.ImageSaved()
			anySaved = true
		case db.SaveStatusDuplicate:
			progress.ImageDuplicate()
			anyDuplicate = true
		}

		if !r.cfg.KeepImages {
			if err := os.Remove(path); err != nil {
				monitoring.Logf("batch: remove %s: %v", path, err)
			}
		}
	}

	// A point whose images were all duplicates has coverage already; count
	// it as successful even though nothing new was written. A point that had
	// imagery but persisted nothing because of errors is a failure, not a gap.
	switch {
	case anySaved || anyDuplicate:
		progress.PointSucceeded()
	case len(imageErrs) > 0:
		progress.PointFailed(point.ID, strings.Join(imageErrs, "; "))
	default:
		progress.PointNoImage()
	}
	return anySaved
}
