package batch

import (
	"sync"
	"time"
)

// PointError records a failure tied to one street point.
type PointError struct {
	PointID int64
	Message string
}

// Snapshot is a point-in-time view of a run's progress.
type Snapshot struct {
	TotalPoints      int
	PointsProcessed  int
	PointsSuccessful int
	PointsNoImage    int
	PointsFailed     int

	ImagesFound     int
	ImagesSaved     int
	ImagesDuplicate int

	Errors  []PointError
	Elapsed time.Duration

	// ETA estimates the remaining run time from the average per-point
	// duration so far. Zero until at least one point has been processed.
	ETA time.Duration
}

// Progress accumulates run counters. All methods are safe for concurrent use;
// it is the single synchronisation point between workers.
type Progress struct {
	mu      sync.Mutex
	total   int
	started time.Time

	processed  int
	successful int
	noImage    int
	failed     int

	imagesFound     int
	imagesSaved     int
	imagesDuplicate int

	errors []PointError
}

// NewProgress creates a Progress for a run over total points, started now.
func NewProgress(total int) *Progress {
	return &Progress{total: total, started: time.Now()}
}

// PointSucceeded records a point that produced at least one saved image.
func (p *Progress) PointSucceeded() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processed++
	p.successful++
}

// PointNoImage records a point with no imagery available.
func (p *Progress) PointNoImage() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processed++
	p.noImage++
}

// PointFailed records a point that errored, with the reason.
func (p *Progress) PointFailed(pointID int64, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processed++
	p.failed++
	p.errors = append(p.errors, PointError{PointID: pointID, Message: message})
}

// ImagesFound adds to the count of images returned by the provider.
func (p *Progress) ImagesFound(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.imagesFound += n
}

// ImageSaved records one newly persisted image.
func (p *Progress) ImageSaved() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.imagesSaved++
}

// ImageDuplicate records one image skipped as already persisted.
func (p *Progress) ImageDuplicate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.imagesDuplicate++
}

// Snapshot returns the current counters with elapsed time and an ETA.
func (p *Progress) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	elapsed := time.Since(p.started)
	snap := Snapshot{
		TotalPoints:      p.total,
		PointsProcessed:  p.processed,
		PointsSuccessful: p.successful,
		PointsNoImage:    p.noImage,
		PointsFailed:     p.failed,
		ImagesFound:      p.imagesFound,
		ImagesSaved:      p.imagesSaved,
		ImagesDuplicate:  p.imagesDuplicate,
		Errors:           append([]PointError(nil), p.errors...),
		Elapsed:          elapsed,
	}

	if p.processed > 0 && p.processed < p.total {
		perPoint := elapsed / time.Duration(p.processed)
		snap.ETA = perPoint * time.Duration(p.total-p.processed)
	}
	return snap
}
