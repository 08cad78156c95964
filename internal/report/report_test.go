package report

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/surface-data/surface.report/internal/db"
)

type stubStore struct {
	stats   db.ProcessingStats
	ratings map[string]int64
	hist    [10]int64
	err     error
}

func (s *stubStore) Stats(ctx context.Context) (db.ProcessingStats, error) {
	return s.stats, s.err
}

func (s *stubStore) RatingCounts(ctx context.Context) (map[string]int64, error) {
	return s.ratings, s.err
}

func (s *stubStore) ScoreHistogram(ctx context.Context) ([10]int64, error) {
	return s.hist, s.err
}

func TestRenderProducesCharts(t *testing.T) {
	avg := 72.5
	store := &stubStore{
		stats: db.ProcessingStats{
			TotalPhotos:  10,
			UsablePhotos: 6,
			RoadAnalyzed: 6,
			AvgRoadScore: &avg,
		},
		ratings: map[string]int64{"good": 4, "fair": 2},
		hist:    [10]int64{0, 0, 0, 0, 0, 1, 2, 3, 0, 0},
	}

	var buf bytes.Buffer
	if err := NewReporter(store).Render(context.Background(), &buf); err != nil {
		t.Fatalf("Render: %v", err)
	}

	html := buf.String()
	for _, want := range []string{
		"Road Score Distribution",
		"Quality Rating Breakdown",
		"severe_issues",
		"mean score 72.5",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("report missing %q", want)
		}
	}
}

func TestRenderPropagatesStoreErrors(t *testing.T) {
	store := &stubStore{err: errors.New("db closed")}

	var buf bytes.Buffer
	if err := NewReporter(store).Render(context.Background(), &buf); err == nil {
		t.Fatal("expected error from failing store")
	}
}
