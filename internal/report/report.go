// Package report renders an HTML condition report from persisted analysis
// results: a road-score distribution and a quality-rating breakdown.
package report

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/surface-data/surface.report/internal/db"
)

// Store is the slice of the photo store the reporter reads from.
type Store interface {
	Stats(ctx context.Context) (db.ProcessingStats, error)
	RatingCounts(ctx context.Context) (map[string]int64, error)
	ScoreHistogram(ctx context.Context) ([10]int64, error)
}

// ratingOrder fixes the x-axis ordering from best to worst.
var ratingOrder = []string{"excellent", "good", "fair", "poor", "severe_issues"}

// Reporter renders condition reports.
type Reporter struct {
	store Store
}

// NewReporter creates a Reporter over the given store.
func NewReporter(store Store) *Reporter {
	return &Reporter{store: store}
}

// Render writes the full HTML report to w.
func (r *Reporter) Render(ctx context.Context, w io.Writer) error {
	stats, err := r.store.Stats(ctx)
	if err != nil {
		return fmt.Errorf("load processing stats: %w", err)
	}
	ratings, err := r.store.RatingCounts(ctx)
	if err != nil {
		return fmt.Errorf("load rating counts: %w", err)
	}
	hist, err := r.store.ScoreHistogram(ctx)
	if err != nil {
		return fmt.Errorf("load score histogram: %w", err)
	}

	page := components.NewPage()
	page.SetPageTitle("Road Condition Report")
	page.AddCharts(scoreChart(stats, hist), ratingChart(ratings))

	if err := page.Render(w); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	return nil
}

// RenderToFile writes the report to path, creating or truncating it.
func (r *Reporter) RenderToFile(ctx context.Context, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	defer f.Close()

	if err := r.Render(ctx, f); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close report file: %w", err)
	}
	return nil
}

func scoreChart(stats db.ProcessingStats, hist [10]int64) *charts.Bar {
	labels := make([]string, len(hist))
	data := make([]opts.BarData, len(hist))
	for i, n := range hist {
		lo := i * 10
		hi := lo + 10
		labels[i] = fmt.Sprintf("%d-%d", lo, hi)
		data[i] = opts.BarData{Value: n}
	}

	subtitle := fmt.Sprintf("%d photos, %d usable, %d analysed",
		stats.TotalPhotos, stats.UsablePhotos, stats.RoadAnalyzed)
	if stats.AvgRoadScore != nil {
		subtitle += fmt.Sprintf(", mean score %.1f", *stats.AvgRoadScore)
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: "Road Score Distribution", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Score"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Photos"}),
	)
	bar.SetXAxis(labels).
		AddSeries("photos", data,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}

func ratingChart(counts map[string]int64) *charts.Bar {
	data := make([]opts.BarData, len(ratingOrder))
	for i, rating := range ratingOrder {
		data[i] = opts.BarData{Value: counts[rating]}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: "Quality Rating Breakdown"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Photos"}),
	)
	bar.SetXAxis(ratingOrder).
		AddSeries("photos", data,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}
