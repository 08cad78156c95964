package imagery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/surface-data/surface.report/internal/geo"
	"github.com/surface-data/surface.report/internal/httputil"
	"github.com/surface-data/surface.report/internal/monitoring"
)

const (
	defaultMapillaryURL = "https://graph.mapillary.com/images"
	mapillaryFields     = "id,thumb_original_url,geometry,captured_at,compass_angle"

	defaultRetryAttempts = 3
)

// MapillaryClient fetches street-level imagery metadata and thumbnails.
type MapillaryClient struct {
	client      httputil.HTTPClient
	accessToken string
	baseURL     string
	retries     int
}

// NewMapillaryClient creates a client with the given access token. Pass a nil
// client to use http.DefaultClient with a 30 second timeout.
func NewMapillaryClient(client httputil.HTTPClient, accessToken string) (*MapillaryClient, error) {
	if accessToken == "" {
		return nil, fmt.Errorf("mapillary access token not set")
	}
	if client == nil {
		client = httputil.NewStandardClient(&http.Client{Timeout: 30 * time.Second})
	}
	return &MapillaryClient{
		client:      client,
		accessToken: accessToken,
		baseURL:     defaultMapillaryURL,
		retries:     defaultRetryAttempts,
	}, nil
}

// FetchImages returns image metadata for images captured inside box, at most
// limit of them. Malformed entries are skipped, not fatal.
func (c *MapillaryClient) FetchImages(ctx context.Context, box geo.BoundingBox, limit int) ([]ImageMeta, error) {
	params := url.Values{}
	params.Set("access_token", c.accessToken)
	params.Set("fields", mapillaryFields)
	params.Set("limit", strconv.Itoa(limit))
	// Provider bbox order is left,bottom,right,top.
	params.Set("bbox", fmt.Sprintf("%f,%f,%f,%f", box.MinLon, box.MinLat, box.MaxLon, box.MaxLat))

	body, err := c.getWithRetry(ctx, c.baseURL+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("fetch images: %w", err)
	}

	var wire struct {
		Data []wireImage `json:"data"`
	}
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("decode image listing: %w", err)
	}

	images := make([]ImageMeta, 0, len(wire.Data))
	for _, w := range wire.Data {
		meta, ok := w.toMeta()
		if !ok {
			monitoring.Logf("imagery: skipping malformed image entry %q", w.ID)
			continue
		}
		images = append(images, meta)
	}
	return images, nil
}

// DownloadImage fetches one image thumbnail into dir and returns the local
// file path. File names embed a random suffix so concurrent runs over the
// same directory never collide.
func (c *MapillaryClient) DownloadImage(ctx context.Context, img ImageMeta, dir string) (string, error) {
	if img.URL == "" {
		return "", fmt.Errorf("image %s has no download URL", img.ID)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}

	body, err := c.getWithRetry(ctx, img.URL)
	if err != nil {
		return "", fmt.Errorf("download image %s: %w", img.ID, err)
	}

	name := fmt.Sprintf("%s_%s.jpg", img.ID, uuid.NewString()[:8])
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", fmt.Errorf("write image %s: %w", img.ID, err)
	}
	return path, nil
}

// DownloadImages fetches multiple thumbnails, skipping failures, and returns
// the paths of the images that made it to disk.
func (c *MapillaryClient) DownloadImages(ctx context.Context, images []ImageMeta, dir string) []string {
	paths := make([]string, 0, len(images))
	for _, img := range images {
		path, err := c.DownloadImage(ctx, img, dir)
		if err != nil {
			monitoring.Logf("imagery: %v, continuing", err)
			continue
		}
		paths = append(paths, path)
	}
	return paths
}

// getWithRetry performs a GET with exponential backoff on failure. A non-2xx
// status counts as a failure and is retried.
func (c *MapillaryClient) getWithRetry(ctx context.Context, rawURL string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < c.retries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<(attempt-1)) * time.Second
			monitoring.Logf("imagery: request failed (attempt %d/%d): %v, retrying in %s",
				attempt, c.retries, lastErr, backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		body, err := c.get(ctx, rawURL)
		if err == nil {
			return body, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (c *MapillaryClient) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return body, nil
}

type wireImage struct {
	ID               string          `json:"id"`
	ThumbOriginalURL string          `json:"thumb_original_url"`
	Geometry         *wireGeometry   `json:"geometry"`
	CapturedAt       json.RawMessage `json:"captured_at"`
	CompassAngle     *float64        `json:"compass_angle"`
}

type wireGeometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

func (w wireImage) toMeta() (ImageMeta, bool) {
	if w.ID == "" {
		return ImageMeta{}, false
	}

	meta := ImageMeta{
		ID:         w.ID,
		URL:        w.ThumbOriginalURL,
		CapturedAt: parseCapturedAt(w.CapturedAt),
	}

	// GeoJSON coordinate order is lon, lat.
	if w.Geometry != nil && len(w.Geometry.Coordinates) >= 2 {
		p := geo.Point{Lat: w.Geometry.Coordinates[1], Lon: w.Geometry.Coordinates[0]}
		if p.Valid() {
			meta.Location = &p
		}
	}

	if w.CompassAngle != nil && *w.CompassAngle >= 0 && *w.CompassAngle < 360 {
		meta.Heading = w.CompassAngle
	}

	return meta, true
}

// parseCapturedAt handles the provider's three capture-time encodings: an
// ISO-8601 string, unix seconds, or unix milliseconds. Values above 1e10 are
// taken as milliseconds; plausible second counts stay below that for
// centuries to come.
func parseCapturedAt(raw json.RawMessage) *time.Time {
	if len(raw) == 0 {
		return nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		// RFC3339Nano covers plain and fractional-second timestamps with
		// either Z or a numeric offset.
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05"} {
			if t, err := time.Parse(layout, s); err == nil {
				t = t.UTC()
				return &t
			}
		}
		monitoring.Logf("imagery: could not parse capture time %q", s)
		return nil
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		var t time.Time
		if n > 1e10 {
			t = time.UnixMilli(int64(n)).UTC()
		} else {
			t = time.Unix(int64(n), 0).UTC()
		}
		return &t
	}

	monitoring.Logf("imagery: could not parse capture time %s", raw)
	return nil
}
