package imagery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/surface-data/surface.report/internal/geo"
	"github.com/surface-data/surface.report/internal/httputil"
	"github.com/surface-data/surface.report/internal/monitoring"
)

const (
	defaultFeaturesURL = "https://api.os.uk/features/v1/wfs"
	featuresTypeName   = "OpenTOID_HighwaysNetwork"

	maxFeaturesPerPage = 1000
)

// FeaturesClient fetches highway-network survey points from the geographic
// features provider, a WFS endpoint returning GeoJSON pages.
type FeaturesClient struct {
	client   httputil.HTTPClient
	apiKey   string
	baseURL  string
	pageSize int
	retries  int
}

// NewFeaturesClient creates a client with the given API key. Pass a nil
// client to use http.DefaultClient with a 30 second timeout.
func NewFeaturesClient(client httputil.HTTPClient, apiKey string) (*FeaturesClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("features api key not set")
	}
	if client == nil {
		client = httputil.NewStandardClient(&http.Client{Timeout: 30 * time.Second})
	}
	return &FeaturesClient{
		client:   client,
		apiKey:   apiKey,
		baseURL:  defaultFeaturesURL,
		pageSize: 100,
		retries:  defaultRetryAttempts,
	}, nil
}

// FetchFeatures pages through all highway-network points inside box. A page
// shorter than the page size marks the end; maxFeatures, when positive, caps
// the total. Malformed features are skipped.
func (c *FeaturesClient) FetchFeatures(ctx context.Context, box geo.BoundingBox, maxFeatures int) ([]Feature, error) {
	pageSize := c.pageSize
	if pageSize > maxFeaturesPerPage {
		pageSize = maxFeaturesPerPage
	}

	var all []Feature
	for offset := 0; ; offset += pageSize {
		page, err := c.fetchPage(ctx, box, pageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("fetch features page at offset %d: %w", offset, err)
		}
		all = append(all, page...)
		monitoring.Logf("imagery: fetched %d features (%d total)", len(page), len(all))

		if len(page) < pageSize {
			break
		}
		if maxFeatures > 0 && len(all) >= maxFeatures {
			all = all[:maxFeatures]
			break
		}
	}
	return all, nil
}

func (c *FeaturesClient) fetchPage(ctx context.Context, box geo.BoundingBox, count, start int) ([]Feature, error) {
	params := url.Values{}
	params.Set("service", "WFS")
	params.Set("version", "2.0.0")
	params.Set("request", "GetFeature")
	params.Set("typeNames", featuresTypeName)
	params.Set("srsName", "EPSG:4326")
	params.Set("outputFormat", "GEOJSON")
	params.Set("bbox", fmt.Sprintf("%f,%f,%f,%f", box.MinLon, box.MinLat, box.MaxLon, box.MaxLat))
	params.Set("count", strconv.Itoa(count))
	params.Set("startIndex", strconv.Itoa(start))

	body, err := c.getWithRetry(ctx, c.baseURL+"?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var wire struct {
		Features []wireFeature `json:"features"`
	}
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("decode features page: %w", err)
	}

	features := make([]Feature, 0, len(wire.Features))
	for i, w := range wire.Features {
		feature, ok := w.toFeature()
		if !ok {
			monitoring.Logf("imagery: skipping malformed feature %d in page at %d", i, start)
			continue
		}
		features = append(features, feature)
	}
	return features, nil
}

func (c *FeaturesClient) getWithRetry(ctx context.Context, rawURL string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < c.retries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<(attempt-1)) * time.Second
			monitoring.Logf("imagery: features request failed (attempt %d/%d): %v, retrying in %s",
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

func (c *FeaturesClient) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	// The provider expects the key in a header, not in the query string.
	req.Header.Set("key", c.apiKey)
	req.Header.Set("Accept", "application/json")

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

type wireFeature struct {
	Geometry   *wireGeometry `json:"geometry"`
	Properties struct {
		TOID          string `json:"TOID"`
		VersionDate   string `json:"VersionDate"`
		SourceProduct string `json:"SourceProduct"`
	} `json:"properties"`
}

func (w wireFeature) toFeature() (Feature, bool) {
	if w.Properties.TOID == "" || w.Geometry == nil || len(w.Geometry.Coordinates) < 2 {
		return Feature{}, false
	}

	p := geo.Point{Lat: w.Geometry.Coordinates[1], Lon: w.Geometry.Coordinates[0]}
	if !p.Valid() {
		return Feature{}, false
	}

	return Feature{
		TOID:          w.Properties.TOID,
		Location:      p,
		SourceProduct: w.Properties.SourceProduct,
		VersionDate:   parseVersionDate(w.Properties.VersionDate),
	}, true
}

// parseVersionDate tries the date layouts seen in provider extracts.
func parseVersionDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{"2006-01-02", "1/2/2006", "2/1/2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	monitoring.Logf("imagery: could not parse version date %q", s)
	return nil
}
