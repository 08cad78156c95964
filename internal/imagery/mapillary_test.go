package imagery

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/surface-data/surface.report/internal/geo"
	"github.com/surface-data/surface.report/internal/httputil"
)

func testBox() geo.BoundingBox {
	return geo.BoxAround(geo.Point{Lat: 55.9533, Lon: -3.1883}, 50)
}

func newTestClient(t *testing.T, mock *httputil.MockHTTPClient) *MapillaryClient {
	t.Helper()
	c, err := NewMapillaryClient(mock, "test-token")
	if err != nil {
		t.Fatalf("NewMapillaryClient: %v", err)
	}
	return c
}

func TestFetchImagesParsesMetadata(t *testing.T) {
	body := `{"data": [
		{"id": "100", "thumb_original_url": "https://img.test/100.jpg",
		 "geometry": {"type": "Point", "coordinates": [-3.1883, 55.9533]},
		 "captured_at": 1715000000000, "compass_angle": 123.5},
		{"id": "200", "thumb_original_url": "https://img.test/200.jpg",
		 "captured_at": "2024-05-06T12:00:00Z", "compass_angle": 360},
		{"id": "300", "captured_at": 1715000000},
		{"thumb_original_url": "https://img.test/no-id.jpg"}
	]}`
	mock := &httputil.MockHTTPClient{
		Responses: []*http.Response{httputil.NewJSONResponse(200, body)},
	}

	images, err := newTestClient(t, mock).FetchImages(context.Background(), testBox(), 5)
	if err != nil {
		t.Fatalf("FetchImages: %v", err)
	}
	if len(images) != 3 {
		t.Fatalf("got %d images, want 3 (entry without id skipped)", len(images))
	}

	first := images[0]
	if first.ID != "100" || first.URL != "https://img.test/100.jpg" {
		t.Errorf("first = %+v", first)
	}
	if first.Location == nil || first.Location.Lat != 55.9533 || first.Location.Lon != -3.1883 {
		t.Errorf("location = %v, want 55.9533,-3.1883", first.Location)
	}
	// 1715000000000 is past the millisecond cutoff.
	if first.CapturedAt == nil || !first.CapturedAt.Equal(time.UnixMilli(1715000000000).UTC()) {
		t.Errorf("captured at = %v, want unix millis", first.CapturedAt)
	}
	if first.Heading == nil || *first.Heading != 123.5 {
		t.Errorf("heading = %v, want 123.5", first.Heading)
	}

	second := images[1]
	wantISO := time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC)
	if second.CapturedAt == nil || !second.CapturedAt.Equal(wantISO) {
		t.Errorf("ISO captured at = %v, want %v", second.CapturedAt, wantISO)
	}
	// 360 is out of the valid [0,360) range.
	if second.Heading != nil {
		t.Errorf("heading = %v for compass angle 360, want nil", *second.Heading)
	}
	if second.Location != nil {
		t.Errorf("location = %v without geometry, want nil", second.Location)
	}

	third := images[2]
	if third.CapturedAt == nil || !third.CapturedAt.Equal(time.Unix(1715000000, 0).UTC()) {
		t.Errorf("captured at = %v, want unix seconds", third.CapturedAt)
	}
}

func TestFetchImagesRequestShape(t *testing.T) {
	mock := &httputil.MockHTTPClient{
		Responses: []*http.Response{httputil.NewJSONResponse(200, `{"data": []}`)},
	}

	if _, err := newTestClient(t, mock).FetchImages(context.Background(), testBox(), 3); err != nil {
		t.Fatalf("FetchImages: %v", err)
	}
	if mock.RequestCount() != 1 {
		t.Fatalf("requests = %d, want 1", mock.RequestCount())
	}

	q := mock.Requests[0].URL.Query()
	if q.Get("access_token") != "test-token" {
		t.Errorf("access_token = %q", q.Get("access_token"))
	}
	if q.Get("limit") != "3" {
		t.Errorf("limit = %q, want 3", q.Get("limit"))
	}
	if q.Get("fields") != mapillaryFields {
		t.Errorf("fields = %q", q.Get("fields"))
	}
	if q.Get("bbox") == "" {
		t.Error("bbox missing")
	}
}

func TestFetchImagesRetriesOnServerError(t *testing.T) {
	mock := &httputil.MockHTTPClient{
		Responses: []*http.Response{
			httputil.NewResponse(500, []byte("upstream error")),
			httputil.NewJSONResponse(200, `{"data": [{"id": "1"}]}`),
		},
	}

	images, err := newTestClient(t, mock).FetchImages(context.Background(), testBox(), 1)
	if err != nil {
		t.Fatalf("FetchImages after retry: %v", err)
	}
	if len(images) != 1 {
		t.Errorf("got %d images, want 1", len(images))
	}
	if mock.RequestCount() != 2 {
		t.Errorf("requests = %d, want 2", mock.RequestCount())
	}
}

func TestFetchImagesExhaustsRetries(t *testing.T) {
	mock := &httputil.MockHTTPClient{DefaultError: errors.New("connection refused")}
	client := newTestClient(t, mock)
	client.retries = 2

	_, err := client.FetchImages(context.Background(), testBox(), 1)
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if mock.RequestCount() != 2 {
		t.Errorf("requests = %d, want 2", mock.RequestCount())
	}
}

func TestDownloadImagesSkipsFailures(t *testing.T) {
	mock := &httputil.MockHTTPClient{
		Responses: []*http.Response{
			httputil.NewResponse(200, []byte("jpeg-bytes")),
		},
		DefaultError: errors.New("connection refused"),
	}
	client := newTestClient(t, mock)
	client.retries = 1
	dir := t.TempDir()

	images := []ImageMeta{
		{ID: "ok", URL: "https://img.test/ok.jpg"},
		{ID: "broken", URL: "https://img.test/broken.jpg"},
		{ID: "no-url"},
	}

	paths := client.DownloadImages(context.Background(), images, dir)
	if len(paths) != 1 {
		t.Fatalf("downloaded %d images, want 1", len(paths))
	}

	data, err := os.ReadFile(paths[0])
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if string(data) != "jpeg-bytes" {
		t.Errorf("file content = %q", data)
	}
	if filepath.Dir(paths[0]) != dir {
		t.Errorf("file saved to %s, want %s", filepath.Dir(paths[0]), dir)
	}
}

func TestNewMapillaryClientRequiresToken(t *testing.T) {
	if _, err := NewMapillaryClient(nil, ""); err == nil {
		t.Fatal("expected error for empty token")
	}
}

func TestParseCapturedAtFractionalSeconds(t *testing.T) {
	got := parseCapturedAt([]byte(`"2024-05-06T12:00:00.123Z"`))
	if got == nil {
		t.Fatal("fractional-second timestamp parsed to nil")
	}
	want := time.Date(2024, 5, 6, 12, 0, 0, 123_000_000, time.UTC)
	if !got.Equal(want) {
		t.Errorf("parsed %v, want %v", got, want)
	}
}

func TestParseCapturedAtOffsetTimezone(t *testing.T) {
	got := parseCapturedAt([]byte(`"2024-05-06T13:00:00+01:00"`))
	if got == nil {
		t.Fatal("offset timestamp parsed to nil")
	}
	want := time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("parsed %v, want %v", got, want)
	}
}

func TestParseCapturedAtUnparseable(t *testing.T) {
	if got := parseCapturedAt([]byte(`"yesterday"`)); got != nil {
		t.Errorf("parseCapturedAt = %v, want nil", got)
	}
	if got := parseCapturedAt([]byte(`true`)); got != nil {
		t.Errorf("parseCapturedAt = %v, want nil", got)
	}
	if got := parseCapturedAt(nil); got != nil {
		t.Errorf("parseCapturedAt(nil) = %v, want nil", got)
	}
}
