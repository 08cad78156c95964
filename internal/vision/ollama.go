package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/ollama/ollama/api"

	"github.com/surface-data/surface.report/internal/analyze"
)

// defectPrompt asks the vision model for the exact JSON shape Predict parses.
const defectPrompt = `You are a road surface inspector. Examine this street-level photo
and respond with ONLY a JSON object, no prose, using this exact schema:
{"crack_confidence":0.0,"pothole_confidence":0.0,"pothole_count":0,
"surface_roughness":0.0,"lane_visibility":0.0,"debris_score":0.0,
"weather_condition":"dry|wet|unknown","confidence":0.0}
All confidences are in [0,1]. crack_confidence and pothole_confidence reflect
visible surface defects; surface_roughness reflects overall texture damage.`

// OllamaModel runs defect detection through an Ollama-hosted vision model.
// It implements analyze.DetectionModel.
type OllamaModel struct {
	client  *api.Client
	model   string
	timeout time.Duration
}

// NewOllamaModel creates a model backend talking to the given Ollama server
// (e.g. "http://localhost:11434") using the named vision model.
func NewOllamaModel(serverURL, model string) (*OllamaModel, error) {
	parsed, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama URL %q: %w", serverURL, err)
	}
	base := &url.URL{Scheme: parsed.Scheme, Host: parsed.Host}

	return &OllamaModel{
		client:  api.NewClient(base, http.DefaultClient),
		model:   model,
		timeout: 120 * time.Second,
	}, nil
}

// Info identifies the backing model.
func (m *OllamaModel) Info() analyze.ModelInfo {
	return analyze.ModelInfo{Name: "ollama/" + m.model, Version: m.model}
}

// Predict encodes the preprocessed image, submits it to the vision model, and
// parses the JSON prediction out of the reply.
func (m *OllamaModel) Predict(ctx context.Context, img image.Image) (analyze.ModelOutput, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return analyze.ModelOutput{}, fmt.Errorf("encode image for inference: %w", err)
	}

	stream := false
	req := &api.ChatRequest{
		Model: m.model,
		Messages: []api.Message{
			{
				Role:    "user",
				Content: defectPrompt,
				Images:  []api.ImageData{api.ImageData(buf.Bytes())},
			},
		},
		Stream: &stream,
	}

	var reply string
	err := m.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		reply = resp.Message.Content
		return nil
	})
	if err != nil {
		return analyze.ModelOutput{}, fmt.Errorf("ollama chat: %w", err)
	}
	if reply == "" {
		return analyze.ModelOutput{}, fmt.Errorf("empty response from ollama model %s", m.model)
	}

	return parsePrediction(reply)
}

var jsonFence = regexp.MustCompile("(?s)```(?:json)?(.*?)```")

// parsePrediction extracts the JSON object from a model reply that may wrap
// it in markdown fences or surrounding prose.
func parsePrediction(raw string) (analyze.ModelOutput, error) {
	if m := jsonFence.FindStringSubmatch(raw); m != nil {
		raw = m[1]
	}
	raw = strings.TrimSpace(raw)
	if i := strings.Index(raw, "{"); i > 0 {
		raw = raw[i:]
	}
	if i := strings.LastIndex(raw, "}"); i >= 0 {
		raw = raw[:i+1]
	}

	var wire struct {
		CrackConfidence   float64 `json:"crack_confidence"`
		PotholeConfidence float64 `json:"pothole_confidence"`
		PotholeCount      int     `json:"pothole_count"`
		SurfaceRoughness  float64 `json:"surface_roughness"`
		LaneVisibility    float64 `json:"lane_visibility"`
		DebrisScore       float64 `json:"debris_score"`
		WeatherCondition  string  `json:"weather_condition"`
		Confidence        float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return analyze.ModelOutput{}, fmt.Errorf("parse model prediction: %w", err)
	}

	return analyze.ModelOutput{
		CrackConfidence:   wire.CrackConfidence,
		PotholeConfidence: wire.PotholeConfidence,
		PotholeCount:      wire.PotholeCount,
		SurfaceRoughness:  wire.SurfaceRoughness,
		LaneVisibility:    wire.LaneVisibility,
		DebrisScore:       wire.DebrisScore,
		WeatherCondition:  wire.WeatherCondition,
		Confidence:        wire.Confidence,
	}, nil
}
