package quality

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config holds the gate thresholds. All fields are optional in the JSON file;
// zero-valued fields are replaced by defaults when loaded, so partial configs
// are safe.
type Config struct {
	// Stage 1: heuristic thresholds.
	BlurThreshold float64 `json:"blur_threshold,omitempty"` // minimum Laplacian variance
	MinWidth      int     `json:"min_width,omitempty"`
	MinHeight     int     `json:"min_height,omitempty"`

	// Exposure: fraction of pixels allowed below/above the dark/bright cutoffs.
	DarkFraction     float64 `json:"dark_fraction,omitempty"`
	BrightFraction   float64 `json:"bright_fraction,omitempty"`
	DarkPixelValue   int     `json:"dark_pixel_value,omitempty"`   // intensity considered dark
	BrightPixelValue int     `json:"bright_pixel_value,omitempty"` // intensity considered bright

	// Stage 2: minimum road-surface coverage (percent of frame).
	MinRoadSurfacePct float64 `json:"min_road_surface_pct,omitempty"`
}

// DefaultConfig returns the gate defaults used when no config file is given.
func DefaultConfig() Config {
	return Config{
		BlurThreshold:     50.0,
		MinWidth:          400,
		MinHeight:         300,
		DarkFraction:      0.2,
		BrightFraction:    0.8,
		DarkPixelValue:    50,
		BrightPixelValue:  205,
		MinRoadSurfacePct: 25.0,
	}
}

// LoadConfig reads a JSON config file and overlays it on the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return cfg, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return cfg, fmt.Errorf("read quality config: %w", err)
	}

	var overlay Config
	if err := json.Unmarshal(data, &overlay); err != nil {
		return cfg, fmt.Errorf("parse quality config: %w", err)
	}
	cfg.apply(overlay)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) apply(o Config) {
	if o.BlurThreshold != 0 {
		c.BlurThreshold = o.BlurThreshold
	}
	if o.MinWidth != 0 {
		c.MinWidth = o.MinWidth
	}
	if o.MinHeight != 0 {
		c.MinHeight = o.MinHeight
	}
	if o.DarkFraction != 0 {
		c.DarkFraction = o.DarkFraction
	}
	if o.BrightFraction != 0 {
		c.BrightFraction = o.BrightFraction
	}
	if o.DarkPixelValue != 0 {
		c.DarkPixelValue = o.DarkPixelValue
	}
	if o.BrightPixelValue != 0 {
		c.BrightPixelValue = o.BrightPixelValue
	}
	if o.MinRoadSurfacePct != 0 {
		c.MinRoadSurfacePct = o.MinRoadSurfacePct
	}
}

// Validate checks threshold sanity.
func (c Config) Validate() error {
	if c.BlurThreshold <= 0 {
		return fmt.Errorf("blur threshold must be positive, got %v", c.BlurThreshold)
	}
	if c.MinWidth <= 0 || c.MinHeight <= 0 {
		return fmt.Errorf("minimum image size must be positive, got %dx%d", c.MinWidth, c.MinHeight)
	}
	if c.DarkFraction <= 0 || c.DarkFraction >= 1 {
		return fmt.Errorf("dark fraction must be in (0,1), got %v", c.DarkFraction)
	}
	if c.BrightFraction <= 0 || c.BrightFraction >= 1 {
		return fmt.Errorf("bright fraction must be in (0,1), got %v", c.BrightFraction)
	}
	if c.MinRoadSurfacePct < 0 {
		return fmt.Errorf("minimum road surface percentage cannot be negative, got %v", c.MinRoadSurfacePct)
	}
	return nil
}
