package quality

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, "quality.json",
		`{"blur_threshold": 80, "min_road_surface_pct": 10}`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	want := DefaultConfig()
	want.BlurThreshold = 80
	want.MinRoadSurfacePct = 10

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigRejectsNonJSON(t *testing.T) {
	path := writeConfig(t, "quality.yaml", "blur_threshold: 80")

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for non-json extension")
	}
}

func TestLoadConfigRejectsInvalidThresholds(t *testing.T) {
	path := writeConfig(t, "quality.json", `{"dark_fraction": 1.5}`)

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected validation error for dark_fraction 1.5")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestDefaultConfigValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}
