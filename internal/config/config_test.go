package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/abworrall/rawhdr/internal/colorxform"
	"github.com/abworrall/rawhdr/internal/resample"
)

func writeTempConfig(t *testing.T, contents string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, "inputs: [a.tif, b.tif]\n")

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Saturation != 0.95 {
		t.Errorf("Saturation = %f, want 0.95", c.Saturation)
	}
	if c.Whitepoint != 65535 {
		t.Errorf("Whitepoint = %d, want 65535", c.Whitepoint)
	}
	if c.OutputFormat != "hdr" {
		t.Errorf("OutputFormat = %q, want hdr", c.OutputFormat)
	}
	if _, ok := c.resolvedFilter.(resample.Lanczos3); !ok {
		t.Errorf("resolvedFilter = %T, want Lanczos3", c.resolvedFilter)
	}
}

func TestLoadResolvesColorMode(t *testing.T) {
	path := writeTempConfig(t, "inputs: [a.tif]\ncolor_mode: srgb\n")

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.resolvedColorMode != colorxform.SRGB {
		t.Errorf("resolvedColorMode = %v, want SRGB", c.resolvedColorMode)
	}
}

func TestLoadRejectsUnknownColorMode(t *testing.T) {
	path := writeTempConfig(t, "inputs: [a.tif]\ncolor_mode: lch\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error for an unknown color mode")
	}
}

func TestLoadRejectsUnknownFilter(t *testing.T) {
	path := writeTempConfig(t, "inputs: [a.tif]\nresample_filter: mitchell\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error for an unknown resample filter")
	}
}

func TestLoadRejectsEmptyInputs(t *testing.T) {
	path := writeTempConfig(t, "color_mode: native\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error for no input files")
	}
}

func TestPipelineConfigWiresCropAndResample(t *testing.T) {
	path := writeTempConfig(t, `
inputs: [a.tif]
crop: {x: 10, y: 20, w: 100, h: 200}
resample_width: 50
resample_height: 60
resample_filter: tent
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	pc := c.PipelineConfig()
	if pc.Crop == nil || pc.Crop.X != 10 || pc.Crop.W != 100 {
		t.Fatalf("Crop = %+v, want {10 20 100 200}", pc.Crop)
	}
	if pc.Resample == nil || pc.Resample.Width != 50 || pc.Resample.Height != 60 {
		t.Fatalf("Resample = %+v, want width=50 height=60", pc.Resample)
	}
	if _, ok := pc.Resample.Filter.(resample.Tent); !ok {
		t.Errorf("Resample.Filter = %T, want Tent", pc.Resample.Filter)
	}
}

func TestPipelineConfigLeavesOptionalStagesNilByDefault(t *testing.T) {
	path := writeTempConfig(t, "inputs: [a.tif]\n")
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	pc := c.PipelineConfig()
	if pc.Crop != nil || pc.Vignette != nil || pc.Resample != nil || pc.FlipRotate != nil || pc.WhiteBalance != nil {
		t.Fatalf("expected every optional stage to be nil by default, got %+v", pc)
	}
}

func TestAsYamlRoundTrips(t *testing.T) {
	path := writeTempConfig(t, "inputs: [a.tif]\nscale: 1.5\n")
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	out, err := c.AsYaml()
	if err != nil {
		t.Fatalf("AsYaml: %v", err)
	}
	if len(out) == 0 {
		t.Fatalf("AsYaml produced no output")
	}
}
