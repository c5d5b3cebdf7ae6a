// Package config reads the YAML file the command line points at and
// turns it into a pipeline.Config plus the handful of facts (input
// filenames, output path/format, decoder overrides) that live outside
// the core's scope.
//
// Grounded on the teacher's pkg/estack/config.go (Configuration,
// LoadConfiguration, FinalizeConfiguration: read file, yaml.Unmarshal,
// then a string->enum resolution pass with sane defaults) and
// pkg/eclipse/config.go (embedding emath.Mat3/Vec3 directly as YAML
// fields, an AsYaml dump helper, strategy fields resolved by a
// switch-returning-function-value method).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/abworrall/rawhdr/internal/colorxform"
	"github.com/abworrall/rawhdr/internal/emath"
	"github.com/abworrall/rawhdr/internal/pipeline"
	"github.com/abworrall/rawhdr/internal/resample"
	"github.com/abworrall/rawhdr/internal/vignette"
	"github.com/abworrall/rawhdr/internal/whitebalance"
)

// Configuration is the on-disk YAML shape. Every field in the
// "Configuration inputs" list the core's external-interfaces section
// names has a home here; Finalize resolves the string selector fields
// (ColorMode, ResampleFilter, OutputFormat) into the typed values the
// pipeline needs.
type Configuration struct {
	Inputs []string `yaml:"inputs"`

	Output       string `yaml:"output"`
	OutputFormat string `yaml:"output_format"` // "hdr" or "png"
	HalfPrecision bool  `yaml:"half_precision"`

	Blacklevel uint16  `yaml:"blacklevel"`
	Whitepoint uint16  `yaml:"whitepoint"`
	Saturation float64 `yaml:"saturation"`

	SkipDemosaic bool       `yaml:"skip_demosaic"`
	SensorToXYZ  emath.Mat3 `yaml:"sensor_to_xyz"`
	ColorMode    string     `yaml:"color_mode"` // "native", "srgb", "xyz"

	FitExposureTimes bool    `yaml:"fit_exposure_times"`
	Seed             int64   `yaml:"seed"`

	WhiteBalanceMultipliers *whitebalance.Multipliers `yaml:"white_balance_multipliers"`
	WhiteBalancePatch       *whitebalance.Rect         `yaml:"white_balance_patch"`

	Scale float64 `yaml:"scale"`

	Crop *pipeline.CropRect `yaml:"crop"`

	VignetteCoefficients *vignette.Coefficients `yaml:"vignette_coefficients"`
	VignetteCalibrate    bool                   `yaml:"vignette_calibrate"`

	ResampleWidth  int    `yaml:"resample_width"`
	ResampleHeight int    `yaml:"resample_height"`
	ResampleFilter string `yaml:"resample_filter"` // "lanczos" or "tent"

	Rotation int    `yaml:"rotation"` // degrees, one of 0/90/180/270
	Axes     string `yaml:"axes"`     // any subset of "xy" to mirror

	resolvedColorMode colorxform.Mode
	resolvedFilter    resample.Filter
}

// Load reads and parses a YAML configuration file, then resolves its
// string selector fields.
func Load(filename string) (Configuration, error) {
	var c Configuration

	contents, err := os.ReadFile(filename)
	if err != nil {
		return c, fmt.Errorf("config: read %s: %w", filename, err)
	}
	if err := yaml.Unmarshal(contents, &c); err != nil {
		return c, fmt.Errorf("config: parse %s: %w", filename, err)
	}

	return c, c.Finalize()
}

// Finalize applies defaults and resolves every string selector field
// into its typed equivalent, the way the teacher's own
// FinalizeConfiguration resolves CombinerStrategy into a CombinerFunc.
func (c *Configuration) Finalize() error {
	if c.Saturation == 0 {
		c.Saturation = 0.95
	}
	if c.Whitepoint == 0 {
		c.Whitepoint = 65535
	}
	if c.OutputFormat == "" {
		c.OutputFormat = "hdr"
	}
	if c.ResampleFilter == "" {
		c.ResampleFilter = "lanczos"
	}

	switch c.ColorMode {
	case "", "native":
		c.resolvedColorMode = colorxform.Native
	case "xyz":
		c.resolvedColorMode = colorxform.XYZ
	case "srgb":
		c.resolvedColorMode = colorxform.SRGB
	default:
		return fmt.Errorf("config: no color mode named %q", c.ColorMode)
	}

	switch c.ResampleFilter {
	case "lanczos":
		c.resolvedFilter = resample.Lanczos3{}
	case "tent":
		c.resolvedFilter = resample.Tent{}
	default:
		return fmt.Errorf("config: no resample filter named %q", c.ResampleFilter)
	}

	switch c.OutputFormat {
	case "hdr", "png":
	default:
		return fmt.Errorf("config: no output format named %q", c.OutputFormat)
	}

	if len(c.Inputs) == 0 {
		return fmt.Errorf("config: no input files listed")
	}

	return nil
}

// AsYaml round-trips the configuration back to YAML, for logging what
// a run actually used.
func (c Configuration) AsYaml() (string, error) {
	b, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("config: marshal: %w", err)
	}
	return string(b), nil
}

// PipelineConfig builds the typed pipeline.Config this configuration
// describes.
func (c Configuration) PipelineConfig() pipeline.Config {
	cfg := pipeline.Config{
		FitExposureTimes: c.FitExposureTimes,
		Seed:              c.Seed,
		SkipDemosaic:      c.SkipDemosaic,
		SensorToXYZ:       c.SensorToXYZ,
		ColorMode:         c.resolvedColorMode,
		IntensityScale:    c.Scale,
		Crop:              c.Crop,
	}

	if c.WhiteBalanceMultipliers != nil || c.WhiteBalancePatch != nil {
		cfg.WhiteBalance = &pipeline.WhiteBalanceConfig{
			Explicit: c.WhiteBalanceMultipliers,
			Patch:    c.WhiteBalancePatch,
		}
	}

	if c.VignetteCoefficients != nil || c.VignetteCalibrate {
		cfg.Vignette = &pipeline.VignetteConfig{
			Coefficients: c.VignetteCoefficients,
			Calibrate:    c.VignetteCalibrate,
		}
	}

	if c.ResampleWidth > 0 && c.ResampleHeight > 0 {
		cfg.Resample = &pipeline.ResampleConfig{
			Width:  c.ResampleWidth,
			Height: c.ResampleHeight,
			Filter: c.resolvedFilter,
		}
	}

	if c.Rotation != 0 || c.Axes != "" {
		cfg.FlipRotate = &pipeline.FlipRotateConfig{
			Rotation: c.Rotation,
			Axes:     c.Axes,
		}
	}

	return cfg
}
