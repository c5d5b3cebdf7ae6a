package pipeline

import (
	"math"
	"testing"

	"github.com/abworrall/rawhdr/internal/colorxform"
	"github.com/abworrall/rawhdr/internal/emath"
	"github.com/abworrall/rawhdr/internal/rawseries"
	"github.com/abworrall/rawhdr/internal/resample"
)

func closeEnough(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}

func identityMat() emath.Mat3 {
	return emath.Mat3{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

// constantRGGBSeries builds a single-exposure series whose mosaic is
// the same 16-bit code everywhere, so every later stage's output
// should remain uniform too.
func constantRGGBSeries(width, height int, code uint16) *rawseries.Series {
	img := make([]uint16, width*height)
	for i := range img {
		img[i] = code
	}
	return &rawseries.Series{
		Width: width, Height: height,
		Blacklevel: 0, Whitepoint: 65535, Saturation: 0.99,
		Filter: rawseries.FilterRGGB,
		Exposures: []rawseries.Exposure{
			{Filename: "a", ExposureTime: 1.0, Image: img},
		},
	}
}

func TestRunFullPipelineOnConstantFieldStaysUniform(t *testing.T) {
	s := constantRGGBSeries(40, 40, 32768)
	cfg := Config{
		SensorToXYZ:    identityMat(),
		ColorMode:      colorxform.Native,
		IntensityScale: 1,
		Crop:           &CropRect{X: 5, Y: 5, W: 20, H: 20},
		Resample:       &ResampleConfig{Width: 10, Height: 10, Filter: resample.Tent{}},
		FlipRotate:     &FlipRotateConfig{Rotation: 90, Axes: ""},
	}

	result, err := Run(s, cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Channels != 3 {
		t.Fatalf("Channels = %d, want 3", result.Channels)
	}
	if result.Width != 10 || result.Height != 10 {
		t.Fatalf("dims = %dx%d, want 10x10", result.Width, result.Height)
	}

	want := float64(32768) / 65535
	for i, v := range result.Image {
		if !closeEnough(float64(v), want, 1e-3) {
			t.Fatalf("sample %d = %f, want %f (constant field through the whole pipeline)", i, v, want)
		}
	}
}

func TestRunSkipDemosaicProducesSingleChannel(t *testing.T) {
	s := constantRGGBSeries(20, 20, 10000)
	cfg := Config{SkipDemosaic: true}

	result, err := Run(s, cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Channels != 1 {
		t.Fatalf("Channels = %d, want 1", result.Channels)
	}
	if result.Width != 20 || result.Height != 20 {
		t.Fatalf("dims = %dx%d, want 20x20", result.Width, result.Height)
	}

	want := float64(10000) / 65535
	for i, v := range result.Image {
		if !closeEnough(float64(v), want, 1e-6) {
			t.Fatalf("sample %d = %f, want %f", i, v, want)
		}
	}
}

func TestRunRejectsVignetteOnMosaicBuffer(t *testing.T) {
	s := constantRGGBSeries(20, 20, 10000)
	cfg := Config{
		SkipDemosaic: true,
		Vignette:     &VignetteConfig{Calibrate: true},
	}

	if _, err := Run(s, cfg); err == nil {
		t.Fatalf("expected an error requesting vignetting on a single-channel mosaic buffer")
	}
}

func TestRunRejectsInvalidSeries(t *testing.T) {
	s := &rawseries.Series{
		Width: 20, Height: 20,
		Blacklevel: 1000, Whitepoint: 100, // invalid: blacklevel >= whitepoint
		Filter: rawseries.FilterRGGB,
		Exposures: []rawseries.Exposure{
			{Filename: "a", ExposureTime: 1.0, Image: make([]uint16, 400)},
		},
	}
	if _, err := Run(s, Config{SkipDemosaic: true}); err == nil {
		t.Fatalf("expected an error for an invalid series")
	}
}

func TestRunAppliesExposureTimeFitBeforeMerge(t *testing.T) {
	// large enough for the fitter's 200 non-overlapping patches, and
	// dim enough that no exposure saturates.
	width, height := 800, 600
	statedTimes := []float64{1.0, 2.0, 4.0, 8.0, 16.0}
	trueTimes := []float64{1.0, 2.3, 3.6, 9.1, 15.2}

	s := &rawseries.Series{
		Width: width, Height: height,
		Blacklevel: 0, Whitepoint: 65535, Saturation: 0.95,
		Filter: rawseries.FilterRGGB,
	}
	for i, stated := range statedTimes {
		img := make([]uint16, width*height)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				radiance := 0.02 + 0.03*float64(x+y)/float64(width+height)
				code := radiance * trueTimes[i] * 65535
				if code > 60000 {
					code = 60000
				}
				img[y*width+x] = uint16(code)
			}
		}
		s.Exposures = append(s.Exposures, rawseries.Exposure{
			Filename: "e", ExposureTime: stated, Image: img,
		})
	}

	cfg := Config{
		FitExposureTimes: true,
		Seed:              42,
		SkipDemosaic:      true,
	}
	result, err := Run(s, cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.ExposureTimeFit == nil {
		t.Fatalf("ExposureTimeFit was not populated")
	}
	if result.ExposureTimeFit.GoodExposures < 3 {
		t.Fatalf("GoodExposures = %d, want at least 3", result.ExposureTimeFit.GoodExposures)
	}
}
