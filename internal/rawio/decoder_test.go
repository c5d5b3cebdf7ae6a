package rawio

import (
	"fmt"
	"testing"
)

// fakeDecoder stands in for TIFFDecoder in tests that exercise
// LoadSeries's parallel-decode and series-assembly logic without
// touching the filesystem.
type fakeDecoder struct {
	frames map[string]Frame
	errs   map[string]error
}

func (d fakeDecoder) Decode(filename string) (Frame, error) {
	if err, ok := d.errs[filename]; ok {
		return Frame{}, err
	}
	f, ok := d.frames[filename]
	if !ok {
		return Frame{}, fmt.Errorf("no such fake file %q", filename)
	}
	return f, nil
}

func constantFrame(width, height int, code uint16, exposureTime float64) Frame {
	pixels := make([]uint16, width*height)
	for i := range pixels {
		pixels[i] = code
	}
	return Frame{
		Width: width, Height: height,
		Pixels:       pixels,
		Blacklevel:   0,
		Whitepoint:   65535,
		Filter:       0x94949494,
		ExposureTime: exposureTime,
	}
}

func TestLoadSeriesAssemblesFromFrames(t *testing.T) {
	d := fakeDecoder{frames: map[string]Frame{
		"a.tif": constantFrame(10, 8, 100, 1.0),
		"b.tif": constantFrame(10, 8, 200, 2.0),
		"c.tif": constantFrame(10, 8, 400, 4.0),
	}}

	s, err := LoadSeries(d, []string{"a.tif", "b.tif", "c.tif"}, 0.95)
	if err != nil {
		t.Fatalf("LoadSeries: %v", err)
	}
	if s.Width != 10 || s.Height != 8 {
		t.Fatalf("dims = %dx%d, want 10x8", s.Width, s.Height)
	}
	if len(s.Exposures) != 3 {
		t.Fatalf("len(Exposures) = %d, want 3", len(s.Exposures))
	}
	if s.Whitepoint != 65535 {
		t.Fatalf("Whitepoint = %d, want 65535", s.Whitepoint)
	}
	if s.Saturation != 0.95 {
		t.Fatalf("Saturation = %f, want 0.95", s.Saturation)
	}
}

func TestLoadSeriesRejectsMismatchedDimensions(t *testing.T) {
	d := fakeDecoder{frames: map[string]Frame{
		"a.tif": constantFrame(10, 8, 100, 1.0),
		"b.tif": constantFrame(20, 8, 200, 2.0),
	}}

	if _, err := LoadSeries(d, []string{"a.tif", "b.tif"}, 0.95); err == nil {
		t.Fatalf("expected an error for mismatched dimensions")
	}
}

func TestLoadSeriesPropagatesDecodeErrors(t *testing.T) {
	d := fakeDecoder{
		frames: map[string]Frame{"a.tif": constantFrame(10, 8, 100, 1.0)},
		errs:   map[string]error{"b.tif": fmt.Errorf("boom")},
	}

	if _, err := LoadSeries(d, []string{"a.tif", "b.tif"}, 0.95); err == nil {
		t.Fatalf("expected the decode error to propagate")
	}
}

func TestLoadSeriesRejectsEmptyInput(t *testing.T) {
	if _, err := LoadSeries(fakeDecoder{}, nil, 0.95); err == nil {
		t.Fatalf("expected an error for no input files")
	}
}

func TestTIFFDecoderReportsMissingFile(t *testing.T) {
	d := TIFFDecoder{Blacklevel: 0, Whitepoint: 65535}
	if _, err := d.Decode("/nonexistent/does-not-exist.tif"); err == nil {
		t.Fatalf("expected an error opening a nonexistent file")
	}
}

func TestLoadSeriesThreadsManualExposureThroughToExposures(t *testing.T) {
	a := constantFrame(4, 4, 100, 1.0)
	a.ManualExposure = true
	b := constantFrame(4, 4, 200, 2.0)
	b.ManualExposure = false

	d := fakeDecoder{frames: map[string]Frame{"a.tif": a, "b.tif": b}}

	s, err := LoadSeries(d, []string{"a.tif", "b.tif"}, 0.95)
	if err != nil {
		t.Fatalf("LoadSeries: %v", err)
	}
	if !s.Exposures[0].ManualExposure {
		t.Errorf("Exposures[0].ManualExposure = false, want true")
	}
	if s.Exposures[1].ManualExposure {
		t.Errorf("Exposures[1].ManualExposure = true, want false")
	}
}

func TestMergeTagsKeepsAgreeingValuesAndAppendsDisagreeing(t *testing.T) {
	frames := []Frame{
		{Tags: map[string]string{"ISOSpeedRatings": "200", "Make": "Canon"}},
		{Tags: map[string]string{"ISOSpeedRatings": "200", "Make": "Nikon"}},
	}

	merged := mergeTags(frames)

	if merged["ISOSpeedRatings"] != "200" {
		t.Errorf("ISOSpeedRatings = %q, want %q", merged["ISOSpeedRatings"], "200")
	}
	if merged["Make"] != "Canon; Nikon" {
		t.Errorf("Make = %q, want %q", merged["Make"], "Canon; Nikon")
	}
}
