package rawseries

import "math"

// Tables are two 65,536-entry lookup tables mapping a 16-bit sensor
// code to a normalized linear value and a confidence weight. Rebuilt
// whenever Series.Saturation changes.
//
// Grounded on _examples/original_source/hdr.cpp's compute_weight and
// the value_tbl/weight_tbl construction in ExposureSeries::merge.
type Tables struct {
	Value  [65536]float32
	Weight [65536]float32
}

const (
	confidenceAlpha = -0.1
)

var confidenceBeta = float32(math.Exp(-4 * confidenceAlpha))

// confidence is a peaked weighting function: 0 outside (blacklevel,
// saturationCode), rising smoothly to 1 at the midpoint of that
// interval.
func confidence(code int, blacklevel uint16, saturationCode float64) float32 {
	s := (float64(code) - float64(blacklevel)) / (saturationCode - float64(blacklevel))
	if s <= 0 || s >= 1 {
		return 0
	}
	return confidenceBeta * float32(math.Exp(confidenceAlpha*(1/s+1/(1-s))))
}

// BuildTables rebuilds Value and Weight from the series' current
// blacklevel/whitepoint/saturation.
func BuildTables(s *Series) *Tables {
	t := &Tables{}
	satCode := s.SaturationCode()
	black, white := float32(s.Blacklevel), float32(s.Whitepoint)

	for i := 0; i < 65536; i++ {
		t.Value[i] = (float32(i) - black) / (white - black)
		t.Weight[i] = confidence(i, s.Blacklevel, satCode)
	}
	return t
}
