// Package rawseries holds the exposure store and CFA lookup: the raw
// 16-bit sensor planes for a bracketed series of exposures of one
// static scene, and the handful of per-series facts (blacklevel,
// whitepoint, CFA descriptor, saturation) that every later stage of
// the pipeline needs.
//
// Grounded on the teacher's pkg/estack/stackedimage.go /
// pkg/estack/ev.go (an ordered, EV-sorted slice of per-image state
// plus per-image metadata) and confirmed against
// _examples/original_source/hdrmerge.h's Exposure/ExposureSeries and
// input.cpp's ExposureSeries::check.
package rawseries

import (
	"fmt"
	"log"
	"sort"
)

// Exposure is a single captured frame: a 16-bit planar sensor image,
// an exposure time in seconds, and the opaque filename it came from.
// Owned exclusively by its Series; Image is released (set to nil)
// once the HDR merger has consumed it.
type Exposure struct {
	Filename string

	// Seconds; strictly positive. May be overwritten by the
	// exposure-time fitter.
	ExposureTime float64

	// DisplayExposure is the EXIF-derived human-readable shutter speed
	// (e.g. "1/500"), used only for user-facing output; never used in
	// arithmetic.
	DisplayExposure string

	// Image is a row-major width*height plane of 16-bit sensor codes.
	// Nil once the exposure has been merged and released.
	Image []uint16

	// ManualExposure is true when the EXIF ExposureMode tag asserts
	// "Manual". False covers both an absent tag and an explicit
	// non-manual mode; either way Validate only warns on it.
	ManualExposure bool
}

// Release drops the exposure's raw sensor plane. Called by the HDR
// merger immediately after a frame has been consumed.
func (e *Exposure) Release() {
	e.Image = nil
}

// Series is an ordered, ascending-by-exposure-time sequence of
// Exposures of the same static scene, plus the per-series facts a RAW
// decoder would have reported once for the whole bracket.
type Series struct {
	Exposures []Exposure

	Width, Height int

	// 16-bit sensor-code endpoints of the linear range.
	Blacklevel, Whitepoint uint16

	// Fraction of the theoretical range above which samples are
	// distrusted for HDR weighting, in (0, 1].
	Saturation float64

	// Bit-packed dcraw-style CFA descriptor: 16 2-bit color fields
	// covering 8 row-phases x 2 column-phases, so needs the full 32
	// bits even though real sensors only ever vary every 2 rows.
	Filter uint32

	ISO      float64
	Aperture float64

	// Merged / Demosaiced are mutually exclusive: at most one is
	// non-nil at any time after merge begins.
	Merged     []float32 // single-channel, Width*Height
	Demosaiced []float32 // three-channel interleaved RGB, Width*Height*3

	// Opaque EXIF passthrough, collected by the loader and carried
	// unmodified to the output writer.
	Metadata map[string]string
}

// Fc returns the Bayer color (0=R, 1=G, 2=B) at pixel (x,y). This is
// a hot path (called repeatedly per pixel by the demosaicer, and per
// patch sample by the exposure-time fitter), confirmed
// bit-for-bit against hdrmerge.h's `fc`. It is deliberately
// branch-free so the compiler can inline it at every call site.
func (s *Series) Fc(x, y int) int {
	return int(s.Filter>>(((uint(y)<<1&14)+(uint(x)&1))<<1)) & 3
}

// FilterRGGB is the dcraw-style CFA descriptor for the ordinary
// Bayer RGGB pattern (red/green on even rows, green/blue on odd
// rows), replicated across all 8 row-phases the Filter field encodes.
// Most consumer RAW files use this pattern; rawio falls back to it
// when the decoder can't report anything more specific.
const FilterRGGB uint32 = 0x94949494

// SaturationCode is the 16-bit sensor code corresponding to
// Saturation, used to build the confidence-weight table.
func (s *Series) SaturationCode() float64 {
	return float64(s.Blacklevel) + s.Saturation*float64(s.Whitepoint-s.Blacklevel)
}

// Validate checks the pre-merge invariants: exposure count,
// blacklevel/whitepoint/saturation bounds, strictly-increasing
// exposure times after sort (duplicates are fatal), and uniform image
// dimensions. Mirrors the check order of
// _examples/original_source/input.cpp's ExposureSeries::check (sort
// first, then scan for duplicates).
func (s *Series) Validate() error {
	if len(s.Exposures) == 0 {
		return fmt.Errorf("rawseries: empty exposure series")
	}
	if !(s.Blacklevel < s.Whitepoint) {
		return fmt.Errorf("rawseries: blacklevel %d must be < whitepoint %d", s.Blacklevel, s.Whitepoint)
	}
	if s.Whitepoint > 65535 {
		return fmt.Errorf("rawseries: whitepoint %d exceeds 16-bit range", s.Whitepoint)
	}
	if !(s.Saturation > 0 && s.Saturation <= 1) {
		return fmt.Errorf("rawseries: saturation %f must be in (0, 1]", s.Saturation)
	}
	for i := range s.Exposures {
		if s.Exposures[i].ExposureTime <= 0 {
			return fmt.Errorf("rawseries: exposure %q has non-positive exposure time %f",
				s.Exposures[i].Filename, s.Exposures[i].ExposureTime)
		}
		if len(s.Exposures[i].Image) != 0 && len(s.Exposures[i].Image) != s.Width*s.Height {
			return fmt.Errorf("rawseries: exposure %q has %d samples, want %dx%d",
				s.Exposures[i].Filename, len(s.Exposures[i].Image), s.Width, s.Height)
		}
	}

	sort.Slice(s.Exposures, func(i, j int) bool {
		return s.Exposures[i].ExposureTime < s.Exposures[j].ExposureTime
	})

	for i := 1; i < len(s.Exposures); i++ {
		if s.Exposures[i].ExposureTime == s.Exposures[i-1].ExposureTime {
			return fmt.Errorf("rawseries: duplicate exposure time %g (%q, %q)",
				s.Exposures[i].ExposureTime, s.Exposures[i-1].Filename, s.Exposures[i].Filename)
		}
	}

	for i := range s.Exposures {
		if !s.Exposures[i].ManualExposure {
			log.Printf("rawseries: warning: exposure %q was not asserted as manual exposure mode in EXIF",
				s.Exposures[i].Filename)
		}
	}

	return nil
}

// LongestExposure returns the exposure with the largest ExposureTime;
// the series is assumed already sorted ascending (Validate does this).
func (s *Series) LongestExposure() *Exposure {
	return &s.Exposures[len(s.Exposures)-1]
}

// ReleaseAll drops every exposure's raw sensor plane. Called once the
// HDR merger has produced its output.
func (s *Series) ReleaseAll() {
	for i := range s.Exposures {
		s.Exposures[i].Release()
	}
}
