package exptime

import (
	"math"
	"math/rand"

	"github.com/abworrall/rawhdr/internal/rawseries"
)

// patchSize is the aligned window side used for patch sampling;
// contractual, not configurable.
const patchSize = 20

// Quality thresholds, contractual.
const (
	minThreshold      = 0.01
	saturationMargin  = 0.05
	maxRelativeStddev = 0.10
)

// patch is a 20x20 aligned window, sampled on the green channel.
// Grounded verbatim on _examples/original_source/fitexp.cpp's Patch:
// even-aligned (x,y), isGood predicate, and overlap test.
type patch struct {
	x, y int
}

// randomPatch samples a patch position uniformly inside the image
// interior, even-aligned, keeping a margin of at least patchSize from
// every edge. Grounded verbatim on fitexp.cpp's Patch(const
// ExposureSeries&) constructor.
func randomPatch(rng *rand.Rand, width, height int) patch {
	x := 2*int(rng.Float64()*float64(width-4*patchSize)/2) + patchSize
	y := 2*int(rng.Float64()*float64(height-4*patchSize)/2) + patchSize
	return patch{x, y}
}

// overlaps reports whether p and q are within patchSize of each other
// on either axis.
func (p patch) overlaps(q patch) bool {
	dx := p.x - q.x
	if dx < 0 {
		dx = -dx
	}
	dy := p.y - q.y
	if dy < 0 {
		dy = -dy
	}
	return dx < patchSize && dy < patchSize
}

// patchStats holds the min/max/mean/relative-stddev of the green
// samples inside a patch on one exposure.
type patchStats struct {
	min, max, mean, relStddev float64
	count                     int
}

// greenStats computes patchStats over the green CFA samples of patch
// p on exposure img of series s, converting raw sensor codes through
// tbl.Value. The fitter runs pre-merge, directly on normalized sensor
// values of the green channel only.
func greenStats(s *rawseries.Series, tbl *rawseries.Tables, img int, p patch) patchStats {
	var sum float64
	var count int
	var min, max = math.Inf(1), math.Inf(-1)

	exp := &s.Exposures[img]
	for yo := 0; yo < patchSize; yo++ {
		for xo := 0; xo < patchSize; xo++ {
			x, y := p.x+xo, p.y+yo
			if s.Fc(x, y) != 1 { // 1 == green
				continue
			}
			v := float64(tbl.Value[exp.Image[y*s.Width+x]])
			sum += v
			count++
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}
	}

	mean := sum / float64(count)

	var variance float64
	for yo := 0; yo < patchSize; yo++ {
		for xo := 0; xo < patchSize; xo++ {
			x, y := p.x+xo, p.y+yo
			if s.Fc(x, y) != 1 {
				continue
			}
			v := float64(tbl.Value[exp.Image[y*s.Width+x]])
			diff := v - mean
			variance += diff * diff
		}
	}

	relStddev := math.Inf(1)
	if count > 1 && mean != 0 {
		relStddev = math.Sqrt(variance/float64(count-1)) / math.Abs(mean)
	}

	return patchStats{min: min, max: max, mean: mean, relStddev: relStddev, count: count}
}

// greenMean computes just the mean green value of patch p on exposure
// img, used when assembling the least-squares model (the fit only
// needs the mean, not the full quality statistics).
func greenMean(s *rawseries.Series, tbl *rawseries.Tables, img int, p patch) float64 {
	var sum float64
	var count int
	exp := &s.Exposures[img]
	for yo := 0; yo < patchSize; yo++ {
		for xo := 0; xo < patchSize; xo++ {
			x, y := p.x+xo, p.y+yo
			if s.Fc(x, y) != 1 {
				continue
			}
			sum += float64(tbl.Value[exp.Image[y*s.Width+x]])
			count++
		}
	}
	return sum / float64(count)
}

// isGood is the per-exposure patch quality predicate: well-exposed,
// clear of saturation, and locally flat.
func isGood(s *rawseries.Series, tbl *rawseries.Tables, img int, p patch) bool {
	st := greenStats(s, tbl, img, p)
	if st.count == 0 {
		return false
	}
	return st.min > minThreshold &&
		st.max < s.Saturation-saturationMargin &&
		st.relStddev < maxRelativeStddev
}
