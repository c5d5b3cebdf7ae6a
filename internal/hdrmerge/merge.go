// Package hdrmerge implements the two-pass HDR merger. It folds a
// bracketed exposure series into a single linear radiance image, using
// the bounded confidence weight of rawseries.Tables.
//
// Grounded on the teacher's pkg/estack/pixel-fusers.go (FuseByAverage:
// discard overexposed samples, average what's left, weighted by
// illuminance) and pkg/estack/combiners.go's MergeHDR, generalized from
// the teacher's ad-hoc "max=0.8" overexposure cutoff to the exact
// two-pass predicted-weight scheme confirmed verbatim against
// _examples/original_source/hdr.cpp's ExposureSeries::merge.
// Row-parallel, in the shape of the teacher's pkg/eclipse/alignment.go
// worker-pool (scoreXFormsConcurrently).
package hdrmerge

import (
	"runtime"
	"sync"

	"github.com/codahale/hdrhistogram"

	"github.com/abworrall/rawhdr/internal/rawseries"
)

// Stats carries diagnostic information about a merge, returned to the
// caller. WeightHistogram buckets each pixel's pass-2 denominator (the
// exposure-time-weighted sum of confidence weights) times 1000, across
// the whole image; den==0 pixels are counted in ZeroDenominatorPixels
// instead. A merge dominated by den==0 pixels is usually a sign the
// series' saturation threshold is miscalibrated.
type Stats struct {
	ZeroDenominatorPixels int
	WeightHistogram       *hdrhistogram.Histogram
}

// Merge runs the two-pass weighted average over every pixel of the
// series and returns a single-channel float32 image of
// s.Width*s.Height samples. The series' raw per-exposure planes are
// released (via s.ReleaseAll) before Merge returns — callers must not
// read s.Exposures[i].Image afterwards.
func Merge(s *rawseries.Series, t *rawseries.Tables) ([]float32, Stats) {
	out := make([]float32, s.Width*s.Height)
	stats := Stats{WeightHistogram: hdrhistogram.New(0, 1000, 3)}

	if len(s.Exposures) == 1 {
		fastPath(s, t, out)
		s.ReleaseAll()
		return out, stats
	}

	var mu sync.Mutex
	rowsPerWorker := rowChunks(s.Height, runtime.NumCPU())
	var wg sync.WaitGroup
	for _, rows := range rowsPerWorker {
		wg.Add(1)
		go func(y0, y1 int) {
			defer wg.Done()
			local := Stats{WeightHistogram: hdrhistogram.New(0, 1000, 3)}
			for y := y0; y < y1; y++ {
				mergeRow(s, t, out, y, &local)
			}
			mu.Lock()
			stats.ZeroDenominatorPixels += local.ZeroDenominatorPixels
			stats.WeightHistogram.Merge(local.WeightHistogram)
			mu.Unlock()
		}(rows[0], rows[1])
	}
	wg.Wait()

	s.ReleaseAll()
	return out, stats
}

// fastPath is the single-exposure shortcut: the output is simply the
// normalized sensor value, and exposure time is irrelevant.
func fastPath(s *rawseries.Series, t *rawseries.Tables, out []float32) {
	img := s.Exposures[0].Image
	for i, v := range img {
		out[i] = t.Value[v]
	}
}

func mergeRow(s *rawseries.Series, t *rawseries.Tables, out []float32, y int, stats *Stats) {
	width := s.Width
	for x := 0; x < width; x++ {
		offset := y*width + x
		out[offset] = mergePixel(s, t, offset, stats)
	}
}

// mergePixel runs both weighting passes for a single pixel.
func mergePixel(s *rawseries.Series, t *rawseries.Tables, offset int, stats *Stats) float32 {
	var num, den float32

	// Pass 1: unweighted (observed-weight) estimate.
	for i := range s.Exposures {
		v := s.Exposures[i].Image[offset]
		w := t.Weight[v]
		num += t.Value[v] * w
		den += float32(s.Exposures[i].ExposureTime) * w
	}

	var reference float32
	if den > 0 {
		reference = num / den
	}

	// Pass 2: refine using the predicted (noise-free) sensor code's
	// weight, applied to the observed value. Observed samples with zero
	// weight (saturated or black-clipped) stay rejected in this pass.
	num, den = 0, 0
	black := float32(s.Blacklevel)
	scale := float32(s.Whitepoint) - black

	for i := range s.Exposures {
		v := s.Exposures[i].Image[offset]
		if t.Weight[v] == 0 {
			continue
		}
		predicted := reference*float32(s.Exposures[i].ExposureTime)*scale + black
		if predicted <= 0 || predicted >= 65535 {
			continue
		}
		predictedCode := uint16(predicted + 0.5)
		w := t.Weight[predictedCode]

		num += t.Value[v] * w
		den += float32(s.Exposures[i].ExposureTime) * w
	}

	if den == 0 {
		stats.ZeroDenominatorPixels++
		return 0
	}
	result := num / den
	stats.WeightHistogram.RecordValue(int64(den * 1000))
	return result
}

// rowChunks splits [0,height) into up to n contiguous row ranges for
// the row-parallel worker pool.
func rowChunks(height, n int) [][2]int {
	if n < 1 {
		n = 1
	}
	if n > height {
		n = height
	}
	chunks := make([][2]int, 0, n)
	base := height / n
	rem := height % n
	y := 0
	for i := 0; i < n; i++ {
		size := base
		if i < rem {
			size++
		}
		if size == 0 {
			continue
		}
		chunks = append(chunks, [2]int{y, y + size})
		y += size
	}
	return chunks
}
