// Package resample implements the separable 1-D resampler used to
// scale the final image: one pass of weighted-tap convolution along
// each axis, with a fast unconditioned inner region and clamped
// indexing at the borders.
//
// Grounded verbatim on _examples/original_source/resample.cpp's
// Resampler struct (itself a simplified port of Mitsuba's resampler):
// the same precomputed start/weight tables, the same fast/border
// region split by walking m_fastStart/m_fastEnd inward from both ends,
// and the same three-loop resample() body. Row/column parallelism
// follows the teacher's pkg/eclipse/alignment.go worker-pool shape,
// already reused in internal/hdrmerge and internal/ahd.
package resample

import (
	"fmt"
	"math"
	"runtime"
	"sync"
)

// Resampler holds the precomputed per-output-sample tap weights and
// start offsets for resampling one axis from sourceRes to targetRes
// samples with a given filter.
type Resampler struct {
	sourceRes, targetRes int
	taps                 int
	start                []int
	weights              []float64
	fastStart, fastEnd   int
}

// New precomputes a Resampler for a 1-D resample from sourceRes to
// targetRes samples using filter f.
func New(f Filter, sourceRes, targetRes int) (*Resampler, error) {
	if sourceRes <= 0 || targetRes <= 0 {
		return nil, fmt.Errorf("resample: source and target resolutions must be positive, got %d, %d", sourceRes, targetRes)
	}

	filterRadius := f.Radius()
	scale, invScale := 1.0, 1.0
	if targetRes < sourceRes {
		scale = float64(sourceRes) / float64(targetRes)
		invScale = 1 / scale
		filterRadius *= scale
	}

	taps := int(math.Floor(filterRadius * 2))
	if taps < 1 {
		taps = 1
	}

	r := &Resampler{
		sourceRes: sourceRes,
		targetRes: targetRes,
		taps:      taps,
		start:     make([]int, targetRes),
		weights:   make([]float64, taps*targetRes),
		fastStart: 0,
		fastEnd:   targetRes,
	}

	for i := 0; i < targetRes; i++ {
		center := (float64(i) + 0.5) / float64(targetRes) * float64(sourceRes)
		start := int(math.Floor(center - filterRadius + 0.5))
		r.start[i] = start

		if start < 0 {
			if i+1 > r.fastStart {
				r.fastStart = i + 1
			}
		} else if start+taps-1 >= sourceRes {
			if i-1 < r.fastEnd {
				r.fastEnd = i - 1
			}
		}

		var sum float64
		for j := 0; j < taps; j++ {
			pos := float64(start+j) + 0.5 - center
			w := f.Eval(pos * invScale)
			r.weights[i*taps+j] = w
			sum += w
		}
		if sum != 0 {
			norm := 1 / sum
			for j := 0; j < taps; j++ {
				r.weights[i*taps+j] *= norm
			}
		}
	}
	if r.fastStart > r.fastEnd {
		r.fastStart = r.fastEnd
	}
	return r, nil
}

// Apply resamples a multi-channel array. sourceStride and
// targetStride count whole samples (pixels), not individual floats —
// a stride of 1 means densely packed pixels, a stride of W means
// samples W floats*channels apart, matching a row of an image laid
// out as consecutive columns.
func (r *Resampler) Apply(source []float32, sourceStride int, target []float32, targetStride, channels int) {
	taps := r.taps
	srcStride := sourceStride * channels
	dstStride := targetStride * channels

	lookup := func(pos, ch int) float32 {
		if pos < 0 {
			pos = 0
		} else if pos >= r.sourceRes {
			pos = r.sourceRes - 1
		}
		return source[srcStride*pos+ch]
	}

	resampleOne := func(i int) {
		start := r.start[i]
		for ch := 0; ch < channels; ch++ {
			var result float64
			if start >= 0 && start+taps-1 < r.sourceRes {
				for j := 0; j < taps; j++ {
					result += float64(source[srcStride*(start+j)+ch]) * r.weights[i*taps+j]
				}
			} else {
				for j := 0; j < taps; j++ {
					result += float64(lookup(start+j, ch)) * r.weights[i*taps+j]
				}
			}
			target[dstStride*i+ch] = float32(result)
		}
	}

	for i := 0; i < r.fastStart; i++ {
		resampleOne(i)
	}
	for i := r.fastStart; i < r.fastEnd; i++ {
		resampleOne(i)
	}
	for i := r.fastEnd; i < r.targetRes; i++ {
		resampleOne(i)
	}
}

// WeightSums returns, for each output sample, the sum of its tap
// weights post-normalization — used only by tests to check the
// normalization invariant (should be 1 everywhere filter energy is
// nonzero).
func (r *Resampler) WeightSums() []float64 {
	sums := make([]float64, r.targetRes)
	for i := 0; i < r.targetRes; i++ {
		var sum float64
		for j := 0; j < r.taps; j++ {
			sum += r.weights[i*r.taps+j]
		}
		sums[i] = sum
	}
	return sums
}

// Image resamples an interleaved width*height*channels image to
// targetWidth*targetHeight*channels, first along X then along Y, each
// pass parallel over the axis it holds fixed.
func Image(f Filter, img []float32, width, height, channels, targetWidth, targetHeight int) ([]float32, error) {
	cur := img
	curWidth, curHeight := width, height

	if targetWidth != curWidth {
		rx, err := New(f, curWidth, targetWidth)
		if err != nil {
			return nil, err
		}
		next := make([]float32, targetWidth*curHeight*channels)
		parallelRows(curHeight, func(y0, y1 int) {
			for y := y0; y < y1; y++ {
				src := cur[y*curWidth*channels:]
				dst := next[y*targetWidth*channels:]
				rx.Apply(src, 1, dst, 1, channels)
			}
		})
		cur = next
		curWidth = targetWidth
	}

	if targetHeight != curHeight {
		ry, err := New(f, curHeight, targetHeight)
		if err != nil {
			return nil, err
		}
		next := make([]float32, curWidth*targetHeight*channels)
		parallelRows(curWidth, func(x0, x1 int) {
			for x := x0; x < x1; x++ {
				src := cur[x*channels:]
				dst := next[x*channels:]
				ry.Apply(src, curWidth, dst, curWidth, channels)
			}
		})
		cur = next
		curHeight = targetHeight
	}

	return cur, nil
}

func parallelRows(n int, work func(i0, i1 int)) {
	workers := runtime.NumCPU()
	if workers < 1 {
		workers = 1
	}
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		work(0, n)
		return
	}

	base, rem := n/workers, n%workers
	var wg sync.WaitGroup
	i := 0
	for w := 0; w < workers; w++ {
		size := base
		if w < rem {
			size++
		}
		if size == 0 {
			continue
		}
		i0, i1 := i, i+size
		i += size
		wg.Add(1)
		go func(i0, i1 int) {
			defer wg.Done()
			work(i0, i1)
		}(i0, i1)
	}
	wg.Wait()
}
