// Package ahd implements Adaptive Homogeneity-Directed demosaicing:
// two directional reconstructions of the missing color channels at
// every mosaic pixel, scored by local homogeneity in CIELab, with the
// more homogeneous candidate kept.
//
// The green-interpolation formula and tile geometry (T=256, advance
// T-6, margins 2/5) are grounded verbatim on
// _examples/original_source/hdr.cpp's ExposureSeries::demosaic, which
// is the only part of that function that reaches a working state
// before trailing off into an incomplete colormatrix loop. The
// remaining steps (chroma interpolation, CIELab conversion, the
// homogeneity map, and direction selection) follow the complete
// algorithm description that supersedes the original's unfinished
// body, generalized from its 2-candidate tile-buffer shape. Tile
// parallelism follows the teacher's pkg/eclipse/alignment.go worker
// pool, as already reused in internal/hdrmerge.
package ahd

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/abworrall/rawhdr/internal/emath"
	"github.com/abworrall/rawhdr/internal/rawseries"
)

const (
	rCh = 0
	gCh = 1
	bCh = 2

	tileSize    = 256
	tileAdvance = tileSize - 6
	tileMargin  = 2
	imageMargin = 5
	writeInset  = 3
)

// d65White is the CIE D65 reference white the sensor->XYZ matrix is
// normalized against before it feeds the CIELab homogeneity test.
var d65White = emath.Vec3{0.950456, 1.0, 1.088754}

// Demosaic turns s.Merged into a three-channel image, writing the
// result into s.Demosaiced and releasing s.Merged. sensorToXYZ is the
// camera's raw sensor->XYZ matrix (not yet white-normalized); Demosaic
// does that normalization itself for its own internal CIELab metric,
// independently of whatever internal/colorxform later does with the
// same matrix for the output color transform.
func Demosaic(s *rawseries.Series, sensorToXYZ emath.Mat3) error {
	if s.Merged == nil {
		return fmt.Errorf("ahd: series has no merged buffer to demosaic")
	}
	if s.Demosaiced != nil {
		return fmt.Errorf("ahd: series already has a demosaiced buffer")
	}
	if s.Width < 2*imageMargin+2 || s.Height < 2*imageMargin+2 {
		return fmt.Errorf("ahd: image %dx%d is too small for the tiling margins", s.Width, s.Height)
	}

	out := fillKnownChannel(s)
	fillBorder(s, out)

	labMatrix := sensorToXYZ.DivRows(d65White)
	scale := maxValue(s.Merged) * labMatrix.MaxEntry()
	if scale <= 0 {
		scale = 1
	}

	tiles := tileOrigins(s.Width, s.Height)

	workers := runtime.NumCPU()
	pool := make(chan *tileScratch, workers)
	for i := 0; i < workers; i++ {
		pool <- newTileScratch()
	}

	var wg sync.WaitGroup
	for _, origin := range tiles {
		left, top := origin[0], origin[1]
		wg.Add(1)
		scratch := <-pool
		go func(left, top int, scratch *tileScratch) {
			defer wg.Done()
			defer func() { pool <- scratch }()
			processTile(s, out, scratch, left, top, labMatrix, scale)
		}(left, top, scratch)
	}
	wg.Wait()

	s.Merged = nil
	s.Demosaiced = out
	return nil
}

// fillKnownChannel allocates the full-image interleaved RGB buffer and
// plants each mosaic sample at its own color's slot, leaving the other
// two channels zero everywhere.
func fillKnownChannel(s *rawseries.Series) []float32 {
	out := make([]float32, s.Width*s.Height*3)
	for y := 0; y < s.Height; y++ {
		for x := 0; x < s.Width; x++ {
			off := y*s.Width + x
			out[off*3+s.Fc(x, y)] = s.Merged[off]
		}
	}
	return out
}

func maxValue(img []float32) float64 {
	var max float32
	for _, v := range img {
		if v > max {
			max = v
		}
	}
	return float64(max)
}

// tileOrigins lists every tile's (left, top) in the order
// hdr.cpp's demosaic loop generates them.
func tileOrigins(width, height int) [][2]int {
	var tiles [][2]int
	for top := tileMargin; top < height-imageMargin; top += tileAdvance {
		for left := tileMargin; left < width-imageMargin; left += tileAdvance {
			tiles = append(tiles, [2]int{left, top})
		}
	}
	return tiles
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func clampf(v, a, b float32) float32 {
	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
