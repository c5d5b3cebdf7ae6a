package ahd

import (
	"github.com/abworrall/rawhdr/internal/emath"
	"github.com/abworrall/rawhdr/internal/rawseries"
)

// tileScratch holds the two directional candidates (0=horizontal-first
// green, 1=vertical-first green) for one tile: interleaved RGB,
// interleaved Lab, and an 8-bit per-pixel homogeneity count, all sized
// tileSize*tileSize. Reused across tiles by the caller's worker pool.
type tileScratch struct {
	rgb  [2][]float32
	lab  [2][]float32
	homo [2][]uint8
}

func newTileScratch() *tileScratch {
	n := tileSize * tileSize
	return &tileScratch{
		rgb:  [2][]float32{make([]float32, n*3), make([]float32, n*3)},
		lab:  [2][]float32{make([]float32, n*3), make([]float32, n*3)},
		homo: [2][]uint8{make([]uint8, n), make([]uint8, n)},
	}
}

func (t *tileScratch) reset() {
	for d := 0; d < 2; d++ {
		for i := range t.rgb[d] {
			t.rgb[d][i] = 0
		}
		for i := range t.lab[d] {
			t.lab[d][i] = 0
		}
		for i := range t.homo[d] {
			t.homo[d][i] = 0
		}
	}
}

func rgbGet(buf []float32, x, y, c int) float32    { return buf[(y*tileSize+x)*3+c] }
func rgbSet(buf []float32, x, y, c int, v float32) { buf[(y*tileSize+x)*3+c] = v }
func labGet(buf []float32, x, y, c int) float32    { return buf[(y*tileSize+x)*3+c] }
func labSet(buf []float32, x, y, c int, v float32) { buf[(y*tileSize+x)*3+c] = v }

func outGet(out []float32, width, x, y, c int) float32 { return out[(y*width+x)*3+c] }
func outSet(out []float32, width, x, y, c int, v float32) {
	out[(y*width+x)*3+c] = v
}

// processTile runs the full per-tile AHD pipeline and writes the
// winning reconstruction for this tile's inset interior directly into
// the shared output buffer. The region shrinks by one pixel at each
// step that reads its predecessor's neighbors (green -> chroma ->
// homogeneity -> selection); Lab conversion is per-pixel and keeps the
// chroma region. The net three-pixel inset from a full tileSize tile
// matches the spec's stated write region exactly.
func processTile(s *rawseries.Series, out []float32, scratch *tileScratch, left, top int, matrix emath.Mat3, scale float64) {
	scratch.reset()
	width, height := s.Width, s.Height

	greenY1 := minInt(top+tileSize, height-2)
	greenXMax := minInt(left+tileSize, width-2)
	interpolateGreen(s, out, scratch, left, top, top, greenY1, greenXMax)

	chromaY1 := minInt(top+tileSize-1, height-3)
	chromaX1 := minInt(left+tileSize-1, width-3)
	chromaY0, chromaX0 := top+1, left+1
	interpolateChroma(s, out, scratch, left, top, chromaY0, chromaY1, chromaX0, chromaX1)

	convertLab(scratch, chromaY0-top, chromaY1-top, chromaX0-left, chromaX1-left, matrix, scale)

	homoY0, homoY1 := chromaY0-top+1, chromaY1-top-1
	homoX0, homoX1 := chromaX0-left+1, chromaX1-left-1
	computeHomogeneity(scratch, homoY0, homoY1, homoX0, homoX1)

	writeY0, writeY1 := homoY0+1, homoY1-1
	writeX0, writeX1 := homoX0+1, homoX1-1
	selectAndWrite(out, scratch, left, top, writeY0, writeY1, writeX0, writeX1, width)
}

// interpolateGreen fills both directional green candidates for every
// non-green mosaic pixel in [y0,y1) x [left, xMax), per hdr.cpp's
// demosaic loop: a 5-tap directional estimate clamped to forbid new
// local extrema. left/top locate the tile's scratch origin.
func interpolateGreen(s *rawseries.Series, out []float32, scratch *tileScratch, left, top, y0, y1, xMax int) {
	width := s.Width
	for y := y0; y < y1; y++ {
		startX := left + (s.Fc(left, y) & 1)
		for x := startX; x < xMax; x += 2 {
			color := s.Fc(x, y)

			gLeft := outGet(out, width, x-1, y, gCh)
			gRight := outGet(out, width, x+1, y, gCh)
			cCenter := outGet(out, width, x, y, color)
			cLeft2 := outGet(out, width, x-2, y, color)
			cRight2 := outGet(out, width, x+2, y, color)
			interpH := clampf(0.25*(2*(gLeft+gRight)+2*cCenter-cLeft2-cRight2), gLeft, gRight)

			gUp := outGet(out, width, x, y-1, gCh)
			gDown := outGet(out, width, x, y+1, gCh)
			cUp2 := outGet(out, width, x, y-2, color)
			cDown2 := outGet(out, width, x, y+2, color)
			interpV := clampf(0.25*(2*(gUp+gDown)+2*cCenter-cUp2-cDown2), gUp, gDown)

			rx, ry := x-left, y-top
			rgbSet(scratch.rgb[0], rx, ry, gCh, interpH)
			rgbSet(scratch.rgb[1], rx, ry, gCh, interpV)
		}
	}
}

// interpolateChroma fills the two remaining channels of every pixel in
// [y0,y1) x [x0,x1) for both directional candidates, per spec.md
// 4.E.2: at a green mosaic pixel, both chromas are estimated from their
// same-row/same-column neighbors plus a green correction; at a
// non-green pixel, the missing chroma is estimated from the four
// diagonal neighbors. The known channel is copied through unchanged.
func interpolateChroma(s *rawseries.Series, out []float32, scratch *tileScratch, left, top, y0, y1, x0, x1 int) {
	width := s.Width
	for dir := 0; dir < 2; dir++ {
		rgb := scratch.rgb[dir]
		for y := y0; y < y1; y++ {
			for x := x0; x < x1; x++ {
				rx, ry := x-left, y-top
				color := s.Fc(x, y)

				if color == gCh {
					rowColor := s.Fc(x-1, y)
					colColor := s.Fc(x, y-1)
					gSelf := outGet(out, width, x, y, gCh)

					cLeft := outGet(out, width, x-1, y, rowColor)
					cRight := outGet(out, width, x+1, y, rowColor)
					gLeftP := rgbGet(rgb, rx-1, ry, gCh)
					gRightP := rgbGet(rgb, rx+1, ry, gCh)
					rowVal := gSelf + 0.5*(cLeft+cRight-gLeftP-gRightP)
					rgbSet(rgb, rx, ry, rowColor, maxf(0, rowVal))

					cUp := outGet(out, width, x, y-1, colColor)
					cDown := outGet(out, width, x, y+1, colColor)
					gUpP := rgbGet(rgb, rx, ry-1, gCh)
					gDownP := rgbGet(rgb, rx, ry+1, gCh)
					colVal := gSelf + 0.5*(cUp+cDown-gUpP-gDownP)
					rgbSet(rgb, rx, ry, colColor, maxf(0, colVal))

					rgbSet(rgb, rx, ry, gCh, gSelf)
				} else {
					other := 2 - color
					gSelfP := rgbGet(rgb, rx, ry, gCh)

					sumOther := outGet(out, width, x-1, y-1, other) +
						outGet(out, width, x+1, y-1, other) +
						outGet(out, width, x-1, y+1, other) +
						outGet(out, width, x+1, y+1, other)
					sumGreenP := rgbGet(rgb, rx-1, ry-1, gCh) +
						rgbGet(rgb, rx+1, ry-1, gCh) +
						rgbGet(rgb, rx-1, ry+1, gCh) +
						rgbGet(rgb, rx+1, ry+1, gCh)
					otherVal := gSelfP + 0.25*(sumOther-sumGreenP)
					rgbSet(rgb, rx, ry, other, maxf(0, otherVal))

					rgbSet(rgb, rx, ry, color, outGet(out, width, x, y, color))
				}
			}
		}
	}
}

func maxf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

// convertLab fills scratch.lab[dir] for every pixel in [y0,y1)x[x0,x1)
// (tile-local coordinates) from the already-complete RGB scratch.
func convertLab(scratch *tileScratch, y0, y1, x0, x1 int, matrix emath.Mat3, scale float64) {
	for dir := 0; dir < 2; dir++ {
		rgb, lab := scratch.rgb[dir], scratch.lab[dir]
		for y := y0; y < y1; y++ {
			for x := x0; x < x1; x++ {
				r := rgbGet(rgb, x, y, rCh)
				g := rgbGet(rgb, x, y, gCh)
				b := rgbGet(rgb, x, y, bCh)
				l, a, bb := rgbToLab(emath.Vec3{float64(r), float64(g), float64(b)}, matrix, scale)
				labSet(lab, x, y, 0, l)
				labSet(lab, x, y, 1, a)
				labSet(lab, x, y, 2, bb)
			}
		}
	}
}

// computeHomogeneity fills scratch.homo[dir] for every pixel in
// [y0,y1)x[x0,x1), per spec.md 4.E.4: the count, over the four
// axis-aligned neighbors, of those passing both an adaptive luminance
// and an adaptive chroma threshold.
func computeHomogeneity(scratch *tileScratch, y0, y1, x0, x1 int) {
	for dir := 0; dir < 2; dir++ {
		lab, homo := scratch.lab[dir], scratch.homo[dir]
		for y := y0; y < y1; y++ {
			for x := x0; x < x1; x++ {
				l0 := labGet(lab, x, y, 0)
				a0 := labGet(lab, x, y, 1)
				b0 := labGet(lab, x, y, 2)

				dL := [4]float32{
					absf(l0 - labGet(lab, x-1, y, 0)),
					absf(l0 - labGet(lab, x+1, y, 0)),
					absf(l0 - labGet(lab, x, y-1, 0)),
					absf(l0 - labGet(lab, x, y+1, 0)),
				}
				dAB := [4]float32{
					sqDiff(a0, b0, lab, x-1, y),
					sqDiff(a0, b0, lab, x+1, y),
					sqDiff(a0, b0, lab, x, y-1),
					sqDiff(a0, b0, lab, x, y+1),
				}

				epsL := minf(maxf(dL[0], dL[1]), maxf(dL[2], dL[3]))
				epsC := minf(maxf(dAB[0], dAB[1]), maxf(dAB[2], dAB[3]))

				var score uint8
				for i := 0; i < 4; i++ {
					if dL[i] <= epsL && dAB[i] <= epsC {
						score++
					}
				}
				homo[y*tileSize+x] = score
			}
		}
	}
}

func sqDiff(a0, b0 float32, lab []float32, x, y int) float32 {
	da := a0 - labGet(lab, x, y, 1)
	db := b0 - labGet(lab, x, y, 2)
	return da*da + db*db
}

func absf(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

func minf(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

// selectAndWrite sums each direction's homogeneity over a 3x3 window
// at every pixel in the write region and writes the more homogeneous
// candidate's RGB (or their average on a tie) into the shared output
// buffer, per spec.md 4.E.5.
func selectAndWrite(out []float32, scratch *tileScratch, left, top, y0, y1, x0, x1, width int) {
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			var sum [2]int
			for dir := 0; dir < 2; dir++ {
				homo := scratch.homo[dir]
				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						sum[dir] += int(homo[(y+dy)*tileSize+(x+dx)])
					}
				}
			}

			gx, gy := x+left, y+top
			switch {
			case sum[0] > sum[1]:
				writePixel(out, width, gx, gy, scratch.rgb[0], x, y)
			case sum[1] > sum[0]:
				writePixel(out, width, gx, gy, scratch.rgb[1], x, y)
			default:
				for c := 0; c < 3; c++ {
					avg := (rgbGet(scratch.rgb[0], x, y, c) + rgbGet(scratch.rgb[1], x, y, c)) / 2
					outSet(out, width, gx, gy, c, avg)
				}
			}
		}
	}
}

func writePixel(out []float32, width, gx, gy int, rgb []float32, x, y int) {
	for c := 0; c < 3; c++ {
		outSet(out, width, gx, gy, c, rgbGet(rgb, x, y, c))
	}
}
