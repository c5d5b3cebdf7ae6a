package ahd

import "github.com/abworrall/rawhdr/internal/rawseries"

// fillBorder fills the two missing channels of every pixel within
// imageMargin of any edge by averaging in-bounds same-color neighbors
// in the surrounding 3x3 window, defaulting to 1.0 where none exist.
func fillBorder(s *rawseries.Series, out []float32) {
	width, height := s.Width, s.Height

	inBorder := func(x, y int) bool {
		return x < imageMargin || y < imageMargin || x >= width-imageMargin || y >= height-imageMargin
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if !inBorder(x, y) {
				continue
			}
			known := s.Fc(x, y)
			for c := 0; c < 3; c++ {
				if c == known {
					continue
				}
				out[(y*width+x)*3+c] = averageSameColorNeighbor(s, out, x, y, c)
			}
		}
	}
}

func averageSameColorNeighbor(s *rawseries.Series, out []float32, x, y, color int) float32 {
	width, height := s.Width, s.Height
	var sum float32
	var count int
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			nx, ny := x+dx, y+dy
			if nx < 0 || ny < 0 || nx >= width || ny >= height {
				continue
			}
			if s.Fc(nx, ny) != color {
				continue
			}
			sum += out[(ny*width+nx)*3+color]
			count++
		}
	}
	if count == 0 {
		return 1.0
	}
	return sum / float32(count)
}
