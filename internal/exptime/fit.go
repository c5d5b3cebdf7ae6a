// Package exptime recovers corrected exposure times for a bracketed
// series whose EXIF-reported shutter speeds are untrustworthy (common
// on cameras that round shutter speed to a small set of displayed
// values). It samples well-exposed, locally flat patches from the
// green channel across the series, and fits a log-linear model that
// jointly solves for every patch's true radiance and every exposure's
// time correction.
//
// Grounded verbatim on _examples/original_source/fitexp.cpp's
// Patch/fitExposureTimes (patch sampling, reject-and-refill scan,
// sparse design matrix with a gauge-fixing row), generalized from its
// Eigen::colPivHouseholderQr().solve() to gonum.org/v1/gonum/mat's
// QR solve, the least-squares solver used by the rest of the pack's
// fitting code.
package exptime

import (
	"fmt"
	"log"
	"math"
	"math/rand"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/abworrall/rawhdr/internal/rawseries"
)

const (
	patchesPerExposure = 200
	maxTriesFactor     = 100
	minGoodExposures   = 3
)

// Result is the outcome of Fit: the corrected exposure times (indexed
// like s.Exposures), diagnostic counts, and a rendered plotting script
// a caller may write to disk to visually check the fit.
type Result struct {
	// CorrectedTimes holds a corrected time for every exposure that
	// took part in the fit; exposures excluded for lack of good
	// patches keep their original EXIF time here.
	CorrectedTimes []float64

	GoodPatches   int
	GoodExposures int

	// PlotScript is an Octave/MATLAB script plotting each patch's
	// observed green mean against both the EXIF-derived and fitted
	// exposure time, mirroring exptime_showfit.m's two subplots.
	PlotScript string
}

// Fit runs the exposure-time recovery described above over series s,
// using tbl to convert sensor codes to normalized values. rng controls
// patch sampling and must be non-nil for deterministic tests.
func Fit(s *rawseries.Series, tbl *rawseries.Tables, rng *rand.Rand) (Result, error) {
	n := len(s.Exposures)
	good := make([]bool, n)
	var allPatches []patch
	var patchList []patch

	maxTries := patchesPerExposure * maxTriesFactor
	goodExposures := 0

	for img := 0; img < n; img++ {
		allPatches = rejectStale(s, tbl, img, allPatches)

		tries := 0
		for ; tries < maxTries; tries++ {
			if len(allPatches) == patchesPerExposure {
				break
			}
			cand := randomPatch(rng, s.Width, s.Height)
			if !isGood(s, tbl, img, cand) {
				continue
			}
			if overlapsAny(cand, allPatches) {
				continue
			}
			allPatches = append(allPatches, cand)
			patchList = append(patchList, cand)
		}

		good[img] = len(allPatches) == patchesPerExposure
		log.Printf("exptime: exposure %d: found %d well-exposed uniform patches after %d tries",
			img, len(allPatches), tries)
		if good[img] {
			goodExposures++
		} else {
			log.Printf("exptime: exposure %d has too few good patches, excluding it from the fit", img)
		}
	}

	if goodExposures < minGoodExposures {
		return Result{}, fmt.Errorf("exptime: only %d good exposures found, need at least %d",
			goodExposures, minGoodExposures)
	}

	A, b := assembleModel(s, tbl, patchList, good, goodExposures)

	longest := longestGoodExposureTime(s, good)
	gaugeRow := len(b) - 1
	A.Set(gaugeRow, goodExposures-1, 1)
	b[gaugeRow] = math.Log2(longest)

	x, err := solveLeastSquares(A, b)
	if err != nil {
		return Result{}, fmt.Errorf("exptime: least squares solve: %w", err)
	}

	corrected := make([]float64, n)
	index := 0
	for img := 0; img < n; img++ {
		corrected[img] = s.Exposures[img].ExposureTime
		if !good[img] {
			continue
		}
		corrected[img] = math.Pow(2, x[index])
		index++
	}

	script := renderPlotScript(s, tbl, patchList, good, x, goodExposures)

	return Result{
		CorrectedTimes: corrected,
		GoodPatches:    len(patchList),
		GoodExposures:  goodExposures,
		PlotScript:     script,
	}, nil
}

// rejectStale drops every patch from patches that is no longer good on
// exposure img, mirroring fitexp.cpp's erase/remove_if at the top of
// each exposure's scan.
func rejectStale(s *rawseries.Series, tbl *rawseries.Tables, img int, patches []patch) []patch {
	kept := patches[:0]
	for _, p := range patches {
		if isGood(s, tbl, img, p) {
			kept = append(kept, p)
		}
	}
	return kept
}

func overlapsAny(p patch, patches []patch) bool {
	for _, q := range patches {
		if p.overlaps(q) {
			return true
		}
	}
	return false
}

// assembleModel builds the sparse (but densely stored) design matrix:
// one row per (patch, good exposure) pair where the patch is good on
// that exposure, one column per good exposure plus one column per
// patch. Row value is log2(observed green mean); row coefficients are
// 1 in the exposure's column and 1 in the patch's column, encoding
// log2(time_k) + log2(radiance_i) = log2(observed_mean).
func assembleModel(s *rawseries.Series, tbl *rawseries.Tables, patchList []patch, good []bool, goodExposures int) (*mat.Dense, []float64) {
	n := len(s.Exposures)

	nRows := 0
	for _, p := range patchList {
		for img := 0; img < n; img++ {
			if good[img] && isGood(s, tbl, img, p) {
				nRows++
			}
		}
	}

	cols := goodExposures + len(patchList)
	A := mat.NewDense(nRows+1, cols, nil)
	b := make([]float64, nRows+1)

	row := 0
	for i, p := range patchList {
		exposureIdx := 0
		for img := 0; img < n; img++ {
			if !good[img] {
				continue
			}
			if isGood(s, tbl, img, p) {
				A.Set(row, exposureIdx, 1)
				A.Set(row, goodExposures+i, 1)
				mean := greenMean(s, tbl, img, p)
				b[row] = math.Log2(mean)
				row++
			}
			exposureIdx++
		}
	}

	return A, b
}

func longestGoodExposureTime(s *rawseries.Series, good []bool) float64 {
	var longest float64
	for img := range s.Exposures {
		if good[img] {
			longest = s.Exposures[img].ExposureTime
		}
	}
	return longest
}

// solveLeastSquares is a thin wrapper over gonum's QR decomposition,
// standing in for the original's colPivHouseholderQr().solve().
func solveLeastSquares(A *mat.Dense, b []float64) ([]float64, error) {
	var qr mat.QR
	qr.Factorize(A)

	bVec := mat.NewVecDense(len(b), b)
	var x mat.VecDense
	if err := qr.SolveVecTo(&x, false, bVec); err != nil {
		return nil, err
	}
	out := make([]float64, x.Len())
	for i := range out {
		out[i] = x.AtVec(i)
	}
	return out, nil
}

// renderPlotScript mirrors exptime_showfit.m exactly: a three-column
// datapoints matrix (observed mean, fitted-time prediction,
// EXIF-time prediction), then two subplots -- EXIF-vs-observed on
// top, fitted-vs-observed on the bottom.
func renderPlotScript(s *rawseries.Series, tbl *rawseries.Tables, patchList []patch, good []bool, x []float64, goodExposures int) string {
	var sb strings.Builder
	sb.WriteString("datapoints = [\n")
	for i, p := range patchList {
		radiance := math.Pow(2, x[goodExposures+i])
		for img := range s.Exposures {
			if !good[img] || !isGood(s, tbl, img, p) {
				continue
			}
			meanVal := greenMean(s, tbl, img, p)
			fitted := radiance * math.Pow(2, x[exposureColumnIndex(good, img)])
			exifPredicted := radiance * s.Exposures[img].ExposureTime
			fmt.Fprintf(&sb, "  %g, %g, %g;\n", meanVal, fitted, exifPredicted)
		}
	}
	sb.WriteString("];\n")
	sb.WriteString("subplot(2,1,1);\n")
	sb.WriteString("plot(datapoints(:,3), datapoints(:,1), '.');\n")
	sb.WriteString("hold on;\n")
	sb.WriteString("title('Exposure times provided by the EXIF tags');\n")
	sb.WriteString("plot([0 1],[0 1], 'r');\n")
	sb.WriteString("subplot(2,1,2);\n")
	sb.WriteString("plot(datapoints(:,2), datapoints(:,1), '.');\n")
	sb.WriteString("hold on;\n")
	sb.WriteString("title('Fitted exposure times');\n")
	sb.WriteString("plot([0 1],[0 1], 'r');\n")
	return sb.String()
}

// exposureColumnIndex maps an absolute exposure index to its column in
// the design matrix (the count of good exposures before it).
func exposureColumnIndex(good []bool, img int) int {
	idx := 0
	for i := 0; i < img; i++ {
		if good[i] {
			idx++
		}
	}
	return idx
}
