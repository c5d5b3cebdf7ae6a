// Package rawio is the only place this module talks to the outside
// world: decoding input frames and writing output images. Everything
// upstream of the RAW-decoder boundary (actual camera RAW parsing, CFA
// pattern recovery from a maker's proprietary format) is out of scope;
// this package stands in for that decoder with a 16-bit planar TIFF
// reader, matching the contract the core needs regardless of which
// real decoder eventually sits behind it.
//
// Grounded on the teacher's pkg/estack/load.go LoadTIFF: open the file
// once for github.com/rwcarlsen/goexif/exif metadata (ISO, FNumber,
// ExposureTime, ExposureMode, and the full tag set via Exif.Walk),
// then again for golang.org/x/image/tiff pixel data. Loading many
// files is embarrassingly parallel over files, mirroring the
// worker-pool shape of pkg/eclipse/alignment.go's
// scoreXFormsConcurrently (fixed pool draining a job channel), with
// each result stored at its input's index.
package rawio

import (
	"fmt"
	"image"
	"os"
	"runtime"
	"sync"

	"github.com/rwcarlsen/goexif/exif"
	goexiftiff "github.com/rwcarlsen/goexif/tiff"
	"golang.org/x/image/tiff"

	"github.com/abworrall/rawhdr/internal/rawseries"
)

// Frame is one decoded input frame: the RAW-decoder boundary's inbound
// contract (spec §6) plus the EXIF facts the core uses for validation
// and metadata passthrough.
type Frame struct {
	Width, Height int
	Pixels        []uint16 // row-major, one sample per pixel

	Blacklevel, Whitepoint uint16
	Filter                 uint32

	ExposureTime    float64 // seconds
	DisplayExposure string  // EXIF shutter speed as printed, e.g. "1/500"
	ISO             float64
	Aperture        float64

	// ManualExposure is true when the EXIF ExposureMode tag asserts
	// "Manual" (value 1); false for both "Auto"/"Auto bracket" and a
	// missing tag.
	ManualExposure bool

	// Tags is every EXIF tag this frame's decoder could read, keyed by
	// field name and formatted the way the tag prints. Oversized values
	// (thumbnails, maker-note blobs) are dropped, mirroring input.cpp's
	// check()'s 100-byte cutoff.
	Tags map[string]string
}

// Decoder turns a filename into a Frame. TIFFDecoder is the only
// implementation this module ships; real RAW support means writing
// another one.
type Decoder interface {
	Decode(filename string) (Frame, error)
}

// TIFFDecoder reads 16-bit planar TIFF files plus their EXIF tags,
// standing in for a real RAW decoder. It rejects anything that isn't
// a single-channel 16-bit plane, per the "Unsupported RAW" fatal error
// kind in the error-handling table.
type TIFFDecoder struct {
	// Blacklevel and Whitepoint are shared across the series; TIFF
	// carries neither, so the caller supplies them (from configuration
	// or sensor defaults).
	Blacklevel, Whitepoint uint16

	// Filter is the CFA descriptor; defaults to rawseries.FilterRGGB
	// when zero, since plain TIFF has no CFA tag either.
	Filter uint32
}

// Decode implements Decoder.
func (d TIFFDecoder) Decode(filename string) (Frame, error) {
	f := Frame{
		Blacklevel: d.Blacklevel,
		Whitepoint: d.Whitepoint,
		Filter:     d.Filter,
	}
	if f.Filter == 0 {
		f.Filter = rawseries.FilterRGGB
	}

	if err := decodeEXIF(filename, &f); err != nil {
		return Frame{}, fmt.Errorf("rawio: %s: %w", filename, err)
	}

	reader, err := os.Open(filename)
	if err != nil {
		return Frame{}, fmt.Errorf("rawio: open %s: %w", filename, err)
	}
	defer reader.Close()

	img, err := tiff.Decode(reader)
	if err != nil {
		return Frame{}, fmt.Errorf("rawio: decode %s: %w", filename, err)
	}

	gray, ok := img.(*image.Gray16)
	if !ok {
		return Frame{}, fmt.Errorf("rawio: %s: unsupported RAW: expected a single-channel 16-bit plane, got %T", filename, img)
	}

	b := gray.Bounds()
	f.Width, f.Height = b.Dx(), b.Dy()
	f.Pixels = make([]uint16, f.Width*f.Height)
	for y := 0; y < f.Height; y++ {
		row := gray.Pix[y*gray.Stride : y*gray.Stride+f.Width*2]
		for x := 0; x < f.Width; x++ {
			f.Pixels[y*f.Width+x] = uint16(row[x*2])<<8 | uint16(row[x*2+1])
		}
	}

	return f, nil
}

// tagCollector gathers every EXIF tag exif.Exif.Walk visits into a
// flat name->formatted-value map, mirroring input.cpp's check() loop
// over exifData that builds the passthrough StringMap.
type tagCollector map[string]string

func (c tagCollector) Walk(name exif.FieldName, tag *goexiftiff.Tag) error {
	val := tag.String()
	if len(val) > 100 {
		return nil // oversized attribute, ignore
	}
	c[string(name)] = val
	return nil
}

func decodeEXIF(filename string, f *Frame) error {
	reader, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("open for exif: %w", err)
	}
	defer reader.Close()

	ex, err := exif.Decode(reader)
	if err != nil {
		return fmt.Errorf("exif parse: %w", err)
	}

	tags := tagCollector{}
	if err := ex.Walk(tags); err == nil {
		f.Tags = tags
	}

	if tag, err := ex.Get(exif.ISOSpeedRatings); err == nil {
		if val, err := tag.Int64(0); err == nil {
			f.ISO = float64(val)
		}
	}

	if tag, err := ex.Get(exif.FNumber); err == nil {
		if num, denom, err := tag.Rat2(0); err == nil && denom != 0 {
			f.Aperture = float64(num) / float64(denom)
		}
	}

	if tag, err := ex.Get(exif.ExposureMode); err == nil {
		if val, err := tag.Int(0); err == nil {
			f.ManualExposure = val == 1
		}
	}

	tag, err := ex.Get(exif.ExposureTime)
	if err != nil {
		return fmt.Errorf("exif ExposureTime: %w", err)
	}
	num, denom, err := tag.Rat2(0)
	if err != nil {
		return fmt.Errorf("exif ExposureTime: %w", err)
	}
	if denom == 0 {
		return fmt.Errorf("exif ExposureTime: zero denominator")
	}
	f.ExposureTime = float64(num) / float64(denom)
	if denom == 1 {
		f.DisplayExposure = fmt.Sprintf("%d", num)
	} else {
		f.DisplayExposure = fmt.Sprintf("%d/%d", num, denom)
	}

	return nil
}

// LoadSeries decodes every filename into a Frame, in parallel (one
// decode per worker, per the concurrency model's "embarrassingly
// parallel over files"), and assembles a rawseries.Series from the
// results. Per-series facts (blacklevel, whitepoint, filter,
// dimensions) are taken from the first frame, matching
// input.cpp's ExposureSeries::add convention. saturation is the
// module's own threshold, since a TIFF carries no such tag.
func LoadSeries(d Decoder, filenames []string, saturation float64) (*rawseries.Series, error) {
	if len(filenames) == 0 {
		return nil, fmt.Errorf("rawio: no input files")
	}

	frames := make([]Frame, len(filenames))
	errs := make([]error, len(filenames))

	type job struct {
		index    int
		filename string
	}
	jobs := make(chan job, len(filenames))
	for i, fn := range filenames {
		jobs <- job{i, fn}
	}
	close(jobs)

	workers := runtime.NumCPU()
	if workers > len(filenames) {
		workers = len(filenames)
	}
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				frame, err := d.Decode(j.filename)
				frames[j.index] = frame
				errs[j.index] = err
			}
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("rawio: loading %s: %w", filenames[i], err)
		}
	}

	first := frames[0]
	s := &rawseries.Series{
		Width:      first.Width,
		Height:     first.Height,
		Blacklevel: first.Blacklevel,
		Whitepoint: first.Whitepoint,
		Filter:     first.Filter,
		Saturation: saturation,
		ISO:        first.ISO,
		Aperture:   first.Aperture,
		Metadata:   mergeTags(frames),
	}

	for i, frame := range frames {
		if frame.Width != first.Width || frame.Height != first.Height {
			return nil, fmt.Errorf("rawio: %s is %dx%d, series is %dx%d",
				filenames[i], frame.Width, frame.Height, first.Width, first.Height)
		}
		s.Exposures = append(s.Exposures, rawseries.Exposure{
			Filename:        filenames[i],
			ExposureTime:    frame.ExposureTime,
			DisplayExposure: frame.DisplayExposure,
			Image:           frame.Pixels,
			ManualExposure:  frame.ManualExposure,
		})
	}

	return s, nil
}

// mergeTags folds every frame's EXIF tag set into one passthrough map,
// the way input.cpp's check() merges each exposure's exifData into a
// single StringMap: a key seen with the same value again is left
// alone, a key seen with a different value gets the new value
// appended after "; ".
func mergeTags(frames []Frame) map[string]string {
	merged := map[string]string{}
	for _, frame := range frames {
		for k, v := range frame.Tags {
			current, ok := merged[k]
			switch {
			case !ok:
				merged[k] = v
			case current == v:
				// already recorded, nothing to do
			default:
				merged[k] = current + "; " + v
			}
		}
	}
	return merged
}
