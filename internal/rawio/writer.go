package rawio

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"

	"github.com/mdouchement/hdr/codec/rgbe"
	"github.com/mdouchement/hdr/hdrcolor"
)

// hdrPlane adapts a float32 plane to both image.Image and the
// hdr.Image interface rgbe.Encode requires (Bounds/At/ColorModel plus
// HDRAt/Size), the same minimal set the teacher's ImageStack and
// FusedImage implement over their own pixel storage.
type hdrPlane struct {
	width, height, channels int
	data                    []float32
}

func (p hdrPlane) ColorModel() color.Model { return hdrcolor.RGBModel }
func (p hdrPlane) Bounds() image.Rectangle { return image.Rect(0, 0, p.width, p.height) }
func (p hdrPlane) Size() int               { return p.width * p.height }

func (p hdrPlane) At(x, y int) color.Color { return p.HDRAt(x, y) }

func (p hdrPlane) HDRAt(x, y int) hdrcolor.Color {
	if p.channels == 1 {
		v := float64(p.data[y*p.width+x])
		return hdrcolor.RGB{R: v, G: v, B: v}
	}
	off := (y*p.width + x) * 3
	return hdrcolor.RGB{R: float64(p.data[off]), G: float64(p.data[off+1]), B: float64(p.data[off+2])}
}

// WriteHDR satisfies the output-writer boundary's single-channel and
// three-channel signatures (spec §6) for the high-dynamic-range case,
// using rgbe.Encode (the pack's only HDR codec) for the on-disk
// format. halfPrecision is accepted for signature fidelity but has no
// effect: Radiance RGBE is a fixed 4-byte-per-pixel mantissa/exponent
// encoding, not a half/single-float choice, so there is nothing to
// switch. metadata is not written: rgbe.Encode, unlike the original's
// OpenEXR writer, exposes no attribute side-channel to carry it.
func WriteHDR(path string, width, height, channels int, data []float32, metadata map[string]string, halfPrecision bool) error {
	if channels != 1 && channels != 3 {
		return fmt.Errorf("rawio: WriteHDR: channels must be 1 or 3, got %d", channels)
	}
	if len(data) != width*height*channels {
		return fmt.Errorf("rawio: WriteHDR: data has %d samples, want %dx%dx%d", len(data), width, height, channels)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("rawio: WriteHDR: %w", err)
	}
	defer f.Close()

	plane := hdrPlane{width: width, height: height, channels: channels, data: data}
	if err := rgbe.Encode(f, plane); err != nil {
		return fmt.Errorf("rawio: WriteHDR: encode %s: %w", path, err)
	}
	return nil
}

// srgbEncode is the sRGB transfer curve spec §6 names, applied before
// quantizing to 8 bits.
func srgbEncode(v float64) float64 {
	if v <= 0.0031308 {
		return 12.92 * v
	}
	return 1.055*math.Pow(v, 1/2.4) - 0.055
}

func quantize(v float64) uint8 {
	v = srgbEncode(v)
	q := math.Round(v * 255)
	if q < 0 {
		return 0
	}
	if q > 255 {
		return 255
	}
	return uint8(q)
}

// WriteLDR satisfies the output-writer boundary's low-dynamic-range
// signature: three-channel linear float data, sRGB-encoded and
// clamped to [0, 255] here, then PNG-encoded the way the teacher's
// pkg/estack/generate.go WritePNG does (image/png.Encode over a
// standard image.Image). The original writes 8-bit JPEG; PNG is used
// here since the pack carries no third-party JPEG encoder and
// image/png already covers the teacher's own LDR dump path.
func WriteLDR(path string, width, height int, data []float32) error {
	if len(data) != width*height*3 {
		return fmt.Errorf("rawio: WriteLDR: data has %d samples, want %dx%dx3", len(data), width, height)
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			off := (y*width + x) * 3
			img.SetRGBA(x, y, color.RGBA{
				R: quantize(float64(data[off])),
				G: quantize(float64(data[off+1])),
				B: quantize(float64(data[off+2])),
				A: 255,
			})
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("rawio: WriteLDR: %w", err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("rawio: WriteLDR: encode %s: %w", path, err)
	}
	return nil
}

// WritePlotScript dumps the exposure-time fitter's diagnostic
// plotting script to disk verbatim; the fitter builds the script's
// content, this just places it on the filesystem.
func WritePlotScript(path, script string) error {
	if err := os.WriteFile(path, []byte(script), 0644); err != nil {
		return fmt.Errorf("rawio: WritePlotScript: %w", err)
	}
	return nil
}
