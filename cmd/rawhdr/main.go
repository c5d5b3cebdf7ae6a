// Command rawhdr runs the merge/demosaic/color/geometry pipeline over
// a bracketed series of 16-bit TIFF stand-ins for RAW exposures,
// driven entirely by a YAML configuration file.
//
// Grounded on the teacher's cmd/eclipse-hdr/eclipse-hdr.go: flags
// parsed in init(), one linear main() building up state and calling
// into the library packages, a verbosity flag gating a YAML dump of
// the final configuration before work starts.
package main

import (
	"flag"
	"log"

	"github.com/abworrall/rawhdr/internal/config"
	"github.com/abworrall/rawhdr/internal/pipeline"
	"github.com/abworrall/rawhdr/internal/rawio"
)

var (
	fConfig    string
	fVerbosity int
)

func init() {
	flag.StringVar(&fConfig, "config", "", "path to the YAML configuration file")
	flag.IntVar(&fVerbosity, "v", 0, "how verbose to get")
	flag.Parse()

	log.Printf("rawhdr starting\n")
}

func main() {
	if fConfig == "" {
		log.Fatal("rawhdr: -config is required")
	}

	cfg, err := config.Load(fConfig)
	if err != nil {
		log.Fatal(err)
	}

	if fVerbosity > 0 {
		if y, err := cfg.AsYaml(); err == nil {
			log.Printf("Final configuration:-\n\n%s\n", y)
		}
	}

	decoder := rawio.TIFFDecoder{Blacklevel: cfg.Blacklevel, Whitepoint: cfg.Whitepoint}

	series, err := rawio.LoadSeries(decoder, cfg.Inputs, cfg.Saturation)
	if err != nil {
		log.Fatal(err)
	}

	metadata := series.Metadata

	result, err := pipeline.Run(series, cfg.PipelineConfig())
	if err != nil {
		log.Fatal(err)
	}

	if err := writeResult(cfg, result, metadata); err != nil {
		log.Fatal(err)
	}

	if result.ExposureTimeFit != nil {
		if err := rawio.WritePlotScript(cfg.Output+".m", result.ExposureTimeFit.PlotScript); err != nil {
			log.Printf("rawhdr: writing diagnostic plot script: %v\n", err)
		}
	}

	log.Printf("rawhdr: wrote %s (%dx%d, %d channels)\n", cfg.Output, result.Width, result.Height, result.Channels)
}

func writeResult(cfg config.Configuration, result *pipeline.Result, metadata map[string]string) error {
	switch cfg.OutputFormat {
	case "png":
		if result.Channels != 3 {
			log.Fatalf("rawhdr: skip_demosaic with output_format=png has no color image to write")
		}
		return rawio.WriteLDR(cfg.Output, result.Width, result.Height, result.Image)
	default:
		return rawio.WriteHDR(cfg.Output, result.Width, result.Height, result.Channels, result.Image, metadata, cfg.HalfPrecision)
	}
}
