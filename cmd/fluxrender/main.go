// Command fluxrender renders the flux embedding or fluxmap domains of a
// dataset to a PNG image for visual inspection.
package main

import (
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/rs/zerolog"
	"golang.org/x/image/draw"

	"rnaflux/internal/config"
	"rnaflux/internal/flux"
	"rnaflux/internal/fluxmap"
	"rnaflux/internal/spatial"
	"rnaflux/internal/version"
)

func main() {
	transcriptsPath := flag.String("transcripts", "", "Path to transcripts CSV (cell,gene,x,y)")
	boundariesPath := flag.String("boundaries", "", "Path to cell boundaries CSV (cell,x,y)")
	configPath := flag.String("config", "rnaflux.yaml", "Path to pipeline config YAML")
	mode := flag.String("mode", "flux", "Render mode: flux (embedding colors) or domains (fluxmap labels)")
	outPath := flag.String("out", "flux.png", "Output PNG path")
	scale := flag.Int("scale", 4, "Integer upscale factor for the output image")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	if *transcriptsPath == "" || *boundariesPath == "" {
		fmt.Println("Usage: fluxrender -transcripts <path> -boundaries <path> [-mode flux|domains] [-out flux.png]")
		os.Exit(1)
	}
	if *scale < 1 {
		fmt.Fprintln(os.Stderr, "Scale must be at least 1")
		os.Exit(1)
	}

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	vocab, points, err := spatial.LoadTranscriptsFile(*transcriptsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load transcripts: %v\n", err)
		os.Exit(1)
	}
	boundaries, err := spatial.LoadBoundariesFile(*boundariesPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load boundaries: %v\n", err)
		os.Exit(1)
	}

	ds := spatial.NewDataset(vocab, points)
	ds.SetShapes(spatial.CellBoundariesLayer, boundaries)

	if err := flux.Compute(ds, cfg.FluxOptions(), log); err != nil {
		fmt.Fprintf(os.Stderr, "Flux failed: %v\n", err)
		os.Exit(1)
	}
	if *mode == "domains" {
		if err := fluxmap.Compute(ds, cfg.FluxmapOptions(), log); err != nil {
			fmt.Fprintf(os.Stderr, "Fluxmap failed: %v\n", err)
			os.Exit(1)
		}
	}

	img, err := renderRaster(ds.Raster(), *mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Render failed: %v\n", err)
		os.Exit(1)
	}
	out := upscale(img, *scale)

	f, err := os.Create(*outPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create output: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()
	if err := png.Encode(f, out); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode PNG: %v\n", err)
		os.Exit(1)
	}
	b := out.Bounds()
	fmt.Printf("Wrote %s (%dx%d)\n", *outPath, b.Dx(), b.Dy())
}

// renderRaster paints one pixel per raster point at its grid index.
func renderRaster(rt *spatial.RasterTable, mode string) (*image.RGBA, error) {
	if rt.Len() == 0 {
		return nil, fmt.Errorf("raster table is empty")
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for i := 0; i < rt.Len(); i++ {
		minX = math.Min(minX, rt.X[i])
		maxX = math.Max(maxX, rt.X[i])
		minY = math.Min(minY, rt.Y[i])
		maxY = math.Max(maxY, rt.Y[i])
	}
	ix := func(i int) int { return int(math.Round((rt.X[i] - minX) / rt.Step)) }
	iy := func(i int) int { return int(math.Round((rt.Y[i] - minY) / rt.Step)) }
	w := int(math.Round((maxX-minX)/rt.Step)) + 1
	h := int(math.Round((maxY-minY)/rt.Step)) + 1

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	switch mode {
	case "flux":
		for i := 0; i < rt.Len(); i++ {
			c, err := parseHexRGBA(rt.Color[i])
			if err != nil {
				return nil, fmt.Errorf("pixel %d: %w", i, err)
			}
			// Flip y so the image reads north-up.
			img.SetRGBA(ix(i), h-1-iy(i), c)
		}
	case "domains":
		maxLabel := 0
		for _, l := range rt.Label {
			if l > maxLabel {
				maxLabel = l
			}
		}
		if maxLabel == 0 {
			return nil, fmt.Errorf("no domain labels; run with -mode flux or compute fluxmap first")
		}
		palette := colorful.FastHappyPalette(maxLabel)
		for i := 0; i < rt.Len(); i++ {
			if rt.Label[i] == 0 {
				continue
			}
			r, g, b := palette[rt.Label[i]-1].Clamped().RGB255()
			img.SetRGBA(ix(i), h-1-iy(i), color.RGBA{R: r, G: g, B: b, A: 255})
		}
	default:
		return nil, fmt.Errorf("unknown mode %q", mode)
	}
	return img, nil
}

// parseHexRGBA parses "#rrggbbaa" as emitted by the flux color mapping.
func parseHexRGBA(s string) (color.RGBA, error) {
	var r, g, b, a uint8
	if _, err := fmt.Sscanf(s, "#%02x%02x%02x%02x", &r, &g, &b, &a); err != nil {
		return color.RGBA{}, fmt.Errorf("bad color %q: %w", s, err)
	}
	return color.RGBA{R: r, G: g, B: b, A: a}, nil
}

// upscale enlarges the raster by an integer factor with nearest-neighbor
// sampling so pixel boundaries stay sharp.
func upscale(src *image.RGBA, factor int) *image.RGBA {
	if factor == 1 {
		return src
	}
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx()*factor, b.Dy()*factor))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}
