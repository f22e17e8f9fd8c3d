// Command fluxtest runs the flux pipeline on transcript and boundary CSV
// tables and prints a summary of the resulting embedding and domains.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"rnaflux/internal/config"
	"rnaflux/internal/enrich"
	"rnaflux/internal/flux"
	"rnaflux/internal/fluxmap"
	"rnaflux/internal/spatial"
	"rnaflux/internal/version"
)

func main() {
	transcriptsPath := flag.String("transcripts", "", "Path to transcripts CSV (cell,gene,x,y)")
	boundariesPath := flag.String("boundaries", "", "Path to cell boundaries CSV (cell,x,y)")
	nucleiPath := flag.String("nuclei", "", "Optional nucleus boundaries CSV (cell,x,y)")
	syncPoints := flag.Bool("sync", true, "Drop transcripts outside their cell boundary")
	configPath := flag.String("config", "rnaflux.yaml", "Path to pipeline config YAML")
	netPath := flag.String("net", "", "Optional gene-set network CSV (source,target,weight)")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	if *transcriptsPath == "" || *boundariesPath == "" {
		fmt.Println("Usage: fluxtest -transcripts <path> -boundaries <path> [-config rnaflux.yaml] [-net <path>]")
		os.Exit(1)
	}

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

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
	if *nucleiPath != "" {
		nuclei, err := spatial.LoadBoundariesFile(*nucleiPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load nuclei: %v\n", err)
			os.Exit(1)
		}
		ds.SetShapes(spatial.NucleusLayer, nuclei)
	}
	fmt.Printf("Loaded %d transcripts, %d genes, %d cells\n",
		points.Len(), vocab.Len(), boundaries.Len())

	if *syncPoints {
		removed, err := ds.SyncPoints(spatial.CellBoundariesLayer)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to sync transcripts: %v\n", err)
			os.Exit(1)
		}
		if removed > 0 {
			fmt.Printf("Dropped %d transcripts outside cell boundaries\n", removed)
		}
	}

	fmt.Printf("\nComputing flux embedding...\n")
	if err := flux.Compute(ds, cfg.FluxOptions(), log); err != nil {
		fmt.Fprintf(os.Stderr, "Flux failed: %v\n", err)
		os.Exit(1)
	}
	rt := ds.Raster()
	fmt.Printf("Embedded %d raster pixels into %d components\n", rt.Len(), len(rt.Embed[0]))
	fmt.Printf("Explained variance ratio:")
	for _, v := range ds.FluxVarianceRatio {
		fmt.Printf(" %.3f", v)
	}
	fmt.Println()

	fmt.Printf("\nSegmenting domains...\n")
	if err := fluxmap.Compute(ds, cfg.FluxmapOptions(), log); err != nil {
		fmt.Fprintf(os.Stderr, "Fluxmap failed: %v\n", err)
		os.Exit(1)
	}
	printDomains(ds)

	net := *netPath
	if net == "" {
		net = cfg.Enrich.NetPath
	}
	if net != "" {
		fmt.Printf("\nScoring gene-set enrichment...\n")
		links, err := enrich.LoadNetFile(net)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load net: %v\n", err)
			os.Exit(1)
		}
		opts := enrich.Options{BatchSize: *cfg.Enrich.BatchSize, MinN: cfg.Enrich.MinN}
		stats, err := enrich.Run(ds, links, opts, log)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Enrichment failed: %v\n", err)
			os.Exit(1)
		}
		printEnrichment(stats)
	}
}

func printDomains(ds *spatial.Dataset) {
	var layers []string
	for _, name := range ds.ShapeNames() {
		if strings.HasPrefix(name, fluxmap.LayerPrefix) {
			layers = append(layers, name)
		}
	}
	fmt.Printf("Selected %d domains:\n", len(layers))
	fmt.Printf("%-12s %8s %12s\n", "Layer", "Shapes", "Area")
	for _, name := range layers {
		layer, _ := ds.Shapes(name)
		var count int
		var area float64
		for _, g := range layer.Geoms {
			if !g.IsEmpty() {
				count++
				area += g.Area()
			}
		}
		fmt.Printf("%-12s %8d %12.1f\n", name, count, area)
	}
}

func printEnrichment(stats *enrich.Stats) {
	fmt.Printf("%-24s %8s %14s\n", "Gene set", "Size", "Mean overlap")
	for _, s := range stats.Sources {
		var total int
		for _, c := range stats.Counts[s] {
			total += c
		}
		mean := float64(total) / float64(len(stats.Cells))
		fmt.Printf("%-24s %8d %14.1f\n", s, stats.SetSizes[s], mean)
	}
}
