// Package config handles pipeline configuration loading for the rnaflux
// command-line tools.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"rnaflux/internal/flux"
	"rnaflux/internal/fluxmap"
)

// Config represents the pipeline configuration.
type Config struct {
	Flux    FluxConfig    `yaml:"flux"`
	Fluxmap FluxmapConfig `yaml:"fluxmap"`
	Enrich  EnrichConfig  `yaml:"enrich"`
}

// FluxConfig contains flux embedding settings. Fields where zero is a
// meaningful value are pointers so an absent key and an explicit zero stay
// distinguishable; Load fills absent keys with defaults.
type FluxConfig struct {
	Method         string   `yaml:"method"`
	KNeighbors     int      `yaml:"k_neighbors"`
	RadiusAbsolute float64  `yaml:"radius_absolute"`
	RadiusFraction *float64 `yaml:"radius_fraction"`
	Res            *float64 `yaml:"res"`
	TrainSize      *float64 `yaml:"train_size"`
	RandomState    *int64   `yaml:"random_state"`
	Workers        int      `yaml:"workers"`
}

// FluxmapConfig contains domain segmentation settings.
type FluxmapConfig struct {
	MinClusters   *int     `yaml:"min_clusters"`
	MaxClusters   *int     `yaml:"max_clusters"`
	NumIterations *int     `yaml:"num_iterations"`
	TrainSize     *float64 `yaml:"train_size"`
	RandomState   *int64   `yaml:"random_state"`
}

// EnrichConfig contains functional enrichment settings.
type EnrichConfig struct {
	NetPath   string `yaml:"net_path"`
	BatchSize *int   `yaml:"batch_size"`
	MinN      int    `yaml:"min_n"`
}

// Load reads configuration from a YAML file. A missing file yields the
// default configuration; a malformed one is an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultConfig(), nil
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() *Config {
	f := flux.DefaultOptions()
	fm := fluxmap.DefaultOptions()
	return &Config{
		Flux: FluxConfig{
			Method:         string(f.Method),
			RadiusFraction: fptr(f.RadiusFraction),
			Res:            fptr(f.Res),
			TrainSize:      fptr(f.TrainSize),
			RandomState:    i64ptr(f.RandomState),
		},
		Fluxmap: FluxmapConfig{
			MinClusters:   iptr(fm.NClusters[0]),
			MaxClusters:   iptr(fm.NClusters[len(fm.NClusters)-1]),
			NumIterations: iptr(fm.NumIterations),
			TrainSize:     fptr(fm.TrainSize),
			RandomState:   i64ptr(fm.RandomState),
		},
		Enrich: EnrichConfig{
			BatchSize: iptr(10000),
		},
	}
}

// applyDefaults fills keys absent from the file. Explicitly written values,
// zero included, are never touched.
func applyDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.Flux.Method == "" {
		cfg.Flux.Method = defaults.Flux.Method
	}
	if cfg.Flux.RadiusFraction == nil {
		if cfg.Flux.RadiusAbsolute > 0 {
			// An absolute radius suppresses the fractional default.
			cfg.Flux.RadiusFraction = fptr(0)
		} else {
			cfg.Flux.RadiusFraction = defaults.Flux.RadiusFraction
		}
	}
	if cfg.Flux.Res == nil {
		cfg.Flux.Res = defaults.Flux.Res
	}
	if cfg.Flux.TrainSize == nil {
		cfg.Flux.TrainSize = defaults.Flux.TrainSize
	}
	if cfg.Flux.RandomState == nil {
		cfg.Flux.RandomState = defaults.Flux.RandomState
	}
	if cfg.Fluxmap.MinClusters == nil {
		cfg.Fluxmap.MinClusters = defaults.Fluxmap.MinClusters
	}
	if cfg.Fluxmap.MaxClusters == nil {
		cfg.Fluxmap.MaxClusters = defaults.Fluxmap.MaxClusters
	}
	if cfg.Fluxmap.NumIterations == nil {
		cfg.Fluxmap.NumIterations = defaults.Fluxmap.NumIterations
	}
	if cfg.Fluxmap.TrainSize == nil {
		cfg.Fluxmap.TrainSize = defaults.Fluxmap.TrainSize
	}
	if cfg.Fluxmap.RandomState == nil {
		cfg.Fluxmap.RandomState = defaults.Fluxmap.RandomState
	}
	if cfg.Enrich.BatchSize == nil {
		cfg.Enrich.BatchSize = defaults.Enrich.BatchSize
	}
}

// FluxOptions converts the flux section to runtime options.
func (c *Config) FluxOptions() flux.Options {
	return flux.Options{
		Method:         flux.Method(c.Flux.Method),
		KNeighbors:     c.Flux.KNeighbors,
		RadiusAbsolute: c.Flux.RadiusAbsolute,
		RadiusFraction: *c.Flux.RadiusFraction,
		Res:            *c.Flux.Res,
		TrainSize:      *c.Flux.TrainSize,
		RandomState:    *c.Flux.RandomState,
		Workers:        c.Flux.Workers,
	}
}

// FluxmapOptions converts the fluxmap section to runtime options.
func (c *Config) FluxmapOptions() fluxmap.Options {
	return fluxmap.Options{
		NClusters:     fluxmap.ClusterRange(*c.Fluxmap.MinClusters, *c.Fluxmap.MaxClusters),
		NumIterations: *c.Fluxmap.NumIterations,
		TrainSize:     *c.Fluxmap.TrainSize,
		RandomState:   *c.Fluxmap.RandomState,
	}
}

func fptr(v float64) *float64 { return &v }

func iptr(v int) *int { return &v }

func i64ptr(v int64) *int64 { return &v }
