package config

import (
	"os"
	"path/filepath"
	"testing"

	"rnaflux/internal/flux"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Flux.Method != string(flux.MethodRadius) {
		t.Errorf("default method = %q, want radius", cfg.Flux.Method)
	}
	if *cfg.Flux.RadiusFraction != 0.25 {
		t.Errorf("default radius fraction = %g, want 0.25", *cfg.Flux.RadiusFraction)
	}
	if *cfg.Fluxmap.MinClusters != 2 || *cfg.Fluxmap.MaxClusters != 8 {
		t.Errorf("default cluster range = [%d, %d], want [2, 8]", *cfg.Fluxmap.MinClusters, *cfg.Fluxmap.MaxClusters)
	}
	if *cfg.Enrich.BatchSize != 10000 {
		t.Errorf("default batch size = %d, want 10000", *cfg.Enrich.BatchSize)
	}
}

func TestLoadAppliesDefaultsToPartialFile(t *testing.T) {
	path := writeConfig(t, `
flux:
  res: 0.5
  radius_absolute: 30
fluxmap:
  max_clusters: 5
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if *cfg.Flux.Res != 0.5 {
		t.Errorf("res = %g, want 0.5", *cfg.Flux.Res)
	}
	if cfg.Flux.RadiusAbsolute != 30 {
		t.Errorf("radius_absolute = %g, want 30", cfg.Flux.RadiusAbsolute)
	}
	// An absolute radius suppresses the fractional default.
	if *cfg.Flux.RadiusFraction != 0 {
		t.Errorf("radius_fraction = %g, want 0 when absolute is set", *cfg.Flux.RadiusFraction)
	}
	if *cfg.Fluxmap.MaxClusters != 5 {
		t.Errorf("max_clusters = %d, want 5", *cfg.Fluxmap.MaxClusters)
	}
	if *cfg.Fluxmap.MinClusters != 2 {
		t.Errorf("min_clusters = %d, want default 2", *cfg.Fluxmap.MinClusters)
	}
	if *cfg.Flux.TrainSize != 1 {
		t.Errorf("train_size = %g, want default 1", *cfg.Flux.TrainSize)
	}
}

func TestLoadKeepsExplicitZeros(t *testing.T) {
	// Zero is a valid seed and must survive loading; zeros written for other
	// keys surface downstream as validation errors instead of being silently
	// replaced by defaults.
	path := writeConfig(t, `
flux:
  random_state: 0
  train_size: 0
fluxmap:
  random_state: 0
  min_clusters: 0
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if *cfg.Flux.RandomState != 0 {
		t.Errorf("flux random_state = %d, want explicit 0", *cfg.Flux.RandomState)
	}
	if *cfg.Fluxmap.RandomState != 0 {
		t.Errorf("fluxmap random_state = %d, want explicit 0", *cfg.Fluxmap.RandomState)
	}
	if *cfg.Flux.TrainSize != 0 {
		t.Errorf("flux train_size = %g, want explicit 0", *cfg.Flux.TrainSize)
	}
	if *cfg.Fluxmap.MinClusters != 0 {
		t.Errorf("fluxmap min_clusters = %d, want explicit 0", *cfg.Fluxmap.MinClusters)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	path := writeConfig(t, "flux: [")
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestOptionConversion(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Flux.Method = "knn"
	cfg.Flux.KNeighbors = 15

	fo := cfg.FluxOptions()
	if fo.Method != flux.MethodKNN || fo.KNeighbors != 15 {
		t.Errorf("FluxOptions() = %+v", fo)
	}
	if fo.RandomState != 11 {
		t.Errorf("RandomState = %d, want 11", fo.RandomState)
	}

	mo := cfg.FluxmapOptions()
	want := *cfg.Fluxmap.MaxClusters - *cfg.Fluxmap.MinClusters + 1
	if len(mo.NClusters) != want {
		t.Errorf("NClusters has %d entries, want %d", len(mo.NClusters), want)
	}
	if mo.NClusters[0] != *cfg.Fluxmap.MinClusters {
		t.Errorf("NClusters starts at %d, want %d", mo.NClusters[0], *cfg.Fluxmap.MinClusters)
	}
}
