package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.DropPenalty != 1_000_000_000 {
		t.Fatalf("drop penalty: got %d", cfg.DropPenalty)
	}
	if cfg.MaxRideTime != 5000 {
		t.Fatalf("max ride time: got %d", cfg.MaxRideTime)
	}
	if cfg.RestSeconds != 1800 || cfg.RestMinOffset != 3600 || cfg.RestMinTail != 3600 {
		t.Fatalf("rest constants: %d/%d/%d", cfg.RestSeconds, cfg.RestMinOffset, cfg.RestMinTail)
	}
	if cfg.SpanCost != 100 || cfg.SoftDeliveryCost != 1000 {
		t.Fatalf("cost coefficients: %d/%d", cfg.SpanCost, cfg.SoftDeliveryCost)
	}
	if cfg.SolveTimeLimit != 5*time.Second {
		t.Fatalf("time limit: got %v", cfg.SolveTimeLimit)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("OSRM_BASE_URL", "http://roads:5000")
	t.Setenv("OSRM_MATRIX_PARAMS", "annotations=duration")
	t.Setenv("SOLVE_TIME_LIMIT_MS", "1500")
	t.Setenv("SKIP_REST", "true")
	t.Setenv("MAX_RIDE_TIME", "1234")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.OSRM.BaseURL != "http://roads:5000" {
		t.Fatalf("base url: got %q", cfg.OSRM.BaseURL)
	}
	if cfg.OSRM.MatrixParams != "annotations=duration" {
		t.Fatalf("matrix params: got %q", cfg.OSRM.MatrixParams)
	}
	if cfg.SolveTimeLimit != 1500*time.Millisecond {
		t.Fatalf("time limit: got %v", cfg.SolveTimeLimit)
	}
	if !cfg.Skip.Rest {
		t.Fatal("skip rest not applied")
	}
	if cfg.MaxRideTime != 1234 {
		t.Fatalf("max ride time: got %d", cfg.MaxRideTime)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("osrm:\n  base_url: http://file-roads:5000\n  batch_size: 25\nsolver_seed: 42\nskip:\n  compatibility: true\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	// Environment still wins over the file.
	t.Setenv("OSRM_BATCH_SIZE", "50")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.OSRM.BaseURL != "http://file-roads:5000" {
		t.Fatalf("base url: got %q", cfg.OSRM.BaseURL)
	}
	if cfg.OSRM.BatchSize != 50 {
		t.Fatalf("batch size: got %d", cfg.OSRM.BatchSize)
	}
	if cfg.SolverSeed != 42 {
		t.Fatalf("seed: got %d", cfg.SolverSeed)
	}
	if !cfg.Skip.Compatibility {
		t.Fatal("skip compatibility not applied")
	}
}

func TestLoadRejectsBadBatchSize(t *testing.T) {
	t.Setenv("OSRM_BATCH_SIZE", "1")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for batch size < 2")
	}
}
