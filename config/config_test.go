package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Cluster.MaxZoom != 18 {
		t.Errorf("MaxZoom = %d, want 18", cfg.Cluster.MaxZoom)
	}
	if cfg.Cluster.Radius != 80 {
		t.Errorf("Radius = %v, want 80", cfg.Cluster.Radius)
	}
	if !cfg.Animation.Enabled {
		t.Error("animation should be enabled by default")
	}
	if cfg.Derived.SettleDelay != 300*time.Millisecond {
		t.Errorf("SettleDelay = %v, want 300ms", cfg.Derived.SettleDelay)
	}
	if cfg.Derived.IdleTimeout != 30*time.Minute {
		t.Errorf("IdleTimeout = %v, want 30m", cfg.Derived.IdleTimeout)
	}
	if len(cfg.Script.Steps) == 0 {
		t.Error("default script has no steps")
	}
}

func TestLoadOverridesOnlyPresentFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	data := "cluster:\n  radius: 40\nanimation:\n  settle_delay_ms: 50\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Cluster.Radius != 40 {
		t.Errorf("Radius = %v, want 40", cfg.Cluster.Radius)
	}
	if cfg.Cluster.MaxZoom != 18 {
		t.Errorf("MaxZoom = %d, want default 18", cfg.Cluster.MaxZoom)
	}
	if cfg.Derived.SettleDelay != 50*time.Millisecond {
		t.Errorf("SettleDelay = %v, want 50ms", cfg.Derived.SettleDelay)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		data string
	}{
		{"malformed", "cluster: [1, 2\n"},
		{"inverted zooms", "cluster:\n  min_zoom: 10\n  max_zoom: 4\n"},
		{"zero radius", "cluster:\n  radius: 0\n"},
		{"negative delay", "animation:\n  settle_delay_ms: -1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".yaml")
			if err := os.WriteFile(path, []byte(tt.data), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Error("expected an error")
			}
		})
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestLoadNegativeMinZoom(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zoomed-out.yaml")
	if err := os.WriteFile(path, []byte("cluster:\n  min_zoom: -2\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Cluster.MinZoom != -2 {
		t.Errorf("MinZoom = %d, want -2", cfg.Cluster.MinZoom)
	}
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Cluster.MaxZoom = 12
	cfg.Script.Steps = []float64{1, 2.5, 4}

	path := filepath.Join(t.TempDir(), "out.yaml")
	if err := cfg.WriteYAML(path); err != nil {
		t.Fatalf("WriteYAML: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Cluster.MaxZoom != 12 {
		t.Errorf("MaxZoom = %d, want 12", got.Cluster.MaxZoom)
	}
	if len(got.Script.Steps) != 3 || got.Script.Steps[1] != 2.5 {
		t.Errorf("Steps = %v", got.Script.Steps)
	}
}
