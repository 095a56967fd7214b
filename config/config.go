// Package config provides YAML-based configuration with embedded defaults.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all configuration.
type Config struct {
	Cluster   ClusterConfig   `yaml:"cluster"`
	Animation AnimationConfig `yaml:"animation"`
	Runner    RunnerConfig    `yaml:"runner"`
	Markers   MarkersConfig   `yaml:"markers"`
	Script    ScriptConfig    `yaml:"script"`

	Derived DerivedConfig `yaml:"-"`
}

// ClusterConfig holds the clustering parameters.
type ClusterConfig struct {
	MinZoom int     `yaml:"min_zoom"`
	MaxZoom int     `yaml:"max_zoom"`
	Radius  float64 `yaml:"radius"` // Grid cell size in pixels
	Extent  int     `yaml:"extent"` // Tile size in pixels
	Log     bool    `yaml:"log"`
}

// AnimationConfig holds the visibility animation parameters.
type AnimationConfig struct {
	Enabled         bool    `yaml:"enabled"`
	SettleDelayMS   int     `yaml:"settle_delay_ms"`  // Delay before redundant entities are removed
	ViewportPadding float64 `yaml:"viewport_padding"` // Fraction of the viewport added on each side
}

// RunnerConfig holds session management parameters.
type RunnerConfig struct {
	MaxSessions      int `yaml:"max_sessions"`
	IdleTimeoutS     int `yaml:"idle_timeout_s"`
	JanitorIntervalS int `yaml:"janitor_interval_s"`
}

// MarkersConfig holds marker file loading parameters.
type MarkersConfig struct {
	MmapThreshold int64 `yaml:"mmap_threshold"` // Plain files at least this large are memory mapped
}

// ScriptConfig is the zoom sequence replayed by the zoomsim command.
type ScriptConfig struct {
	Viewport ViewportConfig `yaml:"viewport"`
	Steps    []float64      `yaml:"steps"`
}

// ViewportConfig is a map rectangle in degrees.
type ViewportConfig struct {
	MinX float64 `yaml:"min_x"`
	MinY float64 `yaml:"min_y"`
	MaxX float64 `yaml:"max_x"`
	MaxY float64 `yaml:"max_y"`
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	SettleDelay     time.Duration
	IdleTimeout     time.Duration
	JanitorInterval time.Duration
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Only overwrites fields present in the file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.computeDerived()
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Cluster.MaxZoom > 24 || c.Cluster.MinZoom > c.Cluster.MaxZoom {
		return fmt.Errorf("invalid zoom range [%d, %d]", c.Cluster.MinZoom, c.Cluster.MaxZoom)
	}
	if c.Cluster.Radius <= 0 {
		return fmt.Errorf("cluster radius must be positive, got %v", c.Cluster.Radius)
	}
	if c.Animation.SettleDelayMS < 0 {
		return fmt.Errorf("settle delay must not be negative, got %d", c.Animation.SettleDelayMS)
	}
	return nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived.SettleDelay = time.Duration(c.Animation.SettleDelayMS) * time.Millisecond
	c.Derived.IdleTimeout = time.Duration(c.Runner.IdleTimeoutS) * time.Second
	c.Derived.JanitorInterval = time.Duration(c.Runner.JanitorIntervalS) * time.Second
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
