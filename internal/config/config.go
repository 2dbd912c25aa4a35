// Package config loads the export configuration from YAML.
package config

import (
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/hailam/aethersprout/internal/nnue"
)

// Config controls an export. A zero or missing field in the file keeps its
// default.
type Config struct {
	// Dims are the network dimensions the trainer produced.
	Dims nnue.Dims `yaml:"dims"`

	// Scales overrides quantization scales by role name, e.g.
	// "gate_weight: 32". Roles not named keep nnue.DefaultScales.
	Scales map[string]float32 `yaml:"scales,omitempty"`

	// Parallel is the number of buckets encoded concurrently; 0 or 1 is
	// sequential.
	Parallel int `yaml:"parallel"`

	// Registry is the badger directory of the export history. Empty
	// disables recording.
	Registry string `yaml:"registry,omitempty"`
}

// Default returns the configuration of the production network.
func Default() *Config {
	return &Config{
		Dims: nnue.DefaultDims(),
	}
}

// Load reads a YAML file over Default and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over Default and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks dims, scales and parallelism. The king-bucket layout is
// fixed, so the bucket count must be nnue.BucketCount.
func (c *Config) Validate() error {
	if err := c.Dims.Validate(); err != nil {
		return err
	}
	if c.Dims.Buckets != nnue.BucketCount {
		return fmt.Errorf("%w: %d buckets, the king-bucket layout has %d",
			nnue.ErrDimMismatch, c.Dims.Buckets, nnue.BucketCount)
	}
	if c.Parallel < 0 {
		return fmt.Errorf("invalid parallel: %d", c.Parallel)
	}
	_, err := c.ExportScales()
	return err
}

// ExportScales resolves the per-role overrides against the defaults.
func (c *Config) ExportScales() (nnue.Scales, error) {
	scales := nnue.DefaultScales()
	names := make([]string, 0, len(c.Scales))
	for name := range c.Scales {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		role, err := nnue.ParseRole(name)
		if err != nil {
			return scales, err
		}
		scales.Set(role, c.Scales[name])
	}
	return scales, scales.Validate()
}

// Topology builds the parameter schema for the configured dims.
func (c *Config) Topology() (*nnue.Topology, error) {
	return nnue.NewTopology(c.Dims)
}

// Marshal encodes the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
