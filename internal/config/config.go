// Package config decodes the engine's own settings: adjacency space
// sizing, the service-class quality tolerance table, and trace/probe
// tuning. It does not decode Policy/Action HCL (that grammar lives in
// internal/policy, decoded per call against whatever an operator submits
// through the control plane) — this package is the engine's own startup
// configuration file, in the shape the teacher decodes its own top-level
// Config.
package config

import (
	"fmt"

	"github.com/hashicorp/hcl/v2/hclsimple"

	"grimm.is/linkpath/internal/quality"
)

// Config is the engine's top-level settings block.
type Config struct {
	SchemaVersion string `hcl:"schema_version,optional" json:"schema_version,omitempty"`

	AdjacencySpace int `hcl:"adjacency_space,optional" json:"adjacency_space,omitempty"`

	TraceBufferSize int     `hcl:"trace_buffer_size,optional" json:"trace_buffer_size,omitempty"`
	TraceSampleRate float64 `hcl:"trace_sample_rate,optional" json:"trace_sample_rate,omitempty"`

	Probe        *ProbeConfig         `hcl:"probe,block" json:"probe,omitempty"`
	ServiceClass []ServiceClassConfig `hcl:"service_class,block" json:"service_classes,omitempty"`
}

// ProbeConfig tunes the active ICMP quality prober.
type ProbeConfig struct {
	IntervalSeconds int `hcl:"interval_seconds,optional" json:"interval_seconds,omitempty"`
	Count           int `hcl:"count,optional" json:"count,omitempty"`
}

// ServiceClassConfig overrides one entry of the default service-class
// tolerance table (internal/quality.DefaultTable).
type ServiceClassConfig struct {
	Name        string  `hcl:"name,label" json:"name"`
	MaxLossPct  float64 `hcl:"max_loss_pct,optional" json:"max_loss_pct,omitempty"`
	MaxDelayMs  float64 `hcl:"max_delay_ms,optional" json:"max_delay_ms,omitempty"`
	MaxJitterMs float64 `hcl:"max_jitter_ms,optional" json:"max_jitter_ms,omitempty"`
}

// DefaultConfig returns the engine's built-in defaults, used when no HCL
// file is supplied.
func DefaultConfig() *Config {
	return &Config{
		SchemaVersion:   "1",
		AdjacencySpace:  4096,
		TraceBufferSize: 4096,
		TraceSampleRate: 1.0,
		Probe: &ProbeConfig{
			IntervalSeconds: 5,
			Count:           5,
		},
	}
}

// Load decodes an HCL file into a Config, filling in DefaultConfig's
// values for anything the file omits.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := hclsimple.DecodeFile(path, nil, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return cfg, nil
}

// LoadBytes decodes HCL source held in memory, for tests and for
// control-plane-pushed configuration.
func LoadBytes(filename string, src []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := hclsimple.Decode(filename, src, nil, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", filename, err)
	}
	return cfg, nil
}

// QualityTable builds the quality.Tolerance table this Config describes,
// starting from quality.DefaultTable and applying any ServiceClass
// overrides.
func (c *Config) QualityTable() quality.Table {
	table := make(quality.Table, len(quality.DefaultTable))
	for class, tol := range quality.DefaultTable {
		table[class] = tol
	}
	for _, sc := range c.ServiceClass {
		table[quality.ServiceClass(sc.Name)] = quality.Tolerance{
			MaxLoss:   sc.MaxLossPct,
			MaxDelay:  sc.MaxDelayMs,
			MaxJitter: sc.MaxJitterMs,
		}
	}
	return table
}
