// Package config loads VM tuning parameters for the cmd/loxvm host.
//
// Configuration is optional: an absent loxvm.yaml falls back to the
// defaults the VM already uses internally, and any flag explicitly set
// on the command line overrides whatever the file says.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the VM's tunable knobs: the GC's starting threshold
// and growth factor, and two debug switches.
type Config struct {
	// InitialGCThreshold is the heap size in bytes at which the first
	// collection cycle runs. Zero means "use the VM's built-in default".
	InitialGCThreshold int `yaml:"initial_gc_threshold"`

	// GCGrowthFactor multiplies bytesAllocated to pick the next
	// collection threshold after a cycle completes. Zero means "use the
	// VM's built-in default" (2).
	GCGrowthFactor int `yaml:"gc_growth_factor"`

	// StressGC forces a collection on every single allocation. Useful
	// for shaking out GC-rooting bugs in new native functions or
	// compiler changes.
	StressGC bool `yaml:"stress_gc"`

	// TraceExecution disassembles every instruction to stderr as it
	// runs.
	TraceExecution bool `yaml:"trace_execution"`

	// TraceGC prints a line for every collection cycle (bytes
	// before/after, objects freed).
	TraceGC bool `yaml:"trace_gc"`
}

// Default returns the VM's built-in tuning, used when no config file is
// present and no flags override it.
func Default() Config {
	return Config{
		InitialGCThreshold: 1 << 20,
		GCGrowthFactor:     2,
	}
}

// Load reads and parses a YAML config file at path. A missing file is
// not an error: it returns Default() unchanged, since loxvm.yaml is
// optional.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("config: reading %s: %w", path, err)
	}

	// Decode onto the defaults so a file that only sets one field
	// leaves the others at their built-in values rather than zeroing
	// them.
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}
