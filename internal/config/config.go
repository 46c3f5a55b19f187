package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/Iron-Ham/allocpacer/internal/pacer"
	"github.com/spf13/viper"
)

// Config represents the complete allocpacer configuration
type Config struct {
	Pacing     PacingConfig     `mapstructure:"pacing" yaml:"pacing"`
	Heap       HeapConfig       `mapstructure:"heap" yaml:"heap"`
	Collector  CollectorConfig  `mapstructure:"collector" yaml:"collector"`
	Simulation SimulationConfig `mapstructure:"simulation" yaml:"simulation"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
	Tracing    TracingConfig    `mapstructure:"tracing" yaml:"tracing"`
}

// PacingConfig holds the pacer's startup settings. These are read once;
// changing them requires building a new pacer.
type PacingConfig struct {
	// Enabled turns allocation pacing on. When false the collector never
	// installs budgets and mutators allocate unthrottled.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// CycleSlackPercent is the share of free space exempt from tax during a
	// concurrent cycle (default: 10)
	CycleSlackPercent int `mapstructure:"cycle_slack_percent" yaml:"cycle_slack_percent"`
	// IdleSlackPercent is the share of heap capacity granted between cycles (default: 2)
	IdleSlackPercent int `mapstructure:"idle_slack_percent" yaml:"idle_slack_percent"`
	// MaxDelayMs bounds how long one allocation waits before proceeding anyway (default: 10)
	MaxDelayMs int `mapstructure:"max_delay_ms" yaml:"max_delay_ms"`
	// SleepQuantumUs is the slow-path sleep between claim attempts in microseconds (default: 1000)
	SleepQuantumUs int `mapstructure:"sleep_quantum_us" yaml:"sleep_quantum_us"`
}

// HeapConfig controls the simulated heap
type HeapConfig struct {
	// CapacityMB is the total heap size in megabytes (default: 1024)
	CapacityMB int `mapstructure:"capacity_mb" yaml:"capacity_mb"`
}

// CollectorConfig controls the simulated concurrent collector
type CollectorConfig struct {
	// TickMs is how often the collector advances its current phase (default: 1)
	TickMs int `mapstructure:"tick_ms" yaml:"tick_ms"`
	// WorkRateMBPerSec is how many bytes of phase work the collector completes per second (default: 4096)
	WorkRateMBPerSec int `mapstructure:"work_rate_mb_per_sec" yaml:"work_rate_mb_per_sec"`
	// TriggerPercent is the heap occupancy that starts a cycle (default: 70)
	TriggerPercent int `mapstructure:"trigger_percent" yaml:"trigger_percent"`
	// GarbagePercent is the share of used bytes reclaimed by each cycle (default: 60)
	GarbagePercent int `mapstructure:"garbage_percent" yaml:"garbage_percent"`
	// CollectionSetLivePercent is the share of used bytes still live in the
	// collection set and therefore copied during evacuation (default: 15)
	CollectionSetLivePercent int `mapstructure:"cset_live_percent" yaml:"cset_live_percent"`
}

// SimulationConfig controls the mutator workload
type SimulationConfig struct {
	// Mutators is the number of concurrently allocating goroutines (default: 4)
	Mutators int `mapstructure:"mutators" yaml:"mutators"`
	// DurationMs is how long a simulation runs (default: 2000)
	DurationMs int `mapstructure:"duration_ms" yaml:"duration_ms"`
	// AllocMinBytes and AllocMaxBytes bound the size of a single allocation
	AllocMinBytes int `mapstructure:"alloc_min_bytes" yaml:"alloc_min_bytes"`
	AllocMaxBytes int `mapstructure:"alloc_max_bytes" yaml:"alloc_max_bytes"`
	// Seed makes allocation sizes reproducible; 0 picks a random seed
	Seed int64 `mapstructure:"seed" yaml:"seed"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level" yaml:"level"`
	// Format is the output format: "json", "text", "console" (default: "console")
	Format string `mapstructure:"format" yaml:"format"`
	// File is the log file path; empty logs to stderr
	File string `mapstructure:"file" yaml:"file"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	// Enabled serves /metrics for the lifetime of a run (default: false)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Address is the listen address for the metrics server (default: ":9090")
	Address string `mapstructure:"address" yaml:"address"`
}

// TracingConfig controls OpenTelemetry span export
type TracingConfig struct {
	// Enabled exports a span per collection cycle and phase (default: false)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// ServiceName is the otel service name (default: "allocpacer")
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	// Output is the file spans are written to; empty writes to stdout
	Output string `mapstructure:"output" yaml:"output"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Pacing: PacingConfig{
			Enabled:           true,
			CycleSlackPercent: 10,
			IdleSlackPercent:  2,
			MaxDelayMs:        10,
			SleepQuantumUs:    1000,
		},
		Heap: HeapConfig{
			CapacityMB: 1024,
		},
		Collector: CollectorConfig{
			TickMs:                   1,
			WorkRateMBPerSec:         4096,
			TriggerPercent:           70,
			GarbagePercent:           60,
			CollectionSetLivePercent: 15,
		},
		Simulation: SimulationConfig{
			Mutators:      4,
			DurationMs:    2000,
			AllocMinBytes: 64,
			AllocMaxBytes: 32 * 1024,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Metrics: MetricsConfig{
			Address: ":9090",
		},
		Tracing: TracingConfig{
			ServiceName: "allocpacer",
		},
	}
}

// MaxDelay returns the maximum pacing delay as a time.Duration
func (c *PacingConfig) MaxDelay() time.Duration {
	return time.Duration(c.MaxDelayMs) * time.Millisecond
}

// SleepQuantum returns the slow-path sleep as a time.Duration
func (c *PacingConfig) SleepQuantum() time.Duration {
	return time.Duration(c.SleepQuantumUs) * time.Microsecond
}

// ToPacer converts the validated settings into a pacer.Config
func (c *PacingConfig) ToPacer() pacer.Config {
	return pacer.Config{
		Enabled:           c.Enabled,
		CycleSlackPercent: uint(c.CycleSlackPercent),
		IdleSlackPercent:  uint(c.IdleSlackPercent),
		MaxDelay:          c.MaxDelay(),
	}
}

// CapacityBytes returns the heap capacity in bytes
func (c *HeapConfig) CapacityBytes() uint64 {
	return uint64(c.CapacityMB) << 20
}

// Tick returns the collector tick as a time.Duration
func (c *CollectorConfig) Tick() time.Duration {
	return time.Duration(c.TickMs) * time.Millisecond
}

// Duration returns the simulation length as a time.Duration
func (c *SimulationConfig) Duration() time.Duration {
	return time.Duration(c.DurationMs) * time.Millisecond
}

// SetDefaults registers default values with the global viper instance
func SetDefaults() {
	SetDefaultsOn(viper.GetViper())
}

// SetDefaultsOn registers default values with v
func SetDefaultsOn(v *viper.Viper) {
	defaults := Default()

	// Pacing defaults
	v.SetDefault("pacing.enabled", defaults.Pacing.Enabled)
	v.SetDefault("pacing.cycle_slack_percent", defaults.Pacing.CycleSlackPercent)
	v.SetDefault("pacing.idle_slack_percent", defaults.Pacing.IdleSlackPercent)
	v.SetDefault("pacing.max_delay_ms", defaults.Pacing.MaxDelayMs)
	v.SetDefault("pacing.sleep_quantum_us", defaults.Pacing.SleepQuantumUs)

	// Heap defaults
	v.SetDefault("heap.capacity_mb", defaults.Heap.CapacityMB)

	// Collector defaults
	v.SetDefault("collector.tick_ms", defaults.Collector.TickMs)
	v.SetDefault("collector.work_rate_mb_per_sec", defaults.Collector.WorkRateMBPerSec)
	v.SetDefault("collector.trigger_percent", defaults.Collector.TriggerPercent)
	v.SetDefault("collector.garbage_percent", defaults.Collector.GarbagePercent)
	v.SetDefault("collector.cset_live_percent", defaults.Collector.CollectionSetLivePercent)

	// Simulation defaults
	v.SetDefault("simulation.mutators", defaults.Simulation.Mutators)
	v.SetDefault("simulation.duration_ms", defaults.Simulation.DurationMs)
	v.SetDefault("simulation.alloc_min_bytes", defaults.Simulation.AllocMinBytes)
	v.SetDefault("simulation.alloc_max_bytes", defaults.Simulation.AllocMaxBytes)
	v.SetDefault("simulation.seed", defaults.Simulation.Seed)

	// Logging defaults
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.format", defaults.Logging.Format)
	v.SetDefault("logging.file", defaults.Logging.File)

	// Metrics defaults
	v.SetDefault("metrics.enabled", defaults.Metrics.Enabled)
	v.SetDefault("metrics.address", defaults.Metrics.Address)

	// Tracing defaults
	v.SetDefault("tracing.enabled", defaults.Tracing.Enabled)
	v.SetDefault("tracing.service_name", defaults.Tracing.ServiceName)
	v.SetDefault("tracing.output", defaults.Tracing.Output)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom is Load against a specific viper instance.
func LoadFrom(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "allocpacer")
	}
	// Fall back to ~/.config/allocpacer
	home, err := os.UserHomeDir()
	if err != nil {
		return ".allocpacer"
	}
	return filepath.Join(home, ".config", "allocpacer")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
