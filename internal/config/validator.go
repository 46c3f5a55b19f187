package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Iron-Ham/allocpacer/internal/errors"
	"github.com/Iron-Ham/allocpacer/internal/logging"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "pacing.max_delay_ms")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// Is lets callers match any config failure with errors.ErrInvalidInput.
func (e ValidationError) Is(target error) bool {
	return target == errors.ErrInvalidInput
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Is reports a non-empty collection as errors.ErrInvalidInput.
func (e ValidationErrors) Is(target error) bool {
	return len(e) > 0 && target == errors.ErrInvalidInput
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError

	errs = append(errs, c.validatePacing()...)
	errs = append(errs, c.validateHeap()...)
	errs = append(errs, c.validateCollector()...)
	errs = append(errs, c.validateSimulation()...)
	errs = append(errs, c.validateLogging()...)
	errs = append(errs, c.validateMetrics()...)

	return errs
}

// percentField checks that value is in [0, 100).
func percentField(field string, value int) []ValidationError {
	if value < 0 || value >= 100 {
		return []ValidationError{{
			Field:   field,
			Value:   value,
			Message: "must be between 0 and 99",
		}}
	}
	return nil
}

func positiveField(field string, value int) []ValidationError {
	if value <= 0 {
		return []ValidationError{{
			Field:   field,
			Value:   value,
			Message: "must be positive",
		}}
	}
	return nil
}

// validatePacing validates the PacingConfig
func (c *Config) validatePacing() []ValidationError {
	var errs []ValidationError

	errs = append(errs, percentField("pacing.cycle_slack_percent", c.Pacing.CycleSlackPercent)...)
	errs = append(errs, percentField("pacing.idle_slack_percent", c.Pacing.IdleSlackPercent)...)

	if c.Pacing.MaxDelayMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "pacing.max_delay_ms",
			Value:   c.Pacing.MaxDelayMs,
			Message: "must be non-negative",
		})
	}

	errs = append(errs, positiveField("pacing.sleep_quantum_us", c.Pacing.SleepQuantumUs)...)

	return errs
}

// validateHeap validates the HeapConfig
func (c *Config) validateHeap() []ValidationError {
	return positiveField("heap.capacity_mb", c.Heap.CapacityMB)
}

// validateCollector validates the CollectorConfig
func (c *Config) validateCollector() []ValidationError {
	var errs []ValidationError

	errs = append(errs, positiveField("collector.tick_ms", c.Collector.TickMs)...)
	errs = append(errs, positiveField("collector.work_rate_mb_per_sec", c.Collector.WorkRateMBPerSec)...)

	if c.Collector.TriggerPercent <= 0 || c.Collector.TriggerPercent > 100 {
		errs = append(errs, ValidationError{
			Field:   "collector.trigger_percent",
			Value:   c.Collector.TriggerPercent,
			Message: "must be between 1 and 100",
		})
	}

	errs = append(errs, percentField("collector.garbage_percent", c.Collector.GarbagePercent)...)
	errs = append(errs, percentField("collector.cset_live_percent", c.Collector.CollectionSetLivePercent)...)

	// Live and garbage bytes in the collection set share the used region
	if c.Collector.GarbagePercent+c.Collector.CollectionSetLivePercent > 100 {
		errs = append(errs, ValidationError{
			Field:   "collector.cset_live_percent",
			Value:   c.Collector.CollectionSetLivePercent,
			Message: fmt.Sprintf("plus garbage_percent (%d) must not exceed 100", c.Collector.GarbagePercent),
		})
	}

	return errs
}

// validateSimulation validates the SimulationConfig
func (c *Config) validateSimulation() []ValidationError {
	var errs []ValidationError

	errs = append(errs, positiveField("simulation.mutators", c.Simulation.Mutators)...)
	errs = append(errs, positiveField("simulation.duration_ms", c.Simulation.DurationMs)...)
	errs = append(errs, positiveField("simulation.alloc_min_bytes", c.Simulation.AllocMinBytes)...)

	if c.Simulation.AllocMaxBytes < c.Simulation.AllocMinBytes {
		errs = append(errs, ValidationError{
			Field:   "simulation.alloc_max_bytes",
			Value:   c.Simulation.AllocMaxBytes,
			Message: fmt.Sprintf("must be at least alloc_min_bytes (%d)", c.Simulation.AllocMinBytes),
		})
	}

	return errs
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errs []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if c.Logging.Format != "" && !slices.Contains(logging.ValidFormats(), c.Logging.Format) {
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Value:   c.Logging.Format,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(logging.ValidFormats(), ", ")),
		})
	}

	return errs
}

// validateMetrics validates the MetricsConfig
func (c *Config) validateMetrics() []ValidationError {
	if c.Metrics.Enabled && strings.TrimSpace(c.Metrics.Address) == "" {
		return []ValidationError{{
			Field:   "metrics.address",
			Value:   c.Metrics.Address,
			Message: "must be set when metrics are enabled",
		}}
	}
	return nil
}
