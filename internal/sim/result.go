package sim

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/Iron-Ham/allocpacer/internal/pacer"
	"gopkg.in/yaml.v3"
)

// Result summarizes one simulation run.
type Result struct {
	RunID             string        `json:"run_id" yaml:"run_id"`
	Seed              uint64        `json:"seed" yaml:"seed"`
	Elapsed           time.Duration `json:"elapsed_ns" yaml:"elapsed"`
	Mutators          int           `json:"mutators" yaml:"mutators"`
	PacingEnabled     bool          `json:"pacing_enabled" yaml:"pacing_enabled"`
	Allocations       uint64        `json:"allocations" yaml:"allocations"`
	AllocatedBytes    uint64        `json:"allocated_bytes" yaml:"allocated_bytes"`
	FailedAllocations uint64        `json:"failed_allocations" yaml:"failed_allocations"`
	CompletedCycles   uint64        `json:"completed_cycles" yaml:"completed_cycles"`
	DegeneratedCycles uint64        `json:"degenerated_cycles" yaml:"degenerated_cycles"`
	ReclaimedBytes    uint64        `json:"reclaimed_bytes" yaml:"reclaimed_bytes"`
	HeapUsedBytes     uint64        `json:"heap_used_bytes" yaml:"heap_used_bytes"`
	MaxPaceLatency    time.Duration `json:"max_pace_latency_ns" yaml:"max_pace_latency"`
	Pacer             pacer.Report  `json:"pacer" yaml:"pacer"`
}

// Output formats for Write.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// ValidFormats returns the formats Write accepts.
func ValidFormats() []string {
	return []string{FormatText, FormatJSON, FormatYAML}
}

// Write renders r to w in format.
func Write(w io.Writer, r *Result, format string) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	case FormatText, "":
		return writeText(w, r)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func writeText(w io.Writer, r *Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Run:\t%s\n", r.RunID)
	fmt.Fprintf(tw, "Elapsed:\t%s\n", r.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(tw, "Mutators:\t%d\n", r.Mutators)
	fmt.Fprintf(tw, "Pacing:\t%v\n", r.PacingEnabled)
	fmt.Fprintf(tw, "Allocations:\t%d (%d MB)\n", r.Allocations, r.AllocatedBytes>>20)
	fmt.Fprintf(tw, "Failed allocations:\t%d\n", r.FailedAllocations)
	fmt.Fprintf(tw, "Cycles:\t%d concurrent, %d degenerated\n", r.CompletedCycles, r.DegeneratedCycles)
	fmt.Fprintf(tw, "Reclaimed:\t%d MB\n", r.ReclaimedBytes>>20)
	fmt.Fprintf(tw, "Max pace latency:\t%s\n", r.MaxPaceLatency.Round(time.Microsecond))
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(w)

	if !r.PacingEnabled {
		return nil
	}
	return pacer.WriteReport(w, r.Pacer)
}
