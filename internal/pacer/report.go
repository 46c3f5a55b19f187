package pacer

import (
	"bufio"
	"fmt"
	"io"
	"time"
)

// Report is a point-in-time snapshot of the pacer for export.
type Report struct {
	MaxDelayMs  uint64   `json:"max_delay_ms" yaml:"max_delay_ms"`
	Phase       string   `json:"phase" yaml:"phase"`
	BudgetWords int64    `json:"budget_words" yaml:"budget_words"`
	TaxRate     float64  `json:"tax_rate" yaml:"tax_rate"`
	Total       uint64   `json:"total" yaml:"total"`
	Buckets     []Bucket `json:"buckets" yaml:"buckets"`
}

// Snapshot captures the current budget, tax rate and delay histogram.
func (p *Pacer) Snapshot() Report {
	words, tax := p.budget.Read()
	return Report{
		MaxDelayMs:  uint64(p.cfg.MaxDelay / time.Millisecond),
		Phase:       p.Phase().String(),
		BudgetWords: words,
		TaxRate:     tax,
		Total:       p.delays.Total(),
		Buckets:     p.delays.Buckets(),
	}
}

// PrintReport writes the operator-facing pacing summary and delay
// histogram to w.
func (p *Pacer) PrintReport(w io.Writer) error {
	return WriteReport(w, p.Snapshot())
}

// WriteReport renders r in the fixed text layout used by PrintReport.
func WriteReport(w io.Writer, r Report) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, "ALLOCATION PACING:")
	fmt.Fprintln(bw)

	fmt.Fprintf(bw, "Max pacing delay is set for %d ms.\n", r.MaxDelayMs)
	fmt.Fprintln(bw)

	fmt.Fprintln(bw, "Higher delay would prevent application outpacing the GC, but it will hide the GC latencies")
	fmt.Fprintln(bw, "from the STW pause times. Pacing affects the individual threads, and so it would also be")
	fmt.Fprintln(bw, "invisible to the usual profiling tools, but would add up to end-to-end application latency.")
	fmt.Fprintln(bw, "Raise max pacing delay with care.")
	fmt.Fprintln(bw)

	fmt.Fprintln(bw, "Actual pacing delays histogram:")
	fmt.Fprintln(bw)

	fmt.Fprintf(bw, "%10s - %10s %12s\n", "From", "To", "Count")
	for _, b := range r.Buckets {
		fmt.Fprintf(bw, "%7d ms - %7d ms:", b.FromMs, b.ToMs)
		fmt.Fprintf(bw, "%12d\n", b.Count)
	}
	fmt.Fprintln(bw)

	return bw.Flush()
}
