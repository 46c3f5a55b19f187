// Package metrics exports pacer and collector observations to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Iron-Ham/allocpacer/internal/event"
	"github.com/Iron-Ham/allocpacer/internal/logging"
	"github.com/Iron-Ham/allocpacer/internal/pacer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pacer and collector collectors. It implements
// pacer.Recorder.
type Metrics struct {
	// Pacer metrics
	InstalledBudgetWords prometheus.Gauge
	InstalledTaxRate     prometheus.Gauge
	PhaseInstalls        *prometheus.CounterVec
	PacingDelay          prometheus.Histogram
	ForcedClaims         prometheus.Counter

	// Collector metrics
	Cycles           *prometheus.CounterVec
	CycleDuration    prometheus.Histogram
	ReclaimedBytes   prometheus.Counter
	FailedAllocation prometheus.Counter

	reg prometheus.Registerer
}

// delayBuckets mirror the pacer's power-of-two millisecond histogram:
// 1ms, 2ms, 4ms ... 2048ms.
var delayBuckets = prometheus.ExponentialBuckets(0.001, 2, 12)

// New registers every collector with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		InstalledBudgetWords: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "pacer_installed_budget_words",
				Help: "Budget in heap words installed by the last phase setup",
			},
		),
		InstalledTaxRate: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "pacer_installed_tax_rate",
				Help: "Tax rate installed by the last phase setup",
			},
		),
		PhaseInstalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pacer_phase_setups_total",
				Help: "Number of phase setups by phase",
			},
			[]string{"phase"},
		),
		PacingDelay: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pacer_delay_seconds",
				Help:    "Time allocations spent waiting for budget",
				Buckets: delayBuckets,
			},
		),
		ForcedClaims: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "pacer_forced_claims_total",
				Help: "Allocations that hit the maximum delay and proceeded into debt",
			},
		),
		Cycles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collector_cycles_total",
				Help: "Completed collection cycles by outcome",
			},
			[]string{"outcome"},
		),
		CycleDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "collector_cycle_duration_seconds",
				Help:    "Wall time from cycle start to the return to idle",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
			},
		),
		ReclaimedBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "collector_reclaimed_bytes_total",
				Help: "Bytes released by completed cycles",
			},
		),
		FailedAllocation: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "heap_failed_allocations_total",
				Help: "Allocations that did not fit in the heap",
			},
		),
		reg: reg,
	}
}

// PhaseInstalled implements pacer.Recorder.
func (m *Metrics) PhaseInstalled(phase pacer.Phase, budgetWords int64, taxRate float64) {
	m.InstalledBudgetWords.Set(float64(budgetWords))
	m.InstalledTaxRate.Set(taxRate)
	m.PhaseInstalls.WithLabelValues(phase.String()).Inc()
}

// AllocationPaced implements pacer.Recorder.
func (m *Metrics) AllocationPaced(delay time.Duration, forced bool) {
	m.PacingDelay.Observe(delay.Seconds())
	if forced {
		m.ForcedClaims.Inc()
	}
}

// WatchPacer registers gauges that read the live budget and tax rate on
// every scrape.
func (m *Metrics) WatchPacer(p *pacer.Pacer) {
	factory := promauto.With(m.reg)
	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "pacer_budget_words",
			Help: "Current budget in heap words; negative while mutators are in debt",
		},
		func() float64 {
			words, _ := p.State()
			return float64(words)
		},
	)
	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "pacer_tax_rate",
			Help: "Current tax rate",
		},
		func() float64 {
			_, tax := p.State()
			return tax
		},
	)
}

// WatchHeap registers gauges for heap occupancy.
func (m *Metrics) WatchHeap(h pacer.HeapInfo) {
	factory := promauto.With(m.reg)
	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "heap_used_bytes",
			Help: "Bytes currently occupied",
		},
		func() float64 { return float64(h.UsedBytes()) },
	)
	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "heap_capacity_bytes",
			Help: "Total heap capacity",
		},
		func() float64 { return float64(h.HeapCapacityBytes()) },
	)
}

// Subscribe feeds collector and heap events from bus into the counters.
// It returns the subscription IDs.
func (m *Metrics) Subscribe(bus *event.Bus) []string {
	return []string{
		bus.Subscribe(event.TypeCycleCompleted, func(e event.Event) {
			done, ok := e.(event.CycleCompletedEvent)
			if !ok {
				return
			}
			outcome := "concurrent"
			if done.Degenerated {
				outcome = "degenerated"
			}
			m.Cycles.WithLabelValues(outcome).Inc()
			m.CycleDuration.Observe(done.Duration.Seconds())
			m.ReclaimedBytes.Add(float64(done.ReclaimedBytes))
		}),
		bus.Subscribe(event.TypeAllocationFailed, func(event.Event) {
			m.FailedAllocation.Inc()
		}),
	}
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, logger *logging.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(g))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
