package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Iron-Ham/allocpacer/internal/config"
	"github.com/Iron-Ham/allocpacer/internal/errors"
	"github.com/Iron-Ham/allocpacer/internal/logging"
	"github.com/Iron-Ham/allocpacer/internal/metrics"
	"github.com/Iron-Ham/allocpacer/internal/sim"
	"github.com/Iron-Ham/allocpacer/internal/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run mutators against a simulated collector",
	Long: `Run a set of allocating mutators against a simulated heap and concurrent
collector, pacing each allocation, then print what happened.

Flags override the matching config file values for this run only.`,
	Example: `  allocpacer simulate --mutators 8 --duration 5s
  allocpacer simulate --no-pacing --format json
  ALLOCPACER_PACING_MAX_DELAY_MS=50 allocpacer simulate`,
	Args: cobra.NoArgs,
	RunE: runSimulate,
}

var (
	simMutators   int
	simDuration   time.Duration
	simMaxDelayMs int
	simNoPacing   bool
	simCapacityMB int
	simSeed       int64
	simFormat     string
)

func init() {
	rootCmd.AddCommand(simulateCmd)

	simulateCmd.Flags().IntVarP(&simMutators, "mutators", "m", 0, "number of allocating goroutines")
	simulateCmd.Flags().DurationVarP(&simDuration, "duration", "d", 0, "how long to run")
	simulateCmd.Flags().IntVar(&simMaxDelayMs, "max-delay-ms", 0, "maximum pacing delay per allocation")
	simulateCmd.Flags().BoolVar(&simNoPacing, "no-pacing", false, "let mutators allocate unthrottled")
	simulateCmd.Flags().IntVar(&simCapacityMB, "capacity-mb", 0, "heap capacity in megabytes")
	simulateCmd.Flags().Int64Var(&simSeed, "seed", 0, "allocation size seed (0 picks one)")
	simulateCmd.Flags().StringVarP(&simFormat, "format", "f", sim.FormatText,
		"output format: "+strings.Join(sim.ValidFormats(), ", "))
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	applySimulateFlags(cmd, cfg)
	if !isValidFormat(simFormat) {
		return fmt.Errorf("invalid format %q: valid formats are %s", simFormat, strings.Join(sim.ValidFormats(), ", "))
	}

	logger, err := logging.NewLogger(cfg.Logging.File, cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := sim.Options{Config: cfg, Logger: logger}

	if cfg.Tracing.Enabled {
		tracer, err := tracing.Init(cfg.Tracing.ServiceName, cfg.Tracing.Output)
		if err != nil {
			return fmt.Errorf("failed to start tracing: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracer.Shutdown(shutdownCtx); err != nil {
				logger.Warn("failed to flush spans", "error", err.Error())
			}
		}()
		opts.Tracer = tracer
	}

	var wg conc.WaitGroup
	defer wg.Wait()

	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
		opts.Registerer = reg

		serveCtx, cancelServe := context.WithCancel(ctx)
		defer cancelServe()
		wg.Go(func() {
			if err := metrics.Serve(serveCtx, cfg.Metrics.Address, reg, logger); err != nil {
				logger.Error("metrics server failed", "error", err.Error())
			}
		})
	}

	res, err := sim.Run(ctx, opts)
	if err != nil {
		if errors.IsDomainError(err) {
			logger.Error("simulation aborted", "error", err.Error(), "severity", errors.GetSeverity(err).String())
		}
		return err
	}
	return sim.Write(cmd.OutOrStdout(), res, simFormat)
}

// applySimulateFlags overrides cfg with every flag set on the command line.
func applySimulateFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("mutators") {
		cfg.Simulation.Mutators = simMutators
	}
	if flags.Changed("duration") {
		cfg.Simulation.DurationMs = int(simDuration / time.Millisecond)
	}
	if flags.Changed("max-delay-ms") {
		cfg.Pacing.MaxDelayMs = simMaxDelayMs
	}
	if flags.Changed("no-pacing") {
		cfg.Pacing.Enabled = !simNoPacing
	}
	if flags.Changed("capacity-mb") {
		cfg.Heap.CapacityMB = simCapacityMB
	}
	if flags.Changed("seed") {
		cfg.Simulation.Seed = simSeed
	}
}

func isValidFormat(format string) bool {
	for _, f := range sim.ValidFormats() {
		if f == format {
			return true
		}
	}
	return false
}
