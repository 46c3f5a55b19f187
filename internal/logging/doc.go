// Package logging provides structured logging for pacer simulations.
//
// It wraps Go's log/slog with persistent context attributes (run ID,
// collector phase, mutator index) carried by child loggers.
//
// # Formats
//
//   - json: one JSON object per line, for post-hoc analysis
//   - text: slog's key=value handler
//   - console: colored output from github.com/lmittmann/tint
//
// # Thread Safety
//
// [Logger] is safe for concurrent use. Child loggers created via the With*
// methods share the underlying handler.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("/tmp/allocpacer/run.log", "INFO", "json")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	runLogger := logger.WithRun(runID)
//	runLogger.WithPhase("mark").Info("pacer for mark", "tax_rate", 33.0)
//
// Use [NopLogger] in tests or when logging is disabled.
package logging
