// Package errors provides centralized error definitions and error handling utilities
// for allocpacer. It defines domain-specific errors, semantic error types,
// error constructors with context wrapping, and error classification helpers.
//
// # Error Types
//
// Domain-specific errors represent errors from specific subsystems:
//   - PacerError: contract violations inside the allocation pacer
//   - HeapError: allocation failures in the simulated heap
//   - CollectorError: phase driver failures (ordering, degenerated cycles)
//
// Semantic errors represent common error conditions:
//   - ValidationError: invalid input or configuration
//
// # Usage
//
//	err := errors.NewPacerError("setup for mark", errors.ErrNoTaxableSpace).WithPhase("mark")
//
//	if errors.Is(err, errors.ErrNoTaxableSpace) { ... }
//
//	var heapErr *errors.HeapError
//	if errors.As(err, &heapErr) { ... }
//
// The pacer core never returns errors. It panics with a *PacerError when a
// caller breaks its contract, so these values show up in recovered panics and
// in the simulator's error returns.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Pacer-related sentinel errors
var (
	// ErrPacingDisabled indicates a pacer entry point was called while pacing is off.
	ErrPacingDisabled = New("pacing is disabled")
	// ErrNoTaxableSpace indicates a phase setup found no taxable free space.
	ErrNoTaxableSpace = New("no taxable free space")
)

// Heap-related sentinel errors
var (
	// ErrHeapExhausted indicates an allocation did not fit in the remaining capacity.
	ErrHeapExhausted = New("heap exhausted")
)

// Collector-related sentinel errors
var (
	// ErrPhaseOrder indicates a phase transition out of the strict cycle order.
	ErrPhaseOrder = New("phase transition out of order")
	// ErrDegeneratedCycle indicates the concurrent cycle fell back to a degenerated one.
	ErrDegeneratedCycle = New("degenerated cycle")
)

// General sentinel errors
var (
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// PacerFault is the base interface for all allocpacer errors.
type PacerFault interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the error is transient and the operation
	// may succeed on retry.
	IsRetryable() bool
}

// baseError provides common functionality for all error types.
type baseError struct {
	message   string
	cause     error
	severity  Severity
	retryable bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// format renders "prefix [k=v, ...]: message: cause".
func (e *baseError) format(prefix string, parts []string) string {
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", prefix, strings.Join(parts, ", "))
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// PacerError represents a broken pacer contract. These are programming
// errors on the caller's side and are raised as panics.
//
// Example:
//
//	err := errors.NewPacerError("pace for allocation", errors.ErrPacingDisabled)
//	fmt.Println(err) // "pacer error: pace for allocation: pacing is disabled"
type PacerError struct {
	baseError
	Phase string
}

// NewPacerError creates a new PacerError.
func NewPacerError(message string, cause error) *PacerError {
	return &PacerError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityCritical,
		},
	}
}

// WithPhase adds the collection phase to the error context.
func (e *PacerError) WithPhase(phase string) *PacerError {
	e.Phase = phase
	return e
}

// Error returns the formatted error message.
func (e *PacerError) Error() string {
	var parts []string
	if e.Phase != "" {
		parts = append(parts, fmt.Sprintf("phase=%s", e.Phase))
	}
	return e.format("pacer error", parts)
}

// Is checks if this error matches the target.
func (e *PacerError) Is(target error) bool {
	if _, ok := target.(*PacerError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// HeapError represents a failed allocation against the simulated heap.
//
// Example:
//
//	err := errors.NewHeapError("allocate", errors.ErrHeapExhausted).WithRequest(4096, 1024)
type HeapError struct {
	baseError
	RequestedBytes uint64
	FreeBytes      uint64
}

// NewHeapError creates a new HeapError. Heap exhaustion is retryable: the
// collector may free space before the next attempt.
func NewHeapError(message string, cause error) *HeapError {
	return &HeapError{
		baseError: baseError{
			message:   message,
			cause:     cause,
			severity:  SeverityWarning,
			retryable: true,
		},
	}
}

// WithRequest records the requested and available byte counts.
func (e *HeapError) WithRequest(requested, free uint64) *HeapError {
	e.RequestedBytes = requested
	e.FreeBytes = free
	return e
}

// Error returns the formatted error message.
func (e *HeapError) Error() string {
	var parts []string
	if e.RequestedBytes > 0 {
		parts = append(parts, fmt.Sprintf("requested=%d", e.RequestedBytes))
		parts = append(parts, fmt.Sprintf("free=%d", e.FreeBytes))
	}
	return e.format("heap error", parts)
}

// Is checks if this error matches the target.
func (e *HeapError) Is(target error) bool {
	if _, ok := target.(*HeapError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// CollectorError represents a failure in the collector's phase driver.
//
// Example:
//
//	err := errors.NewCollectorError("enter evacuation", errors.ErrPhaseOrder).
//	    WithPhase("idle").WithCycle(3)
type CollectorError struct {
	baseError
	Phase string
	Cycle uint64
}

// NewCollectorError creates a new CollectorError.
func NewCollectorError(message string, cause error) *CollectorError {
	return &CollectorError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityError,
		},
	}
}

// WithPhase adds the phase the driver was in.
func (e *CollectorError) WithPhase(phase string) *CollectorError {
	e.Phase = phase
	return e
}

// WithCycle adds the collection cycle number.
func (e *CollectorError) WithCycle(cycle uint64) *CollectorError {
	e.Cycle = cycle
	return e
}

// WithSeverity sets the error severity.
func (e *CollectorError) WithSeverity(s Severity) *CollectorError {
	e.severity = s
	return e
}

// Error returns the formatted error message.
func (e *CollectorError) Error() string {
	var parts []string
	if e.Phase != "" {
		parts = append(parts, fmt.Sprintf("phase=%s", e.Phase))
	}
	if e.Cycle > 0 {
		parts = append(parts, fmt.Sprintf("cycle=%d", e.Cycle))
	}
	return e.format("collector error", parts)
}

// Is checks if this error matches the target.
func (e *CollectorError) Is(target error) bool {
	if _, ok := target.(*CollectorError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// ValidationError represents invalid input or state.
//
// Example:
//
//	err := errors.NewValidationError("mutator count must be positive")
//	err = err.WithField("simulation.mutators").WithValue(0)
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:  message,
			severity: SeverityWarning,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}
	return e.format("validation error", parts)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if errors.Is(target, ErrInvalidInput) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var fault PacerFault
	if As(err, &fault) {
		return fault.IsRetryable()
	}
	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement PacerFault.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var fault PacerFault
	if As(err, &fault) {
		return fault.Severity()
	}
	return SeverityError
}

// IsDomainError returns true if the error is a domain-specific error
// (PacerError, HeapError, or CollectorError).
func IsDomainError(err error) bool {
	if err == nil {
		return false
	}

	var pacerErr *PacerError
	var heapErr *HeapError
	var collectorErr *CollectorError

	return As(err, &pacerErr) || As(err, &heapErr) || As(err, &collectorErr)
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
