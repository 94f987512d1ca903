// Package perrors defines the uniform error taxonomy used across the
// gateway core: a single struct carrying a classification code, a message
// and an optional cause, with errors.As/errors.Is support instead of
// string matching on error text.
package perrors

import (
	"errors"
	"fmt"
)

// Kind classifies a PipelineError for logging, retry policy and the
// user-visible reply the stage framework falls back to.
type Kind string

const (
	KindConfig      Kind = "CONFIG_ERROR"
	KindAdapter     Kind = "ADAPTER_ERROR"
	KindRequester   Kind = "REQUESTER_ERROR"
	KindTool        Kind = "TOOL_ERROR"
	KindCommand     Kind = "COMMAND_ERROR"
	KindPlugin      Kind = "PLUGIN_ERROR"
	KindSession     Kind = "SESSION_ERROR"
	KindInternal    Kind = "INTERNAL_ERROR"
	KindShuttingDown Kind = "SHUTTING_DOWN"
)

// PipelineError is the uniform error type propagated through the pipeline.
type PipelineError struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap exposes the cause so errors.Is/errors.As can traverse it.
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// New builds a PipelineError of the given kind.
func New(kind Kind, message string, cause error) *PipelineError {
	return &PipelineError{Kind: kind, Message: message, Cause: cause}
}

// IsRetryable reports whether the error kind represents a transient
// condition an adapter layer may reasonably retry. The runner itself never
// retries transport errors; this classifier exists for the
// adapter/requester layer.
func (e *PipelineError) IsRetryable() bool {
	switch e.Kind {
	case KindRequester, KindAdapter:
		return true
	default:
		return false
	}
}

// Convenience constructors, one per Kind except KindShuttingDown, which is
// covered by the ErrShuttingDown sentinel.

func NewConfig(message string, cause error) *PipelineError { return New(KindConfig, message, cause) }
func NewAdapter(message string, cause error) *PipelineError { return New(KindAdapter, message, cause) }
func NewRequester(message string, cause error) *PipelineError {
	return New(KindRequester, message, cause)
}
func NewTool(message string, cause error) *PipelineError { return New(KindTool, message, cause) }
func NewCommand(message string, cause error) *PipelineError { return New(KindCommand, message, cause) }
func NewPlugin(message string, cause error) *PipelineError { return New(KindPlugin, message, cause) }
func NewSession(message string, cause error) *PipelineError { return New(KindSession, message, cause) }
func NewInternal(message string, cause error) *PipelineError {
	return New(KindInternal, message, cause)
}

// ErrShuttingDown is returned by the query pool once shutdown has begun.
var ErrShuttingDown = New(KindShuttingDown, "query pool is shutting down", nil)

// KindOf extracts the Kind from err if it is (or wraps) a *PipelineError,
// otherwise returns KindInternal.
func KindOf(err error) Kind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}

// Is reports whether err is a PipelineError of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
