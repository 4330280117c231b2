// Package engineerr defines the error taxonomy shared by every manager in
// the memory engine. Callers should use errors.Is against the sentinel
// Kind values and errors.As against *Error to recover structured fields.
package engineerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error the way the engine's callers need to branch on it.
type Kind string

const (
	// Validation means input violated a data-model invariant or a component
	// contract. Never retried.
	Validation Kind = "VALIDATION"
	// InvalidTransition means a requested state change is not in
	// VALID_TRANSITIONS. May carry a SuggestedState.
	InvalidTransition Kind = "INVALID_TRANSITION"
	// NotFound means a record, relationship target, or backup is absent.
	NotFound Kind = "NOT_FOUND"
	// Store means the underlying relational store failed (ECONNREFUSED,
	// BUSY, disk full, missing FTS table). Retried for idempotent reads up
	// to a bounded attempt count; fatal for writes.
	Store Kind = "STORE"
	// Timeout means a search strategy exceeded its configured deadline.
	Timeout Kind = "TIMEOUT"
	// Config means bootstrap configuration was invalid. Fatal.
	Config Kind = "CONFIG"
	// Parse means the model provider's response was not parseable JSON.
	// Recovered locally via the fallback record, never surfaced raw.
	Parse Kind = "PARSE"
	// OptimizationBusy means a maintenance operation was already running.
	OptimizationBusy Kind = "OPTIMIZATION_BUSY"
)

// Error is the concrete error type every component returns. Use Is/As to
// inspect it; do not string-match Error().
type Error struct {
	Kind            Kind
	Op              string // component/operation that raised it, e.g. "memory.Store"
	Message         string
	SuggestedState  string // set only for InvalidTransition
	Err             error  // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Op, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, engineerr.Validation) style checks by comparing
// Kind, since Kind is not itself an error type.
func (e *Error) Is(target error) bool {
	var k kindSentinel
	if errors.As(target, &k) {
		return e.Kind == Kind(k)
	}
	return false
}

type kindSentinel Kind

func (k kindSentinel) Error() string { return string(k) }

// sentinels lets callers write errors.Is(err, engineerr.ErrValidation).
var (
	ErrValidation        error = kindSentinel(Validation)
	ErrInvalidTransition error = kindSentinel(InvalidTransition)
	ErrNotFound          error = kindSentinel(NotFound)
	ErrStore             error = kindSentinel(Store)
	ErrTimeout           error = kindSentinel(Timeout)
	ErrConfig            error = kindSentinel(Config)
	ErrParse             error = kindSentinel(Parse)
	ErrOptimizationBusy  error = kindSentinel(OptimizationBusy)
)

// New builds an *Error for the given op/kind with a message.
func New(op string, kind Kind, msg string) *Error {
	return &Error{Op: op, Kind: kind, Message: msg}
}

// Wrap builds an *Error around a lower-level cause.
func Wrap(op string, kind Kind, msg string, err error) *Error {
	return &Error{Op: op, Kind: kind, Message: msg, Err: err}
}

// WithSuggestion attaches a suggested target state for INVALID_TRANSITION.
func (e *Error) WithSuggestion(state string) *Error {
	e.SuggestedState = state
	return e
}

// KindOf extracts the Kind from err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
