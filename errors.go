package dataflow

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by core operations. Callers should compare with
// errors.Is, never with ==, since operations often wrap these with
// collection and tag context.
var (
	// ErrNotReady is returned by Get when the requested item has not been
	// put yet. A step body that receives it from Get should return it
	// unchanged; the scheduler treats that as a request to suspend, not
	// as a failure.
	ErrNotReady = errors.New("dataflow: item not ready")

	// ErrGone is returned by Get when the requested item was already
	// reclaimed (its reference count reached zero and it was erased)
	// before this get was satisfied. Unlike ErrNotReady this can never
	// resolve by waiting longer.
	ErrGone = errors.New("dataflow: item already reclaimed")

	// ErrItemAlreadyPresent is returned by Put when a value has already
	// been put for the same tag and the item collection does not allow
	// redefinition.
	ErrItemAlreadyPresent = errors.New("dataflow: item already present")

	// ErrQuiescentButPending is returned by Context.Wait when the
	// scheduler ran out of runnable work while one or more step
	// instances remain suspended. It signals a dependency that will
	// never be satisfied, not a transient condition.
	ErrQuiescentButPending = errors.New("dataflow: quiescent but pending work remains")

	// ErrInvalidSafeState is returned by Reset, wrapped in a *FatalError,
	// when it is called while outstanding work remains or after a failure
	// has been recorded.
	ErrInvalidSafeState = errors.New("dataflow: operation requires a quiescent context")
)

// StepError reports a step body returning a non-NotReady error. It carries
// enough to log or re-surface the failure without losing which step
// instance produced it.
type StepError struct {
	Collection string
	Tag        Tag
	Err        error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("dataflow: step %s(%v) failed: %v", e.Collection, e.Tag, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// FatalKind classifies why a Context declared itself permanently unable to
// make progress.
type FatalKind int

const (
	// FatalStepFailure means a step body returned an error other than
	// ErrNotReady.
	FatalStepFailure FatalKind = iota
	// FatalQuiescentPending means the scheduler quiesced with suspended
	// instances still waiting on gets that will never be satisfied.
	FatalQuiescentPending
	// FatalInvalidSafeState means an operation requiring a quiescent
	// Context ran while work was outstanding.
	FatalInvalidSafeState
)

func (k FatalKind) String() string {
	switch k {
	case FatalStepFailure:
		return "step-failure"
	case FatalQuiescentPending:
		return "quiescent-but-pending"
	case FatalInvalidSafeState:
		return "invalid-safe-state"
	default:
		return "unknown"
	}
}

// FatalError is what Context.Wait returns when the Context can never reach
// a normal completion. It wraps the underlying cause so errors.Is/As still
// work against ErrQuiescentButPending, ErrInvalidSafeState, or a StepError.
type FatalError struct {
	Kind  FatalKind
	Cause error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("dataflow: fatal (%s): %v", e.Kind, e.Cause)
}

func (e *FatalError) Unwrap() error { return e.Cause }
