// Package pipeline implements the core admission-control solver: a directed
// multi-schema traffic graph, per-service capacity allocation, a
// backpressure fixpoint, and a status/action classifier.
//
// Everything in this package is deterministic and single-threaded. No
// function here performs I/O, logging, or network calls; callers (the
// cycle driver's caller) own those concerns.
package pipeline

import "errors"

// Sentinel errors for pipeline construction and resolution. Construction
// errors (ErrConfigInvalid) are fatal to the cycle; ZeroCapacity and
// NonConvergence are reported conditions surfaced on the CycleResult that
// RunCycle returns (for the caller to log), never returned as errors.
var (
	// ErrConfigInvalid indicates a malformed scenario: a schema referenced
	// by a service's flows is missing from its capacity map or from the
	// schema priority table, a downstream name does not resolve to a
	// declared service, a rate or capacity is negative, or min > max.
	ErrConfigInvalid = errors.New("pipeline: invalid configuration")

	// ErrZeroCapacity indicates a schema slot has current_capacity == 0
	// while incoming > 0; the slot is unallocatable and its service is
	// reported OVERLOADED.
	ErrZeroCapacity = errors.New("pipeline: zero capacity with nonzero incoming")

	// ErrNonConvergence indicates the resolver or the flow propagator hit
	// its iteration cap with work still pending.
	ErrNonConvergence = errors.New("pipeline: iteration cap reached before convergence")

	// ErrInvariantViolation indicates a broken core invariant (e.g.
	// allocated capacity exceeding current capacity after a pass). This is
	// a bug, not an operating condition; RunCycle aborts and returns it.
	ErrInvariantViolation = errors.New("pipeline: invariant violation")
)
