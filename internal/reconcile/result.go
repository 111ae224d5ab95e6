package reconcile

import (
	"time"

	workloaderrors "github.com/2170chm/spread-workload/internal/errors"
)

// Outcome is the result of one reconcile cycle.
type Outcome string

const (
	OutcomeCreated Outcome = "Created"
	OutcomeUpdated Outcome = "Updated"
	OutcomeNoOp    Outcome = "NoOp"
	OutcomeFailed  Outcome = "Failed"
)

// Result is produced once per reconcile cycle and consumed by the driver to
// decide when the identity is reconciled next.
type Result struct {
	Outcome Outcome
	// Class is the error class when Outcome is Failed.
	Class workloaderrors.Class
	// Err carries the error detail when Outcome is Failed.
	Err error
	// Duration is the wall time of the cycle.
	Duration time.Duration
	// Unrecognised is true for a Failed result whose error matched no known
	// class and was retried as a transport error by default.
	Unrecognised bool
}

// Failed builds a Failed result from err.
func Failed(err error) Result {
	class := workloaderrors.Classify(err)
	return Result{
		Outcome:      OutcomeFailed,
		Class:        class,
		Err:          err,
		Unrecognised: class == workloaderrors.ClassTransport && !workloaderrors.IsTransportFailure(err),
	}
}

// Succeeded reports whether the cycle converged.
func (r Result) Succeeded() bool {
	return r.Outcome != OutcomeFailed
}

// Terminal reports whether the result halts reconciliation of the identity.
func (r Result) Terminal() bool {
	return r.Outcome == OutcomeFailed && !workloaderrors.Retryable(r.Class)
}
