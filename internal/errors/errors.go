// Package errors classifies failures of the workload controller into the
// classes that decide whether a reconcile is retried, deferred or halted.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

// Class is the error class of a failed operation.
type Class string

const (
	// ClassNone is the class of a nil error.
	ClassNone Class = ""
	// ClassConfigInvalid means the desired state is invalid. Fatal at startup,
	// halts the identity at runtime.
	ClassConfigInvalid Class = "ConfigInvalid"
	// ClassNotFound means the object does not exist on the cluster.
	ClassNotFound Class = "NotFound"
	// ClassAlreadyExists means another actor created the object first.
	ClassAlreadyExists Class = "AlreadyExists"
	// ClassConflict means the resourceVersion used for an update was stale.
	ClassConflict Class = "Conflict"
	// ClassTransport covers network failures, timeouts and server-side
	// transient errors.
	ClassTransport Class = "TransportError"
	// ClassFatal covers authentication and authorization failures.
	ClassFatal Class = "Fatal"
)

var (
	// ErrConfigInvalid indicates an invalid desired-state document.
	ErrConfigInvalid = errors.New("invalid desired-state configuration")

	// ErrNotFound indicates a missing object or workload.
	ErrNotFound = errors.New("not found")

	// ErrTransport indicates a failure to reach the control plane.
	ErrTransport = errors.New("transport error")

	// ErrFatal indicates a failure that must be surfaced to the operator
	// instead of being retried.
	ErrFatal = errors.New("fatal error")
)

// WrapConfigInvalid marks err as a ConfigInvalid error.
func WrapConfigInvalid(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrConfigInvalid) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrConfigInvalid, err)
}

// WrapTransport marks err as a transport error.
func WrapTransport(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTransport) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransport, err)
}

// WrapFatal marks err as fatal.
func WrapFatal(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrFatal) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrFatal, err)
}

// Classify maps err to its Class. Sentinel errors win over API status
// errors; anything unrecognised is treated as a transport error so it is
// retried with backoff.
func Classify(err error) Class {
	if err == nil {
		return ClassNone
	}

	switch {
	case errors.Is(err, ErrConfigInvalid):
		return ClassConfigInvalid
	case errors.Is(err, ErrFatal):
		return ClassFatal
	case errors.Is(err, ErrTransport):
		return ClassTransport
	case errors.Is(err, ErrNotFound):
		return ClassNotFound
	}

	switch {
	case apierrors.IsNotFound(err):
		return ClassNotFound
	case apierrors.IsAlreadyExists(err):
		return ClassAlreadyExists
	case apierrors.IsConflict(err):
		return ClassConflict
	case apierrors.IsUnauthorized(err), apierrors.IsForbidden(err):
		return ClassFatal
	case apierrors.IsInvalid(err), apierrors.IsBadRequest(err):
		return ClassConfigInvalid
	}

	return ClassTransport
}

// IsTransportFailure reports whether err looks like a network-level failure
// rather than an API status returned by the server.
func IsTransportFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransport) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if apierrors.IsTimeout(err) || apierrors.IsServerTimeout(err) ||
		apierrors.IsTooManyRequests(err) || apierrors.IsServiceUnavailable(err) ||
		apierrors.IsInternalError(err) || apierrors.IsUnexpectedServerError(err) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection refused",
		"connection reset",
		"i/o timeout",
		"no such host",
		"network is unreachable",
		"broken pipe",
		"eof",
	} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

// Retryable reports whether a failure of class c should be retried with
// backoff. Fatal and ConfigInvalid failures halt reconciliation instead.
func Retryable(c Class) bool {
	switch c {
	case ClassFatal, ClassConfigInvalid:
		return false
	default:
		return true
	}
}
