package models

import (
	"errors"
	"fmt"
)

// Error taxonomy for the prediction core. Hard provider failures (network,
// timeout, aborted, service) propagate to callers; absence of data never
// does, it feeds the cooldown path instead.

// ValidationError rejects malformed requests before any I/O happens.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// DataNotFoundError is the normal "no history for this pair" outcome. It
// triggers cooldown caching rather than propagation.
type DataNotFoundError struct {
	Resource string
}

func (e *DataNotFoundError) Error() string {
	return fmt.Sprintf("no data found for %s", e.Resource)
}

// NetworkError wraps transport-level failures from a collaborator.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network failure: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// TimeoutError marks a collaborator call that exceeded its deadline. It is a
// failure of that call, not a protocol error; retry policy lives with the
// caller through the dedup/cooldown rules.
type TimeoutError struct {
	Op  string
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: timed out: %v", e.Op, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// AbortedError marks a call cancelled by the caller's context.
type AbortedError struct {
	Op  string
	Err error
}

func (e *AbortedError) Error() string {
	return fmt.Sprintf("%s: aborted: %v", e.Op, e.Err)
}

func (e *AbortedError) Unwrap() error { return e.Err }

// ServiceError covers upstream hard failures that are neither timeouts nor
// transport errors: bad status codes, open circuit breaker, auth rejection.
type ServiceError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *ServiceError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: service error (status %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: service error: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// ComputationError is a worker-side failure. It is logged and the caller
// receives nil; no cooldown applies since the failure is not data-dependent.
type ComputationError struct {
	Stage string
	Err   error
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("computation failed at %s: %v", e.Stage, e.Err)
}

func (e *ComputationError) Unwrap() error { return e.Err }

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsDataNotFound(err error) bool {
	var nf *DataNotFoundError
	return errors.As(err, &nf)
}

func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

func IsService(err error) bool {
	var se *ServiceError
	return errors.As(err, &se)
}

func IsAborted(err error) bool {
	var ae *AbortedError
	return errors.As(err, &ae)
}

func IsComputation(err error) bool {
	var ce *ComputationError
	return errors.As(err, &ce)
}
