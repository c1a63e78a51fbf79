package errors

import "errors"

// Taxonomy of orchestrator failures. Each category carries enough
// context for the caller to decide whether retrying can help.

// ClientError is a bad request: an incompatible shape/image chosen by
// the caller, or an action invalid for the instance's current state.
// Never retried.
type ClientError struct {
	Reason string
}

func (e ClientError) Error() string {
	return "invalid request: " + e.Reason
}

// NotReadyError means a provider resource exists but has not reached the
// required state yet. Retried locally with bounded backoff.
type NotReadyError struct {
	Resource string
	State    string
}

func (e NotReadyError) Error() string {
	msg := e.Resource + " is not ready"
	if e.State != "" {
		msg += " (state " + e.State + ")"
	}
	return msg
}

// CapacityError means the provider is out of host capacity for the
// attempted shapes. Retrying later may help.
type CapacityError struct {
	Shapes             []string
	CompatibleFallback bool
}

func (e CapacityError) Error() string {
	if e.CompatibleFallback {
		return "out of host capacity: compatible fallback shapes were also exhausted"
	}
	return "out of host capacity and no compatible fallback shape"
}

// IncompatibleShapeError means the image cannot run on the shape.
// Retrying never helps; the caller must pick a different shape or image.
type IncompatibleShapeError struct {
	Shape   string
	ImageID string
}

func (e IncompatibleShapeError) Error() string {
	return "shape " + e.Shape + " is not compatible with the selected image; choose a different shape or image"
}

// DriftError means a provider-side resource unexpectedly disappeared.
// The ledger has already been corrected; the caller should clean up the
// subscription instead of retrying.
type DriftError struct {
	Resource string
	ID       string
}

func (e DriftError) Error() string {
	return e.Resource + " " + e.ID + " was deleted outside the platform; do not retry, clean up the subscription"
}

// InternalError wraps an unexpected provider or logic failure.
type InternalError struct {
	Step string
	Err  error
}

func (e InternalError) Error() string {
	return e.Step + " failed: " + e.Err.Error()
}

func (e InternalError) Unwrap() error { return e.Err }

// Classified provider failures. The provider client wraps its raw API
// errors into these at the transport boundary (see infra/oci), so the
// orchestrator never inspects provider error strings itself.

// ProviderNotFoundError: the provider does not know the resource.
type ProviderNotFoundError struct {
	Err error
}

func (e ProviderNotFoundError) Error() string { return "provider: not found: " + e.Err.Error() }
func (e ProviderNotFoundError) Unwrap() error { return e.Err }

// ProviderCapacityError: the provider is out of host capacity.
type ProviderCapacityError struct {
	Err error
}

func (e ProviderCapacityError) Error() string { return "provider: out of capacity: " + e.Err.Error() }
func (e ProviderCapacityError) Unwrap() error { return e.Err }

// ProviderIncompatibleError: the requested shape/image combination is
// rejected by the provider.
type ProviderIncompatibleError struct {
	Err error
}

func (e ProviderIncompatibleError) Error() string {
	return "provider: incompatible parameters: " + e.Err.Error()
}
func (e ProviderIncompatibleError) Unwrap() error { return e.Err }

func IsProviderNotFound(err error) bool {
	var e ProviderNotFoundError
	return errors.As(err, &e)
}

func IsProviderCapacity(err error) bool {
	var e ProviderCapacityError
	return errors.As(err, &e)
}

func IsProviderIncompatible(err error) bool {
	var e ProviderIncompatibleError
	return errors.As(err, &e)
}

// IsRetryable reports whether the failure is worth retrying from the
// caller's side.
func IsRetryable(err error) bool {
	var notReady NotReadyError
	var capacity CapacityError
	return errors.As(err, &notReady) || errors.As(err, &capacity)
}
