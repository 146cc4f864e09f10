package widgets

import "errors"

// kernelWaitTimeoutError signals that no kernel connected within the
// configured wait window (504 mapping).
type kernelWaitTimeoutError struct{}

func (kernelWaitTimeoutError) Error() string { return "timed out waiting for a kernel connection" }

// ErrKernelWaitTimeout constructs a kernel wait timeout error.
func ErrKernelWaitTimeout() error { return kernelWaitTimeoutError{} }

// IsKernelWaitTimeout reports whether err is a kernel wait timeout.
func IsKernelWaitTimeout(err error) bool {
	var e kernelWaitTimeoutError
	return errors.As(err, &e)
}

// stateRequestTimeoutError signals that a peer never answered request_state
// with an update within the configured window.
type stateRequestTimeoutError struct{ commID string }

func (e stateRequestTimeoutError) Error() string {
	return "timed out waiting for state of comm " + e.commID
}

// ErrStateRequestTimeout constructs a state request timeout error.
func ErrStateRequestTimeout(commID string) error { return stateRequestTimeoutError{commID: commID} }

// IsStateRequestTimeout reports whether err is a state request timeout.
func IsStateRequestTimeout(err error) bool {
	var e stateRequestTimeoutError
	return errors.As(err, &e)
}

// modelNotFoundError signals a lookup for a model id the registry does not hold.
type modelNotFoundError struct{ id string }

func (e modelNotFoundError) Error() string { return "model not found: " + e.id }

func ErrModelNotFound(id string) error { return modelNotFoundError{id: id} }

// IsModelNotFound reports whether the error indicates a missing model id.
func IsModelNotFound(err error) bool {
	var e modelNotFoundError
	return errors.As(err, &e)
}

// invalidSpecError signals a model spec that cannot identify a model:
// no comm, no model id, or missing class identity keys.
type invalidSpecError struct{ reason string }

func (e invalidSpecError) Error() string { return "invalid model spec: " + e.reason }

func ErrInvalidSpec(reason string) error { return invalidSpecError{reason: reason} }

// IsInvalidSpec reports whether err indicates a malformed model spec or state.
func IsInvalidSpec(err error) bool {
	var e invalidSpecError
	return errors.As(err, &e)
}

// closedError signals use of a manager after Close.
type closedError struct{}

func (closedError) Error() string { return "widget manager is closed" }

func ErrClosed() error { return closedError{} }

// IsClosed reports whether err indicates a closed manager.
func IsClosed(err error) bool {
	var e closedError
	return errors.As(err, &e)
}
