package jupyter

import "errors"

// notConnectedError signals an operation that needs a live kernel websocket
// while the client is between connections.
type notConnectedError struct{}

func (notConnectedError) Error() string { return "kernel websocket is not connected" }

// ErrNotConnected constructs a not-connected error.
func ErrNotConnected() error { return notConnectedError{} }

// IsNotConnected reports whether err indicates a missing kernel connection.
func IsNotConnected(err error) bool {
	var e notConnectedError
	return errors.As(err, &e)
}

// commClosedError signals a send on a comm handle that has been closed,
// locally or by the kernel.
type commClosedError struct{ id string }

func (e commClosedError) Error() string { return "comm is closed: " + e.id }

// ErrCommClosed constructs a closed-comm error.
func ErrCommClosed(id string) error { return commClosedError{id: id} }

// IsCommClosed reports whether err indicates a closed comm.
func IsCommClosed(err error) bool {
	var e commClosedError
	return errors.As(err, &e)
}

// closedError signals use of a client after Close.
type closedError struct{}

func (closedError) Error() string { return "kernel client is closed" }

func ErrClosed() error { return closedError{} }

// IsClosed reports whether err indicates a closed client.
func IsClosed(err error) bool {
	var e closedError
	return errors.As(err, &e)
}
