package classload

import "errors"

type classNotFoundError struct {
	name   string
	module string
}

func (e classNotFoundError) Error() string {
	return "widget class not found: " + e.module + "." + e.name
}

// ErrClassNotFound constructs the not-found error for a class lookup.
func ErrClassNotFound(name, module string) error {
	return classNotFoundError{name: name, module: module}
}

// IsClassNotFound reports whether err is a class lookup failure.
func IsClassNotFound(err error) bool {
	var e classNotFoundError
	return errors.As(err, &e)
}
