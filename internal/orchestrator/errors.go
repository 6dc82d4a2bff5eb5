package orchestrator

import "errors"

// unknownTaskError signals a task name outside the fixed set (404).
type unknownTaskError struct{ name string }

func (e unknownTaskError) Error() string { return "unknown task: " + e.name }

// ErrUnknownTask returns an error for a task name that is not one of the fixed kinds.
func ErrUnknownTask(name string) error { return unknownTaskError{name: name} }

// IsUnknownTask reports whether err indicates an unknown task name.
func IsUnknownTask(err error) bool {
	var e unknownTaskError
	return errors.As(err, &e)
}
