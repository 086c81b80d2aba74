package tensorsink

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState is returned if element cannot make a lifecycle
	// transition from its current state.
	ErrInvalidState = errors.New("invalid state")
	// ErrInvalidValue is returned if property value has unexpected type.
	ErrInvalidValue = errors.New("invalid property value")
	// ErrTerminated is returned if buffer is rendered after end of
	// stream or after pipeline fault.
	ErrTerminated = errors.New("element terminated")
)

// PropertyError is returned when known property cannot be set to the
// provided value.
type PropertyError struct {
	Name  string
	Value interface{}
	Err   error
}

func (e *PropertyError) Error() string {
	return fmt.Sprintf("property %q value %v (%T): %v", e.Name, e.Value, e.Value, e.Err)
}

// Unwrap returns the underlying error.
func (e *PropertyError) Unwrap() error {
	return e.Err
}
