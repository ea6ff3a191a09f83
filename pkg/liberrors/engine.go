package liberrors

import (
	"fmt"
)

// ErrEngineWrongState is returned in case of a wrong engine state.
type ErrEngineWrongState struct {
	AllowedList []fmt.Stringer
	State       fmt.Stringer
}

// Error implements the error interface.
func (e ErrEngineWrongState) Error() string {
	return fmt.Sprintf("must be in state %v, while is in state %v",
		e.AllowedList, e.State)
}

// ErrEngineInvalidIndex is returned when a buffer index is not owned by the caller.
type ErrEngineInvalidIndex struct {
	Index int
}

// Error implements the error interface.
func (e ErrEngineInvalidIndex) Error() string {
	return fmt.Sprintf("buffer index %d is not owned by the caller", e.Index)
}

// ErrEngineInvalidSize is returned when a queued buffer range exceeds the buffer capacity.
type ErrEngineInvalidSize struct {
	Offset   int
	Size     int
	Capacity int
}

// Error implements the error interface.
func (e ErrEngineInvalidSize) Error() string {
	return fmt.Sprintf("range %d+%d exceeds buffer capacity (%d)", e.Offset, e.Size, e.Capacity)
}

// ErrEngineNoInputSurface is returned when surface calls are issued to an engine
// that was not configured with an input surface.
type ErrEngineNoInputSurface struct{}

// Error implements the error interface.
func (e ErrEngineNoInputSurface) Error() string {
	return "engine has no input surface"
}
