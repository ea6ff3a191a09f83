// Package liberrors contains errors returned by the pump and by engines.
package liberrors

import (
	"fmt"
)

// ErrEngineProtocol is returned when an engine reports an undocumented negative status.
// Err is filled when the engine exposes the cause of the failure.
type ErrEngineProtocol struct {
	Stage int
	Code  int
	Err   error
}

// Error implements the error interface.
func (e ErrEngineProtocol) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("stage %d: engine returned undocumented status %d: %v", e.Stage, e.Code, e.Err)
	}
	return fmt.Sprintf("stage %d: engine returned undocumented status %d", e.Stage, e.Code)
}

// Unwrap returns the underlying error.
func (e ErrEngineProtocol) Unwrap() error {
	return e.Err
}

// ErrEngineStalled is returned when an engine produces no output for too many iterations
// while there is still input to submit.
type ErrEngineStalled struct {
	Stage      int
	Iterations int
}

// Error implements the error interface.
func (e ErrEngineStalled) Error() string {
	return fmt.Sprintf("stage %d: no output in %d iterations", e.Stage, e.Iterations)
}

// ErrReconfigure is returned when a mid-stream flush or reconfiguration fails.
type ErrReconfigure struct {
	Stage int
	Err   error
}

// Error implements the error interface.
func (e ErrReconfigure) Error() string {
	return fmt.Sprintf("stage %d: reconfiguration failed: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e ErrReconfigure) Unwrap() error {
	return e.Err
}

// ErrEngine is returned when an engine call fails.
type ErrEngine struct {
	Stage int
	Op    string
	Err   error
}

// Error implements the error interface.
func (e ErrEngine) Error() string {
	return fmt.Sprintf("stage %d: %s failed: %v", e.Stage, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e ErrEngine) Unwrap() error {
	return e.Err
}

// ErrSourceChunkTooLarge is returned when a source chunk does not fit into an input slot.
type ErrSourceChunkTooLarge struct {
	Size     int
	Capacity int
}

// Error implements the error interface.
func (e ErrSourceChunkTooLarge) Error() string {
	return fmt.Sprintf("chunk size (%d) exceeds input buffer capacity (%d)", e.Size, e.Capacity)
}
