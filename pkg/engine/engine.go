// Package engine contains the contract between the pump and the engines it drives.
package engine

import (
	"time"

	"github.com/bluenviron/codecpump/pkg/format"
)

// Status codes returned by DequeueOutputBuffer() (and, for StatusTryAgainLater,
// by DequeueInputBuffer()) instead of a buffer index.
// Any other negative value is an engine error.
const (
	StatusTryAgainLater        = -1
	StatusOutputFormatChanged  = -2
	StatusOutputBuffersChanged = -3
)

// Flag is a buffer flag.
type Flag int

// Buffer flags.
const (
	FlagSyncFrame   Flag = 1
	FlagCodecConfig Flag = 2
	FlagEndOfStream Flag = 4
)

// Has checks whether all the flags in v are set.
func (f Flag) Has(v Flag) bool {
	return f&v == v
}

// BufferInfo describes the content of an output buffer.
type BufferInfo struct {
	Offset             int
	Size               int
	PresentationTimeUs int64
	Flags              Flag
}

// Engine is a stateful codec instance driven through input and output buffer slots.
//
// Buffer pools returned by InputBuffers() and OutputBuffers() are invalidated
// by Configure(); OutputBuffers() is also invalidated when DequeueOutputBuffer()
// returns StatusOutputBuffersChanged.
type Engine interface {
	// Configure moves the engine from Uninitialized or Stopped to Configured.
	Configure(f format.Format) error

	// Start moves the engine from Configured to Running.
	Start() error

	// Stop moves the engine from Running to Stopped, discarding every buffer.
	Stop() error

	// Flush discards every buffer without leaving Running.
	Flush() error

	// Release frees all resources. The engine can't be used anymore.
	Release()

	// State returns the current state.
	State() State

	// Format returns the configured format.
	Format() format.Format

	// OutputFormat returns the format of output buffers.
	OutputFormat() format.Format

	// InputBuffers returns the input buffer pool.
	InputBuffers() [][]byte

	// OutputBuffers returns the output buffer pool.
	OutputBuffers() [][]byte

	// DequeueInputBuffer returns the index of a free input buffer,
	// or StatusTryAgainLater if none is available within timeout.
	// A negative timeout waits indefinitely.
	DequeueInputBuffer(timeout time.Duration) int

	// QueueInputBuffer submits a filled input buffer.
	QueueInputBuffer(index int, offset int, size int, presentationTimeUs int64, flags Flag) error

	// DequeueOutputBuffer returns the index of a filled output buffer and fills info,
	// or a negative status.
	DequeueOutputBuffer(info *BufferInfo, timeout time.Duration) int

	// ReleaseOutputBuffer gives an output buffer back to the engine.
	ReleaseOutputBuffer(index int, render bool) error
}

// InputSurface is implemented by engines that can be fed through a surface
// instead of input buffers.
type InputSurface interface {
	// HasInputSurface checks whether the engine was configured to read from a surface.
	HasInputSurface() bool

	// RenderFrame draws a frame on the surface.
	// It returns false if the surface can't accept frames within timeout.
	RenderFrame(frame []byte, presentationTimeUs int64, timeout time.Duration) (bool, error)

	// SignalEndOfInputStream signals that no more frames will be rendered.
	SignalEndOfInputStream() error
}

// Failer is implemented by engines that can report why they failed,
// after DequeueOutputBuffer() returned an undocumented negative status.
type Failer interface {
	Err() error
}
