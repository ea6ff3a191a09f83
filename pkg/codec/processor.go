package codec

import (
	"github.com/bluenviron/codecpump/pkg/engine"
	"github.com/bluenviron/codecpump/pkg/format"
)

// Unit is a unit of data exchanged with a Processor.
type Unit struct {
	Data  []byte
	PTS   int64
	Flags engine.Flag
}

// Processor transforms input units into output units.
// Its methods are never called concurrently.
type Processor interface {
	// Configure validates the input format and returns the output format.
	Configure(in format.Format) (format.Format, error)

	// Process transforms an input unit into zero or more output units.
	Process(u Unit) ([]Unit, error)

	// Drain returns units that are still pending when the end of stream is reached.
	Drain() ([]Unit, error)

	// Reset discards any internal state. It is called on start and flush.
	Reset()
}
