// Package codec contains an engine that runs a Processor asynchronously
// and exposes it through input and output buffer slots.
package codec

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/bluenviron/codecpump/pkg/engine"
	"github.com/bluenviron/codecpump/pkg/format"
	"github.com/bluenviron/codecpump/pkg/liberrors"
)

// StatusFailure is returned by DequeueOutputBuffer() when the processor failed.
// The cause is available through Err().
const StatusFailure = -1000

const (
	defaultBufferCount = 4
	defaultBufferSize  = 256 * 1024
)

func allocateBuffers(count int, size int) [][]byte {
	bufs := make([][]byte, count)
	for i := range bufs {
		bufs[i] = make([]byte, size)
	}
	return bufs
}

// Stats are slot counters of a Codec.
type Stats struct {
	InputDequeued  uint64
	InputQueued    uint64
	OutputDequeued uint64
	OutputReleased uint64
}

// Codec is an engine that runs a Processor in a dedicated routine.
type Codec struct {
	// processor that transforms input units into output units.
	Processor Processor

	// name of the engine, used in logs (optional).
	// It defaults to a random UUID.
	Name string

	// number of input buffers (optional).
	// It defaults to 4.
	InputBufferCount int

	// number of output buffers (optional).
	// It defaults to 4.
	OutputBufferCount int

	// size of input buffers (optional).
	// It defaults to 256 KiB.
	InputBufferSize int

	// initial size of output buffers (optional).
	// Output buffers are grown when needed, and StatusOutputBuffersChanged is returned.
	// It defaults to 256 KiB.
	OutputBufferSize int

	// read frames through RenderFrame() instead of input buffers.
	SurfaceInput bool

	// destination of log entries (optional).
	// It defaults to slog.Default().
	Log *slog.Logger

	initialized  bool
	log          *slog.Logger
	mutex        sync.Mutex
	state        engine.State
	format       format.Format
	outputFormat format.Format
	inputBufs    [][]byte
	inputOwned   []bool
	outputOwned  []bool
	sess         *session
	err          error

	poolMutex  sync.Mutex
	outputBufs [][]byte
	formatSent atomic.Bool

	inputDequeued  atomic.Uint64
	inputQueued    atomic.Uint64
	outputDequeued atomic.Uint64
	outputReleased atomic.Uint64
}

func (c *Codec) initialize() {
	if c.Name == "" {
		c.Name = uuid.New().String()
	}
	if c.InputBufferCount == 0 {
		c.InputBufferCount = defaultBufferCount
	}
	if c.OutputBufferCount == 0 {
		c.OutputBufferCount = defaultBufferCount
	}
	if c.InputBufferSize == 0 {
		c.InputBufferSize = defaultBufferSize
	}
	if c.OutputBufferSize == 0 {
		c.OutputBufferSize = defaultBufferSize
	}

	log := c.Log
	if log == nil {
		log = slog.Default()
	}
	c.log = log.With("component", "codec", "engine", c.Name)

	c.initialized = true
}

func (c *Codec) checkState(allowed ...engine.State) error {
	for _, s := range allowed {
		if c.state == s {
			return nil
		}
	}

	allowedList := make([]fmt.Stringer, len(allowed))
	for i, s := range allowed {
		allowedList[i] = s
	}

	return liberrors.ErrEngineWrongState{AllowedList: allowedList, State: c.state}
}

// Configure implements engine.Engine.
func (c *Codec) Configure(f format.Format) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.initialized {
		c.initialize()
	}

	err := c.checkState(engine.StateUninitialized, engine.StateStopped)
	if err != nil {
		return err
	}

	out, err := c.Processor.Configure(f)
	if err != nil {
		return err
	}

	c.format = f
	c.outputFormat = out
	c.inputBufs = allocateBuffers(c.InputBufferCount, c.InputBufferSize)

	c.poolMutex.Lock()
	c.outputBufs = allocateBuffers(c.OutputBufferCount, c.OutputBufferSize)
	c.poolMutex.Unlock()

	c.formatSent.Store(false)
	c.state = engine.StateConfigured

	c.log.Debug("configured", "codec", f.Codec(), "output", out.Codec())

	return nil
}

func (c *Codec) startSession() {
	c.poolMutex.Lock()
	outputBufs := c.outputBufs
	c.poolMutex.Unlock()

	c.sess = &session{
		c:             c,
		inputBufs:     c.inputBufs,
		outputBufs:    outputBufs,
		log:           c.log,
		formatPending: !c.formatSent.Load(),
	}
	c.sess.initialize()

	c.inputOwned = make([]bool, len(c.inputBufs))
	c.outputOwned = make([]bool, len(outputBufs))
	c.err = nil

	c.sess.start()
}

func (c *Codec) closeSession() {
	if c.sess != nil {
		c.sess.close()
		c.sess = nil
	}
}

// Start implements engine.Engine.
func (c *Codec) Start() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	err := c.checkState(engine.StateConfigured)
	if err != nil {
		return err
	}

	c.Processor.Reset()
	c.startSession()
	c.state = engine.StateRunning

	c.log.Debug("started")

	return nil
}

// Stop implements engine.Engine.
func (c *Codec) Stop() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	err := c.checkState(engine.StateConfigured, engine.StateRunning)
	if err != nil {
		return err
	}

	c.closeSession()
	c.state = engine.StateStopped

	c.log.Debug("stopped")

	return nil
}

// Flush implements engine.Engine.
func (c *Codec) Flush() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	err := c.checkState(engine.StateRunning)
	if err != nil {
		return err
	}

	c.state = engine.StateFlushing
	c.closeSession()
	c.Processor.Reset()
	c.startSession()
	c.state = engine.StateRunning

	c.log.Debug("flushed")

	return nil
}

// Release implements engine.Engine.
func (c *Codec) Release() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.state == engine.StateReleased {
		return
	}

	c.closeSession()
	c.inputBufs = nil

	c.poolMutex.Lock()
	c.outputBufs = nil
	c.poolMutex.Unlock()

	c.state = engine.StateReleased

	if c.log != nil {
		c.log.Debug("released")
	}
}

// State implements engine.Engine.
func (c *Codec) State() engine.State {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.state
}

// Format implements engine.Engine.
func (c *Codec) Format() format.Format {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.format
}

// OutputFormat implements engine.Engine.
func (c *Codec) OutputFormat() format.Format {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.outputFormat
}

// InputBuffers implements engine.Engine.
func (c *Codec) InputBuffers() [][]byte {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.inputBufs
}

// OutputBuffers implements engine.Engine.
func (c *Codec) OutputBuffers() [][]byte {
	c.poolMutex.Lock()
	defer c.poolMutex.Unlock()
	return c.outputBufs
}

// runningSession returns the current session if the engine is running.
func (c *Codec) runningSession() *session {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.state != engine.StateRunning {
		return nil
	}
	return c.sess
}

// DequeueInputBuffer implements engine.Engine.
func (c *Codec) DequeueInputBuffer(timeout time.Duration) int {
	if c.SurfaceInput {
		return engine.StatusTryAgainLater
	}

	s := c.runningSession()
	if s == nil {
		return engine.StatusTryAgainLater
	}

	index, ok := receive(s.ctx, s.freeInput, timeout)
	if !ok {
		return engine.StatusTryAgainLater
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	// session was replaced while waiting
	if c.sess != s {
		return engine.StatusTryAgainLater
	}

	c.inputOwned[index] = true
	c.inputDequeued.Add(1)

	return index
}

// QueueInputBuffer implements engine.Engine.
func (c *Codec) QueueInputBuffer(index int, offset int, size int, presentationTimeUs int64, flags engine.Flag) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	err := c.checkState(engine.StateRunning)
	if err != nil {
		return err
	}

	if index < 0 || index >= len(c.inputOwned) || !c.inputOwned[index] {
		return liberrors.ErrEngineInvalidIndex{Index: index}
	}

	if offset < 0 || size < 0 || offset+size > len(c.inputBufs[index]) {
		return liberrors.ErrEngineInvalidSize{Offset: offset, Size: size, Capacity: len(c.inputBufs[index])}
	}

	c.inputOwned[index] = false
	c.sess.lastPTS = presentationTimeUs
	c.sess.queuedInput <- inputItem{
		index:  index,
		offset: offset,
		size:   size,
		pts:    presentationTimeUs,
		flags:  flags,
	}
	c.inputQueued.Add(1)

	return nil
}

// DequeueOutputBuffer implements engine.Engine.
func (c *Codec) DequeueOutputBuffer(info *engine.BufferInfo, timeout time.Duration) int {
	s := c.runningSession()
	if s == nil {
		return engine.StatusTryAgainLater
	}

	ev, ok := receive(s.ctx, s.events, timeout)
	if !ok {
		return engine.StatusTryAgainLater
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.sess != s {
		return engine.StatusTryAgainLater
	}

	switch ev.kind {
	case eventFormatChanged:
		return engine.StatusOutputFormatChanged

	case eventBuffersChanged:
		return engine.StatusOutputBuffersChanged

	case eventFailure:
		c.err = ev.err
		return StatusFailure
	}

	c.outputOwned[ev.index] = true
	c.outputDequeued.Add(1)
	*info = ev.info

	return ev.index
}

// ReleaseOutputBuffer implements engine.Engine.
func (c *Codec) ReleaseOutputBuffer(index int, _ bool) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	err := c.checkState(engine.StateRunning)
	if err != nil {
		return err
	}

	if index < 0 || index >= len(c.outputOwned) || !c.outputOwned[index] {
		return liberrors.ErrEngineInvalidIndex{Index: index}
	}

	c.outputOwned[index] = false
	c.sess.freeOutput <- index
	c.outputReleased.Add(1)

	return nil
}

// HasInputSurface implements engine.InputSurface.
func (c *Codec) HasInputSurface() bool {
	return c.SurfaceInput
}

// RenderFrame implements engine.InputSurface.
func (c *Codec) RenderFrame(frame []byte, presentationTimeUs int64, timeout time.Duration) (bool, error) {
	if !c.SurfaceInput {
		return false, liberrors.ErrEngineNoInputSurface{}
	}

	c.mutex.Lock()
	err := c.checkState(engine.StateRunning)
	s := c.sess
	c.mutex.Unlock()

	if err != nil {
		return false, err
	}

	index, ok := receive(s.ctx, s.freeInput, timeout)
	if !ok {
		return false, nil
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.sess != s {
		return false, nil
	}

	buf := c.inputBufs[index]
	if len(frame) > len(buf) {
		s.freeInput <- index
		return false, liberrors.ErrEngineInvalidSize{Size: len(frame), Capacity: len(buf)}
	}

	copy(buf, frame)
	s.lastPTS = presentationTimeUs
	s.queuedInput <- inputItem{
		index: index,
		size:  len(frame),
		pts:   presentationTimeUs,
	}
	c.inputDequeued.Add(1)
	c.inputQueued.Add(1)

	return true, nil
}

// SignalEndOfInputStream implements engine.InputSurface.
func (c *Codec) SignalEndOfInputStream() error {
	if !c.SurfaceInput {
		return liberrors.ErrEngineNoInputSurface{}
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	err := c.checkState(engine.StateRunning)
	if err != nil {
		return err
	}

	if c.sess.eosSignaled {
		return nil
	}
	c.sess.eosSignaled = true

	c.sess.queuedInput <- inputItem{
		index: -1,
		pts:   c.sess.lastPTS,
		flags: engine.FlagEndOfStream,
	}

	return nil
}

// Err returns the error that made DequeueOutputBuffer() return StatusFailure.
func (c *Codec) Err() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.err
}

// Stats returns slot counters, accumulated since the engine was created.
func (c *Codec) Stats() Stats {
	return Stats{
		InputDequeued:  c.inputDequeued.Load(),
		InputQueued:    c.inputQueued.Load(),
		OutputDequeued: c.outputDequeued.Load(),
		OutputReleased: c.outputReleased.Load(),
	}
}
