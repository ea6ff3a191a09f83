package codec

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bluenviron/codecpump/pkg/engine"
)

var errTerminated = errors.New("terminated")

type eventKind int

const (
	eventBuffer eventKind = iota
	eventFormatChanged
	eventBuffersChanged
	eventFailure
)

type event struct {
	kind  eventKind
	index int
	info  engine.BufferInfo
	err   error
}

type inputItem struct {
	index  int
	offset int
	size   int
	pts    int64
	flags  engine.Flag
}

func receive[T any](ctx context.Context, ch <-chan T, timeout time.Duration) (T, bool) {
	var zero T

	switch {
	case timeout == 0:
		select {
		case v := <-ch:
			return v, true
		default:
			return zero, false
		}

	case timeout < 0:
		select {
		case v := <-ch:
			return v, true
		case <-ctx.Done():
			return zero, false
		}
	}

	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case v := <-ch:
		return v, true
	case <-t.C:
		return zero, false
	case <-ctx.Done():
		return zero, false
	}
}

// session is the worker that runs the processor between a Start() and
// the following Flush(), Stop() or Release().
type session struct {
	c          *Codec
	inputBufs  [][]byte
	outputBufs [][]byte
	log        *slog.Logger

	formatPending bool
	eosSignaled   bool
	lastPTS       int64

	freeInput   chan int
	queuedInput chan inputItem
	freeOutput  chan int
	events      chan event

	ctx       context.Context
	ctxCancel func()
	done      chan struct{}
}

func (s *session) initialize() {
	s.freeInput = make(chan int, len(s.inputBufs))
	for i := range s.inputBufs {
		s.freeInput <- i
	}

	// one additional item for the end of stream signaled through the surface
	s.queuedInput = make(chan inputItem, len(s.inputBufs)+1)

	s.freeOutput = make(chan int, len(s.outputBufs))
	for i := range s.outputBufs {
		s.freeOutput <- i
	}

	s.events = make(chan event, len(s.outputBufs)+2)

	s.ctx, s.ctxCancel = context.WithCancel(context.Background())
	s.done = make(chan struct{})
}

func (s *session) start() {
	go s.run()
}

func (s *session) close() {
	s.ctxCancel()
	<-s.done
}

func (s *session) run() {
	defer close(s.done)

	err := s.runInner()
	if err != nil && !errors.Is(err, errTerminated) {
		s.log.Warn("processing failed", "err", err)
		s.send(event{kind: eventFailure, err: err}) //nolint:errcheck
	}
}

func (s *session) runInner() error {
	for {
		var it inputItem

		select {
		case it = <-s.queuedInput:
		case <-s.ctx.Done():
			return errTerminated
		}

		u := Unit{
			PTS:   it.pts,
			Flags: it.flags &^ engine.FlagEndOfStream,
		}

		if it.index >= 0 {
			if it.size != 0 {
				u.Data = append([]byte(nil), s.inputBufs[it.index][it.offset:it.offset+it.size]...)
			}
			s.freeInput <- it.index
		}

		var outs []Unit

		if len(u.Data) != 0 {
			var err error
			outs, err = s.c.Processor.Process(u)
			if err != nil {
				return err
			}
		}

		if it.flags.Has(engine.FlagEndOfStream) {
			rest, err := s.c.Processor.Drain()
			if err != nil {
				return err
			}
			outs = append(outs, rest...)

			if len(outs) != 0 {
				outs[len(outs)-1].Flags |= engine.FlagEndOfStream
			} else {
				outs = []Unit{{PTS: it.pts, Flags: engine.FlagEndOfStream}}
			}
		}

		for _, out := range outs {
			if len(out.Data) == 0 && !out.Flags.Has(engine.FlagEndOfStream) {
				continue
			}

			err := s.emit(out)
			if err != nil {
				return err
			}
		}
	}
}

func (s *session) send(ev event) error {
	select {
	case s.events <- ev:
		return nil
	case <-s.ctx.Done():
		return errTerminated
	}
}

func (s *session) emit(u Unit) error {
	if s.formatPending {
		err := s.send(event{kind: eventFormatChanged})
		if err != nil {
			return err
		}
		s.formatPending = false
		s.c.formatSent.Store(true)
	}

	var index int

	select {
	case index = <-s.freeOutput:
	case <-s.ctx.Done():
		return errTerminated
	}

	if len(u.Data) > len(s.outputBufs[index]) {
		s.growOutputBuffer(index, len(u.Data))

		err := s.send(event{kind: eventBuffersChanged})
		if err != nil {
			return err
		}
	}

	copy(s.outputBufs[index], u.Data)

	return s.send(event{
		kind:  eventBuffer,
		index: index,
		info: engine.BufferInfo{
			Size:               len(u.Data),
			PresentationTimeUs: u.PTS,
			Flags:              u.Flags,
		},
	})
}

// growOutputBuffer replaces an output buffer with a bigger one.
// The pool is replaced too, so that previously fetched pools are detectably stale.
func (s *session) growOutputBuffer(index int, size int) {
	bufs := make([][]byte, len(s.outputBufs))
	copy(bufs, s.outputBufs)
	bufs[index] = make([]byte, size)
	s.outputBufs = bufs

	s.c.poolMutex.Lock()
	s.c.outputBufs = bufs
	s.c.poolMutex.Unlock()

	s.log.Debug("output buffer grown", "index", index, "size", size)
}
