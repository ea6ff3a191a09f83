// Package codecpump drives chains of asynchronous codec engines to completion.
package codecpump

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/bluenviron/codecpump/pkg/engine"
	"github.com/bluenviron/codecpump/pkg/extractor"
	"github.com/bluenviron/codecpump/pkg/format"
	"github.com/bluenviron/codecpump/pkg/liberrors"
)

const (
	defaultDequeueTimeout    = 5 * time.Millisecond
	defaultMaxDeadIterations = 100
)

// Pump drives a chain of engines until the end of stream reaches the last one.
//
// The first engine is fed by a source; every other engine is fed by the
// output of the previous one. Output of the last engine is accumulated into a Record.
// Engines must be running when Run() is called; they are stopped and released when it returns.
type Pump struct {
	// engines, from the first to the last one.
	Stages []engine.Engine

	// source of the first engine.
	Source extractor.Cursor

	// reconfiguration request (optional).
	Policy Policy

	// what to accumulate into the record (optional).
	// It defaults to RecordCount.
	Mode RecordMode

	// timeout of every dequeue call (optional).
	// It defaults to 5ms.
	DequeueTimeout time.Duration

	// maximum number of consecutive iterations without output (optional).
	// It defaults to 100.
	MaxDeadIterations int

	// if greater than zero, the end of stream is signaled together
	// with the EOSAfter-th unit of the source.
	EOSAfter int

	// check that the timestamp of every output unit was submitted.
	VerifyTimestamps bool

	// when set to true, the run is interrupted (optional).
	Stop *atomic.Bool

	// destination of log entries (optional).
	// It defaults to slog.Default().
	Log *slog.Logger

	// called when an engine notifies a new output format (optional).
	OnOutputFormatChanged func(stage int, f format.Format)

	// called after a reconfiguration (optional).
	OnReconfigure func(r Reconfiguration)

	log                *slog.Logger
	stages             []*stage
	rec                *Record
	held               *unit
	submitted          int
	timestamps         []int64
	pendingReconfigure bool
	reconfigured       bool
	progress           bool
}

func (p *Pump) initialize() error {
	if len(p.Stages) == 0 {
		return fmt.Errorf("no engines provided")
	}
	if p.Source == nil {
		return fmt.Errorf("source not provided")
	}

	if p.DequeueTimeout == 0 {
		p.DequeueTimeout = defaultDequeueTimeout
	}
	if p.MaxDeadIterations == 0 {
		p.MaxDeadIterations = defaultMaxDeadIterations
	}

	log := p.Log
	if log == nil {
		log = slog.Default()
	}
	p.log = log.With("component", "pump", "run", uuid.New().String())

	p.rec = &Record{
		Stages: make([]StageStats, len(p.Stages)),
	}

	p.stages = make([]*stage, len(p.Stages))
	for i, eng := range p.Stages {
		if eng.State() != engine.StateRunning {
			return liberrors.ErrEngine{
				Stage: i,
				Op:    "Start",
				Err:   fmt.Errorf("engine is %v", eng.State()),
			}
		}
		p.stages[i] = newStage(i, eng, &p.rec.Stages[i])
	}

	p.held = nil
	p.submitted = 0
	p.timestamps = nil
	p.pendingReconfigure = p.Policy.Mode != ReconfigureNone
	p.reconfigured = false

	return nil
}

func (p *Pump) close() {
	for _, st := range p.stages {
		st.close()
	}
}

func (p *Pump) stopRequested(ctx context.Context) bool {
	return (p.Stop != nil && p.Stop.Load()) || ctx.Err() != nil
}

// Run drives the engines until the end of stream reaches the last one.
//
// A stalled engine, an engine error or a failed reconfiguration abort the run.
// If the source is exhausted but the end of stream doesn't reach the last engine,
// the record is returned with Incomplete set.
// If the stop flag is set or the context is canceled, the record is returned with Stopped set.
func (p *Pump) Run(ctx context.Context) (*Record, error) {
	err := p.initialize()
	if err != nil {
		for _, eng := range p.Stages {
			if eng.State() == engine.StateRunning {
				eng.Stop() //nolint:errcheck
			}
			eng.Release()
		}
		return nil, err
	}

	defer p.close()

	err = p.runInner(ctx)
	if err != nil {
		p.log.Debug("run failed", "err", err)
		return nil, err
	}

	p.log.Debug("run completed",
		"units", p.rec.Units,
		"bytes", p.rec.Bytes,
		"eos", p.rec.OutputEOS,
		"incomplete", p.rec.Incomplete,
		"stopped", p.rec.Stopped)

	return p.rec, nil
}

func (p *Pump) runInner(ctx context.Context) error {
	if p.pendingReconfigure && p.Policy.Trigger == TriggerImmediately {
		err := p.reconfigure()
		if err != nil {
			return err
		}
	}

	terminal := p.stages[len(p.stages)-1]
	dead := 0

	for !terminal.sawOutputEOS {
		if p.stopRequested(ctx) {
			p.rec.Stopped = true
			return nil
		}

		if dead >= p.MaxDeadIterations {
			return p.deadBoundExceeded()
		}

		p.progress = false
		p.reconfigured = false

		err := p.runPass()
		if err != nil {
			return err
		}

		if p.progress || p.reconfigured {
			dead = 0
		} else {
			dead++
		}
	}

	return nil
}

// runPass performs one drain attempt and one feed attempt on every stage,
// starting from the last one.
func (p *Pump) runPass() error {
	for i := len(p.stages) - 1; i >= 0; i-- {
		err := p.drain(i)
		if err != nil {
			return err
		}

		if p.reconfigured {
			return nil
		}

		err = p.feed(i)
		if err != nil {
			return err
		}
	}

	return nil
}

func (p *Pump) deadBoundExceeded() error {
	if p.stages[0].sawInputEOS {
		p.log.Warn("end of stream not reached", "iterations", p.MaxDeadIterations)
		p.rec.Incomplete = true
		return nil
	}

	stalled := len(p.stages) - 1
	for i, st := range p.stages {
		if !st.sawOutputEOS {
			stalled = i
			break
		}
	}

	return liberrors.ErrEngineStalled{Stage: stalled, Iterations: p.MaxDeadIterations}
}

// nextInput returns the next unit that has to be submitted to a stage.
func (p *Pump) nextInput(i int) (unit, bool, error) {
	if i > 0 {
		st := p.stages[i]
		if len(st.pending) == 0 {
			return unit{}, false, nil
		}
		return st.pending[0], true, nil
	}

	if p.held != nil {
		return *p.held, true, nil
	}

	chunk, err := p.Source.NextChunk()
	if err != nil {
		if !errors.Is(err, io.EOF) {
			return unit{}, false, fmt.Errorf("source: %w", err)
		}

		p.held = &unit{flags: engine.FlagEndOfStream}
		return *p.held, true, nil
	}

	u := unit{
		data: chunk.Data,
		pts:  chunk.PTS,
	}
	if chunk.Sync {
		u.flags |= engine.FlagSyncFrame
	}

	if p.EOSAfter > 0 && p.submitted+1 == p.EOSAfter {
		u.flags |= engine.FlagEndOfStream
	}

	p.held = &u
	return u, true, nil
}

func (p *Pump) consumeInput(i int, u unit) {
	if i > 0 {
		st := p.stages[i]
		st.pending = st.pending[1:]
		return
	}

	p.held = nil

	if len(u.data) != 0 {
		p.submitted++
	}
	if p.VerifyTimestamps {
		p.timestamps = append(p.timestamps, u.pts)
	}
}

func (p *Pump) feed(i int) error {
	st := p.stages[i]
	if st.sawInputEOS {
		return nil
	}

	u, ok, err := p.nextInput(i)
	if err != nil || !ok {
		return err
	}

	ok, err = st.submit(u, p.DequeueTimeout)
	if err != nil || !ok {
		return err
	}

	p.consumeInput(i, u)

	if u.flags.Has(engine.FlagEndOfStream) {
		p.log.Debug("input EOS submitted", "stage", i)
		st.sawInputEOS = true
	}

	return nil
}

func (p *Pump) drain(i int) error {
	st := p.stages[i]
	if st.sawOutputEOS {
		return nil
	}

	isTerminal := i == len(p.stages)-1

	// output is drained only when the next stage can absorb it
	if !isTerminal {
		next := p.stages[i+1]
		if len(next.pending) >= next.pendingCap {
			return nil
		}
	}

	var info engine.BufferInfo
	res := st.eng.DequeueOutputBuffer(&info, p.DequeueTimeout)

	switch {
	case res >= 0:
		return p.handleOutput(st, res, info, isTerminal)

	case res == engine.StatusTryAgainLater:
		return nil

	case res == engine.StatusOutputFormatChanged:
		f := st.eng.OutputFormat()
		st.stats.FormatChanges++
		st.stats.OutputFormat = f
		if isTerminal {
			p.rec.OutputFormats = append(p.rec.OutputFormats, f)
		}

		p.log.Debug("output format changed", "stage", i, "format", formatName(f))

		if p.OnOutputFormatChanged != nil {
			p.OnOutputFormatChanged(i, f)
		}
		return nil

	case res == engine.StatusOutputBuffersChanged:
		st.outputBufs = st.eng.OutputBuffers()
		st.stats.BuffersChanges++

		p.log.Debug("output buffers changed", "stage", i)
		return nil
	}

	err := liberrors.ErrEngineProtocol{Stage: i, Code: res}
	if f, ok := st.eng.(engine.Failer); ok {
		err.Err = f.Err()
	}
	return err
}

func (p *Pump) handleOutput(st *stage, index int, info engine.BufferInfo, isTerminal bool) error {
	st.stats.OutputDequeued++

	if index >= len(st.outputBufs) ||
		info.Offset < 0 || info.Size < 0 ||
		info.Offset+info.Size > len(st.outputBufs[index]) {
		return liberrors.ErrEngine{
			Stage: st.index,
			Op:    "DequeueOutputBuffer",
			Err: liberrors.ErrEngineInvalidSize{
				Offset:   info.Offset,
				Size:     info.Size,
				Capacity: capacityOf(st.outputBufs, index),
			},
		}
	}

	data := st.outputBufs[index][info.Offset : info.Offset+info.Size]

	if info.Size > 0 {
		p.progress = true

		if isTerminal && p.pendingReconfigure {
			err := p.release(st, index)
			if err != nil {
				return err
			}
			return p.reconfigure()
		}
	}

	eos := info.Flags.Has(engine.FlagEndOfStream)

	switch {
	case isTerminal:
		if info.Size > 0 {
			p.record(data, info)
		}

	case info.Size > 0 || eos:
		next := p.stages[st.index+1]
		next.pending = append(next.pending, unit{
			data:  slices.Clone(data),
			pts:   info.PresentationTimeUs,
			flags: info.Flags,
		})
	}

	err := p.release(st, index)
	if err != nil {
		return err
	}

	if eos {
		p.log.Debug("output EOS received", "stage", st.index)
		st.sawOutputEOS = true

		if isTerminal {
			p.rec.OutputEOS = true
		}
	}

	return nil
}

func (p *Pump) release(st *stage, index int) error {
	err := st.eng.ReleaseOutputBuffer(index, true)
	if err != nil {
		return liberrors.ErrEngine{Stage: st.index, Op: "ReleaseOutputBuffer", Err: err}
	}
	st.stats.OutputReleased++
	return nil
}

func (p *Pump) record(data []byte, info engine.BufferInfo) {
	p.rec.add(p.Mode, data, info)

	if p.VerifyTimestamps {
		i := slices.Index(p.timestamps, info.PresentationTimeUs)
		if i < 0 {
			p.log.Warn("output timestamp was never submitted", "pts", info.PresentationTimeUs)
			p.rec.TimestampMismatches++
		} else {
			p.timestamps = slices.Delete(p.timestamps, i, i+1)
		}
	}
}

func (p *Pump) reconfigure() error {
	p.pendingReconfigure = false
	p.reconfigured = true

	for _, st := range p.stages {
		err := st.reconfigure(p.Policy.Mode)
		if err != nil {
			return err
		}
	}

	err := p.Source.SeekToNearestSyncPoint(p.Policy.SeekTarget)
	if err != nil {
		return liberrors.ErrReconfigure{Stage: 0, Err: fmt.Errorf("seek failed: %w", err)}
	}

	r := Reconfiguration{
		Policy:          p.Policy,
		DiscardedUnits:  p.rec.Units,
		SourceTimestamp: p.Source.CurrentTimestamp(),
	}

	p.held = nil
	p.submitted = 0
	p.timestamps = nil
	p.rec.resetPosition()
	p.rec.Reconfigured = true

	p.log.Debug("reconfigured",
		"mode", r.Mode,
		"trigger", r.Trigger,
		"seek_target", r.SeekTarget,
		"source_ts", r.SourceTimestamp)

	if p.OnReconfigure != nil {
		p.OnReconfigure(r)
	}

	return nil
}

func formatName(f format.Format) string {
	if f == nil {
		return "none"
	}
	return f.Codec()
}

func capacityOf(bufs [][]byte, index int) int {
	if index < len(bufs) {
		return len(bufs[index])
	}
	return 0
}
