package codecpump

import (
	"time"

	"github.com/bluenviron/codecpump/pkg/engine"
	"github.com/bluenviron/codecpump/pkg/format"
	"github.com/bluenviron/codecpump/pkg/liberrors"
)

// unit is a unit of data waiting to be submitted to a stage.
type unit struct {
	data  []byte
	pts   int64
	flags engine.Flag
}

type stage struct {
	index   int
	eng     engine.Engine
	surface engine.InputSurface
	format  format.Format
	stats   *StageStats

	inputBufs  [][]byte
	outputBufs [][]byte

	// size of the largest input slot.
	inputCap int

	sawInputEOS  bool
	sawOutputEOS bool

	// units produced by the previous stage, in FIFO order.
	pending    []unit
	pendingCap int
}

func newStage(index int, eng engine.Engine, stats *StageStats) *stage {
	st := &stage{
		index:  index,
		eng:    eng,
		format: eng.Format(),
		stats:  stats,
	}

	if s, ok := eng.(engine.InputSurface); ok && s.HasInputSurface() {
		st.surface = s
	}

	st.refreshPools()
	return st
}

func (st *stage) refreshPools() {
	st.inputBufs = st.eng.InputBuffers()
	st.outputBufs = st.eng.OutputBuffers()

	st.inputCap = 0
	for _, buf := range st.inputBufs {
		st.inputCap = max(st.inputCap, len(buf))
	}

	st.pendingCap = len(st.inputBufs)
	if st.pendingCap == 0 {
		st.pendingCap = 1
	}
}

// submit submits a unit to the engine.
// It returns false if the engine can't accept it within timeout.
func (st *stage) submit(u unit, timeout time.Duration) (bool, error) {
	if st.surface != nil {
		return st.submitSurface(u, timeout)
	}

	// a slot is taken only when the unit fits into it
	if len(u.data) > st.inputCap {
		return false, liberrors.ErrSourceChunkTooLarge{Size: len(u.data), Capacity: st.inputCap}
	}

	index := st.eng.DequeueInputBuffer(timeout)
	if index < 0 {
		if index == engine.StatusTryAgainLater {
			return false, nil
		}
		return false, liberrors.ErrEngineProtocol{Stage: st.index, Code: index}
	}
	st.stats.InputDequeued++

	if index >= len(st.inputBufs) {
		return false, liberrors.ErrEngine{
			Stage: st.index,
			Op:    "DequeueInputBuffer",
			Err:   liberrors.ErrEngineInvalidIndex{Index: index},
		}
	}

	buf := st.inputBufs[index]
	if len(u.data) > len(buf) {
		// give the slot back empty
		err := st.eng.QueueInputBuffer(index, 0, 0, u.pts, 0)
		if err != nil {
			return false, liberrors.ErrEngine{Stage: st.index, Op: "QueueInputBuffer", Err: err}
		}
		st.stats.InputQueued++

		return false, liberrors.ErrSourceChunkTooLarge{Size: len(u.data), Capacity: len(buf)}
	}
	n := copy(buf, u.data)

	err := st.eng.QueueInputBuffer(index, 0, n, u.pts, u.flags)
	if err != nil {
		return false, liberrors.ErrEngine{Stage: st.index, Op: "QueueInputBuffer", Err: err}
	}
	st.stats.InputQueued++

	return true, nil
}

func (st *stage) submitSurface(u unit, timeout time.Duration) (bool, error) {
	if len(u.data) != 0 {
		ok, err := st.surface.RenderFrame(u.data, u.pts, timeout)
		if err != nil {
			return false, liberrors.ErrEngine{Stage: st.index, Op: "RenderFrame", Err: err}
		}
		if !ok {
			return false, nil
		}
		st.stats.InputDequeued++
		st.stats.InputQueued++
	}

	if u.flags.Has(engine.FlagEndOfStream) {
		err := st.surface.SignalEndOfInputStream()
		if err != nil {
			return false, liberrors.ErrEngine{Stage: st.index, Op: "SignalEndOfInputStream", Err: err}
		}
	}

	return true, nil
}

// reconfigure flushes or restarts the engine.
func (st *stage) reconfigure(mode ReconfigureMode) error {
	switch mode {
	case ReconfigureFlush:
		err := st.eng.Flush()
		if err != nil {
			return liberrors.ErrReconfigure{Stage: st.index, Err: err}
		}

	case ReconfigureRestart:
		err := st.eng.Stop()
		if err != nil {
			return liberrors.ErrReconfigure{Stage: st.index, Err: err}
		}

		err = st.eng.Configure(st.format)
		if err != nil {
			return liberrors.ErrReconfigure{Stage: st.index, Err: err}
		}

		err = st.eng.Start()
		if err != nil {
			return liberrors.ErrReconfigure{Stage: st.index, Err: err}
		}
	}

	// pools are invalidated by Configure()
	st.refreshPools()
	st.sawInputEOS = false
	st.sawOutputEOS = false
	st.pending = nil

	return nil
}

// close stops and releases the engine.
func (st *stage) close() {
	if st.eng.State() == engine.StateRunning {
		st.eng.Stop() //nolint:errcheck
	}
	st.eng.Release()
}
