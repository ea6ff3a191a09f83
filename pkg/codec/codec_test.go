package codec

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bluenviron/codecpump/pkg/engine"
	"github.com/bluenviron/codecpump/pkg/format"
	"github.com/bluenviron/codecpump/pkg/liberrors"
)

var testFormat = &format.LPCM{
	PayloadTyp:   96,
	BitDepth:     16,
	SampleRate:   44100,
	ChannelCount: 2,
}

type testProcessor struct {
	resets  int
	drained []Unit
}

func (p *testProcessor) Configure(in format.Format) (format.Format, error) {
	if _, ok := in.(*format.LPCM); !ok {
		return nil, fmt.Errorf("unsupported format")
	}
	return in, nil
}

func (p *testProcessor) Process(u Unit) ([]Unit, error) {
	if string(u.Data) == "fail" {
		return nil, fmt.Errorf("processing error")
	}
	return []Unit{{
		Data:  bytes.ToUpper(u.Data),
		PTS:   u.PTS,
		Flags: u.Flags | engine.FlagSyncFrame,
	}}, nil
}

func (p *testProcessor) Drain() ([]Unit, error) {
	return p.drained, nil
}

func (p *testProcessor) Reset() {
	p.resets++
}

func startCodec(t *testing.T, c *Codec) *Codec {
	err := c.Configure(testFormat)
	require.NoError(t, err)

	err = c.Start()
	require.NoError(t, err)

	t.Cleanup(c.Release)
	return c
}

func queueInput(t *testing.T, c *Codec, data []byte, pts int64, flags engine.Flag) {
	i := c.DequeueInputBuffer(time.Second)
	require.GreaterOrEqual(t, i, 0)

	n := copy(c.InputBuffers()[i], data)

	err := c.QueueInputBuffer(i, 0, n, pts, flags)
	require.NoError(t, err)
}

func dequeueOutput(t *testing.T, c *Codec) (int, engine.BufferInfo) {
	var info engine.BufferInfo
	i := c.DequeueOutputBuffer(&info, time.Second)
	require.GreaterOrEqual(t, i, 0)
	return i, info
}

func TestCodecRoundTrip(t *testing.T) {
	c := startCodec(t, &Codec{Processor: &testProcessor{}})

	queueInput(t, c, []byte("abc"), 1000, 0)
	queueInput(t, c, []byte("def"), 2000, engine.FlagEndOfStream)

	var info engine.BufferInfo
	require.Equal(t, engine.StatusOutputFormatChanged, c.DequeueOutputBuffer(&info, time.Second))

	i, info := dequeueOutput(t, c)
	require.Equal(t, engine.BufferInfo{
		Size:               3,
		PresentationTimeUs: 1000,
		Flags:              engine.FlagSyncFrame,
	}, info)
	require.Equal(t, []byte("ABC"), c.OutputBuffers()[i][:info.Size])
	require.NoError(t, c.ReleaseOutputBuffer(i, false))

	i, info = dequeueOutput(t, c)
	require.Equal(t, engine.BufferInfo{
		Size:               3,
		PresentationTimeUs: 2000,
		Flags:              engine.FlagSyncFrame | engine.FlagEndOfStream,
	}, info)
	require.Equal(t, []byte("DEF"), c.OutputBuffers()[i][:info.Size])
	require.NoError(t, c.ReleaseOutputBuffer(i, true))

	require.Equal(t, engine.StatusTryAgainLater, c.DequeueOutputBuffer(&info, 10*time.Millisecond))

	require.Equal(t, Stats{
		InputDequeued:  2,
		InputQueued:    2,
		OutputDequeued: 2,
		OutputReleased: 2,
	}, c.Stats())

	require.Equal(t, testFormat, c.OutputFormat())
}

func TestCodecEndOfStream(t *testing.T) {
	for _, ca := range []struct {
		name    string
		drained []Unit
		info    engine.BufferInfo
		data    []byte
	}{
		{
			"empty",
			nil,
			engine.BufferInfo{
				PresentationTimeUs: 3000,
				Flags:              engine.FlagEndOfStream,
			},
			[]byte{},
		},
		{
			"drained",
			[]Unit{{Data: []byte("xyz"), PTS: 2500}},
			engine.BufferInfo{
				Size:               3,
				PresentationTimeUs: 2500,
				Flags:              engine.FlagEndOfStream,
			},
			[]byte("xyz"),
		},
	} {
		t.Run(ca.name, func(t *testing.T) {
			c := startCodec(t, &Codec{Processor: &testProcessor{drained: ca.drained}})

			queueInput(t, c, nil, 3000, engine.FlagEndOfStream)

			var info engine.BufferInfo
			require.Equal(t, engine.StatusOutputFormatChanged, c.DequeueOutputBuffer(&info, time.Second))

			i, info := dequeueOutput(t, c)
			require.Equal(t, ca.info, info)
			require.Equal(t, ca.data, c.OutputBuffers()[i][:info.Size])
			require.NoError(t, c.ReleaseOutputBuffer(i, false))
		})
	}
}

func TestCodecStates(t *testing.T) {
	p := &testProcessor{}
	c := &Codec{Processor: p}

	err := c.Start()
	require.EqualError(t, err, "must be in state [configured], while is in state uninitialized")

	err = c.Configure(&format.MPEGTS{})
	require.EqualError(t, err, "unsupported format")
	require.Equal(t, engine.StateUninitialized, c.State())

	err = c.Configure(testFormat)
	require.NoError(t, err)
	require.Equal(t, engine.StateConfigured, c.State())
	pool := c.InputBuffers()

	err = c.Start()
	require.NoError(t, err)
	require.Equal(t, engine.StateRunning, c.State())

	err = c.Configure(testFormat)
	require.EqualError(t, err, "must be in state [uninitialized stopped], while is in state running")

	err = c.Stop()
	require.NoError(t, err)
	require.Equal(t, engine.StateStopped, c.State())
	require.Equal(t, engine.StatusTryAgainLater, c.DequeueInputBuffer(0))

	err = c.Configure(testFormat)
	require.NoError(t, err)
	require.NotSame(t, &pool[0][0], &c.InputBuffers()[0][0])

	err = c.Start()
	require.NoError(t, err)

	err = c.Flush()
	require.NoError(t, err)
	require.Equal(t, engine.StateRunning, c.State())
	require.Equal(t, 3, p.resets)

	c.Release()
	require.Equal(t, engine.StateReleased, c.State())
	c.Release()

	err = c.Configure(testFormat)
	require.EqualError(t, err, "must be in state [uninitialized stopped], while is in state released")
}

func TestCodecInvalidSlots(t *testing.T) {
	c := startCodec(t, &Codec{
		Processor:       &testProcessor{},
		InputBufferSize: 16,
	})

	err := c.QueueInputBuffer(0, 0, 1, 0, 0)
	require.Equal(t, liberrors.ErrEngineInvalidIndex{Index: 0}, err)

	err = c.QueueInputBuffer(10, 0, 1, 0, 0)
	require.Equal(t, liberrors.ErrEngineInvalidIndex{Index: 10}, err)

	err = c.ReleaseOutputBuffer(1, false)
	require.Equal(t, liberrors.ErrEngineInvalidIndex{Index: 1}, err)

	i := c.DequeueInputBuffer(time.Second)
	require.GreaterOrEqual(t, i, 0)

	err = c.QueueInputBuffer(i, 4, 16, 0, 0)
	require.Equal(t, liberrors.ErrEngineInvalidSize{Offset: 4, Size: 16, Capacity: 16}, err)

	err = c.QueueInputBuffer(i, 4, 12, 0, 0)
	require.NoError(t, err)

	err = c.QueueInputBuffer(i, 4, 12, 0, 0)
	require.Equal(t, liberrors.ErrEngineInvalidIndex{Index: i}, err)
}

func TestCodecBuffersChanged(t *testing.T) {
	c := startCodec(t, &Codec{
		Processor:        &testProcessor{},
		OutputBufferSize: 2,
	})

	stale := c.OutputBuffers()

	queueInput(t, c, []byte("abcdef"), 0, 0)

	var info engine.BufferInfo
	require.Equal(t, engine.StatusOutputFormatChanged, c.DequeueOutputBuffer(&info, time.Second))
	require.Equal(t, engine.StatusOutputBuffersChanged, c.DequeueOutputBuffer(&info, time.Second))

	i, info := dequeueOutput(t, c)
	fresh := c.OutputBuffers()
	require.Len(t, stale[i], 2)
	require.Len(t, fresh[i], 6)
	require.Equal(t, []byte("ABCDEF"), fresh[i][:info.Size])
	require.NoError(t, c.ReleaseOutputBuffer(i, false))
}

func TestCodecFlush(t *testing.T) {
	p := &testProcessor{}
	c := startCodec(t, &Codec{
		Processor:        p,
		InputBufferCount: 2,
	})

	queueInput(t, c, []byte("a"), 0, 0)

	var info engine.BufferInfo
	require.Equal(t, engine.StatusOutputFormatChanged, c.DequeueOutputBuffer(&info, time.Second))

	i, _ := dequeueOutput(t, c)
	require.NoError(t, c.ReleaseOutputBuffer(i, false))

	queueInput(t, c, []byte("b"), 1, 0)
	queueInput(t, c, []byte("c"), 2, 0)

	err := c.Flush()
	require.NoError(t, err)
	require.Equal(t, 2, p.resets)

	// pending output is discarded and the format is not notified again
	require.Equal(t, engine.StatusTryAgainLater, c.DequeueOutputBuffer(&info, 20*time.Millisecond))

	// every input buffer is available again
	require.GreaterOrEqual(t, c.DequeueInputBuffer(time.Second), 0)
	require.GreaterOrEqual(t, c.DequeueInputBuffer(time.Second), 0)
	require.Equal(t, engine.StatusTryAgainLater, c.DequeueInputBuffer(0))

	err = c.ReleaseOutputBuffer(i, false)
	require.Equal(t, liberrors.ErrEngineInvalidIndex{Index: i}, err)
}

func TestCodecFailure(t *testing.T) {
	c := startCodec(t, &Codec{Processor: &testProcessor{}})

	queueInput(t, c, []byte("fail"), 0, 0)

	var info engine.BufferInfo
	require.Equal(t, StatusFailure, c.DequeueOutputBuffer(&info, time.Second))
	require.EqualError(t, c.Err(), "processing error")

	var f engine.Failer = c
	require.Error(t, f.Err())
}

func TestCodecSurfaceInput(t *testing.T) {
	c := startCodec(t, &Codec{
		Processor:    &testProcessor{},
		SurfaceInput: true,
	})

	require.True(t, c.HasInputSurface())
	require.Equal(t, engine.StatusTryAgainLater, c.DequeueInputBuffer(0))

	ok, err := c.RenderFrame([]byte("abc"), 1000, time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	err = c.SignalEndOfInputStream()
	require.NoError(t, err)

	var info engine.BufferInfo
	require.Equal(t, engine.StatusOutputFormatChanged, c.DequeueOutputBuffer(&info, time.Second))

	i, info := dequeueOutput(t, c)
	require.Equal(t, []byte("ABC"), c.OutputBuffers()[i][:info.Size])
	require.Equal(t, engine.FlagSyncFrame, info.Flags)
	require.NoError(t, c.ReleaseOutputBuffer(i, false))

	i, info = dequeueOutput(t, c)
	require.Equal(t, engine.BufferInfo{
		PresentationTimeUs: 1000,
		Flags:              engine.FlagEndOfStream,
	}, info)
	require.NoError(t, c.ReleaseOutputBuffer(i, false))
}

func TestCodecNoInputSurface(t *testing.T) {
	c := startCodec(t, &Codec{Processor: &testProcessor{}})

	require.False(t, c.HasInputSurface())

	_, err := c.RenderFrame([]byte("abc"), 0, 0)
	require.Equal(t, liberrors.ErrEngineNoInputSurface{}, err)

	err = c.SignalEndOfInputStream()
	require.Equal(t, liberrors.ErrEngineNoInputSurface{}, err)
}
