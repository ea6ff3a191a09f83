package codecpump

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bluenviron/codecpump/pkg/codec"
	"github.com/bluenviron/codecpump/pkg/engine"
	"github.com/bluenviron/codecpump/pkg/extractor"
	"github.com/bluenviron/codecpump/pkg/liberrors"
	"github.com/bluenviron/codecpump/pkg/processor"
)

func TestGroup(t *testing.T) {
	samples, err := extractor.GenerateTone(testLPCMFormat(), 440, 500*time.Millisecond)
	require.NoError(t, err)

	audio, err := extractor.NewLPCMTrack(testLPCMFormat(), samples, 20*time.Millisecond)
	require.NoError(t, err)

	g := &Group{
		Pumps: []*Pump{
			{
				Stages: engines(newVideoChain(t, 0)),
				Source: generateVideo(t, 30, 10),
			},
			{
				Stages: []engine.Engine{
					startCodec(t, &codec.Codec{Processor: &processor.LPCMPacketizer{}}, testLPCMFormat()),
					startCodec(t, &codec.Codec{Processor: &processor.LPCMDepacketizer{}}, testLPCMFormat()),
				},
				Source: audio,
				Mode:   RecordData,
			},
		},
	}

	recs, err := g.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 2)

	require.Equal(t, 30, recs[0].Units)
	require.True(t, recs[0].OutputEOS)

	require.Equal(t, samples, recs[1].Data)
	require.True(t, recs[1].OutputEOS)
}

func TestGroupFailure(t *testing.T) {
	failing := newStubEngine(true, -7)
	endless := newStubEngine(true, engine.StatusTryAgainLater)

	g := &Group{
		Pumps: []*Pump{
			{
				Stages: []engine.Engine{failing},
				Source: generateVideo(t, 5, 5),
			},
			{
				Stages:            []engine.Engine{endless},
				Source:            generateVideo(t, 5, 5),
				MaxDeadIterations: 1 << 30,
			},
		},
	}

	recs, err := g.Run(context.Background())
	require.Equal(t, liberrors.ErrEngineProtocol{Stage: 0, Code: -7}, err)
	require.Nil(t, recs[0])
	require.True(t, recs[1].Stopped)
	require.Equal(t, engine.StateReleased, failing.State())
	require.Equal(t, engine.StateReleased, endless.State())
}
