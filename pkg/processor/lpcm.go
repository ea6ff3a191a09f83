package processor

import (
	"github.com/bluenviron/codecpump/pkg/codec"
	"github.com/bluenviron/codecpump/pkg/engine"
	"github.com/bluenviron/codecpump/pkg/format"
	"github.com/bluenviron/codecpump/pkg/framing"
	"github.com/bluenviron/codecpump/pkg/rtplpcm"
)

// LPCMPacketizer converts LPCM samples into RTP packets.
type LPCMPacketizer struct {
	// SSRC of packets (optional).
	// It defaults to a random value.
	SSRC *uint32

	// initial sequence number of packets (optional).
	// It defaults to a random value.
	InitialSequenceNumber *uint16

	// initial timestamp of packets (optional).
	// It defaults to a random value.
	InitialTimestamp *uint32

	// maximum size of packet payloads (optional).
	// It defaults to 1460.
	PayloadMaxSize int

	enc *rtplpcm.Encoder
}

func (p *LPCMPacketizer) newEncoder(forma *format.LPCM) error {
	p.enc = &rtplpcm.Encoder{
		PayloadType:           forma.PayloadType(),
		BitDepth:              forma.BitDepth,
		SampleRate:            forma.SampleRate,
		ChannelCount:          forma.ChannelCount,
		SSRC:                  p.SSRC,
		InitialSequenceNumber: p.InitialSequenceNumber,
		InitialTimestamp:      p.InitialTimestamp,
		PayloadMaxSize:        p.PayloadMaxSize,
	}
	err := p.enc.Init()
	if err != nil {
		return err
	}

	// keep random values across resets
	p.SSRC = p.enc.SSRC
	p.InitialSequenceNumber = p.enc.InitialSequenceNumber
	p.InitialTimestamp = p.enc.InitialTimestamp

	return nil
}

// Configure implements codec.Processor.
func (p *LPCMPacketizer) Configure(in format.Format) (format.Format, error) {
	forma, ok := in.(*format.LPCM)
	if !ok {
		return nil, errUnsupportedFormat(in)
	}

	err := p.newEncoder(forma)
	if err != nil {
		return nil, err
	}

	return forma, nil
}

// Reset implements codec.Processor.
func (p *LPCMPacketizer) Reset() {
	p.enc = &rtplpcm.Encoder{
		PayloadType:           p.enc.PayloadType,
		BitDepth:              p.enc.BitDepth,
		SampleRate:            p.enc.SampleRate,
		ChannelCount:          p.enc.ChannelCount,
		SSRC:                  p.enc.SSRC,
		InitialSequenceNumber: p.enc.InitialSequenceNumber,
		InitialTimestamp:      p.enc.InitialTimestamp,
		PayloadMaxSize:        p.enc.PayloadMaxSize,
	}
	p.enc.Init() //nolint:errcheck
}

// Process implements codec.Processor.
func (p *LPCMPacketizer) Process(u codec.Unit) ([]codec.Unit, error) {
	pkts, err := p.enc.Encode(u.Data, u.PTS)
	if err != nil {
		return nil, err
	}

	buf, err := framing.AppendPackets(nil, pkts)
	if err != nil {
		return nil, err
	}

	return []codec.Unit{{
		Data:  buf,
		PTS:   u.PTS,
		Flags: engine.FlagSyncFrame,
	}}, nil
}

// Drain implements codec.Processor.
func (p *LPCMPacketizer) Drain() ([]codec.Unit, error) {
	return nil, nil
}

// LPCMDepacketizer converts RTP packets into LPCM samples.
type LPCMDepacketizer struct {
	dec *rtplpcm.Decoder
}

// Configure implements codec.Processor.
func (p *LPCMDepacketizer) Configure(in format.Format) (format.Format, error) {
	forma, ok := in.(*format.LPCM)
	if !ok {
		return nil, errUnsupportedFormat(in)
	}

	p.dec = &rtplpcm.Decoder{
		BitDepth:     forma.BitDepth,
		ChannelCount: forma.ChannelCount,
	}
	err := p.dec.Init()
	if err != nil {
		return nil, err
	}

	return forma, nil
}

// Reset implements codec.Processor.
func (p *LPCMDepacketizer) Reset() {
}

// Process implements codec.Processor.
func (p *LPCMDepacketizer) Process(u codec.Unit) ([]codec.Unit, error) {
	pkts, err := framing.ReadPackets(u.Data)
	if err != nil {
		return nil, err
	}

	var samples []byte

	for _, pkt := range pkts {
		partial, err := p.dec.Decode(pkt)
		if err != nil {
			return nil, err
		}
		samples = append(samples, partial...)
	}

	return []codec.Unit{{
		Data:  samples,
		PTS:   u.PTS,
		Flags: engine.FlagSyncFrame,
	}}, nil
}

// Drain implements codec.Processor.
func (p *LPCMDepacketizer) Drain() ([]codec.Unit, error) {
	return nil, nil
}
