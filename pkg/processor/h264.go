package processor

import (
	"errors"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"

	"github.com/bluenviron/codecpump/pkg/codec"
	"github.com/bluenviron/codecpump/pkg/engine"
	"github.com/bluenviron/codecpump/pkg/format"
	"github.com/bluenviron/codecpump/pkg/framing"
	"github.com/bluenviron/codecpump/pkg/rtph264"
)

func h264Flags(in engine.Flag, au [][]byte) engine.Flag {
	flags := in &^ (engine.FlagSyncFrame | engine.FlagEndOfStream)
	if h264.IsRandomAccess(au) {
		flags |= engine.FlagSyncFrame
	}
	return flags
}

// H264Packetizer converts H264 access units in Annex-B format into RTP packets.
type H264Packetizer struct {
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

	enc *rtph264.Encoder
}

// Configure implements codec.Processor.
func (p *H264Packetizer) Configure(in format.Format) (format.Format, error) {
	forma, ok := in.(*format.H264)
	if !ok {
		return nil, errUnsupportedFormat(in)
	}

	p.enc = &rtph264.Encoder{
		PayloadType:           forma.PayloadType(),
		SSRC:                  p.SSRC,
		InitialSequenceNumber: p.InitialSequenceNumber,
		InitialTimestamp:      p.InitialTimestamp,
		PayloadMaxSize:        p.PayloadMaxSize,
	}
	err := p.enc.Init()
	if err != nil {
		return nil, err
	}

	// keep random values across resets
	p.SSRC = p.enc.SSRC
	p.InitialSequenceNumber = p.enc.InitialSequenceNumber
	p.InitialTimestamp = p.enc.InitialTimestamp

	return forma, nil
}

// Reset implements codec.Processor.
func (p *H264Packetizer) Reset() {
	p.enc = &rtph264.Encoder{
		PayloadType:           p.enc.PayloadType,
		SSRC:                  p.enc.SSRC,
		InitialSequenceNumber: p.enc.InitialSequenceNumber,
		InitialTimestamp:      p.enc.InitialTimestamp,
		PayloadMaxSize:        p.enc.PayloadMaxSize,
	}
	p.enc.Init() //nolint:errcheck
}

// Process implements codec.Processor.
func (p *H264Packetizer) Process(u codec.Unit) ([]codec.Unit, error) {
	var au h264.AnnexB
	err := au.Unmarshal(u.Data)
	if err != nil {
		return nil, err
	}

	pkts, err := p.enc.Encode(au, u.PTS)
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
		Flags: h264Flags(u.Flags, au),
	}}, nil
}

// Drain implements codec.Processor.
func (p *H264Packetizer) Drain() ([]codec.Unit, error) {
	return nil, nil
}

// H264Depacketizer converts RTP packets into H264 access units in Annex-B format.
// After a start or a flush, access units are discarded until a random access one is found.
type H264Depacketizer struct {
	dec                 *rtph264.Decoder
	waitingRandomAccess bool
}

// Configure implements codec.Processor.
func (p *H264Depacketizer) Configure(in format.Format) (format.Format, error) {
	forma, ok := in.(*format.H264)
	if !ok {
		return nil, errUnsupportedFormat(in)
	}

	return forma, nil
}

// Reset implements codec.Processor.
func (p *H264Depacketizer) Reset() {
	p.dec = &rtph264.Decoder{}
	p.dec.Init() //nolint:errcheck
	p.waitingRandomAccess = true
}

// Process implements codec.Processor.
func (p *H264Depacketizer) Process(u codec.Unit) ([]codec.Unit, error) {
	pkts, err := framing.ReadPackets(u.Data)
	if err != nil {
		return nil, err
	}

	var outs []codec.Unit

	for _, pkt := range pkts {
		au, err := p.dec.Decode(pkt)
		if err != nil {
			if errors.Is(err, rtph264.ErrMorePacketsNeeded) {
				continue
			}
			return nil, err
		}

		if p.waitingRandomAccess {
			if !h264.IsRandomAccess(au) {
				continue
			}
			p.waitingRandomAccess = false
		}

		buf, err := h264.AnnexB(au).Marshal()
		if err != nil {
			return nil, err
		}

		outs = append(outs, codec.Unit{
			Data:  buf,
			PTS:   u.PTS,
			Flags: h264Flags(u.Flags, au),
		})
	}

	return outs, nil
}

// Drain implements codec.Processor.
func (p *H264Depacketizer) Drain() ([]codec.Unit, error) {
	return nil, nil
}
