package rtph264

import (
	"fmt"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/pion/rtp"
)

func stapLen(nalus [][]byte) int {
	n := 1 // STAP-A header
	for _, nalu := range nalus {
		n += 2 + len(nalu)
	}
	return n
}

// Encoder is a RTP/H264 encoder.
type Encoder struct {
	// payload type of packets.
	PayloadType uint8

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

	sequenceNumber uint16
}

// Init initializes the encoder.
func (e *Encoder) Init() error {
	if e.SSRC == nil {
		v, err := randUint32()
		if err != nil {
			return err
		}
		e.SSRC = &v
	}
	if e.InitialSequenceNumber == nil {
		v, err := randUint32()
		if err != nil {
			return err
		}
		v2 := uint16(v)
		e.InitialSequenceNumber = &v2
	}
	if e.InitialTimestamp == nil {
		v, err := randUint32()
		if err != nil {
			return err
		}
		e.InitialTimestamp = &v
	}
	if e.PayloadMaxSize == 0 {
		e.PayloadMaxSize = defaultPayloadMaxSize
	}
	if e.PayloadMaxSize < 3 {
		return fmt.Errorf("PayloadMaxSize is too small")
	}

	e.sequenceNumber = *e.InitialSequenceNumber
	return nil
}

// Encode encodes an access unit into RTP/H264 packets.
// The marker bit is set on the last packet.
func (e *Encoder) Encode(au [][]byte, ptsUs int64) ([]*rtp.Packet, error) {
	if len(au) == 0 {
		return nil, fmt.Errorf("access unit is empty")
	}

	ts := timestamp(*e.InitialTimestamp, ptsUs)
	var ret []*rtp.Packet
	var batch [][]byte

	flush := func(marker bool) {
		switch {
		case len(batch) > 1:
			ret = append(ret, e.packet(e.aggregate(batch), ts, marker))

		case len(batch[0]) <= e.PayloadMaxSize:
			ret = append(ret, e.packet(batch[0], ts, marker))

		default:
			ret = append(ret, e.fragment(batch[0], ts, marker)...)
		}
		batch = nil
	}

	for _, nalu := range au {
		if len(nalu) == 0 {
			return nil, fmt.Errorf("NALU is empty")
		}

		if batch != nil && stapLen(append(batch[:len(batch):len(batch)], nalu)) > e.PayloadMaxSize {
			flush(false)
		}
		batch = append(batch, nalu)
	}

	flush(true)

	return ret, nil
}

func (e *Encoder) packet(payload []byte, ts uint32, marker bool) *rtp.Packet {
	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        rtpVersion,
			PayloadType:    e.PayloadType,
			SequenceNumber: e.sequenceNumber,
			Timestamp:      ts,
			SSRC:           *e.SSRC,
			Marker:         marker,
		},
		Payload: payload,
	}
	e.sequenceNumber++
	return pkt
}

func (e *Encoder) aggregate(nalus [][]byte) []byte {
	payload := make([]byte, stapLen(nalus))
	payload[0] = uint8(h264.NALUTypeSTAPA)
	n := 1

	for _, nalu := range nalus {
		payload[n] = uint8(len(nalu) >> 8)
		payload[n+1] = uint8(len(nalu))
		n += 2
		n += copy(payload[n:], nalu)
	}

	return payload
}

// fragment splits a NALU into FU-A packets.
func (e *Encoder) fragment(nalu []byte, ts uint32, marker bool) []*rtp.Packet {
	avail := e.PayloadMaxSize - 2
	nri := (nalu[0] >> 5) & 0x03
	typ := nalu[0] & 0x1F
	body := nalu[1:]

	var ret []*rtp.Packet

	for i := 0; len(body) > 0; i++ {
		le := avail
		if le > len(body) {
			le = len(body)
		}
		last := le == len(body)

		var header byte
		if i == 0 {
			header |= 1 << 7
		}
		if last {
			header |= 1 << 6
		}

		payload := make([]byte, 2+le)
		payload[0] = (nri << 5) | uint8(h264.NALUTypeFUA)
		payload[1] = header | typ
		copy(payload[2:], body[:le])
		body = body[le:]

		ret = append(ret, e.packet(payload, ts, last && marker))
	}

	return ret
}
