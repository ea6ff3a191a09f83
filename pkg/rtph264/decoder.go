package rtph264

import (
	"errors"
	"fmt"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/pion/rtp"
)

// ErrMorePacketsNeeded is returned when more packets are needed.
var ErrMorePacketsNeeded = errors.New("need more packets")

// Decoder is a RTP/H264 decoder.
type Decoder struct {
	fragments     [][]byte
	fragmentsSize int
	fragmentNext  uint16
	frameBuffer   [][]byte
	frameSize     int
}

// Init initializes the decoder.
func (d *Decoder) Init() error {
	d.Reset()
	return nil
}

// Reset discards any partially decoded access unit.
func (d *Decoder) Reset() {
	d.fragments = nil
	d.fragmentsSize = 0
	d.frameBuffer = nil
	d.frameSize = 0
}

func (d *Decoder) decodeNALUs(pkt *rtp.Packet) ([][]byte, error) {
	if len(pkt.Payload) < 1 {
		d.fragments = nil
		return nil, fmt.Errorf("payload is too short")
	}

	typ := h264.NALUType(pkt.Payload[0] & 0x1F)

	switch typ {
	case h264.NALUTypeFUA:
		if len(pkt.Payload) < 2 {
			d.fragments = nil
			return nil, fmt.Errorf("invalid FU-A packet (invalid size)")
		}

		start := pkt.Payload[1] >> 7
		end := (pkt.Payload[1] >> 6) & 0x01

		if start == 1 {
			nri := (pkt.Payload[0] >> 5) & 0x03
			header := (nri << 5) | (pkt.Payload[1] & 0x1F)
			d.fragments = [][]byte{{header}, pkt.Payload[2:]}
			d.fragmentsSize = 1 + len(pkt.Payload[2:])
			d.fragmentNext = pkt.SequenceNumber + 1
		} else {
			if d.fragments == nil {
				return nil, fmt.Errorf("invalid FU-A packet (non-starting)")
			}

			if pkt.SequenceNumber != d.fragmentNext {
				d.fragments = nil
				return nil, fmt.Errorf("discarding frame since a RTP packet is missing")
			}

			d.fragments = append(d.fragments, pkt.Payload[2:])
			d.fragmentsSize += len(pkt.Payload[2:])
			d.fragmentNext++
		}

		if d.fragmentsSize > h264.MaxAccessUnitSize {
			d.fragments = nil
			return nil, fmt.Errorf("NALU size (%d) is too big, maximum is %d", d.fragmentsSize, h264.MaxAccessUnitSize)
		}

		if end != 1 {
			return nil, ErrMorePacketsNeeded
		}

		nalu := make([]byte, 0, d.fragmentsSize)
		for _, f := range d.fragments {
			nalu = append(nalu, f...)
		}
		d.fragments = nil

		return [][]byte{nalu}, nil

	case h264.NALUTypeSTAPA:
		d.fragments = nil
		payload := pkt.Payload[1:]
		var nalus [][]byte

		for len(payload) > 0 {
			if len(payload) < 2 {
				return nil, fmt.Errorf("invalid STAP-A packet (invalid size)")
			}

			size := int(payload[0])<<8 | int(payload[1])
			payload = payload[2:]

			if size == 0 || size > len(payload) {
				return nil, fmt.Errorf("invalid STAP-A packet (invalid size)")
			}

			nalus = append(nalus, payload[:size])
			payload = payload[size:]
		}

		if nalus == nil {
			return nil, fmt.Errorf("STAP-A packet doesn't contain any NALU")
		}

		return nalus, nil

	case h264.NALUTypeSTAPB, h264.NALUTypeMTAP16,
		h264.NALUTypeMTAP24, h264.NALUTypeFUB:
		d.fragments = nil
		return nil, fmt.Errorf("packet type not supported (%v)", typ)
	}

	d.fragments = nil
	return [][]byte{pkt.Payload}, nil
}

// Decode decodes an access unit from RTP packets.
// It returns ErrMorePacketsNeeded until the packet with the marker bit is received.
func (d *Decoder) Decode(pkt *rtp.Packet) ([][]byte, error) {
	nalus, err := d.decodeNALUs(pkt)
	if err != nil {
		return nil, err
	}

	for _, nalu := range nalus {
		d.frameSize += len(nalu)
	}

	if len(d.frameBuffer)+len(nalus) > h264.MaxNALUsPerAccessUnit || d.frameSize > h264.MaxAccessUnitSize {
		d.frameBuffer = nil
		d.frameSize = 0
		return nil, fmt.Errorf("access unit is too big")
	}

	d.frameBuffer = append(d.frameBuffer, nalus...)

	if !pkt.Marker {
		return nil, ErrMorePacketsNeeded
	}

	au := d.frameBuffer
	d.frameBuffer = nil
	d.frameSize = 0

	return au, nil
}
