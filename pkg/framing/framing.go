// Package framing contains the framing used to exchange RTP packets
// between engines, inside a single buffer.
package framing

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/pion/rtp"
)

const (
	// MagicByte is the first byte of a frame.
	MagicByte = 0x24

	// ChannelRTP is the channel of frames that contain RTP packets.
	ChannelRTP = 0

	maxPayloadSize = 0xFFFF
)

// Frame is a length-prefixed chunk of binary data.
type Frame struct {
	// channel ID
	Channel int

	// payload
	Payload []byte
}

// Unmarshal decodes a frame.
func (f *Frame) Unmarshal(br *bufio.Reader) error {
	var header [4]byte
	_, err := io.ReadFull(br, header[:])
	if err != nil {
		return err
	}

	if header[0] != MagicByte {
		return fmt.Errorf("invalid magic byte (0x%.2x)", header[0])
	}

	payloadLen := int(uint16(header[2])<<8 | uint16(header[3]))

	f.Channel = int(header[1])
	f.Payload = make([]byte, payloadLen)

	_, err = io.ReadFull(br, f.Payload)
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

// MarshalSize returns the size of a Frame.
func (f Frame) MarshalSize() int {
	return 4 + len(f.Payload)
}

// MarshalTo writes a Frame.
func (f Frame) MarshalTo(buf []byte) (int, error) {
	if len(f.Payload) > maxPayloadSize {
		return 0, fmt.Errorf("payload size (%d) exceeds maximum (%d)", len(f.Payload), maxPayloadSize)
	}

	buf[0] = MagicByte
	buf[1] = byte(f.Channel)
	buf[2] = byte(len(f.Payload) >> 8)
	buf[3] = byte(len(f.Payload))

	return 4 + copy(buf[4:], f.Payload), nil
}

// Marshal writes a Frame.
func (f Frame) Marshal() ([]byte, error) {
	buf := make([]byte, f.MarshalSize())
	_, err := f.MarshalTo(buf)
	return buf, err
}

// AppendPackets appends RTP packets to buf, one frame each.
func AppendPackets(buf []byte, pkts []*rtp.Packet) ([]byte, error) {
	for _, pkt := range pkts {
		raw, err := pkt.Marshal()
		if err != nil {
			return nil, err
		}

		buf, err = AppendFrame(buf, Frame{Channel: ChannelRTP, Payload: raw})
		if err != nil {
			return nil, err
		}
	}

	return buf, nil
}

// AppendFrame appends a frame to buf.
func AppendFrame(buf []byte, f Frame) ([]byte, error) {
	n := len(buf)
	buf = append(buf, make([]byte, f.MarshalSize())...)

	_, err := f.MarshalTo(buf[n:])
	if err != nil {
		return nil, err
	}

	return buf, nil
}

// ReadFrames decodes all the frames contained in buf.
func ReadFrames(buf []byte) ([]Frame, error) {
	br := bufio.NewReader(bytes.NewReader(buf))
	var frames []Frame

	for {
		var f Frame
		err := f.Unmarshal(br)
		if err != nil {
			if err == io.EOF {
				return frames, nil
			}
			return nil, err
		}

		frames = append(frames, f)
	}
}

// ReadPackets decodes all the RTP packets contained in buf.
func ReadPackets(buf []byte) ([]*rtp.Packet, error) {
	frames, err := ReadFrames(buf)
	if err != nil {
		return nil, err
	}

	pkts := make([]*rtp.Packet, 0, len(frames))

	for _, f := range frames {
		if f.Channel != ChannelRTP {
			return nil, fmt.Errorf("unexpected channel (%d)", f.Channel)
		}

		var pkt rtp.Packet
		err = pkt.Unmarshal(f.Payload)
		if err != nil {
			return nil, err
		}

		pkts = append(pkts, &pkt)
	}

	return pkts, nil
}
