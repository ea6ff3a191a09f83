// Package rtplpcm contains a RTP/LPCM encoder and decoder.
// Specification: https://datatracker.ietf.org/doc/html/rfc3190
package rtplpcm

import (
	"crypto/rand"
	"fmt"

	"github.com/pion/rtp"
)

const (
	rtpVersion            = 2
	defaultPayloadMaxSize = 1460 // 1500 (UDP MTU) - 20 (IP header) - 8 (UDP header) - 12 (RTP header)
)

func randUint32() (uint32, error) {
	var b [4]byte
	_, err := rand.Read(b[:])
	if err != nil {
		return 0, err
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}

// Encoder is a RTP/LPCM encoder.
type Encoder struct {
	// payload type of packets.
	PayloadType uint8

	// bit depth.
	BitDepth int

	// sample rate.
	SampleRate int

	// channel count.
	ChannelCount int

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
	sampleSize     int
	maxPayloadSize int
}

// Init initializes the encoder.
func (e *Encoder) Init() error {
	if e.BitDepth != 8 && e.BitDepth != 16 && e.BitDepth != 24 {
		return fmt.Errorf("unsupported bit depth: %d", e.BitDepth)
	}
	if e.ChannelCount <= 0 || e.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate or channel count")
	}

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

	e.sequenceNumber = *e.InitialSequenceNumber
	e.sampleSize = e.BitDepth * e.ChannelCount / 8
	e.maxPayloadSize = (e.PayloadMaxSize / e.sampleSize) * e.sampleSize

	if e.maxPayloadSize == 0 {
		return fmt.Errorf("PayloadMaxSize is too small")
	}

	return nil
}

// Encode encodes audio samples into RTP packets.
// ptsUs is the presentation timestamp of the first sample, in microseconds.
func (e *Encoder) Encode(samples []byte, ptsUs int64) ([]*rtp.Packet, error) {
	if len(samples) == 0 || (len(samples)%e.sampleSize) != 0 {
		return nil, fmt.Errorf("invalid samples")
	}

	ts := *e.InitialTimestamp + samplesAt(ptsUs, e.SampleRate)
	var ret []*rtp.Packet

	for len(samples) > 0 {
		le := e.maxPayloadSize
		if le > len(samples) {
			le = len(samples)
		}

		ret = append(ret, &rtp.Packet{
			Header: rtp.Header{
				Version:        rtpVersion,
				PayloadType:    e.PayloadType,
				SequenceNumber: e.sequenceNumber,
				Timestamp:      ts,
				SSRC:           *e.SSRC,
				Marker:         le == len(samples),
			},
			Payload: samples[:le],
		})

		e.sequenceNumber++
		ts += uint32(le / e.sampleSize)
		samples = samples[le:]
	}

	return ret, nil
}

// samplesAt converts a timestamp in microseconds into a sample count.
func samplesAt(ptsUs int64, sampleRate int) uint32 {
	secs := ptsUs / 1000000
	rem := ptsUs % 1000000
	return uint32(secs*int64(sampleRate) + rem*int64(sampleRate)/1000000)
}
