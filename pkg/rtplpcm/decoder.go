package rtplpcm

import (
	"fmt"

	"github.com/pion/rtp"
)

// Decoder is a RTP/LPCM decoder.
type Decoder struct {
	BitDepth     int
	ChannelCount int

	sampleSize int
}

// Init initializes the decoder.
func (d *Decoder) Init() error {
	d.sampleSize = d.BitDepth * d.ChannelCount / 8
	if d.sampleSize <= 0 {
		return fmt.Errorf("invalid bit depth or channel count")
	}
	return nil
}

// Decode decodes audio samples from a RTP packet.
func (d *Decoder) Decode(pkt *rtp.Packet) ([]byte, error) {
	if (len(pkt.Payload) % d.sampleSize) != 0 {
		return nil, fmt.Errorf("received payload of wrong size")
	}

	return pkt.Payload, nil
}
