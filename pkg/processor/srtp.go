package processor

import (
	"fmt"

	"github.com/pion/rtp"
	"github.com/pion/srtp/v3"

	"github.com/bluenviron/codecpump/pkg/codec"
	"github.com/bluenviron/codecpump/pkg/format"
	"github.com/bluenviron/codecpump/pkg/framing"
)

// SRTPKeyLength is the length of SRTP keys: a 16-byte master key followed by a 14-byte master salt.
const SRTPKeyLength = 30

// srtpContext is a srtp.Context that is created on demand, with a known key.
type srtpContext struct {
	key []byte
	w   *srtp.Context
}

func (ctx *srtpContext) initialize() error {
	if len(ctx.key) != SRTPKeyLength {
		return fmt.Errorf("invalid SRTP key length (%d)", len(ctx.key))
	}

	var err error
	ctx.w, err = srtp.CreateContext(ctx.key[:16], ctx.key[16:], srtp.ProtectionProfileAes128CmHmacSha1_80)
	return err
}

// process applies fn to every RTP packet contained in buf.
func (ctx *srtpContext) process(
	buf []byte,
	fn func(dst []byte, src []byte, header *rtp.Header) ([]byte, error),
) ([]byte, error) {
	frames, err := framing.ReadFrames(buf)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(buf)+len(frames)*10)

	for _, f := range frames {
		var header rtp.Header
		_, err = header.Unmarshal(f.Payload)
		if err != nil {
			return nil, err
		}

		f.Payload, err = fn(nil, f.Payload, &header)
		if err != nil {
			return nil, err
		}

		out, err = framing.AppendFrame(out, f)
		if err != nil {
			return nil, err
		}
	}

	return out, nil
}

// SRTPProtector encrypts RTP packets with SRTP.
type SRTPProtector struct {
	// SRTP key.
	Key []byte

	ctx srtpContext
}

// Configure implements codec.Processor.
func (p *SRTPProtector) Configure(in format.Format) (format.Format, error) {
	p.ctx.key = p.Key

	err := p.ctx.initialize()
	if err != nil {
		return nil, err
	}

	return in, nil
}

// Reset implements codec.Processor.
func (p *SRTPProtector) Reset() {
	p.ctx.initialize() //nolint:errcheck
}

// Process implements codec.Processor.
func (p *SRTPProtector) Process(u codec.Unit) ([]codec.Unit, error) {
	buf, err := p.ctx.process(u.Data, p.ctx.w.EncryptRTP)
	if err != nil {
		return nil, err
	}

	return []codec.Unit{{Data: buf, PTS: u.PTS, Flags: u.Flags}}, nil
}

// Drain implements codec.Processor.
func (p *SRTPProtector) Drain() ([]codec.Unit, error) {
	return nil, nil
}

// SRTPUnprotector decrypts SRTP packets.
type SRTPUnprotector struct {
	// SRTP key.
	Key []byte

	ctx srtpContext
}

// Configure implements codec.Processor.
func (p *SRTPUnprotector) Configure(in format.Format) (format.Format, error) {
	p.ctx.key = p.Key

	err := p.ctx.initialize()
	if err != nil {
		return nil, err
	}

	return in, nil
}

// Reset implements codec.Processor.
func (p *SRTPUnprotector) Reset() {
	p.ctx.initialize() //nolint:errcheck
}

// Process implements codec.Processor.
func (p *SRTPUnprotector) Process(u codec.Unit) ([]codec.Unit, error) {
	buf, err := p.ctx.process(u.Data, p.ctx.w.DecryptRTP)
	if err != nil {
		return nil, err
	}

	return []codec.Unit{{Data: buf, PTS: u.PTS, Flags: u.Flags}}, nil
}

// Drain implements codec.Processor.
func (p *SRTPUnprotector) Drain() ([]codec.Unit, error) {
	return nil, nil
}
