package format

import (
	"fmt"
	"strconv"
)

// LPCM is the format of uncompressed, Linear PCM streams.
// Specification: https://datatracker.ietf.org/doc/html/rfc3190
type LPCM struct {
	PayloadTyp   uint8
	BitDepth     int
	SampleRate   int
	ChannelCount int
}

func (f *LPCM) unmarshal(p *mediaParams) error {
	f.PayloadTyp = p.payloadType

	// static payload types are L16 at 44100Hz, stereo (10) or mono (11)
	if !isDynamicPayloadType(p.payloadType) {
		f.BitDepth = 16
		f.SampleRate = 44100
		f.ChannelCount = 1
		if p.payloadType == 10 {
			f.ChannelCount = 2
		}
		return nil
	}

	// encoding is one of l8, l16, l24
	bitDepth, err := strconv.Atoi(p.encoding[1:])
	if err != nil {
		return fmt.Errorf("invalid encoding: '%s'", p.encoding)
	}
	f.BitDepth = bitDepth

	sampleRate, err := strconv.Atoi(p.clockRate)
	if err != nil || sampleRate <= 0 {
		return fmt.Errorf("invalid sample rate: '%s'", p.clockRate)
	}
	f.SampleRate = sampleRate

	f.ChannelCount = 1

	if p.encodingParams != "" {
		channelCount, err := strconv.Atoi(p.encodingParams)
		if err != nil || channelCount <= 0 {
			return fmt.Errorf("invalid channel count: '%s'", p.encodingParams)
		}
		f.ChannelCount = channelCount
	}

	return nil
}

// Codec implements Format.
func (f *LPCM) Codec() string {
	return "LPCM"
}

// MediaType implements Format.
func (f *LPCM) MediaType() string {
	return "audio"
}

// ClockRate implements Format.
func (f *LPCM) ClockRate() int {
	return f.SampleRate
}

// PayloadType implements Format.
func (f *LPCM) PayloadType() uint8 {
	return f.PayloadTyp
}

// RTPMap implements Format.
func (f *LPCM) RTPMap() string {
	var codec string
	switch f.BitDepth {
	case 8:
		codec = "L8"

	case 16:
		codec = "L16"

	default:
		codec = "L24"
	}

	return codec + "/" + strconv.FormatInt(int64(f.SampleRate), 10) +
		"/" + strconv.FormatInt(int64(f.ChannelCount), 10)
}

// FMTP implements Format.
func (f *LPCM) FMTP() map[string]string {
	return nil
}

// SampleSize returns the size in bytes of a sample of every channel.
func (f *LPCM) SampleSize() int {
	return f.BitDepth * f.ChannelCount / 8
}
