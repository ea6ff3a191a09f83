package processor

import (
	"bytes"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mpegts"

	"github.com/bluenviron/codecpump/pkg/codec"
	"github.com/bluenviron/codecpump/pkg/format"
)

func durationUsToMPEGTS(v int64) int64 {
	secs := v / 1000000
	dec := v % 1000000
	return secs*90000 + dec*90000/1000000
}

// MPEGTSMuxer wraps H264 access units in Annex-B format into a MPEG-TS stream.
// Every output unit contains the MPEG-TS packets of an input access unit.
type MPEGTSMuxer struct {
	forma               *format.H264
	buf                 bytes.Buffer
	w                   *mpegts.Writer
	track               *mpegts.Track
	waitingRandomAccess bool
}

// Configure implements codec.Processor.
func (p *MPEGTSMuxer) Configure(in format.Format) (format.Format, error) {
	forma, ok := in.(*format.H264)
	if !ok {
		return nil, errUnsupportedFormat(in)
	}
	p.forma = forma

	return &format.MPEGTS{}, nil
}

// Reset implements codec.Processor.
func (p *MPEGTSMuxer) Reset() {
	p.buf.Reset()
	p.track = &mpegts.Track{
		Codec: &mpegts.CodecH264{},
	}
	p.w = mpegts.NewWriter(&p.buf, []*mpegts.Track{p.track})
	p.waitingRandomAccess = true
}

// Process implements codec.Processor.
func (p *MPEGTSMuxer) Process(u codec.Unit) ([]codec.Unit, error) {
	var au h264.AnnexB
	err := au.Unmarshal(u.Data)
	if err != nil {
		return nil, err
	}

	var filteredAU [][]byte
	idrPresent := false

	for _, nalu := range au {
		typ := h264.NALUType(nalu[0] & 0x1F)
		switch typ {
		case h264.NALUTypeSPS:
			_, pps := p.forma.SafeParams()
			p.forma.SafeSetParams(nalu, pps)
			continue

		case h264.NALUTypePPS:
			sps, _ := p.forma.SafeParams()
			p.forma.SafeSetParams(sps, nalu)
			continue

		case h264.NALUTypeAccessUnitDelimiter:
			continue

		case h264.NALUTypeIDR:
			idrPresent = true
		}

		filteredAU = append(filteredAU, nalu)
	}

	if filteredAU == nil {
		return nil, nil
	}

	if p.waitingRandomAccess {
		if !idrPresent {
			return nil, nil
		}
		p.waitingRandomAccess = false
	}

	// add SPS and PPS before access units that contain an IDR
	if idrPresent {
		sps, pps := p.forma.SafeParams()
		if sps != nil && pps != nil {
			filteredAU = append([][]byte{sps, pps}, filteredAU...)
		}
	}

	pts := durationUsToMPEGTS(u.PTS)

	err = p.w.WriteH264(p.track, pts, pts, filteredAU)
	if err != nil {
		return nil, err
	}

	buf := bytes.Clone(p.buf.Bytes())
	p.buf.Reset()

	return []codec.Unit{{
		Data:  buf,
		PTS:   u.PTS,
		Flags: h264Flags(u.Flags, filteredAU),
	}}, nil
}

// Drain implements codec.Processor.
func (p *MPEGTSMuxer) Drain() ([]codec.Unit, error) {
	return nil, nil
}
