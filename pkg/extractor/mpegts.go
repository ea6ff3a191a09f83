package extractor

import (
	"errors"
	"fmt"
	"io"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mpegts"

	"github.com/bluenviron/codecpump/pkg/format"
)

func multiplyAndDivide(v, m, d int64) int64 {
	secs := v / d
	dec := v % d
	return (secs*m + dec*m/d)
}

func findH264Track(r *mpegts.Reader) (*mpegts.Track, error) {
	for _, track := range r.Tracks() {
		if _, ok := track.Codec.(*mpegts.CodecH264); ok {
			return track, nil
		}
	}
	return nil, fmt.Errorf("H264 track not found")
}

// ReadMPEGTS reads the H264 track of a MPEG-TS stream.
// Timestamps are in microseconds, relative to the first access unit.
// The returned format contains SPS and PPS found in the stream.
func ReadMPEGTS(r io.Reader) (*Track, *format.H264, error) {
	mr := &mpegts.Reader{R: r}
	err := mr.Initialize()
	if err != nil {
		return nil, nil, err
	}

	track, err := findH264Track(mr)
	if err != nil {
		return nil, nil, err
	}

	forma := &format.H264{
		PayloadTyp:        96,
		PacketizationMode: 1,
	}

	timeDecoder := mpegts.TimeDecoder{}
	timeDecoder.Initialize()

	t := &Track{}
	var firstPTS *int64

	mr.OnDataH264(track, func(pts, _ int64, au [][]byte) error {
		pts = timeDecoder.Decode(pts)

		if firstPTS == nil {
			firstPTS = &pts
		}

		var filteredAU [][]byte

		for _, nalu := range au {
			switch h264.NALUType(nalu[0] & 0x1F) {
			case h264.NALUTypeAccessUnitDelimiter:
				continue

			case h264.NALUTypeSPS:
				if forma.SPS == nil {
					forma.SPS = nalu
				}

			case h264.NALUTypePPS:
				if forma.PPS == nil {
					forma.PPS = nalu
				}
			}

			filteredAU = append(filteredAU, nalu)
		}

		if filteredAU == nil {
			return nil
		}

		buf, err2 := h264.AnnexB(filteredAU).Marshal()
		if err2 != nil {
			return err2
		}

		t.Chunks = append(t.Chunks, Chunk{
			Data: buf,
			PTS:  multiplyAndDivide(pts-*firstPTS, 1000000, 90000),
			Sync: h264.IsRandomAccess(filteredAU),
		})
		return nil
	})

	for {
		err = mr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, nil, err
		}
	}

	return t, forma, nil
}
