package extractor

import (
	"fmt"
	"time"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
)

var (
	syntheticSPS = []byte{
		0x67, 0x64, 0x00, 0x0c, 0xac, 0x3b, 0x50, 0xb0,
		0x4b, 0x42, 0x00, 0x00, 0x03, 0x00, 0x02, 0x00,
		0x00, 0x03, 0x00, 0x3d, 0x08,
	}
	syntheticPPS = []byte{0x68, 0xee, 0x3c, 0x80}
)

// SyntheticH264Params returns the parameters of access units generated by GenerateH264.
func SyntheticH264Params() ([]byte, []byte) {
	return syntheticSPS, syntheticPPS
}

// GenerateH264 generates a track of H264 access units in Annex-B format.
// Every syncInterval access units, an IDR is generated, preceded by SPS and PPS.
// Access unit content depends on its index only.
func GenerateH264(count int, syncInterval int, frameDuration time.Duration) (*Track, error) {
	if syncInterval <= 0 {
		return nil, fmt.Errorf("invalid sync interval (%d)", syncInterval)
	}

	t := &Track{
		Chunks: make([]Chunk, count),
	}

	for i := range count {
		size := 64 + (i*37)%900
		sync := i%syncInterval == 0

		nalu := make([]byte, 1+size)
		if sync {
			nalu[0] = byte(h264.NALUTypeIDR) | 0x60
		} else {
			nalu[0] = byte(h264.NALUTypeNonIDR) | 0x40
		}
		for j := 1; j < len(nalu); j++ {
			nalu[j] = byte((i+j)%255) + 1
		}

		au := h264.AnnexB{nalu}
		if sync {
			au = h264.AnnexB{syntheticSPS, syntheticPPS, nalu}
		}

		buf, err := au.Marshal()
		if err != nil {
			return nil, err
		}

		t.Chunks[i] = Chunk{
			Data: buf,
			PTS:  int64(i) * frameDuration.Microseconds(),
			Sync: sync,
		}
	}

	return t, nil
}
