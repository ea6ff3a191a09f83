package extractor

import (
	"fmt"
	"math"
	"time"

	"github.com/bluenviron/codecpump/pkg/format"
)

// NewLPCMTrack splits LPCM samples into chunks that last chunkDuration.
// Every chunk is a sync chunk.
func NewLPCMTrack(forma *format.LPCM, samples []byte, chunkDuration time.Duration) (*Track, error) {
	sampleSize := forma.SampleSize()
	if sampleSize <= 0 || len(samples)%sampleSize != 0 {
		return nil, fmt.Errorf("invalid samples")
	}

	samplesPerChunk := int(int64(forma.SampleRate) * chunkDuration.Microseconds() / 1000000)
	if samplesPerChunk <= 0 {
		return nil, fmt.Errorf("chunk duration is too small")
	}

	t := &Track{}
	chunkSize := samplesPerChunk * sampleSize

	for pos := 0; pos < len(samples); pos += chunkSize {
		end := min(pos+chunkSize, len(samples))

		t.Chunks = append(t.Chunks, Chunk{
			Data: samples[pos:end],
			PTS:  int64(pos/sampleSize) * 1000000 / int64(forma.SampleRate),
			Sync: true,
		})
	}

	return t, nil
}

// GenerateTone generates a big-endian sine tone in the given format.
func GenerateTone(forma *format.LPCM, frequency float64, duration time.Duration) ([]byte, error) {
	if forma.BitDepth != 8 && forma.BitDepth != 16 && forma.BitDepth != 24 {
		return nil, fmt.Errorf("unsupported bit depth: %d", forma.BitDepth)
	}

	count := int(int64(forma.SampleRate) * duration.Microseconds() / 1000000)
	bytesPerSample := forma.BitDepth / 8
	buf := make([]byte, 0, count*forma.SampleSize())
	maxValue := float64(int64(1)<<(forma.BitDepth-1) - 1)

	for i := range count {
		v := int32(maxValue * 0.5 * math.Sin(2*math.Pi*frequency*float64(i)/float64(forma.SampleRate)))

		for range forma.ChannelCount {
			for b := bytesPerSample - 1; b >= 0; b-- {
				buf = append(buf, byte(v>>(8*b)))
			}
		}
	}

	return buf, nil
}
