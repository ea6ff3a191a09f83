package codecpump

import (
	"hash/crc32"

	"github.com/bluenviron/codecpump/pkg/engine"
	"github.com/bluenviron/codecpump/pkg/format"
)

// RecordMode selects what is accumulated into a Record.
type RecordMode int

// record modes.
const (
	// RecordCount counts units and bytes.
	RecordCount RecordMode = iota

	// RecordChecksum counts units and bytes, and computes a CRC32 checksum of every unit.
	RecordChecksum

	// RecordData counts units and bytes, and keeps the content of every unit.
	RecordData
)

// StageStats are slot counters of a stage, as observed by the pump.
type StageStats struct {
	InputDequeued  int
	InputQueued    int
	OutputDequeued int
	OutputReleased int
	FormatChanges  int
	BuffersChanges int

	// last output format notified by the engine.
	OutputFormat format.Format
}

// Record is the output of a run.
type Record struct {
	// non-empty output units of the terminal engine.
	Units int

	// bytes of non-empty output units of the terminal engine.
	Bytes int64

	// CRC32 checksum of every unit (RecordChecksum only).
	Checksums []uint32

	// content of units, concatenated (RecordData only).
	Data []byte

	// timestamps of units, in microseconds.
	Timestamps []int64

	// output timestamps that were never submitted (VerifyTimestamps only).
	TimestampMismatches int

	// the terminal engine returned a buffer with the end-of-stream flag.
	OutputEOS bool

	// the source was exhausted but the end of stream never reached the output.
	Incomplete bool

	// the run was interrupted by the stop flag or by the context.
	Stopped bool

	// a reconfiguration was performed.
	Reconfigured bool

	// output formats notified by the terminal engine.
	OutputFormats []format.Format

	// slot counters of every stage. They are never reset.
	Stages []StageStats
}

func (r *Record) add(mode RecordMode, data []byte, info engine.BufferInfo) {
	r.Units++
	r.Bytes += int64(len(data))
	r.Timestamps = append(r.Timestamps, info.PresentationTimeUs)

	switch mode {
	case RecordChecksum:
		r.Checksums = append(r.Checksums, crc32.ChecksumIEEE(data))

	case RecordData:
		r.Data = append(r.Data, data...)
	}
}

// resetPosition discards output accumulated so far.
func (r *Record) resetPosition() {
	r.Units = 0
	r.Bytes = 0
	r.Checksums = nil
	r.Data = nil
	r.Timestamps = nil
	r.TimestampMismatches = 0
	r.OutputEOS = false
}
