// Package extractor contains stream cursors, that feed the first engine of a pump.
package extractor

import (
	"fmt"
	"io"
)

// Chunk is a unit of source data.
type Chunk struct {
	Data []byte
	PTS  int64
	Sync bool
}

// Cursor tracks the position inside a source.
type Cursor interface {
	// NextChunk returns the chunk at the current position and advances the cursor.
	// It returns io.EOF when the source is exhausted.
	NextChunk() (Chunk, error)

	// CurrentTimestamp returns the timestamp of the chunk at the current position,
	// or -1 when the source is exhausted.
	CurrentTimestamp() int64

	// SeekToNearestSyncPoint moves the cursor to the sync chunk that is closest
	// to target, without exceeding it when possible.
	SeekToNearestSyncPoint(target int64) error
}

// SeekMode is a seek mode.
type SeekMode int

// seek modes.
const (
	SeekPreviousSync SeekMode = iota
	SeekNextSync
	SeekClosestSync
)

// Track is an in-memory cursor over a list of chunks.
type Track struct {
	Chunks []Chunk

	pos int
}

// NextChunk implements Cursor.
func (t *Track) NextChunk() (Chunk, error) {
	if t.pos >= len(t.Chunks) {
		return Chunk{}, io.EOF
	}

	c := t.Chunks[t.pos]
	t.pos++
	return c, nil
}

// CurrentTimestamp implements Cursor.
func (t *Track) CurrentTimestamp() int64 {
	if t.pos >= len(t.Chunks) {
		return -1
	}
	return t.Chunks[t.pos].PTS
}

// SeekToNearestSyncPoint implements Cursor.
// The cursor is moved to the last sync chunk at or before target;
// if there's none, it is moved to the first sync chunk after target.
func (t *Track) SeekToNearestSyncPoint(target int64) error {
	err := t.SeekTo(target, SeekPreviousSync)
	if err == nil {
		return nil
	}
	return t.SeekTo(target, SeekNextSync)
}

// SeekTo moves the cursor to a sync chunk.
func (t *Track) SeekTo(target int64, mode SeekMode) error {
	prev := -1
	next := -1

	for i, c := range t.Chunks {
		if !c.Sync {
			continue
		}

		if c.PTS <= target {
			prev = i
		} else if next < 0 {
			next = i
		}
	}

	var pos int

	switch mode {
	case SeekPreviousSync:
		pos = prev

	case SeekNextSync:
		pos = next

	default:
		switch {
		case prev < 0:
			pos = next
		case next < 0:
			pos = prev
		case target-t.Chunks[prev].PTS <= t.Chunks[next].PTS-target:
			pos = prev
		default:
			pos = next
		}
	}

	if pos < 0 {
		return fmt.Errorf("no sync chunk found around %d", target)
	}

	t.pos = pos
	return nil
}

// Position returns the index of the chunk at the current position.
func (t *Track) Position() int {
	return t.pos
}

// Rewind moves the cursor to the first chunk.
func (t *Track) Rewind() {
	t.pos = 0
}

// Clone returns a cursor that shares chunks with t and starts from the first chunk.
func (t *Track) Clone() *Track {
	return &Track{Chunks: t.Chunks}
}
