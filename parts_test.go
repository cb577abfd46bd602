// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Victor Bush
// Source: github.com/victorbush/ego.nefsedit

package nefs

import (
	"errors"
	"testing"
)

func TestParsePart6VolumeAndFlags(t *testing.T) {
	// One record: volume 2, flags byte 0x01 at record offset 0x02.
	buf := []byte{0x02, 0x00, 0x01, 0x00}

	entries, err := parsePart6(buf, partRange{Offset: 0, Count: 1})
	if err != nil {
		t.Fatal(err)
	}

	e := entries[0]
	if e.Volume != 2 {
		t.Errorf("volume = %d, want 2", e.Volume)
	}
	if !e.Flags.IsTransformed() {
		t.Error("transformed bit not set")
	}
	if e.Flags.IsDirectory() || e.Flags.IsDuplicated() || e.Flags.IsCacheable() || e.Flags.IsPatched() {
		t.Errorf("unexpected flag bits in %#x", uint8(e.Flags))
	}
	if e.Raw != [4]byte{0x02, 0x00, 0x01, 0x00} {
		t.Errorf("raw record = %v", e.Raw)
	}
}

func TestParsePart6ZeroCount(t *testing.T) {
	entries, err := parsePart6(nil, partRange{})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("entries = %d, want 0", len(entries))
	}
}

func TestNameTable(t *testing.T) {
	b := newNameTableBuilder()
	offA := b.add("alpha")
	offB := b.add("beta")
	offA2 := b.add("alpha")

	if offA != offA2 {
		t.Errorf("duplicate name not deduplicated: %d vs %d", offA, offA2)
	}

	table := &nameTable{raw: b.bytes()}

	name, err := table.Name(offB)
	if err != nil {
		t.Fatal(err)
	}
	if name != "beta" {
		t.Errorf("name = %q", name)
	}

	if _, err := table.Name(uint32(len(b.bytes()))); !errors.Is(err, ErrNameNotFound) {
		t.Errorf("expected ErrNameNotFound past end, got %v", err)
	}
}

func TestParsePart3ZeroCountIgnoresOffset(t *testing.T) {
	buf := make([]byte, headerFixedSize)

	// A zero-length blob with a junk offset far past the buffer must
	// yield an empty table, not a bounds panic.
	table, err := parsePart3(buf, partRange{Offset: 0xFFFF0000, Count: 0})
	if err != nil {
		t.Fatal(err)
	}
	if table == nil {
		t.Fatal("nil name table")
	}

	if _, err := table.Name(0); !errors.Is(err, ErrNameNotFound) {
		t.Errorf("expected ErrNameNotFound from empty table, got %v", err)
	}
}

func TestNameTableUnterminated(t *testing.T) {
	table := &nameTable{raw: []byte("dangling")}
	if _, err := table.Name(0); !errors.Is(err, ErrNameNotFound) {
		t.Errorf("expected ErrNameNotFound, got %v", err)
	}
}

func TestChunksForItem(t *testing.T) {
	part4 := []Part4Chunk{
		{CumulativeSize: 50},
		{CumulativeSize: 90},
		{CumulativeSize: 120},
		{CumulativeSize: 10},
	}

	// Extracted size of 2.5 blocks rounds up to 3 chunks.
	run, err := chunksForItem(part4[:3], 0, 2*DefaultBlockSize+1, DefaultBlockSize)
	if err != nil {
		t.Fatal(err)
	}
	if len(run) != 3 {
		t.Fatalf("run length = %d, want 3", len(run))
	}
	if run[2].CumulativeSize != 120 {
		t.Errorf("last cumulative = %d, want 120", run[2].CumulativeSize)
	}

	if _, err := chunksForItem(part4, 3, 2*DefaultBlockSize, DefaultBlockSize); !errors.Is(err, ErrChunkOutOfRange) {
		t.Errorf("expected ErrChunkOutOfRange for run past table, got %v", err)
	}

	// Chunk 3 breaks cumulative monotonicity.
	if _, err := chunksForItem(part4, 2, DefaultBlockSize+1, DefaultBlockSize); !errors.Is(err, ErrChunkOutOfRange) {
		t.Errorf("expected ErrChunkOutOfRange for non-monotonic run, got %v", err)
	}

	run, err = chunksForItem(part4, 0, 0, DefaultBlockSize)
	if err != nil || run != nil {
		t.Errorf("zero size: run=%v err=%v", run, err)
	}
}

func TestPart4ZlibBit(t *testing.T) {
	if (Part4Chunk{Transform: 0}).IsZlib() {
		t.Error("zero transform reported zlib")
	}
	if !(Part4Chunk{Transform: chunkTransformZlib}).IsZlib() {
		t.Error("zlib bit not detected")
	}
}
