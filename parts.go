// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Victor Bush
// Source: github.com/victorbush/ego.nefsedit

package nefs

import (
	"bytes"
	"fmt"
)

// Part 1 record layout (0x14 bytes per item): data location.
var (
	fldP1DataOffset = fieldU64{0x00}
	fldP1FirstChunk = fieldU32{0x08}
	fldP1StoredID   = fieldU32{0x0C}
	fldP1Reserved   = fieldU32{0x10}
)

// Part 2 record layout (0x14 bytes per item): tree links and sizes.
var (
	fldP2DirectoryID   = fieldU32{0x00}
	fldP2FirstChildID  = fieldU32{0x04}
	fldP2NameOffset    = fieldU32{0x08}
	fldP2ExtractedSize = fieldU32{0x0C}
	fldP2StoredID      = fieldU32{0x10}
)

// Part 4 chunk layout (0x8 bytes per chunk).
var (
	fldP4Cumulative = fieldU32{0x00}
	fldP4Transform  = fieldU16{0x04}
	fldP4Checksum   = fieldU16{0x06}
)

// Part 5 record layout (0x10 bytes, single record): archive metadata.
var (
	fldP5ArchiveSize     = fieldU64{0x00}
	fldP5NameOffset      = fieldU32{0x08}
	fldP5FirstDataOffset = fieldU32{0x0C}
)

// Part 6 record layout (0x4 bytes per item): volume and flags.
var (
	fldP6Volume   = fieldU16{0x00}
	fldP6Flags    = fieldFlags{fieldU8{0x02}}
	fldP6Reserved = fieldU8{0x03}
)

// Part 7 record layout (0x8 bytes per item): sibling order.
var (
	fldP7NextSibling = fieldU32{0x00}
	fldP7StoredID    = fieldU32{0x04}
)

// chunkTransformZlib marks a part 4 chunk stored as a zlib stream.
// Chunks without the bit are stored raw (still encrypted when the archive is).
const chunkTransformZlib uint16 = 0x1

// Part1Entry locates one item's stored data.
type Part1Entry struct {
	// DataOffset is the absolute byte offset of the item data.
	DataOffset uint64
	// FirstChunkIndex indexes part 4, or NoCompressionIndex for unchunked items.
	FirstChunkIndex uint32
	// StoredID is the id value written in the record, carried for round trip.
	StoredID uint32
	// Reserved is carried verbatim.
	Reserved uint32
}

// Part2Entry links one item into the directory tree.
type Part2Entry struct {
	// DirectoryID is the parent directory id; equal to the item id at root level.
	DirectoryID ItemID
	// FirstChildID is the id of the first child for directories.
	FirstChildID ItemID
	// NameOffset indexes the part 3 filename table.
	NameOffset uint32
	// ExtractedSize is the uncompressed size; zero marks a directory.
	ExtractedSize uint32
	// StoredID is the id value written in the record, carried for round trip.
	StoredID uint32
}

// Part4Chunk describes one stored compression chunk.
type Part4Chunk struct {
	// CumulativeSize is the chunk's end offset within the item's stored data.
	CumulativeSize uint32
	// Transform carries per-chunk transform flags (bit 0 = zlib).
	Transform uint16
	// Checksum is carried verbatim.
	Checksum uint16
}

// IsZlib reports whether the chunk payload is a zlib stream.
func (c Part4Chunk) IsZlib() bool { return c.Transform&chunkTransformZlib != 0 }

// Part5 is the single archive metadata record.
type Part5 struct {
	// ArchiveSize is the producer-declared total archive size.
	ArchiveSize uint64
	// NameOffset indexes the archive name in part 3.
	NameOffset uint32
	// FirstDataOffset is where item data begins.
	FirstDataOffset uint32
}

// Part6Entry is the optional per-item flag record.
type Part6Entry struct {
	// Raw preserves the full record for lossless round trip.
	Raw [part6EntrySize]byte
	// Volume is the data volume id.
	Volume uint16
	// Flags is the item flag byte.
	Flags Part6Flags
	// Reserved is carried verbatim.
	Reserved byte
}

// Part7Entry is the optional per-item sibling order record.
type Part7Entry struct {
	// NextSiblingID is the id of the next sibling in directory order.
	NextSiblingID ItemID
	// StoredID is the id value written in the record, carried for round trip.
	StoredID uint32
}

// checkPartRange validates that a part's records fit in the header buffer.
func checkPartRange(buf []byte, r partRange, entrySize uint32) error {
	if r.Count == 0 {
		return nil
	}

	if end := r.end(entrySize); end > uint64(len(buf)) {
		return fmt.Errorf("%w: part range [%#x, %#x) outside header of %#x bytes",
			ErrTruncated, r.Offset, end, len(buf))
	}

	return nil
}

// parsePart1 reads part 1 records. Record order assigns item ids.
func parsePart1(buf []byte, r partRange) (map[ItemID]*Part1Entry, error) {
	if err := checkPartRange(buf, r, part1EntrySize); err != nil {
		return nil, err
	}

	entries := make(map[ItemID]*Part1Entry, r.Count)
	for i := uint32(0); i < r.Count; i++ {
		base := int(r.Offset) + int(i)*part1EntrySize
		e := &Part1Entry{}
		var err error
		if e.DataOffset, err = fldP1DataOffset.read(buf, base); err != nil {
			return nil, err
		}
		if e.FirstChunkIndex, err = fldP1FirstChunk.read(buf, base); err != nil {
			return nil, err
		}
		if e.StoredID, err = fldP1StoredID.read(buf, base); err != nil {
			return nil, err
		}
		if e.Reserved, err = fldP1Reserved.read(buf, base); err != nil {
			return nil, err
		}

		entries[ItemID(i)] = e
	}

	return entries, nil
}

// encodePart1 writes part 1 records in id order into buf at the part offset.
func encodePart1(buf []byte, r partRange, entries map[ItemID]*Part1Entry) error {
	for i := uint32(0); i < r.Count; i++ {
		e, ok := entries[ItemID(i)]
		if !ok {
			return fmt.Errorf("%w: part 1 record %d", ErrItemNotFound, i)
		}

		base := int(r.Offset) + int(i)*part1EntrySize
		if err := fldP1DataOffset.write(buf, base, e.DataOffset); err != nil {
			return err
		}
		if err := fldP1FirstChunk.write(buf, base, e.FirstChunkIndex); err != nil {
			return err
		}
		if err := fldP1StoredID.write(buf, base, e.StoredID); err != nil {
			return err
		}
		if err := fldP1Reserved.write(buf, base, e.Reserved); err != nil {
			return err
		}
	}

	return nil
}

// parsePart2 reads part 2 records. Record order assigns item ids.
func parsePart2(buf []byte, r partRange) (map[ItemID]*Part2Entry, error) {
	if err := checkPartRange(buf, r, part2EntrySize); err != nil {
		return nil, err
	}

	entries := make(map[ItemID]*Part2Entry, r.Count)
	for i := uint32(0); i < r.Count; i++ {
		base := int(r.Offset) + int(i)*part2EntrySize
		e := &Part2Entry{}

		dir, err := fldP2DirectoryID.read(buf, base)
		if err != nil {
			return nil, err
		}
		e.DirectoryID = ItemID(dir)

		child, err := fldP2FirstChildID.read(buf, base)
		if err != nil {
			return nil, err
		}
		e.FirstChildID = ItemID(child)

		if e.NameOffset, err = fldP2NameOffset.read(buf, base); err != nil {
			return nil, err
		}
		if e.ExtractedSize, err = fldP2ExtractedSize.read(buf, base); err != nil {
			return nil, err
		}
		if e.StoredID, err = fldP2StoredID.read(buf, base); err != nil {
			return nil, err
		}

		entries[ItemID(i)] = e
	}

	return entries, nil
}

// encodePart2 writes part 2 records in id order into buf at the part offset.
func encodePart2(buf []byte, r partRange, entries map[ItemID]*Part2Entry) error {
	for i := uint32(0); i < r.Count; i++ {
		e, ok := entries[ItemID(i)]
		if !ok {
			return fmt.Errorf("%w: part 2 record %d", ErrItemNotFound, i)
		}

		base := int(r.Offset) + int(i)*part2EntrySize
		if err := fldP2DirectoryID.write(buf, base, uint32(e.DirectoryID)); err != nil {
			return err
		}
		if err := fldP2FirstChildID.write(buf, base, uint32(e.FirstChildID)); err != nil {
			return err
		}
		if err := fldP2NameOffset.write(buf, base, e.NameOffset); err != nil {
			return err
		}
		if err := fldP2ExtractedSize.write(buf, base, e.ExtractedSize); err != nil {
			return err
		}
		if err := fldP2StoredID.write(buf, base, e.StoredID); err != nil {
			return err
		}
	}

	return nil
}

// nameTable is the part 3 filename blob addressed by byte offset.
type nameTable struct {
	raw []byte
}

// parsePart3 slices the filename table out of the header buffer.
// The TOC count for part 3 is the blob length in bytes. Count 0 yields
// an empty table regardless of the stored offset; name lookups then
// fail per item.
func parsePart3(buf []byte, r partRange) (*nameTable, error) {
	if r.Count == 0 {
		return &nameTable{}, nil
	}

	if err := checkPartRange(buf, r, 1); err != nil {
		return nil, err
	}

	raw := make([]byte, r.Count)
	copy(raw, buf[r.Offset:uint64(r.Offset)+uint64(r.Count)])
	return &nameTable{raw: raw}, nil
}

// Name resolves a byte offset to its NUL-terminated string.
func (t *nameTable) Name(off uint32) (string, error) {
	if t == nil || uint64(off) >= uint64(len(t.raw)) {
		return "", fmt.Errorf("%w: offset %#x", ErrNameNotFound, off)
	}

	rest := t.raw[off:]
	n := bytes.IndexByte(rest, 0)
	if n < 0 {
		return "", fmt.Errorf("%w: unterminated name at %#x", ErrNameNotFound, off)
	}

	if n > maxNameLen {
		return "", fmt.Errorf("%w: name at %#x exceeds %d bytes", ErrNameNotFound, off, maxNameLen)
	}

	return string(rest[:n]), nil
}

// nameTableBuilder accumulates deduplicated NUL-terminated names.
type nameTableBuilder struct {
	offsets map[string]uint32
	raw     []byte
}

func newNameTableBuilder() *nameTableBuilder {
	return &nameTableBuilder{offsets: make(map[string]uint32)}
}

// add appends name (or reuses an identical earlier one) and returns its offset.
func (b *nameTableBuilder) add(name string) uint32 {
	if off, ok := b.offsets[name]; ok {
		return off
	}

	off := uint32(len(b.raw))
	b.offsets[name] = off
	b.raw = append(b.raw, name...)
	b.raw = append(b.raw, 0)
	return off
}

// bytes returns the accumulated blob.
func (b *nameTableBuilder) bytes() []byte { return b.raw }

// parsePart4 reads the flat chunk descriptor list.
func parsePart4(buf []byte, r partRange) ([]Part4Chunk, error) {
	if err := checkPartRange(buf, r, part4ChunkSize); err != nil {
		return nil, err
	}

	chunks := make([]Part4Chunk, r.Count)
	for i := uint32(0); i < r.Count; i++ {
		base := int(r.Offset) + int(i)*part4ChunkSize
		var err error
		if chunks[i].CumulativeSize, err = fldP4Cumulative.read(buf, base); err != nil {
			return nil, err
		}
		if chunks[i].Transform, err = fldP4Transform.read(buf, base); err != nil {
			return nil, err
		}
		if chunks[i].Checksum, err = fldP4Checksum.read(buf, base); err != nil {
			return nil, err
		}
	}

	return chunks, nil
}

// encodePart4 writes the flat chunk list into buf at the part offset.
func encodePart4(buf []byte, r partRange, chunks []Part4Chunk) error {
	for i, c := range chunks {
		base := int(r.Offset) + i*part4ChunkSize
		if err := fldP4Cumulative.write(buf, base, c.CumulativeSize); err != nil {
			return err
		}
		if err := fldP4Transform.write(buf, base, c.Transform); err != nil {
			return err
		}
		if err := fldP4Checksum.write(buf, base, c.Checksum); err != nil {
			return err
		}
	}

	return nil
}

// chunksForItem slices the contiguous chunk run for one item.
// The chunk count is derived from the extracted size and block size.
func chunksForItem(part4 []Part4Chunk, first, extractedSize, blockSize uint32) ([]Part4Chunk, error) {
	if extractedSize == 0 {
		return nil, nil
	}

	count := (uint64(extractedSize) + uint64(blockSize) - 1) / uint64(blockSize)
	end := uint64(first) + count
	if end > uint64(len(part4)) {
		return nil, fmt.Errorf("%w: chunks [%d, %d) of %d", ErrChunkOutOfRange, first, end, len(part4))
	}

	run := part4[first:end]
	prev := uint32(0)
	for i, c := range run {
		if c.CumulativeSize < prev {
			return nil, fmt.Errorf("%w: chunk %d not monotonic", ErrChunkOutOfRange, int(first)+i)
		}

		prev = c.CumulativeSize
	}

	return run, nil
}

// parsePart5 reads the single archive metadata record. Count 0 means absent.
func parsePart5(buf []byte, r partRange) (*Part5, error) {
	if r.Count == 0 {
		return nil, nil
	}

	if err := checkPartRange(buf, partRange{Offset: r.Offset, Count: 1}, part5Size); err != nil {
		return nil, err
	}

	base := int(r.Offset)
	p := &Part5{}
	var err error
	if p.ArchiveSize, err = fldP5ArchiveSize.read(buf, base); err != nil {
		return nil, err
	}
	if p.NameOffset, err = fldP5NameOffset.read(buf, base); err != nil {
		return nil, err
	}
	if p.FirstDataOffset, err = fldP5FirstDataOffset.read(buf, base); err != nil {
		return nil, err
	}

	return p, nil
}

// encodePart5 writes the archive metadata record into buf at the part offset.
func encodePart5(buf []byte, r partRange, p *Part5) error {
	base := int(r.Offset)
	if err := fldP5ArchiveSize.write(buf, base, p.ArchiveSize); err != nil {
		return err
	}
	if err := fldP5NameOffset.write(buf, base, p.NameOffset); err != nil {
		return err
	}

	return fldP5FirstDataOffset.write(buf, base, p.FirstDataOffset)
}

// parsePart6 reads the optional per-item flag records. Record order is id order.
func parsePart6(buf []byte, r partRange) (map[ItemID]*Part6Entry, error) {
	if err := checkPartRange(buf, r, part6EntrySize); err != nil {
		return nil, err
	}

	entries := make(map[ItemID]*Part6Entry, r.Count)
	for i := uint32(0); i < r.Count; i++ {
		base := int(r.Offset) + int(i)*part6EntrySize
		e := &Part6Entry{}

		var err error
		if e.Volume, err = fldP6Volume.read(buf, base); err != nil {
			return nil, err
		}

		flags, err := fldP6Flags.read(buf, base)
		if err != nil {
			return nil, err
		}
		e.Flags = Part6Flags(flags)

		if e.Reserved, err = fldP6Reserved.read(buf, base); err != nil {
			return nil, err
		}

		copy(e.Raw[:], buf[base:base+part6EntrySize])
		entries[ItemID(i)] = e
	}

	return entries, nil
}

// encodePart6 writes the raw part 6 records in id order into buf at the part offset.
func encodePart6(buf []byte, r partRange, entries map[ItemID]*Part6Entry) error {
	for i := uint32(0); i < r.Count; i++ {
		e, ok := entries[ItemID(i)]
		if !ok {
			return fmt.Errorf("%w: part 6 record %d", ErrItemNotFound, i)
		}

		base := int(r.Offset) + int(i)*part6EntrySize
		if err := checkBounds(buf, base, 0, part6EntrySize); err != nil {
			return err
		}

		// Raw bytes round-trip reserved bits without interpretation.
		copy(buf[base:], e.Raw[:])
	}

	return nil
}

// parsePart7 reads the optional sibling order records. Record order is id order.
func parsePart7(buf []byte, r partRange) (map[ItemID]*Part7Entry, error) {
	if err := checkPartRange(buf, r, part7EntrySize); err != nil {
		return nil, err
	}

	entries := make(map[ItemID]*Part7Entry, r.Count)
	for i := uint32(0); i < r.Count; i++ {
		base := int(r.Offset) + int(i)*part7EntrySize
		e := &Part7Entry{}

		sibling, err := fldP7NextSibling.read(buf, base)
		if err != nil {
			return nil, err
		}
		e.NextSiblingID = ItemID(sibling)

		if e.StoredID, err = fldP7StoredID.read(buf, base); err != nil {
			return nil, err
		}

		entries[ItemID(i)] = e
	}

	return entries, nil
}

// encodePart7 writes part 7 records in id order into buf at the part offset.
func encodePart7(buf []byte, r partRange, entries map[ItemID]*Part7Entry) error {
	for i := uint32(0); i < r.Count; i++ {
		e, ok := entries[ItemID(i)]
		if !ok {
			return fmt.Errorf("%w: part 7 record %d", ErrItemNotFound, i)
		}

		base := int(r.Offset) + int(i)*part7EntrySize
		if err := fldP7NextSibling.write(buf, base, uint32(e.NextSiblingID)); err != nil {
			return err
		}
		if err := fldP7StoredID.write(buf, base, e.StoredID); err != nil {
			return err
		}
	}

	return nil
}

// parsePart8 copies the opaque trailing blob. Count is the blob length.
func parsePart8(buf []byte, r partRange) ([]byte, error) {
	if r.Count == 0 {
		return nil, nil
	}

	if err := checkPartRange(buf, r, 1); err != nil {
		return nil, err
	}

	out := make([]byte, r.Count)
	copy(out, buf[r.Offset:uint64(r.Offset)+uint64(r.Count)])
	return out, nil
}
