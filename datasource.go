// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Victor Bush
// Source: github.com/victorbush/ego.nefsedit

package nefs

import (
	"fmt"
	"io"
)

// DataSource yields the original uncompressed, unencrypted bytes of one
// item as a contiguous logical range. Chunk boundaries of the stored form
// are invisible to callers. Implementations are safe for concurrent reads
// of disjoint ranges.
type DataSource interface {
	io.ReaderAt
	// Size is the logical (extracted) length in bytes.
	Size() int64
}

// emptySource backs directories: zero length, immediate EOF.
type emptySource struct{}

func (emptySource) Size() int64 { return 0 }

func (emptySource) ReadAt(p []byte, off int64) (int, error) {
	return 0, io.EOF
}

// clampRange bounds one logical read against the source size.
func clampRange(p []byte, off, size int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative read offset %d", off)
	}

	if off >= size {
		return 0, io.EOF
	}

	n := len(p)
	if int64(n) > size-off {
		n = int(size - off)
	}

	return n, nil
}

// rawSource is a direct byte range for items stored without chunked
// compression. When the archive is encrypted the range is still split
// into block-size chunks for the cipher stage.
type rawSource struct {
	ra     io.ReaderAt
	tr     *Transform
	offset uint64
	size   uint32
}

func newRawSource(ra io.ReaderAt, offset uint64, size uint32, tr *Transform) DataSource {
	return &rawSource{ra: ra, tr: tr, offset: offset, size: size}
}

func (s *rawSource) Size() int64 { return int64(s.size) }

func (s *rawSource) ReadAt(p []byte, off int64) (int, error) {
	n, err := clampRange(p, off, s.Size())
	if err != nil || n == 0 {
		return 0, err
	}

	if !s.tr.Encrypts() {
		if _, err := io.ReadFull(io.NewSectionReader(s.ra, int64(s.offset)+off, int64(n)), p[:n]); err != nil {
			return 0, fmt.Errorf("read item data: %w", err)
		}

		return doneOrEOF(n, len(p))
	}

	bs := int64(s.tr.BlockSize)
	copied := 0
	for idx := off / bs; copied < n; idx++ {
		chunkStart := idx * bs
		chunkLen := bs
		if chunkStart+chunkLen > s.Size() {
			chunkLen = s.Size() - chunkStart
		}

		stored := make([]byte, chunkLen)
		if _, err := io.ReadFull(io.NewSectionReader(s.ra, int64(s.offset)+chunkStart, chunkLen), stored); err != nil {
			return copied, fmt.Errorf("read encrypted chunk %d: %w", idx, err)
		}

		logical, err := s.tr.decodeChunk(uint64(idx), stored, false, int(chunkLen))
		if err != nil {
			return copied, err
		}

		copied += copyWindow(p[:n], logical, chunkStart, off, copied)
	}

	return doneOrEOF(n, len(p))
}

// chunkedSource reassembles compressed chunk runs into one logical stream.
type chunkedSource struct {
	ra     io.ReaderAt
	tr     *Transform
	chunks []Part4Chunk
	offset uint64
	size   uint32
}

func newChunkedSource(ra io.ReaderAt, offset uint64, size uint32, chunks []Part4Chunk, tr *Transform) DataSource {
	return &chunkedSource{ra: ra, tr: tr, chunks: chunks, offset: offset, size: size}
}

func (s *chunkedSource) Size() int64 { return int64(s.size) }

// storedRange returns the stored byte range of chunk idx relative to the
// item's data offset, from the cumulative part 4 sizes.
func (s *chunkedSource) storedRange(idx int64) (start, end int64) {
	if idx > 0 {
		start = int64(s.chunks[idx-1].CumulativeSize)
	}

	return start, int64(s.chunks[idx].CumulativeSize)
}

func (s *chunkedSource) ReadAt(p []byte, off int64) (int, error) {
	n, err := clampRange(p, off, s.Size())
	if err != nil || n == 0 {
		return 0, err
	}

	bs := int64(s.tr.BlockSize)
	copied := 0
	for idx := off / bs; copied < n; idx++ {
		if idx >= int64(len(s.chunks)) {
			return copied, fmt.Errorf("%w: chunk %d of %d", ErrChunkOutOfRange, idx, len(s.chunks))
		}

		chunkStart := idx * bs
		want := bs
		if chunkStart+want > s.Size() {
			want = s.Size() - chunkStart
		}

		storedStart, storedEnd := s.storedRange(idx)
		if storedEnd < storedStart {
			return copied, fmt.Errorf("%w: chunk %d stored range inverted", ErrChunkOutOfRange, idx)
		}

		stored := make([]byte, storedEnd-storedStart)
		if _, err := io.ReadFull(io.NewSectionReader(s.ra, int64(s.offset)+storedStart, int64(len(stored))), stored); err != nil {
			return copied, fmt.Errorf("read stored chunk %d: %w", idx, err)
		}

		logical, err := s.tr.decodeChunk(uint64(idx), stored, s.chunks[idx].IsZlib(), int(want))
		if err != nil {
			return copied, err
		}

		copied += copyWindow(p[:n], logical, chunkStart, off, copied)
	}

	return doneOrEOF(n, len(p))
}

// copyWindow copies the overlap of one logical chunk into the caller buffer.
// chunkStart is the chunk's logical start, off the requested range start,
// copied the bytes already produced.
func copyWindow(dst, chunk []byte, chunkStart, off int64, copied int) int {
	pos := off + int64(copied)
	skip := pos - chunkStart
	if skip < 0 || skip >= int64(len(chunk)) {
		return 0
	}

	return copy(dst[copied:], chunk[skip:])
}

// doneOrEOF applies the io.ReaderAt short-read contract.
func doneOrEOF(n, want int) (int, error) {
	if n < want {
		return n, io.EOF
	}

	return n, nil
}
