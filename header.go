// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Victor Bush
// Source: github.com/victorbush/ego.nefsedit

package nefs

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
)

// Intro record layout (offset 0x0, 0x80 bytes).
var (
	fldIntroMagic      = fieldU32{0x00}
	fldIntroHash       = fieldBytes{0x04, 0x20}
	fldIntroKeyHex     = fieldBytes{0x24, 0x40}
	fldIntroHeaderSize = fieldU32{0x64}
	fldIntroFlags      = fieldU32{0x68}
	fldIntroNumItems   = fieldU32{0x6C}
	fldIntroNumVolumes = fieldU16{0x70}
	fldIntroReserved   = fieldBytes{0x72, 0x0E}
)

// Table of contents layout (offset 0x80, 0x80 bytes). Each of the 8 parts
// has a byte offset and an entry count at 0x04 + 8*part.
var (
	fldTocSize      = fieldU16{0x00}
	fldTocVersion   = fieldU16{0x02}
	fldTocBlockSize = fieldU32{0x44}
	fldTocSplitSize = fieldU32{0x48}
	fldTocReserved  = fieldBytes{0x4C, 0x34}
)

// tocPartOffsetField returns the descriptor for part's byte offset (part is 0-based).
func tocPartOffsetField(part int) fieldU32 { return fieldU32{0x04 + part*8} }

// tocPartCountField returns the descriptor for part's entry count (part is 0-based).
func tocPartCountField(part int) fieldU32 { return fieldU32{0x08 + part*8} }

// introFlagEncrypted marks archives whose item data is encrypted per chunk.
const introFlagEncrypted uint32 = 0x1

// Intro is the fixed record at the start of the archive.
type Intro struct {
	// ExpectedHash is the SHA-256 of the header with this field zeroed.
	ExpectedHash [0x20]byte
	// KeyHex holds the AES key as ASCII hex characters; all-zero means no key.
	KeyHex [0x40]byte
	// Reserved bytes are preserved verbatim.
	Reserved [0x0E]byte
	// HeaderSize is the total header size in bytes, including all part tables.
	HeaderSize uint32
	// Flags carries archive-level flags; bit 0 marks encrypted item data.
	Flags uint32
	// NumItems is the producer-declared item count. Part 1 is authoritative.
	NumItems uint32
	// NumVolumes is the number of data volumes.
	NumVolumes uint16
}

// IsEncrypted reports whether item data is encrypted per chunk.
func (i *Intro) IsEncrypted() bool {
	return i.Flags&introFlagEncrypted != 0
}

// Key decodes the AES key material from the intro hex field.
// Returns (nil, nil) when no key is present.
func (i *Intro) Key() ([]byte, error) {
	raw := i.KeyHex[:]
	if n := bytes.IndexByte(raw, 0); n >= 0 {
		raw = raw[:n]
	}

	if len(raw) == 0 {
		return nil, nil
	}

	key, err := hex.DecodeString(string(raw))
	if err != nil {
		return nil, fmt.Errorf("decode key material: %w", err)
	}

	if len(key) != 16 && len(key) != 32 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidKey, len(key))
	}

	return key, nil
}

// partRange is one part's byte offset and entry count from the TOC.
type partRange struct {
	Offset uint32
	Count  uint32
}

// end returns the exclusive end offset for a part of fixed-size records.
func (r partRange) end(entrySize uint32) uint64 {
	return uint64(r.Offset) + uint64(r.Count)*uint64(entrySize)
}

// TOC is the header table of contents giving part offsets and counts.
type TOC struct {
	// Reserved tail bytes are preserved verbatim.
	Reserved [0x34]byte
	// Parts holds offset/count for header parts 1-8 (index 0 is part 1).
	Parts [numParts]partRange
	// BlockSize is the transform chunk size; zero means DefaultBlockSize.
	BlockSize uint32
	// SplitSize is the volume split size; zero when the archive is not split.
	SplitSize uint32
	// Size is the TOC record size.
	Size uint16
	// Version is the header format version.
	Version uint16
}

// blockSizeOrDefault resolves the effective transform chunk size.
func (t *TOC) blockSizeOrDefault() uint32 {
	if t.BlockSize == 0 {
		return DefaultBlockSize
	}

	return t.BlockSize
}

// parseIntro decodes the intro record from the header buffer.
func parseIntro(buf []byte) (*Intro, error) {
	if len(buf) < introSize {
		return nil, fmt.Errorf("%w: short intro", ErrInvalidHeader)
	}

	magic, err := fldIntroMagic.read(buf, 0)
	if err != nil {
		return nil, err
	}

	if magic != MagicNumber {
		return nil, fmt.Errorf("%w: bad magic %#x", ErrInvalidHeader, magic)
	}

	intro := &Intro{}
	if err := fldIntroHash.read(buf, 0, intro.ExpectedHash[:]); err != nil {
		return nil, err
	}
	if err := fldIntroKeyHex.read(buf, 0, intro.KeyHex[:]); err != nil {
		return nil, err
	}
	if intro.HeaderSize, err = fldIntroHeaderSize.read(buf, 0); err != nil {
		return nil, err
	}
	if intro.Flags, err = fldIntroFlags.read(buf, 0); err != nil {
		return nil, err
	}
	if intro.NumItems, err = fldIntroNumItems.read(buf, 0); err != nil {
		return nil, err
	}
	if intro.NumVolumes, err = fldIntroNumVolumes.read(buf, 0); err != nil {
		return nil, err
	}
	if err := fldIntroReserved.read(buf, 0, intro.Reserved[:]); err != nil {
		return nil, err
	}

	return intro, nil
}

// encodeIntro writes the intro record into the header buffer.
func encodeIntro(intro *Intro, buf []byte) error {
	if err := fldIntroMagic.write(buf, 0, MagicNumber); err != nil {
		return err
	}
	if err := fldIntroHash.write(buf, 0, intro.ExpectedHash[:]); err != nil {
		return err
	}
	if err := fldIntroKeyHex.write(buf, 0, intro.KeyHex[:]); err != nil {
		return err
	}
	if err := fldIntroHeaderSize.write(buf, 0, intro.HeaderSize); err != nil {
		return err
	}
	if err := fldIntroFlags.write(buf, 0, intro.Flags); err != nil {
		return err
	}
	if err := fldIntroNumItems.write(buf, 0, intro.NumItems); err != nil {
		return err
	}
	if err := fldIntroNumVolumes.write(buf, 0, intro.NumVolumes); err != nil {
		return err
	}

	return fldIntroReserved.write(buf, 0, intro.Reserved[:])
}

// parseTOC decodes the table of contents from the header buffer.
func parseTOC(buf []byte) (*TOC, error) {
	if len(buf) < headerFixedSize {
		return nil, fmt.Errorf("%w: short table of contents", ErrInvalidHeader)
	}

	toc := &TOC{}
	var err error
	if toc.Size, err = fldTocSize.read(buf, tocOffset); err != nil {
		return nil, err
	}
	if toc.Version, err = fldTocVersion.read(buf, tocOffset); err != nil {
		return nil, err
	}

	for p := 0; p < numParts; p++ {
		if toc.Parts[p].Offset, err = tocPartOffsetField(p).read(buf, tocOffset); err != nil {
			return nil, err
		}
		if toc.Parts[p].Count, err = tocPartCountField(p).read(buf, tocOffset); err != nil {
			return nil, err
		}
	}

	if toc.BlockSize, err = fldTocBlockSize.read(buf, tocOffset); err != nil {
		return nil, err
	}
	if toc.SplitSize, err = fldTocSplitSize.read(buf, tocOffset); err != nil {
		return nil, err
	}
	if err := fldTocReserved.read(buf, tocOffset, toc.Reserved[:]); err != nil {
		return nil, err
	}

	return toc, nil
}

// encodeTOC writes the table of contents into the header buffer.
func encodeTOC(toc *TOC, buf []byte) error {
	if err := fldTocSize.write(buf, tocOffset, toc.Size); err != nil {
		return err
	}
	if err := fldTocVersion.write(buf, tocOffset, toc.Version); err != nil {
		return err
	}

	for p := 0; p < numParts; p++ {
		if err := tocPartOffsetField(p).write(buf, tocOffset, toc.Parts[p].Offset); err != nil {
			return err
		}
		if err := tocPartCountField(p).write(buf, tocOffset, toc.Parts[p].Count); err != nil {
			return err
		}
	}

	if err := fldTocBlockSize.write(buf, tocOffset, toc.BlockSize); err != nil {
		return err
	}
	if err := fldTocSplitSize.write(buf, tocOffset, toc.SplitSize); err != nil {
		return err
	}

	return fldTocReserved.write(buf, tocOffset, toc.Reserved[:])
}

// computeHeaderHash hashes the header buffer with the expected-hash field zeroed.
func computeHeaderHash(buf []byte) [0x20]byte {
	h := sha256.New()
	h.Write(buf[:0x04])
	var zeros [0x20]byte
	h.Write(zeros[:])
	h.Write(buf[0x24:])

	var sum [0x20]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

// Header holds all parsed header structures of one archive.
type Header struct {
	Intro *Intro
	TOC   *TOC
	// Parts 1, 2, 6, 7 are keyed by item id (record order is id order).
	Part1 map[ItemID]*Part1Entry
	Part2 map[ItemID]*Part2Entry
	Part3 *nameTable
	Part4 []Part4Chunk
	Part5 *Part5
	Part6 map[ItemID]*Part6Entry
	Part7 map[ItemID]*Part7Entry
	// Part8 is an opaque blob preserved verbatim.
	Part8 []byte

	// key is the decoded chunk key; nil for unencrypted archives.
	key []byte
	// keyErr is set when the archive is flagged encrypted but no key decodes.
	// Items that need decryption fail individually with this error.
	keyErr error
}

// ParseHeader decodes the full header from an immutable header buffer.
// The buffer must contain at least Intro.HeaderSize bytes.
func ParseHeader(buf []byte, log *slog.Logger) (*Header, error) {
	if log == nil {
		log = slog.Default()
	}

	intro, err := parseIntro(buf)
	if err != nil {
		return nil, err
	}

	toc, err := parseTOC(buf)
	if err != nil {
		return nil, err
	}

	h := &Header{Intro: intro, TOC: toc}

	if h.Part1, err = parsePart1(buf, toc.Parts[0]); err != nil {
		return nil, fmt.Errorf("%w: part 1: %w", ErrMissingRequiredPart, err)
	}
	if h.Part2, err = parsePart2(buf, toc.Parts[1]); err != nil {
		return nil, fmt.Errorf("%w: part 2: %w", ErrMissingRequiredPart, err)
	}
	if h.Part3, err = parsePart3(buf, toc.Parts[2]); err != nil {
		return nil, fmt.Errorf("%w: part 3: %w", ErrMissingRequiredPart, err)
	}
	if h.Part4, err = parsePart4(buf, toc.Parts[3]); err != nil {
		return nil, fmt.Errorf("%w: part 4: %w", ErrMissingRequiredPart, err)
	}

	// Parts 5-8 supply metadata only; a bad range loses that metadata, not the archive.
	if h.Part5, err = parsePart5(buf, toc.Parts[4]); err != nil {
		log.Warn("header part 5 unreadable, continuing without it", "error", err)
		h.Part5 = nil
	}
	if h.Part6, err = parsePart6(buf, toc.Parts[5]); err != nil {
		log.Warn("header part 6 unreadable, continuing without it", "error", err)
		h.Part6 = map[ItemID]*Part6Entry{}
	}
	if h.Part7, err = parsePart7(buf, toc.Parts[6]); err != nil {
		log.Warn("header part 7 unreadable, continuing without it", "error", err)
		h.Part7 = map[ItemID]*Part7Entry{}
	}
	if h.Part8, err = parsePart8(buf, toc.Parts[7]); err != nil {
		log.Warn("header part 8 unreadable, continuing without it", "error", err)
		h.Part8 = nil
	}

	if intro.NumItems != uint32(len(h.Part1)) {
		log.Warn("intro item count disagrees with part 1",
			"intro", intro.NumItems, "part1", len(h.Part1))
	}

	if intro.IsEncrypted() {
		key, keyErr := intro.Key()
		switch {
		case keyErr != nil:
			h.keyErr = fmt.Errorf("%w: %w", ErrCryptoUnavailable, keyErr)
			log.Warn("encrypted archive with undecodable key", "error", keyErr)
		case key == nil:
			h.keyErr = ErrCryptoUnavailable
			log.Warn("encrypted archive without key material")
		default:
			h.key = key
		}
	}

	if hashed := computeHeaderHash(buf[:min(len(buf), int(headerSizeOrFixed(intro)))]); hashed != intro.ExpectedHash {
		log.Warn("header hash mismatch",
			"expected", hex.EncodeToString(intro.ExpectedHash[:8]),
			"actual", hex.EncodeToString(hashed[:8]))
	}

	return h, nil
}

// headerSizeOrFixed clamps the declared header size to at least the fixed region.
func headerSizeOrFixed(intro *Intro) uint32 {
	if intro.HeaderSize < headerFixedSize {
		return headerFixedSize
	}

	return intro.HeaderSize
}

// BlockSize returns the effective transform chunk size for this archive.
func (h *Header) BlockSize() uint32 {
	return h.TOC.blockSizeOrDefault()
}
