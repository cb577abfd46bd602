// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Victor Bush
// Source: github.com/victorbush/ego.nefsedit

package nefs

import (
	"encoding/binary"
	"fmt"
)

// Field descriptors bind a fixed byte offset and width inside a record
// buffer to a typed little-endian value. Each record type declares its
// layout as a table of these descriptors instead of reflective tags, so
// offsets are checked at the single place a record is decoded or encoded.
//
// All accessors take the record base offset explicitly, which lets the
// same descriptor address the Nth record of a part table without slicing.

// fieldU8 is a one-byte unsigned field at a fixed record offset.
type fieldU8 struct{ off int }

// fieldU16 is a two-byte little-endian unsigned field.
type fieldU16 struct{ off int }

// fieldU32 is a four-byte little-endian unsigned field.
type fieldU32 struct{ off int }

// fieldU64 is an eight-byte little-endian unsigned field.
type fieldU64 struct{ off int }

// fieldBytes is a fixed-width raw byte field.
type fieldBytes struct {
	off int
	n   int
}

// fieldFlags is a one-byte bit-flag field with membership queries.
type fieldFlags struct{ fieldU8 }

// checkBounds fails when [base+off, base+off+width) runs past the buffer.
func checkBounds(buf []byte, base, off, width int) error {
	end := base + off + width
	if base < 0 || off < 0 || end > len(buf) || end < base {
		return fmt.Errorf("%w: need bytes [%#x, %#x), have %#x", ErrTruncated, base+off, end, len(buf))
	}

	return nil
}

func (f fieldU8) read(buf []byte, base int) (uint8, error) {
	if err := checkBounds(buf, base, f.off, 1); err != nil {
		return 0, err
	}

	return buf[base+f.off], nil
}

func (f fieldU8) write(buf []byte, base int, v uint8) error {
	if err := checkBounds(buf, base, f.off, 1); err != nil {
		return err
	}

	buf[base+f.off] = v
	return nil
}

func (f fieldU16) read(buf []byte, base int) (uint16, error) {
	if err := checkBounds(buf, base, f.off, 2); err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint16(buf[base+f.off:]), nil
}

func (f fieldU16) write(buf []byte, base int, v uint16) error {
	if err := checkBounds(buf, base, f.off, 2); err != nil {
		return err
	}

	binary.LittleEndian.PutUint16(buf[base+f.off:], v)
	return nil
}

func (f fieldU32) read(buf []byte, base int) (uint32, error) {
	if err := checkBounds(buf, base, f.off, 4); err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint32(buf[base+f.off:]), nil
}

func (f fieldU32) write(buf []byte, base int, v uint32) error {
	if err := checkBounds(buf, base, f.off, 4); err != nil {
		return err
	}

	binary.LittleEndian.PutUint32(buf[base+f.off:], v)
	return nil
}

func (f fieldU64) read(buf []byte, base int) (uint64, error) {
	if err := checkBounds(buf, base, f.off, 8); err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint64(buf[base+f.off:]), nil
}

func (f fieldU64) write(buf []byte, base int, v uint64) error {
	if err := checkBounds(buf, base, f.off, 8); err != nil {
		return err
	}

	binary.LittleEndian.PutUint64(buf[base+f.off:], v)
	return nil
}

// read copies the field bytes into dst, which must be exactly the field width.
func (f fieldBytes) read(buf []byte, base int, dst []byte) error {
	if len(dst) != f.n {
		return fmt.Errorf("field width %d, destination %d", f.n, len(dst))
	}

	if err := checkBounds(buf, base, f.off, f.n); err != nil {
		return err
	}

	copy(dst, buf[base+f.off:base+f.off+f.n])
	return nil
}

func (f fieldBytes) write(buf []byte, base int, src []byte) error {
	if len(src) != f.n {
		return fmt.Errorf("field width %d, source %d", f.n, len(src))
	}

	if err := checkBounds(buf, base, f.off, f.n); err != nil {
		return err
	}

	copy(buf[base+f.off:], src)
	return nil
}

// has reports whether all bits in mask are set in the flag byte.
func (f fieldFlags) has(buf []byte, base int, mask uint8) (bool, error) {
	v, err := f.read(buf, base)
	if err != nil {
		return false, err
	}

	return v&mask == mask, nil
}
