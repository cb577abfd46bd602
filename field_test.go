// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Victor Bush
// Source: github.com/victorbush/ego.nefsedit

package nefs

import (
	"errors"
	"testing"
)

func TestFieldRoundTrip(t *testing.T) {
	buf := make([]byte, 0x20)

	u8 := fieldU8{0x00}
	u16 := fieldU16{0x02}
	u32 := fieldU32{0x04}
	u64 := fieldU64{0x08}
	raw := fieldBytes{0x10, 4}

	if err := u8.write(buf, 0, 0xAB); err != nil {
		t.Fatal(err)
	}
	if err := u16.write(buf, 0, 0xBEEF); err != nil {
		t.Fatal(err)
	}
	if err := u32.write(buf, 0, 0xDEADBEEF); err != nil {
		t.Fatal(err)
	}
	if err := u64.write(buf, 0, 0x0102030405060708); err != nil {
		t.Fatal(err)
	}
	if err := raw.write(buf, 0, []byte{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}

	if v, err := u8.read(buf, 0); err != nil || v != 0xAB {
		t.Errorf("u8 = %#x, %v", v, err)
	}
	if v, err := u16.read(buf, 0); err != nil || v != 0xBEEF {
		t.Errorf("u16 = %#x, %v", v, err)
	}
	if v, err := u32.read(buf, 0); err != nil || v != 0xDEADBEEF {
		t.Errorf("u32 = %#x, %v", v, err)
	}
	if v, err := u64.read(buf, 0); err != nil || v != 0x0102030405060708 {
		t.Errorf("u64 = %#x, %v", v, err)
	}

	got := make([]byte, 4)
	if err := raw.read(buf, 0, got); err != nil {
		t.Fatal(err)
	}
	if got[0] != 1 || got[3] != 4 {
		t.Errorf("bytes = %v", got)
	}
}

func TestFieldBaseOffsetAddressing(t *testing.T) {
	// The same descriptor addresses the Nth record via the base offset.
	buf := make([]byte, 3*part4ChunkSize)
	for i := 0; i < 3; i++ {
		if err := fldP4Cumulative.write(buf, i*part4ChunkSize, uint32(100+i)); err != nil {
			t.Fatal(err)
		}
	}

	for i := 0; i < 3; i++ {
		v, err := fldP4Cumulative.read(buf, i*part4ChunkSize)
		if err != nil {
			t.Fatal(err)
		}
		if v != uint32(100+i) {
			t.Errorf("record %d = %d, want %d", i, v, 100+i)
		}
	}
}

func TestFieldTruncated(t *testing.T) {
	buf := make([]byte, 4)

	if _, err := (fieldU32{2}).read(buf, 0); !errors.Is(err, ErrTruncated) {
		t.Errorf("expected ErrTruncated, got %v", err)
	}
	if err := (fieldU64{0}).write(buf, 0, 1); !errors.Is(err, ErrTruncated) {
		t.Errorf("expected ErrTruncated, got %v", err)
	}
	if _, err := (fieldU8{0}).read(buf, 8); !errors.Is(err, ErrTruncated) {
		t.Errorf("expected ErrTruncated for base past end, got %v", err)
	}
}

func TestFieldFlags(t *testing.T) {
	buf := []byte{0x00, 0x00, 0x05, 0x00}

	f := fieldFlags{fieldU8{0x02}}
	for _, tc := range []struct {
		mask uint8
		want bool
	}{
		{0x01, true},
		{0x04, true},
		{0x05, true},
		{0x02, false},
		{0x07, false},
	} {
		got, err := f.has(buf, 0, tc.mask)
		if err != nil {
			t.Fatal(err)
		}
		if got != tc.want {
			t.Errorf("mask %#x = %v, want %v", tc.mask, got, tc.want)
		}
	}
}
