// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Victor Bush
// Source: github.com/victorbush/ego.nefsedit

package nefs

import (
	"bytes"
	"errors"
	"testing"
)

var testKey16 = []byte("0123456789abcdef")

func TestNewTransformKeyLength(t *testing.T) {
	if _, err := NewTransform(0, []byte("short")); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("expected ErrInvalidKey, got %v", err)
	}

	tr, err := NewTransform(0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if tr.Encrypts() {
		t.Error("keyless transform reports encryption")
	}
	if tr.BlockSize != DefaultBlockSize {
		t.Errorf("block size = %#x, want default", tr.BlockSize)
	}
}

func TestEncodeDecodeChunkCompressed(t *testing.T) {
	tr, err := NewTransform(0, nil)
	if err != nil {
		t.Fatal(err)
	}

	logical := bytes.Repeat([]byte("compressible payload "), 100)
	stored, zlibbed, err := tr.encodeChunk(0, logical, true)
	if err != nil {
		t.Fatal(err)
	}
	if !zlibbed {
		t.Fatal("repetitive payload did not compress")
	}
	if len(stored) >= len(logical) {
		t.Fatalf("stored %d bytes >= logical %d", len(stored), len(logical))
	}

	got, err := tr.decodeChunk(0, stored, true, len(logical))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, logical) {
		t.Error("decoded chunk differs from original")
	}
}

func TestEncodeChunkKeepsRawWhenNotSmaller(t *testing.T) {
	tr, err := NewTransform(0, nil)
	if err != nil {
		t.Fatal(err)
	}

	// High-entropy short payload: deflate overhead exceeds any gain.
	logical := []byte{0xA7, 0x3C, 0x19, 0xE2, 0x55, 0x0B, 0xC8, 0x91}
	stored, zlibbed, err := tr.encodeChunk(0, logical, true)
	if err != nil {
		t.Fatal(err)
	}
	if zlibbed {
		t.Fatal("incompressible payload marked zlib")
	}
	if !bytes.Equal(stored, logical) {
		t.Error("raw fallback altered payload")
	}
}

func TestEncryptedChunkRoundTrip(t *testing.T) {
	tr, err := NewTransform(0, testKey16)
	if err != nil {
		t.Fatal(err)
	}

	logical := bytes.Repeat([]byte("secret "), 64)

	stored, zlibbed, err := tr.encodeChunk(3, logical, false)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(stored, logical) {
		t.Fatal("ciphertext equals plaintext")
	}
	if len(stored) != len(logical) {
		t.Fatalf("ciphertext length %d differs from plaintext %d", len(stored), len(logical))
	}

	got, err := tr.decodeChunk(3, stored, zlibbed, len(logical))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, logical) {
		t.Error("decrypted chunk differs from original")
	}
}

func TestChunkIndexBindsCipherState(t *testing.T) {
	tr, err := NewTransform(0, testKey16)
	if err != nil {
		t.Fatal(err)
	}

	logical := []byte("same plaintext, different chunk index")

	a, _, err := tr.encodeChunk(0, logical, false)
	if err != nil {
		t.Fatal(err)
	}
	b, _, err := tr.encodeChunk(1, logical, false)
	if err != nil {
		t.Fatal(err)
	}

	if bytes.Equal(a, b) {
		t.Error("chunks 0 and 1 produced identical ciphertext")
	}

	// Decrypting with the wrong index must not recover the plaintext.
	wrong, err := tr.decodeChunk(1, append([]byte(nil), a...), false, len(logical))
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(wrong, logical) {
		t.Error("wrong chunk index still decrypted")
	}
}

func TestEncryptThenCompressOrdering(t *testing.T) {
	tr, err := NewTransform(0, testKey16)
	if err != nil {
		t.Fatal(err)
	}

	logical := bytes.Repeat([]byte("order matters "), 200)

	stored, zlibbed, err := tr.encodeChunk(0, logical, true)
	if err != nil {
		t.Fatal(err)
	}
	if !zlibbed {
		t.Fatal("payload did not compress")
	}

	// Decrypt-then-inflate must recover; inflating the raw stored bytes
	// cannot, because the cipher stage runs last on the writer side.
	got, err := tr.decodeChunk(0, append([]byte(nil), stored...), true, len(logical))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, logical) {
		t.Error("round trip failed")
	}
}
