// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Victor Bush
// Source: github.com/victorbush/ego.nefsedit

package nefs

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// Transform is the stateless per-chunk codec composed of optional AES
// decryption followed by optional zlib decompression. One instance is
// shared by every data source of an archive and may be used concurrently:
// each call derives its cipher state from the chunk index alone.
type Transform struct {
	key []byte
	// BlockSize is the logical chunk size the producer split item data into.
	BlockSize uint32
}

// NewTransform builds a transform for the given chunk size and optional key.
// A zero block size selects DefaultBlockSize; key must be nil, 16, or 32 bytes.
func NewTransform(blockSize uint32, key []byte) (*Transform, error) {
	if blockSize == 0 {
		blockSize = DefaultBlockSize
	}

	t := &Transform{BlockSize: blockSize}
	if len(key) > 0 {
		if len(key) != 16 && len(key) != 32 {
			return nil, fmt.Errorf("%w: got %d", ErrInvalidKey, len(key))
		}

		t.key = append([]byte(nil), key...)
	}

	return t, nil
}

// Encrypts reports whether the transform applies a cipher stage.
func (t *Transform) Encrypts() bool {
	return t != nil && len(t.key) > 0
}

// cryptChunk XORs data in place with the AES-CTR keystream for one chunk.
// The chunk index seeds the IV, so any chunk decrypts independently and
// encryption and decryption are the same operation.
func (t *Transform) cryptChunk(index uint64, data []byte) error {
	if !t.Encrypts() || len(data) == 0 {
		return nil
	}

	block, err := aes.NewCipher(t.key)
	if err != nil {
		return fmt.Errorf("chunk cipher: %w", err)
	}

	var iv [aes.BlockSize]byte
	binary.BigEndian.PutUint64(iv[8:], index)
	cipher.NewCTR(block, iv[:]).XORKeyStream(data, data)
	return nil
}

// decodeChunk turns one stored chunk into its logical bytes: decrypt first,
// then inflate when the chunk is marked zlib. stored is modified in place by
// the cipher stage; want is the exact logical chunk length.
func (t *Transform) decodeChunk(index uint64, stored []byte, zlibbed bool, want int) ([]byte, error) {
	if err := t.cryptChunk(index, stored); err != nil {
		return nil, err
	}

	if !zlibbed {
		if len(stored) < want {
			return nil, fmt.Errorf("raw chunk %d: stored %d bytes, need %d: %w",
				index, len(stored), want, io.ErrUnexpectedEOF)
		}

		return stored[:want], nil
	}

	zr, err := zlib.NewReader(bytes.NewReader(stored))
	if err != nil {
		return nil, fmt.Errorf("open zlib chunk %d: %w", index, err)
	}
	defer func() { _ = zr.Close() }()

	out := make([]byte, want)
	if _, err := io.ReadFull(zr, out); err != nil {
		return nil, fmt.Errorf("inflate chunk %d: %w", index, err)
	}

	return out, nil
}

// encodeChunk is the writer-side inverse: deflate (when requested and
// profitable), then encrypt. Reports whether the zlib stage was applied.
func (t *Transform) encodeChunk(index uint64, logical []byte, compress bool) ([]byte, bool, error) {
	var stored []byte
	zlibbed := false

	if compress {
		var buf bytes.Buffer
		zw := zlib.NewWriter(&buf)
		if _, err := zw.Write(logical); err != nil {
			return nil, false, fmt.Errorf("deflate chunk %d: %w", index, err)
		}
		if err := zw.Close(); err != nil {
			return nil, false, fmt.Errorf("close zlib chunk %d: %w", index, err)
		}

		// Keep the raw form when compression does not pay for this chunk.
		if buf.Len() < len(logical) {
			stored = buf.Bytes()
			zlibbed = true
		}
	}

	if stored == nil {
		stored = append([]byte(nil), logical...)
	}

	if err := t.cryptChunk(index, stored); err != nil {
		return nil, false, err
	}

	return stored, zlibbed, nil
}
