// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Victor Bush
// Source: github.com/victorbush/ego.nefsedit

package nefs

import "errors"

// Sentinel errors for NeFS operations. Use errors.Is in callers.
var (
	// ErrInvalidHeader means the archive is missing or has a bad intro record.
	ErrInvalidHeader = errors.New("invalid NeFS archive: missing or bad header")
	// ErrTruncated means a fixed-offset read ran past the end of a record buffer.
	ErrTruncated = errors.New("record buffer truncated")
	// ErrMissingRequiredPart means a mandatory header part table could not be parsed.
	ErrMissingRequiredPart = errors.New("missing required header part")
	// ErrItemNotFound means no header record exists for the requested item id.
	ErrItemNotFound = errors.New("item not found")
	// ErrNameNotFound means a part 3 name offset does not resolve to a string.
	ErrNameNotFound = errors.New("filename offset not found")
	// ErrCryptoUnavailable means the archive is flagged encrypted but no key is obtainable.
	ErrCryptoUnavailable = errors.New("archive is encrypted but no key is available")
	// ErrInvalidKey means key material has an unsupported length.
	ErrInvalidKey = errors.New("encryption key must be 16 or 32 bytes")
	// ErrItemCycle means the parent-id relation over the item list contains a cycle.
	ErrItemCycle = errors.New("item parent links contain a cycle")
	// ErrNilArchive means the archive is nil.
	ErrNilArchive = errors.New("archive is nil")
	// ErrClosed means the archive or resource is already closed.
	ErrClosed = errors.New("archive or resource already closed")
	// ErrEmptyInputs means no inputs provided for archive creation.
	ErrEmptyInputs = errors.New("no inputs provided")
	// ErrInvalidItemPath means an item path is empty or invalid after normalization.
	ErrInvalidItemPath = errors.New("invalid item path")
	// ErrDuplicateItemPath means two inputs resolve to the same archive path.
	ErrDuplicateItemPath = errors.New("duplicate item path")
	// ErrExtractPathOutsideRoot means a resolved extraction path escapes the destination root.
	ErrExtractPathOutsideRoot = errors.New("extract path escapes destination root")
	// ErrInvalidCompressPattern means one or more compression rules are invalid.
	ErrInvalidCompressPattern = errors.New("invalid compress rules")
	// ErrSizeOverflow means a size or offset exceeds the addressable archive range.
	ErrSizeOverflow = errors.New("size exceeds addressable archive range")
	// ErrChunkOutOfRange means a part 4 chunk index points past the chunk table.
	ErrChunkOutOfRange = errors.New("chunk index out of range")
)
