// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Victor Bush
// Source: github.com/victorbush/ego.nefsedit

package nefs

import (
	"fmt"
	"path"
	"strings"
)

// NormalizePath converts an archive/internal path to normalized
// slash-separated form. It trims spaces, accepts both "/" and "\",
// removes leading "./" and "/", and cleans "." segments.
func NormalizePath(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.ReplaceAll(raw, `\`, "/")
	raw = strings.TrimPrefix(raw, "./")
	raw = strings.TrimPrefix(raw, "/")
	raw = path.Clean("/" + raw)
	raw = strings.TrimPrefix(raw, "/")
	if raw == "." {
		return ""
	}

	return strings.TrimSuffix(raw, "/")
}

// normalizeExtractItemPath normalizes an item path for extraction and
// rejects absolute or traversal inputs that would escape the output root.
func normalizeExtractItemPath(itemPath string) (string, error) {
	raw := strings.TrimSpace(itemPath)
	if raw == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidItemPath)
	}
	if strings.ContainsRune(raw, 0) {
		return "", fmt.Errorf("%w: NUL byte in %q", ErrInvalidItemPath, itemPath)
	}

	normalized := NormalizePath(raw)
	if normalized == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidItemPath, itemPath)
	}

	for _, segment := range strings.Split(normalized, "/") {
		if segment == ".." {
			return "", fmt.Errorf("%w: %q", ErrExtractPathOutsideRoot, itemPath)
		}
	}

	return normalized, nil
}

// parentArchivePath splits the parent directory portion of a normalized path.
// Returns "" for root-level paths.
func parentArchivePath(normalized string) string {
	idx := strings.LastIndexByte(normalized, '/')
	if idx < 0 {
		return ""
	}

	return normalized[:idx]
}

// baseArchiveName returns the final path element of a normalized path.
func baseArchiveName(normalized string) string {
	idx := strings.LastIndexByte(normalized, '/')
	if idx < 0 {
		return normalized
	}

	return normalized[idx+1:]
}
