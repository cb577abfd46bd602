// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Victor Bush
// Source: github.com/victorbush/ego.nefsedit

package nefs

import (
	"errors"
	"testing"
)

func TestNormalizePath(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want string
	}{
		{`data\cars\body.bin`, "data/cars/body.bin"},
		{"./data/a.txt", "data/a.txt"},
		{"/rooted/a.txt", "rooted/a.txt"},
		{"a//b///c", "a/b/c"},
		{"  spaced.txt  ", "spaced.txt"},
		{".", ""},
		{"", ""},
		{"a/./b", "a/b"},
	} {
		if got := NormalizePath(tc.in); got != tc.want {
			t.Errorf("NormalizePath(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeExtractItemPath(t *testing.T) {
	if got, err := normalizeExtractItemPath("data/a.txt"); err != nil || got != "data/a.txt" {
		t.Errorf("got %q, %v", got, err)
	}

	if _, err := normalizeExtractItemPath(""); !errors.Is(err, ErrInvalidItemPath) {
		t.Errorf("empty: %v", err)
	}
	if _, err := normalizeExtractItemPath("a\x00b"); !errors.Is(err, ErrInvalidItemPath) {
		t.Errorf("NUL byte: %v", err)
	}
	if _, err := normalizeExtractItemPath("../../etc/passwd"); !errors.Is(err, ErrExtractPathOutsideRoot) {
		t.Errorf("traversal: %v", err)
	}
}

func TestParentAndBase(t *testing.T) {
	if p := parentArchivePath("a/b/c.txt"); p != "a/b" {
		t.Errorf("parent = %q", p)
	}
	if p := parentArchivePath("c.txt"); p != "" {
		t.Errorf("root parent = %q", p)
	}
	if n := baseArchiveName("a/b/c.txt"); n != "c.txt" {
		t.Errorf("base = %q", n)
	}
	if n := baseArchiveName("c.txt"); n != "c.txt" {
		t.Errorf("root base = %q", n)
	}
}
