// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Victor Bush
// Source: github.com/victorbush/ego.nefsedit

package nefs

import (
	"errors"
	"testing"

	"github.com/woozymasta/pathrules"
)

func testWriteOptions() WriteOptions {
	opts := WriteOptions{}
	opts.applyDefaults()
	return opts
}

func TestShouldCompress(t *testing.T) {
	opts := testWriteOptions()

	matcher, err := newCompressMatcher(
		[]pathrules.Rule{{Action: pathrules.ActionInclude, Pattern: "data/**"}},
		opts.CompressMatcherOptions,
	)
	if err != nil {
		t.Fatal(err)
	}

	if !shouldCompress(opts, matcher, "data/a.bin", 1000, true) {
		t.Error("matching path with valid size not compressed")
	}
	if shouldCompress(opts, matcher, "other/a.bin", 1000, true) {
		t.Error("non-matching path compressed")
	}
	if shouldCompress(opts, matcher, "data/a.bin", 10, true) {
		t.Error("below MinCompressSize compressed")
	}
	if shouldCompress(opts, matcher, "data/a.bin", int64(opts.MaxCompressSize)+1, true) {
		t.Error("above MaxCompressSize compressed")
	}
	if shouldCompress(opts, matcher, "data/a.bin", 0, false) {
		t.Error("unknown-size input compressed")
	}
	if shouldCompress(opts, nil, "data/a.bin", 1000, true) {
		t.Error("nil matcher compressed")
	}
}

func TestNewCompressMatcherEmptyRules(t *testing.T) {
	opts := testWriteOptions()

	m, err := newCompressMatcher(nil, opts.CompressMatcherOptions)
	if err != nil {
		t.Fatal(err)
	}
	if m != nil {
		t.Error("empty rule set produced a matcher")
	}

	// Rules whose patterns normalize to empty are dropped.
	m, err = newCompressMatcher(
		[]pathrules.Rule{{Action: pathrules.ActionInclude, Pattern: "  "}},
		opts.CompressMatcherOptions,
	)
	if err != nil {
		t.Fatal(err)
	}
	if m != nil {
		t.Error("blank pattern produced a matcher")
	}
}

func TestNewCompressMatcherInvalidPattern(t *testing.T) {
	opts := testWriteOptions()

	_, err := newCompressMatcher(
		[]pathrules.Rule{{Action: pathrules.ActionInclude, Pattern: "data/[invalid"}},
		opts.CompressMatcherOptions,
	)
	if err == nil {
		t.Skip("pattern accepted by matcher implementation")
	}
	if !errors.Is(err, ErrInvalidCompressPattern) {
		t.Errorf("expected ErrInvalidCompressPattern, got %v", err)
	}
}
