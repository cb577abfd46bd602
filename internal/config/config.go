// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Victor Bush
// Source: github.com/victorbush/ego.nefsedit

package config

// Config holds nefsedit configuration shared by all subcommands.
type Config struct {
	// KeyHex is the AES key as hex (32 or 64 characters). Enables
	// encryption when packing; opened archives carry their own key.
	KeyHex string `mapstructure:"key"`

	// Compress lists glob patterns for items to compress when packing.
	// Empty means store everything raw.
	Compress []string `mapstructure:"compress"`

	LogLevel     string `mapstructure:"log_level"`
	LogOutputDir string `mapstructure:"log_output_dir"`

	// BlockSize overrides the transform chunk size when packing.
	BlockSize uint32 `mapstructure:"block_size"`

	// Workers bounds extraction concurrency (zero means GOMAXPROCS).
	Workers int `mapstructure:"workers"`

	// Quiet suppresses per-item progress output.
	Quiet bool `mapstructure:"quiet"`
}
