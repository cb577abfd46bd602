// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Victor Bush
// Source: github.com/victorbush/ego.nefsedit

package nefs

import (
	"io"
	"log/slog"

	"github.com/woozymasta/pathrules"
)

// Internal binary layout and format limits.
const (
	introSize       = 0x80 // fixed intro record size in bytes
	tocOffset       = 0x80 // table of contents follows the intro
	tocSize         = 0x80
	headerFixedSize = introSize + tocSize
	part1EntrySize  = 0x14
	part2EntrySize  = 0x14
	part4ChunkSize  = 0x8
	part5Size       = 0x10
	part6EntrySize  = 0x4
	part7EntrySize  = 0x8
	numParts        = 8
	maxNameLen      = 512 // max item filename length
)

// Format constants fixed by the producer.
const (
	// MagicNumber is the little-endian "NeFS" marker at offset 0x0.
	MagicNumber uint32 = 0x5346654E
	// DataOffsetStandard is where item data begins in standard archives.
	DataOffsetStandard uint32 = 0x10000
	// DataOffsetLarge is where item data begins when the header exceeds the standard budget.
	DataOffsetLarge uint32 = 0x50000
	// DefaultBlockSize is the chunk size used by the compression/encryption layer.
	DefaultBlockSize uint32 = 0x10000
	// NoCompressionIndex is the part 1 sentinel marking an item stored without chunking.
	NoCompressionIndex uint32 = 0xFFFFFFFF
)

// Default writer tuning values.
const (
	DefaultMinCompressSize = 64
	DefaultMaxCompressSize = 1 << 30
)

// ItemID identifies one item across all header parts.
type ItemID uint32

// ItemType discriminates files from directories.
type ItemType uint8

// Item types. A directory is any item whose extracted size is zero.
const (
	ItemTypeFile ItemType = iota
	ItemTypeDirectory
)

// String returns a short item type name.
func (t ItemType) String() string {
	if t == ItemTypeDirectory {
		return "directory"
	}

	return "file"
}

// Part6Flags is the part 6 per-item bit-flag set.
// Bits outside the named masks are reserved and carried verbatim.
type Part6Flags uint8

// Named part 6 flag bits.
const (
	FlagTransformed Part6Flags = 0x01
	FlagDirectory   Part6Flags = 0x02
	FlagDuplicated  Part6Flags = 0x04
	FlagCacheable   Part6Flags = 0x08
	FlagPatched     Part6Flags = 0x20
)

// IsTransformed reports whether the item data went through the transform chain.
func (f Part6Flags) IsTransformed() bool { return f&FlagTransformed != 0 }

// IsDirectory reports the part 6 directory bit.
func (f Part6Flags) IsDirectory() bool { return f&FlagDirectory != 0 }

// IsDuplicated reports the part 6 duplicated bit.
func (f Part6Flags) IsDuplicated() bool { return f&FlagDuplicated != 0 }

// IsCacheable reports the part 6 cacheable bit.
func (f Part6Flags) IsCacheable() bool { return f&FlagCacheable != 0 }

// IsPatched reports the part 6 patched bit.
func (f Part6Flags) IsPatched() bool { return f&FlagPatched != 0 }

// Item is one reconstructed archive item.
type Item struct {
	// Source yields the original uncompressed, unencrypted item bytes.
	// Nil for metadata-only listings.
	Source DataSource `json:"-" yaml:"-"`
	// Transform is the chunk transform bound to this item; nil for directories.
	Transform *Transform `json:"-" yaml:"-"`
	// Name is the item filename from the part 3 table.
	Name string `json:"name" yaml:"name"`
	// ID is the item id shared by all header parts.
	ID ItemID `json:"id" yaml:"id"`
	// DirectoryID is the parent directory id. Equal to ID for root-level items.
	DirectoryID ItemID `json:"directory_id" yaml:"directory_id"`
	// DataOffset is the absolute byte offset of item data in the archive.
	DataOffset uint64 `json:"data_offset" yaml:"data_offset"`
	// ExtractedSize is the uncompressed item size; zero for directories.
	ExtractedSize uint32 `json:"extracted_size" yaml:"extracted_size"`
	// CompressedSize is the stored payload size in bytes.
	CompressedSize uint32 `json:"compressed_size,omitempty" yaml:"compressed_size,omitempty"`
	// FirstChunkIndex is the part 4 index of the item's first chunk,
	// or NoCompressionIndex for items stored without chunking.
	FirstChunkIndex uint32 `json:"first_chunk_index" yaml:"first_chunk_index"`
	// Volume is the part 6 volume id.
	Volume uint16 `json:"volume,omitempty" yaml:"volume,omitempty"`
	// Type discriminates files from directories.
	Type ItemType `json:"type" yaml:"type"`
	// Flags is the part 6 flag byte.
	Flags Part6Flags `json:"flags,omitempty" yaml:"flags,omitempty"`
	// UnknownPart6 carries the raw part 6 record bytes for lossless round trip.
	UnknownPart6 [part6EntrySize]byte `json:"-" yaml:"-"`
}

// IsDirectory reports whether the item is a directory (extracted size zero).
func (it *Item) IsDirectory() bool {
	return it.Type == ItemTypeDirectory
}

// IsCompressed reports whether the item is stored as compressed chunks.
func (it *Item) IsCompressed() bool {
	return it.FirstChunkIndex != NoCompressionIndex && !it.IsDirectory()
}

// Options configures archive open behavior.
type Options struct {
	// Logger receives per-item skip events during item list construction.
	Logger *slog.Logger `json:"-" yaml:"-"`
}

// applyDefaults fills zero-valued open options with defaults.
func (opts *Options) applyDefaults() {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
}

// Input describes one source stream packed into an archive item.
type Input struct {
	// Open returns the raw source stream for this item.
	Open func() (io.ReadCloser, error) `json:"-" yaml:"-"`
	// Path is the destination path inside the archive.
	Path string `json:"path" yaml:"path"`
	// SizeHint is the expected size in bytes (zero when unknown).
	SizeHint int64 `json:"size_hint,omitempty" yaml:"size_hint,omitempty"`
}

// WriteProgress contains one completed item write event.
type WriteProgress struct {
	// Path is the full archive path of the written item.
	Path string `json:"path" yaml:"path"`
	// ID is the written item id.
	ID ItemID `json:"id" yaml:"id"`
	// ItemsDone counts items fully written so far.
	ItemsDone int `json:"items_done" yaml:"items_done"`
	// ItemsTotal is the total number of items to write.
	ItemsTotal int `json:"items_total" yaml:"items_total"`
	// BytesWritten is the stored payload size of this item.
	BytesWritten int64 `json:"bytes_written" yaml:"bytes_written"`
	// Compressed reports whether chunked compressed payload was written.
	Compressed bool `json:"compressed,omitempty" yaml:"compressed,omitempty"`
}

// WriteOptions configures archive write behavior.
type WriteOptions struct {
	// OnItemDone is called after one item is fully written.
	OnItemDone func(p WriteProgress) `json:"-" yaml:"-"`
	// Logger receives writer diagnostics.
	Logger *slog.Logger `json:"-" yaml:"-"`
	// EncryptionKey enables per-chunk encryption of item data (16 or 32 bytes).
	EncryptionKey []byte `json:"-" yaml:"-"`
	// Compress defines ordered path rules for compression candidate selection.
	// An empty rule set means no compression.
	Compress []pathrules.Rule `json:"compress,omitempty" yaml:"compress,omitempty"`
	// CompressMatcherOptions control compression path rule matching.
	CompressMatcherOptions pathrules.MatcherOptions `json:"compress_matcher_options,omitzero" yaml:"compress_matcher_options,omitzero"`
	// BlockSize is the chunk size for the transform chain. Default 0x10000.
	BlockSize uint32 `json:"block_size,omitempty" yaml:"block_size,omitempty"`
	// MinCompressSize disables compression for items smaller than this size.
	MinCompressSize uint32 `json:"min_compress_size,omitempty" yaml:"min_compress_size,omitempty"`
	// MaxCompressSize disables compression for items larger than this size.
	MaxCompressSize uint32 `json:"max_compress_size,omitempty" yaml:"max_compress_size,omitempty"`
	// LargeHeader starts item data at DataOffsetLarge instead of DataOffsetStandard.
	// Selected automatically when the header outgrows the standard budget.
	LargeHeader bool `json:"large_header,omitempty" yaml:"large_header,omitempty"`
}

// applyDefaults fills zero-valued write options with defaults.
func (opts *WriteOptions) applyDefaults() {
	if opts.BlockSize == 0 {
		opts.BlockSize = DefaultBlockSize
	}

	if opts.MinCompressSize == 0 {
		opts.MinCompressSize = DefaultMinCompressSize
	}

	if opts.MaxCompressSize == 0 || opts.MaxCompressSize <= opts.MinCompressSize {
		opts.MaxCompressSize = DefaultMaxCompressSize
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.CompressMatcherOptions == (pathrules.MatcherOptions{}) {
		opts.CompressMatcherOptions = pathrules.MatcherOptions{
			CaseInsensitive: true,
			DefaultAction:   pathrules.ActionExclude,
		}
	}

	if opts.CompressMatcherOptions.DefaultAction == pathrules.ActionUnknown {
		opts.CompressMatcherOptions.DefaultAction = pathrules.ActionExclude
	}
}

// ExtractOptions configures Extract behavior.
type ExtractOptions struct {
	// OnItemDone is called after one file item is fully written to disk.
	OnItemDone func(item *Item, written int64, outputPath string) `json:"-" yaml:"-"`
	// Items limits extraction to a selected list; nil means all items.
	Items []*Item `json:"-" yaml:"-"`
	// MaxWorkers is the number of extraction workers (zero means GOMAXPROCS).
	MaxWorkers int `json:"max_workers,omitempty" yaml:"max_workers,omitempty"`
}
