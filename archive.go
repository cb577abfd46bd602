// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Victor Bush
// Source: github.com/victorbush/ego.nefsedit

package nefs

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// Archive provides read access to a parsed NeFS archive.
type Archive struct {
	// Header stores all parsed header structures.
	Header *Header
	// ra is the underlying random-access reader for item data.
	ra io.ReaderAt
	// file is set when the archive owns an *os.File opened via Open.
	file *os.File
	// log receives skip/diagnostic events.
	log *slog.Logger
	// items is the reconstructed best-effort item list in part 1 order.
	items []*Item
	// byID indexes the reconstructed items.
	byID map[ItemID]*Item
	// paths maps item ids to full slash-joined archive paths.
	paths map[ItemID]string
	// size is the total source size in bytes.
	size int64
	// mu guards closed state.
	mu sync.Mutex
	// closed reports whether Close was already called.
	closed bool
}

// nopCloser wraps a reader and provides a no-op close.
type nopCloser struct {
	io.Reader
}

// Close closes nopCloser (no-op).
func (nopCloser) Close() error {
	return nil
}

// Open opens a NeFS archive by path and reconstructs its item list.
func Open(path string) (*Archive, error) {
	return OpenWithOptions(path, Options{})
}

// OpenWithOptions opens a NeFS archive by path using explicit options.
func OpenWithOptions(path string, opts Options) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat: %w", err)
	}

	a, err := NewFromReaderAt(f, fi.Size(), opts)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	a.file = f
	return a, nil
}

// NewFromReaderAt parses a NeFS archive from an existing random-access
// source and known size.
func NewFromReaderAt(ra io.ReaderAt, size int64, opts Options) (*Archive, error) {
	opts.applyDefaults()

	buf, err := readHeaderBuffer(ra, size)
	if err != nil {
		return nil, err
	}

	h, err := ParseHeader(buf, opts.Logger)
	if err != nil {
		return nil, err
	}

	a := &Archive{
		Header: h,
		ra:     ra,
		log:    opts.Logger,
		size:   size,
	}

	a.items = h.buildItemList(ra, opts.Logger)
	a.byID = make(map[ItemID]*Item, len(a.items))
	for _, it := range a.items {
		a.byID[it.ID] = it
	}

	paths, err := buildItemPaths(a.items)
	if err != nil {
		// Paths degrade to bare names; the item list itself stays usable.
		opts.Logger.Warn("item paths unresolvable", "error", err)
		paths = nil
	}
	a.paths = paths

	return a, nil
}

// readHeaderBuffer reads the immutable header region declared by the intro.
func readHeaderBuffer(ra io.ReaderAt, size int64) ([]byte, error) {
	if size < headerFixedSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidHeader, size)
	}

	fixed := make([]byte, introSize)
	if _, err := ra.ReadAt(fixed, 0); err != nil {
		return nil, fmt.Errorf("read intro: %w", err)
	}

	intro, err := parseIntro(fixed)
	if err != nil {
		return nil, err
	}

	headerSize := int64(headerSizeOrFixed(intro))
	if headerSize > size {
		return nil, fmt.Errorf("%w: declared header %d exceeds archive %d",
			ErrInvalidHeader, headerSize, size)
	}

	buf := make([]byte, headerSize)
	if _, err := ra.ReadAt(buf, 0); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	return buf, nil
}

// Items returns a copy of the reconstructed item list in part 1 order.
func (a *Archive) Items() []*Item {
	if a == nil {
		return nil
	}

	items := make([]*Item, len(a.items))
	copy(items, a.items)
	return items
}

// Item resolves one reconstructed item by id.
func (a *Archive) Item(id ItemID) (*Item, error) {
	if a == nil {
		return nil, ErrNilArchive
	}

	it, ok := a.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrItemNotFound, id)
	}

	return it, nil
}

// ItemPath returns the full slash-joined archive path for one item.
// Falls back to the bare item name when path resolution degraded at open.
func (a *Archive) ItemPath(id ItemID) (string, error) {
	it, err := a.Item(id)
	if err != nil {
		return "", err
	}

	if a.paths != nil {
		if p, ok := a.paths[id]; ok {
			return p, nil
		}
	}

	return it.Name, nil
}

// Validate checks the reconstructed item list against the tree invariants.
func (a *Archive) Validate() error {
	if a == nil {
		return ErrNilArchive
	}

	return ValidateItemTree(a.items)
}

// OpenItem opens the decoded content stream of one item. Directories
// yield an empty stream.
func (a *Archive) OpenItem(id ItemID) (io.ReadCloser, error) {
	if a == nil || a.ra == nil {
		return nil, ErrNilArchive
	}

	a.mu.Lock()
	closed := a.closed
	a.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	it, err := a.Item(id)
	if err != nil {
		return nil, err
	}

	if it.Source == nil {
		return nil, fmt.Errorf("%w: item %d has no data source", ErrItemNotFound, id)
	}

	return nopCloser{Reader: io.NewSectionReader(it.Source, 0, it.Source.Size())}, nil
}

// ReadItem reads the full decoded content of one item.
func (a *Archive) ReadItem(id ItemID) ([]byte, error) {
	rc, err := a.OpenItem(id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	return io.ReadAll(rc)
}

// Close closes the underlying file if the archive owns one.
func (a *Archive) Close() error {
	if a == nil {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}

	a.closed = true
	if a.file != nil {
		return a.file.Close()
	}

	return nil
}

// ListItems opens an archive and returns metadata-only items without
// binding data sources. Useful for fast listing workflows.
func ListItems(path string) ([]*Item, error) {
	return ListItemsWithOptions(path, Options{})
}

// ListItemsWithOptions opens an archive and returns metadata-only items
// using explicit options.
func ListItemsWithOptions(path string, opts Options) ([]*Item, error) {
	opts.applyDefaults()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer func() { _ = f.Close() }()

	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat: %w", err)
	}

	buf, err := readHeaderBuffer(f, fi.Size())
	if err != nil {
		return nil, err
	}

	h, err := ParseHeader(buf, opts.Logger)
	if err != nil {
		return nil, err
	}

	return h.buildItemList(nil, opts.Logger), nil
}
