// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Victor Bush
// Source: github.com/victorbush/ego.nefsedit

package nefs

import (
	"fmt"
	"io"
	"log/slog"
)

// ItemDirectoryID resolves the parent directory id for one item without
// building the full item. Root-level items return their own id.
func (h *Header) ItemDirectoryID(id ItemID) (ItemID, error) {
	p2, ok := h.Part2[id]
	if !ok {
		return 0, fmt.Errorf("%w: id %d in part 2", ErrItemNotFound, id)
	}

	return p2.DirectoryID, nil
}

// ItemFileName resolves the filename for one item without building the full item.
func (h *Header) ItemFileName(id ItemID) (string, error) {
	p2, ok := h.Part2[id]
	if !ok {
		return "", fmt.Errorf("%w: id %d in part 2", ErrItemNotFound, id)
	}

	return h.Part3.Name(p2.NameOffset)
}

// newTransform builds the chunk transform for this archive's items.
// Fails with ErrCryptoUnavailable when the archive is flagged encrypted
// but no key material decodes.
func (h *Header) newTransform() (*Transform, error) {
	if h.keyErr != nil {
		return nil, h.keyErr
	}

	return NewTransform(h.BlockSize(), h.key)
}

// ItemInfo reconstructs one item by joining its part 1, part 2, and
// optional part 6 records. ra provides archive data for the item's data
// source; a nil ra yields a metadata-only item without a source.
func (h *Header) ItemInfo(id ItemID, ra io.ReaderAt) (*Item, error) {
	p1, ok := h.Part1[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d in part 1", ErrItemNotFound, id)
	}

	p2, ok := h.Part2[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d in part 2", ErrItemNotFound, id)
	}

	name, err := h.Part3.Name(p2.NameOffset)
	if err != nil {
		return nil, fmt.Errorf("item %d: %w", id, err)
	}

	it := &Item{
		ID:              id,
		Name:            name,
		DirectoryID:     p2.DirectoryID,
		DataOffset:      p1.DataOffset,
		ExtractedSize:   p2.ExtractedSize,
		FirstChunkIndex: p1.FirstChunkIndex,
		Type:            ItemTypeFile,
	}

	// Absence in part 6 is valid; all derived fields stay zero.
	if p6, ok := h.Part6[id]; ok {
		it.Volume = p6.Volume
		it.Flags = p6.Flags
		it.UnknownPart6 = p6.Raw
	}

	// The zero-size sentinel discriminates directories from files.
	if p2.ExtractedSize == 0 {
		it.Type = ItemTypeDirectory
		it.Source = emptySource{}
		return it, nil
	}

	tr, err := h.newTransform()
	if err != nil {
		return nil, fmt.Errorf("item %d: %w", id, err)
	}
	it.Transform = tr

	if p1.FirstChunkIndex == NoCompressionIndex {
		// Stored as a direct range; the transform still decrypts when the
		// archive is encrypted, it just never inflates.
		it.CompressedSize = p2.ExtractedSize
		if ra != nil {
			it.Source = newRawSource(ra, p1.DataOffset, p2.ExtractedSize, tr)
		}

		return it, nil
	}

	chunks, err := chunksForItem(h.Part4, p1.FirstChunkIndex, p2.ExtractedSize, h.BlockSize())
	if err != nil {
		return nil, fmt.Errorf("item %d: %w", id, err)
	}

	if len(chunks) > 0 {
		it.CompressedSize = chunks[len(chunks)-1].CumulativeSize
	}
	if ra != nil {
		it.Source = newChunkedSource(ra, p1.DataOffset, p2.ExtractedSize, chunks, tr)
	}

	return it, nil
}

// buildItemList reconstructs every item present in part 1, in record order.
// Items that fail reconstruction are logged and skipped; the archive stays
// usable with the reduced list.
func (h *Header) buildItemList(ra io.ReaderAt, log *slog.Logger) []*Item {
	items := make([]*Item, 0, len(h.Part1))
	for i := 0; i < len(h.Part1); i++ {
		id := ItemID(i)
		it, err := h.ItemInfo(id, ra)
		if err != nil {
			log.Warn("skipping unreadable item", "id", uint32(id), "error", err)
			continue
		}

		items = append(items, it)
	}

	return items
}

// ValidateItemTree checks that every parent id resolves and that the
// parent relation forms a forest. Items whose directory id equals their
// own id sit at the implicit root.
func ValidateItemTree(items []*Item) error {
	byID := make(map[ItemID]*Item, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}

	for _, it := range items {
		seen := 0
		for cur := it; cur.DirectoryID != cur.ID; {
			parent, ok := byID[cur.DirectoryID]
			if !ok {
				return fmt.Errorf("%w: item %d parent %d", ErrItemNotFound, cur.ID, cur.DirectoryID)
			}

			if seen++; seen > len(items) {
				return fmt.Errorf("%w: starting at item %d", ErrItemCycle, it.ID)
			}

			cur = parent
		}
	}

	return nil
}

// buildItemPaths resolves the full slash-joined archive path of every item.
// A cycle in the parent links fails the whole resolution.
func buildItemPaths(items []*Item) (map[ItemID]string, error) {
	byID := make(map[ItemID]*Item, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}

	paths := make(map[ItemID]string, len(items))

	var resolve func(it *Item, depth int) (string, error)
	resolve = func(it *Item, depth int) (string, error) {
		if p, ok := paths[it.ID]; ok {
			return p, nil
		}

		if depth > len(items) {
			return "", fmt.Errorf("%w: starting at item %d", ErrItemCycle, it.ID)
		}

		p := it.Name
		if it.DirectoryID != it.ID {
			if parent, ok := byID[it.DirectoryID]; ok {
				prefix, err := resolve(parent, depth+1)
				if err != nil {
					return "", err
				}

				p = prefix + "/" + it.Name
			}
		}

		paths[it.ID] = p
		return p, nil
	}

	for _, it := range items {
		if _, err := resolve(it, 0); err != nil {
			return nil, err
		}
	}

	return paths, nil
}
