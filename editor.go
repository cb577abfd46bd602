// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Victor Bush
// Source: github.com/victorbush/ego.nefsedit

package nefs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Editor stages reversible item edits over an open archive. Edits stay
// in memory until Save serializes the archive; undo and redo walk the
// staged history. Not safe for concurrent use.
type Editor struct {
	archive *Archive
	undo    *UndoBuffer
	// overrides holds replacement data sources for edited items.
	overrides map[ItemID]DataSource
}

// NewEditor wraps an open archive for staged editing. onChange (may be
// nil) fires on every edit, undo, or redo.
func NewEditor(a *Archive, onChange func(ChangeKind)) (*Editor, error) {
	if a == nil {
		return nil, ErrNilArchive
	}

	return &Editor{
		archive:   a,
		undo:      NewUndoBuffer(onChange),
		overrides: make(map[ItemID]DataSource),
	}, nil
}

// Archive returns the archive being edited.
func (e *Editor) Archive() *Archive { return e.archive }

// replaceDataCommand swaps one item's staged data source.
type replaceDataCommand struct {
	editor  *Editor
	prev    DataSource
	next    DataSource
	id      ItemID
	hadPrev bool
}

func (c *replaceDataCommand) Do() {
	c.editor.overrides[c.id] = c.next
}

func (c *replaceDataCommand) Undo() {
	if c.hadPrev {
		c.editor.overrides[c.id] = c.prev
		return
	}

	delete(c.editor.overrides, c.id)
}

// ReplaceItemData stages a replacement data source for one file item.
func (e *Editor) ReplaceItemData(id ItemID, src DataSource) error {
	it, err := e.archive.Item(id)
	if err != nil {
		return err
	}

	if it.IsDirectory() {
		return fmt.Errorf("%w: item %d is a directory", ErrInvalidItemPath, id)
	}
	if src == nil {
		return fmt.Errorf("%w: item %d replacement source", ErrItemNotFound, id)
	}

	cmd := &replaceDataCommand{editor: e, id: id, next: src}
	cmd.prev, cmd.hadPrev = e.overrides[id]
	e.undo.Execute(cmd)
	return nil
}

// ReplaceItemDataFromFile stages a file's content as an item replacement.
// The file is held open until the editor is saved or the edit undone away.
func (e *Editor) ReplaceItemDataFromFile(id ItemID, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open replacement: %w", err)
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat replacement: %w", err)
	}

	return e.ReplaceItemData(id, fileSource{f: f, size: fi.Size()})
}

// ItemSource returns the effective data source for one item: the staged
// replacement when present, the archive's own otherwise.
func (e *Editor) ItemSource(id ItemID) (DataSource, error) {
	it, err := e.archive.Item(id)
	if err != nil {
		return nil, err
	}

	if src, ok := e.overrides[id]; ok {
		return src, nil
	}

	return it.Source, nil
}

// IsItemEdited reports whether the item has a staged replacement.
func (e *Editor) IsItemEdited(id ItemID) bool {
	_, ok := e.overrides[id]
	return ok
}

// Undo reverts the most recent edit.
func (e *Editor) Undo() bool { return e.undo.Undo() }

// Redo re-applies the most recently undone edit.
func (e *Editor) Redo() bool { return e.undo.Redo() }

// CanUndo reports whether an edit is undoable.
func (e *Editor) CanUndo() bool { return e.undo.CanUndo() }

// CanRedo reports whether an edit is redoable.
func (e *Editor) CanRedo() bool { return e.undo.CanRedo() }

// Modified reports whether staged state differs from the last save.
func (e *Editor) Modified() bool { return e.undo.Modified() }

// Save serializes the archive with all staged edits applied to destPath
// and returns the re-opened result. The write goes through a temporary
// file in the destination directory, so destPath may be the source
// archive itself. On success the current state becomes the saved state;
// the editor keeps operating on the original archive.
func (e *Editor) Save(ctx context.Context, destPath string, opts WriteOptions) (*Archive, error) {
	tmp, err := os.CreateTemp(filepath.Dir(destPath), filepath.Base(destPath)+".*")
	if err != nil {
		return nil, fmt.Errorf("create temp archive: %w", err)
	}

	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer func() { _ = os.Remove(tmpPath) }()

	written, err := writeArchiveWithOverrides(ctx, tmpPath, e.archive, e.overrides, opts)
	if err != nil {
		return nil, err
	}

	if err := written.Close(); err != nil {
		return nil, fmt.Errorf("close temp archive: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return nil, fmt.Errorf("replace archive: %w", err)
	}

	saved, err := OpenWithOptions(destPath, Options{Logger: opts.Logger})
	if err != nil {
		return nil, err
	}

	e.undo.MarkAsSaved()
	return saved, nil
}

// fileSource adapts an open file to DataSource.
type fileSource struct {
	f    *os.File
	size int64
}

func (s fileSource) ReadAt(p []byte, off int64) (int, error) { return s.f.ReadAt(p, off) }

func (s fileSource) Size() int64 { return s.size }
