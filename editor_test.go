// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Victor Bush
// Source: github.com/victorbush/ego.nefsedit

package nefs

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

// byteSource adapts a byte slice to DataSource.
type byteSource []byte

func (s byteSource) ReadAt(p []byte, off int64) (int, error) {
	return bytes.NewReader(s).ReadAt(p, off)
}

func (s byteSource) Size() int64 { return int64(len(s)) }

func TestEditorReplaceAndSave(t *testing.T) {
	files := map[string]string{
		"data/a.bin": strings.Repeat("original ", 50),
		"data/b.bin": "untouched",
	}

	a := createTestArchive(t, files, WriteOptions{})

	ed, err := NewEditor(a, nil)
	if err != nil {
		t.Fatal(err)
	}

	id, ok := findTestItem(a, "data/a.bin")
	if !ok {
		t.Fatal("data/a.bin not found")
	}

	replacement := []byte("replacement payload")
	if err := ed.ReplaceItemData(id, byteSource(replacement)); err != nil {
		t.Fatal(err)
	}

	if !ed.Modified() || !ed.IsItemEdited(id) {
		t.Error("edit not staged")
	}

	// The underlying archive is untouched until save.
	got, err := a.ReadItem(id)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != files["data/a.bin"] {
		t.Error("archive changed before save")
	}

	dest := filepath.Join(t.TempDir(), "edited.nefs")
	saved, err := ed.Save(context.Background(), dest, WriteOptions{})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	defer saved.Close()

	if ed.Modified() {
		t.Error("editor still modified after save")
	}

	newID, ok := findTestItem(saved, "data/a.bin")
	if !ok {
		t.Fatal("edited item missing from saved archive")
	}
	got, err = saved.ReadItem(newID)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, replacement) {
		t.Error("saved archive does not carry the replacement")
	}

	otherID, ok := findTestItem(saved, "data/b.bin")
	if !ok {
		t.Fatal("untouched item missing from saved archive")
	}
	got, err = saved.ReadItem(otherID)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "untouched" {
		t.Error("untouched item changed")
	}
}

func TestEditorUndoRestoresSource(t *testing.T) {
	a := createTestArchive(t, map[string]string{"a.bin": "original"}, WriteOptions{})

	ed, err := NewEditor(a, nil)
	if err != nil {
		t.Fatal(err)
	}

	id, _ := findTestItem(a, "a.bin")

	first := byteSource("first")
	second := byteSource("second")
	if err := ed.ReplaceItemData(id, first); err != nil {
		t.Fatal(err)
	}
	if err := ed.ReplaceItemData(id, second); err != nil {
		t.Fatal(err)
	}

	src, err := ed.ItemSource(id)
	if err != nil {
		t.Fatal(err)
	}
	if src.Size() != second.Size() {
		t.Error("latest replacement not effective")
	}

	if !ed.Undo() {
		t.Fatal("undo failed")
	}
	src, _ = ed.ItemSource(id)
	if src.Size() != first.Size() {
		t.Error("undo did not restore earlier replacement")
	}

	if !ed.Undo() {
		t.Fatal("second undo failed")
	}
	if ed.IsItemEdited(id) {
		t.Error("item still edited after undoing all edits")
	}

	if !ed.Redo() {
		t.Fatal("redo failed")
	}
	if !ed.IsItemEdited(id) {
		t.Error("redo did not restage the edit")
	}
}

func TestEditorRejectsDirectoryAndUnknownItems(t *testing.T) {
	a := createTestArchive(t, map[string]string{"d/a.bin": "x"}, WriteOptions{})

	ed, err := NewEditor(a, nil)
	if err != nil {
		t.Fatal(err)
	}

	dirID, ok := findTestItem(a, "d")
	if !ok {
		t.Fatal("directory not found")
	}
	if err := ed.ReplaceItemData(dirID, byteSource("x")); !errors.Is(err, ErrInvalidItemPath) {
		t.Errorf("expected ErrInvalidItemPath for directory, got %v", err)
	}

	if err := ed.ReplaceItemData(999, byteSource("x")); !errors.Is(err, ErrItemNotFound) {
		t.Errorf("expected ErrItemNotFound, got %v", err)
	}
}

func TestEditorSaveInPlace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inplace.nefs")
	a, err := Create(context.Background(), path, makeInputs(map[string]string{"a.bin": "before"}), WriteOptions{})
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	ed, err := NewEditor(a, nil)
	if err != nil {
		t.Fatal(err)
	}

	id, _ := findTestItem(a, "a.bin")
	if err := ed.ReplaceItemData(id, byteSource("after")); err != nil {
		t.Fatal(err)
	}

	saved, err := ed.Save(context.Background(), path, WriteOptions{})
	if err != nil {
		t.Fatalf("in-place Save: %v", err)
	}
	defer saved.Close()

	newID, _ := findTestItem(saved, "a.bin")
	got, err := saved.ReadItem(newID)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "after" {
		t.Errorf("in-place save content = %q", got)
	}
}

func TestNewEditorNilArchive(t *testing.T) {
	if _, err := NewEditor(nil, nil); !errors.Is(err, ErrNilArchive) {
		t.Errorf("expected ErrNilArchive, got %v", err)
	}
}
