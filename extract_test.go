// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Victor Bush
// Source: github.com/victorbush/ego.nefsedit

package nefs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestExtractAll(t *testing.T) {
	files := map[string]string{
		"readme.txt":     "top level",
		"data/a.bin":     strings.Repeat("alpha ", 100),
		"data/sub/b.bin": "nested",
	}

	a := createTestArchive(t, files, WriteOptions{})

	out := t.TempDir()
	if err := a.Extract(context.Background(), out, ExtractOptions{}); err != nil {
		t.Fatalf("Extract: %v", err)
	}

	for p, content := range files {
		got, err := os.ReadFile(filepath.Join(out, filepath.FromSlash(p)))
		if err != nil {
			t.Fatalf("read %q: %v", p, err)
		}
		if string(got) != content {
			t.Errorf("content of %q differs", p)
		}
	}

	fi, err := os.Stat(filepath.Join(out, "data", "sub"))
	if err != nil || !fi.IsDir() {
		t.Errorf("directory tree not recreated: %v", err)
	}
}

func TestExtractSelectedItems(t *testing.T) {
	a := createTestArchive(t, map[string]string{
		"keep.txt": "keep",
		"skip.txt": "skip",
	}, WriteOptions{})

	id, ok := findTestItem(a, "keep.txt")
	if !ok {
		t.Fatal("keep.txt not found")
	}
	it, err := a.Item(id)
	if err != nil {
		t.Fatal(err)
	}

	out := t.TempDir()
	if err := a.Extract(context.Background(), out, ExtractOptions{Items: []*Item{it}}); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(out, "keep.txt")); err != nil {
		t.Errorf("selected item missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(out, "skip.txt")); !errors.Is(err, os.ErrNotExist) {
		t.Error("unselected item was extracted")
	}
}

func TestExtractProgressCallback(t *testing.T) {
	a := createTestArchive(t, map[string]string{
		"a.txt":   "one",
		"d/b.txt": "two",
	}, WriteOptions{})

	var mu sync.Mutex
	seen := map[string]int64{}

	err := a.Extract(context.Background(), t.TempDir(), ExtractOptions{
		MaxWorkers: 2,
		OnItemDone: func(it *Item, written int64, outputPath string) {
			mu.Lock()
			seen[it.Name] = written
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	// 2 files + 1 directory.
	if len(seen) != 3 {
		t.Fatalf("callbacks = %d, want 3", len(seen))
	}
	if seen["a.txt"] != 3 || seen["b.txt"] != 3 {
		t.Errorf("written bytes: %v", seen)
	}
}

func TestExtractCanceledContext(t *testing.T) {
	a := createTestArchive(t, map[string]string{"a.txt": "x"}, WriteOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := a.Extract(ctx, t.TempDir(), ExtractOptions{}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestExtractClosedArchive(t *testing.T) {
	a := createTestArchive(t, map[string]string{"a.txt": "x"}, WriteOptions{})
	_ = a.Close()

	if err := a.Extract(context.Background(), t.TempDir(), ExtractOptions{}); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}
