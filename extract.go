// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Victor Bush
// Source: github.com/victorbush/ego.nefsedit

package nefs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Extract writes item content to dstDir, recreating the archive's
// directory tree. File items are extracted concurrently; decoding is
// chunk-independent, so workers never contend on transform state.
// A nil opts.Items selects every item.
func (a *Archive) Extract(ctx context.Context, dstDir string, opts ExtractOptions) error {
	if a == nil || a.ra == nil {
		return ErrNilArchive
	}

	a.mu.Lock()
	closed := a.closed
	a.mu.Unlock()
	if closed {
		return ErrClosed
	}

	items := opts.Items
	if items == nil {
		items = a.items
	}

	workers := opts.MaxWorkers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return fmt.Errorf("create output root: %w", err)
	}

	// Directories first so concurrent file writes never race a MkdirAll.
	for _, it := range items {
		if !it.IsDirectory() {
			continue
		}

		out, err := a.extractTarget(dstDir, it)
		if err != nil {
			return err
		}

		if err := os.MkdirAll(out, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", it.Name, err)
		}

		if opts.OnItemDone != nil {
			opts.OnItemDone(it, 0, out)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, it := range items {
		if it.IsDirectory() {
			continue
		}

		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			out, err := a.extractTarget(dstDir, it)
			if err != nil {
				return err
			}

			written, err := a.extractFile(it, out)
			if err != nil {
				return err
			}

			if opts.OnItemDone != nil {
				opts.OnItemDone(it, written, out)
			}

			return nil
		})
	}

	return g.Wait()
}

// extractTarget resolves an item's output path under the extraction root,
// rejecting paths that would escape it.
func (a *Archive) extractTarget(dstDir string, it *Item) (string, error) {
	p, err := a.ItemPath(it.ID)
	if err != nil {
		return "", err
	}

	safe, err := normalizeExtractItemPath(p)
	if err != nil {
		return "", fmt.Errorf("item %d: %w", it.ID, err)
	}

	return filepath.Join(dstDir, filepath.FromSlash(safe)), nil
}

// extractFile writes one file item's decoded content to out.
func (a *Archive) extractFile(it *Item, out string) (int64, error) {
	if it.Source == nil {
		return 0, fmt.Errorf("%w: item %d has no data source", ErrItemNotFound, it.ID)
	}

	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return 0, fmt.Errorf("create parent of %s: %w", it.Name, err)
	}

	f, err := os.Create(out)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", it.Name, err)
	}

	written, err := io.Copy(f, io.NewSectionReader(it.Source, 0, it.Source.Size()))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(out)
		return written, fmt.Errorf("extract %s: %w", it.Name, err)
	}

	return written, nil
}
