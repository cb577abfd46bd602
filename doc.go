// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Victor Bush
// Source: github.com/victorbush/ego.nefsedit

/*
Package nefs provides read, extract, pack, and edit operations for NeFS
game archives. It is designed for streaming workflows: packing accepts
caller-provided streams (Input.Open), and reading/extracting decodes
chunks on demand without loading full archive payload into memory.

Item data goes through a fixed per-chunk transform chain: AES-CTR
decryption (when the archive is encrypted) followed by zlib inflation
(when the chunk is marked compressed). Chunks decode independently, so
range reads and concurrent extraction never decode more than they need.

# Reading

Open an archive and list or read items:

	a, err := nefs.Open("game.nefs")
	if err != nil {
	    return err
	}
	defer a.Close()
	for _, it := range a.Items() {
	    data, _ := a.ReadItem(it.ID)
	    // use data
	}

For metadata-only scans, use the fast helper without binding data sources:

	items, err := nefs.ListItems("game.nefs")
	if err != nil {
	    return err
	}
	_ = items

# Writing

Pack caller streams into a new archive:

	_, err := nefs.Create(ctx, "out.nefs", inputs, nefs.WriteOptions{
	    Compress: []pathrules.Rule{{Action: pathrules.ActionInclude, Pattern: "**"}},
	})

Malformed archives degrade instead of failing where possible: items
whose records cannot be joined are logged and skipped, and optional
header parts that fail to parse are dropped with a warning.
*/
package nefs
