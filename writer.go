// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Victor Bush
// Source: github.com/victorbush/ego.nefsedit

package nefs

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"os"
	"sort"
	"strings"
)

// writeBufferSize is the buffered writer size for sequential payload writes.
const writeBufferSize = 1 << 20

// writeItem describes one item planned for the destination archive.
type writeItem struct {
	// open yields the logical (decoded) item content. Nil for directories.
	open func() (io.ReadCloser, error)
	// name is the item filename, path the full archive path.
	name string
	path string
	// sizeHint is the expected logical size; sizeKnown marks it reliable.
	sizeHint  int64
	sizeKnown bool
	id        ItemID
	dirID     ItemID
	volume    uint16
	// carryFlags preserves part 6 bits other than transformed/directory.
	carryFlags    Part6Flags
	part6Reserved byte
	isDir         bool
}

// writtenItem records concrete values produced during the payload write.
type writtenItem struct {
	dataOffset    uint64
	storedSize    int64
	extractedSize uint32
	firstChunk    uint32
	compressed    bool
}

// Create writes a new archive to destPath from the given inputs.
// Directories are derived from input paths; ids are assigned in sorted
// path order. Returns the opened resulting archive.
func Create(ctx context.Context, destPath string, inputs []Input, opts WriteOptions) (*Archive, error) {
	if len(inputs) == 0 {
		return nil, ErrEmptyInputs
	}

	entries, err := planInputs(inputs)
	if err != nil {
		return nil, err
	}

	return writeAndReopen(ctx, destPath, entries, nil, baseArchiveName(NormalizePath(destPath)), opts)
}

// WriteArchive writes a fully materialized archive to destPath and
// returns the re-opened archive whose metadata reflects the written
// layout. Encryption and block size carry over from the source unless
// overridden in opts. The destination is indeterminate if ctx is
// canceled mid-write.
func WriteArchive(ctx context.Context, destPath string, src *Archive, opts WriteOptions) (*Archive, error) {
	return writeArchiveWithOverrides(ctx, destPath, src, nil, opts)
}

// writeArchiveWithOverrides is WriteArchive with per-item data source
// replacements, used by the editor commit path.
func writeArchiveWithOverrides(
	ctx context.Context,
	destPath string,
	src *Archive,
	overrides map[ItemID]DataSource,
	opts WriteOptions,
) (*Archive, error) {
	if src == nil {
		return nil, ErrNilArchive
	}

	if opts.BlockSize == 0 {
		opts.BlockSize = src.Header.BlockSize()
	}
	if opts.EncryptionKey == nil && src.Header.key != nil {
		opts.EncryptionKey = src.Header.key
	}

	entries, err := planRewrite(src, overrides)
	if err != nil {
		return nil, err
	}

	name := baseArchiveName(NormalizePath(destPath))
	if src.Header.Part5 != nil {
		if archiveName, err := src.Header.Part3.Name(src.Header.Part5.NameOffset); err == nil {
			name = archiveName
		}
	}

	return writeAndReopen(ctx, destPath, entries, src.Header.Part8, name, opts)
}

// planInputs builds the destination item plan from caller inputs,
// deriving intermediate directories and assigning ids in path order.
func planInputs(inputs []Input) ([]*writeItem, error) {
	files := make(map[string]*Input, len(inputs))
	dirs := make(map[string]struct{})
	seen := make(map[string]string, len(inputs))

	for i := range inputs {
		in := &inputs[i]
		normalized := NormalizePath(in.Path)
		if normalized == "" || in.Open == nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidItemPath, in.Path)
		}

		lookup := strings.ToLower(normalized)
		if prev, ok := seen[lookup]; ok {
			return nil, fmt.Errorf("%w: %q and %q", ErrDuplicateItemPath, prev, in.Path)
		}
		seen[lookup] = in.Path

		files[normalized] = in
		for dir := parentArchivePath(normalized); dir != ""; dir = parentArchivePath(dir) {
			dirs[dir] = struct{}{}
		}
	}

	for dir := range dirs {
		if _, clash := files[dir]; clash {
			return nil, fmt.Errorf("%w: %q is both file and directory", ErrDuplicateItemPath, dir)
		}
	}

	allPaths := make([]string, 0, len(files)+len(dirs))
	for p := range files {
		allPaths = append(allPaths, p)
	}
	for p := range dirs {
		allPaths = append(allPaths, p)
	}
	sort.Strings(allPaths)

	ids := make(map[string]ItemID, len(allPaths))
	for i, p := range allPaths {
		ids[p] = ItemID(i)
	}

	entries := make([]*writeItem, 0, len(allPaths))
	for _, p := range allPaths {
		id := ids[p]
		dirID := id // root-level items point at themselves
		if parent := parentArchivePath(p); parent != "" {
			dirID = ids[parent]
		}

		e := &writeItem{
			name:  baseArchiveName(p),
			path:  p,
			id:    id,
			dirID: dirID,
		}

		if in, ok := files[p]; ok {
			e.open = in.Open
			e.sizeHint = in.SizeHint
			e.sizeKnown = in.SizeHint > 0
		} else {
			e.isDir = true
		}

		entries = append(entries, e)
	}

	return entries, nil
}

// planRewrite builds the destination plan from an open archive's item
// list, compacting ids and remapping parent links.
func planRewrite(src *Archive, overrides map[ItemID]DataSource) ([]*writeItem, error) {
	items := src.Items()
	idMap := make(map[ItemID]ItemID, len(items))
	for i, it := range items {
		idMap[it.ID] = ItemID(i)
	}

	entries := make([]*writeItem, 0, len(items))
	for i, it := range items {
		source := it.Source
		if override, ok := overrides[it.ID]; ok {
			source = override
		}

		path, err := src.ItemPath(it.ID)
		if err != nil {
			path = it.Name
		}

		e := &writeItem{
			name:          it.Name,
			path:          path,
			id:            ItemID(i),
			dirID:         ItemID(i),
			volume:        it.Volume,
			carryFlags:    it.Flags &^ (FlagTransformed | FlagDirectory),
			part6Reserved: it.UnknownPart6[3],
			isDir:         it.IsDirectory(),
		}

		if newDir, ok := idMap[it.DirectoryID]; ok {
			e.dirID = newDir
		}

		if !e.isDir {
			if source == nil {
				return nil, fmt.Errorf("%w: item %d has no data source", ErrItemNotFound, it.ID)
			}

			data := source
			e.open = func() (io.ReadCloser, error) {
				return nopCloser{Reader: io.NewSectionReader(data, 0, data.Size())}, nil
			}
			e.sizeHint = data.Size()
			e.sizeKnown = true
		}

		entries = append(entries, e)
	}

	return entries, nil
}

// writeAndReopen runs the serialized write core and re-opens the result.
func writeAndReopen(
	ctx context.Context,
	destPath string,
	entries []*writeItem,
	part8 []byte,
	archiveName string,
	opts WriteOptions,
) (*Archive, error) {
	opts.applyDefaults()

	matcher, err := newCompressMatcher(opts.Compress, opts.CompressMatcherOptions)
	if err != nil {
		return nil, err
	}

	tr, err := NewTransform(opts.BlockSize, opts.EncryptionKey)
	if err != nil {
		return nil, err
	}

	dataStart, err := chooseDataStart(entries, part8, archiveName, opts)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(destPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create archive file: %w", err)
	}
	defer func() {
		if f != nil {
			_ = f.Close()
		}
	}()

	written, part4, dataEnd, err := writeArchiveData(ctx, f, entries, tr, matcher, dataStart, opts)
	if err != nil {
		return nil, err
	}

	headerBuf, err := buildHeader(entries, written, part4, part8, archiveName, dataStart, dataEnd, opts, tr)
	if err != nil {
		return nil, err
	}

	if _, err := f.WriteAt(headerBuf, 0); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	// Materialize the gap between header and data start for data-less archives.
	if dataEnd < int64(dataStart) {
		dataEnd = int64(dataStart)
	}
	if err := f.Truncate(dataEnd); err != nil {
		return nil, fmt.Errorf("finalize archive size: %w", err)
	}

	if err := f.Sync(); err != nil {
		return nil, fmt.Errorf("sync archive: %w", err)
	}

	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}
	f = nil

	return OpenWithOptions(destPath, Options{Logger: opts.Logger})
}

// chooseDataStart picks the data section offset. The standard offset is
// used unless the header estimate (or the caller) demands the large one.
func chooseDataStart(entries []*writeItem, part8 []byte, archiveName string, opts WriteOptions) (uint32, error) {
	estimate := uint64(headerFixedSize) + uint64(part5Size) + uint64(len(part8))
	estimate += uint64(len(archiveName)) + 1

	for _, e := range entries {
		estimate += part1EntrySize + part2EntrySize + part6EntrySize + part7EntrySize
		estimate += uint64(len(e.name)) + 1
		if !e.isDir && e.sizeKnown {
			chunks := (uint64(e.sizeHint) + uint64(opts.BlockSize) - 1) / uint64(opts.BlockSize)
			estimate += chunks * part4ChunkSize
		}
	}

	switch {
	case estimate > uint64(DataOffsetLarge):
		return 0, fmt.Errorf("%w: header estimate %d", ErrSizeOverflow, estimate)
	case opts.LargeHeader || estimate > uint64(DataOffsetStandard):
		return DataOffsetLarge, nil
	default:
		return DataOffsetStandard, nil
	}
}

// writeArchiveData streams every item's payload to the data section and
// collects the concrete part 1 / part 4 values. All physical writes go to
// one serialized destination stream.
func writeArchiveData(
	ctx context.Context,
	f *os.File,
	entries []*writeItem,
	tr *Transform,
	matcher *compressMatcher,
	dataStart uint32,
	opts WriteOptions,
) ([]writtenItem, []Part4Chunk, int64, error) {
	if _, err := f.Seek(int64(dataStart), io.SeekStart); err != nil {
		return nil, nil, 0, fmt.Errorf("seek data start: %w", err)
	}

	bw := bufio.NewWriterSize(f, writeBufferSize)
	written := make([]writtenItem, len(entries))
	var part4 []Part4Chunk

	off := int64(dataStart)
	done := 0

	for i, e := range entries {
		select {
		case <-ctx.Done():
			return nil, nil, 0, ctx.Err()
		default:
		}

		if e.isDir {
			written[i] = writtenItem{firstChunk: NoCompressionIndex}
			done++
			reportItemDone(opts, e, written[i], done, len(entries))
			continue
		}

		w, chunks, err := writeItemData(bw, e, tr, matcher, off, uint32(len(part4)), opts)
		if err != nil {
			return nil, nil, 0, fmt.Errorf("write item %s: %w", e.path, err)
		}

		part4 = append(part4, chunks...)
		off += w.storedSize
		written[i] = w
		done++
		reportItemDone(opts, e, w, done, len(entries))
	}

	if err := bw.Flush(); err != nil {
		return nil, nil, 0, fmt.Errorf("flush payload: %w", err)
	}

	return written, part4, off, nil
}

// reportItemDone delivers one progress event when a sink is configured.
func reportItemDone(opts WriteOptions, e *writeItem, w writtenItem, done, total int) {
	if opts.OnItemDone == nil {
		return
	}

	opts.OnItemDone(WriteProgress{
		Path:         e.path,
		ID:           e.id,
		ItemsDone:    done,
		ItemsTotal:   total,
		BytesWritten: w.storedSize,
		Compressed:   w.compressed,
	})
}

// writeItemData encodes one item's content chunk by chunk.
func writeItemData(
	bw *bufio.Writer,
	e *writeItem,
	tr *Transform,
	matcher *compressMatcher,
	off int64,
	nextChunkIndex uint32,
	opts WriteOptions,
) (writtenItem, []Part4Chunk, error) {
	var w writtenItem

	rc, err := e.open()
	if err != nil {
		return w, nil, fmt.Errorf("open source: %w", err)
	}
	defer func() { _ = rc.Close() }()

	compress := shouldCompress(opts, matcher, e.path, e.sizeHint, e.sizeKnown)

	w.dataOffset = uint64(off)
	w.firstChunk = NoCompressionIndex
	w.compressed = compress
	if compress {
		w.firstChunk = nextChunkIndex
	}

	var chunks []Part4Chunk
	var cumulative uint64
	var logical int64
	buf := make([]byte, tr.BlockSize)

	for chunkIdx := uint64(0); ; chunkIdx++ {
		n, rerr := readChunk(rc, buf)
		if rerr != nil && rerr != io.EOF {
			return w, nil, rerr
		}
		if n == 0 {
			if rerr == io.EOF {
				break
			}
			continue
		}

		stored, zlibbed, err := tr.encodeChunk(chunkIdx, buf[:n], compress)
		if err != nil {
			return w, nil, err
		}

		if _, err := bw.Write(stored); err != nil {
			return w, nil, fmt.Errorf("write chunk %d: %w", chunkIdx, err)
		}

		w.storedSize += int64(len(stored))
		logical += int64(n)

		if compress {
			cumulative += uint64(len(stored))
			if cumulative > math.MaxUint32 {
				return w, nil, fmt.Errorf("%w: item %s stored data", ErrSizeOverflow, e.path)
			}

			transform := uint16(0)
			if zlibbed {
				transform = chunkTransformZlib
			}

			chunks = append(chunks, Part4Chunk{
				CumulativeSize: uint32(cumulative),
				Transform:      transform,
				Checksum:       uint16(crc32.ChecksumIEEE(stored)),
			})
		}

		if rerr == io.EOF {
			break
		}
	}

	if logical > math.MaxUint32 {
		return w, nil, fmt.Errorf("%w: item %s extracted size", ErrSizeOverflow, e.path)
	}
	w.extractedSize = uint32(logical)

	// Empty files collapse to the directory sentinel; drop the chunk run.
	if w.extractedSize == 0 {
		w.firstChunk = NoCompressionIndex
		w.compressed = false
		chunks = nil
	}

	return w, chunks, nil
}

// readChunk fills buf as far as the stream allows. Returns io.EOF only
// once no bytes remain.
func readChunk(r io.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err == io.EOF {
			return total, io.EOF
		}
		if err != nil {
			return total, err
		}
	}

	return total, nil
}

// buildHeader assembles and encodes the complete header buffer.
func buildHeader(
	entries []*writeItem,
	written []writtenItem,
	part4 []Part4Chunk,
	part8 []byte,
	archiveName string,
	dataStart uint32,
	archiveSize int64,
	opts WriteOptions,
	tr *Transform,
) ([]byte, error) {
	n := uint32(len(entries))

	names := newNameTableBuilder()
	nameOffsets := make([]uint32, len(entries))
	for i, e := range entries {
		nameOffsets[i] = names.add(e.name)
	}
	archiveNameOff := names.add(archiveName)
	blob := names.bytes()

	var toc TOC
	toc.Size = tocSize
	toc.Version = 2
	toc.BlockSize = opts.BlockSize

	off := uint32(headerFixedSize)
	place := func(count, entrySize uint32) partRange {
		r := partRange{Offset: off, Count: count}
		off += count * entrySize
		return r
	}

	toc.Parts[0] = place(n, part1EntrySize)
	toc.Parts[1] = place(n, part2EntrySize)
	toc.Parts[2] = place(uint32(len(blob)), 1)
	toc.Parts[3] = place(uint32(len(part4)), part4ChunkSize)
	toc.Parts[4] = place(1, part5Size)
	toc.Parts[5] = place(n, part6EntrySize)
	toc.Parts[6] = place(n, part7EntrySize)
	toc.Parts[7] = place(uint32(len(part8)), 1)

	headerSize := off
	if headerSize > dataStart {
		return nil, fmt.Errorf("%w: header %d exceeds data start %#x", ErrSizeOverflow, headerSize, dataStart)
	}

	if archiveSize < int64(dataStart) {
		archiveSize = int64(dataStart)
	}

	intro := &Intro{
		HeaderSize: headerSize,
		NumItems:   n,
		NumVolumes: 1,
	}
	if tr.Encrypts() {
		intro.Flags |= introFlagEncrypted
		copy(intro.KeyHex[:], hex.EncodeToString(tr.key))
	}

	part1 := make(map[ItemID]*Part1Entry, n)
	part2 := make(map[ItemID]*Part2Entry, n)
	part6 := make(map[ItemID]*Part6Entry, n)
	part7 := make(map[ItemID]*Part7Entry, n)

	for i, e := range entries {
		id := ItemID(i)
		w := written[i]

		part1[id] = &Part1Entry{
			DataOffset:      w.dataOffset,
			FirstChunkIndex: w.firstChunk,
			StoredID:        uint32(id),
		}

		part2[id] = &Part2Entry{
			DirectoryID:   e.dirID,
			FirstChildID:  firstChildOf(entries, id),
			NameOffset:    nameOffsets[i],
			ExtractedSize: w.extractedSize,
			StoredID:      uint32(id),
		}

		flags := e.carryFlags
		if e.isDir || w.extractedSize == 0 {
			flags |= FlagDirectory
		} else if w.compressed || tr.Encrypts() {
			flags |= FlagTransformed
		}

		p6 := &Part6Entry{Volume: e.volume, Flags: flags, Reserved: e.part6Reserved}
		p6.Raw[0] = byte(e.volume)
		p6.Raw[1] = byte(e.volume >> 8)
		p6.Raw[2] = byte(flags)
		p6.Raw[3] = e.part6Reserved
		part6[id] = p6

		part7[id] = &Part7Entry{
			NextSiblingID: nextSiblingOf(entries, id),
			StoredID:      uint32(id),
		}
	}

	buf := make([]byte, headerSize)
	if err := encodeIntro(intro, buf); err != nil {
		return nil, err
	}
	if err := encodeTOC(&toc, buf); err != nil {
		return nil, err
	}
	if err := encodePart1(buf, toc.Parts[0], part1); err != nil {
		return nil, err
	}
	if err := encodePart2(buf, toc.Parts[1], part2); err != nil {
		return nil, err
	}
	copy(buf[toc.Parts[2].Offset:], blob)
	if err := encodePart4(buf, toc.Parts[3], part4); err != nil {
		return nil, err
	}

	part5 := &Part5{
		ArchiveSize:     uint64(archiveSize),
		NameOffset:      archiveNameOff,
		FirstDataOffset: dataStart,
	}
	if err := encodePart5(buf, toc.Parts[4], part5); err != nil {
		return nil, err
	}
	if err := encodePart6(buf, toc.Parts[5], part6); err != nil {
		return nil, err
	}
	if err := encodePart7(buf, toc.Parts[6], part7); err != nil {
		return nil, err
	}
	copy(buf[toc.Parts[7].Offset:], part8)

	hash := computeHeaderHash(buf)
	if err := fldIntroHash.write(buf, 0, hash[:]); err != nil {
		return nil, err
	}

	return buf, nil
}

// firstChildOf returns the smallest id parented by dir, or dir itself.
func firstChildOf(entries []*writeItem, dir ItemID) ItemID {
	for _, e := range entries {
		if e.dirID == dir && e.id != dir {
			return e.id
		}
	}

	return dir
}

// nextSiblingOf returns the next id sharing the item's parent, or the id itself.
func nextSiblingOf(entries []*writeItem, id ItemID) ItemID {
	dir := entries[int(id)].dirID
	for _, e := range entries[int(id)+1:] {
		if e.dirID == dir && e.id != dir {
			return e.id
		}
	}

	return id
}
