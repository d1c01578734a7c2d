// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package bnd

import (
	"bytes"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/LugeBox/soulstruct/bstruct"
	"github.com/LugeBox/soulstruct/dcx"
)

var (
	// ErrCorruptArchive is returned when a binder's header, directory or
	// payload region is structurally invalid.
	ErrCorruptArchive = errors.New("bnd: corrupt archive")

	// ErrNotFound is returned when no entry matches a lookup. It is a
	// normal outcome, not a corruption signal.
	ErrNotFound = errors.New("bnd: entry not found")

	// ErrDuplicateID is returned when adding an entry whose id is already
	// present in the archive.
	ErrDuplicateID = errors.New("bnd: duplicate entry id")

	// ErrPathResolution is returned on pack when the format carries entry
	// paths but an entry has none to write.
	ErrPathResolution = errors.New("bnd: cannot resolve entry path")
)

// Entry is one addressable sub-resource of an archive.
type Entry struct {
	ID    uint32
	Path  string
	Flags uint32

	data   []byte // decompressed payload
	stored []byte // original on-disk bytes; nil once the entry is edited
}

// Data returns the entry's decompressed payload.
func (e *Entry) Data() []byte { return e.data }

// Compressed reports whether the entry is stored compressed on disk.
func (e *Entry) Compressed() bool { return e.Flags&entryFlagCompressed != 0 }

// Archive is an in-memory binder. Mutation methods assume exclusive access;
// the archive provides no internal locking.
type Archive struct {
	Version string
	Format  uint8
	Dialect Dialect

	wrapped bool
	codec   dcx.Codec

	entries []*Entry
	byID    map[uint32]*Entry

	workers int
}

// Option configures Open and New.
type Option func(*Archive)

// WithWorkers bounds the number of goroutines used to decompress entries
// during Open. Zero or negative means GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(a *Archive) { a.workers = n }
}

// New creates an empty archive with the default format for the given dialect.
// DialectRemastered archives pack with an outer DCX wrapper.
func New(dialect Dialect, opts ...Option) *Archive {
	a := &Archive{
		Version: defaultVersion,
		Format:  defaultFormat,
		Dialect: dialect,
		wrapped: dialect == DialectRemastered,
		codec:   dcx.CodecDeflate,
		byID:    make(map[uint32]*Entry),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Open parses a binder from b. A DCX-wrapped binder is unwrapped first and
// its dialect recorded as DialectRemastered. Compressed entries are
// decompressed eagerly, in parallel across independent entries.
func Open(b []byte, opts ...Option) (*Archive, error) {
	a := &Archive{
		Dialect: DialectClassic,
		codec:   dcx.CodecDeflate,
		byID:    make(map[uint32]*Entry),
	}
	for _, opt := range opts {
		opt(a)
	}

	if dcx.IsWrapped(b) {
		payload, codec, err := dcx.Decompress(b)
		if err != nil {
			return nil, fmt.Errorf("unwrap archive: %w", err)
		}
		b = payload
		a.wrapped = true
		a.codec = codec
		a.Dialect = DialectRemastered
	}

	if len(b) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes is smaller than the %d-byte header", ErrCorruptArchive, len(b), headerSize)
	}
	h, err := readBinderHeader(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if string(h.Magic[:]) != bndMagic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrCorruptArchive, h.Magic)
	}
	if h.BigEndian != 0 {
		return nil, fmt.Errorf("%w: big-endian binders are not supported", ErrCorruptArchive)
	}
	a.Version = versionString(h.Version)
	a.Format = h.Format

	dirEnd := headerSize + int(h.EntryCount)*recordSize
	if dirEnd > len(b) || int(h.DataOffset) > len(b) || dirEnd > int(h.DataOffset) {
		return nil, fmt.Errorf("%w: directory of %d entries overruns %d-byte buffer", ErrCorruptArchive, h.EntryCount, len(b))
	}

	records, err := readDirRecords(bytes.NewReader(b[headerSize:dirEnd]), h.EntryCount)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}

	for _, rec := range records {
		end := int(rec.Offset) + int(rec.Size)
		if int(rec.Offset) < int(h.DataOffset) || end > len(b) || end < int(rec.Offset) {
			return nil, fmt.Errorf("%w: entry %d payload [%d:%d] outside buffer", ErrCorruptArchive, rec.ID, rec.Offset, end)
		}

		var path string
		if rec.PathOffset != 0 {
			if int(rec.PathOffset) < dirEnd || int(rec.PathOffset) >= int(h.DataOffset) {
				return nil, fmt.Errorf("%w: entry %d path offset %d outside path pool", ErrCorruptArchive, rec.ID, rec.PathOffset)
			}
			path, err = bstruct.ReadShiftJIS(b, int(rec.PathOffset))
			if err != nil {
				return nil, fmt.Errorf("entry %d path: %w", rec.ID, err)
			}
		}

		if _, dup := a.byID[rec.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate entry id %d", ErrCorruptArchive, rec.ID)
		}

		stored := make([]byte, rec.Size)
		copy(stored, b[rec.Offset:end])

		e := &Entry{
			ID:     rec.ID,
			Path:   path,
			Flags:  rec.Flags,
			stored: stored,
		}
		a.entries = append(a.entries, e)
		a.byID[rec.ID] = e
	}

	if err := a.decompressEntries(); err != nil {
		return nil, err
	}
	return a, nil
}

// decompressEntries fills Entry.data for every entry, unwrapping compressed
// payloads on a bounded worker pool.
func (a *Archive) decompressEntries() error {
	var g errgroup.Group
	workers := a.workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g.SetLimit(workers)

	for _, e := range a.entries {
		if !e.Compressed() {
			e.data = e.stored
			continue
		}
		e := e
		g.Go(func() error {
			payload, _, err := dcx.Decompress(e.stored)
			if err != nil {
				return fmt.Errorf("%w: entry %d: %v", ErrCorruptArchive, e.ID, err)
			}
			e.data = payload
			return nil
		})
	}
	return g.Wait()
}

// Entries returns the archive's entries in disk order. The slice is shared;
// callers must not modify it.
func (a *Archive) Entries() []*Entry { return a.entries }

// Entry returns the entry with the given id.
func (a *Archive) Entry(id uint32) (*Entry, error) {
	e, ok := a.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return e, nil
}

// EntryByPath returns the first entry whose path matches exactly.
func (a *Archive) EntryByPath(path string) (*Entry, error) {
	for _, e := range a.entries {
		if e.Path == path {
			return e, nil
		}
	}
	return nil, fmt.Errorf("%w: path %q", ErrNotFound, path)
}

// SetEntryData replaces an entry's payload. The entry loses its pass-through
// bytes and is re-encoded (and recompressed, if flagged) on the next pack.
func (a *Archive) SetEntryData(id uint32, data []byte) error {
	e, ok := a.byID[id]
	if !ok {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	e.data = data
	e.stored = nil
	return nil
}

// AddEntry appends a new entry to the archive.
func (a *Archive) AddEntry(id uint32, path string, data []byte, compressed bool) error {
	if _, dup := a.byID[id]; dup {
		return fmt.Errorf("%w: %d", ErrDuplicateID, id)
	}
	var flags uint32 = entryFlagDefault
	if compressed {
		flags |= entryFlagCompressed
	}
	e := &Entry{ID: id, Path: path, Flags: flags, data: data}
	a.entries = append(a.entries, e)
	a.byID[id] = e
	return nil
}

// RemoveEntry deletes the entry with the given id.
func (a *Archive) RemoveEntry(id uint32) error {
	if _, ok := a.byID[id]; !ok {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	delete(a.byID, id)
	for i, e := range a.entries {
		if e.ID == id {
			a.entries = append(a.entries[:i], a.entries[i+1:]...)
			break
		}
	}
	return nil
}
