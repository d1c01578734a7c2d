// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

// Package fmg reads and writes indexed text tables and merges the patch
// overlay pair of archives ("item" and "menu" groups) that carries them.
//
// A text table maps integer IDs to UTF-16LE strings. On disk the IDs are
// compacted into contiguous ranges; an offset of zero and an empty string
// both mean "no entry", so the two are indistinguishable after a round trip.
package fmg

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/LugeBox/soulstruct/bstruct"
)

var (
	// ErrFormat reports bytes that are not a valid text table.
	ErrFormat = errors.New("fmg: invalid format")

	// ErrUnexpectedCategory reports an archive entry ID or category name
	// outside the fixed category table.
	ErrUnexpectedCategory = errors.New("fmg: unexpected text category")

	// ErrInconsistentDialect reports item and menu archives that disagree on
	// their compression dialect.
	ErrInconsistentDialect = errors.New("fmg: inconsistent archive dialects")

	// ErrNotFound reports a lookup of a text index with no entry.
	ErrNotFound = errors.New("fmg: text not found")
)

const (
	fmgHeaderSize = 24
	fmgVersion    = 1
	rangeSize     = 12
)

// FMG is one in-memory text table. Entries never holds empty strings:
// setting an ID to "" is the same as deleting it.
type FMG struct {
	Entries map[int]string
}

// New returns an empty text table.
func New() *FMG {
	return &FMG{Entries: make(map[int]string)}
}

// Open parses a text table from b.
func Open(b []byte) (*FMG, error) {
	if len(b) < fmgHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes is smaller than the %d-byte header", ErrFormat, len(b), fmgHeaderSize)
	}
	le := binary.LittleEndian
	if unk := le.Uint32(b); unk != 0 {
		return nil, fmt.Errorf("%w: nonzero header field %#x", ErrFormat, unk)
	}
	if size := int(le.Uint32(b[4:])); size != len(b) {
		return nil, fmt.Errorf("%w: header claims %d bytes, have %d", ErrFormat, size, len(b))
	}
	if v := le.Uint32(b[8:]); v != fmgVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrFormat, v)
	}
	rangeCount := int(le.Uint32(b[12:]))
	stringCount := int(le.Uint32(b[16:]))
	offsetsOffset := int(le.Uint32(b[20:]))

	rangesEnd := fmgHeaderSize + rangeCount*rangeSize
	if rangesEnd > len(b) || offsetsOffset+4*stringCount > len(b) {
		return nil, fmt.Errorf("%w: range or offset table overruns %d-byte buffer", ErrFormat, len(b))
	}

	f := New()
	for i := 0; i < rangeCount; i++ {
		rec := b[fmgHeaderSize+i*rangeSize:]
		firstIndex := int(int32(le.Uint32(rec)))
		firstID := int(int32(le.Uint32(rec[4:])))
		lastID := int(int32(le.Uint32(rec[8:])))
		if lastID < firstID {
			return nil, fmt.Errorf("%w: range %d runs backwards (%d..%d)", ErrFormat, i, firstID, lastID)
		}
		for id := firstID; id <= lastID; id++ {
			idx := firstIndex + (id - firstID)
			if idx < 0 || idx >= stringCount {
				return nil, fmt.Errorf("%w: range %d indexes string %d of %d", ErrFormat, i, idx, stringCount)
			}
			off := int(le.Uint32(b[offsetsOffset+4*idx:]))
			if off == 0 {
				continue
			}
			s, err := bstruct.ReadUTF16(b, off)
			if err != nil {
				return nil, err
			}
			if s == "" {
				continue
			}
			f.Entries[id] = s
		}
	}
	return f, nil
}

// Pack serializes the text table, compacting IDs into contiguous ranges.
func (f *FMG) Pack() ([]byte, error) {
	ids := make([]int, 0, len(f.Entries))
	for id, s := range f.Entries {
		if s == "" {
			continue
		}
		ids = append(ids, id)
	}
	sort.Ints(ids)

	type idRange struct{ firstIndex, firstID, lastID int }
	var ranges []idRange
	for i := 0; i < len(ids); {
		j := i
		for j+1 < len(ids) && ids[j+1] == ids[j]+1 {
			j++
		}
		ranges = append(ranges, idRange{firstIndex: i, firstID: ids[i], lastID: ids[j]})
		i = j + 1
	}

	le := binary.LittleEndian
	offsetsOffset := fmgHeaderSize + len(ranges)*rangeSize
	stringsOffset := offsetsOffset + 4*len(ids)

	out := make([]byte, stringsOffset)
	le.PutUint32(out[8:], fmgVersion)
	le.PutUint32(out[12:], uint32(len(ranges)))
	le.PutUint32(out[16:], uint32(len(ids)))
	le.PutUint32(out[20:], uint32(offsetsOffset))
	for i, r := range ranges {
		rec := out[fmgHeaderSize+i*rangeSize:]
		le.PutUint32(rec, uint32(r.firstIndex))
		le.PutUint32(rec[4:], uint32(r.firstID))
		le.PutUint32(rec[8:], uint32(r.lastID))
	}

	for i, id := range ids {
		le.PutUint32(out[offsetsOffset+4*i:], uint32(len(out)))
		var err error
		out, err = bstruct.AppendUTF16(out, f.Entries[id])
		if err != nil {
			return nil, err
		}
	}
	le.PutUint32(out[4:], uint32(len(out)))
	return out, nil
}
