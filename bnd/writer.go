// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package bnd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/LugeBox/soulstruct/bstruct"
	"github.com/LugeBox/soulstruct/dcx"
)

// Pack serializes the archive: header, recomputed entry directory, path pool
// and payloads. Entries never edited since Open keep their original stored
// bytes; edited entries are recompressed when flagged. The result is wrapped
// in DCX when the archive was opened wrapped.
func (a *Archive) Pack() ([]byte, error) {
	version, err := versionField(a.Version)
	if err != nil {
		return nil, fmt.Errorf("pack header: %w", err)
	}

	// Resolve stored payload bytes first so nothing is assembled when an
	// entry cannot be packed.
	payloads := make([][]byte, len(a.entries))
	for i, e := range a.entries {
		switch {
		case e.stored != nil:
			payloads[i] = e.stored
		case e.Compressed():
			wrapped, err := dcx.Compress(e.data, a.codec)
			if err != nil {
				return nil, fmt.Errorf("compress entry %d: %w", e.ID, err)
			}
			payloads[i] = wrapped
		default:
			payloads[i] = e.data
		}
	}

	// Path pool follows the directory; record path offsets as it grows.
	hasPaths := a.Format&formatHasPaths != 0
	dirEnd := headerSize + len(a.entries)*recordSize
	var pool []byte
	pathOffsets := make([]uint32, len(a.entries))
	for i, e := range a.entries {
		if e.Path == "" {
			if hasPaths {
				return nil, fmt.Errorf("%w: entry %d has no path", ErrPathResolution, e.ID)
			}
			continue
		}
		if !hasPaths {
			continue
		}
		pathOffsets[i] = uint32(dirEnd + len(pool))
		pool, err = bstruct.AppendShiftJIS(pool, e.Path)
		if err != nil {
			return nil, fmt.Errorf("entry %d path: %w", e.ID, err)
		}
	}

	dataOffset := dirEnd + len(pool)
	records := make([]dirRecord, len(a.entries))
	offset := dataOffset
	for i, e := range a.entries {
		uncompressed := len(e.data)
		records[i] = dirRecord{
			Flags:            e.Flags,
			Size:             uint32(len(payloads[i])),
			Offset:           uint32(offset),
			ID:               e.ID,
			PathOffset:       pathOffsets[i],
			UncompressedSize: uint32(uncompressed),
		}
		offset += len(payloads[i])
	}

	h := &binderHeader{
		Version:    version,
		Format:     a.Format,
		EntryCount: uint32(len(a.entries)),
		DataOffset: uint32(dataOffset),
	}
	copy(h.Magic[:], bndMagic)

	buf := bytes.NewBuffer(make([]byte, 0, offset))
	if err := writeBinderHeader(buf, h); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	if len(records) > 0 {
		if err := writeDirRecords(buf, records); err != nil {
			return nil, fmt.Errorf("write directory: %w", err)
		}
	}
	buf.Write(pool)
	for _, p := range payloads {
		buf.Write(p)
	}

	out := buf.Bytes()
	if a.wrapped {
		out, err = dcx.Compress(out, a.codec)
		if err != nil {
			return nil, fmt.Errorf("wrap archive: %w", err)
		}
	}
	return out, nil
}

// WriteFile packs the archive and writes it to path atomically: the bytes go
// to a temporary file in the destination directory first and are renamed into
// place only after a successful pack and write.
func (a *Archive) WriteFile(path string) error {
	out, err := a.Pack()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "bnd_*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("save archive: %w", err)
	}
	return nil
}
