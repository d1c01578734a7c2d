// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package bnd

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Binder format constants
const (
	// Magic signature "BND3"
	bndMagic = "BND3"

	// Header and directory record sizes
	headerSize = 0x20
	recordSize = 0x18

	// Header format flags
	formatHasPaths  = 0x02 // directory records carry path-string offsets
	formatHasUnc    = 0x04 // directory records carry uncompressed sizes
	formatCanPack   = 0x08 // entries may be individually compressed
	defaultFormat   = formatHasPaths | formatHasUnc | formatCanPack
	defaultVersion  = "07D7R6"
	versionFieldLen = 8

	// Directory record flags
	entryFlagCompressed = 0x20
	entryFlagDefault    = 0x40
)

// Dialect identifies the game edition a resource belongs to. It is inferred
// once per archive open from a structural signal (the presence of an outer
// DCX wrapper) and threaded into every schema selection that follows.
type Dialect int

const (
	// DialectClassic is the unwrapped original edition.
	DialectClassic Dialect = iota

	// DialectRemastered is the DCX-wrapped remastered edition.
	DialectRemastered
)

func (d Dialect) String() string {
	switch d {
	case DialectClassic:
		return "classic"
	case DialectRemastered:
		return "remastered"
	}
	return fmt.Sprintf("Dialect(%d)", int(d))
}

// binderHeader is the fixed 32-byte BND3 header.
type binderHeader struct {
	Magic      [4]byte // "BND3"
	Version    [8]byte // build version string, null padded
	Format     uint8   // format flag bits
	BigEndian  uint8   // always 0 in the supported editions
	Pad0A      [2]byte
	EntryCount uint32
	DataOffset uint32 // end of header + directory + path pool
	Pad18      [8]byte
}

// dirRecord is one fixed-size entry directory record.
type dirRecord struct {
	Flags            uint32 // entryFlag bits
	Size             uint32 // stored (possibly compressed) payload size
	Offset           uint32 // absolute payload offset
	ID               uint32
	PathOffset       uint32 // absolute offset into path pool, 0 = no path
	UncompressedSize uint32
}

func readBinderHeader(r io.Reader) (*binderHeader, error) {
	h := &binderHeader{}
	if err := binary.Read(r, binary.LittleEndian, h); err != nil {
		return nil, err
	}
	return h, nil
}

func writeBinderHeader(w io.Writer, h *binderHeader) error {
	return binary.Write(w, binary.LittleEndian, h)
}

func readDirRecords(r io.Reader, count uint32) ([]dirRecord, error) {
	records := make([]dirRecord, count)
	if err := binary.Read(r, binary.LittleEndian, records); err != nil {
		return nil, err
	}
	return records, nil
}

func writeDirRecords(w io.Writer, records []dirRecord) error {
	return binary.Write(w, binary.LittleEndian, records)
}

// versionString trims the null padding from the header's version field.
func versionString(v [8]byte) string {
	b := v[:]
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// versionField packs a version string into the fixed header field.
func versionField(s string) ([8]byte, error) {
	var v [8]byte
	if len(s) > versionFieldLen {
		return v, fmt.Errorf("version %q longer than %d bytes", s, versionFieldLen)
	}
	copy(v[:], s)
	return v, nil
}
