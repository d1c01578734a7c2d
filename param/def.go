// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

// Package param implements schema-driven dynamic-row tables. Row byte layout
// is not known at compile time: it is loaded from an external paramdef
// resource, selected by the dialect of the archive being edited, and applied
// at runtime to every row of every table of that kind.
package param

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/LugeBox/soulstruct/bnd"
	"github.com/LugeBox/soulstruct/bstruct"
)

var (
	// ErrUnknownSchema is returned when no schema exists for an encountered
	// table type. The engine never guesses a layout.
	ErrUnknownSchema = errors.New("param: unknown schema")

	// ErrRowCountMismatch is returned when a table's declared row count
	// does not fit its byte length.
	ErrRowCountMismatch = errors.New("param: row count mismatch")

	// ErrDuplicateRowID is returned when inserting a row whose id already
	// exists in the table.
	ErrDuplicateRowID = errors.New("param: duplicate row id")

	// ErrNotFound is returned when no row or table matches a lookup.
	ErrNotFound = errors.New("param: not found")
)

// Def describes the row layout of one logical table type in one dialect.
// A Def is immutable once loaded and shared read-only by every row codec
// call.
type Def struct {
	ParamType string
	Dialect   bnd.Dialect
	Fields    bstruct.Layout
	RowSize   int
}

// Paramdef binary layout constants.
const (
	defHeaderSize    = 40
	defFieldSize     = 48
	paramTypeLen     = 32
	defDisplayLen    = 32
	defTypeCodeLen   = 8
	currentDefFormat = 104
)

// Def lookup is cached process-wide per (param type, dialect): defs are
// large, read-only and reused across every row of every table of their kind.
// singleflight keeps concurrent opens from parsing the same def twice.
var (
	defCache sync.Map // string -> *Def
	defGroup singleflight.Group
)

func defKey(paramType string, dialect bnd.Dialect) string {
	return fmt.Sprintf("%s\x00%d", paramType, dialect)
}

// DefBank holds every schema of one dialect, keyed by param type.
type DefBank struct {
	Dialect bnd.Dialect
	defs    map[string]*Def
}

// Def returns the schema for the given table type.
func (b *DefBank) Def(paramType string) (*Def, error) {
	d, ok := b.defs[paramType]
	if !ok {
		return nil, fmt.Errorf("%w: %q (%s)", ErrUnknownSchema, paramType, b.Dialect)
	}
	return d, nil
}

// Types returns the param types the bank holds, in no particular order.
func (b *DefBank) Types() []string {
	out := make([]string, 0, len(b.defs))
	for t := range b.defs {
		out = append(out, t)
	}
	return out
}

// LoadDefs parses a paramdef binder. Each entry payload is one def; the
// bank's dialect is the binder's own dialect. Parsed defs are cached
// process-wide per (param type, dialect).
func LoadDefs(paramdefBnd []byte) (*DefBank, error) {
	archive, err := bnd.Open(paramdefBnd)
	if err != nil {
		return nil, fmt.Errorf("open paramdef binder: %w", err)
	}

	bank := &DefBank{Dialect: archive.Dialect, defs: make(map[string]*Def)}
	for _, e := range archive.Entries() {
		def, err := parseDefCached(e.Data(), archive.Dialect)
		if err != nil {
			return nil, fmt.Errorf("paramdef entry %d: %w", e.ID, err)
		}
		bank.defs[def.ParamType] = def
	}
	return bank, nil
}

func parseDefCached(raw []byte, dialect bnd.Dialect) (*Def, error) {
	if len(raw) < defHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes is smaller than the %d-byte def header", bstruct.ErrTruncatedRecord, len(raw), defHeaderSize)
	}
	paramType, err := bstruct.ReadFixedShiftJIS(raw, 0, paramTypeLen)
	if err != nil {
		return nil, err
	}

	key := defKey(paramType, dialect)
	if v, ok := defCache.Load(key); ok {
		return v.(*Def), nil
	}
	v, err, _ := defGroup.Do(key, func() (any, error) {
		if v, ok := defCache.Load(key); ok {
			return v, nil
		}
		def, err := parseDef(raw, paramType, dialect)
		if err != nil {
			return nil, err
		}
		defCache.Store(key, def)
		return def, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Def), nil
}

// parseDef decodes one binary def: a 40-byte header followed by fixed-size
// field records.
func parseDef(raw []byte, paramType string, dialect bnd.Dialect) (*Def, error) {
	fieldCount := int(uint16(raw[32]) | uint16(raw[33])<<8)
	rowSize := int(uint16(raw[34]) | uint16(raw[35])<<8)
	format := int(uint16(raw[36]) | uint16(raw[37])<<8)
	if format != currentDefFormat {
		return nil, fmt.Errorf("unsupported paramdef format %d", format)
	}

	if defHeaderSize+fieldCount*defFieldSize > len(raw) {
		return nil, fmt.Errorf("%w: %d field records overrun %d-byte def", bstruct.ErrTruncatedRecord, fieldCount, len(raw))
	}

	layout := make(bstruct.Layout, 0, fieldCount)
	for i := 0; i < fieldCount; i++ {
		off := defHeaderSize + i*defFieldSize
		name, err := bstruct.ReadFixedShiftJIS(raw, off, defDisplayLen)
		if err != nil {
			return nil, err
		}
		typeCode, err := bstruct.ReadFixedShiftJIS(raw, off+defDisplayLen, defTypeCodeLen)
		if err != nil {
			return nil, err
		}
		bits := int(raw[off+40])
		size := int(uint16(raw[off+42]) | uint16(raw[off+43])<<8)

		field, err := fieldFromTypeCode(name, typeCode, bits, size)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		layout = append(layout, field)
	}

	if layout.Size() != rowSize {
		return nil, fmt.Errorf("def %q declares %d-byte rows but its layout is %d bytes", paramType, rowSize, layout.Size())
	}

	return &Def{ParamType: paramType, Dialect: dialect, Fields: layout, RowSize: rowSize}, nil
}

// fieldFromTypeCode maps a paramdef type code onto a layout field. The code
// set is closed; anything else is a schema error.
func fieldFromTypeCode(name, code string, bits, size int) (bstruct.Field, error) {
	var kind bstruct.Kind
	switch code {
	case "u8":
		kind = bstruct.U8
	case "s8":
		kind = bstruct.S8
	case "u16":
		kind = bstruct.U16
	case "s16":
		kind = bstruct.S16
	case "u32":
		kind = bstruct.U32
	case "s32":
		kind = bstruct.S32
	case "f32":
		kind = bstruct.F32
	case "f64":
		kind = bstruct.F64
	case "dummy8":
		if size <= 0 {
			size = 1
		}
		return bstruct.Field{Name: name, Kind: bstruct.Bytes, Size: size, Padding: true}, nil
	case "fixstr":
		if size <= 0 {
			return bstruct.Field{}, fmt.Errorf("fixstr requires a size")
		}
		return bstruct.Field{Name: name, Kind: bstruct.Bytes, Size: size}, nil
	default:
		return bstruct.Field{}, fmt.Errorf("unknown type code %q", code)
	}
	return bstruct.Field{Name: name, Kind: kind, Bits: bits}, nil
}

// EncodeDef packs a def into a paramdef binder entry payload, for building
// schema binders in tooling and tests.
func EncodeDef(def *Def) ([]byte, error) {
	out := make([]byte, defHeaderSize)
	typeField, err := bstruct.EncodeFixedShiftJIS(def.ParamType, paramTypeLen)
	if err != nil {
		return nil, err
	}
	copy(out, typeField)
	putU16 := func(b []byte, v int) {
		b[0] = byte(v)
		b[1] = byte(v >> 8)
	}
	putU16(out[32:], len(def.Fields))
	putU16(out[34:], def.RowSize)
	putU16(out[36:], currentDefFormat)

	for _, f := range def.Fields {
		rec := make([]byte, defFieldSize)
		nameField, err := bstruct.EncodeFixedShiftJIS(f.Name, defDisplayLen)
		if err != nil {
			return nil, err
		}
		copy(rec, nameField)
		copy(rec[defDisplayLen:], typeCodeOf(f))
		rec[40] = byte(f.Bits)
		putU16(rec[42:], f.Size)
		out = append(out, rec...)
	}
	return out, nil
}

func typeCodeOf(f bstruct.Field) string {
	if f.Kind == bstruct.Bytes {
		if f.Padding {
			return "dummy8"
		}
		return "fixstr"
	}
	switch f.Kind {
	case bstruct.U8:
		return "u8"
	case bstruct.S8:
		return "s8"
	case bstruct.U16:
		return "u16"
	case bstruct.S16:
		return "s16"
	case bstruct.U32:
		return "u32"
	case bstruct.S32:
		return "s32"
	case bstruct.F32:
		return "f32"
	case bstruct.F64:
		return "f64"
	}
	return ""
}
