// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package param

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/LugeBox/soulstruct/bstruct"
)

// Table header and row directory layout constants.
const (
	tableHeaderSize = 0x30
	rowRecordSize   = 0x0C
)

// tableHeader is the fixed 48-byte table header preceding the row directory.
type tableHeader struct {
	StringsOffset uint32 // start of the row-name pool
	DataOffset    uint32 // start of the row data region
	Unk08         uint16
	RowCount      uint16
	ParamType     [32]byte // shift-JIS, null padded
	BigEndian     uint8
	Pad2D         [3]byte
}

// rowRecord is one row directory entry.
type rowRecord struct {
	ID         uint32
	DataOffset uint32 // absolute offset of the row's payload
	NameOffset uint32 // absolute offset of the row's name, 0 = unnamed
}

// Row is one record of a table. Its field set always matches the owning
// table's schema exactly.
type Row struct {
	ID     uint32
	Name   string
	Values bstruct.Values
}

// Table is a mutable mapping of row id to row, with byte layout supplied at
// runtime by a Def. Mutation methods assume exclusive access.
type Table struct {
	Def *Def

	unk08 uint16
	rows  map[uint32]*Row
}

// NewTable creates an empty table bound to a schema.
func NewTable(def *Def) *Table {
	return &Table{Def: def, rows: make(map[uint32]*Row)}
}

// Open decodes a table entry using the given schema.
func Open(b []byte, def *Def) (*Table, error) {
	if len(b) < tableHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes is smaller than the %d-byte table header", bstruct.ErrTruncatedRecord, len(b), tableHeaderSize)
	}
	var h tableHeader
	if err := binary.Read(bytes.NewReader(b), binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("read table header: %w", err)
	}

	paramType, err := bstruct.ReadFixedShiftJIS(b, 12, paramTypeLen)
	if err != nil {
		return nil, err
	}
	if paramType != def.ParamType {
		return nil, fmt.Errorf("%w: table is %q, schema is %q", ErrUnknownSchema, paramType, def.ParamType)
	}

	count := int(h.RowCount)
	if tableHeaderSize+count*rowRecordSize > len(b) {
		return nil, fmt.Errorf("%w: %d row records overrun %d-byte entry", ErrRowCountMismatch, count, len(b))
	}
	if int(h.DataOffset)+count*def.RowSize > len(b) {
		return nil, fmt.Errorf("%w: %d rows of %d bytes overrun %d-byte entry", ErrRowCountMismatch, count, def.RowSize, len(b))
	}

	t := &Table{Def: def, unk08: h.Unk08, rows: make(map[uint32]*Row, count)}
	for i := 0; i < count; i++ {
		var rec rowRecord
		recOff := tableHeaderSize + i*rowRecordSize
		if err := binary.Read(bytes.NewReader(b[recOff:recOff+rowRecordSize]), binary.LittleEndian, &rec); err != nil {
			return nil, fmt.Errorf("read row record %d: %w", i, err)
		}

		values, _, err := bstruct.Decode(def.Fields, b, int(rec.DataOffset))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", rec.ID, err)
		}

		var name string
		if rec.NameOffset != 0 {
			name, err = bstruct.ReadShiftJIS(b, int(rec.NameOffset))
			if err != nil {
				return nil, fmt.Errorf("row %d name: %w", rec.ID, err)
			}
		}

		if _, dup := t.rows[rec.ID]; dup {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateRowID, rec.ID)
		}
		t.rows[rec.ID] = &Row{ID: rec.ID, Name: name, Values: values}
	}
	return t, nil
}

// Row returns the row with the given id.
func (t *Table) Row(id uint32) (*Row, error) {
	r, ok := t.rows[id]
	if !ok {
		return nil, fmt.Errorf("%w: row %d", ErrNotFound, id)
	}
	return r, nil
}

// Insert adds a row. The row's id must not already exist.
func (t *Table) Insert(r *Row) error {
	if _, dup := t.rows[r.ID]; dup {
		return fmt.Errorf("%w: %d", ErrDuplicateRowID, r.ID)
	}
	if r.Values == nil {
		r.Values = make(bstruct.Values)
	}
	t.rows[r.ID] = r
	return nil
}

// Delete removes the row with the given id.
func (t *Table) Delete(id uint32) error {
	if _, ok := t.rows[id]; !ok {
		return fmt.Errorf("%w: row %d", ErrNotFound, id)
	}
	delete(t.rows, id)
	return nil
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// IDs returns every row id in ascending order.
func (t *Table) IDs() []uint32 {
	ids := make([]uint32, 0, len(t.rows))
	for id := range t.rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Pack serializes the table. Rows are written in ascending id order
// regardless of insertion order; an unedited open/pack cycle reproduces the
// input bytes exactly.
func (t *Table) Pack() ([]byte, error) {
	ids := t.IDs()

	paramType, err := bstruct.EncodeFixedShiftJIS(t.Def.ParamType, paramTypeLen)
	if err != nil {
		return nil, err
	}

	dataOffset := tableHeaderSize + len(ids)*rowRecordSize
	dataSize := len(ids) * t.Def.RowSize
	stringsOffset := dataOffset + dataSize

	// Encode every row before assembling anything, so a failed encode
	// leaves no partial output.
	records := make([]rowRecord, len(ids))
	data := make([]byte, 0, dataSize)
	var names []byte
	for i, id := range ids {
		r := t.rows[id]
		enc, err := bstruct.Encode(t.Def.Fields, r.Values)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", id, err)
		}
		records[i] = rowRecord{ID: id, DataOffset: uint32(dataOffset + i*t.Def.RowSize)}
		if r.Name != "" {
			records[i].NameOffset = uint32(stringsOffset + len(names))
			names, err = bstruct.AppendShiftJIS(names, r.Name)
			if err != nil {
				return nil, fmt.Errorf("row %d name: %w", id, err)
			}
		}
		data = append(data, enc...)
	}

	h := tableHeader{
		StringsOffset: uint32(stringsOffset),
		DataOffset:    uint32(dataOffset),
		Unk08:         t.unk08,
		RowCount:      uint16(len(ids)),
	}
	copy(h.ParamType[:], paramType)

	buf := bytes.NewBuffer(make([]byte, 0, stringsOffset+len(names)))
	if err := binary.Write(buf, binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("write table header: %w", err)
	}
	if len(records) > 0 {
		if err := binary.Write(buf, binary.LittleEndian, records); err != nil {
			return nil, fmt.Errorf("write row records: %w", err)
		}
	}
	buf.Write(data)
	buf.Write(names)
	return buf.Bytes(), nil
}
