// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package param

import (
	"fmt"

	"github.com/LugeBox/soulstruct/bnd"
	"github.com/LugeBox/soulstruct/bstruct"
)

// Bank opens a whole game-parameter binder into editable tables and packs
// them back into the binder on save. The schema dialect is inferred from the
// binder's own compression wrapper and must match the paramdef source.
type Bank struct {
	archive *bnd.Archive
	defs    *DefBank
	tables  map[string]*Table // keyed by param type
	entries map[string]uint32 // param type -> binder entry id
}

// OpenBank decodes every entry of a game-parameter binder using schemas from
// a paramdef binder. Both binders must belong to the same dialect.
func OpenBank(gameParam, paramdefs []byte) (*Bank, error) {
	archive, err := bnd.Open(gameParam)
	if err != nil {
		return nil, fmt.Errorf("open parameter binder: %w", err)
	}

	defs, err := LoadDefs(paramdefs)
	if err != nil {
		return nil, err
	}
	if defs.Dialect != archive.Dialect {
		return nil, fmt.Errorf("%w: paramdef binder is %s, parameter binder is %s",
			ErrUnknownSchema, defs.Dialect, archive.Dialect)
	}

	b := &Bank{
		archive: archive,
		defs:    defs,
		tables:  make(map[string]*Table),
		entries: make(map[string]uint32),
	}
	for _, e := range archive.Entries() {
		data := e.Data()
		if len(data) < tableHeaderSize {
			return nil, fmt.Errorf("%w: entry %d is not a parameter table", bstruct.ErrTruncatedRecord, e.ID)
		}
		paramType, err := bstruct.ReadFixedShiftJIS(data, 12, paramTypeLen)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", e.ID, err)
		}
		def, err := defs.Def(paramType)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", e.ID, err)
		}
		table, err := Open(data, def)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", e.ID, err)
		}
		b.tables[paramType] = table
		b.entries[paramType] = e.ID
	}
	return b, nil
}

// Dialect returns the dialect the bank was opened with.
func (b *Bank) Dialect() bnd.Dialect { return b.archive.Dialect }

// Table returns the table with the given param type.
func (b *Bank) Table(paramType string) (*Table, error) {
	t, ok := b.tables[paramType]
	if !ok {
		return nil, fmt.Errorf("%w: table %q", ErrNotFound, paramType)
	}
	return t, nil
}

// Types returns the param types the bank holds, in binder entry order.
func (b *Bank) Types() []string {
	out := make([]string, 0, len(b.tables))
	for _, e := range b.archive.Entries() {
		for paramType, id := range b.entries {
			if id == e.ID {
				out = append(out, paramType)
			}
		}
	}
	return out
}

// Pack re-encodes every table into its binder entry and packs the binder.
// The whole result is computed in memory before any entry is replaced.
func (b *Bank) Pack() ([]byte, error) {
	packed := make(map[uint32][]byte, len(b.tables))
	for paramType, table := range b.tables {
		data, err := table.Pack()
		if err != nil {
			return nil, fmt.Errorf("table %q: %w", paramType, err)
		}
		packed[b.entries[paramType]] = data
	}
	for id, data := range packed {
		if err := b.archive.SetEntryData(id, data); err != nil {
			return nil, err
		}
	}
	return b.archive.Pack()
}

// WriteFile packs the bank and writes the binder atomically.
func (b *Bank) WriteFile(path string) error {
	for paramType, table := range b.tables {
		data, err := table.Pack()
		if err != nil {
			return fmt.Errorf("table %q: %w", paramType, err)
		}
		if err := b.archive.SetEntryData(b.entries[paramType], data); err != nil {
			return err
		}
	}
	return b.archive.WriteFile(path)
}
