// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package bnd

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LugeBox/soulstruct/dcx"
)

func buildTestArchive(t *testing.T, dialect Dialect) []byte {
	t.Helper()
	a := New(dialect)
	require.NoError(t, a.AddEntry(1, `N:\FRPG\data\param\GameParam.param`, []byte("param payload"), false))
	require.NoError(t, a.AddEntry(2, `N:\FRPG\data\msg\item.fmg`, []byte("text payload with some length to it"), true))
	require.NoError(t, a.AddEntry(5, `N:\FRPG\data\map\m10.msb`, []byte{0, 1, 2, 3, 4, 5, 6, 7}, false))
	out, err := a.Pack()
	require.NoError(t, err)
	return out
}

func TestOpenPackRoundTrip(t *testing.T) {
	for _, dialect := range []Dialect{DialectClassic, DialectRemastered} {
		t.Run(dialect.String(), func(t *testing.T) {
			raw := buildTestArchive(t, dialect)

			a, err := Open(raw)
			require.NoError(t, err)
			assert.Equal(t, dialect, a.Dialect)

			out, err := a.Pack()
			require.NoError(t, err)
			assert.Equal(t, raw, out, "unedited archive must round-trip byte for byte")
		})
	}
}

func TestEntryAccess(t *testing.T) {
	a, err := Open(buildTestArchive(t, DialectClassic))
	require.NoError(t, err)

	e, err := a.Entry(2)
	require.NoError(t, err)
	assert.Equal(t, []byte("text payload with some length to it"), e.Data())
	assert.True(t, e.Compressed())

	byPath, err := a.EntryByPath(`N:\FRPG\data\map\m10.msb`)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), byPath.ID)

	_, err = a.Entry(99)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = a.EntryByPath("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEntryOrderPreserved(t *testing.T) {
	a, err := Open(buildTestArchive(t, DialectClassic))
	require.NoError(t, err)

	var ids []uint32
	for _, e := range a.Entries() {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []uint32{1, 2, 5}, ids)
}

func TestSetEntryData(t *testing.T) {
	a, err := Open(buildTestArchive(t, DialectClassic))
	require.NoError(t, err)

	require.NoError(t, a.SetEntryData(5, []byte("replaced")))
	out, err := a.Pack()
	require.NoError(t, err)

	reopened, err := Open(out)
	require.NoError(t, err)
	e, err := reopened.Entry(5)
	require.NoError(t, err)
	assert.Equal(t, []byte("replaced"), e.Data())

	// Untouched compressed entry passes through byte for byte.
	orig, err := a.Entry(2)
	require.NoError(t, err)
	got, err := reopened.Entry(2)
	require.NoError(t, err)
	assert.Equal(t, orig.Data(), got.Data())

	assert.ErrorIs(t, a.SetEntryData(99, nil), ErrNotFound)
}

func TestEditedCompressedEntryRecompresses(t *testing.T) {
	a, err := Open(buildTestArchive(t, DialectClassic))
	require.NoError(t, err)

	require.NoError(t, a.SetEntryData(2, []byte("new text payload")))
	out, err := a.Pack()
	require.NoError(t, err)

	reopened, err := Open(out)
	require.NoError(t, err)
	e, err := reopened.Entry(2)
	require.NoError(t, err)
	assert.True(t, e.Compressed())
	assert.Equal(t, []byte("new text payload"), e.Data())
}

func TestAddRemoveEntry(t *testing.T) {
	a, err := Open(buildTestArchive(t, DialectClassic))
	require.NoError(t, err)

	assert.ErrorIs(t, a.AddEntry(1, "x", nil, false), ErrDuplicateID)
	require.NoError(t, a.AddEntry(7, `N:\FRPG\data\new.bin`, []byte("added"), false))
	require.NoError(t, a.RemoveEntry(5))
	assert.ErrorIs(t, a.RemoveEntry(5), ErrNotFound)

	out, err := a.Pack()
	require.NoError(t, err)
	reopened, err := Open(out)
	require.NoError(t, err)

	var ids []uint32
	for _, e := range reopened.Entries() {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []uint32{1, 2, 7}, ids)
}

func TestCorruptArchive(t *testing.T) {
	raw := buildTestArchive(t, DialectClassic)

	t.Run("bad magic", func(t *testing.T) {
		bad := append([]byte(nil), raw...)
		copy(bad, "XXXX")
		_, err := Open(bad)
		assert.ErrorIs(t, err, ErrCorruptArchive)
	})

	t.Run("truncated header", func(t *testing.T) {
		_, err := Open(raw[:10])
		assert.ErrorIs(t, err, ErrCorruptArchive)
	})

	t.Run("payload outside buffer", func(t *testing.T) {
		bad := append([]byte(nil), raw...)
		// First directory record's size field.
		binary.LittleEndian.PutUint32(bad[headerSize+4:], 0xFFFFFF)
		_, err := Open(bad)
		assert.ErrorIs(t, err, ErrCorruptArchive)
	})

	t.Run("duplicate ids", func(t *testing.T) {
		bad := append([]byte(nil), raw...)
		// Rewrite the second record's id to collide with the first.
		binary.LittleEndian.PutUint32(bad[headerSize+recordSize+12:], 1)
		_, err := Open(bad)
		assert.ErrorIs(t, err, ErrCorruptArchive)
	})
}

func TestPathResolutionError(t *testing.T) {
	a := New(DialectClassic)
	require.NoError(t, a.AddEntry(1, "", []byte("x"), false))
	_, err := a.Pack()
	assert.ErrorIs(t, err, ErrPathResolution)
}

func TestPathlessFormat(t *testing.T) {
	a := New(DialectClassic)
	a.Format = formatHasUnc | formatCanPack
	require.NoError(t, a.AddEntry(1, "", []byte("x"), false))

	out, err := a.Pack()
	require.NoError(t, err)
	reopened, err := Open(out)
	require.NoError(t, err)
	e, err := reopened.Entry(1)
	require.NoError(t, err)
	assert.Empty(t, e.Path)
}

func TestDialectFromWrapper(t *testing.T) {
	classic := buildTestArchive(t, DialectClassic)
	assert.False(t, dcx.IsWrapped(classic))

	remastered := buildTestArchive(t, DialectRemastered)
	assert.True(t, dcx.IsWrapped(remastered))

	a, err := Open(remastered)
	require.NoError(t, err)
	assert.Equal(t, DialectRemastered, a.Dialect)
}

func TestWriteFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "out", "GameParam.parambnd")

	a, err := Open(buildTestArchive(t, DialectClassic))
	require.NoError(t, err)
	require.NoError(t, a.WriteFile(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	_, err = Open(raw)
	require.NoError(t, err)
}

func TestWriteFileFailedPackWritesNothing(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "broken.parambnd")

	a := New(DialectClassic)
	require.NoError(t, a.AddEntry(1, "", []byte("x"), false)) // empty path fails pack
	assert.Error(t, a.WriteFile(path))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	leftovers, err := filepath.Glob(filepath.Join(tmpDir, "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestEmptyArchive(t *testing.T) {
	a := New(DialectClassic)
	out, err := a.Pack()
	require.NoError(t, err)

	reopened, err := Open(out)
	require.NoError(t, err)
	assert.Empty(t, reopened.Entries())
}
