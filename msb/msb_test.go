// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package msb

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLayout() *MSB {
	m := New()
	m.Models = []*Model{
		{Name: "m2000B1", Subtype: ModelMapPiece, SibPath: `N:\FRPG\data\Model\map\m10_01_00_00\sib\m2000B1.sib`},
		{Name: "c1200", Subtype: ModelCharacter, SibPath: `N:\FRPG\data\Model\chr\c1200\sib\c1200.sib`},
		{Name: "c2250", Subtype: ModelCharacter, SibPath: `N:\FRPG\data\Model\chr\c2250\sib\c2250.sib`},
	}
	m.Events = []*Event{
		{Name: "宝箱", Subtype: EventTreasure, EntityID: 10010600, Tail: []byte{1, 0, 0, 0, 0xFF, 0xFF, 0xFF, 0xFF}},
		{Name: "音源01", Subtype: EventSound, EntityID: -1, Tail: []byte{7, 0, 0, 0}},
	}
	m.Regions = []*Region{
		{
			Name:     "スタート地点",
			Shape:    ShapePoint,
			Position: [3]float32{12.5, -4.25, 100},
			Rotation: [3]float32{0, 180, 0},
			EntityID: 1002300,
		},
		{
			Name:     "霧トリガー",
			Shape:    ShapeBox,
			Position: [3]float32{-3, 0, 8.75},
			EntityID: 1002301,
			Tail:     []byte{0, 0, 0x40, 0x40, 0, 0, 0x80, 0x3F, 0, 0, 0, 0x40},
		},
	}
	m.Parts = []*Part{
		{
			Name:      "c1200_0000",
			Subtype:   PartCharacter,
			ModelName: "c1200",
			SibPath:   "",
			Position:  [3]float32{10, 0, -2},
			Scale:     [3]float32{1, 1, 1},
			Tail:      []byte{0xFF, 0xFF, 0xFF, 0xFF},
		},
		{
			Name:      "m2000B1_0000",
			Subtype:   PartMapPiece,
			ModelName: "m2000B1",
			SibPath:   `N:\FRPG\data\Model\map\m10_01_00_00\sib\layout.SIB`,
			Scale:     [3]float32{1, 1, 1},
		},
		{
			Name:      "c1200_0001",
			Subtype:   PartCharacter,
			ModelName: "c1200",
			Position:  [3]float32{14, 0, -2},
			Scale:     [3]float32{1, 1, 1},
		},
	}
	return m
}

func TestRoundTripIdentity(t *testing.T) {
	packed, err := testLayout().Pack()
	require.NoError(t, err)

	m, err := Open(packed)
	require.NoError(t, err)
	repacked, err := m.Pack()
	require.NoError(t, err)

	assert.Equal(t, packed, repacked)
}

func TestOpenResolvesModelNames(t *testing.T) {
	packed, err := testLayout().Pack()
	require.NoError(t, err)

	m, err := Open(packed)
	require.NoError(t, err)
	require.Len(t, m.Parts, 3)
	assert.Equal(t, "c1200", m.Parts[0].ModelName)
	assert.Equal(t, "m2000B1", m.Parts[1].ModelName)
	assert.Equal(t, "c1200", m.Parts[2].ModelName)
	assert.Equal(t, "宝箱", m.Events[0].Name)
	assert.Equal(t, ShapeBox, m.Regions[1].Shape)
	assert.Equal(t, [3]float32{12.5, -4.25, 100}, m.Regions[0].Position)
}

func TestPackDanglingModelReference(t *testing.T) {
	m := testLayout()
	m.Models = m.Models[:1] // drops c1200 and c2250

	_, err := m.Pack()
	require.ErrorIs(t, err, ErrDanglingReference)
	assert.Contains(t, err.Error(), "c1200")
}

func TestRenameModelThenRepack(t *testing.T) {
	m := testLayout()
	m.Models[1].Name = "c1201"
	for _, part := range m.Parts {
		if part.ModelName == "c1200" {
			part.ModelName = "c1201"
		}
	}

	packed, err := m.Pack()
	require.NoError(t, err)
	reopened, err := Open(packed)
	require.NoError(t, err)
	assert.Equal(t, "c1201", reopened.Parts[0].ModelName)
}

func TestPackDuplicateModelName(t *testing.T) {
	m := testLayout()
	m.Models[2].Name = m.Models[1].Name

	_, err := m.Pack()
	require.ErrorIs(t, err, ErrFormat)
}

func TestOpenRejectsBadMagic(t *testing.T) {
	packed, err := testLayout().Pack()
	require.NoError(t, err)
	packed[0] = 'X'

	_, err = Open(packed)
	require.ErrorIs(t, err, ErrFormat)
}

func TestOpenRejectsUnknownSubtype(t *testing.T) {
	m := New()
	m.Models = []*Model{{Name: "m0000B0", Subtype: ModelSubtype(99)}}

	// Packing does not validate subtypes; decode must reject the tag.
	packed, err := m.Pack()
	require.NoError(t, err)
	_, err = Open(packed)
	require.ErrorIs(t, err, ErrFormat)
	assert.Contains(t, err.Error(), "subtype")
}

func TestOpenRejectsOutOfRangeModelIndex(t *testing.T) {
	m := testLayout()
	m.Parts = m.Parts[:1]
	packed, err := m.Pack()
	require.NoError(t, err)

	// The part entry is the last block in the file; its model index field
	// sits 12 bytes into the entry header.
	reopened, err := Open(packed)
	require.NoError(t, err)
	require.Len(t, reopened.Parts, 1)

	idx := indexOfEntry(t, packed, "c1200_0000")
	packed[idx+12] = 0x7F

	_, err = Open(packed)
	require.ErrorIs(t, err, ErrFormat)
}

func TestEmptyLayoutRoundTrip(t *testing.T) {
	packed, err := New().Pack()
	require.NoError(t, err)

	m, err := Open(packed)
	require.NoError(t, err)
	assert.Empty(t, m.Models)
	assert.Empty(t, m.Events)
	assert.Empty(t, m.Regions)
	assert.Empty(t, m.Parts)
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "m10_01_00_00.msb")

	require.NoError(t, testLayout().WriteFile(path))

	m, err := OpenFile(path)
	require.NoError(t, err)
	assert.Len(t, m.Parts, 3)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not survive a successful write")
}

// indexOfEntry locates the header start of the entry whose name string is s,
// by finding the name bytes and backing up over the fixed header.
func indexOfEntry(t *testing.T, b []byte, s string) int {
	t.Helper()
	needle := append([]byte(s), 0)
	for i := 0; i+len(needle) <= len(b); i++ {
		if string(b[i:i+len(needle)]) == string(needle) {
			return i - partLayout.Size()
		}
	}
	t.Fatalf("entry %q not found", s)
	return -1
}
