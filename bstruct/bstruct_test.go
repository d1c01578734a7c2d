// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package bstruct

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEncodeRoundTrip(t *testing.T) {
	layout := Layout{
		{Name: "id", Kind: U32},
		{Name: "weight", Kind: F32},
		{Name: "rating", Kind: S16},
		Pad(2),
		{Name: "tag", Kind: Bytes, Size: 4},
	}
	require.Equal(t, 16, layout.Size())

	in := []byte{
		0x39, 0x05, 0x00, 0x00, // id = 1337
		0x00, 0x00, 0x80, 0x3f, // weight = 1.0
		0xfe, 0xff, // rating = -2
		0xab, 0xcd, // padding, arbitrary bytes
		'F', 'R', 'P', 'G',
	}

	values, n, err := Decode(layout, in, 0)
	require.NoError(t, err)
	assert.Equal(t, 16, n)
	assert.Equal(t, uint64(1337), values.Uint("id"))
	assert.Equal(t, 1.0, values.Float("weight"))
	assert.Equal(t, int64(-2), values.Int("rating"))
	assert.Equal(t, []byte("FRPG"), values.Bytes("tag"))

	out, err := Encode(layout, values)
	require.NoError(t, err)
	assert.Equal(t, in, out, "padding bytes must survive the round trip")
}

func TestDecodeAtOffset(t *testing.T) {
	layout := Layout{{Name: "v", Kind: U16}}
	b := []byte{0xff, 0x34, 0x12, 0xff}

	values, n, err := Decode(layout, b, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, uint64(0x1234), values.Uint("v"))
}

func TestBitFieldFidelity(t *testing.T) {
	// Three 2-bit sub-fields packed into one byte, plus a full byte after.
	layout := Layout{
		{Name: "a", Kind: U8, Bits: 2},
		{Name: "b", Kind: U8, Bits: 2},
		{Name: "c", Kind: U8, Bits: 2},
		{Name: "next", Kind: U8},
	}
	require.Equal(t, 2, layout.Size())

	values := Values{"a": uint64(1), "b": uint64(2), "c": uint64(3), "next": uint64(0x7f)}
	out, err := Encode(layout, values)
	require.NoError(t, err)
	require.Len(t, out, 2)
	// LSB first: a=01, b=10, c=11 -> 0b00111001
	assert.Equal(t, byte(0x39), out[0])

	decoded, _, err := Decode(layout, out, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), decoded.Uint("a"))
	assert.Equal(t, uint64(2), decoded.Uint("b"))
	assert.Equal(t, uint64(3), decoded.Uint("c"))
	assert.Equal(t, uint64(0x7f), decoded.Uint("next"))
}

func TestBitFieldNewParentOnOverflow(t *testing.T) {
	// 6 + 4 bits cannot share one byte; the second sub-field opens a new one.
	layout := Layout{
		{Name: "a", Kind: U8, Bits: 6},
		{Name: "b", Kind: U8, Bits: 4},
	}
	assert.Equal(t, 2, layout.Size())

	out, err := Encode(layout, Values{"a": uint64(0x3f), "b": uint64(0xf)})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x3f, 0x0f}, out)
}

func TestTruncatedRecord(t *testing.T) {
	layout := Layout{{Name: "v", Kind: U64}}
	_, _, err := Decode(layout, []byte{1, 2, 3}, 0)
	assert.ErrorIs(t, err, ErrTruncatedRecord)

	_, _, err = Decode(layout, make([]byte, 16), 10)
	assert.ErrorIs(t, err, ErrTruncatedRecord)
}

func TestFieldOverflow(t *testing.T) {
	tests := []struct {
		name   string
		layout Layout
		values Values
	}{
		{"u8 too large", Layout{{Name: "v", Kind: U8}}, Values{"v": uint64(256)}},
		{"s16 too small", Layout{{Name: "v", Kind: S16}}, Values{"v": int64(-40000)}},
		{"bit field too large", Layout{{Name: "v", Kind: U8, Bits: 2}}, Values{"v": uint64(4)}},
		{"blob wrong length", Layout{{Name: "v", Kind: Bytes, Size: 4}}, Values{"v": []byte{1, 2}}},
		{"negative for unsigned", Layout{{Name: "v", Kind: U32}}, Values{"v": -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encode(tt.layout, tt.values)
			assert.ErrorIs(t, err, ErrFieldOverflow)
		})
	}
}

func TestEncodeMissingFieldsAreZero(t *testing.T) {
	layout := Layout{
		{Name: "a", Kind: U32},
		Pad(4),
		{Name: "b", Kind: Bytes, Size: 2},
	}
	out, err := Encode(layout, Values{})
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 10), out)
}

func TestSignedValues(t *testing.T) {
	layout := Layout{
		{Name: "a", Kind: S8},
		{Name: "b", Kind: S32},
	}
	out, err := Encode(layout, Values{"a": int64(-1), "b": int64(-123456)})
	require.NoError(t, err)

	values, _, err := Decode(layout, out, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), values.Int("a"))
	assert.Equal(t, int64(-123456), values.Int("b"))
}

func TestShiftJISRoundTrip(t *testing.T) {
	var pool []byte
	pool, err := AppendShiftJIS(pool, "m10_00_00_00")
	require.NoError(t, err)
	off := len(pool)
	pool, err = AppendShiftJIS(pool, "ソウル")
	require.NoError(t, err)

	first, err := ReadShiftJIS(pool, 0)
	require.NoError(t, err)
	assert.Equal(t, "m10_00_00_00", first)

	second, err := ReadShiftJIS(pool, off)
	require.NoError(t, err)
	assert.Equal(t, "ソウル", second)

	_, err = ReadShiftJIS(pool[:len(pool)-1], off)
	assert.ErrorIs(t, err, ErrTruncatedRecord)
}

func TestFixedShiftJIS(t *testing.T) {
	enc, err := EncodeFixedShiftJIS("EQUIP_PARAM_WEAPON_ST", 32)
	require.NoError(t, err)
	require.Len(t, enc, 32)

	s, err := ReadFixedShiftJIS(enc, 0, 32)
	require.NoError(t, err)
	assert.Equal(t, "EQUIP_PARAM_WEAPON_ST", s)

	_, err = EncodeFixedShiftJIS("EQUIP_PARAM_WEAPON_ST", 8)
	assert.ErrorIs(t, err, ErrFieldOverflow)
}

func TestUTF16RoundTrip(t *testing.T) {
	var pool []byte
	pool, err := AppendUTF16(pool, "Estus Flask")
	require.NoError(t, err)

	s, err := ReadUTF16(pool, 0)
	require.NoError(t, err)
	assert.Equal(t, "Estus Flask", s)

	_, err = ReadUTF16(pool[:3], 0)
	assert.ErrorIs(t, err, ErrTruncatedRecord)
}
