// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

// Package bstruct encodes and decodes fixed-layout binary records from a
// declarative field list. Layouts are ordered sequences of primitive fields,
// byte blobs, bit-packed sub-fields and explicit padding; encoding a decoded
// record reproduces the original byte length exactly.
package bstruct

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
)

var (
	// ErrTruncatedRecord is returned when the input buffer is shorter than
	// the layout requires.
	ErrTruncatedRecord = errors.New("bstruct: truncated record")

	// ErrFieldOverflow is returned when a value does not fit the declared
	// width of its field.
	ErrFieldOverflow = errors.New("bstruct: field overflow")
)

// Kind identifies the primitive type of a field.
type Kind uint8

const (
	U8 Kind = iota
	S8
	U16
	S16
	U32
	S32
	U64
	S64
	F32
	F64
	Bytes // fixed-size byte blob, length given by Field.Size
)

// width returns the byte width of the kind, or 0 for Bytes.
func (k Kind) width() int {
	switch k {
	case U8, S8:
		return 1
	case U16, S16:
		return 2
	case U32, S32, F32:
		return 4
	case U64, S64, F64:
		return 8
	}
	return 0
}

func (k Kind) signed() bool {
	switch k {
	case S8, S16, S32, S64:
		return true
	}
	return false
}

func (k Kind) float() bool {
	return k == F32 || k == F64
}

// Field describes one entry of a record layout.
//
// A Field with Bits > 0 is a bit-packed sub-field: consecutive bit fields of
// the same Kind share parent units of that kind's width, filled LSB first. A
// new parent unit starts whenever the remaining bits cannot hold the next
// sub-field. Bit fields must use an unsigned integer Kind.
//
// A Field with Padding set carries no semantic value; its bytes are preserved
// across a decode/encode round trip and zero-filled on a fresh encode.
type Field struct {
	Name    string
	Kind    Kind
	Size    int // byte length, Bytes kind only
	Bits    int
	Padding bool
}

// Pad returns an anonymous padding field of n bytes.
func Pad(n int) Field {
	return Field{Kind: Bytes, Size: n, Padding: true}
}

// Layout is an ordered field list defining an exact byte layout.
type Layout []Field

// Size returns the total encoded byte length of the layout.
func (l Layout) Size() int {
	total := 0
	bitRem := 0
	var bitKind Kind
	for _, f := range l {
		if f.Bits > 0 {
			if bitRem < f.Bits || bitKind != f.Kind {
				total += f.Kind.width()
				bitRem = f.Kind.width() * 8
				bitKind = f.Kind
			}
			bitRem -= f.Bits
			continue
		}
		bitRem = 0
		if f.Kind == Bytes {
			total += f.Size
		} else {
			total += f.Kind.width()
		}
	}
	return total
}

// Values holds decoded field values keyed by field name. Integer fields are
// stored as uint64 (unsigned) or int64 (signed), floats as float64, byte
// blobs and padding as []byte.
type Values map[string]any

// Uint returns the named field as uint64. Missing or mistyped fields
// return 0.
func (v Values) Uint(name string) uint64 {
	u, _ := toUint64(v[name])
	return u
}

// Int returns the named field as int64. Missing or mistyped fields return 0.
func (v Values) Int(name string) int64 {
	i, _ := toInt64(v[name])
	return i
}

// Float returns the named field as float64. Missing or mistyped fields
// return 0.
func (v Values) Float(name string) float64 {
	f, _ := toFloat64(v[name])
	return f
}

// Bytes returns the named blob field, or nil.
func (v Values) Bytes(name string) []byte {
	b, _ := v[name].([]byte)
	return b
}

// key returns the Values key for field i of a layout. Anonymous padding
// fields get synthetic keys so their bytes survive a round trip.
func key(f Field, i int) string {
	if f.Name != "" {
		return f.Name
	}
	return "_pad" + strconv.Itoa(i)
}

// Decode reads one record described by layout from b starting at off.
// It returns the decoded values and the number of bytes consumed.
func Decode(layout Layout, b []byte, off int) (Values, int, error) {
	need := layout.Size()
	if off < 0 || off+need > len(b) {
		return nil, 0, fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrTruncatedRecord, need, off, len(b))
	}

	values := make(Values, len(layout))
	pos := off
	bitRem := 0
	var bitKind Kind
	var bitParent uint64
	var bitShift int

	for i, f := range layout {
		if f.Bits > 0 {
			if f.Kind.signed() || f.Kind.float() || f.Kind == Bytes {
				return nil, 0, fmt.Errorf("bstruct: field %q: bit width requires an unsigned integer kind", key(f, i))
			}
			if bitRem < f.Bits || bitKind != f.Kind {
				w := f.Kind.width()
				bitParent = readUint(b[pos:pos+w], w)
				pos += w
				bitRem = w * 8
				bitKind = f.Kind
				bitShift = 0
			}
			mask := uint64(1)<<f.Bits - 1
			values[key(f, i)] = (bitParent >> bitShift) & mask
			bitShift += f.Bits
			bitRem -= f.Bits
			continue
		}
		bitRem = 0

		if f.Kind == Bytes {
			blob := make([]byte, f.Size)
			copy(blob, b[pos:pos+f.Size])
			values[key(f, i)] = blob
			pos += f.Size
			continue
		}

		w := f.Kind.width()
		raw := readUint(b[pos:pos+w], w)
		pos += w
		switch {
		case f.Kind == F32:
			values[key(f, i)] = float64(math.Float32frombits(uint32(raw)))
		case f.Kind == F64:
			values[key(f, i)] = math.Float64frombits(raw)
		case f.Kind.signed():
			values[key(f, i)] = signExtend(raw, w)
		default:
			values[key(f, i)] = raw
		}
	}

	return values, pos - off, nil
}

// Encode serializes values according to layout. Fields absent from values
// encode as zero; present values outside their declared range return
// ErrFieldOverflow.
func Encode(layout Layout, values Values) ([]byte, error) {
	out := make([]byte, 0, layout.Size())
	bitRem := 0
	var bitKind Kind
	var bitParent uint64
	var bitShift int
	bitStart := -1 // index into out where the open parent unit begins

	flush := func() {
		if bitStart >= 0 {
			writeUint(out[bitStart:], bitParent, bitKind.width())
			bitStart = -1
			bitRem = 0
		}
	}

	for i, f := range layout {
		if f.Bits > 0 {
			if f.Kind.signed() || f.Kind.float() || f.Kind == Bytes {
				return nil, fmt.Errorf("bstruct: field %q: bit width requires an unsigned integer kind", key(f, i))
			}
			if bitRem < f.Bits || bitKind != f.Kind {
				flush()
				w := f.Kind.width()
				bitStart = len(out)
				out = append(out, make([]byte, w)...)
				bitParent = 0
				bitShift = 0
				bitRem = w * 8
				bitKind = f.Kind
			}
			v, err := fieldUint(f, i, values)
			if err != nil {
				return nil, err
			}
			if f.Bits < 64 && v >= uint64(1)<<f.Bits {
				return nil, fmt.Errorf("%w: field %q: %d exceeds %d bits", ErrFieldOverflow, key(f, i), v, f.Bits)
			}
			bitParent |= v << bitShift
			bitShift += f.Bits
			bitRem -= f.Bits
			continue
		}
		flush()

		if f.Kind == Bytes {
			blob := values.Bytes(key(f, i))
			if blob == nil {
				out = append(out, make([]byte, f.Size)...)
				continue
			}
			if len(blob) != f.Size {
				return nil, fmt.Errorf("%w: field %q: blob is %d bytes, layout wants %d", ErrFieldOverflow, key(f, i), len(blob), f.Size)
			}
			out = append(out, blob...)
			continue
		}

		w := f.Kind.width()
		var raw uint64
		switch {
		case f.Kind == F32:
			fv, err := fieldFloat(f, i, values)
			if err != nil {
				return nil, err
			}
			raw = uint64(math.Float32bits(float32(fv)))
		case f.Kind == F64:
			fv, err := fieldFloat(f, i, values)
			if err != nil {
				return nil, err
			}
			raw = math.Float64bits(fv)
		case f.Kind.signed():
			sv, err := fieldInt(f, i, values)
			if err != nil {
				return nil, err
			}
			lo := int64(-1) << (w*8 - 1)
			hi := int64(1)<<(w*8-1) - 1
			if sv < lo || sv > hi {
				return nil, fmt.Errorf("%w: field %q: %d outside [%d, %d]", ErrFieldOverflow, key(f, i), sv, lo, hi)
			}
			raw = uint64(sv) & (math.MaxUint64 >> (64 - w*8))
		default:
			uv, err := fieldUint(f, i, values)
			if err != nil {
				return nil, err
			}
			if w < 8 && uv >= uint64(1)<<(w*8) {
				return nil, fmt.Errorf("%w: field %q: %d exceeds %d bytes", ErrFieldOverflow, key(f, i), uv, w)
			}
			raw = uv
		}
		buf := make([]byte, w)
		writeUint(buf, raw, w)
		out = append(out, buf...)
	}
	flush()

	return out, nil
}

func fieldUint(f Field, i int, values Values) (uint64, error) {
	v, ok := values[key(f, i)]
	if !ok || v == nil {
		return 0, nil
	}
	u, ok := toUint64(v)
	if !ok {
		return 0, fmt.Errorf("%w: field %q: value %v is not an unsigned integer", ErrFieldOverflow, key(f, i), v)
	}
	return u, nil
}

func fieldInt(f Field, i int, values Values) (int64, error) {
	v, ok := values[key(f, i)]
	if !ok || v == nil {
		return 0, nil
	}
	s, ok := toInt64(v)
	if !ok {
		return 0, fmt.Errorf("%w: field %q: value %v is not an integer", ErrFieldOverflow, key(f, i), v)
	}
	return s, nil
}

func fieldFloat(f Field, i int, values Values) (float64, error) {
	v, ok := values[key(f, i)]
	if !ok || v == nil {
		return 0, nil
	}
	fv, ok := toFloat64(v)
	if !ok {
		return 0, fmt.Errorf("%w: field %q: value %v is not a number", ErrFieldOverflow, key(f, i), v)
	}
	return fv, nil
}

func readUint(b []byte, w int) uint64 {
	switch w {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(b))
	case 4:
		return uint64(binary.LittleEndian.Uint32(b))
	default:
		return binary.LittleEndian.Uint64(b)
	}
}

func writeUint(b []byte, v uint64, w int) {
	switch w {
	case 1:
		b[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(v))
	default:
		binary.LittleEndian.PutUint64(b, v)
	}
}

func signExtend(v uint64, w int) int64 {
	shift := 64 - w*8
	return int64(v<<shift) >> shift
}

func toUint64(v any) (uint64, bool) {
	switch n := v.(type) {
	case uint64:
		return n, true
	case uint32:
		return uint64(n), true
	case uint16:
		return uint64(n), true
	case uint8:
		return uint64(n), true
	case uint:
		return uint64(n), true
	case int:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case int64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	}
	return 0, false
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case int16:
		return int64(n), true
	case int8:
		return int64(n), true
	case int:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case uint32:
		return int64(n), true
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
