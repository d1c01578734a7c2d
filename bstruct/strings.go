// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package bstruct

import (
	"bytes"
	"fmt"

	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/unicode"
)

var (
	shiftJIS = japanese.ShiftJIS
	utf16LE  = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
)

// ReadShiftJIS reads a null-terminated Shift-JIS string from b at off.
func ReadShiftJIS(b []byte, off int) (string, error) {
	if off < 0 || off >= len(b) {
		return "", fmt.Errorf("%w: string offset %d outside %d-byte buffer", ErrTruncatedRecord, off, len(b))
	}
	end := bytes.IndexByte(b[off:], 0)
	if end < 0 {
		return "", fmt.Errorf("%w: unterminated string at offset %d", ErrTruncatedRecord, off)
	}
	s, err := shiftJIS.NewDecoder().Bytes(b[off : off+end])
	if err != nil {
		return "", fmt.Errorf("decode shift-jis at offset %d: %w", off, err)
	}
	return string(s), nil
}

// ReadFixedShiftJIS reads an n-byte Shift-JIS field at off, trimming the
// trailing null padding.
func ReadFixedShiftJIS(b []byte, off, n int) (string, error) {
	if off < 0 || off+n > len(b) {
		return "", fmt.Errorf("%w: fixed string at offset %d overruns %d-byte buffer", ErrTruncatedRecord, off, len(b))
	}
	raw := b[off : off+n]
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	s, err := shiftJIS.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("decode shift-jis at offset %d: %w", off, err)
	}
	return string(s), nil
}

// AppendShiftJIS appends s as a null-terminated Shift-JIS string to dst.
func AppendShiftJIS(dst []byte, s string) ([]byte, error) {
	enc, err := shiftJIS.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("encode shift-jis %q: %w", s, err)
	}
	dst = append(dst, enc...)
	return append(dst, 0), nil
}

// EncodeFixedShiftJIS encodes s into exactly n Shift-JIS bytes, null padded.
// Strings that do not fit return ErrFieldOverflow.
func EncodeFixedShiftJIS(s string, n int) ([]byte, error) {
	enc, err := shiftJIS.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("encode shift-jis %q: %w", s, err)
	}
	if len(enc) > n {
		return nil, fmt.Errorf("%w: %q needs %d bytes, field holds %d", ErrFieldOverflow, s, len(enc), n)
	}
	out := make([]byte, n)
	copy(out, enc)
	return out, nil
}

// ReadUTF16 reads a null-terminated UTF-16LE string from b at off.
func ReadUTF16(b []byte, off int) (string, error) {
	if off < 0 || off >= len(b) {
		return "", fmt.Errorf("%w: string offset %d outside %d-byte buffer", ErrTruncatedRecord, off, len(b))
	}
	end := off
	for {
		if end+2 > len(b) {
			return "", fmt.Errorf("%w: unterminated utf-16 string at offset %d", ErrTruncatedRecord, off)
		}
		if b[end] == 0 && b[end+1] == 0 {
			break
		}
		end += 2
	}
	s, err := utf16LE.NewDecoder().Bytes(b[off:end])
	if err != nil {
		return "", fmt.Errorf("decode utf-16 at offset %d: %w", off, err)
	}
	return string(s), nil
}

// AppendUTF16 appends s as a null-terminated UTF-16LE string to dst.
func AppendUTF16(dst []byte, s string) ([]byte, error) {
	enc, err := utf16LE.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("encode utf-16 %q: %w", s, err)
	}
	dst = append(dst, enc...)
	return append(dst, 0, 0), nil
}
