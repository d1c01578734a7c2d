// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

// Package dcx reads and writes the DCX compression wrapper that outer game
// resources may carry. The wrapper's presence doubles as the structural
// signal that selects the format dialect of the resource inside it.
package dcx

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// ErrFormat is returned when a buffer is not a valid DCX wrapper.
var ErrFormat = errors.New("dcx: invalid wrapper")

// Codec identifies the compression algorithm recorded in the wrapper header.
type Codec uint32

const (
	// CodecDeflate is the zlib codec ("DFLT"), used by the classic editions.
	CodecDeflate Codec = 0x44464C54

	// CodecZstd is the zstd codec ("ZSTD"), used by later editions.
	CodecZstd Codec = 0x5A535444
)

func (c Codec) String() string {
	switch c {
	case CodecDeflate:
		return "DFLT"
	case CodecZstd:
		return "ZSTD"
	}
	return fmt.Sprintf("Codec(0x%08X)", uint32(c))
}

// Wrapper header layout. DCX headers are big-endian regardless of the
// endianness of the wrapped resource.
const (
	dcxMagic   = 0x44435800 // "DCX\x00"
	headerSize = 16
)

type wrapperHeader struct {
	Magic            uint32
	Codec            uint32
	UncompressedSize uint32
	CompressedSize   uint32
}

// IsWrapped reports whether b begins with a DCX wrapper.
func IsWrapped(b []byte) bool {
	return len(b) >= 4 && binary.BigEndian.Uint32(b) == dcxMagic
}

// Decompress unwraps b and returns the payload and the codec it was
// compressed with.
func Decompress(b []byte) ([]byte, Codec, error) {
	if len(b) < headerSize {
		return nil, 0, fmt.Errorf("%w: %d bytes is smaller than the %d-byte header", ErrFormat, len(b), headerSize)
	}

	var h wrapperHeader
	if err := binary.Read(bytes.NewReader(b), binary.BigEndian, &h); err != nil {
		return nil, 0, fmt.Errorf("read dcx header: %w", err)
	}
	if h.Magic != dcxMagic {
		return nil, 0, fmt.Errorf("%w: bad magic 0x%08X", ErrFormat, h.Magic)
	}
	if int(h.CompressedSize) != len(b)-headerSize {
		return nil, 0, fmt.Errorf("%w: header declares %d compressed bytes, wrapper holds %d",
			ErrFormat, h.CompressedSize, len(b)-headerSize)
	}

	codec := Codec(h.Codec)
	payload := b[headerSize:]

	var out []byte
	var err error
	switch codec {
	case CodecDeflate:
		out, err = inflate(payload, h.UncompressedSize)
	case CodecZstd:
		out, err = zstdDecoder().DecodeAll(payload, make([]byte, 0, h.UncompressedSize))
	default:
		return nil, 0, fmt.Errorf("%w: unsupported codec %s", ErrFormat, codec)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("decompress %s payload: %w", codec, err)
	}
	if len(out) != int(h.UncompressedSize) {
		return nil, 0, fmt.Errorf("%w: payload inflated to %d bytes, header declares %d",
			ErrFormat, len(out), h.UncompressedSize)
	}

	return out, codec, nil
}

// Compress wraps payload in a DCX header using the given codec.
func Compress(payload []byte, codec Codec) ([]byte, error) {
	var compressed []byte
	switch codec {
	case CodecDeflate:
		var buf bytes.Buffer
		w, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
		if err != nil {
			return nil, fmt.Errorf("create zlib writer: %w", err)
		}
		if _, err := w.Write(payload); err != nil {
			return nil, fmt.Errorf("zlib write: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("zlib close: %w", err)
		}
		compressed = buf.Bytes()
	case CodecZstd:
		compressed = zstdEncoder().EncodeAll(payload, nil)
	default:
		return nil, fmt.Errorf("%w: unsupported codec %s", ErrFormat, codec)
	}

	h := wrapperHeader{
		Magic:            dcxMagic,
		Codec:            uint32(codec),
		UncompressedSize: uint32(len(payload)),
		CompressedSize:   uint32(len(compressed)),
	}
	out := bytes.NewBuffer(make([]byte, 0, headerSize+len(compressed)))
	if err := binary.Write(out, binary.BigEndian, &h); err != nil {
		return nil, fmt.Errorf("write dcx header: %w", err)
	}
	out.Write(compressed)
	return out.Bytes(), nil
}

func inflate(data []byte, uncompressedSize uint32) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create zlib reader: %w", err)
	}
	defer r.Close()

	result := make([]byte, uncompressedSize)
	n, err := io.ReadFull(r, result)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("zlib decompress: %w", err)
	}
	return result[:n], nil
}

// Shared zstd coders. EncodeAll/DecodeAll are safe for concurrent use, so one
// of each serves the whole process.
var (
	zstdEncOnce sync.Once
	zstdEnc     *zstd.Encoder
	zstdDecOnce sync.Once
	zstdDec     *zstd.Decoder
)

func zstdEncoder() *zstd.Encoder {
	zstdEncOnce.Do(func() {
		zstdEnc, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	})
	return zstdEnc
}

func zstdDecoder() *zstd.Decoder {
	zstdDecOnce.Do(func() {
		zstdDec, _ = zstd.NewReader(nil)
	})
	return zstdDec
}
