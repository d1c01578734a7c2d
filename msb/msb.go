// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

// Package msb reads and writes map layout files: four concatenated entry
// lists (models, events, regions, parts) in a fixed order, each prefixed by
// an offset table and chained to the next list by an absolute offset.
//
// Parts reference models by list index on disk. The index is a disk-only
// indirection: Open resolves it into the model's name, and Pack re-resolves
// the name back into an index, failing with ErrDanglingReference when the
// named model no longer exists.
package msb

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/LugeBox/soulstruct/bstruct"
)

var (
	// ErrFormat reports bytes that are not a valid map layout file.
	ErrFormat = errors.New("msb: invalid format")

	// ErrDanglingReference reports a part whose model name resolves to no
	// model entry at pack time.
	ErrDanglingReference = errors.New("msb: dangling model reference")
)

var fileMagic = [4]byte{'M', 'S', 'B', ' '}

const fileHeaderSize = 16

// The four lists appear in this order and under these names, always.
const (
	listNameModels  = "MODEL_PARAM_ST"
	listNameEvents  = "EVENT_PARAM_ST"
	listNameRegions = "POINT_PARAM_ST"
	listNameParts   = "PARTS_PARAM_ST"
)

type fileHeader struct {
	Magic      [4]byte
	Version    uint32
	HeaderSize uint32
	Flags      [2]byte
	Unk0E      uint8
	Unk0F      uint8
}

// MSB is an in-memory map layout. The four slices preserve entry order;
// Pack recomputes every index and offset from them.
type MSB struct {
	Models  []*Model
	Events  []*Event
	Regions []*Region
	Parts   []*Part
}

// New returns an empty map layout.
func New() *MSB {
	return &MSB{}
}

// Open parses a map layout from b.
func Open(b []byte) (*MSB, error) {
	if len(b) < fileHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes is smaller than the file header", ErrFormat, len(b))
	}
	var hdr fileHeader
	if err := binary.Read(bytes.NewReader(b[:fileHeaderSize]), binary.LittleEndian, &hdr); err != nil {
		return nil, err
	}
	if hdr.Magic != fileMagic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrFormat, hdr.Magic[:])
	}
	if hdr.HeaderSize != fileHeaderSize {
		return nil, fmt.Errorf("%w: unexpected header size %d", ErrFormat, hdr.HeaderSize)
	}

	m := New()
	off := fileHeaderSize
	for i, want := range []string{listNameModels, listNameEvents, listNameRegions, listNameParts} {
		spans, next, err := readList(b, off, want, i == 3)
		if err != nil {
			return nil, err
		}
		for _, span := range spans {
			switch want {
			case listNameModels:
				model, err := decodeModel(span)
				if err != nil {
					return nil, err
				}
				m.Models = append(m.Models, model)
			case listNameEvents:
				event, err := decodeEvent(span)
				if err != nil {
					return nil, err
				}
				m.Events = append(m.Events, event)
			case listNameRegions:
				region, err := decodeRegion(span)
				if err != nil {
					return nil, err
				}
				m.Regions = append(m.Regions, region)
			case listNameParts:
				part, err := decodePart(span, m.Models)
				if err != nil {
					return nil, err
				}
				m.Parts = append(m.Parts, part)
			}
		}
		off = next
	}
	return m, nil
}

// OpenFile reads and parses the map layout at path.
func OpenFile(path string) (*MSB, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := Open(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// readList parses one list header at off and returns the byte span of each
// entry plus the absolute offset of the next list. The last list carries a
// zero next-offset and its final entry runs to the end of the buffer.
func readList(b []byte, off int, wantName string, last bool) ([][]byte, int, error) {
	if off < fileHeaderSize || off+12 > len(b) {
		return nil, 0, fmt.Errorf("%w: %s list header at offset %d overruns %d-byte buffer", ErrFormat, wantName, off, len(b))
	}
	le := binary.LittleEndian
	offsetCount := int(le.Uint32(b[off+4:]))
	nameOffset := int(le.Uint32(b[off+8:]))
	if offsetCount < 1 {
		return nil, 0, fmt.Errorf("%w: %s list has offset count %d", ErrFormat, wantName, offsetCount)
	}
	entryCount := offsetCount - 1
	tableEnd := off + 12 + 4*offsetCount
	if tableEnd > len(b) {
		return nil, 0, fmt.Errorf("%w: %s offset table overruns %d-byte buffer", ErrFormat, wantName, len(b))
	}

	name, err := bstruct.ReadShiftJIS(b, nameOffset)
	if err != nil {
		return nil, 0, err
	}
	if name != wantName {
		return nil, 0, fmt.Errorf("%w: expected list %s, found %q", ErrFormat, wantName, name)
	}

	starts := make([]int, entryCount)
	for i := range starts {
		starts[i] = int(le.Uint32(b[off+12+4*i:]))
	}
	next := int(le.Uint32(b[tableEnd-4:]))

	end := next
	if last {
		if next != 0 {
			return nil, 0, fmt.Errorf("%w: final list chains to offset %d", ErrFormat, next)
		}
		end = len(b)
	} else if next <= off || next > len(b) {
		return nil, 0, fmt.Errorf("%w: %s chains to offset %d", ErrFormat, wantName, next)
	}

	spans := make([][]byte, entryCount)
	for i, start := range starts {
		stop := end
		if i+1 < entryCount {
			stop = starts[i+1]
		}
		if start < off || stop > end || start > stop {
			return nil, 0, fmt.Errorf("%w: %s entry %d spans [%d, %d)", ErrFormat, wantName, i, start, stop)
		}
		spans[i] = b[start:stop]
	}
	return spans, next, nil
}

// Pack serializes the map layout. Every list index, cross-reference index,
// and offset is recomputed from the in-memory entries.
func (m *MSB) Pack() ([]byte, error) {
	modelIndex := make(map[string]int, len(m.Models))
	typeCounters := make(map[ModelSubtype]int)
	for i, model := range m.Models {
		if _, dup := modelIndex[model.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate model name %q", ErrFormat, model.Name)
		}
		modelIndex[model.Name] = i
	}
	instances := make(map[string]int, len(m.Models))
	for _, part := range m.Parts {
		if _, ok := modelIndex[part.ModelName]; !ok {
			return nil, fmt.Errorf("%w: part %q references model %q", ErrDanglingReference, part.Name, part.ModelName)
		}
		instances[part.ModelName]++
	}

	modelBlocks := make([][]byte, len(m.Models))
	for i, model := range m.Models {
		block, err := packModel(model, typeCounters[model.Subtype], instances[model.Name])
		if err != nil {
			return nil, err
		}
		typeCounters[model.Subtype]++
		modelBlocks[i] = block
	}
	eventBlocks := make([][]byte, len(m.Events))
	for i, event := range m.Events {
		block, err := packEvent(event, i)
		if err != nil {
			return nil, err
		}
		eventBlocks[i] = block
	}
	regionBlocks := make([][]byte, len(m.Regions))
	for i, region := range m.Regions {
		block, err := packRegion(region, i)
		if err != nil {
			return nil, err
		}
		regionBlocks[i] = block
	}
	partBlocks := make([][]byte, len(m.Parts))
	for i, part := range m.Parts {
		block, err := packPart(part, i, modelIndex[part.ModelName])
		if err != nil {
			return nil, err
		}
		partBlocks[i] = block
	}

	var out bytes.Buffer
	hdr := fileHeader{Magic: fileMagic, Version: 1, HeaderSize: fileHeaderSize, Unk0E: 1, Unk0F: 0xFF}
	if err := binary.Write(&out, binary.LittleEndian, hdr); err != nil {
		return nil, err
	}

	lists := []struct {
		name   string
		blocks [][]byte
	}{
		{listNameModels, modelBlocks},
		{listNameEvents, eventBlocks},
		{listNameRegions, regionBlocks},
		{listNameParts, partBlocks},
	}
	for li, list := range lists {
		if err := writeList(&out, list.name, list.blocks, li == len(lists)-1); err != nil {
			return nil, err
		}
	}
	return out.Bytes(), nil
}

// writeList appends one list: header, offset table, padded list name, then
// the entry blocks. Offsets are absolute within the file.
func writeList(out *bytes.Buffer, name string, blocks [][]byte, last bool) error {
	le := binary.LittleEndian
	base := out.Len()
	tableSize := 12 + 4*(len(blocks)+1)

	encName, err := bstruct.AppendShiftJIS(nil, name)
	if err != nil {
		return err
	}
	nameOffset := base + tableSize
	entriesStart := align4(nameOffset + len(encName))

	hdr := make([]byte, tableSize)
	le.PutUint32(hdr[4:], uint32(len(blocks)+1))
	le.PutUint32(hdr[8:], uint32(nameOffset))
	pos := entriesStart
	for i, block := range blocks {
		le.PutUint32(hdr[12+4*i:], uint32(pos))
		pos += len(block)
	}
	if !last {
		le.PutUint32(hdr[tableSize-4:], uint32(pos))
	}
	out.Write(hdr)
	out.Write(encName)
	for out.Len() < entriesStart {
		out.WriteByte(0)
	}
	for _, block := range blocks {
		out.Write(block)
	}
	return nil
}

func packModel(model *Model, typeIndex, instanceCount int) ([]byte, error) {
	nameEnc, err := bstruct.AppendShiftJIS(nil, model.Name)
	if err != nil {
		return nil, err
	}
	sibEnc, err := bstruct.AppendShiftJIS(nil, model.SibPath)
	if err != nil {
		return nil, err
	}
	headerLen := modelLayout.Size()
	header, err := bstruct.Encode(modelLayout, bstruct.Values{
		"nameOffset":    int32(headerLen),
		"modelType":     int32(model.Subtype),
		"typeIndex":     int32(typeIndex),
		"sibOffset":     int32(headerLen + len(nameEnc)),
		"instanceCount": int32(instanceCount),
	})
	if err != nil {
		return nil, err
	}
	block := append(header, nameEnc...)
	block = append(block, sibEnc...)
	return padTo4(block), nil
}

func packEvent(event *Event, index int) ([]byte, error) {
	nameEnc, err := bstruct.AppendShiftJIS(nil, event.Name)
	if err != nil {
		return nil, err
	}
	header, err := bstruct.Encode(eventLayout, bstruct.Values{
		"nameOffset": int32(eventLayout.Size()),
		"eventIndex": int32(index),
		"eventType":  int32(event.Subtype),
		"entityID":   event.EntityID,
	})
	if err != nil {
		return nil, err
	}
	block := padTo4(append(header, nameEnc...))
	return append(block, event.Tail...), nil
}

func packRegion(region *Region, index int) ([]byte, error) {
	nameEnc, err := bstruct.AppendShiftJIS(nil, region.Name)
	if err != nil {
		return nil, err
	}
	header, err := bstruct.Encode(regionLayout, bstruct.Values{
		"nameOffset":  int32(regionLayout.Size()),
		"regionIndex": int32(index),
		"shapeType":   int32(region.Shape),
		"posX":        region.Position[0],
		"posY":        region.Position[1],
		"posZ":        region.Position[2],
		"rotX":        region.Rotation[0],
		"rotY":        region.Rotation[1],
		"rotZ":        region.Rotation[2],
		"entityID":    region.EntityID,
	})
	if err != nil {
		return nil, err
	}
	block := padTo4(append(header, nameEnc...))
	return append(block, region.Tail...), nil
}

func packPart(part *Part, index, modelIndex int) ([]byte, error) {
	nameEnc, err := bstruct.AppendShiftJIS(nil, part.Name)
	if err != nil {
		return nil, err
	}
	sibEnc, err := bstruct.AppendShiftJIS(nil, part.SibPath)
	if err != nil {
		return nil, err
	}
	headerLen := partLayout.Size()
	header, err := bstruct.Encode(partLayout, bstruct.Values{
		"nameOffset": int32(headerLen),
		"partType":   int32(part.Subtype),
		"partIndex":  int32(index),
		"modelIndex": int32(modelIndex),
		"sibOffset":  int32(headerLen + len(nameEnc)),
		"posX":       part.Position[0],
		"posY":       part.Position[1],
		"posZ":       part.Position[2],
		"rotX":       part.Rotation[0],
		"rotY":       part.Rotation[1],
		"rotZ":       part.Rotation[2],
		"scaleX":     part.Scale[0],
		"scaleY":     part.Scale[1],
		"scaleZ":     part.Scale[2],
	})
	if err != nil {
		return nil, err
	}
	block := append(header, nameEnc...)
	block = padTo4(append(block, sibEnc...))
	return append(block, part.Tail...), nil
}

// WriteFile packs the map layout and writes it to path via a temp file
// rename, so a failed write never leaves a truncated file behind.
func (m *MSB) WriteFile(path string) error {
	b, err := m.Pack()
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

func padTo4(b []byte) []byte {
	for len(b)%4 != 0 {
		b = append(b, 0)
	}
	return b
}
