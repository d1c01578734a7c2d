// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package msb

import (
	"fmt"

	"github.com/LugeBox/soulstruct/bstruct"
)

// Subtype tags are closed sets: a tag outside the set is a format error, not
// an extension point.

// ModelSubtype tags the shape of a model entry.
type ModelSubtype int32

const (
	ModelMapPiece  ModelSubtype = 0
	ModelObject    ModelSubtype = 1
	ModelCharacter ModelSubtype = 2
	ModelPlayer    ModelSubtype = 4
	ModelCollision ModelSubtype = 5
	ModelNavmesh   ModelSubtype = 6
)

func (s ModelSubtype) valid() bool {
	switch s {
	case ModelMapPiece, ModelObject, ModelCharacter, ModelPlayer, ModelCollision, ModelNavmesh:
		return true
	}
	return false
}

// EventSubtype tags the behavior of an event entry.
type EventSubtype int32

const (
	EventLight    EventSubtype = 0
	EventSound    EventSubtype = 1
	EventSFX      EventSubtype = 2
	EventTreasure EventSubtype = 4
	EventSpawner  EventSubtype = 5
	EventMessage  EventSubtype = 6
)

func (s EventSubtype) valid() bool {
	switch s {
	case EventLight, EventSound, EventSFX, EventTreasure, EventSpawner, EventMessage:
		return true
	}
	return false
}

// RegionShape tags the volume shape of a region entry.
type RegionShape int32

const (
	ShapePoint    RegionShape = 0
	ShapeCircle   RegionShape = 1
	ShapeSphere   RegionShape = 2
	ShapeCylinder RegionShape = 3
	ShapeRect     RegionShape = 4
	ShapeBox      RegionShape = 5
)

func (s RegionShape) valid() bool {
	return s >= ShapePoint && s <= ShapeBox
}

// PartSubtype tags the placement kind of a part entry.
type PartSubtype int32

const (
	PartMapPiece    PartSubtype = 0
	PartObject      PartSubtype = 1
	PartCharacter   PartSubtype = 2
	PartPlayerStart PartSubtype = 4
	PartCollision   PartSubtype = 5
	PartNavmesh     PartSubtype = 8
)

func (s PartSubtype) valid() bool {
	switch s {
	case PartMapPiece, PartObject, PartCharacter, PartPlayerStart, PartCollision, PartNavmesh:
		return true
	}
	return false
}

// Fixed entry header layouts. String and cross-reference offsets inside them
// are entry-relative disk indirections only; the in-memory model keeps names.
var (
	modelLayout = bstruct.Layout{
		{Name: "nameOffset", Kind: bstruct.S32},
		{Name: "modelType", Kind: bstruct.S32},
		{Name: "typeIndex", Kind: bstruct.S32},
		{Name: "sibOffset", Kind: bstruct.S32},
		{Name: "instanceCount", Kind: bstruct.S32},
		bstruct.Pad(12),
	}

	eventLayout = bstruct.Layout{
		{Name: "nameOffset", Kind: bstruct.S32},
		{Name: "eventIndex", Kind: bstruct.S32},
		{Name: "eventType", Kind: bstruct.S32},
		{Name: "entityID", Kind: bstruct.S32},
		bstruct.Pad(8),
	}

	regionLayout = bstruct.Layout{
		{Name: "nameOffset", Kind: bstruct.S32},
		{Name: "regionIndex", Kind: bstruct.S32},
		{Name: "shapeType", Kind: bstruct.S32},
		{Name: "posX", Kind: bstruct.F32},
		{Name: "posY", Kind: bstruct.F32},
		{Name: "posZ", Kind: bstruct.F32},
		{Name: "rotX", Kind: bstruct.F32},
		{Name: "rotY", Kind: bstruct.F32},
		{Name: "rotZ", Kind: bstruct.F32},
		{Name: "entityID", Kind: bstruct.S32},
	}

	partLayout = bstruct.Layout{
		{Name: "nameOffset", Kind: bstruct.S32},
		{Name: "partType", Kind: bstruct.S32},
		{Name: "partIndex", Kind: bstruct.S32},
		{Name: "modelIndex", Kind: bstruct.S32},
		{Name: "sibOffset", Kind: bstruct.S32},
		{Name: "posX", Kind: bstruct.F32},
		{Name: "posY", Kind: bstruct.F32},
		{Name: "posZ", Kind: bstruct.F32},
		{Name: "rotX", Kind: bstruct.F32},
		{Name: "rotY", Kind: bstruct.F32},
		{Name: "rotZ", Kind: bstruct.F32},
		{Name: "scaleX", Kind: bstruct.F32},
		{Name: "scaleY", Kind: bstruct.F32},
		{Name: "scaleZ", Kind: bstruct.F32},
		bstruct.Pad(4),
	}
)

// Model is a map model entry. Parts reference models by Name.
type Model struct {
	Name    string
	Subtype ModelSubtype
	SibPath string
}

// Event is a scripted map event entry.
type Event struct {
	Name     string
	Subtype  EventSubtype
	EntityID int32
	Tail     []byte // subtype payload, preserved verbatim
}

// Region is a volume entry used for triggers and spawn logic.
type Region struct {
	Name     string
	Shape    RegionShape
	Position [3]float32
	Rotation [3]float32
	EntityID int32
	Tail     []byte // shape payload, preserved verbatim
}

// Part is a placement entry instancing a model into the map.
type Part struct {
	Name      string
	Subtype   PartSubtype
	ModelName string // resolved from the model list; re-resolved on pack
	SibPath   string
	Position  [3]float32
	Rotation  [3]float32
	Scale     [3]float32
	Tail      []byte
}

func decodeModel(span []byte) (*Model, error) {
	vals, _, err := bstruct.Decode(modelLayout, span, 0)
	if err != nil {
		return nil, err
	}
	subtype := ModelSubtype(vals.Int("modelType"))
	if !subtype.valid() {
		return nil, fmt.Errorf("%w: unknown model subtype %d", ErrFormat, subtype)
	}
	name, err := bstruct.ReadShiftJIS(span, int(vals.Int("nameOffset")))
	if err != nil {
		return nil, err
	}
	sib, err := bstruct.ReadShiftJIS(span, int(vals.Int("sibOffset")))
	if err != nil {
		return nil, err
	}
	return &Model{Name: name, Subtype: subtype, SibPath: sib}, nil
}

func decodeEvent(span []byte) (*Event, error) {
	vals, n, err := bstruct.Decode(eventLayout, span, 0)
	if err != nil {
		return nil, err
	}
	subtype := EventSubtype(vals.Int("eventType"))
	if !subtype.valid() {
		return nil, fmt.Errorf("%w: unknown event subtype %d", ErrFormat, subtype)
	}
	name, err := bstruct.ReadShiftJIS(span, int(vals.Int("nameOffset")))
	if err != nil {
		return nil, err
	}
	tail := tailAfterStrings(span, n, name)
	return &Event{
		Name:     name,
		Subtype:  subtype,
		EntityID: int32(vals.Int("entityID")),
		Tail:     tail,
	}, nil
}

func decodeRegion(span []byte) (*Region, error) {
	vals, n, err := bstruct.Decode(regionLayout, span, 0)
	if err != nil {
		return nil, err
	}
	shape := RegionShape(vals.Int("shapeType"))
	if !shape.valid() {
		return nil, fmt.Errorf("%w: unknown region shape %d", ErrFormat, shape)
	}
	name, err := bstruct.ReadShiftJIS(span, int(vals.Int("nameOffset")))
	if err != nil {
		return nil, err
	}
	tail := tailAfterStrings(span, n, name)
	return &Region{
		Name:     name,
		Shape:    shape,
		Position: [3]float32{float32(vals.Float("posX")), float32(vals.Float("posY")), float32(vals.Float("posZ"))},
		Rotation: [3]float32{float32(vals.Float("rotX")), float32(vals.Float("rotY")), float32(vals.Float("rotZ"))},
		EntityID: int32(vals.Int("entityID")),
		Tail:     tail,
	}, nil
}

func decodePart(span []byte, models []*Model) (*Part, error) {
	vals, n, err := bstruct.Decode(partLayout, span, 0)
	if err != nil {
		return nil, err
	}
	subtype := PartSubtype(vals.Int("partType"))
	if !subtype.valid() {
		return nil, fmt.Errorf("%w: unknown part subtype %d", ErrFormat, subtype)
	}
	name, err := bstruct.ReadShiftJIS(span, int(vals.Int("nameOffset")))
	if err != nil {
		return nil, err
	}
	sib, err := bstruct.ReadShiftJIS(span, int(vals.Int("sibOffset")))
	if err != nil {
		return nil, err
	}

	// The disk model index is resolved to a name once here; the index is
	// then discarded and the name is the only identity kept.
	modelIndex := int(vals.Int("modelIndex"))
	if modelIndex < 0 || modelIndex >= len(models) {
		return nil, fmt.Errorf("%w: part %q references model index %d of %d", ErrFormat, name, modelIndex, len(models))
	}

	tail := tailAfterStrings(span, n, name, sib)
	return &Part{
		Name:      name,
		Subtype:   subtype,
		ModelName: models[modelIndex].Name,
		SibPath:   sib,
		Position:  [3]float32{float32(vals.Float("posX")), float32(vals.Float("posY")), float32(vals.Float("posZ"))},
		Rotation:  [3]float32{float32(vals.Float("rotX")), float32(vals.Float("rotY")), float32(vals.Float("rotZ"))},
		Scale:     [3]float32{float32(vals.Float("scaleX")), float32(vals.Float("scaleY")), float32(vals.Float("scaleZ"))},
		Tail:      tail,
	}, nil
}

// tailAfterStrings returns the entry bytes after the header and its
// null-terminated strings, skipping the alignment padding that precedes the
// variable tail.
func tailAfterStrings(span []byte, headerLen int, strs ...string) []byte {
	end := headerLen
	for _, s := range strs {
		end += encodedShiftJISLen(s) + 1
	}
	end = align4(end)
	if end >= len(span) {
		return nil
	}
	tail := make([]byte, len(span)-end)
	copy(tail, span[end:])
	return tail
}

func encodedShiftJISLen(s string) int {
	enc, err := bstruct.AppendShiftJIS(nil, s)
	if err != nil {
		return len(s)
	}
	return len(enc) - 1
}

func align4(n int) int {
	return (n + 3) &^ 3
}
