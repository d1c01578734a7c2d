// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package fmg

import (
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/LugeBox/soulstruct/bnd"
)

// categorySpec describes one archive entry of the text pair. The table is
// exhaustive: every entry ID the format can produce is listed, and the merge
// class of each category is decided here, once, not at call sites.
type categorySpec struct {
	name  string // logical category name, patch suffix stripped
	patch bool   // entry is the patch overlay of name
	menu  bool   // entry lives in the menu archive, not the item archive
	merge bool   // patch content may fold into the base entry on a merged pack
}

var categoryByEntryID = map[uint32]categorySpec{
	// item archive, base tables
	10: {name: "GoodNames", merge: true},
	11: {name: "WeaponNames", merge: true},
	12: {name: "ArmorNames", merge: true},
	13: {name: "RingNames", merge: true},
	14: {name: "SpellNames", merge: true},
	15: {name: "FeatureNames", merge: true},
	16: {name: "FeatureSummaries", merge: true},
	17: {name: "FeatureDescriptions", merge: true},
	18: {name: "NPCNames", merge: true},
	19: {name: "PlaceNames", merge: true},
	20: {name: "GoodSummaries", merge: true},
	21: {name: "WeaponSummaries", merge: true},
	22: {name: "ArmorSummaries", merge: true},
	23: {name: "RingSummaries", merge: true},
	24: {name: "GoodDescriptions", merge: true},
	25: {name: "WeaponDescriptions", merge: true},
	26: {name: "ArmorDescriptions", merge: true},
	27: {name: "RingDescriptions", merge: true},
	28: {name: "SpellSummaries", merge: true},
	29: {name: "SpellDescriptions", merge: true},

	// item archive, patch overlays
	110: {name: "GoodNames", patch: true, merge: true},
	111: {name: "WeaponNames", patch: true, merge: true},
	112: {name: "ArmorNames", patch: true, merge: true},
	113: {name: "RingNames", patch: true, merge: true},
	114: {name: "SpellNames", patch: true, merge: true},
	115: {name: "GoodSummaries", patch: true, merge: true},
	116: {name: "WeaponSummaries", patch: true, merge: true},
	117: {name: "ArmorSummaries", patch: true, merge: true},
	118: {name: "RingSummaries", patch: true, merge: true},
	119: {name: "GoodDescriptions", patch: true, merge: true},
	120: {name: "WeaponDescriptions", patch: true, merge: true},
	121: {name: "ArmorDescriptions", patch: true, merge: true},
	122: {name: "RingDescriptions", patch: true, merge: true},
	123: {name: "SpellDescriptions", patch: true, merge: true},
	124: {name: "NPCNames", patch: true, merge: true},
	125: {name: "PlaceNames", patch: true, merge: true},

	// menu archive. The low-level system tables never merge: their patch
	// entries stay physically separate no matter how the pack is asked for.
	1:  {name: "Subtitles", menu: true, merge: true},
	2:  {name: "SoapstoneMessages", menu: true},
	3:  {name: "EventText", menu: true},
	70: {name: "MenuDialogs", menu: true},
	76: {name: "MenuHelpSnippets", menu: true},
	77: {name: "KeyGuide", menu: true},
	78: {name: "MenuText_Other", menu: true},
	79: {name: "MenuText_Common", menu: true},
	80: {name: "TextTagPlaceholders", menu: true, merge: true},

	90: {name: "SoapstoneMessages", patch: true, menu: true},
	91: {name: "EventText", patch: true, menu: true},
	92: {name: "MenuDialogs", patch: true, menu: true},
	93: {name: "MenuHelpSnippets", patch: true, menu: true},
	94: {name: "KeyGuide", patch: true, menu: true},
	95: {name: "MenuText_Other", patch: true, menu: true},
	96: {name: "MenuText_Common", patch: true, menu: true},
}

// Reverse lookups over the category table, built once.
var (
	baseEntryID  = map[string]uint32{}
	patchEntryID = map[string]uint32{}
	categoryOf   = map[string]categorySpec{}
)

func init() {
	for id, spec := range categoryByEntryID {
		if spec.patch {
			patchEntryID[spec.name] = id
		} else {
			baseEntryID[spec.name] = id
			categoryOf[spec.name] = spec
		}
	}
}

type provKey struct {
	category string
	index    int
}

// Directory is the merged editing view over the item and menu text archives.
// Patch overlays are folded into their base categories on open; provenance
// is kept per (category, index) so a pack can split them apart again.
//
// Mutation methods assume exclusive access, like the archives underneath.
type Directory struct {
	item *bnd.Archive
	menu *bnd.Archive

	categories map[string]map[int]string
	fromPatch  map[provKey]struct{}

	// original archive path and compression flag of each entry, so a patch
	// entry removed by a merged pack can be recreated by a later split pack
	// exactly as it was stored
	entryPaths      map[uint32]string
	entryCompressed map[uint32]bool

	log *slog.Logger
}

// DirOption configures OpenDirectory.
type DirOption func(*Directory)

// WithLogger directs open and pack diagnostics to l. By default the
// directory is silent.
func WithLogger(l *slog.Logger) DirOption {
	return func(d *Directory) { d.log = l }
}

// OpenDirectory opens the item and menu archives of one text set and builds
// the merged category view. Both archives must carry the same compression
// dialect.
func OpenDirectory(itemBytes, menuBytes []byte, opts ...DirOption) (*Directory, error) {
	d := &Directory{
		categories:      make(map[string]map[int]string),
		fromPatch:       make(map[provKey]struct{}),
		entryPaths:      make(map[uint32]string),
		entryCompressed: make(map[uint32]bool),
		log:             slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(d)
	}

	var err error
	if d.item, err = bnd.Open(itemBytes); err != nil {
		return nil, fmt.Errorf("open item archive: %w", err)
	}
	if d.menu, err = bnd.Open(menuBytes); err != nil {
		return nil, fmt.Errorf("open menu archive: %w", err)
	}
	if d.item.Dialect != d.menu.Dialect {
		return nil, fmt.Errorf("%w: item is %v, menu is %v", ErrInconsistentDialect, d.item.Dialect, d.menu.Dialect)
	}

	if err := d.loadArchive(d.item, false); err != nil {
		return nil, err
	}
	if err := d.loadArchive(d.menu, true); err != nil {
		return nil, err
	}
	d.log.Info("text directory opened",
		"categories", len(d.categories),
		"patch_entries", len(d.fromPatch),
		"dialect", d.item.Dialect)
	return d, nil
}

func (d *Directory) loadArchive(a *bnd.Archive, menu bool) error {
	for _, entry := range a.Entries() {
		spec, ok := categoryByEntryID[entry.ID]
		if !ok || spec.menu != menu {
			return fmt.Errorf("%w: archive entry %d (%s)", ErrUnexpectedCategory, entry.ID, entry.Path)
		}
		d.entryPaths[entry.ID] = entry.Path
		d.entryCompressed[entry.ID] = entry.Compressed()

		table, err := Open(entry.Data())
		if err != nil {
			return fmt.Errorf("entry %d (%s): %w", entry.ID, spec.name, err)
		}
		cat := d.categories[spec.name]
		if cat == nil {
			cat = make(map[int]string)
			d.categories[spec.name] = cat
		}
		for index, text := range table.Entries {
			if spec.patch {
				d.fromPatch[provKey{spec.name, index}] = struct{}{}
			}
			cat[index] = text
		}
		if spec.patch {
			d.log.Debug("patch overlay folded", "category", spec.name, "entries", len(table.Entries))
		}
	}
	return nil
}

// Categories returns the logical category names present, sorted.
func (d *Directory) Categories() []string {
	names := make([]string, 0, len(d.categories))
	for name := range d.categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Text returns the string at index in the named category. A missing index is
// ErrNotFound; an unknown category name is ErrUnexpectedCategory.
func (d *Directory) Text(category string, index int) (string, error) {
	cat, err := d.category(category)
	if err != nil {
		return "", err
	}
	s, ok := cat[index]
	if !ok {
		return "", fmt.Errorf("%w: %s[%d]", ErrNotFound, category, index)
	}
	return s, nil
}

// SetText sets the string at index in the named category.
func (d *Directory) SetText(category string, index int, text string) error {
	cat, err := d.category(category)
	if err != nil {
		return err
	}
	cat[index] = text
	return nil
}

// DeleteText removes the entry at index. On disk "no entry" and "empty
// string" are the same thing, so deletion sets the text to empty.
func (d *Directory) DeleteText(category string, index int) error {
	return d.SetText(category, index, "")
}

func (d *Directory) category(name string) (map[int]string, error) {
	if _, ok := categoryOf[name]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnexpectedCategory, name)
	}
	cat := d.categories[name]
	if cat == nil {
		cat = make(map[int]string)
		d.categories[name] = cat
	}
	return cat, nil
}

// update is one pending archive mutation, computed before any is applied so
// an encoding failure leaves both archives untouched.
type update struct {
	menu    bool
	entryID uint32
	payload []byte
	remove  bool
}

// Pack serializes both archives. Never-merge categories always split their
// entries back to base and patch by provenance. Mergeable categories do the
// same when allowMerge is false; when true their content is written entirely
// into the base entry and the patch entry is dropped from the archive.
func (d *Directory) Pack(allowMerge bool) (itemBytes, menuBytes []byte, err error) {
	if d.item.Dialect != d.menu.Dialect {
		return nil, nil, fmt.Errorf("%w: item is %v, menu is %v", ErrInconsistentDialect, d.item.Dialect, d.menu.Dialect)
	}

	var updates []update
	for name, entries := range d.categories {
		spec := categoryOf[name]
		patchID, hasPatch := patchEntryID[name]
		split := !allowMerge || !spec.merge

		main := make(map[int]string, len(entries))
		patch := make(map[int]string)
		for index, text := range entries {
			if _, fromPatch := d.fromPatch[provKey{name, index}]; split && fromPatch {
				if text != "" {
					patch[index] = text
				}
				continue
			}
			main[index] = text
		}

		payload, err := (&FMG{Entries: main}).Pack()
		if err != nil {
			return nil, nil, fmt.Errorf("pack %s: %w", name, err)
		}
		updates = append(updates, update{menu: spec.menu, entryID: baseEntryID[name], payload: payload})

		if !hasPatch {
			continue
		}
		if !split {
			updates = append(updates, update{menu: spec.menu, entryID: patchID, remove: true})
			d.log.Debug("patch overlay merged into base", "category", name)
			continue
		}
		// Rewrite the patch entry even when the patch map is now empty, so
		// deleting every patch-origin entry empties the table on disk rather
		// than letting the old payload pass through. A patch entry that
		// never existed stays absent.
		if len(patch) > 0 || d.entryExists(spec.menu, patchID) {
			payload, err := (&FMG{Entries: patch}).Pack()
			if err != nil {
				return nil, nil, fmt.Errorf("pack %s patch: %w", name, err)
			}
			updates = append(updates, update{menu: spec.menu, entryID: patchID, payload: payload})
		}
	}

	for _, u := range updates {
		a := d.item
		if u.menu {
			a = d.menu
		}
		if err := d.apply(a, u); err != nil {
			return nil, nil, err
		}
	}

	if itemBytes, err = d.item.Pack(); err != nil {
		return nil, nil, fmt.Errorf("pack item archive: %w", err)
	}
	if menuBytes, err = d.menu.Pack(); err != nil {
		return nil, nil, fmt.Errorf("pack menu archive: %w", err)
	}
	d.log.Info("text directory packed", "merged", allowMerge,
		"item_bytes", len(itemBytes), "menu_bytes", len(menuBytes))
	return itemBytes, menuBytes, nil
}

func (d *Directory) apply(a *bnd.Archive, u update) error {
	_, err := a.Entry(u.entryID)
	exists := err == nil

	switch {
	case u.remove:
		if exists {
			return a.RemoveEntry(u.entryID)
		}
		return nil
	case exists:
		return a.SetEntryData(u.entryID, u.payload)
	default:
		path := d.entryPaths[u.entryID]
		if path == "" {
			spec := categoryByEntryID[u.entryID]
			path = spec.name + ".fmg"
			if spec.patch {
				path = spec.name + "Patch.fmg"
			}
		}
		return a.AddEntry(u.entryID, path, u.payload, d.entryCompressed[u.entryID])
	}
}

func (d *Directory) entryExists(menu bool, id uint32) bool {
	a := d.item
	if menu {
		a = d.menu
	}
	_, err := a.Entry(id)
	return err == nil
}
