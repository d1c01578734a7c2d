// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

/*
Package bnd provides support for reading and writing BND binder archives.

A binder is a directory-style container holding many independently addressable
sub-resources: a fixed header, an entry directory (id, path, offset, size,
per-entry compression flag), a Shift-JIS path pool and the entry payloads.
Binders may additionally be wrapped whole in a DCX compression layer; the
presence of that wrapper selects the format dialect of the game edition the
binder belongs to.

# Basic Usage

Opening a binder:

	archive, err := bnd.Open(raw)
	if err != nil {
		log.Fatal(err)
	}

	entry, err := archive.Entry(100)
	if err != nil {
		log.Fatal(err)
	}
	edit(entry.Data())

Repacking:

	err = archive.SetEntryData(100, edited)
	if err != nil {
		log.Fatal(err)
	}
	out, err := archive.Pack()

Entries never touched with SetEntryData are passed through byte for byte, so
an unedited open/pack cycle reproduces the input exactly.

# Atomic Writes

[Archive.WriteFile] packs the archive fully in memory, writes it to a
temporary file in the destination directory and renames it into place, so a
failed pack never leaves a half-written resource behind.
*/
package bnd
