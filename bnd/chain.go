// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package bnd

import (
	"fmt"
	"strings"
)

// normalizeEntryPath normalizes an entry path for chain lookup. Binder paths
// are case-insensitive and use backslash separators.
func normalizeEntryPath(path string) string {
	normalized := strings.ReplaceAll(path, "/", "\\")
	normalized = strings.ToUpper(normalized)
	for strings.Contains(normalized, "\\\\") {
		normalized = strings.ReplaceAll(normalized, "\\\\", "\\")
	}
	return normalized
}

// Chain is a prioritized overlay of binder archives: a base archive with
// patch archives layered over it. The last archive has the highest priority,
// so when several archives carry the same entry path, the patched version
// wins.
type Chain struct {
	archives []*Archive
	pathMap  map[string]int // normalized entry path -> archive index
}

// NewChain layers the given archives in order of increasing priority.
func NewChain(archives ...*Archive) *Chain {
	c := &Chain{archives: archives}
	c.rebuildPathMap()
	return c
}

// OpenChain opens each blob as a binder and layers them in order of
// increasing priority.
func OpenChain(blobs [][]byte, opts ...Option) (*Chain, error) {
	archives := make([]*Archive, 0, len(blobs))
	for i, blob := range blobs {
		a, err := Open(blob, opts...)
		if err != nil {
			return nil, fmt.Errorf("open chain archive %d: %w", i, err)
		}
		archives = append(archives, a)
	}
	return NewChain(archives...), nil
}

// Has reports whether any archive in the chain carries the entry path.
func (c *Chain) Has(path string) bool {
	_, ok := c.pathMap[normalizeEntryPath(path)]
	return ok
}

// Lookup returns the highest-priority entry with the given path. Matching is
// case-insensitive and separator-insensitive, like the archives themselves.
func (c *Chain) Lookup(path string) (*Entry, error) {
	key := normalizeEntryPath(path)
	idx, ok := c.pathMap[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s in %d-archive chain", ErrNotFound, path, len(c.archives))
	}
	for _, entry := range c.archives[idx].Entries() {
		if normalizeEntryPath(entry.Path) == key {
			return entry, nil
		}
	}
	return nil, fmt.Errorf("%w: %s in %d-archive chain", ErrNotFound, path, len(c.archives))
}

// Data returns the payload of the highest-priority entry with the given path.
func (c *Chain) Data(path string) ([]byte, error) {
	entry, err := c.Lookup(path)
	if err != nil {
		return nil, err
	}
	return entry.Data(), nil
}

// Paths returns the union of entry paths across the chain, each reported
// once in the spelling of its highest-priority archive.
func (c *Chain) Paths() []string {
	seen := make(map[string]struct{}, len(c.pathMap))
	var result []string
	for i := len(c.archives) - 1; i >= 0; i-- {
		for _, entry := range c.archives[i].Entries() {
			key := normalizeEntryPath(entry.Path)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			result = append(result, entry.Path)
		}
	}
	return result
}

// Len returns the number of archives in the chain.
func (c *Chain) Len() int {
	return len(c.archives)
}

// rebuildPathMap rebuilds the lookup cache. Archives are walked highest
// priority first so patched entries shadow the base ones.
func (c *Chain) rebuildPathMap() {
	c.pathMap = make(map[string]int)
	for i := len(c.archives) - 1; i >= 0; i-- {
		for _, entry := range c.archives[i].Entries() {
			key := normalizeEntryPath(entry.Path)
			if _, exists := c.pathMap[key]; !exists {
				c.pathMap[key] = i
			}
		}
	}
}
