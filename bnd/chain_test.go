// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package bnd

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chainBlob(t *testing.T, entries map[string][]byte) []byte {
	t.Helper()
	a := New(DialectClassic)
	id := uint32(0)
	for path, data := range entries {
		require.NoError(t, a.AddEntry(id, path, data, false))
		id++
	}
	b, err := a.Pack()
	require.NoError(t, err)
	return b
}

func TestChainPatchOverridesBase(t *testing.T) {
	base := chainBlob(t, map[string][]byte{
		`N:\FRPG\data\param\GameParam\GameParam.parambnd`: []byte("base param"),
		`N:\FRPG\data\Msg\Data_ENGLISH\item.msgbnd`:       []byte("base text"),
	})
	patch := chainBlob(t, map[string][]byte{
		`N:\FRPG\data\param\GameParam\GameParam.parambnd`: []byte("patched param"),
	})

	chain, err := OpenChain([][]byte{base, patch})
	require.NoError(t, err)
	assert.Equal(t, 2, chain.Len())

	data, err := chain.Data(`N:\FRPG\data\param\GameParam\GameParam.parambnd`)
	require.NoError(t, err)
	assert.Equal(t, []byte("patched param"), data)

	data, err = chain.Data(`N:\FRPG\data\Msg\Data_ENGLISH\item.msgbnd`)
	require.NoError(t, err)
	assert.Equal(t, []byte("base text"), data)
}

func TestChainLookupIsCaseAndSeparatorInsensitive(t *testing.T) {
	base := chainBlob(t, map[string][]byte{
		`N:\FRPG\data\Msg\Data_ENGLISH\menu.msgbnd`: []byte("menu"),
	})
	chain, err := OpenChain([][]byte{base})
	require.NoError(t, err)

	assert.True(t, chain.Has(`n:/frpg/data/msg/data_english/MENU.MSGBND`))
	data, err := chain.Data(`n:/frpg/data/msg/data_english/MENU.MSGBND`)
	require.NoError(t, err)
	assert.Equal(t, []byte("menu"), data)
}

func TestChainLookupNotFound(t *testing.T) {
	chain, err := OpenChain([][]byte{chainBlob(t, nil)})
	require.NoError(t, err)

	assert.False(t, chain.Has(`N:\FRPG\data\missing.bnd`))
	_, err = chain.Lookup(`N:\FRPG\data\missing.bnd`)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestChainPathsUnion(t *testing.T) {
	base := chainBlob(t, map[string][]byte{
		`N:\FRPG\a.bnd`: []byte("a"),
		`N:\FRPG\b.bnd`: []byte("b"),
	})
	patch := chainBlob(t, map[string][]byte{
		`N:\FRPG\b.bnd`: []byte("b patched"),
		`N:\FRPG\c.bnd`: []byte("c"),
	})

	chain, err := OpenChain([][]byte{base, patch})
	require.NoError(t, err)

	paths := chain.Paths()
	assert.Len(t, paths, 3)
	assert.ElementsMatch(t, []string{`N:\FRPG\a.bnd`, `N:\FRPG\b.bnd`, `N:\FRPG\c.bnd`}, paths)
}

// BenchmarkChainLookup benchmarks path lookup through the chain's cache.
func BenchmarkChainLookup(b *testing.B) {
	var blobs [][]byte
	for i := 0; i < 5; i++ {
		a := New(DialectClassic)
		for j := 0; j < 20; j++ {
			path := fmt.Sprintf(`N:\FRPG\data\file_%c.dat`, 'a'+j)
			content := []byte(fmt.Sprintf("content %d%c", i, 'a'+j))
			if err := a.AddEntry(uint32(j), path, content, false); err != nil {
				b.Fatal(err)
			}
		}
		blob, err := a.Pack()
		if err != nil {
			b.Fatal(err)
		}
		blobs = append(blobs, blob)
	}

	chain, err := OpenChain(blobs)
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		chain.Has(`N:\FRPG\data\file_a.dat`)
		chain.Has(`N:\FRPG\data\file_j.dat`)
		chain.Has(`N:\FRPG\data\file_t.dat`)
		chain.Has(`N:\FRPG\data\missing.dat`)
	}
}
