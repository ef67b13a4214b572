// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package exr

import (
	"testing"

	"github.com/openmeta-go/openmeta/store"
)

func FuzzDecode(f *testing.F) {
	f.Add([]byte{0x76, 0x2f, 0x31, 0x01, 2, 0, 0, 0, 0, 0})
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, data []byte) {
		m := store.New(store.Limits{MaxBlocks: 1000, MaxEntries: 10000})
		newBlock := func() store.BlockID {
			id, _ := m.AddBlock(store.BlockInfo{Kind: store.BlockKindExrPart, Label: "fuzz"})
			return id
		}
		Decode(m, newBlock, data)
	})
}
