// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package iptc

import (
	"testing"

	"github.com/openmeta-go/openmeta/store"
)

func FuzzDecode(f *testing.F) {
	f.Add([]byte{0x1c, 2, 120, 0, 3, 'f', 'o', 'o'})
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, data []byte) {
		m := store.New(store.Limits{MaxBlocks: 1000, MaxEntries: 10000})
		block, err := m.AddBlock(store.BlockInfo{Kind: store.BlockKindIptc, Label: "fuzz"})
		if err != nil {
			return
		}
		Decode(m, block, data)
	})
}
