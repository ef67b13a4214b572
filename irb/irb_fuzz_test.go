// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package irb

import (
	"testing"

	"github.com/openmeta-go/openmeta/store"
)

func FuzzDecode(f *testing.F) {
	f.Add([]byte("8BIM\x04\x04\x00\x00\x00\x00\x00\x00"))
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, data []byte) {
		m := store.New(store.Limits{MaxBlocks: 1000, MaxEntries: 10000})
		block, err := m.AddBlock(store.BlockInfo{Kind: store.BlockKindIrb, Label: "fuzz"})
		if err != nil {
			return
		}
		Decode(m, block, data)
	})
}
