// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package jumbf

import (
	"testing"

	"github.com/openmeta-go/openmeta/store"
)

func FuzzDecode(f *testing.F) {
	f.Add([]byte{0x00, 0x00, 0x00, 0x0c, 'j', 'u', 'm', 'b', 0x00, 0x00, 0x00, 0x00})
	f.Add([]byte{0x00, 0x01, 0x02})

	f.Fuzz(func(t *testing.T, data []byte) {
		m := store.New(store.Limits{MaxBlocks: 1000, MaxEntries: 10000})
		block, err := m.AddBlock(store.BlockInfo{Kind: store.BlockKindJumbf, Label: "fuzz"})
		if err != nil {
			return
		}
		Decode(m, block, data, 0, DefaultOptions())
	})
}
