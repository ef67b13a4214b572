// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package icc

import (
	"testing"

	"github.com/openmeta-go/openmeta/store"
)

func FuzzDecode(f *testing.F) {
	f.Add(make([]byte, 128))
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, data []byte) {
		m := store.New(store.Limits{MaxBlocks: 1000, MaxEntries: 10000})
		block, err := m.AddBlock(store.BlockInfo{Kind: store.BlockKindIcc, Label: "fuzz"})
		if err != nil {
			return
		}
		Decode(m, block, data)
	})
}
