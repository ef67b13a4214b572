// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package crw

import (
	"testing"

	"github.com/openmeta-go/openmeta/store"
)

func FuzzDecode(f *testing.F) {
	f.Add([]byte("II\x0e\x00\x00\x00HEAPCCDR\x00\x00\x00\x00\x00\x00"))
	f.Add([]byte("not a crw file"))
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, data []byte) {
		m := store.New(store.Limits{MaxBlocks: 1000, MaxEntries: 10000})
		Decode(m, data)
	})
}
