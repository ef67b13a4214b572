// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package openmeta

import (
	"testing"

	"github.com/openmeta-go/openmeta/scanner"
	"github.com/openmeta-go/openmeta/store"
)

func FuzzReadMeta(f *testing.F) {
	f.Add(buildPNGWithXMP(`<x:xmpmeta xmlns:x="adobe:ns:meta/"/>`))
	f.Add(buildMinimalCRW())
	f.Add([]byte{0xff, 0xd8, 0xff, 0xd9})
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, data []byte) {
		m := store.New(store.Limits{MaxBlocks: 1000, MaxEntries: 10000})
		scratch := make([]scanner.ContainerBlockRef, 64)
		ReadMeta(m, data, scratch, Options{})
	})
}
