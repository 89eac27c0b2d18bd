// Package random provides seeded pseudo-random sources for actors.
//
// Seeds come from crypto/rand so independent actor instances never share a
// sequence, while tests can pass a fixed seed for deterministic outcomes.
package random

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
)

// NewSeed generates a random seed using crypto/rand.
func NewSeed() (uint64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

// NewRand returns a PCG-backed generator for seed. The generator is not safe
// for concurrent use; actors only touch it from their serial executor.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// NewSeededRand returns a generator seeded from crypto/rand.
func NewSeededRand() (*rand.Rand, error) {
	seed, err := NewSeed()
	if err != nil {
		return nil, err
	}
	return NewRand(seed), nil
}
