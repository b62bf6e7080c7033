// Package prng implements the deterministic byte generator DDML's wrap side uses to produce KEM encapsulation
// randomness: Generate(seed, nonce) is a pure function of its inputs, never touching
// an entropy source directly, so a given (seed, nonce) pair always yields the same bytes.
package prng

import "github.com/streamwrap/ddml/hazmat/kt128"

// Generate returns outLen deterministic bytes derived from seed and nonce. seed plays the role of a long-lived
// generator key (the customization string of the underlying XOF); nonce distinguishes this call from any other
// made with the same seed.
func Generate(seed, nonce []byte, outLen int) []byte {
	h := kt128.NewCustom(seed)
	_, _ = h.Write(nonce)
	out := make([]byte, outLen)
	_, _ = h.Read(out)
	return out
}

// Source is a stateful wrapper around Generate that hands out fresh, non-repeating byte strings for a single seed
// by folding an internal counter into the nonce. It is the shape callers reach for when they need several
// independent draws (e.g. one 64-byte KEM randomness string per recipient) from one long-lived seed.
type Source struct {
	seed    []byte
	counter uint64
}

// New returns a Source seeded with seed. seed should be kept secret and unique per author.
func New(seed []byte) *Source {
	return &Source{seed: append([]byte(nil), seed...)}
}

// Next returns n fresh bytes and advances the internal counter so the next call draws independent output.
func (s *Source) Next(n int) []byte {
	nonce := make([]byte, 8)
	for i := range nonce {
		nonce[i] = byte(s.counter >> (8 * i))
	}
	s.counter++
	return Generate(s.seed, nonce, n)
}
