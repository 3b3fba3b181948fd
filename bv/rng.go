package bv

import "math/rand"

// RNG is the seeded randomness source the propagation core draws from.
// Deterministic for a fixed seed so whole runs can be replayed.
type RNG struct {
	src *rand.Rand
}

// NewRNG returns a generator seeded with seed.
func NewRNG(seed uint64) *RNG {
	return &RNG{src: rand.New(rand.NewSource(int64(seed)))}
}

// Uint64 returns a uniform 64-bit value.
func (r *RNG) Uint64() uint64 { return r.src.Uint64() }

// Uint64n returns a uniform value in [0, n).
func (r *RNG) Uint64n(n uint64) uint64 {
	if n == 0 {
		panic("bv: Uint64n(0)")
	}
	return r.src.Uint64() % n
}

// Intn returns a uniform value in [0, n).
func (r *RNG) Intn(n int) int { return r.src.Intn(n) }

// Flip returns true with probability perMille/1000.
func (r *RNG) Flip(perMille uint32) bool {
	return uint32(r.src.Intn(1000)) < perMille
}

// Range returns a uniform value in [lo, hi], inclusive on both ends.
func (r *RNG) Range(lo, hi uint64) uint64 {
	if lo > hi {
		panic("bv: empty range")
	}
	span := hi - lo + 1
	if span == 0 { // full 64-bit range
		return r.src.Uint64()
	}
	return lo + r.src.Uint64()%span
}

// Bits returns a uniform bit-vector of the given width.
func (r *RNG) Bits(width uint32) BitVector {
	return FromUint64(width, r.src.Uint64())
}
