// Package bv implements fixed-width bit-vector values, constant-bit domains
// and the seeded randomness the local-search core samples from.
//
// Widths are limited to 64 bits; arithmetic is modulo 2^w with SMT-LIB
// semantics for the division and shift edge cases.
package bv

import (
	"fmt"
	"math/bits"
)

// MaxWidth is the largest supported bit-vector width.
const MaxWidth = 64

// BitVector is a fixed-width bit-vector value. The zero value is invalid;
// use New or FromUint64.
type BitVector struct {
	width uint32
	bits  uint64
}

func mask(width uint32) uint64 {
	return ^uint64(0) >> (64 - width)
}

func checkWidth(width uint32) {
	if width == 0 || width > MaxWidth {
		panic(fmt.Sprintf("bv: invalid width %d", width))
	}
}

// New returns the zero bit-vector of the given width.
func New(width uint32) BitVector {
	checkWidth(width)
	return BitVector{width: width}
}

// FromUint64 returns a bit-vector of the given width holding v truncated
// modulo 2^width.
func FromUint64(width uint32, v uint64) BitVector {
	checkWidth(width)
	return BitVector{width: width, bits: v & mask(width)}
}

// Ones returns the all-ones bit-vector of the given width.
func Ones(width uint32) BitVector {
	checkWidth(width)
	return BitVector{width: width, bits: mask(width)}
}

// Zero returns the all-zeros bit-vector, the named counterpart of Ones.
func Zero(width uint32) BitVector { return New(width) }

// Rand returns a uniform random bit-vector of the given width.
func Rand(width uint32, rng *RNG) BitVector { return rng.Bits(width) }

// True and False are the width-1 boolean encodings used by comparison nodes.
func True() BitVector  { return BitVector{width: 1, bits: 1} }
func False() BitVector { return BitVector{width: 1, bits: 0} }

// Bool returns the width-1 encoding of b.
func Bool(b bool) BitVector {
	if b {
		return True()
	}
	return False()
}

// Width returns the width in bits.
func (a BitVector) Width() uint32 { return a.width }

// Uint64 returns the unsigned value.
func (a BitVector) Uint64() uint64 { return a.bits }

// Int64 returns the two's-complement signed interpretation.
func (a BitVector) Int64() int64 {
	shift := 64 - a.width
	return int64(a.bits<<shift) >> shift
}

// Bit returns bit i (0 = least significant).
func (a BitVector) Bit(i uint32) uint64 {
	if i >= a.width {
		panic(fmt.Sprintf("bv: bit index %d out of range for width %d", i, a.width))
	}
	return (a.bits >> i) & 1
}

func (a BitVector) IsZero() bool { return a.bits == 0 }
func (a BitVector) IsOnes() bool { return a.bits == mask(a.width) }

// IsTrue reports whether this is the width-1 value 1.
func (a BitVector) IsTrue() bool { return a.width == 1 && a.bits == 1 }

// IsFalse reports whether this is the width-1 value 0.
func (a BitVector) IsFalse() bool { return a.width == 1 && a.bits == 0 }

// SignBit returns the most significant bit.
func (a BitVector) SignBit() uint64 { return (a.bits >> (a.width - 1)) & 1 }

// Equal reports value equality. Vectors of different widths are never equal.
func (a BitVector) Equal(b BitVector) bool {
	return a.width == b.width && a.bits == b.bits
}

func (a BitVector) sameWidth(b BitVector, op string) {
	if a.width != b.width {
		panic(fmt.Sprintf("bv: %s width mismatch %d != %d", op, a.width, b.width))
	}
}

// Ctz returns the number of trailing zero bits (width for the zero vector).
func (a BitVector) Ctz() uint32 {
	if a.bits == 0 {
		return a.width
	}
	return uint32(bits.TrailingZeros64(a.bits))
}

func (a BitVector) Add(b BitVector) BitVector {
	a.sameWidth(b, "add")
	return BitVector{width: a.width, bits: (a.bits + b.bits) & mask(a.width)}
}

func (a BitVector) Sub(b BitVector) BitVector {
	a.sameWidth(b, "sub")
	return BitVector{width: a.width, bits: (a.bits - b.bits) & mask(a.width)}
}

func (a BitVector) Neg() BitVector {
	return BitVector{width: a.width, bits: (-a.bits) & mask(a.width)}
}

func (a BitVector) Not() BitVector {
	return BitVector{width: a.width, bits: ^a.bits & mask(a.width)}
}

func (a BitVector) And(b BitVector) BitVector {
	a.sameWidth(b, "and")
	return BitVector{width: a.width, bits: a.bits & b.bits}
}

func (a BitVector) Or(b BitVector) BitVector {
	a.sameWidth(b, "or")
	return BitVector{width: a.width, bits: a.bits | b.bits}
}

func (a BitVector) Xor(b BitVector) BitVector {
	a.sameWidth(b, "xor")
	return BitVector{width: a.width, bits: a.bits ^ b.bits}
}

func (a BitVector) Mul(b BitVector) BitVector {
	a.sameWidth(b, "mul")
	return BitVector{width: a.width, bits: (a.bits * b.bits) & mask(a.width)}
}

// Udiv returns a / b, all-ones when b is zero (SMT-LIB bvudiv).
func (a BitVector) Udiv(b BitVector) BitVector {
	a.sameWidth(b, "udiv")
	if b.bits == 0 {
		return Ones(a.width)
	}
	return BitVector{width: a.width, bits: a.bits / b.bits}
}

// Urem returns a % b, a when b is zero (SMT-LIB bvurem).
func (a BitVector) Urem(b BitVector) BitVector {
	a.sameWidth(b, "urem")
	if b.bits == 0 {
		return a
	}
	return BitVector{width: a.width, bits: a.bits % b.bits}
}

// Shl returns a << b; zero when the shift amount reaches the width.
func (a BitVector) Shl(b BitVector) BitVector {
	a.sameWidth(b, "shl")
	if b.bits >= uint64(a.width) {
		return New(a.width)
	}
	return BitVector{width: a.width, bits: (a.bits << b.bits) & mask(a.width)}
}

// Shr returns the logical right shift; zero when the amount reaches the width.
func (a BitVector) Shr(b BitVector) BitVector {
	a.sameWidth(b, "shr")
	if b.bits >= uint64(a.width) {
		return New(a.width)
	}
	return BitVector{width: a.width, bits: a.bits >> b.bits}
}

// Ashr returns the arithmetic right shift; sign fill when the amount reaches
// the width.
func (a BitVector) Ashr(b BitVector) BitVector {
	a.sameWidth(b, "ashr")
	if b.bits >= uint64(a.width) {
		if a.SignBit() == 1 {
			return Ones(a.width)
		}
		return New(a.width)
	}
	return FromUint64(a.width, uint64(a.Int64()>>b.bits))
}

// Concat returns a ∘ b with a in the high bits.
func (a BitVector) Concat(b BitVector) BitVector {
	width := a.width + b.width
	checkWidth(width)
	return BitVector{width: width, bits: a.bits<<b.width | b.bits}
}

// Extract returns bits hi..lo inclusive.
func (a BitVector) Extract(hi, lo uint32) BitVector {
	if hi >= a.width || lo > hi {
		panic(fmt.Sprintf("bv: extract [%d:%d] out of range for width %d", hi, lo, a.width))
	}
	return BitVector{width: hi - lo + 1, bits: (a.bits >> lo) & mask(hi-lo+1)}
}

// Sext sign-extends by n bits.
func (a BitVector) Sext(n uint32) BitVector {
	width := a.width + n
	checkWidth(width)
	return FromUint64(width, uint64(a.Int64()))
}

func (a BitVector) Eq(b BitVector) BitVector {
	a.sameWidth(b, "eq")
	return Bool(a.bits == b.bits)
}

func (a BitVector) Ne(b BitVector) BitVector {
	a.sameWidth(b, "ne")
	return Bool(a.bits != b.bits)
}

func (a BitVector) Ult(b BitVector) BitVector {
	a.sameWidth(b, "ult")
	return Bool(a.bits < b.bits)
}

func (a BitVector) Ule(b BitVector) BitVector {
	a.sameWidth(b, "ule")
	return Bool(a.bits <= b.bits)
}

func (a BitVector) Slt(b BitVector) BitVector {
	a.sameWidth(b, "slt")
	return Bool(a.Int64() < b.Int64())
}

func (a BitVector) Sle(b BitVector) BitVector {
	a.sameWidth(b, "sle")
	return Bool(a.Int64() <= b.Int64())
}

// ModInverse returns the multiplicative inverse modulo 2^width. The receiver
// must be odd.
func (a BitVector) ModInverse() BitVector {
	if a.bits&1 == 0 {
		panic("bv: mod inverse of even value")
	}
	// Newton iteration, doubles correct bits each round.
	inv := a.bits
	for i := 0; i < 6; i++ {
		inv *= 2 - a.bits*inv
	}
	return BitVector{width: a.width, bits: inv & mask(a.width)}
}

// String renders as #b<bits> in msb-first order, mirroring SMT-LIB literals.
func (a BitVector) String() string {
	buf := make([]byte, a.width)
	for i := uint32(0); i < a.width; i++ {
		if a.bits>>(a.width-1-i)&1 == 1 {
			buf[i] = '1'
		} else {
			buf[i] = '0'
		}
	}
	return "#b" + string(buf)
}
