package bv

import "fmt"

// Domain tracks per-bit constant knowledge for a bit-vector: a bit is fixed
// when lo and hi agree on it, free when lo has 0 and hi has 1. lo is the
// smallest element of the domain, hi the largest.
type Domain struct {
	lo BitVector
	hi BitVector
}

// FullDomain returns the unconstrained domain of the given width.
func FullDomain(width uint32) Domain {
	return Domain{lo: New(width), hi: Ones(width)}
}

// FixedDomain returns the singleton domain holding exactly v.
func FixedDomain(v BitVector) Domain {
	return Domain{lo: v, hi: v}
}

// NewDomain builds a domain from its extreme elements. lo must be a subset
// of hi bit-wise (lo & ^hi == 0), anything else has no consistent reading.
func NewDomain(lo, hi BitVector) Domain {
	lo.sameWidth(hi, "domain")
	if lo.bits&^hi.bits != 0 {
		panic("bv: inconsistent domain, lo has a 1 where hi has a 0")
	}
	return Domain{lo: lo, hi: hi}
}

func (d Domain) Width() uint32 { return d.lo.width }

// Lo and Hi return the extreme elements.
func (d Domain) Lo() BitVector { return d.lo }
func (d Domain) Hi() BitVector { return d.hi }

// IsFixed reports whether every bit is fixed.
func (d Domain) IsFixed() bool { return d.lo.bits == d.hi.bits }

// Value returns the single element of a fixed domain.
func (d Domain) Value() BitVector {
	if !d.IsFixed() {
		panic("bv: Value on unfixed domain")
	}
	return d.lo
}

// FixedMask returns a 1 for every fixed bit.
func (d Domain) FixedMask() uint64 {
	return ^(d.lo.bits ^ d.hi.bits) & mask(d.lo.width)
}

// FreeMask returns a 1 for every free bit.
func (d Domain) FreeMask() uint64 {
	return (d.lo.bits ^ d.hi.bits) & mask(d.lo.width)
}

// IsBitFixed reports whether bit i is fixed.
func (d Domain) IsBitFixed(i uint32) bool {
	return d.FixedMask()>>i&1 == 1
}

// Covers reports whether v matches every fixed bit of the domain, i.e.
// whether v is an element of the domain.
func (d Domain) Covers(v BitVector) bool {
	d.lo.sameWidth(v, "covers")
	return (v.bits^d.lo.bits)&d.FixedMask() == 0
}

// Min and Max return the unsigned extreme elements.
func (d Domain) Min() BitVector { return d.lo }
func (d Domain) Max() BitVector { return d.hi }

// SMin returns the signed-smallest element: sign bit set if free, remaining
// free bits cleared.
func (d Domain) SMin() BitVector {
	v := d.lo
	sign := uint64(1) << (d.lo.width - 1)
	if d.FreeMask()&sign != 0 {
		v.bits |= sign
	}
	return v
}

// SMax returns the signed-largest element: sign bit cleared if free,
// remaining free bits set.
func (d Domain) SMax() BitVector {
	v := d.hi
	sign := uint64(1) << (d.lo.width - 1)
	if d.FreeMask()&sign != 0 {
		v.bits &^= sign
	}
	return v
}

// FixBit returns a copy with bit i fixed to b.
func (d Domain) FixBit(i uint32, b uint64) Domain {
	if i >= d.lo.width {
		panic(fmt.Sprintf("bv: fix bit %d out of range for width %d", i, d.lo.width))
	}
	bit := uint64(1) << i
	if b == 0 {
		d.lo.bits &^= bit
		d.hi.bits &^= bit
	} else {
		d.lo.bits |= bit
		d.hi.bits |= bit
	}
	return d
}

// Fix returns the singleton domain holding v. v must be an element of d.
func (d Domain) Fix(v BitVector) Domain {
	if !d.Covers(v) {
		panic("bv: fixing domain to a non-element")
	}
	return FixedDomain(v)
}

// CopySetBits returns an element of d that agrees with v on every free bit
// selected by sel. Fixed bits always keep their fixed value; v must not
// conflict with a fixed bit under sel.
func (d Domain) CopySetBits(v BitVector, sel uint64) BitVector {
	d.lo.sameWidth(v, "copy set bits")
	if (v.bits^d.lo.bits)&d.FixedMask()&sel != 0 {
		panic("bv: CopySetBits conflicts with fixed bits")
	}
	free := d.FreeMask() & sel
	return BitVector{width: d.lo.width, bits: d.lo.bits&^free | v.bits&free}
}

// Random samples a uniform element of the domain.
func (d Domain) Random(rng *RNG) BitVector {
	free := d.FreeMask()
	return BitVector{width: d.lo.width, bits: d.lo.bits | rng.Uint64()&free}
}

// String renders the domain as per-bit characters, msb first: 0, 1 or x.
func (d Domain) String() string {
	w := d.lo.width
	buf := make([]byte, w)
	for i := uint32(0); i < w; i++ {
		bit := uint32(w - 1 - i)
		switch {
		case !d.IsBitFixed(bit):
			buf[i] = 'x'
		case d.lo.Bit(bit) == 1:
			buf[i] = '1'
		default:
			buf[i] = '0'
		}
	}
	return string(buf)
}
