package ls

import (
	"fmt"
	"math/bits"

	"github.com/smtkit/bvls/bv"
	"github.com/smtkit/bvls/debug"
)

// witnessTries bounds the random probes used when an invertibility
// condition has no cheap closed form under the child's constant bits.
const witnessTries = 16

// IsInvertible checks the invertibility condition for the child at pos with
// respect to constant bits and target t: does a value for that child exist
// such that, with the other children held at their current assignments, the
// operator maps to exactly t. The witness found along the way is cached for
// the following InverseValue call, unless this is an essential-mode check
// (essential checks must not disturb the caches, and must not consult
// bounds derived from top-level inequalities; no such bounds exist here).
func (s *LocalSearch) IsInvertible(id uint32, t bv.BitVector, pos uint32, essentialCheck bool) bool {
	n := s.Node(id)
	v, ok := s.findInverse(n, t, pos)
	if ok && !essentialCheck {
		n.inverse = cachedValue{valid: true, val: v, t: t, pos: pos, gen: n.gen}
	}
	return ok
}

// InverseValue returns a value for the child at pos satisfying the
// invertibility condition for t. The stamped cache is consulted first.
// Calling this without a prior successful IsInvertible is a programming
// error; release builds fall back to a freshly computed or stale value and
// never corrupt the DAG.
func (s *LocalSearch) InverseValue(id uint32, t bv.BitVector, pos uint32) bv.BitVector {
	n := s.Node(id)
	if n.inverse.matches(t, pos, n.gen) {
		return n.inverse.val
	}
	v, ok := s.findInverse(n, t, pos)
	debug.Assert(ok, fmt.Sprintf("ls: InverseValue without invertibility on %s node %d", n.kind, id))
	if !ok {
		return s.nodes[n.children[pos]].assignment
	}
	n.inverse = cachedValue{valid: true, val: v, t: t, pos: pos, gen: n.gen}
	return v
}

// witness builds a child value taking the bits selected by sel from forced
// and the remaining bits from a random domain element. Fails exactly when a
// forced bit conflicts with a fixed domain bit.
func (s *LocalSearch) witness(dx bv.Domain, forced bv.BitVector, sel uint64) (bv.BitVector, bool) {
	r := dx.Random(s.rng)
	v := bv.FromUint64(dx.Width(), r.Uint64()&^sel|forced.Uint64()&sel)
	return v, dx.Covers(v)
}

// witnessKeep is like witness but keeps the node's current assignment on
// the unselected bits, for less disruptive moves.
func (s *LocalSearch) witnessKeep(dx bv.Domain, cur, forced bv.BitVector, sel uint64) (bv.BitVector, bool) {
	v := bv.FromUint64(dx.Width(), cur.Uint64()&^sel|forced.Uint64()&sel)
	return v, dx.Covers(v)
}

// sampleUnsigned looks for a domain element in [lo, hi]. Random probes
// first, then the range endpoints, then the domain extremes, so one-sided
// ranges are decided exactly.
func (s *LocalSearch) sampleUnsigned(dx bv.Domain, lo, hi uint64) (bv.BitVector, bool) {
	w := dx.Width()
	if lo > hi {
		return bv.BitVector{}, false
	}
	if dx.IsFixed() {
		v := dx.Value()
		return v, v.Uint64() >= lo && v.Uint64() <= hi
	}
	for i := 0; i < witnessTries; i++ {
		c := bv.FromUint64(w, s.rng.Range(lo, hi))
		if dx.Covers(c) {
			return c, true
		}
	}
	for _, u := range [...]uint64{lo, hi} {
		c := bv.FromUint64(w, u)
		if c.Uint64() == u && dx.Covers(c) {
			return c, true
		}
	}
	if v := dx.Min(); v.Uint64() >= lo && v.Uint64() <= hi {
		return v, true
	}
	if v := dx.Max(); v.Uint64() >= lo && v.Uint64() <= hi {
		return v, true
	}
	return bv.BitVector{}, false
}

// sampleSigned is the two's-complement variant of sampleUnsigned.
func (s *LocalSearch) sampleSigned(dx bv.Domain, lo, hi int64) (bv.BitVector, bool) {
	w := dx.Width()
	if lo > hi {
		return bv.BitVector{}, false
	}
	if dx.IsFixed() {
		v := dx.Value()
		return v, v.Int64() >= lo && v.Int64() <= hi
	}
	for i := 0; i < witnessTries; i++ {
		c := bv.FromUint64(w, uint64(lo)+s.rng.Range(0, uint64(hi-lo)))
		if c.Int64() >= lo && c.Int64() <= hi && dx.Covers(c) {
			return c, true
		}
	}
	for _, u := range [...]int64{lo, hi} {
		c := bv.FromUint64(w, uint64(u))
		if c.Int64() == u && dx.Covers(c) {
			return c, true
		}
	}
	if v := dx.SMin(); v.Int64() >= lo && v.Int64() <= hi {
		return v, true
	}
	if v := dx.SMax(); v.Int64() >= lo && v.Int64() <= hi {
		return v, true
	}
	return bv.BitVector{}, false
}

func signedBounds(w uint32) (int64, int64) {
	smin := bv.FromUint64(w, uint64(1)<<(w-1)).Int64()
	smax := bv.FromUint64(w, uint64(1)<<(w-1)-1).Int64()
	return smin, smax
}

func lowMask(n uint32) uint64 {
	if n == 0 {
		return 0
	}
	return ^uint64(0) >> (64 - n)
}

// findInverse implements the per-operator invertibility conditions under
// constant bits and constructs a witness. The closed-form conditions follow
// the published bit-vector invertibility conditions; where the constant-bit
// refinement has no cheap closed form (division, remainder by the selected
// child) a bounded witness search is used instead, so a true result always
// comes with a checked witness.
func (s *LocalSearch) findInverse(n *Node, t bv.BitVector, pos uint32) (bv.BitVector, bool) {
	if pos >= n.Arity() {
		panic(fmt.Sprintf("ls: invertibility position %d out of range for %s node", pos, n.kind))
	}
	x := &s.nodes[n.children[pos]]
	dx := x.domain
	w := dx.Width()

	// assignment of the single sibling, for binary operators
	var sv bv.BitVector
	if n.Arity() == 2 {
		sv = s.nodes[n.children[1-pos]].assignment
	}

	switch n.kind {
	case Add:
		v := t.Sub(sv)
		return v, dx.Covers(v)

	case Xor:
		v := t.Xor(sv)
		return v, dx.Covers(v)

	case Not:
		v := t.Not()
		return v, dx.Covers(v)

	case And:
		// x & s = t: impossible unless t's ones are within s
		if !t.And(sv).Equal(t) {
			return bv.BitVector{}, false
		}
		return s.witness(dx, t, sv.Uint64())

	case Eq:
		if t.IsTrue() {
			return sv, dx.Covers(sv)
		}
		if dx.IsFixed() {
			v := dx.Value()
			return v, !v.Equal(sv)
		}
		r := dx.Random(s.rng)
		if r.Equal(sv) {
			flip := uint64(1) << bits.TrailingZeros64(dx.FreeMask())
			r = bv.FromUint64(w, r.Uint64()^flip)
		}
		return r, true

	case Ult:
		su := sv.Uint64()
		maxw := bv.Ones(w).Uint64()
		if pos == 0 {
			if t.IsTrue() { // x < s
				if su == 0 {
					return bv.BitVector{}, false
				}
				return s.sampleUnsigned(dx, 0, su-1)
			}
			return s.sampleUnsigned(dx, su, maxw) // x >= s
		}
		if t.IsTrue() { // s < x
			if su == maxw {
				return bv.BitVector{}, false
			}
			return s.sampleUnsigned(dx, su+1, maxw)
		}
		return s.sampleUnsigned(dx, 0, su) // x <= s

	case Slt:
		si := sv.Int64()
		smin, smax := signedBounds(w)
		if pos == 0 {
			if t.IsTrue() { // x <s s
				if si == smin {
					return bv.BitVector{}, false
				}
				return s.sampleSigned(dx, smin, si-1)
			}
			return s.sampleSigned(dx, si, smax)
		}
		if t.IsTrue() { // s <s x
			if si == smax {
				return bv.BitVector{}, false
			}
			return s.sampleSigned(dx, si+1, smax)
		}
		return s.sampleSigned(dx, smin, si)

	case Concat:
		// child 0 holds the high bits
		w1 := s.nodes[n.children[1]].assignment.Width()
		tw := t.Width()
		if pos == 0 {
			if !t.Extract(w1-1, 0).Equal(sv) {
				return bv.BitVector{}, false
			}
			v := t.Extract(tw-1, w1)
			return v, dx.Covers(v)
		}
		if !t.Extract(tw-1, w1).Equal(sv) {
			return bv.BitVector{}, false
		}
		v := t.Extract(w1-1, 0)
		return v, dx.Covers(v)

	case Extract:
		sel := lowMask(n.imm0-n.imm1+1) << n.imm1
		forced := bv.FromUint64(w, t.Uint64()<<n.imm1)
		return s.witnessKeep(dx, x.assignment, forced, sel)

	case Sext:
		if n.imm0 == 0 {
			return t, dx.Covers(t)
		}
		ext := t.Extract(t.Width()-1, w-1)
		if !ext.IsZero() && !ext.IsOnes() {
			return bv.BitVector{}, false
		}
		v := t.Extract(w-1, 0)
		return v, dx.Covers(v)

	case Ite:
		c := s.nodes[n.children[0]].assignment
		a := s.nodes[n.children[1]].assignment
		b := s.nodes[n.children[2]].assignment
		switch pos {
		case 0:
			var cands []bv.BitVector
			if a.Equal(t) && dx.Covers(bv.True()) {
				cands = append(cands, bv.True())
			}
			if b.Equal(t) && dx.Covers(bv.False()) {
				cands = append(cands, bv.False())
			}
			if len(cands) == 0 {
				return bv.BitVector{}, false
			}
			return cands[s.rng.Intn(len(cands))], true
		case 1:
			if c.IsTrue() {
				return t, dx.Covers(t)
			}
			if b.Equal(t) { // branch not taken, any value keeps t
				return dx.Random(s.rng), true
			}
			return bv.BitVector{}, false
		default:
			if c.IsFalse() {
				return t, dx.Covers(t)
			}
			if a.Equal(t) {
				return dx.Random(s.rng), true
			}
			return bv.BitVector{}, false
		}

	case Shl:
		if pos == 0 {
			amt := sv.Uint64()
			if amt >= uint64(w) {
				if !t.IsZero() {
					return bv.BitVector{}, false
				}
				return dx.Random(s.rng), true
			}
			if t.Uint64()&lowMask(uint32(amt)) != 0 {
				return bv.BitVector{}, false
			}
			forced := bv.FromUint64(w, t.Uint64()>>amt)
			return s.witness(dx, forced, lowMask(w-uint32(amt)))
		}
		return s.findShiftAmount(dx, sv, t, func(v bv.BitVector, k uint32) bv.BitVector {
			return v.Shl(bv.FromUint64(w, uint64(k)))
		}, t.IsZero())

	case Shr:
		if pos == 0 {
			amt := sv.Uint64()
			if amt >= uint64(w) {
				if !t.IsZero() {
					return bv.BitVector{}, false
				}
				return dx.Random(s.rng), true
			}
			if amt > 0 && t.Uint64()>>(uint64(w)-amt) != 0 {
				return bv.BitVector{}, false
			}
			forced := bv.FromUint64(w, t.Uint64()<<amt)
			return s.witness(dx, forced, lowMask(w)&^lowMask(uint32(amt)))
		}
		return s.findShiftAmount(dx, sv, t, func(v bv.BitVector, k uint32) bv.BitVector {
			return v.Shr(bv.FromUint64(w, uint64(k)))
		}, t.IsZero())

	case Ashr:
		if pos == 0 {
			amt := sv.Uint64()
			if amt >= uint64(w) {
				// sign fill: x only contributes its sign bit
				sign := uint64(1) << (w - 1)
				if t.IsZero() {
					return s.witness(dx, bv.New(w), sign)
				}
				if t.IsOnes() {
					return s.witness(dx, bv.Ones(w), sign)
				}
				return bv.BitVector{}, false
			}
			// top amt+1 bits of t must all equal the shifted-in sign
			top := t.Uint64() >> (uint64(w) - 1 - amt)
			if top != 0 && top != lowMask(uint32(amt)+1) {
				return bv.BitVector{}, false
			}
			forced := bv.FromUint64(w, t.Uint64()<<amt)
			return s.witness(dx, forced, lowMask(w)&^lowMask(uint32(amt)))
		}
		fill := t.IsZero() && sv.SignBit() == 0 || t.IsOnes() && sv.SignBit() == 1
		return s.findShiftAmount(dx, sv, t, func(v bv.BitVector, k uint32) bv.BitVector {
			return v.Ashr(bv.FromUint64(w, uint64(k)))
		}, fill)

	case Mul:
		su := sv.Uint64()
		if su == 0 {
			if !t.IsZero() {
				return bv.BitVector{}, false
			}
			return dx.Random(s.rng), true
		}
		if su&1 == 1 {
			v := t.Mul(sv.ModInverse())
			return v, dx.Covers(v)
		}
		i := sv.Ctz()
		if t.Ctz() < i {
			return bv.BitVector{}, false
		}
		odd := bv.FromUint64(w, su>>i)
		low := bv.FromUint64(w, t.Uint64()>>i).Mul(odd.ModInverse())
		forced := bv.FromUint64(w, low.Uint64()&lowMask(w-i))
		return s.witness(dx, forced, lowMask(w-i))

	case Udiv:
		su := sv.Uint64()
		tu := t.Uint64()
		maxw := bv.Ones(w).Uint64()
		if pos == 0 { // x / s = t
			if su == 0 {
				if !t.IsOnes() {
					return bv.BitVector{}, false
				}
				return dx.Random(s.rng), true
			}
			hiProd, loProd := bits.Mul64(su, tu)
			if hiProd != 0 || loProd > maxw {
				return bv.BitVector{}, false
			}
			span := su - 1
			if rem := maxw - loProd; rem < span {
				span = rem
			}
			return s.sampleUnsigned(dx, loProd, loProd+span)
		}
		// s / x = t
		if t.IsOnes() {
			var cands []bv.BitVector
			if zero := bv.New(w); dx.Covers(zero) {
				cands = append(cands, zero)
			}
			if one := bv.FromUint64(w, 1); sv.IsOnes() && dx.Covers(one) {
				cands = append(cands, one)
			}
			if len(cands) == 0 {
				return bv.BitVector{}, false
			}
			return cands[s.rng.Intn(len(cands))], true
		}
		if tu == 0 { // any x > s
			if su == maxw {
				return bv.BitVector{}, false
			}
			return s.sampleUnsigned(dx, su+1, maxw)
		}
		lo := su/(tu+1) + 1
		hi := su / tu
		return s.sampleUnsigned(dx, lo, hi)

	case Urem:
		su := sv.Uint64()
		tu := t.Uint64()
		maxw := bv.Ones(w).Uint64()
		if pos == 0 { // x % s = t
			if su == 0 {
				return t, dx.Covers(t)
			}
			if tu >= su {
				return bv.BitVector{}, false
			}
			kmax := (maxw - tu) / su
			for i := 0; i < witnessTries; i++ {
				c := bv.FromUint64(w, tu+s.rng.Range(0, kmax)*su)
				if dx.Covers(c) {
					return c, true
				}
			}
			return t, dx.Covers(t)
		}
		// s % x = t
		if tu == su {
			if zero := bv.New(w); dx.Covers(zero) {
				return zero, true
			}
			if su == maxw {
				return bv.BitVector{}, false
			}
			return s.sampleUnsigned(dx, su+1, maxw)
		}
		if tu > su {
			return bv.BitVector{}, false
		}
		d := su - tu
		if d > tu {
			if c := bv.FromUint64(w, d); dx.Covers(c) {
				return c, true
			}
		}
		for i := uint64(2); i <= 64 && i <= d; i++ {
			if d%i != 0 {
				continue
			}
			if q := d / i; q > tu {
				if c := bv.FromUint64(w, q); dx.Covers(c) {
					return c, true
				}
			}
			if i > tu {
				if c := bv.FromUint64(w, i); dx.Covers(c) {
					return c, true
				}
			}
		}
		return bv.BitVector{}, false

	default:
		panic(fmt.Sprintf("ls: invertibility on unexpected kind %s", n.kind))
	}
}

// findShiftAmount enumerates shift amounts k < w with shift(s, k) == t and
// picks a random domain-covered one; zeroFill admits any amount >= w.
func (s *LocalSearch) findShiftAmount(dx bv.Domain, sv, t bv.BitVector, shift func(bv.BitVector, uint32) bv.BitVector, fillOK bool) (bv.BitVector, bool) {
	w := dx.Width()
	var cands []bv.BitVector
	for k := uint32(0); k < w; k++ {
		c := bv.FromUint64(w, uint64(k))
		if dx.Covers(c) && shift(sv, k).Equal(t) {
			cands = append(cands, c)
		}
	}
	if len(cands) > 0 {
		return cands[s.rng.Intn(len(cands))], true
	}
	if fillOK && uint64(w) <= bv.Ones(w).Uint64() {
		return s.sampleUnsigned(dx, uint64(w), bv.Ones(w).Uint64())
	}
	return bv.BitVector{}, false
}
