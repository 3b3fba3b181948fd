package ls

import (
	"fmt"
	"math/bits"

	"github.com/smtkit/bvls/bv"
	"github.com/smtkit/bvls/debug"
)

// IsConsistent checks the consistency condition for the child at pos with
// respect to constant bits and target t: does a value for that child exist
// such that the operator can produce t for SOME assignment of the other
// children. Weaker and usually cheaper than invertibility; used as the
// fallback when no child is invertible.
func (s *LocalSearch) IsConsistent(id uint32, t bv.BitVector, pos uint32) bool {
	n := s.Node(id)
	v, ok := s.findConsistent(n, t, pos)
	if ok {
		n.consistent = cachedValue{valid: true, val: v, t: t, pos: pos, gen: n.gen}
	}
	return ok
}

// ConsistentValue returns a value satisfying the consistency condition,
// consulting the stamped cache first. Calling it without a prior successful
// IsConsistent is a programming error.
func (s *LocalSearch) ConsistentValue(id uint32, t bv.BitVector, pos uint32) bv.BitVector {
	n := s.Node(id)
	if n.consistent.matches(t, pos, n.gen) {
		return n.consistent.val
	}
	v, ok := s.findConsistent(n, t, pos)
	debug.Assert(ok, fmt.Sprintf("ls: ConsistentValue without consistency on %s node %d", n.kind, id))
	if !ok {
		return s.nodes[n.children[pos]].assignment
	}
	n.consistent = cachedValue{valid: true, val: v, t: t, pos: pos, gen: n.gen}
	return v
}

// findConsistent implements the per-operator consistency conditions: the
// siblings are existentially quantified, so only the constraints the target
// places on the selected child itself remain.
func (s *LocalSearch) findConsistent(n *Node, t bv.BitVector, pos uint32) (bv.BitVector, bool) {
	if pos >= n.Arity() {
		panic(fmt.Sprintf("ls: consistency position %d out of range for %s node", pos, n.kind))
	}
	x := &s.nodes[n.children[pos]]
	dx := x.domain
	w := dx.Width()
	maxw := bv.Ones(w).Uint64()
	tu := t.Uint64()

	switch n.kind {
	case Add, Xor:
		// the sibling absorbs any choice
		return dx.Random(s.rng), true

	case Not:
		// unary: consistency coincides with invertibility
		v := t.Not()
		return v, dx.Covers(v)

	case Extract, Sext:
		return s.findInverse(n, t, pos)

	case And:
		// pick s = t, so x must contain t's ones
		if tu&^dx.Hi().Uint64() != 0 {
			return bv.BitVector{}, false
		}
		return bv.FromUint64(w, dx.Random(s.rng).Uint64()|tu), true

	case Eq:
		// a sibling equal or distinct to x always exists
		return dx.Random(s.rng), true

	case Ult:
		if pos == 0 {
			if t.IsTrue() { // some s > x, so x != ones
				return s.sampleUnsigned(dx, 0, maxw-1)
			}
			return dx.Random(s.rng), true // x >= 0 always
		}
		if t.IsTrue() { // some s < x, so x != 0
			return s.sampleUnsigned(dx, 1, maxw)
		}
		return dx.Random(s.rng), true

	case Slt:
		smin, smax := signedBounds(w)
		if pos == 0 {
			if t.IsTrue() {
				return s.sampleSigned(dx, smin, smax-1)
			}
			return dx.Random(s.rng), true
		}
		if t.IsTrue() {
			return s.sampleSigned(dx, smin+1, smax)
		}
		return dx.Random(s.rng), true

	case Concat:
		// only the child's own slice of t is constrained
		w1 := s.nodes[n.children[1]].assignment.Width()
		tw := t.Width()
		var v bv.BitVector
		if pos == 0 {
			v = t.Extract(tw-1, w1)
		} else {
			v = t.Extract(w1-1, 0)
		}
		return v, dx.Covers(v)

	case Ite:
		if pos == 0 {
			return dx.Random(s.rng), true
		}
		// prefer taking the branch, fall back to the condition skipping it
		if dx.Covers(t) {
			return t, true
		}
		return dx.Random(s.rng), true

	case Shl:
		if pos == 0 {
			if t.IsZero() {
				return dx.Random(s.rng), true
			}
			// x shifted by a random k <= ctz(t) can reach t
			k := uint32(s.rng.Range(0, uint64(t.Ctz())))
			forced := bv.FromUint64(w, tu>>k)
			if v, ok := s.witness(dx, forced, lowMask(w-k)); ok {
				return v, ok
			}
			// retry with the unshifted target
			return s.witness(dx, t, lowMask(w))
		}
		if t.IsZero() {
			return dx.Random(s.rng), true
		}
		return s.sampleUnsigned(dx, 0, uint64(t.Ctz()))

	case Shr:
		lz := uint32(bits.LeadingZeros64(tu)) - (64 - w)
		if pos == 0 {
			if t.IsZero() {
				return dx.Random(s.rng), true
			}
			k := uint32(s.rng.Range(0, uint64(lz)))
			forced := bv.FromUint64(w, tu<<k)
			if v, ok := s.witness(dx, forced, lowMask(w)&^lowMask(k)); ok {
				return v, ok
			}
			return s.witness(dx, t, lowMask(w))
		}
		if t.IsZero() {
			return dx.Random(s.rng), true
		}
		return s.sampleUnsigned(dx, 0, uint64(lz))

	case Ashr:
		// count of top bits equal to the bit below them
		rep := uint32(0)
		for rep+1 < w && t.Bit(w-1-rep) == t.Bit(w-2-rep) {
			rep++
		}
		if pos == 0 {
			k := uint32(s.rng.Range(0, uint64(rep)))
			forced := bv.FromUint64(w, tu<<k)
			if v, ok := s.witness(dx, forced, lowMask(w)&^lowMask(k)); ok {
				return v, ok
			}
			return s.witness(dx, t, lowMask(w))
		}
		if t.IsZero() || t.IsOnes() {
			return dx.Random(s.rng), true
		}
		return s.sampleUnsigned(dx, 0, uint64(rep))

	case Mul:
		if t.IsZero() {
			return dx.Random(s.rng), true // s = 0 absorbs
		}
		// need x != 0 with ctz(x) <= ctz(t)
		tz := t.Ctz()
		for j := uint32(0); j <= tz && j < w; j++ {
			if dx.Lo().Uint64()&lowMask(j) != 0 {
				break // a fixed one below j, ctz(x) < j for every element
			}
			if dx.Hi().Uint64()>>j&1 == 0 {
				continue // bit j fixed to zero
			}
			forced := bv.FromUint64(w, uint64(1)<<j)
			if v, ok := s.witness(dx, forced, lowMask(j+1)); ok {
				return v, ok
			}
		}
		return bv.BitVector{}, false

	case Udiv:
		if pos == 0 { // x / s = t for some s
			if t.IsOnes() {
				return dx.Random(s.rng), true // s = 0
			}
			if t.IsZero() { // s > x, so x != ones
				return s.sampleUnsigned(dx, 0, maxw-1)
			}
			for i := 0; i < witnessTries; i++ {
				c, ok := s.sampleUnsigned(dx, tu, maxw)
				if !ok {
					break
				}
				if q := c.Uint64() / tu; q >= 1 && c.Uint64()/q == tu {
					return c, true
				}
			}
			return t, dx.Covers(t) // s = 1
		}
		// s / x = t for some s
		if t.IsOnes() {
			var cands []bv.BitVector
			if zero := bv.New(w); dx.Covers(zero) {
				cands = append(cands, zero)
			}
			if one := bv.FromUint64(w, 1); dx.Covers(one) {
				cands = append(cands, one)
			}
			if len(cands) > 0 {
				return cands[s.rng.Intn(len(cands))], true
			}
			return bv.BitVector{}, false
		}
		if t.IsZero() { // s < x, so x != 0
			return s.sampleUnsigned(dx, 1, maxw)
		}
		// need t*x to fit in w bits
		return s.sampleUnsigned(dx, 1, maxw/tu)

	case Urem:
		if pos == 0 { // x % s = t for some s
			if dx.Covers(t) {
				return t, true // s = 0
			}
			// any x > 2t works with s = x - t
			if tu <= (maxw-1)/2 {
				return s.sampleUnsigned(dx, 2*tu+1, maxw)
			}
			return bv.BitVector{}, false
		}
		// s % x = t for some s: x = 0 (s = t) or x > t (s = t)
		if zero := bv.New(w); dx.Covers(zero) {
			return zero, true
		}
		if tu == maxw {
			return bv.BitVector{}, false
		}
		return s.sampleUnsigned(dx, tu+1, maxw)

	default:
		panic(fmt.Sprintf("ls: consistency on unexpected kind %s", n.kind))
	}
}
