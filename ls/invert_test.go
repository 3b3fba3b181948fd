package ls

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"github.com/smtkit/bvls/bv"
)

// Scenario from the upstream search: 4-bit addition with target 5 and the
// left operand fixed at 2 must invert to exactly 3.
func TestAddInverseScenario(t *testing.T) {
	s := newSearch(1)
	left := s.Const(bv.FromUint64(4, 2))
	x := s.Var(bv.FullDomain(4))
	sum := s.Op(Add, left, x)

	tv := bv.FromUint64(4, 5)
	require.True(t, s.IsInvertible(sum, tv, 1, false))
	inv := s.InverseValue(sum, tv, 1)
	require.Equal(t, uint64(3), inv.Uint64())

	s.SetAssignment(x, inv)
	s.Evaluate(sum)
	require.True(t, s.Node(sum).Assignment().Equal(tv))
}

func TestMulInverseOddSibling(t *testing.T) {
	s := newSearch(1)
	three := s.Const(bv.FromUint64(4, 3))
	x := s.Var(bv.FullDomain(4))
	mul := s.Op(Mul, x, three)

	tv := bv.FromUint64(4, 9)
	require.True(t, s.IsInvertible(mul, tv, 0, false))
	require.Equal(t, uint64(3), s.InverseValue(mul, tv, 0).Uint64())
}

func TestUdivByZeroInvertibility(t *testing.T) {
	s := newSearch(1)
	zero := s.Const(bv.New(4))
	x := s.Var(bv.FullDomain(4))
	div := s.Op(Udiv, x, zero)

	require.True(t, s.IsInvertible(div, bv.Ones(4), 0, false))
	require.False(t, s.IsInvertible(div, bv.FromUint64(4, 3), 0, false),
		"udiv by zero only ever yields all-ones")
}

func TestInvertibilityRespectsDomain(t *testing.T) {
	s := newSearch(1)
	two := s.Const(bv.FromUint64(4, 2))
	// x's low bit is fixed to 0, so x = 3 is unreachable
	x := s.Var(bv.FullDomain(4).FixBit(0, 0))
	sum := s.Op(Add, two, x)
	require.False(t, s.IsInvertible(sum, bv.FromUint64(4, 5), 1, false))
	require.True(t, s.IsInvertible(sum, bv.FromUint64(4, 6), 1, false))
}

// Stamped caches: an inverse computed under an old sibling assignment must
// never be served after the node was re-evaluated.
func TestInverseCacheCoherence(t *testing.T) {
	s := newSearch(1)
	x := s.Var(bv.FullDomain(4))
	y := s.Var(bv.FullDomain(4))
	s.SetAssignment(x, bv.FromUint64(4, 2))
	sum := s.Op(Add, x, y)

	tv := bv.FromUint64(4, 5)
	require.True(t, s.IsInvertible(sum, tv, 1, false))
	require.Equal(t, uint64(3), s.InverseValue(sum, tv, 1).Uint64())

	s.SetAssignment(x, bv.FromUint64(4, 4))
	s.Update(x)
	require.True(t, s.IsInvertible(sum, tv, 1, false))
	require.Equal(t, uint64(1), s.InverseValue(sum, tv, 1).Uint64())
}

func TestConsistentCacheIndependentFromInverse(t *testing.T) {
	s := newSearch(1)
	x := s.Var(bv.FullDomain(4))
	y := s.Var(bv.FullDomain(4))
	s.SetAssignment(y, bv.FromUint64(4, 0))
	and := s.Op(And, x, y)

	tv := bv.FromUint64(4, 0b1010)
	// not invertible: the sibling masks the target out
	require.False(t, s.IsInvertible(and, tv, 0, false))
	// but consistent: some sibling could pass the bits through
	require.True(t, s.IsConsistent(and, tv, 0))
	v := s.ConsistentValue(and, tv, 0)
	require.Equal(t, tv.Uint64(), v.Uint64()&tv.Uint64(), "consistent value contains t's ones")
}

var binaryKinds = []Kind{Add, And, Ashr, Concat, Eq, Mul, Shl, Shr, Slt, Udiv, Ult, Urem, Xor}

func targetWidth(kind Kind) uint32 {
	switch kind {
	case Eq, Ult, Slt:
		return 1
	case Concat:
		return 8
	default:
		return 4
	}
}

// forward semantics replicated on raw values, for brute-force checks
func apply(kind Kind, a, b bv.BitVector) bv.BitVector {
	switch kind {
	case Add:
		return a.Add(b)
	case And:
		return a.And(b)
	case Ashr:
		return a.Ashr(b)
	case Concat:
		return a.Concat(b)
	case Eq:
		return a.Eq(b)
	case Mul:
		return a.Mul(b)
	case Shl:
		return a.Shl(b)
	case Shr:
		return a.Shr(b)
	case Slt:
		return a.Slt(b)
	case Udiv:
		return a.Udiv(b)
	case Ult:
		return a.Ult(b)
	case Urem:
		return a.Urem(b)
	case Xor:
		return a.Xor(b)
	default:
		panic("unexpected kind")
	}
}

type binaryFixture struct {
	s    *LocalSearch
	op   uint32
	leaf [2]uint32
}

func buildBinary(kind Kind, xa, ya, seed uint64) binaryFixture {
	cfg := DefaultConfig()
	cfg.Seed = seed
	s := New(cfg)
	x := s.Var(bv.FullDomain(4))
	y := s.Var(bv.FullDomain(4))
	s.SetAssignment(x, bv.FromUint64(4, xa))
	s.SetAssignment(y, bv.FromUint64(4, ya))
	op := s.Op(kind, x, y)
	return binaryFixture{s: s, op: op, leaf: [2]uint32{x, y}}
}

// Invertibility soundness: whenever IsInvertible says yes, assigning the
// inverse value to that child and re-evaluating the parent yields exactly t.
func TestInvertibilitySoundness(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 400
	properties := gopter.NewProperties(parameters)

	properties.Property("inverse reaches the target", prop.ForAll(
		func(kindIdx int, xa, ya, traw, seed uint64, posRaw int) bool {
			kind := binaryKinds[kindIdx]
			pos := uint32(posRaw & 1)
			f := buildBinary(kind, xa, ya, seed)
			tv := bv.FromUint64(targetWidth(kind), traw)

			if !f.s.IsInvertible(f.op, tv, pos, false) {
				return true
			}
			inv := f.s.InverseValue(f.op, tv, pos)
			f.s.SetAssignment(f.leaf[pos], inv)
			f.s.Update(f.leaf[pos])
			return f.s.Node(f.op).Assignment().Equal(tv)
		},
		gen.IntRange(0, len(binaryKinds)-1),
		gen.UInt64Range(0, 15),
		gen.UInt64Range(0, 15),
		gen.UInt64Range(0, 255),
		gen.UInt64Range(0, 1<<20),
		gen.IntRange(0, 1),
	))

	properties.TestingRun(t)
}

// Consistency soundness: whenever IsConsistent says yes, some sibling
// assignment lets the operator reach t with the consistent value in place.
func TestConsistencySoundness(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 400
	properties := gopter.NewProperties(parameters)

	properties.Property("consistent value is completable", prop.ForAll(
		func(kindIdx int, xa, ya, traw, seed uint64, posRaw int) bool {
			kind := binaryKinds[kindIdx]
			pos := uint32(posRaw & 1)
			f := buildBinary(kind, xa, ya, seed)
			tv := bv.FromUint64(targetWidth(kind), traw)

			if !f.s.IsConsistent(f.op, tv, pos) {
				return true
			}
			v := f.s.ConsistentValue(f.op, tv, pos)
			for sib := uint64(0); sib < 16; sib++ {
				sv := bv.FromUint64(4, sib)
				var got bv.BitVector
				if pos == 0 {
					got = apply(kind, v, sv)
				} else {
					got = apply(kind, sv, v)
				}
				if got.Equal(tv) {
					return true
				}
			}
			return false
		},
		gen.IntRange(0, len(binaryKinds)-1),
		gen.UInt64Range(0, 15),
		gen.UInt64Range(0, 15),
		gen.UInt64Range(0, 255),
		gen.UInt64Range(0, 1<<20),
		gen.IntRange(0, 1),
	))

	properties.TestingRun(t)
}

// Unary and immediate operators, checked exhaustively over 4-bit inputs.
func TestUnaryInverseExhaustive(t *testing.T) {
	for xa := uint64(0); xa < 16; xa++ {
		for traw := uint64(0); traw < 16; traw++ {
			s := newSearch(xa<<4 | traw)
			x := s.Var(bv.FullDomain(4))
			s.SetAssignment(x, bv.FromUint64(4, xa))

			not := s.Op(Not, x)
			ext := s.OpIdx(Extract, x, 2, 1)
			sxt := s.OpExt(Sext, x, 4)

			tv := bv.FromUint64(4, traw)
			require.True(t, s.IsInvertible(not, tv, 0, false))
			inv := s.InverseValue(not, tv, 0)
			require.Equal(t, tv, inv.Not())

			tv2 := bv.FromUint64(2, traw&3)
			require.True(t, s.IsInvertible(ext, tv2, 0, false))
			inv2 := s.InverseValue(ext, tv2, 0)
			require.Equal(t, tv2, inv2.Extract(2, 1))

			tv8 := bv.FromUint64(4, traw).Sext(4)
			require.True(t, s.IsInvertible(sxt, tv8, 0, false))
			inv3 := s.InverseValue(sxt, tv8, 0)
			require.Equal(t, tv8, inv3.Sext(4))
		}
	}
}

func TestSextNotInvertibleOnBadExtension(t *testing.T) {
	s := newSearch(1)
	x := s.Var(bv.FullDomain(4))
	sxt := s.OpExt(Sext, x, 4)
	// 0x5f sign-extends from no 4-bit value
	require.False(t, s.IsInvertible(sxt, bv.FromUint64(8, 0x5f), 0, false))
}

func TestIteInvertibility(t *testing.T) {
	s := newSearch(3)
	c := s.Var(bv.FullDomain(1))
	a := s.Var(bv.FullDomain(4))
	b := s.Var(bv.FullDomain(4))
	s.SetAssignment(c, bv.True())
	s.SetAssignment(a, bv.FromUint64(4, 3))
	s.SetAssignment(b, bv.FromUint64(4, 9))
	ite := s.Op(Ite, c, a, b)

	tv := bv.FromUint64(4, 9)
	// flipping the condition to false selects b == 9
	require.True(t, s.IsInvertible(ite, tv, 0, false))
	require.True(t, s.InverseValue(ite, tv, 0).IsFalse())

	// the taken branch can be set directly
	require.True(t, s.IsInvertible(ite, tv, 1, false))
	require.Equal(t, uint64(9), s.InverseValue(ite, tv, 1).Uint64())

	// the untaken branch cannot reach a target the taken one misses
	require.False(t, s.IsInvertible(ite, bv.FromUint64(4, 7), 2, false))
}
