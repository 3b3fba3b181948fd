package ls

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/smtkit/bvls/bv"
)

// drive re-attacks violated roots until all hold or the budget runs out.
func drive(t *testing.T, s *LocalSearch, budget int) bool {
	t.Helper()
	for i := 0; i < budget; i++ {
		sat := true
		for _, root := range s.Roots() {
			if s.Node(root).Assignment().IsFalse() {
				sat = false
				s.Move(root)
				break
			}
		}
		if sat {
			return true
		}
	}
	for _, root := range s.Roots() {
		if s.Node(root).Assignment().IsFalse() {
			return false
		}
	}
	return true
}

func TestMoveSolvesAddition(t *testing.T) {
	for seed := uint64(0); seed < 8; seed++ {
		s := newSearch(seed)
		x := s.Var(bv.FullDomain(8))
		y := s.Var(bv.FullDomain(8))
		sum := s.Op(Add, x, y)
		root := s.Op(Eq, sum, s.Const(bv.FromUint64(8, 77)))
		s.RegisterRoot(root)

		require.True(t, drive(t, s, 50), "seed %d", seed)
		got := s.Node(x).Assignment().Add(s.Node(y).Assignment())
		require.Equal(t, uint64(77), got.Uint64(), "seed %d", seed)
	}
}

func TestMoveSolvesMulWithConstantBits(t *testing.T) {
	s := newSearch(4)
	// x is even by domain, 3x == 6 forces x == 2
	x := s.Var(bv.FullDomain(4).FixBit(0, 0))
	mul := s.Op(Mul, x, s.Const(bv.FromUint64(4, 3)))
	root := s.Op(Eq, mul, s.Const(bv.FromUint64(4, 6)))
	s.RegisterRoot(root)

	require.True(t, drive(t, s, 50))
	require.Equal(t, uint64(2), s.Node(x).Assignment().Uint64())
}

func TestMoveSolvesThroughNot(t *testing.T) {
	for seed := uint64(0); seed < 8; seed++ {
		s := newSearch(seed)
		x := s.Var(bv.FullDomain(4))
		eq := s.Op(Eq, x, s.Const(bv.FromUint64(4, 11)))
		root := s.Op(Not, eq)
		s.RegisterRoot(root)

		require.True(t, drive(t, s, 50), "seed %d", seed)
		require.NotEqual(t, uint64(11), s.Node(x).Assignment().Uint64(), "seed %d", seed)
	}
}

func TestMoveSolvesInequalityChain(t *testing.T) {
	for seed := uint64(0); seed < 8; seed++ {
		s := newSearch(seed)
		x := s.Var(bv.FullDomain(8))
		y := s.Var(bv.FullDomain(8))
		lt := s.Op(Ult, x, y)
		gt := s.Op(Ult, s.Const(bv.FromUint64(8, 200)), x)
		s.RegisterRoot(lt)
		s.RegisterRoot(gt)

		require.True(t, drive(t, s, 200), "seed %d", seed)
		xa, ya := s.Node(x).Assignment().Uint64(), s.Node(y).Assignment().Uint64()
		require.Greater(t, xa, uint64(200), "seed %d", seed)
		require.Less(t, xa, ya, "seed %d", seed)
	}
}

// Scenario: a distinctness constraint over two fixed, unequal values has no
// free bits to flip; the walk must terminate stuck immediately.
func TestMoveStuckOnFixedDisequality(t *testing.T) {
	s := newSearch(1)
	a := s.Const(bv.FromUint64(4, 3))
	b := s.Const(bv.FromUint64(4, 5))
	eq := s.Op(Eq, a, b)
	s.RegisterRoot(eq)

	res := s.Move(eq)
	require.Equal(t, Stuck, res.Status)
	require.Equal(t, 0, res.Steps)
	require.Equal(t, "stuck", res.Status.String())
}

func TestMoveOnBooleanLeaf(t *testing.T) {
	s := newSearch(1)
	b := s.Var(bv.FullDomain(1))
	s.SetAssignment(b, bv.False())
	s.RegisterRoot(b)

	res := s.Move(b)
	require.Equal(t, Progress, res.Status)
	require.True(t, s.Node(b).Assignment().IsTrue())
}

func TestMoveRequiresBooleanRoot(t *testing.T) {
	s := newSearch(1)
	x := s.Var(bv.FullDomain(4))
	require.Panics(t, func() { s.Move(x) })
}

// Cone-of-influence completeness: after a leaf write plus Update, every
// ancestor holds exactly what forward evaluation of its children produces.
func TestConeUpdateCompleteness(t *testing.T) {
	s := newSearch(2)
	x := s.Var(bv.FullDomain(4))
	y := s.Var(bv.FullDomain(4))
	z := s.Var(bv.FullDomain(4))
	sum := s.Op(Add, x, y)
	mul := s.Op(Mul, sum, z)
	xor := s.Op(Xor, mul, x)
	root := s.Op(Eq, xor, s.Const(bv.FromUint64(4, 9)))
	s.RegisterRoot(root)

	s.SetAssignment(x, bv.FromUint64(4, 7))
	s.Update(x)

	av := func(id uint32) bv.BitVector { return s.Node(id).Assignment() }
	require.Equal(t, av(x).Add(av(y)), av(sum))
	require.Equal(t, av(sum).Mul(av(z)), av(mul))
	require.Equal(t, av(mul).Xor(av(x)), av(xor))
	require.Equal(t, av(xor).Eq(bv.FromUint64(4, 9)), av(root))
}

func TestUpdateEvaluatesEachAncestorOnce(t *testing.T) {
	s := newSearch(2)
	x := s.Var(bv.FullDomain(4))
	// diamond: both operands of the add share the same leaf
	sum := s.Op(Add, x, x)
	s.SetAssignment(x, bv.FromUint64(4, 5))
	s.Update(x)
	require.Equal(t, uint64(10), s.Node(sum).Assignment().Uint64())
}

func TestStageRewriteAndNormalize(t *testing.T) {
	s := newSearch(3)
	x := s.Var(bv.FullDomain(4))
	y := s.Var(bv.FullDomain(4))
	sum := s.Op(Add, x, y)
	root := s.Op(Eq, sum, s.Const(bv.FromUint64(4, 6)))
	s.RegisterRoot(root)

	// rewrite the addition into a xor in place
	s.StageRewrite(sum, Xor, x, y)

	// ids are stale inside the rewrite window
	require.Panics(t, func() { s.Update(x) })
	require.Panics(t, func() { s.Move(root) })

	s.Normalize()
	require.Equal(t, Xor, s.Node(sum).Kind())
	require.Equal(t, s.Node(x).Assignment().Xor(s.Node(y).Assignment()), s.Node(sum).Assignment())

	// post-order restored for every reachable edge
	for _, id := range []uint32{sum, root} {
		n := s.Node(id)
		for pos := uint32(0); pos < n.Arity(); pos++ {
			require.Less(t, s.Node(n.Child(pos)).NormalizedID(), n.NormalizedID())
		}
	}

	// and the search still works on the rewritten DAG
	require.True(t, drive(t, s, 50))
	got := s.Node(x).Assignment().Xor(s.Node(y).Assignment())
	require.Equal(t, uint64(6), got.Uint64())
}

// Nodes above no registered root still take part in cone updates; after a
// normalization their ids must stay above their children's, or Update would
// evaluate them against stale child values.
func TestNormalizeCoversUnregisteredAncestors(t *testing.T) {
	s := newSearch(5)
	x := s.Var(bv.FullDomain(4))
	y := s.Var(bv.FullDomain(4))
	r := s.Op(Not, x)
	wide := s.Op(Add, r, r) // observed, but under no registered root
	root := s.Op(Eq, r, y)
	s.RegisterRoot(root)

	s.StageRewrite(root, Ult, r, y)
	s.Normalize()

	require.Greater(t, s.Node(wide).NormalizedID(), s.Node(r).NormalizedID())

	s.SetAssignment(x, bv.FromUint64(4, 0b1101))
	s.Update(x)
	want := s.Node(x).Assignment().Not()
	require.Equal(t, want.Add(want), s.Node(wide).Assignment())
}

func TestNormalizeRefreshesValueFlags(t *testing.T) {
	s := newSearch(3)
	a := s.Const(bv.FromUint64(4, 3))
	b := s.Const(bv.FromUint64(4, 5))
	x := s.Var(bv.FullDomain(4))
	sum := s.Op(Add, a, x)
	s.RegisterRoot(s.Op(Eq, sum, b))
	require.False(t, s.Node(sum).IsValue())

	s.StageRewrite(sum, Add, a, b)
	s.Normalize()
	require.True(t, s.Node(sum).AllValue())
	require.True(t, s.Node(sum).IsValue())
	require.Equal(t, uint64(8), s.Node(sum).Assignment().Uint64())
}

func TestMoveDeterministicPerSeed(t *testing.T) {
	run := func(seed uint64) (uint64, uint64) {
		s := newSearch(seed)
		x := s.Var(bv.FullDomain(8))
		y := s.Var(bv.FullDomain(8))
		root := s.Op(Eq, s.Op(Add, x, y), s.Const(bv.FromUint64(8, 33)))
		s.RegisterRoot(root)
		drive(t, s, 50)
		return s.Node(x).Assignment().Uint64(), s.Node(y).Assignment().Uint64()
	}
	x1, y1 := run(99)
	x2, y2 := run(99)
	require.Equal(t, x1, x2)
	require.Equal(t, y1, y2)
}
