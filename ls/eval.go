package ls

import (
	"fmt"

	"github.com/smtkit/bvls/bv"
)

// forward computes the node's value from its children's current assignments.
func (s *LocalSearch) forward(n *Node) bv.BitVector {
	child := func(pos int) bv.BitVector {
		return s.nodes[n.children[pos]].assignment
	}
	switch n.kind {
	case Const:
		return n.assignment
	case Add:
		return child(0).Add(child(1))
	case And:
		return child(0).And(child(1))
	case Ashr:
		return child(0).Ashr(child(1))
	case Concat:
		return child(0).Concat(child(1))
	case Eq:
		return child(0).Eq(child(1))
	case Extract:
		return child(0).Extract(n.imm0, n.imm1)
	case Ite:
		if child(0).IsTrue() {
			return child(1)
		}
		return child(2)
	case Mul:
		return child(0).Mul(child(1))
	case Not:
		return child(0).Not()
	case Sext:
		return child(0).Sext(n.imm0)
	case Shl:
		return child(0).Shl(child(1))
	case Shr:
		return child(0).Shr(child(1))
	case Slt:
		return child(0).Slt(child(1))
	case Udiv:
		return child(0).Udiv(child(1))
	case Ult:
		return child(0).Ult(child(1))
	case Urem:
		return child(0).Urem(child(1))
	case Xor:
		return child(0).Xor(child(1))
	default:
		panic(fmt.Sprintf("ls: forward on unknown kind %s", n.kind))
	}
}
