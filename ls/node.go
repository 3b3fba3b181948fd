package ls

import (
	"fmt"

	"github.com/smtkit/bvls/bv"
)

// cachedValue is a stamped inverse or consistent value. It is valid only
// while the stamp (target, position, node generation) still matches; the
// generation bumps on every assignment or domain write, so stale entries
// miss instead of being served.
type cachedValue struct {
	valid bool
	val   bv.BitVector
	t     bv.BitVector
	pos   uint32
	gen   uint64
}

func (c *cachedValue) matches(t bv.BitVector, pos uint32, gen uint64) bool {
	return c.valid && c.gen == gen && c.pos == pos && c.t.Equal(t)
}

// Node is a vertex of the constraint DAG. Nodes live in the LocalSearch
// arena and reference their children by arena id; they are created through
// Var, Const and Op and share the lifetime of the arena.
type Node struct {
	kind     Kind
	children []uint32

	// extract hi/lo, or the sext extension count in imm0
	imm0, imm1 uint32

	assignment bv.BitVector
	domain     bv.Domain

	id           uint64
	normalizedID uint64
	gen          uint64

	isValue  bool
	allValue bool

	inverse    cachedValue
	consistent cachedValue
}

// Kind returns the operator kind.
func (n *Node) Kind() Kind { return n.kind }

// IsInequality reports whether this is an order-comparison node.
func (n *Node) IsInequality() bool { return n.kind.IsInequality() }

// IsNot reports whether this is a bit-wise negation node.
func (n *Node) IsNot() bool { return n.kind == Not }

// Arity returns the number of children.
func (n *Node) Arity() uint32 { return uint32(len(n.children)) }

// Child returns the arena id of the child at pos.
func (n *Node) Child(pos uint32) uint32 {
	if pos >= uint32(len(n.children)) {
		panic(fmt.Sprintf("ls: child index %d out of range for %s node", pos, n.kind))
	}
	return n.children[pos]
}

// Assignment returns the node's current value.
func (n *Node) Assignment() bv.BitVector { return n.assignment }

// Domain returns the node's constant-bit domain.
func (n *Node) Domain() bv.Domain { return n.domain }

// IsValue reports whether the node's domain is fully fixed.
func (n *Node) IsValue() bool { return n.isValue }

// AllValue reports whether every child is a value.
func (n *Node) AllValue() bool { return n.allValue }

// IsValueFalse reports whether this node is a fixed width-1 value denoting
// false; used to detect violated constraints.
func (n *Node) IsValueFalse() bool {
	return n.isValue && n.assignment.IsFalse()
}

// ID returns the node id; ascending ids are a DAG post-order as long as no
// destructive rewrite is pending.
func (n *Node) ID() uint64 { return n.id }

// SetID overwrites the node id. Reserved for the driver's rewrite phase.
func (n *Node) SetID(id uint64) { n.id = id }

// NormalizedID returns the post-normalization id. Stale between a staged
// rewrite and the next Normalize call; never order by it in that window.
func (n *Node) NormalizedID() uint64 { return n.normalizedID }

// SetNormalizedID overwrites the normalized id.
func (n *Node) SetNormalizedID(id uint64) { n.normalizedID = id }

// ExtractHi and ExtractLo return the extract bounds of an Extract node.
func (n *Node) ExtractHi() uint32 { return n.imm0 }
func (n *Node) ExtractLo() uint32 { return n.imm1 }

// SextN returns the extension count of a Sext node.
func (n *Node) SextN() uint32 { return n.imm0 }

// touch bumps the generation, invalidating stamped caches.
func (n *Node) touch() { n.gen++ }

// String renders the node for tracing.
func (n *Node) String() string {
	switch n.kind {
	case Extract:
		return fmt.Sprintf("[%d] extract[%d:%d] %s", n.id, n.imm0, n.imm1, n.assignment)
	case Sext:
		return fmt.Sprintf("[%d] sext[%d] %s", n.id, n.imm0, n.assignment)
	default:
		return fmt.Sprintf("[%d] %s %s", n.id, n.kind, n.assignment)
	}
}

// Log returns diagnostic lines for the node and its direct children.
func (s *LocalSearch) Log(id uint32) []string {
	n := s.Node(id)
	lines := []string{fmt.Sprintf("%s domain %s", n.String(), n.domain)}
	for pos, c := range n.children {
		lines = append(lines, fmt.Sprintf("  child %d: %s", pos, s.Node(c).String()))
	}
	return lines
}
