package ls

import "github.com/smtkit/bvls/bv"

// selectPathNonConst returns the index of the single non-value child, or -1
// with the candidate indices when more than one child could change. At
// least one child must be non-value; callers check AllValue first.
func (s *LocalSearch) selectPathNonConst(n *Node) (int, []uint32) {
	var cands []uint32
	for pos, c := range n.children {
		if !s.nodes[c].isValue {
			cands = append(cands, uint32(pos))
		}
	}
	if len(cands) == 0 {
		panic("ls: path selection on all-value node")
	}
	if len(cands) == 1 {
		return int(cands[0]), cands
	}
	return -1, cands
}

// IsEssential reports whether the child at pos is essential for target t:
// no other child is invertible for t, so this one must change. The checks
// run in essential mode, which neither populates the inverse cache nor
// consults bounds derived from enclosing inequalities (the latter can trap
// the search in a cycle).
func (s *LocalSearch) IsEssential(id uint32, t bv.BitVector, pos uint32) bool {
	n := s.Node(id)
	for other := uint32(0); other < n.Arity(); other++ {
		if other == pos {
			continue
		}
		if s.IsInvertible(id, t, other, true) {
			return false
		}
	}
	return true
}

// SelectPath chooses the child the target propagates into. A single
// non-value child wins outright; otherwise, with probability
// ProbPickEssential, a random essential candidate is preferred, falling
// back to a uniform pick among the non-value children.
func (s *LocalSearch) SelectPath(id uint32, t bv.BitVector) uint32 {
	n := s.Node(id)
	pos, cands := s.selectPathNonConst(n)
	if pos >= 0 {
		return uint32(pos)
	}
	if !s.cfg.DisableEssential && s.rng.Flip(s.cfg.ProbPickEssential) {
		var essential []uint32
		for _, c := range cands {
			if s.IsEssential(id, t, c) {
				essential = append(essential, c)
			}
		}
		if len(essential) > 0 {
			return essential[s.rng.Intn(len(essential))]
		}
	}
	return cands[s.rng.Intn(len(cands))]
}
