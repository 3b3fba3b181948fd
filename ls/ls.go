package ls

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
	"github.com/rs/zerolog"
	"golang.org/x/exp/slices"

	"github.com/smtkit/bvls/bv"
	"github.com/smtkit/bvls/debug"
	"github.com/smtkit/bvls/logger"
	"github.com/smtkit/bvls/profile"
)

// Config carries the process tunables of one local-search run.
type Config struct {
	// ProbPickEssential is the per-mille probability of preferring an
	// essential input during path selection.
	ProbPickEssential uint32
	// DisableEssential switches path selection to purely random.
	DisableEssential bool
	// Seed of the randomness source; runs are deterministic per seed.
	Seed uint64
}

// DefaultConfig returns the tunables used by the upstream search.
func DefaultConfig() Config {
	return Config{ProbPickEssential: 990}
}

// Status is the terminal state of one propagation attempt.
type Status uint8

const (
	// Progress: a leaf assignment changed and the cone was re-evaluated.
	Progress Status = iota
	// Stuck: no child was invertible or consistent along the walk.
	Stuck
)

func (s Status) String() string {
	if s == Progress {
		return "progress"
	}
	return "stuck"
}

// Result reports the outcome of one Move.
type Result struct {
	Status Status
	// Steps is the number of downward steps taken.
	Steps int
	// Leaf is the arena id of the updated leaf, valid when Status is
	// Progress.
	Leaf uint32
}

// LocalSearch owns the constraint DAG of one run: the node arena, parent
// lists, root set and randomness source. It is not safe for concurrent use;
// parallel restarts must each own their own instance.
type LocalSearch struct {
	cfg Config
	rng *bv.RNG
	log zerolog.Logger

	nodes   []Node
	parents [][]uint32
	roots   []uint32

	// dirty is set between StageRewrite and Normalize; ids must not be
	// used for ordering while it holds.
	dirty bool
}

// New returns an empty search with the given tunables.
func New(cfg Config) *LocalSearch {
	return &LocalSearch{
		cfg: cfg,
		rng: bv.NewRNG(cfg.Seed),
		log: logger.Logger().With().Str("component", "ls").Logger(),
	}
}

// RNG exposes the run's randomness source, e.g. for initial assignments.
func (s *LocalSearch) RNG() *bv.RNG { return s.rng }

// Node returns the node with the given arena id.
func (s *LocalSearch) Node(id uint32) *Node {
	if int(id) >= len(s.nodes) {
		panic(fmt.Sprintf("ls: node id %d out of range", id))
	}
	return &s.nodes[id]
}

// Len returns the number of nodes in the arena.
func (s *LocalSearch) Len() int { return len(s.nodes) }

func (s *LocalSearch) alloc(n Node) uint32 {
	id := uint32(len(s.nodes))
	n.id = uint64(id)
	n.normalizedID = uint64(id)
	s.nodes = append(s.nodes, n)
	s.parents = append(s.parents, nil)
	for _, c := range n.children {
		s.parents[c] = append(s.parents[c], id)
	}
	return id
}

// Var creates a leaf with the given constant-bit domain; its initial
// assignment is a random element of the domain.
func (s *LocalSearch) Var(d bv.Domain) uint32 {
	v := d.Random(s.rng)
	return s.alloc(Node{
		kind:       Const,
		assignment: v,
		domain:     d,
		isValue:    d.IsFixed(),
		allValue:   true,
	})
}

// Const creates a fully fixed leaf holding v.
func (s *LocalSearch) Const(v bv.BitVector) uint32 {
	return s.alloc(Node{
		kind:       Const,
		assignment: v,
		domain:     bv.FixedDomain(v),
		isValue:    true,
		allValue:   true,
	})
}

// Op creates an interior node. Children must already exist, so ascending
// arena ids are a post-order of the DAG by construction. Panics on arity or
// width mismatches: those are DAG construction bugs, not solver outcomes.
func (s *LocalSearch) Op(kind Kind, children ...uint32) uint32 {
	if kind == Const {
		panic("ls: Op with Const kind, use Var or Const")
	}
	if kind == Extract || kind == Sext {
		panic(fmt.Sprintf("ls: %s requires immediates, use OpIdx or OpExt", kind))
	}
	return s.op(kind, 0, 0, children...)
}

// OpIdx creates an Extract node over bits hi..lo of child.
func (s *LocalSearch) OpIdx(kind Kind, child, hi, lo uint32) uint32 {
	if kind != Extract {
		panic(fmt.Sprintf("ls: OpIdx with %s kind", kind))
	}
	return s.op(kind, hi, lo, child)
}

// OpExt creates a Sext node extending child by n bits.
func (s *LocalSearch) OpExt(kind Kind, child, n uint32) uint32 {
	if kind != Sext {
		panic(fmt.Sprintf("ls: OpExt with %s kind", kind))
	}
	return s.op(kind, n, 0, child)
}

func (s *LocalSearch) op(kind Kind, imm0, imm1 uint32, children ...uint32) uint32 {
	if uint32(len(children)) != kind.Arity() {
		panic(fmt.Sprintf("ls: %s wants %d children, got %d", kind, kind.Arity(), len(children)))
	}
	n := Node{kind: kind, children: children, imm0: imm0, imm1: imm1}
	allValue := true
	for _, c := range children {
		if int(c) >= len(s.nodes) {
			panic(fmt.Sprintf("ls: child id %d does not exist", c))
		}
		if !s.nodes[c].isValue {
			allValue = false
		}
	}
	n.allValue = allValue
	n.assignment = s.forward(&n)
	if allValue {
		n.domain = bv.FixedDomain(n.assignment)
	} else {
		n.domain = bv.FullDomain(n.assignment.Width())
	}
	n.isValue = n.domain.IsFixed()
	return s.alloc(n)
}

// RegisterRoot marks a width-1 node as a top-level constraint.
func (s *LocalSearch) RegisterRoot(id uint32) {
	if s.Node(id).assignment.Width() != 1 {
		panic(fmt.Sprintf("ls: root %d is not a boolean node", id))
	}
	s.roots = append(s.roots, id)
}

// Roots returns the registered top-level constraints.
func (s *LocalSearch) Roots() []uint32 { return s.roots }

// SetAssignment overwrites a leaf's assignment. Interior nodes are updated
// only through evaluation; calling this on one is a construction bug.
func (s *LocalSearch) SetAssignment(id uint32, v bv.BitVector) {
	n := s.Node(id)
	if n.kind != Const {
		panic(fmt.Sprintf("ls: SetAssignment on interior %s node %d", n.kind, id))
	}
	debug.Assert(n.domain.Covers(v), "ls: assignment outside leaf domain")
	n.assignment = v
	n.touch()
}

// Evaluate recomputes the node's assignment from its children. No-op on
// leaves.
func (s *LocalSearch) Evaluate(id uint32) {
	n := s.Node(id)
	if n.kind == Const {
		return
	}
	n.assignment = s.forward(n)
	n.touch()
}

// Update runs the cone-of-influence re-evaluation after the node's
// assignment changed: every ancestor is evaluated exactly once, in strictly
// ascending normalized-id order so children are always up to date before
// their parents.
func (s *LocalSearch) Update(id uint32) {
	if s.dirty {
		panic("ls: Update during unfinished rewrite, call Normalize first")
	}
	cone := bitset.New(uint(len(s.nodes)))
	queue := []uint32{id}
	for len(queue) > 0 {
		cur := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		for _, p := range s.parents[cur] {
			if !cone.Test(uint(p)) {
				cone.Set(uint(p))
				queue = append(queue, p)
			}
		}
	}
	order := make([]uint32, 0, int(cone.Count()))
	for i, ok := cone.NextSet(0); ok; i, ok = cone.NextSet(i + 1) {
		order = append(order, uint32(i))
	}
	slices.SortFunc(order, func(a, b uint32) bool {
		return s.nodes[a].normalizedID < s.nodes[b].normalizedID
	})
	for _, a := range order {
		s.Evaluate(a)
	}
	s.log.Debug().Uint32("node", id).Int("cone", len(order)).Msg("cone update")
}

// Move runs one propagation attempt from a violated top-level constraint
// down to a leaf (WalkDown in the one-attempt state machine). The driver is
// expected to pass a currently-false root; the walk targets true and lets
// the operator conditions invert through negations and inequalities.
func (s *LocalSearch) Move(root uint32) Result {
	if s.dirty {
		panic("ls: Move during unfinished rewrite, call Normalize first")
	}
	n := s.Node(root)
	if n.assignment.Width() != 1 {
		panic(fmt.Sprintf("ls: Move root %d is not a boolean node", root))
	}

	t := bv.True()
	cur := root
	steps := 0
	for {
		n = s.Node(cur)
		if n.kind == Const {
			if n.isValue {
				// fully fixed leaf, nothing to change
				return Result{Status: Stuck, Steps: steps}
			}
			debug.Assert(n.domain.Covers(t), "ls: propagated target outside leaf domain")
			s.SetAssignment(cur, t)
			s.Update(cur)
			s.log.Trace().Uint32("leaf", cur).Stringer("value", t).Int("steps", steps).Msg("move done")
			return Result{Status: Progress, Steps: steps, Leaf: cur}
		}
		if n.allValue {
			return Result{Status: Stuck, Steps: steps}
		}

		pos := s.SelectPath(cur, t)
		profile.RecordStep(n.kind.String(), pos)
		s.log.Trace().Uint32("node", cur).Str("kind", n.kind.String()).
			Uint32("pos", pos).Stringer("target", t).Msg("walk down")

		switch {
		case s.IsInvertible(cur, t, pos, false):
			t = s.InverseValue(cur, t, pos)
		case s.IsConsistent(cur, t, pos):
			t = s.ConsistentValue(cur, t, pos)
		default:
			return Result{Status: Stuck, Steps: steps}
		}
		cur = n.children[pos]
		steps++
	}
}

// StageRewrite destructively replaces a node's operator and children in
// place, keeping its identity. The arena is dirty afterwards: ids are stale
// for ordering until Normalize runs.
func (s *LocalSearch) StageRewrite(id uint32, kind Kind, children ...uint32) {
	if kind == Const {
		panic("ls: cannot rewrite a node into a leaf")
	}
	if uint32(len(children)) != kind.Arity() {
		panic(fmt.Sprintf("ls: %s wants %d children, got %d", kind, kind.Arity(), len(children)))
	}
	n := s.Node(id)
	for _, c := range n.children {
		s.parents[c] = removeParent(s.parents[c], id)
	}
	n.kind = kind
	n.children = children
	for _, c := range children {
		s.parents[c] = append(s.parents[c], id)
	}
	n.touch()
	s.dirty = true
}

func removeParent(ps []uint32, id uint32) []uint32 {
	for i := range ps {
		if ps[i] == id {
			return append(ps[:i], ps[i+1:]...)
		}
	}
	return ps
}

// Normalize recomputes normalized ids in a post-order DAG traversal and
// refreshes assignments and value flags, restoring the ordering invariant
// after destructive rewriting. Roots are numbered first, then the rest of
// the arena in allocation order: nodes above no registered root still take
// part in cone updates and need ids greater than their children's.
func (s *LocalSearch) Normalize() {
	next := uint64(0)
	visited := bitset.New(uint(len(s.nodes)))
	var visit func(id uint32)
	visit = func(id uint32) {
		if visited.Test(uint(id)) {
			return
		}
		visited.Set(uint(id))
		n := &s.nodes[id]
		allValue := true
		for _, c := range n.children {
			visit(c)
			if !s.nodes[c].isValue {
				allValue = false
			}
		}
		n.normalizedID = next
		next++
		if n.kind == Const {
			return
		}
		n.allValue = allValue
		n.assignment = s.forward(n)
		if allValue {
			n.domain = bv.FixedDomain(n.assignment)
		} else {
			n.domain = bv.FullDomain(n.assignment.Width())
		}
		n.isValue = n.domain.IsFixed()
		n.touch()
	}
	for _, r := range s.roots {
		visit(r)
	}
	for id := range s.nodes {
		visit(uint32(id))
	}
	s.dirty = false
}
