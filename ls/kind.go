// Package ls implements propagation-based local search over a DAG of
// bit-vector operators: essential-input detection, invertibility and
// consistency checks with constant bits, inverse-value computation, path
// selection and cone-of-influence re-evaluation.
package ls

import "fmt"

// Kind identifies a node's operator. Const doubles as the leaf marker:
// a leaf is a Const node whose domain may still carry free bits.
type Kind uint8

const (
	Const Kind = iota
	Add
	And
	Ashr
	Concat
	Eq
	Extract
	Ite
	Mul
	Not
	Sext
	Shl
	Shr
	Slt
	Udiv
	Ult
	Urem
	Xor
	numKinds
)

var kindNames = [numKinds]string{
	Const:   "const",
	Add:     "add",
	And:     "and",
	Ashr:    "ashr",
	Concat:  "concat",
	Eq:      "eq",
	Extract: "extract",
	Ite:     "ite",
	Mul:     "mul",
	Not:     "not",
	Sext:    "sext",
	Shl:     "shl",
	Shr:     "shr",
	Slt:     "slt",
	Udiv:    "udiv",
	Ult:     "ult",
	Urem:    "urem",
	Xor:     "xor",
}

// String returns the operator name.
func (k Kind) String() string {
	if k < numKinds {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind<%d>", uint8(k))
}

var kindArity = [numKinds]uint32{
	Const:   0,
	Add:     2,
	And:     2,
	Ashr:    2,
	Concat:  2,
	Eq:      2,
	Extract: 1,
	Ite:     3,
	Mul:     2,
	Not:     1,
	Sext:    1,
	Shl:     2,
	Shr:     2,
	Slt:     2,
	Udiv:    2,
	Ult:     2,
	Urem:    2,
	Xor:     2,
}

// Arity returns the fixed number of children for the kind.
func (k Kind) Arity() uint32 {
	if k >= numKinds {
		panic(fmt.Sprintf("ls: unknown kind %d", uint8(k)))
	}
	return kindArity[k]
}

// IsInequality reports whether the kind is an order comparison.
func (k Kind) IsInequality() bool {
	return k == Ult || k == Slt
}
