package exec

import (
	"context"

	"github.com/tachyondb/tachyon/errs"
	"github.com/tachyondb/tachyon/value"
)

// BinaryOp identifies an arithmetic or comparison operator shared by
// ScalarToScalar, VectorToScalar, and VectorToVector nodes.
type BinaryOp uint8

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpEQ
	OpLT
)

func apply(op BinaryOp, lhs value.Value, lt value.Type, rhs value.Value, rt value.Type) (value.Value, value.Type, error) {
	switch op {
	case OpAdd:
		v, t := value.Add(lhs, lt, rhs, rt)
		return v, t, nil
	case OpSub:
		v, t := value.Sub(lhs, lt, rhs, rt)
		return v, t, nil
	case OpMul:
		v, t := value.Mul(lhs, lt, rhs, rt)
		return v, t, nil
	case OpDiv:
		return value.Div(lhs, lt, rhs, rt)
	case OpMod:
		return value.Mod(lhs, lt, rhs, rt)
	case OpEQ:
		if value.Equal(lhs, lt, rhs, rt) {
			return value.FromU64(1), value.U64, nil
		}
		return value.FromU64(0), value.U64, nil
	case OpLT:
		if value.Less(lhs, lt, rhs, rt) {
			return value.FromU64(1), value.U64, nil
		}
		return value.FromU64(0), value.U64, nil
	default:
		return value.Value{}, 0, errs.ErrUnsupportedExpression
	}
}

// ScalarToScalar combines two scalar-returning children with a BinaryOp,
// producing a new evolving scalar.
type ScalarToScalar struct {
	base
	op       BinaryOp
	lhs, rhs Node
	vt       value.Type
}

// NewScalarToScalar composes lhs op rhs into a scalar node.
func NewScalarToScalar(op BinaryOp, lhs, rhs Node) *ScalarToScalar {
	return &ScalarToScalar{op: op, lhs: lhs, rhs: rhs, vt: promoteResultType(op, lhs.ValueType(), rhs.ValueType())}
}

func promoteResultType(op BinaryOp, lt, rt value.Type) value.Type {
	if op == OpEQ || op == OpLT {
		return value.U64
	}
	if lt == value.F64 || rt == value.F64 {
		return value.F64
	}
	if lt == value.I64 || rt == value.I64 {
		return value.I64
	}
	return value.U64
}

func (s *ScalarToScalar) ValueType() value.Type  { return s.vt }
func (s *ScalarToScalar) ReturnType() ReturnType { return ScalarReturn }

func (s *ScalarToScalar) NextScalar(ctx context.Context) (value.Value, bool, error) {
	l, ok, err := s.lhs.NextScalar(ctx)
	if err != nil || !ok {
		return value.Value{}, false, err
	}
	r, ok, err := s.rhs.NextScalar(ctx)
	if err != nil || !ok {
		return value.Value{}, false, err
	}
	v, _, err := apply(s.op, l, s.lhs.ValueType(), r, s.rhs.ValueType())
	if err != nil {
		return value.Value{}, false, err
	}
	return v, true, nil
}

// VectorToScalar applies a BinaryOp between every sample of a vector child
// and an evolving scalar child, preserving the vector's timestamps.
type VectorToScalar struct {
	base
	op      BinaryOp
	vector  Node
	scalar  Node
	vt      value.Type
	swapped bool // true when the scalar is the left operand (e.g. `2 / http_requests_total`)
}

// NewVectorToScalar composes vector op scalar (or scalar op vector when
// swapped is true) into a vector node.
func NewVectorToScalar(op BinaryOp, vector, scalar Node, swapped bool) *VectorToScalar {
	var vt value.Type
	if swapped {
		vt = promoteResultType(op, scalar.ValueType(), vector.ValueType())
	} else {
		vt = promoteResultType(op, vector.ValueType(), scalar.ValueType())
	}
	return &VectorToScalar{op: op, vector: vector, scalar: scalar, vt: vt, swapped: swapped}
}

func (v *VectorToScalar) ValueType() value.Type  { return v.vt }
func (v *VectorToScalar) ReturnType() ReturnType { return VectorReturn }

func (v *VectorToScalar) NextVector(ctx context.Context) (Sample, bool, error) {
	s, ok, err := v.vector.NextVector(ctx)
	if err != nil || !ok {
		return Sample{}, false, err
	}
	sc, ok, err := v.scalar.NextScalar(ctx)
	if err != nil || !ok {
		return Sample{}, false, err
	}

	var result value.Value
	if v.swapped {
		result, _, err = apply(v.op, sc, v.scalar.ValueType(), s.Value, v.vector.ValueType())
	} else {
		result, _, err = apply(v.op, s.Value, v.vector.ValueType(), sc, v.scalar.ValueType())
	}
	if err != nil {
		return Sample{}, false, err
	}

	return Sample{Timestamp: s.Timestamp, Value: result}, true, nil
}
