package exec

import (
	"context"

	"github.com/tachyondb/tachyon/value"
)

// NumberLiteral is a constant scalar, repeated for every pull. It is used as
// the operand of a scalar/vector binary expression whose other side is a
// literal number in the query text.
type NumberLiteral struct {
	base
	v value.Value
}

// NewNumberLiteral returns a NumberLiteral node yielding v forever.
func NewNumberLiteral(v value.Value) *NumberLiteral {
	return &NumberLiteral{v: v}
}

func (n *NumberLiteral) ValueType() value.Type   { return value.F64 }
func (n *NumberLiteral) ReturnType() ReturnType  { return ScalarReturn }

func (n *NumberLiteral) NextScalar(context.Context) (value.Value, bool, error) {
	return n.v, true, nil
}
