// Package exec implements Tachyon's pull-based query execution tree. Every
// node is one of a small closed set of variants; the planner builds a tree of
// them from a PromQL AST and the Connection drains the root node to produce a
// result.
package exec

import (
	"context"

	"github.com/tachyondb/tachyon/value"
)

// ReturnType is whether a Node yields a single evolving scalar over time or a
// vector (timestamp, value) stream.
type ReturnType uint8

const (
	ScalarReturn ReturnType = iota
	VectorReturn
)

// Sample is one (timestamp, value) pair produced by a vector-returning Node.
type Sample struct {
	Timestamp uint64
	Value     value.Value
}

// Node is the execution tree's sealed interface. node() is unexported so no
// type outside this package can implement it, keeping the variant set closed
// the way the planner's switch statements assume.
type Node interface {
	node()

	// ValueType is the value type this node's output is typed as.
	ValueType() value.Type

	// ReturnType is whether NextScalar or NextVector is the valid pull method.
	ReturnType() ReturnType

	// NextScalar pulls the next scalar value. It panics if ReturnType is not
	// ScalarReturn.
	NextScalar(ctx context.Context) (value.Value, bool, error)

	// NextVector pulls the next vector sample. It panics if ReturnType is not
	// VectorReturn.
	NextVector(ctx context.Context) (Sample, bool, error)
}

// base provides the panicking defaults for whichever pull method a concrete
// node's ReturnType doesn't support, so each node only implements the one it
// actually produces.
type base struct{}

func (base) node() {}

func (base) NextScalar(context.Context) (value.Value, bool, error) {
	panic("exec: NextScalar called on a vector-returning node")
}

func (base) NextVector(context.Context) (Sample, bool, error) {
	panic("exec: NextVector called on a scalar-returning node")
}
