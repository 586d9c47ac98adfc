package exec

import (
	"context"

	"github.com/tachyondb/tachyon/value"
)

// AggregateType selects which running aggregate an Aggregate node computes.
type AggregateType uint8

const (
	AggSum AggregateType = iota
	AggCount
	AggMin
	AggMax
)

// Aggregate reduces a vector-returning child to a single scalar by folding
// every sample the child yields. Empty input returns the type-appropriate
// zero for Sum/Count (0 or 0.0) but no value at all for Min/Max, since there
// is no identity element for either.
type Aggregate struct {
	base
	op    AggregateType
	child Node
	vt    value.Type

	done bool
}

// NewAggregate wraps child with an Aggregate of the given type.
func NewAggregate(op AggregateType, child Node) *Aggregate {
	vt := child.ValueType()
	if op == AggCount {
		vt = value.U64
	}
	return &Aggregate{op: op, child: child, vt: vt}
}

func (a *Aggregate) ValueType() value.Type  { return a.vt }
func (a *Aggregate) ReturnType() ReturnType { return ScalarReturn }

// Eligible reports whether child is a shape the planner may push a page-cache
// scan hint into: a bare VectorSelect with no wrapping node.
func (a *Aggregate) Eligible() (*VectorSelect, bool) {
	vs, ok := a.child.(*VectorSelect)
	return vs, ok
}

func (a *Aggregate) NextScalar(ctx context.Context) (value.Value, bool, error) {
	if a.done {
		return value.Value{}, false, nil
	}
	a.done = true

	if vs, ok := a.Eligible(); ok {
		if v, used, err := vs.Aggregate(ctx, a.op); used || err != nil {
			return v, used, err
		}
	}

	childType := a.child.ValueType()

	switch a.op {
	case AggCount:
		var count uint64
		for {
			_, ok, err := a.child.NextVector(ctx)
			if err != nil {
				return value.Value{}, false, err
			}
			if !ok {
				break
			}
			count++
		}
		return value.FromU64(count), true, nil

	case AggSum:
		sum := value.Zero(childType)
		any := false
		for {
			s, ok, err := a.child.NextVector(ctx)
			if err != nil {
				return value.Value{}, false, err
			}
			if !ok {
				break
			}
			if !any {
				sum = s.Value
				any = true
				continue
			}
			sum, _ = value.Add(sum, childType, s.Value, childType)
		}
		return sum, true, nil

	case AggMin, AggMax:
		var result value.Value
		any := false
		for {
			s, ok, err := a.child.NextVector(ctx)
			if err != nil {
				return value.Value{}, false, err
			}
			if !ok {
				break
			}
			if !any {
				result = s.Value
				any = true
				continue
			}
			if a.op == AggMin {
				result = value.Min(result, childType, s.Value, childType)
			} else {
				result = value.Max(result, childType, s.Value, childType)
			}
		}
		if !any {
			return value.Value{}, false, nil
		}
		return result, true, nil
	}

	return value.Value{}, false, nil
}

// Average computes Sum/Count as an independently-planned pair of Aggregate
// subtrees, matching the planner's rule that avg is not itself a primitive
// aggregate but a composition of two.
type Average struct {
	base
	sum   Node // scalar-returning Aggregate(AggSum)
	count Node // scalar-returning Aggregate(AggCount)
}

// NewAverage composes sum and count subtrees into one avg() node.
func NewAverage(sum, count Node) *Average {
	return &Average{sum: sum, count: count}
}

func (a *Average) ValueType() value.Type  { return value.F64 }
func (a *Average) ReturnType() ReturnType { return ScalarReturn }

func (a *Average) NextScalar(ctx context.Context) (value.Value, bool, error) {
	sumV, ok, err := a.sum.NextScalar(ctx)
	if err != nil || !ok {
		return value.Value{}, false, err
	}
	countV, ok, err := a.count.NextScalar(ctx)
	if err != nil || !ok {
		return value.Value{}, false, err
	}

	// avg's result type is always F64, computed via float division directly
	// rather than value.Div so that 0/0 yields NaN instead of an integer
	// arithmetic error.
	sumType := a.sum.ValueType()
	return value.FromF64(sumV.ToF64(sumType) / countV.ToF64(value.U64)), true, nil
}
