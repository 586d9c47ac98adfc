package exec

import (
	"context"
	"math"

	"github.com/tachyondb/tachyon/value"
)

// side tracks the last two samples pulled from one child of a VectorToVector
// node, enough history to linearly interpolate a value at any timestamp
// between them, or extrapolate past the most recent one.
type side struct {
	node      Node
	prev, cur *Sample
	exhausted bool
	primed    bool
}

func (s *side) advance(ctx context.Context) error {
	smp, ok, err := s.node.NextVector(ctx)
	if err != nil {
		return err
	}
	if !ok {
		s.exhausted = true
		return nil
	}
	s.prev = s.cur
	v := smp
	s.cur = &v
	return nil
}

// valueAt returns this side's value at ts: linear interpolation when two
// samples straddle or precede ts, the lone sample's value when only one has
// ever been seen, or the last known value held constant once the side is
// exhausted (constant extrapolation past the end of its data). The result is
// typed as vt; integer interpolations are rounded half to even.
func (s *side) valueAt(ts uint64, vt value.Type) (value.Value, bool) {
	if s.cur == nil {
		return value.Value{}, false
	}
	if s.exhausted || s.prev == nil {
		return s.cur.Value, true
	}

	t0, t1 := s.prev.Timestamp, s.cur.Timestamp
	if t1 == t0 {
		return s.cur.Value, true
	}

	v0 := s.prev.Value.ToF64(vt)
	v1 := s.cur.Value.ToF64(vt)
	frac := float64(int64(ts)-int64(t0)) / float64(int64(t1)-int64(t0))
	f := v0 + (v1-v0)*frac
	switch vt {
	case value.I64:
		return value.FromI64(int64(math.RoundToEven(f))), true
	case value.U64:
		return value.FromU64(uint64(math.RoundToEven(f))), true
	default:
		return value.FromF64(f), true
	}
}

// earliestUnconsumed returns the timestamp of this side's current sample, the
// next timestamp this side has not yet contributed to an output row. An
// exhausted side offers no further timestamps of its own; it only keeps
// answering valueAt with its last known value for whatever timestamp the
// still-active side is driving.
func (s *side) earliestUnconsumed() (uint64, bool) {
	if s.exhausted || s.cur == nil {
		return 0, false
	}
	return s.cur.Timestamp, true
}

// VectorToVector joins two vector-returning children on timestamp, using
// linear interpolation to fill in values for one side at timestamps only the
// other side produced directly, and constant extrapolation once a side runs
// out of samples.
type VectorToVector struct {
	base
	op       BinaryOp
	lhs, rhs *side
	vt       value.Type
	started  bool
}

// NewVectorToVector composes lhs op rhs into a vector node.
func NewVectorToVector(op BinaryOp, lhs, rhs Node) *VectorToVector {
	return &VectorToVector{
		op:  op,
		lhs: &side{node: lhs},
		rhs: &side{node: rhs},
		vt:  promoteResultType(op, lhs.ValueType(), rhs.ValueType()),
	}
}

func (v *VectorToVector) ValueType() value.Type  { return v.vt }
func (v *VectorToVector) ReturnType() ReturnType { return VectorReturn }

func (v *VectorToVector) NextVector(ctx context.Context) (Sample, bool, error) {
	if !v.started {
		if err := v.lhs.advance(ctx); err != nil {
			return Sample{}, false, err
		}
		if err := v.rhs.advance(ctx); err != nil {
			return Sample{}, false, err
		}
		v.started = true
	}

	for {
		lts, lok := v.lhs.earliestUnconsumed()
		rts, rok := v.rhs.earliestUnconsumed()
		if !lok && !rok {
			return Sample{}, false, nil
		}

		var ts uint64
		switch {
		case lok && rok:
			ts = lts
			if rts < ts {
				ts = rts
			}
		case lok:
			ts = lts
		default:
			ts = rts
		}

		lv, lhas := v.lhs.valueAt(ts, v.lhs.node.ValueType())
		rv, rhas := v.rhs.valueAt(ts, v.rhs.node.ValueType())

		var out Sample
		emit := false
		if lhas && rhas {
			result, _, err := apply(v.op, lv, v.lhs.node.ValueType(), rv, v.rhs.node.ValueType())
			if err != nil {
				return Sample{}, false, err
			}
			out = Sample{Timestamp: ts, Value: result}
			emit = true
		}

		if lok && lts == ts {
			if err := v.lhs.advance(ctx); err != nil {
				return Sample{}, false, err
			}
		}
		if rok && rts == ts {
			if err := v.rhs.advance(ctx); err != nil {
				return Sample{}, false, err
			}
		}

		if emit {
			return out, true, nil
		}
	}
}
