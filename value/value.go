// Package value implements Tachyon's polymorphic scalar type.
//
// A Value is an 8-byte payload that is not self-describing: every Value is paired
// with a ValueType carried by an adjacent source of truth (a stream, a file header,
// or an execution node), per spec.md §4.1.
package value

import (
	"math"

	"github.com/tachyondb/tachyon/errs"
)

// Type identifies which of the three physical representations a Value holds.
type Type uint8

const (
	I64 Type = iota // signed 64-bit integer
	U64             // unsigned 64-bit integer
	F64             // IEEE-754 double
)

func (t Type) String() string {
	switch t {
	case I64:
		return "I64"
	case U64:
		return "U64"
	case F64:
		return "F64"
	default:
		return "Unknown"
	}
}

// Value is a tagged-union payload: exactly one of its accessor methods is valid for
// a given bit pattern, and which one is valid is determined externally by a Type.
// This mirrors spec.md §4.1's "a value is not self-describing" invariant and the
// teacher's (mebo) preference for plain fixed-size structs over interfaces for hot
// data.
type Value struct {
	bits uint64
}

// FromI64 wraps a signed integer as a Value.
func FromI64(v int64) Value { return Value{bits: uint64(v)} }

// FromU64 wraps an unsigned integer as a Value.
func FromU64(v uint64) Value { return Value{bits: v} }

// FromF64 wraps a float as a Value.
func FromF64(v float64) Value { return Value{bits: math.Float64bits(v)} }

// I64 reinterprets the payload as a signed integer. Only valid when the caller knows
// the Value's type is I64.
func (v Value) I64() int64 { return int64(v.bits) }

// U64 reinterprets the payload as an unsigned integer. Only valid when the caller
// knows the Value's type is U64.
func (v Value) U64() uint64 { return v.bits }

// F64 reinterprets the payload as a float. Only valid when the caller knows the
// Value's type is F64.
func (v Value) F64() float64 { return math.Float64frombits(v.bits) }

// Bits returns the raw 8-byte payload, used for serialization and for the XOR-based
// float codec which operates on the IEEE bit pattern directly.
func (v Value) Bits() uint64 { return v.bits }

// FromBits reconstructs a Value from a raw 8-byte payload, the inverse of Bits.
func FromBits(bits uint64) Value { return Value{bits: bits} }

// Zero returns the zero Value for a given type (0, 0, or 0.0).
func Zero(t Type) Value {
	switch t {
	case F64:
		return FromF64(0)
	default:
		return Value{}
	}
}

// ToF64 performs the lossy conversion to float64 used for cross-type arithmetic and
// comparison, per spec.md §4.1's "lossy to_f64 conversion".
func (v Value) ToF64(t Type) float64 {
	switch t {
	case I64:
		return float64(v.I64())
	case U64:
		return float64(v.U64())
	case F64:
		return v.F64()
	default:
		return 0
	}
}

// promote implements the mixed-type promotion rule F64 > I64 > U64 from spec.md §4.1.
func promote(a, b Type) Type {
	if a == F64 || b == F64 {
		return F64
	}
	if a == I64 || b == I64 {
		return I64
	}
	return U64
}

// Add returns lhs+rhs and the resulting type, promoting mixed-type operands.
func Add(lhs Value, lt Type, rhs Value, rt Type) (Value, Type) {
	rtOut := promote(lt, rt)
	switch rtOut {
	case F64:
		return FromF64(lhs.ToF64(lt) + rhs.ToF64(rt)), F64
	case I64:
		return FromI64(lhs.I64() + rhs.I64()), I64
	default:
		return FromU64(lhs.U64() + rhs.U64()), U64
	}
}

// Sub returns lhs-rhs and the resulting type.
func Sub(lhs Value, lt Type, rhs Value, rt Type) (Value, Type) {
	rtOut := promote(lt, rt)
	switch rtOut {
	case F64:
		return FromF64(lhs.ToF64(lt) - rhs.ToF64(rt)), F64
	case I64:
		return FromI64(lhs.I64() - rhs.I64()), I64
	default:
		return FromU64(lhs.U64() - rhs.U64()), U64
	}
}

// Mul returns lhs*rhs and the resulting type.
func Mul(lhs Value, lt Type, rhs Value, rt Type) (Value, Type) {
	rtOut := promote(lt, rt)
	switch rtOut {
	case F64:
		return FromF64(lhs.ToF64(lt) * rhs.ToF64(rt)), F64
	case I64:
		return FromI64(lhs.I64() * rhs.I64()), I64
	default:
		return FromU64(lhs.U64() * rhs.U64()), U64
	}
}

// Div returns lhs/rhs and the resulting type. Division by zero on integer types
// returns errs.ErrArithmetic per spec.md §4.1; float division follows IEEE-754
// (producing Inf or NaN).
func Div(lhs Value, lt Type, rhs Value, rt Type) (Value, Type, error) {
	rtOut := promote(lt, rt)
	switch rtOut {
	case F64:
		return FromF64(lhs.ToF64(lt) / rhs.ToF64(rt)), F64, nil
	case I64:
		d := rhs.I64()
		if d == 0 {
			return Value{}, I64, errs.ErrArithmetic
		}
		return FromI64(lhs.I64() / d), I64, nil
	default:
		d := rhs.U64()
		if d == 0 {
			return Value{}, U64, errs.ErrArithmetic
		}
		return FromU64(lhs.U64() / d), U64, nil
	}
}

// Mod returns lhs%rhs and the resulting type, with the same zero-divisor semantics
// as Div.
func Mod(lhs Value, lt Type, rhs Value, rt Type) (Value, Type, error) {
	rtOut := promote(lt, rt)
	switch rtOut {
	case F64:
		return FromF64(math.Mod(lhs.ToF64(lt), rhs.ToF64(rt))), F64, nil
	case I64:
		d := rhs.I64()
		if d == 0 {
			return Value{}, I64, errs.ErrArithmetic
		}
		return FromI64(lhs.I64() % d), I64, nil
	default:
		d := rhs.U64()
		if d == 0 {
			return Value{}, U64, errs.ErrArithmetic
		}
		return FromU64(lhs.U64() % d), U64, nil
	}
}

// Equal reports whether lhs and rhs are numerically equal, comparing via the
// promoted type.
func Equal(lhs Value, lt Type, rhs Value, rt Type) bool {
	switch promote(lt, rt) {
	case F64:
		return lhs.ToF64(lt) == rhs.ToF64(rt)
	case I64:
		return lhs.I64() == rhs.I64()
	default:
		return lhs.U64() == rhs.U64()
	}
}

// Less reports whether lhs < rhs, comparing via the promoted type.
func Less(lhs Value, lt Type, rhs Value, rt Type) bool {
	switch promote(lt, rt) {
	case F64:
		return lhs.ToF64(lt) < rhs.ToF64(rt)
	case I64:
		return lhs.I64() < rhs.I64()
	default:
		return lhs.U64() < rhs.U64()
	}
}

// Min returns whichever of lhs, rhs compares smaller, retaining its own native type
// (so Min(I64, U64) returns the smaller as a Value typed to whichever operand won,
// not the promoted type — the caller already knows both operands share a type in
// every call site in this codebase, per spec.md's aggregate rules).
func Min(lhs Value, lt Type, rhs Value, rt Type) Value {
	if Less(rhs, rt, lhs, lt) {
		return rhs
	}
	return lhs
}

// Max returns whichever of lhs, rhs compares larger.
func Max(lhs Value, lt Type, rhs Value, rt Type) Value {
	if Less(lhs, lt, rhs, rt) {
		return rhs
	}
	return lhs
}
