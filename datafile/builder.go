package datafile

import (
	"fmt"

	"github.com/tachyondb/tachyon/compress/floatcodec"
	"github.com/tachyondb/tachyon/compress/intcodec"
	"github.com/tachyondb/tachyon/errs"
	"github.com/tachyondb/tachyon/format"
	"github.com/tachyondb/tachyon/value"
)

// EncodingFor returns the codec a value column of the given type is written
// with: Gorilla-style XOR for floats, delta-of-delta for integers. The value
// type alone determines the encoding, so a sealed file's header does not
// need a separate field for it.
func EncodingFor(vt value.Type) format.EncodingType {
	if vt == value.F64 {
		return format.TypeGorilla
	}
	return format.TypeDelta
}

// MaxEntries bounds how many samples a single sealed file may hold. The
// writer seals and starts a new file once a stream's in-memory builder
// reaches this count.
const MaxEntries = 1 << 20

// Sample is one (timestamp, value) pair queued for a stream.
type Sample struct {
	Timestamp uint64
	Value     value.Value
}

// Builder accumulates samples for one stream in memory, computing running
// aggregates as it goes so a sealed file's Header never needs a second pass
// over the data to answer scan-hinted queries.
type Builder struct {
	valueType value.Type
	streamID  uint64 // low 64 bits of the owning stream's UUID, carried into the sealed header.

	timestamps []uint64
	values     []value.Value

	// prevTS/prevDelta hold the state ResumeFrom records. Append does not
	// update them and Seal does not read them.
	prevTS    uint64
	prevDelta int64
	hasPrev   bool

	sum   value.Value
	min   value.Value
	max   value.Value
	count uint64
}

// NewBuilder creates an empty Builder for a stream of the given value type.
// streamID is the low 64 bits of the owning stream's UUID (see
// stream.Low64), carried into every file this builder seals.
func NewBuilder(vt value.Type, streamID uint64) *Builder {
	return &Builder{valueType: vt, streamID: streamID, sum: value.Zero(vt)}
}

// ResumeFrom records lastTS and the delta lastTS-prevTS on the Builder. Seal
// does not use this state: a sealed file's timestamps are always encoded from
// its own first buffered sample, so a builder does not resume the delta
// encoding of an earlier file. It does not restore any sample buffer, and
// the writer and repair pass do not call it.
func (b *Builder) ResumeFrom(lastTS, prevTS uint64) {
	b.prevTS = lastTS
	b.prevDelta = int64(lastTS) - int64(prevTS)
	b.hasPrev = true
}

// Len returns the number of samples buffered so far.
func (b *Builder) Len() int { return len(b.timestamps) }

// Full reports whether the builder has reached MaxEntries and must be sealed.
func (b *Builder) Full() bool { return len(b.timestamps) >= MaxEntries }

// Append adds one sample, updating running aggregates. It returns an error if
// v's type does not match the stream's declared value type.
func (b *Builder) Append(ts uint64, v value.Value, vt value.Type) error {
	if vt != b.valueType {
		return fmt.Errorf("sample type %s does not match stream type %s: %w", vt, b.valueType, errs.ErrTypeMismatch)
	}

	b.timestamps = append(b.timestamps, ts)
	b.values = append(b.values, v)

	if b.count == 0 {
		b.sum = v
		b.min = v
		b.max = v
	} else {
		b.sum, _ = value.Add(b.sum, b.valueType, v, b.valueType)
		b.min = value.Min(b.min, b.valueType, v, b.valueType)
		b.max = value.Max(b.max, b.valueType, v, b.valueType)
	}
	b.count++

	return nil
}

// Seal encodes every buffered sample into a sealed data file's bytes: header
// followed by the compressed timestamp column and the compressed value
// column.
func (b *Builder) Seal() ([]byte, error) {
	if len(b.timestamps) == 0 {
		return nil, fmt.Errorf("cannot seal empty builder: %w", errs.ErrIO)
	}

	tsCol := encodeTimestamps(b.timestamps)
	valCol, err := encodeValues(b.values, b.valueType)
	if err != nil {
		return nil, err
	}

	h := &Header{
		Version:            fileVersion,
		StreamID:           b.streamID,
		ValueType:          b.valueType,
		Count:              uint32(len(b.timestamps)),
		MinTimestamp:       b.timestamps[0],
		MaxTimestamp:       b.timestamps[len(b.timestamps)-1],
		TimestampColOffset: HeaderSize,
		TimestampColLen:    uint32(len(tsCol)),
		ValueColOffset:     HeaderSize + uint32(len(tsCol)),
		ValueColLen:        uint32(len(valCol)),
		FirstValueBits:     b.values[0].Bits(),
		SumValueBits:       b.sum.Bits(),
		MinValueBits:       b.min.Bits(),
		MaxValueBits:       b.max.Bits(),
	}

	out := make([]byte, 0, HeaderSize+len(tsCol)+len(valCol))
	out = append(out, h.Write()...)
	out = append(out, tsCol...)
	out = append(out, valCol...)

	return out, nil
}

// Sum returns the running sum of every value appended so far, and whether at
// least one value has been appended.
func (b *Builder) Sum() (value.Value, bool) { return b.sum, b.count > 0 }

// Min returns the running minimum value appended so far.
func (b *Builder) Min() (value.Value, bool) { return b.min, b.count > 0 }

// Max returns the running maximum value appended so far.
func (b *Builder) Max() (value.Value, bool) { return b.max, b.count > 0 }

// Count returns the number of samples appended so far.
func (b *Builder) Count() uint64 { return b.count }

func encodeTimestamps(ts []uint64) []byte {
	enc := intcodec.NewEncoder()

	var prev uint64
	var prevDelta int64
	for i, t := range ts {
		if i == 0 {
			prev = t // first timestamp is carried in the header, not the column
			continue
		}
		delta := int64(t) - int64(prev)
		enc.Write(delta - prevDelta)
		prevDelta = delta
		prev = t
	}

	return enc.Finish()
}

func encodeValues(values []value.Value, vt value.Type) ([]byte, error) {
	switch vt {
	case value.F64:
		enc := floatcodec.NewEncoder()
		for _, v := range values {
			enc.WriteValue(v)
		}
		return enc.Finish(), nil
	case value.I64, value.U64:
		enc := intcodec.NewEncoder()
		var prev int64
		var prevDelta int64
		for i, v := range values {
			cur := int64(v.Bits())
			if i == 0 {
				prev = cur
				continue
			}
			delta := cur - prev
			enc.Write(delta - prevDelta)
			prevDelta = delta
			prev = cur
		}
		return enc.Finish(), nil
	default:
		return nil, fmt.Errorf("unknown value type %d: %w", vt, errs.ErrTypeMismatch)
	}
}
