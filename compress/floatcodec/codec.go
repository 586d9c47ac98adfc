// Package floatcodec implements Tachyon's float column codec, a Gorilla-style
// XOR scheme: each value is XORed against its predecessor, and only the
// meaningful (non-zero) bit range of the XOR result is stored, as a
// (bitLength, trailingZeroShift, wordBytes) triple. The wire format stores one
// triple per value, with no chunk grouping and no pairing of values, trading
// the last few bits of density for a format simple enough to reason about at
// a byte boundary.
package floatcodec

import (
	"math"

	"github.com/tachyondb/tachyon/errs"
	"github.com/tachyondb/tachyon/internal/pool"
	"github.com/tachyondb/tachyon/value"
)

// chunkValues is not referenced by the encoder or decoder and has no effect
// on the wire format (each value is self-contained).
const chunkValues = 16

// Encoder accumulates float64 values and XOR-encodes each against its
// predecessor, per the classic Gorilla scheme.
type Encoder struct {
	values []uint64 // raw IEEE-754 bit patterns, in insertion order
}

// NewEncoder returns an Encoder ready to accept values.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Write appends v.
func (e *Encoder) Write(v float64) {
	e.values = append(e.values, math.Float64bits(v))
}

// WriteValue appends a value.Value interpreted as F64.
func (e *Encoder) WriteValue(v value.Value) {
	e.values = append(e.values, v.Bits())
}

// Len returns the number of values written so far.
func (e *Encoder) Len() int { return len(e.values) }

// Finish packs every value accumulated via Write and returns the encoded
// bytes. The Encoder must not be reused after Finish.
func (e *Encoder) Finish() []byte {
	buf := pool.GetChunkBuffer()

	var prev uint64
	for _, cur := range e.values {
		xor := cur ^ prev
		prev = cur

		length := bitLen(xor)
		shift := 0
		if length > 0 {
			shift = trailingZeroBits(xor)
		}

		nbytes := (length + 7) / 8
		word := xor >> uint(shift)

		buf.MustWrite([]byte{byte(length), byte(shift), byte(nbytes)})
		wordBytes := make([]byte, nbytes)
		for b := 0; b < nbytes; b++ {
			wordBytes[nbytes-1-b] = byte(word >> uint(8*b))
		}
		buf.MustWrite(wordBytes)
	}

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	pool.PutChunkBuffer(buf)
	return out
}

// Decode reconstructs count float64 values from data.
func Decode(data []byte, count int) ([]float64, error) {
	out := make([]float64, 0, count)
	var prev uint64
	pos := 0

	for i := 0; i < count; i++ {
		if pos+3 > len(data) {
			return nil, errs.ErrCorruptFile
		}
		length := int(data[pos])
		shift := int(data[pos+1])
		nbytes := int(data[pos+2])
		pos += 3

		if pos+nbytes > len(data) {
			return nil, errs.ErrCorruptFile
		}

		var word uint64
		for b := 0; b < nbytes; b++ {
			word = word<<8 | uint64(data[pos+b])
		}
		pos += nbytes

		_ = length
		xor := word << uint(shift)
		cur := prev ^ xor
		prev = cur
		out = append(out, math.Float64frombits(cur))
	}

	return out, nil
}

func bitLen(v uint64) int {
	n := 0
	for v != 0 {
		n++
		v >>= 1
	}
	return n
}

func trailingZeroBits(v uint64) int {
	if v == 0 {
		return 0
	}
	n := 0
	for v&1 == 0 {
		n++
		v >>= 1
	}
	return n
}
