package datafile

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tachyondb/tachyon/errs"
	"github.com/tachyondb/tachyon/format"
	"github.com/tachyondb/tachyon/value"
)

const testStreamID = uint64(0x0102030405060708)

func TestBuilderAppendRejectsTypeMismatch(t *testing.T) {
	b := NewBuilder(value.I64, testStreamID)
	err := b.Append(1, value.FromF64(1.5), value.F64)
	require.ErrorIs(t, err, errs.ErrTypeMismatch)
}

func TestBuilderRunningAggregates(t *testing.T) {
	b := NewBuilder(value.I64, testStreamID)
	require.NoError(t, b.Append(1, value.FromI64(5), value.I64))
	require.NoError(t, b.Append(2, value.FromI64(1), value.I64))
	require.NoError(t, b.Append(3, value.FromI64(9), value.I64))

	sum, ok := b.Sum()
	require.True(t, ok)
	require.Equal(t, int64(15), sum.I64())

	min, ok := b.Min()
	require.True(t, ok)
	require.Equal(t, int64(1), min.I64())

	max, ok := b.Max()
	require.True(t, ok)
	require.Equal(t, int64(9), max.I64())

	require.Equal(t, uint64(3), b.Count())
	require.Equal(t, 3, b.Len())
}

func TestBuilderSealEmptyErrors(t *testing.T) {
	b := NewBuilder(value.I64, testStreamID)
	_, err := b.Seal()
	require.ErrorIs(t, err, errs.ErrIO)
}

func TestBuilderSealIntegerRoundTrip(t *testing.T) {
	b := NewBuilder(value.I64, testStreamID)
	samples := []Sample{
		{Timestamp: 100, Value: value.FromI64(5)},
		{Timestamp: 110, Value: value.FromI64(-3)},
		{Timestamp: 125, Value: value.FromI64(8)},
	}
	for _, s := range samples {
		require.NoError(t, b.Append(s.Timestamp, s.Value, value.I64))
	}

	sealed, err := b.Seal()
	require.NoError(t, err)

	h, err := ParseHeader(sealed[:HeaderSize])
	require.NoError(t, err)
	require.Equal(t, testStreamID, h.StreamID)
	require.Equal(t, uint32(3), h.Count)
	require.Equal(t, uint64(100), h.MinTimestamp)
	require.Equal(t, uint64(125), h.MaxTimestamp)
	require.Equal(t, format.TypeDelta, EncodingFor(h.ValueType))
	require.Equal(t, value.FromI64(10).Bits(), h.SumValueBits)
	require.Equal(t, value.FromI64(-3).Bits(), h.MinValueBits)
	require.Equal(t, value.FromI64(8).Bits(), h.MaxValueBits)
}

func TestBuilderSealFloatUsesGorillaEncoding(t *testing.T) {
	b := NewBuilder(value.F64, testStreamID)
	require.NoError(t, b.Append(1, value.FromF64(1.5), value.F64))
	require.NoError(t, b.Append(2, value.FromF64(2.5), value.F64))

	sealed, err := b.Seal()
	require.NoError(t, err)

	h, err := ParseHeader(sealed[:HeaderSize])
	require.NoError(t, err)
	require.Equal(t, format.TypeGorilla, EncodingFor(h.ValueType))
}

func TestBuilderFull(t *testing.T) {
	b := NewBuilder(value.I64, testStreamID)
	require.False(t, b.Full())
}
