// Package datafile implements the sealed, immutable on-disk .ty file: a fixed
// header followed by a compressed timestamp column and a compressed value
// column. Once written, a file is never modified, only superseded by a later
// file covering a later time range for the same stream.
package datafile

import (
	"encoding/binary"
	"fmt"

	"github.com/tachyondb/tachyon/errs"
	"github.com/tachyondb/tachyon/value"
)

// Magic identifies a Tachyon data file.
var Magic = [4]byte{'T', 'a', 'c', 'h'}

// specHeaderSize is the size, in bytes, of the bit-exact header prefix this
// file format owes the rest of the ecosystem: magic, version, stream_id,
// min/max timestamp, count, value_type, and the four typed 8-byte
// fields (sum, min, max, first). Every field in this prefix is
// little-endian and lands at a fixed offset so any reader of this format,
// not just this package, can parse it without linking against Go code.
const specHeaderSize = 67

// HeaderSize is the fixed, total size of a data file's header in bytes: the
// 67-byte cross-language prefix plus a 16-byte extension holding the
// timestamp/value column offsets and lengths. The two columns are stored
// and decoded independently (rather than as one interleaved (Δt,Δv) body),
// which is the one place this implementation's on-disk layout is a superset
// of the minimal format — the extension exists solely to locate those two
// columns and carries no information a reader could not otherwise derive.
const HeaderSize = specHeaderSize + 16

const fileVersion = 1

// Header is the fixed HeaderSize-byte prefix of every sealed .ty file.
// SumValueBits, MinValueBits, and MaxValueBits are the running aggregates
// computed once at seal time (see Builder), carried so a scan with an
// aggregate ScanHint can answer Sum/Count/Min/Max without decompressing the value
// column at all, per spec.md's header-aggregate design.
type Header struct {
	Version   uint16
	StreamID  uint64 // low 64 bits of the owning stream's UUID; see stream.Low64.
	ValueType value.Type

	Count        uint32
	MinTimestamp uint64
	MaxTimestamp uint64

	// FirstValueBits seeds the integer value column's delta-of-delta decoder,
	// which needs its first raw value (not a delta) to start decoding. The
	// float (XOR) decoder does not read it.
	// MinTimestamp doubles as the timestamp column's decode seed: samples
	// are appended in increasing timestamp order, so the first timestamp is
	// always the file's minimum.
	FirstValueBits uint64

	// SumValueBits is advisory for float files: IEEE-754 summation is not
	// associative, so a sum computed incrementally at write time need not
	// match a sum computed by re-reducing the decoded values in a different
	// order. Integer sums wrap on overflow, intentionally.
	SumValueBits uint64
	MinValueBits uint64
	MaxValueBits uint64

	TimestampColOffset uint32
	TimestampColLen    uint32
	ValueColOffset     uint32
	ValueColLen        uint32
}

// Write serializes h into the fixed HeaderSize-byte layout: the 67-byte
// cross-language prefix starting with the 4-byte magic (all little-endian, per spec.md's file
// layout table), and this implementation's 16-byte column-location
// extension.
func (h *Header) Write() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:4], Magic[:])

	le := binary.LittleEndian
	le.PutUint16(buf[4:6], h.Version)
	le.PutUint64(buf[6:14], h.StreamID)
	le.PutUint64(buf[14:22], h.MinTimestamp)
	le.PutUint64(buf[22:30], h.MaxTimestamp)
	le.PutUint32(buf[30:34], h.Count)
	buf[34] = byte(h.ValueType)
	le.PutUint64(buf[35:43], h.SumValueBits)
	le.PutUint64(buf[43:51], h.MinValueBits)
	le.PutUint64(buf[51:59], h.MaxValueBits)
	le.PutUint64(buf[59:67], h.FirstValueBits)

	ext := buf[specHeaderSize:]
	le.PutUint32(ext[0:4], h.TimestampColOffset)
	le.PutUint32(ext[4:8], h.TimestampColLen)
	le.PutUint32(ext[8:12], h.ValueColOffset)
	le.PutUint32(ext[12:16], h.ValueColLen)

	return buf
}

// ParseHeader parses a Header from the first HeaderSize bytes of buf.
func ParseHeader(buf []byte) (*Header, error) {
	if len(buf) < HeaderSize {
		return nil, fmt.Errorf("header truncated: %w", errs.ErrCorruptFile)
	}
	if [4]byte(buf[0:4]) != Magic {
		return nil, fmt.Errorf("bad magic: %w", errs.ErrCorruptFile)
	}

	le := binary.LittleEndian
	h := &Header{
		Version:        le.Uint16(buf[4:6]),
		StreamID:       le.Uint64(buf[6:14]),
		MinTimestamp:   le.Uint64(buf[14:22]),
		MaxTimestamp:   le.Uint64(buf[22:30]),
		Count:          le.Uint32(buf[30:34]),
		ValueType:      value.Type(buf[34]),
		SumValueBits:   le.Uint64(buf[35:43]),
		MinValueBits:   le.Uint64(buf[43:51]),
		MaxValueBits:   le.Uint64(buf[51:59]),
		FirstValueBits: le.Uint64(buf[59:67]),
	}

	ext := buf[specHeaderSize:]
	h.TimestampColOffset = le.Uint32(ext[0:4])
	h.TimestampColLen = le.Uint32(ext[4:8])
	h.ValueColOffset = le.Uint32(ext[8:12])
	h.ValueColLen = le.Uint32(ext[12:16])

	if h.Version != fileVersion {
		return nil, fmt.Errorf("unsupported file version %d: %w", h.Version, errs.ErrCorruptFile)
	}

	return h, nil
}
