package datafile

import (
	"fmt"
	"io"
	"sort"

	"github.com/tachyondb/tachyon/cache"
	"github.com/tachyondb/tachyon/compress/floatcodec"
	"github.com/tachyondb/tachyon/compress/intcodec"
	"github.com/tachyondb/tachyon/errs"
	"github.com/tachyondb/tachyon/format"
	"github.com/tachyondb/tachyon/value"
)

// ScanHint tells a VectorSelect that the caller only needs an aggregate over
// the scanned range. A Cursor itself always decodes every sample it is asked
// for; the decode-skipping optimization lives in VectorSelect.Aggregate,
// which consults HeaderAggregate per file before ever opening a Cursor on
// it. A Cursor stores the hint it is given but neither acts on it nor
// exposes it.
type ScanHint uint8

const (
	HintNone ScanHint = iota
	HintSum
	HintCount
	HintMin
	HintMax
)

// FileRef names one sealed file and the byte range the index promises holds
// every sample in [start, end] for its stream. StreamID is the low 64 bits
// of the stream the indexer believes owns this file; openFile cross-checks
// it against the file's own header so a file relocated or renamed under the
// wrong stream directory is caught as corruption rather than silently
// returning another stream's samples.
type FileRef struct {
	Path         string
	MinTimestamp uint64
	MaxTimestamp uint64
	StreamID     uint64
}

// Cursor streams decoded samples across an ordered list of files for a single
// stream, reseeding its decoder state at each file boundary since every
// sealed file is independently decodable.
type Cursor struct {
	cache *cache.PageCache
	files []FileRef
	start uint64
	end   uint64
	hint  ScanHint

	fileIdx int
	header  *Header

	timestamps []uint64
	values     []value.Value
	pos        int

	done bool
}

// NewCursor creates a Cursor over files, restricted to samples in [start,end].
// hint is stored but does not change decoding: every sample is decoded.
func NewCursor(c *cache.PageCache, files []FileRef, start, end uint64, hint ScanHint) (*Cursor, error) {
	sort.Slice(files, func(i, j int) bool { return files[i].MinTimestamp < files[j].MinTimestamp })

	cur := &Cursor{cache: c, files: files, start: start, end: end, hint: hint}
	if len(files) == 0 {
		cur.done = true
		return cur, nil
	}
	if err := cur.openFile(0); err != nil {
		return nil, err
	}
	return cur, nil
}

// Done reports whether the cursor has exhausted every file.
func (c *Cursor) Done() bool { return c.done }

// ValueType returns the value type carried by the current file's header, or
// the last file's type once the cursor is done.
func (c *Cursor) ValueType() value.Type {
	if c.header != nil {
		return c.header.ValueType
	}
	return value.I64
}

// HeaderAggregate returns h's pre-computed aggregate for hint, valid only
// when hint != HintNone and h's full timestamp range lies within [start,end].
// Count and Sum/Min/Max are all carried in the sealed header (§4.4.2); a
// caller exploiting this never needs to decompress the file's body. Float
// Sum remains advisory: IEEE-754 summation is not associative, so a sum
// accumulated incrementally at write time need not equal one computed by
// reducing the decoded values in a different order.
func HeaderAggregate(h *Header, start, end uint64, hint ScanHint) (value.Value, bool) {
	if hint == HintNone || h == nil {
		return value.Value{}, false
	}
	if h.MinTimestamp < start || h.MaxTimestamp > end {
		return value.Value{}, false
	}
	switch hint {
	case HintCount:
		return value.FromU64(uint64(h.Count)), true
	case HintSum:
		return value.FromBits(h.SumValueBits), true
	case HintMin:
		return value.FromBits(h.MinValueBits), true
	case HintMax:
		return value.FromBits(h.MaxValueBits), true
	default:
		return value.Value{}, false
	}
}

// PeekHeader reads and parses only the fixed header of the file at ref,
// without touching its compressed body. Callers use this to decide whether a
// file's header aggregate alone can answer a hinted scan.
func PeekHeader(c *cache.PageCache, ref FileRef) (*Header, error) {
	fileID, err := c.RegisterOrGetFileID(ref.Path)
	if err != nil {
		return nil, err
	}
	r := cache.NewSeqReader(c, fileID)
	hdrBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, hdrBuf); err != nil {
		return nil, fmt.Errorf("read header of %s: %w", ref.Path, errs.ErrIO)
	}
	return ParseHeader(hdrBuf)
}

func (c *Cursor) openFile(idx int) error {
	ref := c.files[idx]
	fileID, err := c.cache.RegisterOrGetFileID(ref.Path)
	if err != nil {
		return err
	}

	r := cache.NewSeqReader(c.cache, fileID)
	hdrBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, hdrBuf); err != nil {
		return fmt.Errorf("read header of %s: %w", ref.Path, errs.ErrIO)
	}
	h, err := ParseHeader(hdrBuf)
	if err != nil {
		return err
	}
	if h.StreamID != ref.StreamID {
		return fmt.Errorf("file %s header claims stream %x, index expected %x: %w",
			ref.Path, h.StreamID, ref.StreamID, errs.ErrCorruptFile)
	}

	c.header = h
	c.fileIdx = idx

	tsBuf := make([]byte, h.TimestampColLen)
	r.Seek(int64(h.TimestampColOffset))
	if _, err := io.ReadFull(r, tsBuf); err != nil {
		return fmt.Errorf("read timestamp column of %s: %w", ref.Path, errs.ErrIO)
	}

	valBuf := make([]byte, h.ValueColLen)
	r.Seek(int64(h.ValueColOffset))
	if _, err := io.ReadFull(r, valBuf); err != nil {
		return fmt.Errorf("read value column of %s: %w", ref.Path, errs.ErrIO)
	}

	deltas, err := intcodec.Decode(tsBuf, int(h.Count)-1)
	if err != nil {
		return err
	}
	timestamps := make([]uint64, h.Count)
	timestamps[0] = h.MinTimestamp
	var prevDelta int64
	prev := int64(h.MinTimestamp)
	for i, d := range deltas {
		delta := prevDelta + d
		prev += delta
		prevDelta = delta
		timestamps[i+1] = uint64(prev)
	}

	values, err := decodeValues(valBuf, h)
	if err != nil {
		return err
	}

	c.timestamps = timestamps
	c.values = values
	c.pos = 0

	// skip to the first sample >= c.start
	for c.pos < len(c.timestamps) && c.timestamps[c.pos] < c.start {
		c.pos++
	}

	return nil
}

func decodeValues(buf []byte, h *Header) ([]value.Value, error) {
	switch EncodingFor(h.ValueType) {
	case format.TypeGorilla:
		floats, err := floatcodec.Decode(buf, int(h.Count))
		if err != nil {
			return nil, err
		}
		out := make([]value.Value, len(floats))
		for i, f := range floats {
			out[i] = value.FromF64(f)
		}
		return out, nil
	case format.TypeDelta:
		deltas, err := intcodec.Decode(buf, int(h.Count)-1)
		if err != nil {
			return nil, err
		}
		out := make([]value.Value, h.Count)
		out[0] = value.FromBits(h.FirstValueBits)
		prev := int64(h.FirstValueBits)
		var prevDelta int64
		for i, d := range deltas {
			delta := prevDelta + d
			prev += delta
			prevDelta = delta
			out[i+1] = value.FromBits(uint64(prev))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown value type %d in header: %w", h.ValueType, errs.ErrCorruptFile)
	}
}

// Next advances the cursor and returns the next (timestamp, value) pair in
// [start, end], transparently crossing file boundaries. Done() is true once
// there are no more samples.
func (c *Cursor) Next() (uint64, value.Value, bool, error) {
	for {
		if c.done {
			return 0, value.Value{}, false, nil
		}

		if c.pos < len(c.timestamps) {
			ts := c.timestamps[c.pos]
			if ts > c.end {
				c.done = true
				return 0, value.Value{}, false, nil
			}
			v := c.values[c.pos]
			c.pos++
			return ts, v, true, nil
		}

		if c.fileIdx+1 >= len(c.files) {
			c.done = true
			return 0, value.Value{}, false, nil
		}

		if err := c.openFile(c.fileIdx + 1); err != nil {
			return 0, value.Value{}, false, err
		}
	}
}
