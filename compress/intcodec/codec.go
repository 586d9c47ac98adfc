// Package intcodec implements Tachyon's integer column codec: delta-of-delta
// encoding, zigzag mapping to unsigned, and chunked bit-packing. It is the
// concrete resolution of the "implementers must specify this bit layout once"
// choice, following the layout used by the storage engine this package's module
// was modeled on.
//
// Sixteen zigzag-encoded deltas form a chunk. Eight chunks share a 3-byte
// (24-bit) header holding one 3-bit width code per chunk, chosen from
// widthTable so every value in the chunk fits. Chunk bodies are packed
// immediately after their header, one chunk's 16 fixed-width values back to
// back, byte-aligned because every entry in widthTable divides evenly into a
// 16-value chunk.
package intcodec

import (
	"github.com/tachyondb/tachyon/errs"
	"github.com/tachyondb/tachyon/internal/pool"
)

const (
	chunkSize       = 16 // values per chunk
	chunksPerHeader = 8  // chunks sharing one 3-byte header
	headerBytes     = 3
)

// widthTable maps a 3-bit code to the bit width used to pack that chunk's values.
// Every width here evenly divides chunkSize*width into whole bytes.
var widthTable = [8]uint8{1, 2, 4, 8, 16, 24, 32, 64}

// codeFor returns the smallest width-table index that can hold max, a zigzag
// value already known to require no more than 64 bits.
func codeFor(max uint64) uint8 {
	for code, width := range widthTable {
		if width == 64 || max < uint64(1)<<uint(width) {
			return uint8(code)
		}
	}
	return uint8(len(widthTable) - 1)
}

// ZigZagEncode maps a signed delta to an unsigned value with small magnitude
// deltas mapping to small unsigned values, per the standard zigzag transform.
func ZigZagEncode(v int64) uint64 {
	return uint64((v << 1) ^ (v >> 63))
}

// ZigZagDecode inverts ZigZagEncode.
func ZigZagDecode(v uint64) int64 {
	return int64(v>>1) ^ -int64(v&1)
}

// Encoder accumulates signed 64-bit deltas-of-deltas (already computed by the
// caller, typically from timestamps or residual columns) and produces a packed
// byte stream on Finish.
//
// Encoder is not safe for concurrent use.
type Encoder struct {
	pending []int64
	buf     *pool.ByteBuffer
	count   int
}

// NewEncoder returns an Encoder ready to accept values.
func NewEncoder() *Encoder {
	return &Encoder{
		pending: make([]int64, 0, chunkSize),
		buf:     pool.GetChunkBuffer(),
	}
}

// Write appends a single delta value. Values are buffered until Finish, since
// a chunk's header code depends on the widest value in that chunk.
func (e *Encoder) Write(delta int64) {
	e.pending = append(e.pending, delta)
	e.count++
}

// WriteSlice appends every value in deltas.
func (e *Encoder) WriteSlice(deltas []int64) {
	for _, d := range deltas {
		e.Write(d)
	}
}

// Len returns the number of values written so far.
func (e *Encoder) Len() int { return e.count }

// pendingChunk holds one chunk's zigzag values and the width chosen for them,
// resolved once the whole chunk is known.
type pendingChunk struct {
	values []uint64
	width  uint8
}

// Finish packs every chunk accumulated via Write/WriteSlice and returns the
// encoded bytes. The Encoder must not be reused after Finish.
func (e *Encoder) Finish() []byte {
	zz := make([]uint64, len(e.pending))
	for i, v := range e.pending {
		zz[i] = ZigZagEncode(v)
	}

	var chunks []pendingChunk
	for i := 0; i < len(zz); i += chunkSize {
		end := i + chunkSize
		if end > len(zz) {
			end = len(zz)
		}
		chunk := zz[i:end]
		var max uint64
		for _, v := range chunk {
			if v > max {
				max = v
			}
		}
		chunks = append(chunks, pendingChunk{values: chunk, width: widthTable[codeFor(max)]})
	}

	for i := 0; i < len(chunks); i += chunksPerHeader {
		end := i + chunksPerHeader
		if end > len(chunks) {
			end = len(chunks)
		}
		group := chunks[i:end]
		e.writeHeader(group)
		for _, c := range group {
			e.writeChunkBody(c)
		}
	}

	out := make([]byte, e.buf.Len())
	copy(out, e.buf.Bytes())
	pool.PutChunkBuffer(e.buf)
	return out
}

func (e *Encoder) writeHeader(group []pendingChunk) {
	var header uint32
	for idx, c := range group {
		code := codeFor(0)
		for ci, w := range widthTable {
			if w == c.width {
				code = uint8(ci)
				break
			}
		}
		shift := uint(21 - 3*idx)
		header |= uint32(code) << shift
	}
	hdr := [headerBytes]byte{byte(header >> 16), byte(header >> 8), byte(header)}
	e.buf.MustWrite(hdr[:])
}

func (e *Encoder) writeChunkBody(c pendingChunk) {
	w := bitWriter{buf: e.buf}
	for _, v := range c.values {
		w.writeBits(v, c.width)
	}
	w.flush()
}

// bitWriter packs fixed-width fields LSB-first into whole bytes, flushing
// completed bytes into buf as it goes.
type bitWriter struct {
	buf      *pool.ByteBuffer
	acc      uint64
	accBits  uint8
}

func (w *bitWriter) writeBits(v uint64, width uint8) {
	w.acc |= v << w.accBits
	w.accBits += width
	for w.accBits >= 8 {
		w.buf.MustWrite([]byte{byte(w.acc)})
		w.acc >>= 8
		w.accBits -= 8
	}
}

func (w *bitWriter) flush() {
	if w.accBits > 0 {
		w.buf.MustWrite([]byte{byte(w.acc)})
		w.acc = 0
		w.accBits = 0
	}
}

// Decode reconstructs count delta values from data, which must have been
// produced by Encoder.Finish for the same count.
func Decode(data []byte, count int) ([]int64, error) {
	out := make([]int64, 0, count)
	pos := 0
	remaining := count

	for remaining > 0 {
		if pos+headerBytes > len(data) {
			return nil, errs.ErrCorruptFile
		}
		header := uint32(data[pos])<<16 | uint32(data[pos+1])<<8 | uint32(data[pos+2])
		pos += headerBytes

		chunksInGroup := chunksPerHeader
		if remaining < chunksPerHeader*chunkSize {
			chunksInGroup = (remaining + chunkSize - 1) / chunkSize
		}

		for c := 0; c < chunksInGroup; c++ {
			code := uint8((header >> uint(21-3*c)) & 0x7)
			width := widthTable[code]

			n := chunkSize
			if remaining < chunkSize {
				n = remaining
			}

			r := bitReader{data: data, pos: pos}
			for i := 0; i < n; i++ {
				v, err := r.readBits(width)
				if err != nil {
					return nil, err
				}
				out = append(out, ZigZagDecode(v))
			}
			pos += r.bytesConsumed()
			remaining -= n
		}
	}

	return out, nil
}

// bitReader is the decode-side counterpart of bitWriter.
type bitReader struct {
	data    []byte
	pos     int
	acc     uint64
	accBits uint8
	read    int
}

func (r *bitReader) readBits(width uint8) (uint64, error) {
	for r.accBits < width {
		if r.pos+r.read >= len(r.data) {
			return 0, errs.ErrCorruptFile
		}
		r.acc |= uint64(r.data[r.pos+r.read]) << r.accBits
		r.accBits += 8
		r.read++
	}
	mask := uint64(1)<<width - 1
	if width == 64 {
		mask = ^uint64(0)
	}
	v := r.acc & mask
	r.acc >>= width
	r.accBits -= width
	return v, nil
}

func (r *bitReader) bytesConsumed() int { return r.read }
