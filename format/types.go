// Package format defines the small set of on-disk codec identifiers a data
// file header carries, kept separate from package value so the wire-format
// vocabulary can grow (a future raw/uncompressed escape hatch, say) without
// touching the value model.
package format

// EncodingType identifies which codec a data file's value column was written
// with. The header does not store it: datafile.EncodingFor derives it from
// the column's value.Type.
type EncodingType uint8

const (
	TypeDelta   EncodingType = 0x1 // delta-of-delta + zigzag + bit-packed varint, used for I64/U64
	TypeGorilla EncodingType = 0x2 // XOR-based float codec, used for F64
)

func (e EncodingType) String() string {
	switch e {
	case TypeDelta:
		return "Delta"
	case TypeGorilla:
		return "Gorilla"
	default:
		return "Unknown"
	}
}
