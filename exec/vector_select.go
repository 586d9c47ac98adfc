package exec

import (
	"context"

	"github.com/tachyondb/tachyon/cache"
	"github.com/tachyondb/tachyon/datafile"
	"github.com/tachyondb/tachyon/errs"
	"github.com/tachyondb/tachyon/indexer"
	"github.com/tachyondb/tachyon/stream"
	"github.com/tachyondb/tachyon/value"
)

// VectorSelect is a leaf node reading one or more streams resolved by label
// matchers, concatenating each stream's samples in order. The planner builds
// one VectorSelect per selector, holding every resolved stream; samples are
// not time-merged across streams.
type VectorSelect struct {
	base

	streamIDs []stream.ID
	idx       int
	cur       *datafile.Cursor

	ix    *indexer.Indexer
	cache *cache.PageCache
	start uint64
	end   uint64
	hint  datafile.ScanHint

	vt value.Type
}

// NewVectorSelect resolves matcherKeys to stream ids via ix and returns a
// VectorSelect ready to scan [start, end]. It fails immediately with
// errs.ErrNoStreamsMatched if no streams resolve, matching the original
// engine's eager-error behavior (a selector that matches nothing is a query
// error, not an empty result).
func NewVectorSelect(ctx context.Context, ix *indexer.Indexer, c *cache.PageCache, matcherKeys []string, name, matcherDesc string, start, end uint64, hint datafile.ScanHint) (*VectorSelect, error) {
	ids, err := ix.Intersect(ctx, matcherKeys)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, &errs.NoStreamsMatchedError{Name: name, Matchers: matcherDesc, Start: int64(start), End: int64(end)}
	}

	vt, err := ix.GetValueType(ctx, ids[0])
	if err != nil {
		return nil, err
	}

	vs := &VectorSelect{
		streamIDs: ids,
		ix:        ix,
		cache:     c,
		start:     start,
		end:       end,
		hint:      hint,
		vt:        vt,
	}

	if err := vs.openStream(ctx, 0); err != nil {
		return nil, err
	}
	return vs, nil
}

func (vs *VectorSelect) openStream(ctx context.Context, idx int) error {
	refs, err := vs.ix.GetRequiredFiles(ctx, vs.streamIDs[idx], vs.start, vs.end)
	if err != nil {
		return err
	}
	cur, err := datafile.NewCursor(vs.cache, refs, vs.start, vs.end, vs.hint)
	if err != nil {
		return err
	}
	vs.idx = idx
	vs.cur = cur
	return nil
}

func (vs *VectorSelect) ValueType() value.Type  { return vs.vt }
func (vs *VectorSelect) ReturnType() ReturnType { return VectorReturn }

// Hint reports the scan hint this selector was built with. No code in this
// module calls it; the planner does not inspect a child's hint.
func (vs *VectorSelect) Hint() datafile.ScanHint { return vs.hint }

// Aggregate answers op by folding every matched stream's files, using each
// file's header aggregate directly when [vs.start, vs.end] fully covers it
// and decoding only the files that need it otherwise. This is the scan-hint
// fast path: an Aggregate node calls it instead of pulling NextVector sample
// by sample whenever its child is a bare, hint-eligible VectorSelect.
func (vs *VectorSelect) Aggregate(ctx context.Context, op AggregateType) (value.Value, bool, error) {
	hint := hintFor(op)
	if vs.hint != hint {
		return value.Value{}, false, nil
	}

	var result value.Value
	any := false
	fold := func(v value.Value, vt value.Type) error {
		switch {
		case !any:
			result, any = v, true
		case op == AggSum || op == AggCount:
			result, _ = value.Add(result, vt, v, vt)
		case op == AggMin:
			result = value.Min(result, vt, v, vt)
		case op == AggMax:
			result = value.Max(result, vt, v, vt)
		}
		return nil
	}

	for _, id := range vs.streamIDs {
		refs, err := vs.ix.GetRequiredFiles(ctx, id, vs.start, vs.end)
		if err != nil {
			return value.Value{}, false, err
		}
		for _, ref := range refs {
			h, err := datafile.PeekHeader(vs.cache, ref)
			if err != nil {
				return value.Value{}, false, err
			}

			vt := h.ValueType
			if op == AggCount {
				vt = value.U64
			}

			if agg, ok := datafile.HeaderAggregate(h, vs.start, vs.end, hint); ok {
				if err := fold(agg, vt); err != nil {
					return value.Value{}, false, err
				}
				continue
			}

			// Partial overlap: decode just this one file and fold its
			// in-range samples manually.
			cur, err := datafile.NewCursor(vs.cache, []datafile.FileRef{ref}, vs.start, vs.end, datafile.HintNone)
			if err != nil {
				return value.Value{}, false, err
			}
			for {
				_, v, ok, err := cur.Next()
				if err != nil {
					return value.Value{}, false, err
				}
				if !ok {
					break
				}
				sv := v
				if op == AggCount {
					sv = value.FromU64(1)
				}
				if err := fold(sv, vt); err != nil {
					return value.Value{}, false, err
				}
			}
		}
	}

	if !any {
		if op == AggSum || op == AggCount {
			vt := vs.vt
			if op == AggCount {
				vt = value.U64
			}
			return value.Zero(vt), true, nil
		}
		return value.Value{}, false, nil
	}
	return result, true, nil
}

func hintFor(op AggregateType) datafile.ScanHint {
	switch op {
	case AggSum:
		return datafile.HintSum
	case AggCount:
		return datafile.HintCount
	case AggMin:
		return datafile.HintMin
	case AggMax:
		return datafile.HintMax
	default:
		return datafile.HintNone
	}
}

func (vs *VectorSelect) NextVector(ctx context.Context) (Sample, bool, error) {
	for {
		ts, v, ok, err := vs.cur.Next()
		if err != nil {
			return Sample{}, false, err
		}
		if ok {
			return Sample{Timestamp: ts, Value: v}, true, nil
		}

		if vs.idx+1 >= len(vs.streamIDs) {
			return Sample{}, false, nil
		}
		if err := vs.openStream(ctx, vs.idx+1); err != nil {
			return Sample{}, false, err
		}
	}
}
