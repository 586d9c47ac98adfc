package exec

import (
	"container/heap"
	"context"

	"github.com/tachyondb/tachyon/value"
)

// GetKType selects bottomk or topk semantics for a GetK node.
type GetKType uint8

const (
	Bottomk GetKType = iota
	Topk
)

// GetK returns the k samples from child with the smallest (Bottomk) or
// largest (Topk) values. Ties are broken in favor of the more recently seen
// sample: a newer value equal to the current boundary displaces the older
// one. Computation happens lazily on the first pull and the whole result is
// buffered, since picking the k extremes requires seeing every sample.
type GetK struct {
	base
	kind  GetKType
	child Node
	k     int

	computed bool
	result   []Sample
	pos      int
}

// NewGetK wraps child with a GetK node selecting the k most extreme samples.
func NewGetK(kind GetKType, child Node, k int) *GetK {
	return &GetK{kind: kind, child: child, k: k}
}

func (g *GetK) ValueType() value.Type  { return g.child.ValueType() }
func (g *GetK) ReturnType() ReturnType { return VectorReturn }

// heapItem orders Samples by value, with sequence number breaking ties in
// favor of the most recently seen sample.
type heapItem struct {
	Sample
	seq int
}

type bottomHeap struct {
	items []heapItem
	vt    value.Type
}

func (h bottomHeap) Len() int { return len(h.items) }
func (h bottomHeap) Less(i, j int) bool {
	// max-heap on value so the largest-of-the-kept-smallest is at the root,
	// ready to be evicted when a new smaller value arrives; among ties the
	// older (smaller seq) sample sits nearer the root and is evicted first.
	if value.Equal(h.items[i].Value, h.vt, h.items[j].Value, h.vt) {
		return h.items[i].seq < h.items[j].seq
	}
	return value.Less(h.items[j].Value, h.vt, h.items[i].Value, h.vt)
}
func (h bottomHeap) Swap(i, j int)      { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *bottomHeap) Push(x any)        { h.items = append(h.items, x.(heapItem)) }
func (h *bottomHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}

type topHeap struct {
	items []heapItem
	vt    value.Type
}

func (h topHeap) Len() int { return len(h.items) }
func (h topHeap) Less(i, j int) bool {
	// min-heap on value so the smallest-of-the-kept-largest is at the root.
	if value.Equal(h.items[i].Value, h.vt, h.items[j].Value, h.vt) {
		return h.items[i].seq < h.items[j].seq
	}
	return value.Less(h.items[i].Value, h.vt, h.items[j].Value, h.vt)
}
func (h topHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *topHeap) Push(x any)   { h.items = append(h.items, x.(heapItem)) }
func (h *topHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}

func (g *GetK) compute(ctx context.Context) error {
	vt := g.child.ValueType()
	seq := 0

	if g.kind == Bottomk {
		h := &bottomHeap{vt: vt}
		for {
			s, ok, err := g.child.NextVector(ctx)
			if err != nil {
				return err
			}
			if !ok {
				break
			}
			item := heapItem{Sample: s, seq: seq}
			seq++
			if h.Len() < g.k {
				heap.Push(h, item)
			} else if h.Len() > 0 && !value.Less(h.items[0].Value, vt, s.Value, vt) {
				heap.Pop(h)
				heap.Push(h, item)
			}
		}
		g.result = sortedFromHeap(h.items, vt, false)
	} else {
		h := &topHeap{vt: vt}
		for {
			s, ok, err := g.child.NextVector(ctx)
			if err != nil {
				return err
			}
			if !ok {
				break
			}
			item := heapItem{Sample: s, seq: seq}
			seq++
			if h.Len() < g.k {
				heap.Push(h, item)
			} else if h.Len() > 0 && !value.Less(s.Value, vt, h.items[0].Value, vt) {
				heap.Pop(h)
				heap.Push(h, item)
			}
		}
		g.result = sortedFromHeap(h.items, vt, true)
	}

	g.computed = true
	return nil
}

// sortedFromHeap returns items sorted ascending (descending = false, Bottomk)
// or descending (Topk) by value.
func sortedFromHeap(items []heapItem, vt value.Type, descending bool) []Sample {
	out := make([]Sample, len(items))
	for i, it := range items {
		out[i] = it.Sample
	}
	for i := 1; i < len(out); i++ {
		j := i
		for j > 0 {
			less := value.Less(out[j].Value, vt, out[j-1].Value, vt)
			if descending {
				less = !less
			}
			if !less {
				break
			}
			out[j], out[j-1] = out[j-1], out[j]
			j--
		}
	}
	return out
}

func (g *GetK) NextVector(ctx context.Context) (Sample, bool, error) {
	if !g.computed {
		if err := g.compute(ctx); err != nil {
			return Sample{}, false, err
		}
	}
	if g.pos >= len(g.result) {
		return Sample{}, false, nil
	}
	s := g.result[g.pos]
	g.pos++
	return s, true, nil
}
