// Package plan turns a parsed PromQL expression into a tree of exec.Node
// operators. It leans on github.com/prometheus/prometheus/promql/parser for
// the AST (this engine never implements its own query grammar) and handles
// only the subset of expressions section 6 of the design documents as
// honored: vector selectors, arithmetic/comparison binary expressions,
// sum/count/avg/min/max, bottomk/topk, parenthesization, and number
// literals.
package plan

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/prometheus/model/labels"
	"github.com/prometheus/prometheus/promql/parser"

	"github.com/tachyondb/tachyon/cache"
	"github.com/tachyondb/tachyon/datafile"
	"github.com/tachyondb/tachyon/errs"
	"github.com/tachyondb/tachyon/exec"
	"github.com/tachyondb/tachyon/indexer"
	"github.com/tachyondb/tachyon/stream"
	"github.com/tachyondb/tachyon/value"
)

// Planner builds exec.Node trees from parsed expressions against a fixed
// indexer and page cache, for queries over a fixed [start, end] range.
type Planner struct {
	ix    *indexer.Indexer
	cache *cache.PageCache
	start uint64
	end   uint64
}

// New creates a Planner that resolves vector selectors against ix and reads
// their data through cache, bounding every selector to [start, end].
func New(ix *indexer.Indexer, c *cache.PageCache, start, end uint64) *Planner {
	return &Planner{ix: ix, cache: c, start: start, end: end}
}

// Parse parses text into a PromQL AST, wrapping the parser's error in
// errs.ErrParse.
func Parse(text string) (parser.Expr, error) {
	expr, err := parser.ParseExpr(text)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", err, errs.ErrParse)
	}
	return expr, nil
}

// Plan builds an exec.Node tree for expr, with no scan hint active at the
// root (hints are only ever pushed down from an Aggregate).
func (p *Planner) Plan(ctx context.Context, expr parser.Expr) (exec.Node, error) {
	return p.plan(ctx, expr, datafile.HintNone)
}

// plan is the recursive planner. hint is the ScanHint in effect for any
// VectorSelect this call directly produces or descends into through a
// transparent wrapper (currently only parens); it does not propagate through
// binary operators or nested aggregates.
func (p *Planner) plan(ctx context.Context, expr parser.Expr, hint datafile.ScanHint) (exec.Node, error) {
	switch e := expr.(type) {
	case *parser.NumberLiteral:
		return exec.NewNumberLiteral(value.FromF64(e.Val)), nil

	case *parser.ParenExpr:
		// Parens are transparent: the hint keeps propagating through them.
		return p.plan(ctx, e.Expr, hint)

	case *parser.VectorSelector:
		return p.planVectorSelector(ctx, e, hint)

	case *parser.BinaryExpr:
		return p.planBinary(ctx, e)

	case *parser.AggregateExpr:
		return p.planAggregate(ctx, e)

	default:
		return nil, fmt.Errorf("%T: %w", expr, errs.ErrUnsupportedExpression)
	}
}

func (p *Planner) planVectorSelector(ctx context.Context, sel *parser.VectorSelector, hint datafile.ScanHint) (exec.Node, error) {
	s, err := selectorFromMatchers(sel.Name, sel.LabelMatchers)
	if err != nil {
		return nil, err
	}

	start, end := p.start, p.end
	start, end = applyAtAndOffset(sel, start, end)

	return exec.NewVectorSelect(ctx, p.ix, p.cache, s.LabelKeys(), s.Name, s.String(), start, end, hint)
}

// selectorFromMatchers extracts the metric name and equality label matchers
// from a parsed VectorSelector. Matchers using the PromQL regex/negation
// operators are out of the query language this engine honors (equality
// only); encountering one fails planning.
func selectorFromMatchers(name string, matchers []*labels.Matcher) (stream.Selector, error) {
	s := stream.Selector{Name: name}
	for _, m := range matchers {
		if m.Name == labels.MetricName {
			continue // name is already carried by the selector itself
		}
		if m.Type != labels.MatchEqual {
			return stream.Selector{}, fmt.Errorf("matcher %s%s%q: %w", m.Name, m.Type, m.Value, errs.ErrUnsupportedExpression)
		}
		s.Matchers = append(s.Matchers, stream.Matcher{Name: m.Name, Value: m.Value})
	}
	return s, nil
}

// applyAtAndOffset narrows [start, end] per the selector's @ and offset
// modifiers. @ pins an absolute instant (in Unix seconds, per the query
// language the planner honors); offset shifts both ends of the window back
// in time. Combined, @at with offset d resolves to the single instant
// (at - d), matching how an instant vector selector with these modifiers
// anchors to one point rather than a range.
func applyAtAndOffset(sel *parser.VectorSelector, start, end uint64) (uint64, uint64) {
	offsetMS := uint64(sel.OriginalOffset / time.Millisecond)

	if sel.Timestamp != nil {
		at := uint64(*sel.Timestamp) // already milliseconds per parser convention
		if at >= offsetMS {
			at -= offsetMS
		} else {
			at = 0
		}
		return at, at
	}

	if offsetMS == 0 {
		return start, end
	}
	newStart := uint64(0)
	if start >= offsetMS {
		newStart = start - offsetMS
	}
	newEnd := uint64(0)
	if end >= offsetMS {
		newEnd = end - offsetMS
	}
	return newStart, newEnd
}

func (p *Planner) planBinary(ctx context.Context, e *parser.BinaryExpr) (exec.Node, error) {
	op, err := binaryOpFromItem(e.Op)
	if err != nil {
		return nil, err
	}

	// A binary expression is opaque to hint propagation: neither operand may
	// inherit a hint from an enclosing aggregate.
	lhs, err := p.plan(ctx, e.LHS, datafile.HintNone)
	if err != nil {
		return nil, err
	}
	rhs, err := p.plan(ctx, e.RHS, datafile.HintNone)
	if err != nil {
		return nil, err
	}

	switch {
	case lhs.ReturnType() == exec.ScalarReturn && rhs.ReturnType() == exec.ScalarReturn:
		return exec.NewScalarToScalar(op, lhs, rhs), nil
	case lhs.ReturnType() == exec.VectorReturn && rhs.ReturnType() == exec.ScalarReturn:
		return exec.NewVectorToScalar(op, lhs, rhs, false), nil
	case lhs.ReturnType() == exec.ScalarReturn && rhs.ReturnType() == exec.VectorReturn:
		return exec.NewVectorToScalar(op, rhs, lhs, true), nil
	default:
		return exec.NewVectorToVector(op, lhs, rhs), nil
	}
}

func binaryOpFromItem(op parser.ItemType) (exec.BinaryOp, error) {
	switch op {
	case parser.ADD:
		return exec.OpAdd, nil
	case parser.SUB:
		return exec.OpSub, nil
	case parser.MUL:
		return exec.OpMul, nil
	case parser.DIV:
		return exec.OpDiv, nil
	case parser.MOD:
		return exec.OpMod, nil
	case parser.EQLC:
		return exec.OpEQ, nil
	case parser.LSS:
		return exec.OpLT, nil
	default:
		return 0, fmt.Errorf("operator %s: %w", op, errs.ErrUnsupportedExpression)
	}
}

func (p *Planner) planAggregate(ctx context.Context, e *parser.AggregateExpr) (exec.Node, error) {
	switch e.Op {
	case parser.SUM:
		child, err := p.plan(ctx, e.Expr, datafile.HintSum)
		if err != nil {
			return nil, err
		}
		return exec.NewAggregate(exec.AggSum, child), nil

	case parser.COUNT:
		child, err := p.plan(ctx, e.Expr, datafile.HintCount)
		if err != nil {
			return nil, err
		}
		return exec.NewAggregate(exec.AggCount, child), nil

	case parser.MIN:
		child, err := p.plan(ctx, e.Expr, datafile.HintMin)
		if err != nil {
			return nil, err
		}
		return exec.NewAggregate(exec.AggMin, child), nil

	case parser.MAX:
		child, err := p.plan(ctx, e.Expr, datafile.HintMax)
		if err != nil {
			return nil, err
		}
		return exec.NewAggregate(exec.AggMax, child), nil

	case parser.AVG:
		// Two independently-planned subtrees so the Sum and Count sides of the
		// average never share cursor/builder state.
		sumChild, err := p.plan(ctx, e.Expr, datafile.HintSum)
		if err != nil {
			return nil, err
		}
		countChild, err := p.plan(ctx, e.Expr, datafile.HintCount)
		if err != nil {
			return nil, err
		}
		sum := exec.NewAggregate(exec.AggSum, sumChild)
		count := exec.NewAggregate(exec.AggCount, countChild)
		return exec.NewAverage(sum, count), nil

	case parser.BOTTOMK, parser.TOPK:
		if e.Param == nil {
			return nil, fmt.Errorf("%s without k: %w", e.Op, errs.ErrUnsupportedExpression)
		}
		kNode, err := p.plan(ctx, e.Param, datafile.HintNone)
		if err != nil {
			return nil, err
		}
		// No hint: bottomk/topk must see every sample to pick the k extremes,
		// so a file-header aggregate could never answer it.
		child, err := p.plan(ctx, e.Expr, datafile.HintNone)
		if err != nil {
			return nil, err
		}
		kind := exec.Bottomk
		if e.Op == parser.TOPK {
			kind = exec.Topk
		}
		k, err := scalarK(ctx, kNode)
		if err != nil {
			return nil, err
		}
		return exec.NewGetK(kind, child, k), nil

	default:
		return nil, fmt.Errorf("aggregate %s: %w", e.Op, errs.ErrUnsupportedExpression)
	}
}

// scalarK pulls k's single scalar value eagerly: GetK needs an int count to
// size its heap before it can start consuming its child.
func scalarK(ctx context.Context, kNode exec.Node) (int, error) {
	v, ok, err := kNode.NextScalar(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("k expression produced no value: %w", errs.ErrUnsupportedExpression)
	}
	return int(v.ToF64(kNode.ValueType())), nil
}
