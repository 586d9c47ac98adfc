// Package tachyon is an embeddable time-series storage engine. It persists
// (timestamp, value) samples tagged by a label set ("stream") as append-only
// compressed files on disk, and serves range queries written in a
// PromQL-like subset of that language.
//
// A typical session opens a Connection on a root directory, creates streams,
// writes samples through an Inserter, and reads them back through a Query:
//
//	conn, err := tachyon.Open("/var/lib/tachyon")
//	id, err := conn.CreateStream(ctx, tachyon.Selector{Name: "http_requests_total",
//		Matchers: []stream.Matcher{{Name: "service", Value: "web"}}}, value.U64)
//	ins, err := conn.PrepareInsert(ctx, sel)
//	err = ins.Insert(ctx, ts, value.FromU64(47))
//	q, err := conn.PrepareQuery(ctx, `http_requests_total{service="web"}`, 0, 100)
//	for { sample, ok, err := q.NextVector(ctx); ... }
package tachyon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tachyondb/tachyon/cache"
	"github.com/tachyondb/tachyon/errs"
	"github.com/tachyondb/tachyon/exec"
	"github.com/tachyondb/tachyon/indexer"
	"github.com/tachyondb/tachyon/internal/options"
	"github.com/tachyondb/tachyon/plan"
	"github.com/tachyondb/tachyon/stream"
	"github.com/tachyondb/tachyon/value"
	"github.com/tachyondb/tachyon/writer"
)

// Selector names a stream by metric name and label matchers. It is an alias
// for stream.Selector so callers never need to import the stream package
// directly just to open a connection.
type Selector = stream.Selector

const (
	defaultCacheFrames      = 256
	defaultSQLiteBusyTimeMS = 5000
)

type config struct {
	cacheFrames   int
	busyTimeoutMS int
	skipRepair    bool
}

// Opt configures Open.
type Opt = options.Option[*config]

// WithCacheFrames sets the number of PageSize frames the connection's page
// cache holds. Default 256 (1 MiB at the 4 KiB page size).
func WithCacheFrames(n int) Opt {
	return options.NoError(func(c *config) { c.cacheFrames = n })
}

// WithSQLiteBusyTimeout sets the catalog's SQLite busy-timeout in
// milliseconds. Default 5000.
func WithSQLiteBusyTimeout(ms int) Opt {
	return options.NoError(func(c *config) { c.busyTimeoutMS = ms })
}

// WithoutStartupRepair disables the orphan-file cleanup Open otherwise runs
// automatically. Tests that want to inspect a crash-damaged root directory
// before repair runs should use this.
func WithoutStartupRepair() Opt {
	return options.NoError(func(c *config) { c.skipRepair = true })
}

// Connection owns one engine instance rooted at a directory: its page cache,
// its catalog, and its writer. All of a Connection's operations are
// synchronous and must not be called concurrently from more than one
// goroutine at a time (see spec's single-threaded exclusive-access model).
type Connection struct {
	root    string
	cache   *cache.PageCache
	indexer *indexer.Indexer
	writer  *writer.Writer
}

// Open creates root if it does not exist, opens (or creates) its catalog,
// and readies a writer and page cache. By default it also runs a repair pass
// that deletes any sealed file on disk the catalog does not know about,
// which can only happen if a previous process crashed between writing a
// file and registering it.
func Open(root string, opts ...Opt) (*Connection, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create root %s: %w", root, errs.ErrIO)
	}

	cfg := &config{cacheFrames: defaultCacheFrames, busyTimeoutMS: defaultSQLiteBusyTimeMS}
	if err := options.Apply(cfg, opts...); err != nil {
		return nil, err
	}

	ix, err := indexer.Open(filepath.Join(root, "indexer.sqlite"), cfg.busyTimeoutMS)
	if err != nil {
		return nil, err
	}

	c := cache.New(cfg.cacheFrames)
	w := writer.New(root, ix)

	conn := &Connection{root: root, cache: c, indexer: ix, writer: w}

	if !cfg.skipRepair {
		if _, err := w.Repair(context.Background()); err != nil {
			ix.Close()
			c.Close()
			return nil, err
		}
	}

	return conn, nil
}

// Close flushes every open builder and releases the catalog and page cache.
func (conn *Connection) Close(ctx context.Context) error {
	if err := conn.writer.FlushAll(ctx); err != nil {
		return err
	}
	if err := conn.indexer.Close(); err != nil {
		return err
	}
	return conn.cache.Close()
}

// CreateStream registers a new stream for sel with the given value type,
// returning its id. Creation is idempotent on (name, matchers): calling it
// again with the same selector returns the existing id unchanged.
func (conn *Connection) CreateStream(ctx context.Context, sel Selector, vt value.Type) (stream.ID, error) {
	existing, err := conn.indexer.Intersect(ctx, sel.LabelKeys())
	if err != nil {
		return stream.ID{}, err
	}
	if len(existing) == 1 {
		return existing[0], nil
	}
	if len(existing) > 1 {
		return stream.ID{}, fmt.Errorf("%s{%s}: %w", sel.Name, sel.String(), errs.ErrAmbiguousStream)
	}

	return conn.writer.CreateStream(ctx, sel.LabelKeys(), vt)
}

// CheckStreamExists reports whether exactly one stream matches sel.
func (conn *Connection) CheckStreamExists(ctx context.Context, sel Selector) (bool, error) {
	ids, err := conn.indexer.Intersect(ctx, sel.LabelKeys())
	if err != nil {
		return false, err
	}
	return len(ids) == 1, nil
}

// resolveOne resolves sel to exactly one stream id, failing with
// ErrNoStreamsMatched or ErrAmbiguousStream otherwise.
func (conn *Connection) resolveOne(ctx context.Context, sel Selector) (stream.ID, error) {
	ids, err := conn.indexer.Intersect(ctx, sel.LabelKeys())
	if err != nil {
		return stream.ID{}, err
	}
	switch len(ids) {
	case 0:
		return stream.ID{}, fmt.Errorf("%s{%s}: %w", sel.Name, sel.String(), errs.ErrNoStreamsMatched)
	case 1:
		return ids[0], nil
	default:
		return stream.ID{}, fmt.Errorf("%s{%s}: %w", sel.Name, sel.String(), errs.ErrAmbiguousStream)
	}
}

// Inserter forwards typed writes for one stream to the connection's writer.
type Inserter struct {
	conn *Connection
	id   stream.ID
	vt   value.Type
}

// PrepareInsert resolves sel to a single stream and returns an Inserter
// pinned to its declared value type.
func (conn *Connection) PrepareInsert(ctx context.Context, sel Selector) (*Inserter, error) {
	id, err := conn.resolveOne(ctx, sel)
	if err != nil {
		return nil, err
	}
	vt, err := conn.indexer.GetValueType(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Inserter{conn: conn, id: id, vt: vt}, nil
}

// Insert appends one sample. v's type must match the stream's declared type.
func (ins *Inserter) Insert(ctx context.Context, ts uint64, v value.Value) error {
	return ins.conn.writer.Write(ctx, ins.id, ins.vt, ts, v)
}

// InsertBatch appends every sample in order, splitting across sealed files as
// needed.
func (ins *Inserter) InsertBatch(ctx context.Context, samples []writer.Sample) error {
	return ins.conn.writer.BatchWrite(ctx, ins.id, ins.vt, samples)
}

// Flush seals and registers every non-empty builder of the connection's
// writer immediately (not only this stream's), even if it has not reached
// MaxEntries. Dropping an Inserter does not flush; the
// enclosing Connection's Close does.
func (ins *Inserter) Flush(ctx context.Context) error {
	return ins.conn.writer.FlushAll(ctx)
}

// Query is a pull-based handle over a planned expression, bounded to
// [start, end].
type Query struct {
	root exec.Node
}

// PrepareQuery parses and plans text, returning a Query ready to be pulled.
// Only sealed, already-flushed files are visible: samples buffered in an
// open builder are invisible until flushed.
func (conn *Connection) PrepareQuery(ctx context.Context, text string, start, end uint64) (*Query, error) {
	expr, err := plan.Parse(text)
	if err != nil {
		return nil, err
	}
	p := plan.New(conn.indexer, conn.cache, start, end)
	node, err := p.Plan(ctx, expr)
	if err != nil {
		return nil, err
	}
	return &Query{root: node}, nil
}

// ValueType reports the query's result value type.
func (q *Query) ValueType() value.Type { return q.root.ValueType() }

// ReturnType reports whether the query produces a scalar or a vector stream.
func (q *Query) ReturnType() exec.ReturnType { return q.root.ReturnType() }

// NextScalar pulls the next scalar result. ok is false once the query is
// exhausted; once false it stays false for every subsequent call.
func (q *Query) NextScalar(ctx context.Context) (value.Value, bool, error) {
	return q.root.NextScalar(ctx)
}

// NextVector pulls the next (timestamp, value) sample. ok is false once the
// query is exhausted.
func (q *Query) NextVector(ctx context.Context) (exec.Sample, bool, error) {
	return q.root.NextVector(ctx)
}
