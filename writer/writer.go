// Package writer implements Tachyon's append path: per-stream in-memory
// builders that accumulate samples and seal themselves into immutable .ty
// files once full, written atomically (temp file, then rename) and
// registered with the indexer only after the bytes are durable on disk.
package writer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tachyondb/tachyon/datafile"
	"github.com/tachyondb/tachyon/errs"
	"github.com/tachyondb/tachyon/indexer"
	"github.com/tachyondb/tachyon/stream"
	"github.com/tachyondb/tachyon/value"
)

// Writer owns the open, not-yet-sealed builder for every stream currently
// being written to.
type Writer struct {
	mu       sync.Mutex
	root     string
	indexer  *indexer.Indexer
	builders map[stream.ID]*datafile.Builder
}

// New creates a Writer rooted at root, using ix as its catalog.
func New(root string, ix *indexer.Indexer) *Writer {
	return &Writer{
		root:     root,
		indexer:  ix,
		builders: make(map[stream.ID]*datafile.Builder),
	}
}

// CreateStream registers a new stream under every key in labelKeys (the
// metric name key plus one per label matcher) with the given value type and
// returns its freshly generated id. Callers are expected to have already
// checked for an existing stream under the same keys; CreateStream always
// mints a new id.
func (w *Writer) CreateStream(ctx context.Context, labelKeys []string, vt value.Type) (stream.ID, error) {
	id := stream.NewID()
	for _, key := range labelKeys {
		if err := w.indexer.InsertNewID(ctx, key, id); err != nil {
			return stream.ID{}, err
		}
	}
	if err := w.indexer.SetValueType(ctx, id, vt); err != nil {
		return stream.ID{}, err
	}
	return id, nil
}

// Write appends one sample for id, sealing and registering the stream's
// builder if it becomes full.
func (w *Writer) Write(ctx context.Context, id stream.ID, vt value.Type, ts uint64, v value.Value) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	b, ok := w.builders[id]
	if !ok {
		b = datafile.NewBuilder(vt, stream.Low64(id))
		w.builders[id] = b
	}

	if err := b.Append(ts, v, vt); err != nil {
		return err
	}

	if b.Full() {
		return w.sealLocked(ctx, id)
	}
	return nil
}

// Sample is one (timestamp, value) pair for BatchWrite.
type Sample struct {
	Timestamp uint64
	Value     value.Value
}

// BatchWrite appends every sample in order, sealing every file the batch
// fills along the way and registering each with the indexer immediately, so a
// crash mid-batch leaves at most the one file being sealed at that moment
// unregistered (which Repair then removes).
func (w *Writer) BatchWrite(ctx context.Context, id stream.ID, vt value.Type, samples []Sample) error {
	for _, s := range samples {
		if err := w.Write(ctx, id, vt, s.Timestamp, s.Value); err != nil {
			return err
		}
	}
	return nil
}

// FlushAll seals and registers every stream's builder, regardless of whether
// it has reached MaxEntries. It is called when the engine is closed so no
// buffered samples are lost.
func (w *Writer) FlushAll(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for id, b := range w.builders {
		if b.Len() == 0 {
			continue
		}
		if err := w.sealLocked(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// sealLocked seals id's current builder, writes it to disk, registers it with
// the indexer, and replaces the builder with a fresh empty one. Callers must
// hold w.mu.
func (w *Writer) sealLocked(ctx context.Context, id stream.ID) error {
	b := w.builders[id]

	bytes, err := b.Seal()
	if err != nil {
		return err
	}

	minTS := firstTimestamp(bytes)
	path := w.derivePath(id, minTS)

	if err := writeFileAtomic(path, bytes); err != nil {
		return err
	}

	h, err := datafile.ParseHeader(bytes)
	if err != nil {
		return err
	}

	if err := w.indexer.InsertNewFile(ctx, id, path, h.MinTimestamp, h.MaxTimestamp); err != nil {
		return err
	}

	w.builders[id] = datafile.NewBuilder(headerValueType(bytes), stream.Low64(id))

	return nil
}

func firstTimestamp(sealed []byte) uint64 {
	h, err := datafile.ParseHeader(sealed)
	if err != nil {
		return 0
	}
	return h.MinTimestamp
}

func headerValueType(sealed []byte) value.Type {
	h, err := datafile.ParseHeader(sealed)
	if err != nil {
		return value.I64
	}
	return h.ValueType
}

func (w *Writer) derivePath(id stream.ID, minTS uint64) string {
	dir := filepath.Join(w.root, id.String())
	return filepath.Join(dir, fmt.Sprintf("%d.ty", minTS))
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create stream dir %s: %w", dir, errs.ErrIO)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file %s: %w", tmp, errs.ErrIO)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s to %s: %w", tmp, path, errs.ErrIO)
	}
	return nil
}
