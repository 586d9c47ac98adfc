package writer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tachyondb/tachyon/datafile"
	"github.com/tachyondb/tachyon/indexer"
	"github.com/tachyondb/tachyon/stream"
	"github.com/tachyondb/tachyon/value"
)

func newTestWriter(t *testing.T) (*Writer, *indexer.Indexer, string) {
	t.Helper()
	root := t.TempDir()
	ix, err := indexer.Open(filepath.Join(root, "catalog.sqlite"), 5000)
	require.NoError(t, err)
	t.Cleanup(func() { ix.Close() })
	return New(root, ix), ix, root
}

func TestCreateStreamRegistersEveryLabelKey(t *testing.T) {
	w, ix, _ := newTestWriter(t)
	ctx := context.Background()

	id, err := w.CreateStream(ctx, []string{"__name=http_requests_total", "service=web"}, value.U64)
	require.NoError(t, err)

	byName, err := ix.GetIDsForKey(ctx, "__name=http_requests_total")
	require.NoError(t, err)
	require.Equal(t, []stream.ID{id}, byName)

	byService, err := ix.GetIDsForKey(ctx, "service=web")
	require.NoError(t, err)
	require.Equal(t, []stream.ID{id}, byService)

	vt, err := ix.GetValueType(ctx, id)
	require.NoError(t, err)
	require.Equal(t, value.U64, vt)
}

func TestWriteSealsOnceFull(t *testing.T) {
	w, ix, _ := newTestWriter(t)
	ctx := context.Background()

	id, err := w.CreateStream(ctx, []string{"__name=cpu_usage"}, value.I64)
	require.NoError(t, err)

	for i := 0; i < datafile.MaxEntries; i++ {
		require.NoError(t, w.Write(ctx, id, value.I64, uint64(i), value.FromI64(int64(i))))
	}

	refs, err := ix.GetRequiredFiles(ctx, id, 0, ^uint64(0))
	require.NoError(t, err)
	require.Len(t, refs, 1)
	require.Equal(t, uint64(0), refs[0].MinTimestamp)
	require.Equal(t, uint64(datafile.MaxEntries-1), refs[0].MaxTimestamp)
}

func TestFlushAllSealsPartialBuilder(t *testing.T) {
	w, ix, _ := newTestWriter(t)
	ctx := context.Background()

	id, err := w.CreateStream(ctx, []string{"__name=cpu_usage"}, value.I64)
	require.NoError(t, err)

	require.NoError(t, w.Write(ctx, id, value.I64, 1, value.FromI64(1)))
	require.NoError(t, w.Write(ctx, id, value.I64, 2, value.FromI64(2)))

	refs, err := ix.GetRequiredFiles(ctx, id, 0, ^uint64(0))
	require.NoError(t, err)
	require.Empty(t, refs, "builder below MaxEntries should not have sealed yet")

	require.NoError(t, w.FlushAll(ctx))

	refs, err = ix.GetRequiredFiles(ctx, id, 0, ^uint64(0))
	require.NoError(t, err)
	require.Len(t, refs, 1)
}

func TestFlushAllIsIdempotentOnEmptyBuilders(t *testing.T) {
	w, _, _ := newTestWriter(t)
	require.NoError(t, w.FlushAll(context.Background()))
	require.NoError(t, w.FlushAll(context.Background()))
}

func TestBatchWrite(t *testing.T) {
	w, ix, _ := newTestWriter(t)
	ctx := context.Background()

	id, err := w.CreateStream(ctx, []string{"__name=cpu_usage"}, value.I64)
	require.NoError(t, err)

	samples := []Sample{
		{Timestamp: 1, Value: value.FromI64(1)},
		{Timestamp: 2, Value: value.FromI64(2)},
		{Timestamp: 3, Value: value.FromI64(3)},
	}
	require.NoError(t, w.BatchWrite(ctx, id, value.I64, samples))
	require.NoError(t, w.FlushAll(ctx))

	refs, err := ix.GetRequiredFiles(ctx, id, 0, ^uint64(0))
	require.NoError(t, err)
	require.Len(t, refs, 1)
}

func TestRepairRemovesOrphanedFile(t *testing.T) {
	w, ix, root := newTestWriter(t)
	ctx := context.Background()

	id, err := w.CreateStream(ctx, []string{"__name=cpu_usage"}, value.I64)
	require.NoError(t, err)
	require.NoError(t, w.Write(ctx, id, value.I64, 1, value.FromI64(1)))
	require.NoError(t, w.FlushAll(ctx))

	// Simulate a crash between a write and its indexer registration by
	// dropping a second, unregistered sealed file into the stream's
	// directory by hand.
	b := datafile.NewBuilder(value.I64, stream.Low64(id))
	require.NoError(t, b.Append(100, value.FromI64(9), value.I64))
	sealed, err := b.Seal()
	require.NoError(t, err)
	orphanPath := filepath.Join(root, id.String(), "100.ty")
	require.NoError(t, os.WriteFile(orphanPath, sealed, 0o644))

	removed, err := w.Repair(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	_, statErr := os.Stat(orphanPath)
	require.True(t, os.IsNotExist(statErr))

	refs, err := ix.GetRequiredFiles(ctx, id, 0, ^uint64(0))
	require.NoError(t, err)
	require.Len(t, refs, 1, "the properly registered file must survive repair")
}

func TestRepairOnMissingRootIsANoop(t *testing.T) {
	root := t.TempDir()
	ix, err := indexer.Open(filepath.Join(root, "catalog.sqlite"), 5000)
	require.NoError(t, err)
	defer ix.Close()

	w := New(filepath.Join(root, "does-not-exist"), ix)
	removed, err := w.Repair(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, removed)
}
