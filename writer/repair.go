package writer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tachyondb/tachyon/errs"
	"github.com/tachyondb/tachyon/stream"
)

// Repair lists every <root>/<uuid>/*.ty file and cross-references it against
// the indexer's registered files, deleting any file on disk that was never
// registered. A file can only be unregistered by construction if the process
// crashed between the atomic rename that sealed it and the indexer insert
// that followed — the write-then-register ordering in sealLocked guarantees
// a registered file is always fully written first, so an unregistered file on
// disk is always safe to discard.
func (w *Writer) Repair(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(w.root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("list data root %s: %w", w.root, errs.ErrIO)
	}

	removed := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id, err := stream.ParseID(e.Name())
		if err != nil {
			continue // not a stream directory, ignore
		}

		streamDir := filepath.Join(w.root, e.Name())
		files, err := os.ReadDir(streamDir)
		if err != nil {
			return removed, fmt.Errorf("list stream dir %s: %w", streamDir, errs.ErrIO)
		}

		for _, f := range files {
			if filepath.Ext(f.Name()) != ".ty" {
				continue
			}
			path := filepath.Join(streamDir, f.Name())

			registered, err := w.isRegistered(ctx, id, path)
			if err != nil {
				return removed, err
			}
			if registered {
				continue
			}

			if err := os.Remove(path); err != nil {
				return removed, fmt.Errorf("remove orphan file %s: %w", path, errs.ErrIO)
			}
			removed++
		}
	}

	return removed, nil
}

func (w *Writer) isRegistered(ctx context.Context, id stream.ID, path string) (bool, error) {
	refs, err := w.indexer.GetRequiredFiles(ctx, id, 0, ^uint64(0))
	if err != nil {
		return false, err
	}
	for _, r := range refs {
		if r.Path == path {
			return true, nil
		}
	}
	return false, nil
}
