// Package indexer implements Tachyon's embedded catalog: a SQLite database
// mapping label matchers to stream ids, stream ids to their sealed files, and
// stream ids to their declared value type. It is the "query/indexer" layer
// this engine's planner and vector-select node depend on to turn a PromQL
// selector into a concrete set of files to scan.
package indexer

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/tachyondb/tachyon/datafile"
	"github.com/tachyondb/tachyon/errs"
	"github.com/tachyondb/tachyon/internal/hash"
	"github.com/tachyondb/tachyon/stream"
	"github.com/tachyondb/tachyon/value"
)

const schema = `
CREATE TABLE IF NOT EXISTS stream_to_ids (
	label_key_hash INTEGER PRIMARY KEY,
	label_key      TEXT NOT NULL,
	ids_json       TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS id_to_file (
	stream_id TEXT NOT NULL,
	path      TEXT NOT NULL,
	min_ts    INTEGER NOT NULL,
	max_ts    INTEGER NOT NULL,
	PRIMARY KEY (stream_id, path)
);
CREATE INDEX IF NOT EXISTS id_to_file_stream_id ON id_to_file(stream_id);
CREATE TABLE IF NOT EXISTS id_to_value_type (
	stream_id  TEXT PRIMARY KEY,
	value_type INTEGER NOT NULL
);
`

// Indexer is the catalog handle. It is safe for concurrent use; SQLite's own
// locking serializes writers.
type Indexer struct {
	db *sqlx.DB
}

// Open opens (creating if necessary) the SQLite catalog at path and ensures
// its schema exists.
func Open(path string, busyTimeoutMS int) (*Indexer, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL", path, busyTimeoutMS)
	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", errs.ErrCatalog)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate catalog schema: %w", errs.ErrCatalog)
	}

	return &Indexer{db: db}, nil
}

// Close releases the underlying database handle.
func (ix *Indexer) Close() error {
	return ix.db.Close()
}

type idsEntry struct {
	IDs []string `json:"ids"`
}

// InsertNewID registers id under labelKey, merging into any existing set for
// that key. Rows are keyed by the xxHash64 of labelKey rather than the
// string itself, so a lookup is an indexed integer comparison instead of a
// text one; labelKey itself is still stored alongside so a hash collision
// is caught rather than silently merging two distinct label keys' id sets.
func (ix *Indexer) InsertNewID(ctx context.Context, labelKey string, id stream.ID) error {
	keyHash := int64(hash.ID(labelKey))

	tx, err := ix.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", errs.ErrCatalog)
	}
	defer tx.Rollback()

	var row struct {
		LabelKey string `db:"label_key"`
		IDsJSON  string `db:"ids_json"`
	}
	err = tx.GetContext(ctx, &row,
		`SELECT label_key, ids_json FROM stream_to_ids WHERE label_key_hash = ?`, keyHash)

	var entry idsEntry
	switch {
	case err == nil:
		if row.LabelKey != labelKey {
			return fmt.Errorf("label key hash collision between %q and %q: %w", labelKey, row.LabelKey, errs.ErrCatalog)
		}
		if jerr := json.Unmarshal([]byte(row.IDsJSON), &entry); jerr != nil {
			return fmt.Errorf("decode ids for %q: %w", labelKey, errs.ErrCatalog)
		}
	case isNoRows(err):
		entry = idsEntry{}
	default:
		return fmt.Errorf("lookup ids for %q: %w", labelKey, errs.ErrCatalog)
	}

	idStr := id.String()
	for _, existingID := range entry.IDs {
		if existingID == idStr {
			return tx.Commit() // already present
		}
	}
	entry.IDs = append(entry.IDs, idStr)

	blob, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode ids for %q: %w", labelKey, errs.ErrCatalog)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO stream_to_ids (label_key_hash, label_key, ids_json) VALUES (?, ?, ?)
		 ON CONFLICT(label_key_hash) DO UPDATE SET ids_json = excluded.ids_json`,
		keyHash, labelKey, string(blob))
	if err != nil {
		return fmt.Errorf("upsert ids for %q: %w", labelKey, errs.ErrCatalog)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", errs.ErrCatalog)
	}
	return nil
}

// InsertNewFile registers a sealed file covering [minTS,maxTS] for id.
func (ix *Indexer) InsertNewFile(ctx context.Context, id stream.ID, path string, minTS, maxTS uint64) error {
	_, err := ix.db.ExecContext(ctx,
		`INSERT INTO id_to_file (stream_id, path, min_ts, max_ts) VALUES (?, ?, ?, ?)
		 ON CONFLICT(stream_id, path) DO UPDATE SET min_ts = excluded.min_ts, max_ts = excluded.max_ts`,
		id.String(), path, minTS, maxTS)
	if err != nil {
		return fmt.Errorf("register file %s: %w", path, errs.ErrCatalog)
	}
	return nil
}

// SetValueType records id's declared value type. It is set once, at stream
// creation, and never changed.
func (ix *Indexer) SetValueType(ctx context.Context, id stream.ID, vt value.Type) error {
	_, err := ix.db.ExecContext(ctx,
		`INSERT INTO id_to_value_type (stream_id, value_type) VALUES (?, ?)
		 ON CONFLICT(stream_id) DO NOTHING`,
		id.String(), uint8(vt))
	if err != nil {
		return fmt.Errorf("set value type for %s: %w", id, errs.ErrCatalog)
	}
	return nil
}

// GetValueType returns the declared value type for id.
func (ix *Indexer) GetValueType(ctx context.Context, id stream.ID) (value.Type, error) {
	var vt uint8
	err := ix.db.GetContext(ctx, &vt, `SELECT value_type FROM id_to_value_type WHERE stream_id = ?`, id.String())
	if err != nil {
		return 0, fmt.Errorf("lookup value type for %s: %w", id, errs.ErrCatalog)
	}
	return value.Type(vt), nil
}

// GetIDsForKey returns the set of stream ids registered under labelKey.
func (ix *Indexer) GetIDsForKey(ctx context.Context, labelKey string) ([]stream.ID, error) {
	var row struct {
		LabelKey string `db:"label_key"`
		IDsJSON  string `db:"ids_json"`
	}
	err := ix.db.GetContext(ctx, &row,
		`SELECT label_key, ids_json FROM stream_to_ids WHERE label_key_hash = ?`, int64(hash.ID(labelKey)))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup ids for %q: %w", labelKey, errs.ErrCatalog)
	}
	if row.LabelKey != labelKey {
		return nil, fmt.Errorf("label key hash collision between %q and %q: %w", labelKey, row.LabelKey, errs.ErrCatalog)
	}

	var entry idsEntry
	if jerr := json.Unmarshal([]byte(row.IDsJSON), &entry); jerr != nil {
		return nil, fmt.Errorf("decode ids for %q: %w", labelKey, errs.ErrCatalog)
	}

	out := make([]stream.ID, 0, len(entry.IDs))
	for _, s := range entry.IDs {
		id, perr := stream.ParseID(s)
		if perr != nil {
			return nil, fmt.Errorf("parse stored id %q: %w", s, errs.ErrCatalog)
		}
		out = append(out, id)
	}
	return out, nil
}

// Intersect computes the intersection of the stream-id sets registered under
// each key in labelKeys, placing the smallest set first so the scan touches
// as few candidate ids as possible.
func (ix *Indexer) Intersect(ctx context.Context, labelKeys []string) ([]stream.ID, error) {
	if len(labelKeys) == 0 {
		return nil, nil
	}

	sets := make([][]stream.ID, len(labelKeys))
	for i, key := range labelKeys {
		ids, err := ix.GetIDsForKey(ctx, key)
		if err != nil {
			return nil, err
		}
		sets[i] = ids
	}

	for i := range sets {
		for j := i + 1; j < len(sets); j++ {
			if len(sets[j]) < len(sets[i]) {
				sets[i], sets[j] = sets[j], sets[i]
			}
		}
	}

	result := toSet(sets[0])
	for _, s := range sets[1:] {
		result = intersectSet(result, toSet(s))
		if len(result) == 0 {
			break
		}
	}

	out := make([]stream.ID, 0, len(result))
	for id := range result {
		out = append(out, id)
	}
	return out, nil
}

func toSet(ids []stream.ID) map[stream.ID]struct{} {
	m := make(map[stream.ID]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return m
}

func intersectSet(a, b map[stream.ID]struct{}) map[stream.ID]struct{} {
	out := make(map[stream.ID]struct{})
	for id := range a {
		if _, ok := b[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out
}

// GetRequiredFiles returns every file registered for id whose range overlaps
// [start, end], sorted by MinTimestamp (ties broken by path) so a Cursor can
// scan them in order.
func (ix *Indexer) GetRequiredFiles(ctx context.Context, id stream.ID, start, end uint64) ([]datafile.FileRef, error) {
	rows := []struct {
		Path  string `db:"path"`
		MinTS uint64 `db:"min_ts"`
		MaxTS uint64 `db:"max_ts"`
	}{}

	err := ix.db.SelectContext(ctx, &rows,
		`SELECT path, min_ts, max_ts FROM id_to_file
		 WHERE stream_id = ? AND min_ts <= ? AND max_ts >= ?
		 ORDER BY min_ts ASC, path ASC`,
		id.String(), end, start)
	if err != nil {
		return nil, fmt.Errorf("lookup files for %s: %w", id, errs.ErrCatalog)
	}

	low64 := stream.Low64(id)
	out := make([]datafile.FileRef, len(rows))
	for i, r := range rows {
		out[i] = datafile.FileRef{Path: r.Path, MinTimestamp: r.MinTS, MaxTimestamp: r.MaxTS, StreamID: low64}
	}
	return out, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
