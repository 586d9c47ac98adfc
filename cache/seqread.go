package cache

// SeqReader reads a single file sequentially through the shared PageCache. It
// exists because a naive cursor that holds onto a page slice across calls to
// Read can have that slice silently overwritten once enough other pages are
// loaded and the round-robin evictor reclaims its frame; SeqReader instead
// re-fetches (and so re-pins) its current page from the cache on every read,
// paying one map lookup per access in exchange for never reading stale data.
type SeqReader struct {
	cache  *PageCache
	file   FileID
	offset int64
}

// NewSeqReader returns a SeqReader positioned at the start of the given file.
func NewSeqReader(c *PageCache, file FileID) *SeqReader {
	return &SeqReader{cache: c, file: file}
}

// Seek repositions the reader to an absolute byte offset within the file.
func (r *SeqReader) Seek(offset int64) {
	r.offset = offset
}

// Offset returns the reader's current absolute byte offset.
func (r *SeqReader) Offset() int64 { return r.offset }

// Read copies len(p) bytes starting at the reader's current offset into p,
// advancing the offset, and re-pinning whatever pages it touches on every
// call rather than caching a page slice across calls.
func (r *SeqReader) Read(p []byte) (int, error) {
	read := 0
	for read < len(p) {
		page := PageID(r.offset / PageSize)
		inPage := int(r.offset % PageSize)

		data, err := r.cache.Read(r.file, page)
		if err != nil {
			return read, err
		}

		n := copy(p[read:], data[inPage:])
		read += n
		r.offset += int64(n)
	}
	return read, nil
}
