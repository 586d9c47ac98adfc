package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tachyondb/tachyon/errs"
)

func writeTempFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.ty")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestRegisterOrGetFileIDIsStable(t *testing.T) {
	c := New(4)
	path := writeTempFile(t, []byte("hello"))

	id1, err := c.RegisterOrGetFileID(path)
	require.NoError(t, err)
	id2, err := c.RegisterOrGetFileID(path)
	require.NoError(t, err)
	require.Equal(t, id1, id2)
}

func TestRegisterOrGetFileIDMissingFile(t *testing.T) {
	c := New(4)
	_, err := c.RegisterOrGetFileID(filepath.Join(t.TempDir(), "missing.ty"))
	require.ErrorIs(t, err, errs.ErrIO)
}

func TestReadReturnsPageContent(t *testing.T) {
	data := make([]byte, PageSize*2)
	for i := range data {
		data[i] = byte(i % 251)
	}
	path := writeTempFile(t, data)

	c := New(4)
	id, err := c.RegisterOrGetFileID(path)
	require.NoError(t, err)

	page0, err := c.Read(id, 0)
	require.NoError(t, err)
	require.Equal(t, data[:PageSize], page0)

	page1, err := c.Read(id, 1)
	require.NoError(t, err)
	require.Equal(t, data[PageSize:], page1)
}

func TestReadPadsShortFinalPage(t *testing.T) {
	data := []byte("short")
	path := writeTempFile(t, data)

	c := New(4)
	id, err := c.RegisterOrGetFileID(path)
	require.NoError(t, err)

	page, err := c.Read(id, 0)
	require.NoError(t, err)
	require.Len(t, page, PageSize)
	require.Equal(t, data, page[:len(data)])
	require.Equal(t, make([]byte, PageSize-len(data)), page[len(data):])
}

func TestRoundRobinEvictionReusesFrames(t *testing.T) {
	data := make([]byte, PageSize*4)
	path := writeTempFile(t, data)

	c := New(2) // fewer frames than pages read
	id, err := c.RegisterOrGetFileID(path)
	require.NoError(t, err)

	for p := PageID(0); p < 4; p++ {
		_, err := c.Read(id, p)
		require.NoError(t, err)
	}
	// No assertion beyond "it didn't error": correctness of eviction is
	// exercised indirectly by SeqReader reading across many pages in
	// seqread_test.go.
}

func TestClose(t *testing.T) {
	path := writeTempFile(t, []byte("x"))
	c := New(2)
	_, err := c.RegisterOrGetFileID(path)
	require.NoError(t, err)
	require.NoError(t, c.Close())
}
