package storage

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, publicURL string) *DiskBlobStore {
	s, err := NewDiskBlobStore(filepath.Join(t.TempDir(), "uploads"), publicURL, slog.Default())
	require.NoError(t, err)
	s.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return s
}

func TestDiskBlobStore_Put_And_URL(t *testing.T) {
	req := require.New(t)
	s := newStore(t, "http://localhost:3001/")

	// Given an upload named like a path
	key, err := s.Put(context.Background(), "../../etc/my report.pdf", strings.NewReader("%PDF-1.4"))

	// Then the key is flattened and sanitized
	req.NoError(err)
	req.Equal("1700000000000-my_report.pdf", key)
	content, err := os.ReadFile(filepath.Join(s.Dir(), key))
	req.NoError(err)
	req.Equal("%PDF-1.4", string(content))
	req.Equal("http://localhost:3001/uploads/1700000000000-my_report.pdf", s.URL(key))
}

func TestDiskBlobStore_Same_Name_Gets_Suffix(t *testing.T) {
	req := require.New(t)
	s := newStore(t, "")

	first, err := s.Put(context.Background(), "cat.png", strings.NewReader("1"))
	req.NoError(err)
	second, err := s.Put(context.Background(), "cat.png", strings.NewReader("2"))
	req.NoError(err)

	req.Equal("1700000000000-cat.png", first)
	req.Equal("1700000000000-cat-1.png", second)
	req.Equal("/uploads/1700000000000-cat-1.png", s.URL(second))
}

func TestDiskBlobStore_Delete(t *testing.T) {
	req := require.New(t)
	s := newStore(t, "")
	key, err := s.Put(context.Background(), "cat.png", strings.NewReader("1"))
	req.NoError(err)

	// When the file is deleted twice
	req.NoError(s.Delete(context.Background(), key))
	req.NoError(s.Delete(context.Background(), key))

	// Then it is gone, and keys reaching outside the directory are refused
	_, err = os.Stat(filepath.Join(s.Dir(), key))
	req.True(os.IsNotExist(err))
	req.Error(s.Delete(context.Background(), "../outside.txt"))
	req.Error(s.Delete(context.Background(), ""))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestDiskBlobStore_Failed_Copy_Leaves_Nothing(t *testing.T) {
	req := require.New(t)
	s := newStore(t, "")

	_, err := s.Put(context.Background(), "broken.bin", failingReader{})
	req.Error(err)

	entries, err := os.ReadDir(s.Dir())
	req.NoError(err)
	req.Empty(entries)
}

func TestDiskBlobStore_Put_Cancelled(t *testing.T) {
	s := newStore(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Put(ctx, "late.txt", strings.NewReader("x"))
	require.ErrorIs(t, err, context.Canceled)
}

func TestSanitize(t *testing.T) {
	req := require.New(t)
	req.Equal("file", sanitize(".."))
	req.Equal("file", sanitize(""))
	req.Equal("a_b.txt", sanitize(`C:\Users\x\a b.txt`))
	req.Equal("r_sum_.doc", sanitize("résumé.doc"))
}
