package storage

import (
	"chat-relay/contract"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var _ contract.IBlobStore = (*DiskBlobStore)(nil)

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// DiskBlobStore keeps uploaded files flat in a single directory.
// Keys are "<unix millis>-<sanitized name>", with a numeric suffix when that name is taken.
type DiskBlobStore struct {
	dir       string
	publicURL string
	log       *slog.Logger
	now       func() time.Time
}

func NewDiskBlobStore(dir, publicURL string, log *slog.Logger) (*DiskBlobStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir %s: %w", dir, err)
	}
	return &DiskBlobStore{
		dir:       dir,
		publicURL: strings.TrimRight(publicURL, "/"),
		log:       log,
		now:       time.Now,
	}, nil
}

// Dir is the directory files are written to, served back under /uploads/.
func (s *DiskBlobStore) Dir() string {
	return s.dir
}

// Put copies content into a new file and returns its key.
// A partially written file is removed when the copy fails or ctx ends.
func (s *DiskBlobStore) Put(ctx context.Context, filename string, content io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f, key, err := s.create(filename)
	if err != nil {
		return "", err
	}
	path := f.Name()

	_, err = io.Copy(f, readerWithContext{ctx: ctx, r: content})
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		if rmErr := os.Remove(path); rmErr != nil {
			s.log.Warn("Partial upload not removed", "path", path, "error", rmErr)
		}
		return "", fmt.Errorf("failed to write %s: %w", key, err)
	}
	s.log.Debug("File stored", "key", key)
	return key, nil
}

// Delete removes a stored file. A key that is already gone is not an error.
func (s *DiskBlobStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" || key != filepath.Base(key) {
		return fmt.Errorf("invalid key %q", key)
	}
	if err := os.Remove(filepath.Join(s.dir, key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	s.log.Debug("File deleted", "key", key)
	return nil
}

// URL is where clients download the file.
func (s *DiskBlobStore) URL(key string) string {
	return s.publicURL + "/uploads/" + url.PathEscape(key)
}

func (s *DiskBlobStore) create(filename string) (*os.File, string, error) {
	base := fmt.Sprintf("%d-%s", s.now().UnixMilli(), sanitize(filename))
	key := base
	for i := 1; ; i++ {
		f, err := os.OpenFile(filepath.Join(s.dir, key), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, key, nil
		}
		if !os.IsExist(err) || i > 100 {
			return nil, "", fmt.Errorf("failed to create %s: %w", key, err)
		}
		ext := filepath.Ext(base)
		key = fmt.Sprintf("%s-%d%s", strings.TrimSuffix(base, ext), i, ext)
	}
}

// sanitize keeps the base name only and replaces anything outside [a-zA-Z0-9._-].
func sanitize(filename string) string {
	name := filepath.Base(strings.ReplaceAll(filename, `\`, "/"))
	name = strings.Trim(unsafeChars.ReplaceAllString(name, "_"), "._")
	if name == "" {
		return "file"
	}
	return name
}

type readerWithContext struct {
	ctx context.Context
	r   io.Reader
}

func (r readerWithContext) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}
