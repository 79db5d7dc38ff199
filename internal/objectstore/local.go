package objectstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/foliodesk/folio/internal/backend"
)

// Local stores objects under dir/<bucket>/<path>.
type Local struct {
	dir     string
	baseURL string
	logger  *slog.Logger
}

// NewLocal creates the root directory if needed. baseURL is the public origin
// of the server; PublicURL appends /storage/<bucket>/<path> to it.
func NewLocal(dir, baseURL string, logger *slog.Logger) (*Local, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create storage dir %s: %w", dir, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Local{dir: dir, baseURL: baseURL, logger: logger}, nil
}

// Dir returns the root directory.
func (l *Local) Dir() string { return l.dir }

// Upload writes r to a temporary file, syncs it and renames it into place.
// Existing objects are never overwritten.
func (l *Local) Upload(ctx context.Context, bucket, path string, r io.Reader, size int64, contentType string) error {
	key, err := cleanKey(bucket, path)
	if err != nil {
		return err
	}
	full := l.fullPath(bucket, key)
	if _, err := os.Stat(full); err == nil {
		return fmt.Errorf("%w: %s/%s", ErrExists, bucket, key)
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return fmt.Errorf("create object dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	hasher := sha256.New()
	written, err := io.Copy(tmp, io.TeeReader(&ctxReader{ctx: ctx, r: r}, hasher))
	if err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write object: %w", err)
	}
	if size >= 0 && written != size {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write object: short body, got %d of %d bytes", written, size)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close object: %w", err)
	}
	if err := os.Rename(tmpPath, full); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename object: %w", err)
	}

	l.logger.Info("object stored",
		"bucket", bucket,
		"path", key,
		"bytes", written,
		"content_type", contentType,
		"sha256", hex.EncodeToString(hasher.Sum(nil)),
	)
	return nil
}

// PublicURL returns the URL the storage handler serves the object at.
func (l *Local) PublicURL(bucket, path string) string {
	return joinURL(l.baseURL, "storage", bucket, strings.TrimLeft(path, "/"))
}

// Delete removes an object. Missing objects are not an error.
func (l *Local) Delete(_ context.Context, bucket, path string) error {
	key, err := cleanKey(bucket, path)
	if err != nil {
		return err
	}
	if err := os.Remove(l.fullPath(bucket, key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete object %s/%s: %w", bucket, key, err)
	}
	return nil
}

// List returns the objects in bucket whose path starts with prefix, sorted
// by path.
func (l *Local) List(ctx context.Context, bucket, prefix string) ([]backend.ObjectInfo, error) {
	prefix, err := cleanPrefix(bucket, prefix)
	if err != nil {
		return nil, err
	}
	root := filepath.Join(l.dir, bucket)

	var out []backend.ObjectInfo
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, fs.ErrNotExist) {
				return nil
			}
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".upload-") {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !strings.HasPrefix(rel, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, backend.ObjectInfo{
			Bucket:       bucket,
			Path:         rel,
			Size:         info.Size(),
			LastModified: info.ModTime().UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Open returns the object for reading. The caller closes the file.
func (l *Local) Open(bucket, path string) (*os.File, error) {
	key, err := cleanKey(bucket, path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(l.fullPath(bucket, key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, bucket, key)
		}
		return nil, fmt.Errorf("open object: %w", err)
	}
	return f, nil
}

func (l *Local) fullPath(bucket, key string) string {
	return filepath.Join(l.dir, bucket, filepath.FromSlash(key))
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
