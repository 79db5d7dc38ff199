// Package objectstore stores uploaded binaries such as project images.
// Local keeps them on disk and serves them from /storage; S3 stores them in
// an S3 compatible bucket that serves them itself.
package objectstore

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/foliodesk/folio/internal/backend"
)

var (
	// ErrNotFound is returned when an object does not exist.
	ErrNotFound = errors.New("object not found")
	// ErrExists is returned when uploading to a path that is already taken.
	ErrExists = errors.New("object already exists")
	// ErrInvalidPath is returned for bucket or path values that could escape
	// the store.
	ErrInvalidPath = errors.New("invalid object path")
)

var (
	_ backend.Objects = (*Local)(nil)
	_ backend.Objects = (*S3)(nil)
)

var bucketPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{0,62}$`)

// cleanKey validates bucket and path and returns the path with leading
// slashes removed.
func cleanKey(bucket, path string) (string, error) {
	if !bucketPattern.MatchString(bucket) {
		return "", fmt.Errorf("%w: bucket %q", ErrInvalidPath, bucket)
	}
	path = strings.TrimLeft(path, "/")
	if path == "" || strings.Contains(path, "\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	return path, nil
}

// cleanPrefix is like cleanKey but allows an empty prefix.
func cleanPrefix(bucket, prefix string) (string, error) {
	if prefix == "" {
		if !bucketPattern.MatchString(bucket) {
			return "", fmt.Errorf("%w: bucket %q", ErrInvalidPath, bucket)
		}
		return "", nil
	}
	trailing := strings.HasSuffix(prefix, "/")
	p, err := cleanKey(bucket, strings.TrimSuffix(prefix, "/"))
	if err != nil {
		return "", err
	}
	if trailing {
		p += "/"
	}
	return p, nil
}

func joinURL(base string, parts ...string) string {
	return strings.TrimRight(base, "/") + "/" + strings.Join(parts, "/")
}
