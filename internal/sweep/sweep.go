// Package sweep removes project images that no project references any more.
// Deleting a project never deletes its image, so without a sweep uploaded
// files accumulate; the sweep is opt-in.
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/foliodesk/folio/internal/backend"
)

// ImageRefs lists the image URLs stored on projects. *store.ProjectTable
// implements it.
type ImageRefs interface {
	ImageURLs(ctx context.Context) ([]string, error)
}

// Result summarises one run.
type Result struct {
	Scanned int      `json:"scanned"`
	Kept    int      `json:"kept"`
	Deleted int      `json:"deleted"`
	Orphans []string `json:"orphans"`
}

// Sweeper finds and deletes unreferenced images under one bucket prefix.
type Sweeper struct {
	objects backend.Objects
	refs    ImageRefs
	bucket  string
	prefix  string
	grace   time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a Sweeper for bucket/prefix. Objects younger than grace are
// kept even when unreferenced, so an upload whose project insert is still in
// flight survives.
func New(objects backend.Objects, refs ImageRefs, bucket, prefix string, grace time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		objects: objects,
		refs:    refs,
		bucket:  bucket,
		prefix:  prefix,
		grace:   grace,
		logger:  logger,
		now:     time.Now,
	}
}

// Run lists the objects and deletes orphans older than the grace period.
// With dryRun set it only reports them.
func (s *Sweeper) Run(ctx context.Context, dryRun bool) (Result, error) {
	var res Result

	urls, err := s.refs.ImageURLs(ctx)
	if err != nil {
		return res, fmt.Errorf("list image references: %w", err)
	}
	referenced := make(map[string]bool, len(urls))
	for _, u := range urls {
		referenced[u] = true
	}

	objs, err := s.objects.List(ctx, s.bucket, s.prefix)
	if err != nil {
		return res, fmt.Errorf("list objects: %w", err)
	}

	cutoff := s.now().Add(-s.grace)
	for _, obj := range objs {
		res.Scanned++
		if referenced[s.objects.PublicURL(obj.Bucket, obj.Path)] || obj.LastModified.After(cutoff) {
			res.Kept++
			continue
		}
		res.Orphans = append(res.Orphans, obj.Path)
		if dryRun {
			continue
		}
		if err := s.objects.Delete(ctx, obj.Bucket, obj.Path); err != nil {
			s.logger.Error("delete orphan image failed", "path", obj.Path, "error", err)
			continue
		}
		res.Deleted++
	}

	s.logger.Info("image sweep finished",
		"bucket", s.bucket,
		"scanned", res.Scanned,
		"orphans", len(res.Orphans),
		"deleted", res.Deleted,
		"dry_run", dryRun,
	)
	return res, nil
}
