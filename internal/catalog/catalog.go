// Package catalog serves the public project listing. The page must never be
// empty, so an empty or failing store yields a fixed placeholder set.
package catalog

import (
	"context"
	"log/slog"
	"time"

	"github.com/foliodesk/folio/internal/backend"
	"github.com/foliodesk/folio/internal/model"
)

const defaultTimeout = 10 * time.Second

// Selector reads projects. backend.ProjectTable satisfies it.
type Selector interface {
	Select(ctx context.Context, q backend.Query) ([]model.Project, error)
}

// Catalog lists projects newest first.
type Catalog struct {
	projects Selector
	timeout  time.Duration
	logger   *slog.Logger
}

// New creates a Catalog. A zero timeout selects 10s.
func New(projects Selector, timeout time.Duration, logger *slog.Logger) *Catalog {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{projects: projects, timeout: timeout, logger: logger}
}

// List returns the stored projects, newest first. When the store has none or
// cannot be read it returns Fallback() and reports fallback=true; the error
// is logged and not returned.
func (c *Catalog) List(ctx context.Context) (projects []model.Project, fallback bool) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	rows, err := c.projects.Select(ctx, backend.NewestFirst())
	if err != nil {
		c.logger.Warn("project listing failed, serving placeholders", "error", err)
		return Fallback(), true
	}
	if len(rows) == 0 {
		return Fallback(), true
	}
	return rows, false
}
