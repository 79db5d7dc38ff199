package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/foliodesk/folio/internal/backend"
	"github.com/foliodesk/folio/internal/model"
)

var projectColumns = map[string]bool{
	"id": true, "title": true, "description": true, "image_url": true,
	"live_url": true, "github_url": true, "created_at": true,
}

// ProjectTable implements backend.ProjectTable.
type ProjectTable struct {
	s *Store
}

var _ backend.ProjectTable = (*ProjectTable)(nil)

// Select returns projects matching q, newest first unless q orders otherwise.
func (t *ProjectTable) Select(ctx context.Context, q backend.Query) ([]model.Project, error) {
	sqlText, args, err := t.s.buildSelect("projects", projectColumns, q, backend.NewestFirst().Order)
	if err != nil {
		return nil, fmt.Errorf("select projects: %w", err)
	}
	var rows []model.Project
	if err := t.s.db.SelectContext(ctx, &rows, sqlText, args...); err != nil {
		return nil, fmt.Errorf("select projects: %w", err)
	}
	return rows, nil
}

// Insert writes a new project. ID and CreatedAt are assigned here.
func (t *ProjectTable) Insert(ctx context.Context, p *model.Project) error {
	p.ID = uuid.Must(uuid.NewV7()).String()
	p.CreatedAt = t.s.now()
	if p.Tags == nil {
		p.Tags = model.Tags{}
	}

	const q = `INSERT INTO projects
		(id, title, description, tags, image_url, live_url, github_url, created_at)
		VALUES
		(:id, :title, :description, :tags, :image_url, :live_url, :github_url, :created_at)`

	if _, err := t.s.db.NamedExecContext(ctx, q, p); err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

// Delete removes exactly one project by ID.
func (t *ProjectTable) Delete(ctx context.Context, id string) error {
	result, err := t.s.db.ExecContext(ctx, t.s.db.Rebind("DELETE FROM projects WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete project rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ImageURLs returns every non-null image_url. Used by the orphan sweep.
func (t *ProjectTable) ImageURLs(ctx context.Context) ([]string, error) {
	var urls []string
	if err := t.s.db.SelectContext(ctx, &urls, "SELECT image_url FROM projects WHERE image_url IS NOT NULL"); err != nil {
		return nil, fmt.Errorf("list image urls: %w", err)
	}
	return urls, nil
}
