package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"time"

	"github.com/foliodesk/folio/internal/backend"
	"github.com/foliodesk/folio/internal/model"
)

// ImageBucket holds uploaded project images.
const ImageBucket = "project-images"

// ImagePrefix is the path prefix of every uploaded project image.
const ImagePrefix = "projects/"

// Image is an attached image file.
type Image struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Draft is the project creation form as the operator filled it in. Tags is
// the comma separated text.
type Draft struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Tags        string `json:"tags"`
	LiveURL     string `json:"live_url"`
	GithubURL   string `json:"github_url"`
	Image       *Image `json:"-"`
}

// FormState is the creation form. A failed create keeps the draft open.
type FormState struct {
	Open  bool  `json:"open"`
	Draft Draft `json:"draft"`
}

// ValidationError reports a missing required field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// UploadError wraps an object store failure during Create.
type UploadError struct {
	Err error
}

func (e *UploadError) Error() string { return "upload image: " + e.Err.Error() }
func (e *UploadError) Unwrap() error { return e.Err }

// Projects returns the project list as last loaded.
func (c *Console) Projects() []model.Project {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.Project{}, c.projects...)
}

// Form returns the creation form state.
func (c *Console) Form() FormState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.form
}

// OpenForm shows the creation form.
func (c *Console) OpenForm() {
	c.mu.Lock()
	c.form.Open = true
	c.mu.Unlock()
}

// CloseForm hides the creation form and discards the draft.
func (c *Console) CloseForm() {
	c.mu.Lock()
	c.form = FormState{}
	c.mu.Unlock()
}

// Refresh re-reads every project newest first. On failure the previous list
// is kept.
func (c *Console) Refresh(ctx context.Context) ([]model.Project, error) {
	if err := c.requireAdmin(); err != nil {
		return nil, err
	}
	sctx, cancel := c.withTimeout(ctx)
	defer cancel()
	rows, err := c.deps.Projects.Select(sctx, backend.NewestFirst())
	if err != nil {
		c.logger.Error("fetch projects failed", "error", err)
		c.notify(NoticeError, TitleFetchProjects, err.Error())
		return nil, fmt.Errorf("fetch projects: %w", err)
	}

	c.mu.Lock()
	c.projects = rows
	unread := c.unread
	c.broadcastLocked(Update{Type: UpdateProjects, Unread: unread})
	c.mu.Unlock()
	return append([]model.Project{}, rows...), nil
}

// Create uploads the draft's image, if any, then inserts the project. An
// upload failure aborts before anything is written. On success the form is
// cleared and closed and the list refreshed.
func (c *Console) Create(ctx context.Context, d Draft) (*model.Project, error) {
	if err := c.requireAdmin(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	kept := d
	kept.Image = nil
	c.form = FormState{Open: true, Draft: kept}
	c.mu.Unlock()

	title := strings.TrimSpace(d.Title)
	description := strings.TrimSpace(d.Description)
	if title == "" {
		return nil, &ValidationError{Field: "title", Message: "Title is required"}
	}
	if description == "" {
		return nil, &ValidationError{Field: "description", Message: "Description is required"}
	}

	var imageURL *string
	if d.Image != nil {
		path := imagePath(d.Image.Filename, time.Now())
		sctx, cancel := c.withTimeout(ctx)
		err := c.deps.Objects.Upload(sctx, ImageBucket, path, d.Image.Body, d.Image.Size, d.Image.ContentType)
		cancel()
		if err != nil {
			c.logger.Error("image upload failed", "path", path, "error", err)
			c.notify(NoticeError, TitleUploadFailed, err.Error())
			return nil, &UploadError{Err: err}
		}
		u := c.deps.Objects.PublicURL(ImageBucket, path)
		imageURL = &u
	}

	p := &model.Project{
		Title:       title,
		Description: description,
		Tags:        ParseTags(d.Tags),
		ImageURL:    imageURL,
		LiveURL:     optional(d.LiveURL),
		GithubURL:   optional(d.GithubURL),
	}
	sctx, cancel := c.withTimeout(ctx)
	defer cancel()
	if err := c.deps.Projects.Insert(sctx, p); err != nil {
		c.logger.Error("project insert failed", "title", title, "error", err)
		c.notify(NoticeError, TitleAddFailed, err.Error())
		return nil, fmt.Errorf("insert project: %w", err)
	}

	c.mu.Lock()
	c.form = FormState{}
	c.mu.Unlock()
	c.notify(NoticeSuccess, TitleProjectAdded, "")
	c.logger.Info("project created", "id", p.ID, "title", p.Title)

	_, _ = c.Refresh(ctx)
	return p, nil
}

// DeleteProject removes one project and refreshes the list. The stored
// image, if any, is left in place.
func (c *Console) DeleteProject(ctx context.Context, id string) error {
	if err := c.requireAdmin(); err != nil {
		return err
	}
	sctx, cancel := c.withTimeout(ctx)
	defer cancel()
	if err := c.deps.Projects.Delete(sctx, id); err != nil {
		c.notify(NoticeError, TitleDeleteFailed, err.Error())
		if errors.Is(err, backend.ErrNotFound) {
			return err
		}
		return fmt.Errorf("delete project: %w", err)
	}

	c.notify(NoticeSuccess, TitleProjectDeleted, "")
	c.logger.Info("project deleted", "id", id)
	_, _ = c.Refresh(ctx)
	return nil
}

// ParseTags splits comma separated tags, trims them and drops empties.
func ParseTags(csv string) model.Tags {
	tags := model.Tags{}
	for _, t := range strings.Split(csv, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// imagePath builds projects/<unix-ms>-<random>.<ext>, keeping the original
// extension.
func imagePath(filename string, now time.Time) string {
	suffix := make([]byte, 8)
	for i := range suffix {
		suffix[i] = base36[rand.IntN(len(base36))]
	}
	return fmt.Sprintf("%s%d-%s%s", ImagePrefix, now.UnixMilli(), suffix, strings.ToLower(filepath.Ext(filename)))
}
