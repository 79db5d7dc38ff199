package handler

import (
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/foliodesk/folio/internal/backend"
	"github.com/foliodesk/folio/internal/console"
	"github.com/foliodesk/folio/internal/model"
	"github.com/foliodesk/folio/internal/server/middleware"
)

// multipartMemory is how much of a multipart upload is buffered in memory
// before spilling to a temp file.
const multipartMemory = 1 << 20

// AdminHandler serves the admin console. Every route runs behind
// middleware.Authenticate and middleware.RequireAdmin, so a console for an
// admin session is always in the request context.
type AdminHandler struct {
	maxUpload int64
	logger    *slog.Logger
}

// NewAdminHandler creates a new AdminHandler. maxUpload caps the size of a
// project image in bytes.
func NewAdminHandler(maxUpload int64, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{maxUpload: maxUpload, logger: logger}
}

// ---------------------------------------------------------------------------
// Console
// ---------------------------------------------------------------------------

// Snapshot handles GET /api/v1/admin/console.
func (h *AdminHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, middleware.GetConsole(r.Context()).Snapshot())
}

// SetForm handles PUT /api/v1/admin/console/form. Opening keeps any draft
// left by a failed create; closing discards it.
func (h *AdminHandler) SetForm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Open bool `json:"open"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	c := middleware.GetConsole(r.Context())
	if req.Open {
		c.OpenForm()
	} else {
		c.CloseForm()
	}
	writeJSON(w, http.StatusOK, c.Form())
}

// ---------------------------------------------------------------------------
// Projects
// ---------------------------------------------------------------------------

// ListProjects handles GET /api/v1/admin/projects with a fresh read.
func (h *AdminHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := middleware.GetConsole(r.Context()).Refresh(r.Context())
	if err != nil {
		h.consoleError(w, err, console.TitleFetchProjects)
		return
	}
	writeJSON(w, http.StatusOK, listResponse(projects, len(projects)))
}

// CreateProject handles POST /api/v1/admin/projects. The body is either
// multipart/form-data with an optional "image" file part, or JSON.
func (h *AdminHandler) CreateProject(w http.ResponseWriter, r *http.Request) {
	draft, cleanup, err := h.readDraft(w, r)
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Image is too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	defer cleanup()

	p, err := middleware.GetConsole(r.Context()).Create(r.Context(), draft)
	if err != nil {
		var vErr *console.ValidationError
		var uErr *console.UploadError
		switch {
		case errors.As(err, &vErr):
			writeFieldError(w, vErr.Field, vErr.Message)
		case errors.As(err, &uErr):
			writeError(w, http.StatusBadGateway, console.TitleUploadFailed, map[string]interface{}{
				"detail": strings.TrimSpace(uErr.Err.Error()),
			})
		default:
			h.consoleError(w, err, console.TitleAddFailed)
		}
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// DeleteProject handles DELETE /api/v1/admin/projects/{id}.
func (h *AdminHandler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := middleware.GetConsole(r.Context()).DeleteProject(r.Context(), id); err != nil {
		h.consoleError(w, err, console.TitleDeleteFailed)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// readDraft decodes the creation form. The returned cleanup removes any
// temp files left by multipart parsing.
func (h *AdminHandler) readDraft(w http.ResponseWriter, r *http.Request) (console.Draft, func(), error) {
	noop := func() {}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		var d console.Draft
		r.Body = http.MaxBytesReader(w, r.Body, multipartMemory)
		if err := readJSON(r, &d); err != nil {
			return d, noop, err
		}
		return d, noop, nil
	}

	// Leave room for the text fields and multipart framing.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return console.Draft{}, noop, errBodyTooLarge
		}
		return console.Draft{}, noop, err
	}
	cleanup := func() { r.MultipartForm.RemoveAll() }

	d := console.Draft{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Tags:        r.FormValue("tags"),
		LiveURL:     r.FormValue("live_url"),
		GithubURL:   r.FormValue("github_url"),
	}

	file, header, err := r.FormFile("image")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		return d, cleanup, nil
	case err != nil:
		cleanup()
		return d, noop, err
	}
	if header.Size > h.maxUpload {
		file.Close()
		cleanup()
		return d, noop, errBodyTooLarge
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	d.Image = &console.Image{
		Filename:    header.Filename,
		ContentType: contentType,
		Size:        header.Size,
		Body:        file,
	}
	return d, func() {
		file.Close()
		cleanup()
	}, nil
}

// ---------------------------------------------------------------------------
// Messages
// ---------------------------------------------------------------------------

type messageList struct {
	Resource []model.ContactMessage `json:"resource"`
	Meta     model.ResponseMeta     `json:"meta"`
}

// ListMessages handles GET /api/v1/admin/messages. The console keeps the
// inbox current through pushes; ?reload=true forces a re-read from the
// store first.
func (h *AdminHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	c := middleware.GetConsole(r.Context())
	if queryBool(r, "reload") {
		if _, err := c.ReloadMessages(r.Context()); err != nil {
			h.consoleError(w, err, console.TitleFetchMessages)
			return
		}
	}
	msgs, unread := c.Messages()
	writeJSON(w, http.StatusOK, messageList{
		Resource: msgs,
		Meta:     model.ResponseMeta{Count: len(msgs), Unread: &unread},
	})
}

// MarkRead handles POST /api/v1/admin/messages/{id}/read.
func (h *AdminHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	c := middleware.GetConsole(r.Context())
	if err := c.MarkRead(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.consoleError(w, err, console.TitleMarkReadFailed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unread": c.Unread()})
}

// DeleteMessage handles DELETE /api/v1/admin/messages/{id}.
func (h *AdminHandler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	c := middleware.GetConsole(r.Context())
	if err := c.DeleteMessage(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.consoleError(w, err, console.TitleMsgDeleteFailed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unread": c.Unread()})
}

// consoleError maps console and store errors to HTTP responses. title is the
// operator-facing summary used for unexpected failures.
func (h *AdminHandler) consoleError(w http.ResponseWriter, err error, title string) {
	switch {
	case errors.Is(err, console.ErrNotAdmin):
		writeError(w, http.StatusForbidden, "Admin access required")
	case errors.Is(err, console.ErrClosed):
		writeError(w, http.StatusUnauthorized, "Session ended")
	case errors.Is(err, backend.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found")
	default:
		h.logger.Error("console operation failed", "title", title, "error", err)
		writeError(w, http.StatusBadGateway, title, map[string]interface{}{
			"detail": strings.TrimSpace(err.Error()),
		})
	}
}
