package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/foliodesk/folio/internal/catalog"
	"github.com/foliodesk/folio/internal/contact"
)

// PublicHandler serves the visitor-facing endpoints: the project catalog and
// the contact form.
type PublicHandler struct {
	catalog *catalog.Catalog
	intake  *contact.Intake
	logger  *slog.Logger
}

// NewPublicHandler creates a new PublicHandler.
func NewPublicHandler(c *catalog.Catalog, in *contact.Intake, logger *slog.Logger) *PublicHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PublicHandler{catalog: c, intake: in, logger: logger}
}

// ListProjects handles GET /api/v1/projects. It never fails: when the store
// is empty or unreachable the placeholder projects are returned and
// meta.fallback is set.
func (h *PublicHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, fallback := h.catalog.List(r.Context())
	resp := listResponse(projects, len(projects))
	resp.Meta.Fallback = fallback
	writeJSON(w, http.StatusOK, resp)
}

// SubmitContact handles POST /api/v1/contact.
func (h *PublicHandler) SubmitContact(w http.ResponseWriter, r *http.Request) {
	var form contact.Form
	if err := readJSON(r, &form); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	conf, err := h.intake.Submit(r.Context(), &form)
	if err != nil {
		var vErr *contact.ValidationError
		var wErr *contact.WriteError
		switch {
		case errors.As(err, &vErr):
			writeFieldError(w, vErr.Field, vErr.Message)
		case errors.As(err, &wErr):
			writeError(w, http.StatusBadGateway, wErr.Error())
		default:
			h.logger.Error("contact submit failed", "error", err)
			writeError(w, http.StatusInternalServerError, contact.FailedMessage)
		}
		return
	}
	writeJSON(w, http.StatusCreated, conf)
}
