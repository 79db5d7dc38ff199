package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/foliodesk/folio/internal/objectstore"
)

// StorageHandler serves objects from the local object store at
// /storage/{bucket}/*. It is only mounted when storage.driver is local;
// S3 objects are served by the bucket itself.
type StorageHandler struct {
	objects *objectstore.Local
	logger  *slog.Logger
}

// NewStorageHandler creates a new StorageHandler.
func NewStorageHandler(objects *objectstore.Local, logger *slog.Logger) *StorageHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StorageHandler{objects: objects, logger: logger}
}

// ServeObject handles GET /storage/{bucket}/*. Range and conditional
// requests are handled by http.ServeContent.
func (h *StorageHandler) ServeObject(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	path := chi.URLParam(r, "*")

	f, err := h.objects.Open(bucket, path)
	if err != nil {
		switch {
		case errors.Is(err, objectstore.ErrNotFound):
			writeError(w, http.StatusNotFound, "Object not found")
		case errors.Is(err, objectstore.ErrInvalidPath):
			writeError(w, http.StatusBadRequest, "Invalid object path")
		default:
			h.logger.Error("open object failed", "bucket", bucket, "path", path, "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to read object")
		}
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		writeError(w, http.StatusNotFound, "Object not found")
		return
	}

	// Uploaded paths are never reused, so objects can be cached for long.
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	name := path[strings.LastIndex(path, "/")+1:]
	http.ServeContent(w, r, name, info.ModTime(), f)
}
