package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/foliodesk/folio/internal/server/middleware"
)

// defaultKeepAlive is how often an idle stream sends a comment line so
// proxies do not time it out.
const defaultKeepAlive = 15 * time.Second

// EventsHandler streams console updates to the admin page over Server-Sent
// Events. Each client is served by its own goroutine.
type EventsHandler struct {
	keepAlive time.Duration
	logger    *slog.Logger
}

// NewEventsHandler creates a new EventsHandler. A zero keepAlive selects 15s.
func NewEventsHandler(keepAlive time.Duration, logger *slog.Logger) *EventsHandler {
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EventsHandler{keepAlive: keepAlive, logger: logger}
}

// Stream handles GET /api/v1/admin/events. It first sends a "snapshot"
// event with the full console state, then one event per update named after
// its type (message, messages, projects, notice). The stream ends with an
// "end" event when the console closes, e.g. on sign-out.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	c := middleware.GetConsole(r.Context())

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	// ResponseController reaches the Flusher through wrapped writers.
	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		writeError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	updates, stop := c.Watch()
	defer stop()

	if err := writeEvent(w, rc, "snapshot", c.Snapshot()); err != nil {
		return
	}
	h.logger.Debug("event stream opened", "session_id", c.SessionID(), "remote_addr", r.RemoteAddr)

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.logger.Debug("event stream closed by client", "session_id", c.SessionID())
			return
		case u, ok := <-updates:
			if !ok {
				writeEvent(w, rc, "end", map[string]string{"reason": "session ended"})
				return
			}
			if err := writeEvent(w, rc, string(u.Type), u); err != nil {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, rc *http.ResponseController, name string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	return rc.Flush()
}
