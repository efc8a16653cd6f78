package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/asura-ai/asura/internal/api/middlewares"
	"github.com/asura-ai/asura/internal/api/respond"
	"github.com/asura-ai/asura/internal/events"
)

// EventsHandler serves the per-user SSE stream of file row changes.
// Each connected client holds one hub subscription for the lifetime of the
// connection; a heartbeat event keeps intermediaries from closing it.
type EventsHandler struct {
	hub       *events.Hub
	heartbeat time.Duration
	log       *logrus.Logger
}

func NewEventsHandler(hub *events.Hub, heartbeat time.Duration, log *logrus.Logger) *EventsHandler {
	return &EventsHandler{hub: hub, heartbeat: heartbeat, log: log}
}

// Stream handles GET /api/files/events. Emits `file-update` on inserts and
// updates (carrying the changed row), `file-deleted` (carrying only the id),
// and `heartbeat` on the configured interval. The subscription is torn down
// when the client disconnects; no replay is provided for missed events.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	userID, ok := middlewares.UserIDFromContext(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, respond.CodeAuthRequired, "authentication required")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	// ResponseController finds the real http.Flusher through any wrapping
	// middleware.
	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		respond.Error(w, http.StatusInternalServerError, respond.CodeInternalError, "streaming unsupported")
		return
	}

	sub := h.hub.Subscribe(&userID)
	defer sub.Close()

	h.log.WithFields(logrus.Fields{
		"user_id":     userID,
		"remote_addr": r.RemoteAddr,
	}).Debug("SSE client connected")

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			h.log.WithField("user_id", userID).Debug("SSE client disconnected")
			return
		case ev, open := <-sub.C:
			if !open {
				return
			}
			if err := h.send(w, rc, ev); err != nil {
				return
			}
		case <-ticker.C:
			if err := writeSSE(w, rc, "heartbeat", map[string]int64{"ts": time.Now().Unix()}); err != nil {
				return
			}
		}
	}
}

func (h *EventsHandler) send(w http.ResponseWriter, rc *http.ResponseController, ev events.Event) error {
	switch ev.Type {
	case events.TypeFileUpdate:
		return writeSSE(w, rc, events.TypeFileUpdate, ev.File)
	case events.TypeFileDeleted:
		return writeSSE(w, rc, events.TypeFileDeleted, map[string]string{"id": ev.FileID})
	}
	return nil
}

func writeSSE(w http.ResponseWriter, rc *http.ResponseController, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return rc.Flush()
}
