package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/okian/showcase/pkg/logger"
)

// SSE event names.
const (
	eventProfile        = "profile"
	eventProfileChanged = "profile.changed"
)

// StreamHandler pushes profile changes to the client as Server-Sent Events.
type StreamHandler struct {
	deps      Dependencies
	heartbeat time.Duration
	logger    logger.Logger
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(deps Dependencies, heartbeat time.Duration, l logger.Logger) *StreamHandler {
	return &StreamHandler{deps: deps, heartbeat: heartbeat, logger: l}
}

// HandleStream handles GET /v1/users/{userID}/stream. The current profile is
// sent first, followed by every change until the client disconnects.
func (h *StreamHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	const op = "api.stream"
	ctx := r.Context()
	uid, err := userID(op, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal", NewKind(op, ErrStreaming))
		return
	}

	changes, err := h.deps.Subscribe(ctx, uid)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", WrapKind(op, ErrUnavailable, err))
		return
	}
	current, err := h.deps.Profile(ctx, uid)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", WrapKind(op, ErrUnavailable, err))
		return
	}

	// Streams outlive the server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, eventProfile, current); err != nil {
		return
	}
	flusher.Flush()
	h.logger.Debug(ctx, "profile stream opened", logger.UserID(uid))

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.logger.Debug(ctx, "profile stream closed", logger.UserID(uid))
			return
		case ev, ok := <-changes:
			if !ok {
				return
			}
			if err := writeEvent(w, eventProfileChanged, ev); err != nil {
				h.logger.Warn(ctx, "profile stream write failed", logger.UserID(uid), logger.Error(err))
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", name, err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return fmt.Errorf("write %s event: %w", name, err)
	}
	return nil
}
