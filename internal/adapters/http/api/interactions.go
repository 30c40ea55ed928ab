package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/okian/showcase/internal/domain/model"
)

// InteractionsHandler accepts interaction events for asynchronous recording.
type InteractionsHandler struct {
	deps Dependencies
}

// NewInteractionsHandler creates a new interactions handler.
func NewInteractionsHandler(deps Dependencies) *InteractionsHandler {
	return &InteractionsHandler{deps: deps}
}

// HandlePostInteraction handles POST /v1/users/{userID}/interactions.
func (h *InteractionsHandler) HandlePostInteraction(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_interaction"
	uid, err := userID(op, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	var req interactionRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	ev := model.InteractionEvent{
		EventID: strings.TrimSpace(req.EventID),
		UserID:  uid,
		ItemID:  strings.TrimSpace(req.ItemID),
		Action:  model.Action(req.Action),
	}
	if req.TS != "" {
		// Already validated as RFC3339.
		ev.TS, _ = time.Parse(time.RFC3339, req.TS)
	}

	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	} else if h.deps.SeenAndRecord(r.Context(), ev.EventID) {
		// Idempotency check: the id was already accepted once.
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Duplicate: true, EventID: ev.EventID})
		return
	}

	if ok := h.deps.Enqueue(r.Context(), ev); !ok {
		// Rollback the "seen" status since enqueue failed
		h.deps.Unrecord(r.Context(), ev.EventID)
		writeError(w, http.StatusTooManyRequests, "backpressure", NewKind(op, ErrBackpressure))
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", EventID: ev.EventID})
}
