package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/dexbot/internal/domain"
)

// EventReader lists strategy events from the store.
type EventReader interface {
	List(ctx context.Context, limit int) ([]domain.Event, error)
}

// EventHandler serves the event-log HTTP endpoint.
type EventHandler struct {
	events EventReader
	logger *slog.Logger
}

// NewEventHandler creates an EventHandler with the given store and logger.
func NewEventHandler(events EventReader, logger *slog.Logger) *EventHandler {
	return &EventHandler{events: events, logger: logger}
}

// eventResponse is the JSON shape for a strategy event.
type eventResponse struct {
	ID         int64          `json:"id"`
	Kind       string         `json:"kind"`
	PositionID *string        `json:"position_id,omitempty"`
	Detail     map[string]any `json:"detail,omitempty"`
	CreatedAt  string         `json:"created_at"`
}

// ListEvents returns the most recent strategy events, newest first.
// GET /api/events?limit=100
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 100)

	events, err := h.events.List(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list events failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	out := make([]eventResponse, 0, len(events))
	for _, ev := range events {
		out = append(out, eventResponse{
			ID:         ev.ID,
			Kind:       string(ev.Kind),
			PositionID: ev.PositionID,
			Detail:     ev.Detail,
			CreatedAt:  ev.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": out,
		"count":  len(out),
	})
}
