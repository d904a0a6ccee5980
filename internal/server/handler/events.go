package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/veilcraft/settlehouse/internal/domain"
)

// EventService defines the methods that the event handler requires from the
// service layer.
type EventService interface {
	ListEvents(ctx context.Context, opts domain.ListOpts) ([]domain.SettlementEvent, error)
}

// EventHandler serves the settlement event log.
type EventHandler struct {
	events EventService
	logger *slog.Logger
}

// NewEventHandler creates an EventHandler with the given service and logger.
func NewEventHandler(events EventService, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		events: events,
		logger: logger,
	}
}

// listEventsResponse wraps the list events response.
type listEventsResponse struct {
	Events []domain.SettlementEvent `json:"events"`
}

// ListEvents returns settlement events, newest first.
// GET /api/events?limit=50&offset=0
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.events.ListEvents(r.Context(), parseListOpts(r))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	if events == nil {
		events = []domain.SettlementEvent{}
	}
	writeJSON(w, http.StatusOK, listEventsResponse{Events: events})
}
