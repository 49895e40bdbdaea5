package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"civicBadgesAPI/middleware"
	"civicBadgesAPI/services"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// EventDispatcher queues activity events for badge evaluation.
type EventDispatcher interface {
	Dispatch(ctx context.Context, ev services.ActivityEvent) error
}

// EventHandler accepts activity events from the complaint backend.
type EventHandler struct {
	dispatcher EventDispatcher
	validate   *validator.Validate
	logger     *zap.Logger
}

func NewEventHandler(dispatcher EventDispatcher, logger *zap.Logger) *EventHandler {
	return &EventHandler{
		dispatcher: dispatcher,
		validate:   validator.New(),
		logger:     logger,
	}
}

// PostEvents accepts a single event or a batch under "events".
func (h *EventHandler) PostEvents(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var body struct {
		services.ActivityEvent
		Events []services.ActivityEvent `json:"events"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	events := body.Events
	if len(events) == 0 {
		events = []services.ActivityEvent{body.ActivityEvent}
	}

	for i, ev := range events {
		if err := h.validate.Struct(ev); err != nil {
			respondWithJSON(w, http.StatusBadRequest, map[string]any{
				"error": "Invalid event",
				"index": i,
			})
			return
		}
	}

	source, _ := middleware.GetServiceSubject(ctx)
	queued := 0
	for _, ev := range events {
		if err := h.dispatcher.Dispatch(ctx, ev); err != nil {
			h.logger.Error("Failed to queue activity event",
				zap.String("source", source),
				zap.String("user_id", ev.UserID.String()),
				zap.Error(err),
			)
			status := http.StatusInternalServerError
			if errors.Is(err, services.ErrQueueFull) || errors.Is(err, services.ErrDispatcherStopped) {
				status = http.StatusServiceUnavailable
			}
			respondWithJSON(w, status, map[string]any{
				"error":  "Failed to queue events",
				"queued": queued,
			})
			return
		}
		queued++
	}

	respondWithJSON(w, http.StatusAccepted, map[string]any{"queued": queued})
}
