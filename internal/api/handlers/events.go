// Package handlers contains the HTTP handler implementations for the rollcall
// API: the push subscribe endpoint, the job enqueue surface, and the
// scheduler admin surface.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"rollcall/internal/core"
	"rollcall/internal/realtime"
	"rollcall/internal/types"
)

// ConnectionRegistry is the registry surface the subscribe handler drives.
// Satisfied by realtime.Registry.
type ConnectionRegistry interface {
	Open(ctx context.Context, subscriberID, groupID string, stream realtime.EventStream) (*realtime.Connection, error)
	Close(ctx context.Context, connID string)
}

// SubscriberChecker validates a subscriber before the response commits to
// streaming. Satisfied by db.SubscriberRepo.
type SubscriberChecker interface {
	Resolve(ctx context.Context, subscriberID string) (types.Subscriber, error)
}

// EventsHandler serves the long-lived push subscription endpoint.
type EventsHandler struct {
	Registry     ConnectionRegistry
	Checker      SubscriberChecker
	WriteTimeout time.Duration
	Logger       *slog.Logger
}

// RegisterRoutes mounts the events endpoints onto the given router.
func (h *EventsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/events/subscribe", h.HandleSubscribe)
}

// HandleSubscribe upgrades the response into a push event stream and holds it
// open until the client disconnects or the connection is evicted. The
// subscriber is resolved before any byte is written: once the stream headers
// flush, the status code is committed and a JSON error is no longer possible.
func (h *EventsHandler) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	subscriberID := r.URL.Query().Get("subscriber_id")
	if subscriberID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField,
			"subscriber_id query parameter is required", nil))
		return
	}
	groupID := r.URL.Query().Get("group_id")

	if _, err := h.Checker.Resolve(r.Context(), subscriberID); err != nil {
		core.Error(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	stream, err := realtime.NewHTTPStream(w, h.WriteTimeout)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	conn, err := h.Registry.Open(r.Context(), subscriberID, groupID, stream)
	if err != nil {
		// The subscriber vanished between the pre-check and registration;
		// the 200 is already committed, so all we can do is end the stream.
		h.Logger.WarnContext(r.Context(), "subscription rejected after stream commit",
			"subscriber_id", subscriberID,
			"error", err,
		)
		_ = stream.Close()
		return
	}

	h.Logger.InfoContext(r.Context(), "subscription opened",
		"connection_id", conn.ID,
		"subscriber_id", subscriberID,
		"group_id", conn.GroupID,
	)

	select {
	case <-r.Context().Done():
		// Client went away.
	case <-stream.Done():
		// Evicted by a failed write or the reaper.
	}

	// The request context is already cancelled on client disconnect; the
	// cleanup (stream close, cache mirror removal) must still run.
	h.Registry.Close(context.WithoutCancel(r.Context()), conn.ID)
	h.Logger.InfoContext(r.Context(), "subscription closed",
		"connection_id", conn.ID,
		"subscriber_id", subscriberID,
	)
}
