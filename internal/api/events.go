package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"
	"github.com/snarg/captionhub/internal/events"
)

type EventsHandler struct {
	store     Store
	bus       *events.Bus
	keepalive time.Duration
	closing   <-chan struct{}
}

// NewEventsHandler creates the SSE handler. Streams end when closing is
// closed, independent of the client connection.
func NewEventsHandler(store Store, bus *events.Bus, keepalive time.Duration, closing <-chan struct{}) *EventsHandler {
	if keepalive <= 0 {
		keepalive = 15 * time.Second
	}
	return &EventsHandler{store: store, bus: bus, keepalive: keepalive, closing: closing}
}

// StreamEvents opens an SSE connection that pushes every event of one
// project. The subscription is taken before the response headers are
// flushed, so anything published after the client sees 200 is delivered.
func (h *EventsHandler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	p, ok := loadProject(w, r, h.store)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		select {
		case <-h.closing:
			cancel()
		case <-ctx.Done():
		}
	}()

	log := hlog.FromRequest(r).With().Int64("project_id", p.ID).Logger()
	stream := events.NewStream(h.bus.Subscribe(), p.ID, log)
	ch := stream.Events(ctx)

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepalive := time.NewTicker(h.keepalive)
	defer keepalive.Stop()

	log.Info().Msg("SSE client connected")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("SSE client disconnected")
			return
		case event, ok := <-ch:
			if !ok {
				log.Info().Uint64("missed", stream.Missed()).Msg("SSE stream ended")
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				log.Error().Err(err).Str("event_id", event.ID).Msg("SSE marshal failed")
				continue
			}
			fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", event.ID, event.Kind, data)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}

// Routes registers event routes on the given router.
func (h *EventsHandler) Routes(r chi.Router) {
	r.Get("/projects/{id}/events", h.StreamEvents)
}
