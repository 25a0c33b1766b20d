package api

import (
	"net/http"
	"time"

	"github.com/snarg/captionhub/internal/events"
	"github.com/snarg/captionhub/internal/waveform"
)

type HealthResponse struct {
	Status           string               `json:"status"`
	Version          string               `json:"version"`
	UptimeSeconds    int64                `json:"uptime_seconds"`
	Checks           map[string]string    `json:"checks"`
	EventSubscribers int                  `json:"event_subscribers"`
	EventBusCapacity int                  `json:"event_bus_capacity"`
	Ingest           *waveform.QueueStats `json:"ingest,omitempty"`
}

type HealthHandler struct {
	store     Store
	bus       *events.Bus
	ingest    Ingester
	mirror    MirrorStatus
	version   string
	startTime time.Time
}

func NewHealthHandler(store Store, bus *events.Bus, ingest Ingester, mirror MirrorStatus, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{
		store:     store,
		bus:       bus,
		ingest:    ingest,
		mirror:    mirror,
		version:   version,
		startTime: startTime,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"
	httpStatus := http.StatusOK

	// Database check
	if err := h.store.HealthCheck(r.Context()); err != nil {
		checks["database"] = "error"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	// MQTT mirror check
	if h.mirror != nil {
		if h.mirror.IsConnected() {
			checks["mqtt"] = "ok"
		} else {
			checks["mqtt"] = "disconnected"
			if status == "healthy" {
				status = "degraded"
			}
		}
	} else {
		checks["mqtt"] = "not_configured"
	}

	resp := HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        checks,
	}
	if h.bus != nil {
		resp.EventSubscribers = h.bus.SubscriberCount()
		resp.EventBusCapacity = h.bus.Capacity()
	}
	if h.ingest != nil {
		stats := h.ingest.Stats()
		resp.Ingest = &stats
		checks["ingest"] = "ok"
	} else {
		checks["ingest"] = "not_configured"
	}

	WriteJSON(w, httpStatus, resp)
}
