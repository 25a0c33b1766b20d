package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/snarg/captionhub/internal/database"
	"github.com/snarg/captionhub/internal/events"
)

type SubtitlesHandler struct {
	store Store
	bus   *events.Bus
}

func NewSubtitlesHandler(store Store, bus *events.Bus) *SubtitlesHandler {
	return &SubtitlesHandler{store: store, bus: bus}
}

type subtitleRequest struct {
	Start *int    `json:"start"`
	End   *int    `json:"end"`
	Text  *string `json:"text"`
}

func (req subtitleRequest) validate() string {
	switch {
	case req.Start == nil || req.End == nil || req.Text == nil:
		return "start, end and text are required"
	case *req.Start < 0:
		return "start must be >= 0"
	case *req.End < *req.Start:
		return "end must be >= start"
	}
	return ""
}

func payload(s database.Subtitle) events.SubtitlePayload {
	return events.SubtitlePayload{ID: s.ID, Start: s.Start, End: s.End, Text: s.Text}
}

// ListSubtitles returns the project's subtitles in display order.
func (h *SubtitlesHandler) ListSubtitles(w http.ResponseWriter, r *http.Request) {
	p, ok := loadProject(w, r, h.store)
	if !ok {
		return
	}
	subs, err := h.store.ListSubtitles(r.Context(), p.ID)
	if err != nil {
		writeStoreError(w, r, "subtitle", err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"subtitles": subs})
}

// CreateSubtitle inserts, reads the row back, and only then publishes, so
// the event always matches what a subscriber can fetch.
func (h *SubtitlesHandler) CreateSubtitle(w http.ResponseWriter, r *http.Request) {
	p, ok := loadProject(w, r, h.store)
	if !ok {
		return
	}
	var req subtitleRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if msg := req.validate(); msg != "" {
		WriteErrorDetail(w, http.StatusBadRequest, "validation failed", msg)
		return
	}

	id, err := h.store.InsertSubtitle(r.Context(), database.Subtitle{
		ProjectID: p.ID, Start: *req.Start, End: *req.End, Text: *req.Text,
	})
	if err != nil {
		writeStoreError(w, r, "subtitle", err)
		return
	}
	sub, err := h.store.GetSubtitle(r.Context(), p.ID, id)
	if err != nil {
		writeStoreError(w, r, "subtitle", err)
		return
	}

	h.bus.Publish(events.SubtitleCreated(p.ID, payload(sub)))
	WriteJSON(w, http.StatusCreated, sub)
}

func (h *SubtitlesHandler) UpdateSubtitle(w http.ResponseWriter, r *http.Request) {
	p, ok := loadProject(w, r, h.store)
	if !ok {
		return
	}
	sid, err := PathInt64(r, "sid")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid subtitle id")
		return
	}
	var req subtitleRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if msg := req.validate(); msg != "" {
		WriteErrorDetail(w, http.StatusBadRequest, "validation failed", msg)
		return
	}

	err = h.store.UpdateSubtitle(r.Context(), database.Subtitle{
		ID: sid, ProjectID: p.ID, Start: *req.Start, End: *req.End, Text: *req.Text,
	})
	if err != nil {
		writeStoreError(w, r, "subtitle", err)
		return
	}
	sub, err := h.store.GetSubtitle(r.Context(), p.ID, sid)
	if err != nil {
		writeStoreError(w, r, "subtitle", err)
		return
	}

	h.bus.Publish(events.SubtitleEdited(p.ID, payload(sub)))
	WriteJSON(w, http.StatusOK, sub)
}

// DeleteSubtitle removes a subtitle of this project. An id belonging to
// another project is reported as not found.
func (h *SubtitlesHandler) DeleteSubtitle(w http.ResponseWriter, r *http.Request) {
	p, ok := loadProject(w, r, h.store)
	if !ok {
		return
	}
	sid, err := PathInt64(r, "sid")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid subtitle id")
		return
	}
	if err := h.store.DeleteSubtitle(r.Context(), p.ID, sid); err != nil {
		writeStoreError(w, r, "subtitle", err)
		return
	}

	h.bus.Publish(events.SubtitleDeleted(p.ID, sid))
	w.WriteHeader(http.StatusNoContent)
}

// Routes registers subtitle routes on the given router.
func (h *SubtitlesHandler) Routes(r chi.Router) {
	r.Get("/projects/{id}/subtitles", h.ListSubtitles)
	r.Post("/projects/{id}/subtitles", h.CreateSubtitle)
	r.Put("/projects/{id}/subtitles/{sid}", h.UpdateSubtitle)
	r.Delete("/projects/{id}/subtitles/{sid}", h.DeleteSubtitle)
}
