package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/snarg/captionhub/internal/snapshot"
)

type SnapshotsHandler struct {
	store     Store
	snapshots *snapshot.Manager
}

func NewSnapshotsHandler(store Store, snapshots *snapshot.Manager) *SnapshotsHandler {
	return &SnapshotsHandler{store: store, snapshots: snapshots}
}

type snapshotNameRequest struct {
	Name *string `json:"name"`
}

func (h *SnapshotsHandler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	p, ok := loadProject(w, r, h.store)
	if !ok {
		return
	}
	list, err := h.snapshots.List(r.Context(), p.ID)
	if err != nil {
		writeStoreError(w, r, "snapshot", err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"snapshots": list})
}

// CreateSnapshot captures the current subtitles. The body is optional.
// Two captures in the same second return 409.
func (h *SnapshotsHandler) CreateSnapshot(w http.ResponseWriter, r *http.Request) {
	p, ok := loadProject(w, r, h.store)
	if !ok {
		return
	}
	var req snapshotNameRequest
	if r.ContentLength != 0 {
		if err := DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
			WriteErrorDetail(w, http.StatusBadRequest, "invalid request body", err.Error())
			return
		}
	}
	sum, err := h.snapshots.Capture(r.Context(), p.ID, req.Name)
	if err != nil {
		writeStoreError(w, r, "snapshot", err)
		return
	}
	WriteJSON(w, http.StatusCreated, sum)
}

func (h *SnapshotsHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	p, ok := loadProject(w, r, h.store)
	if !ok {
		return
	}
	ts, err := PathInt64(r, "ts")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid snapshot timestamp")
		return
	}
	detail, err := h.snapshots.Get(r.Context(), p.ID, ts)
	if err != nil {
		writeStoreError(w, r, "snapshot", err)
		return
	}
	WriteJSON(w, http.StatusOK, detail)
}

// RenameSnapshot sets the label; a null or blank name clears it.
func (h *SnapshotsHandler) RenameSnapshot(w http.ResponseWriter, r *http.Request) {
	p, ok := loadProject(w, r, h.store)
	if !ok {
		return
	}
	ts, err := PathInt64(r, "ts")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid snapshot timestamp")
		return
	}
	var req snapshotNameRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := h.snapshots.Rename(r.Context(), p.ID, ts, req.Name); err != nil {
		writeStoreError(w, r, "snapshot", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Routes registers snapshot routes on the given router.
func (h *SnapshotsHandler) Routes(r chi.Router) {
	r.Get("/projects/{id}/snapshots", h.ListSnapshots)
	r.Post("/projects/{id}/snapshots", h.CreateSnapshot)
	r.Get("/projects/{id}/snapshots/{ts}", h.GetSnapshot)
	r.Patch("/projects/{id}/snapshots/{ts}", h.RenameSnapshot)
}
