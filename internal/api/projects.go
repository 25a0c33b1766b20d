package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"
	"github.com/snarg/captionhub/internal/database"
	"github.com/snarg/captionhub/internal/media"
	"github.com/snarg/captionhub/internal/waveform"
)

type ProjectsHandler struct {
	store       Store
	media       media.Source
	ingest      Ingester
	enqueueWait time.Duration
}

// NewProjectsHandler creates the handler. enqueueWait bounds how long a
// create request waits for room in a full ingest queue.
func NewProjectsHandler(store Store, src media.Source, ingest Ingester, enqueueWait time.Duration) *ProjectsHandler {
	if enqueueWait <= 0 {
		enqueueWait = 10 * time.Second
	}
	return &ProjectsHandler{store: store, media: src, ingest: ingest, enqueueWait: enqueueWait}
}

// loadProject resolves {id} to a project the caller may access. It writes
// the error response itself and returns false when the request should stop.
func loadProject(w http.ResponseWriter, r *http.Request, store Store) (database.Project, bool) {
	id, err := PathInt64(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid project id")
		return database.Project{}, false
	}
	p, err := store.GetProjectForUser(r.Context(), id, UserID(r.Context()))
	if err != nil {
		writeStoreError(w, r, "project", err)
		return database.Project{}, false
	}
	return p, true
}

// ListWorkspaces returns the caller's workspaces.
func (h *ProjectsHandler) ListWorkspaces(w http.ResponseWriter, r *http.Request) {
	ws, err := h.store.ListWorkspacesForUser(r.Context(), UserID(r.Context()))
	if err != nil {
		writeStoreError(w, r, "workspace", err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"workspaces": ws})
}

func (h *ProjectsHandler) workspace(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := PathInt64(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid workspace id")
		return 0, false
	}
	ok, err := h.store.IsWorkspaceMember(r.Context(), id, UserID(r.Context()))
	if err != nil {
		writeStoreError(w, r, "workspace", err)
		return 0, false
	}
	if !ok {
		WriteError(w, http.StatusNotFound, "workspace not found")
		return 0, false
	}
	return id, true
}

// ListProjects returns the projects of a workspace the caller belongs to.
func (h *ProjectsHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	wsID, ok := h.workspace(w, r)
	if !ok {
		return
	}
	projects, err := h.store.ListProjects(r.Context(), wsID)
	if err != nil {
		writeStoreError(w, r, "project", err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"projects": projects})
}

type createProjectRequest struct {
	Name  string `json:"name"`
	Video string `json:"video"`
}

// CreateProject stores the project and returns its id without waiting for
// ingestion, which runs in the background; clients learn about completion
// from the event stream or by polling the project. When the ingest queue is
// full the request waits for room up to enqueueWait. A job that still could
// not be queued stays pending and the reconciler queues it later.
func (h *ProjectsHandler) CreateProject(w http.ResponseWriter, r *http.Request) {
	wsID, ok := h.workspace(w, r)
	if !ok {
		return
	}

	var req createProjectRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Video = strings.TrimSpace(req.Video)
	if req.Name == "" {
		WriteErrorDetail(w, http.StatusBadRequest, "validation failed", "name is required")
		return
	}

	np := database.NewProject{WorkspaceID: wsID, Name: req.Name}
	if req.Video != "" {
		if !media.ValidReference(req.Video) {
			WriteErrorDetail(w, http.StatusBadRequest, "validation failed", "video is not a valid reference")
			return
		}
		exists, err := h.media.Exists(r.Context(), req.Video)
		if err != nil {
			if errors.Is(err, media.ErrUpstreamUnavailable) {
				hlog.FromRequest(r).Warn().Err(err).Str("video", req.Video).Msg("video existence check failed")
				WriteError(w, http.StatusServiceUnavailable, "video source unavailable, try again later")
				return
			}
			WriteError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if !exists {
			WriteErrorDetail(w, http.StatusBadRequest, "validation failed", "video not found")
			return
		}
		np.VideoSource = media.SourceYouTube
		np.VideoIdentifier = req.Video
	}

	p, err := h.store.CreateProject(r.Context(), np)
	if err != nil {
		writeStoreError(w, r, "project", err)
		return
	}

	if p.Video != nil && !p.Video.Ready && h.ingest != nil {
		ctx, cancel := context.WithTimeout(r.Context(), h.enqueueWait)
		err := h.ingest.Enqueue(ctx, waveform.Job{ProjectID: p.ID, Video: p.Video.Identifier})
		cancel()
		if err != nil {
			hlog.FromRequest(r).Warn().Err(err).
				Int64("project_id", p.ID).
				Str("video", p.Video.Identifier).
				Msg("ingest queue busy, left pending for reconcile")
		}
	}

	WriteJSON(w, http.StatusCreated, map[string]any{"id": p.ID})
}

// GetProject returns the project with its video readiness.
func (h *ProjectsHandler) GetProject(w http.ResponseWriter, r *http.Request) {
	p, ok := loadProject(w, r, h.store)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, p)
}

// RenameProject changes the project name. Identity and video are immutable.
func (h *ProjectsHandler) RenameProject(w http.ResponseWriter, r *http.Request) {
	p, ok := loadProject(w, r, h.store)
	if !ok {
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := DecodeJSON(r, &req); err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		WriteErrorDetail(w, http.StatusBadRequest, "validation failed", "name is required")
		return
	}
	if err := h.store.RenameProject(r.Context(), p.ID, name); err != nil {
		writeStoreError(w, r, "project", err)
		return
	}
	p.Name = name
	WriteJSON(w, http.StatusOK, p)
}

// GetWaveform serves the raw audiowaveform .dat bytes, 404 until ready.
func (h *ProjectsHandler) GetWaveform(w http.ResponseWriter, r *http.Request) {
	p, ok := loadProject(w, r, h.store)
	if !ok {
		return
	}
	data, err := h.store.GetProjectWaveform(r.Context(), p.ID)
	if err != nil {
		writeStoreError(w, r, "waveform", err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Cache-Control", "private, max-age=86400")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// Routes registers workspace and project routes on the given router.
func (h *ProjectsHandler) Routes(r chi.Router) {
	r.Get("/workspaces", h.ListWorkspaces)
	r.Get("/workspaces/{id}/projects", h.ListProjects)
	r.Post("/workspaces/{id}/projects", h.CreateProject)
	r.Get("/projects/{id}", h.GetProject)
	r.Patch("/projects/{id}", h.RenameProject)
	r.Get("/projects/{id}/waveform", h.GetWaveform)
}
