package api

import (
	"context"

	"github.com/snarg/captionhub/internal/database"
	"github.com/snarg/captionhub/internal/waveform"
)

// Store is the persistence gateway as seen by the HTTP handlers.
// *database.DB implements it.
type Store interface {
	HealthCheck(ctx context.Context) error

	ListWorkspacesForUser(ctx context.Context, userID int64) ([]database.Workspace, error)
	IsWorkspaceMember(ctx context.Context, workspaceID, userID int64) (bool, error)

	CreateProject(ctx context.Context, np database.NewProject) (database.Project, error)
	GetProjectForUser(ctx context.Context, projectID, userID int64) (database.Project, error)
	ListProjects(ctx context.Context, workspaceID int64) ([]database.Project, error)
	RenameProject(ctx context.Context, projectID int64, name string) error
	GetProjectWaveform(ctx context.Context, projectID int64) ([]byte, error)

	InsertSubtitle(ctx context.Context, s database.Subtitle) (int64, error)
	GetSubtitle(ctx context.Context, projectID, id int64) (database.Subtitle, error)
	UpdateSubtitle(ctx context.Context, s database.Subtitle) error
	DeleteSubtitle(ctx context.Context, projectID, id int64) error
	ListSubtitles(ctx context.Context, projectID int64) ([]database.Subtitle, error)
}

// Ingester accepts background waveform jobs. *waveform.WorkerPool
// implements it. Enqueue waits for queue space until ctx is done.
type Ingester interface {
	Enqueue(ctx context.Context, j waveform.Job) error
	Stats() waveform.QueueStats
}

// MirrorStatus reports the MQTT mirror connection state.
type MirrorStatus interface {
	IsConnected() bool
}
