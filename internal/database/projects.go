package database

import (
	"context"
	"fmt"
)

// NewProject is the input to CreateProject. VideoIdentifier may be empty
// for a project without media.
type NewProject struct {
	WorkspaceID     int64
	Name            string
	VideoSource     string
	VideoIdentifier string
}

type Project struct {
	ID          int64  `json:"id"`
	WorkspaceID int64  `json:"workspace_id"`
	Name        string `json:"name"`
	Video       *Video `json:"video,omitempty"`
}

// CreateProject inserts the project and, when a video is referenced, the
// video row it points at. The returned Project carries the video's current
// readiness so callers know whether ingestion is still needed.
func (db *DB) CreateProject(ctx context.Context, np NewProject) (Project, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return Project{}, fmt.Errorf("begin create project: %w", err)
	}
	defer tx.Rollback(ctx)

	p := Project{WorkspaceID: np.WorkspaceID, Name: np.Name}
	var videoID *int64
	if np.VideoIdentifier != "" {
		v, err := upsertVideo(ctx, tx, np.VideoSource, np.VideoIdentifier)
		if err != nil {
			return Project{}, mapErr("upsert video", err)
		}
		p.Video = &v
		videoID = &v.ID
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO projects (workspace_id, name, video_id)
		VALUES ($1, $2, $3)
		RETURNING id
	`, np.WorkspaceID, np.Name, videoID).Scan(&p.ID)
	if err != nil {
		return Project{}, mapErr("insert project", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Project{}, fmt.Errorf("commit create project: %w", err)
	}
	return p, nil
}

const projectSelect = `
	SELECT p.id, p.workspace_id, p.name,
		v.id, v.source, v.identifier, v.duration_ms, v.waveform IS NOT NULL
	FROM projects p
	LEFT JOIN videos v ON v.id = p.video_id
`

type projectRow interface {
	Scan(dest ...any) error
}

func scanProject(row projectRow) (Project, error) {
	var (
		p          Project
		vid        *int64
		source     *string
		identifier *string
		durationMs *int
		ready      *bool
	)
	if err := row.Scan(&p.ID, &p.WorkspaceID, &p.Name, &vid, &source, &identifier, &durationMs, &ready); err != nil {
		return Project{}, err
	}
	if vid != nil {
		p.Video = &Video{
			ID:         *vid,
			Source:     *source,
			Identifier: *identifier,
			DurationMs: durationMs,
			Ready:      ready != nil && *ready,
		}
	}
	return p, nil
}

// GetProjectForUser returns the project if userID is a member of its
// workspace. Unauthorized and absent projects both yield ErrNotFound.
func (db *DB) GetProjectForUser(ctx context.Context, projectID, userID int64) (Project, error) {
	row := db.Pool.QueryRow(ctx, projectSelect+`
		JOIN workspace_members m ON m.workspace_id = p.workspace_id AND m.user_id = $2
		WHERE p.id = $1
	`, projectID, userID)
	p, err := scanProject(row)
	if err != nil {
		return Project{}, mapErr("get project", err)
	}
	return p, nil
}

// ListProjects returns the projects in a workspace ordered by id.
func (db *DB) ListProjects(ctx context.Context, workspaceID int64) ([]Project, error) {
	rows, err := db.Pool.Query(ctx, projectSelect+`
		WHERE p.workspace_id = $1
		ORDER BY p.id
	`, workspaceID)
	if err != nil {
		return nil, mapErr("list projects", err)
	}
	defer rows.Close()

	projects := []Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (db *DB) RenameProject(ctx context.Context, projectID int64, name string) error {
	tag, err := db.Pool.Exec(ctx, `UPDATE projects SET name = $2 WHERE id = $1`, projectID, name)
	return expectOne("rename project", tag, err)
}
