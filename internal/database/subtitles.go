package database

import "context"

// Subtitle is one timed caption line. Display order is by Start.
type Subtitle struct {
	ID        int64  `json:"id"`
	ProjectID int64  `json:"project_id"`
	Start     int    `json:"start"`
	End       int    `json:"end"`
	Text      string `json:"text"`
}

// InsertSubtitle stores s and returns the generated id.
func (db *DB) InsertSubtitle(ctx context.Context, s Subtitle) (int64, error) {
	var id int64
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO subtitles (project_id, start_ms, end_ms, text)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, s.ProjectID, s.Start, s.End, s.Text).Scan(&id)
	if err != nil {
		return 0, mapErr("insert subtitle", err)
	}
	return id, nil
}

func (db *DB) GetSubtitle(ctx context.Context, projectID, id int64) (Subtitle, error) {
	var s Subtitle
	err := db.Pool.QueryRow(ctx, `
		SELECT id, project_id, start_ms, end_ms, text
		FROM subtitles WHERE project_id = $1 AND id = $2
	`, projectID, id).Scan(&s.ID, &s.ProjectID, &s.Start, &s.End, &s.Text)
	if err != nil {
		return Subtitle{}, mapErr("get subtitle", err)
	}
	return s, nil
}

// UpdateSubtitle rewrites timing and text. The row must belong to
// s.ProjectID, otherwise ErrNotFound.
func (db *DB) UpdateSubtitle(ctx context.Context, s Subtitle) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE subtitles SET start_ms = $3, end_ms = $4, text = $5, updated_at = now()
		WHERE project_id = $1 AND id = $2
	`, s.ProjectID, s.ID, s.Start, s.End, s.Text)
	return expectOne("update subtitle", tag, err)
}

func (db *DB) DeleteSubtitle(ctx context.Context, projectID, id int64) error {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM subtitles WHERE project_id = $1 AND id = $2`, projectID, id)
	return expectOne("delete subtitle", tag, err)
}

// ListSubtitles returns every subtitle of a project ordered by start time.
func (db *DB) ListSubtitles(ctx context.Context, projectID int64) ([]Subtitle, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, project_id, start_ms, end_ms, text
		FROM subtitles WHERE project_id = $1
		ORDER BY start_ms, id
	`, projectID)
	if err != nil {
		return nil, mapErr("list subtitles", err)
	}
	defer rows.Close()

	subs := []Subtitle{}
	for rows.Next() {
		var s Subtitle
		if err := rows.Scan(&s.ID, &s.ProjectID, &s.Start, &s.End, &s.Text); err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}
