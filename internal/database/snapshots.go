package database

import (
	"context"
	"encoding/json"
)

// Snapshot is a frozen copy of a project's subtitles. Timestamp is unix
// seconds and, with ProjectID, identifies the snapshot.
type Snapshot struct {
	ProjectID int64           `json:"project_id"`
	Timestamp int64           `json:"timestamp"`
	Name      *string         `json:"name"`
	Subtitles json.RawMessage `json:"subtitles"`
}

type SnapshotSummary struct {
	Timestamp int64   `json:"timestamp"`
	Name      *string `json:"name"`
}

// InsertSnapshot stores s. A second snapshot for the same project and
// second returns ErrConflict.
func (db *DB) InsertSnapshot(ctx context.Context, s Snapshot) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO snapshots (project_id, taken_at, name, subtitles)
		VALUES ($1, $2, $3, $4)
	`, s.ProjectID, s.Timestamp, s.Name, []byte(s.Subtitles))
	return mapErr("insert snapshot", err)
}

// ListSnapshots returns the project's snapshots, newest first.
func (db *DB) ListSnapshots(ctx context.Context, projectID int64) ([]SnapshotSummary, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT taken_at, name FROM snapshots
		WHERE project_id = $1
		ORDER BY taken_at DESC
	`, projectID)
	if err != nil {
		return nil, mapErr("list snapshots", err)
	}
	defer rows.Close()

	out := []SnapshotSummary{}
	for rows.Next() {
		var s SnapshotSummary
		if err := rows.Scan(&s.Timestamp, &s.Name); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (db *DB) GetSnapshot(ctx context.Context, projectID, timestamp int64) (Snapshot, error) {
	s := Snapshot{ProjectID: projectID, Timestamp: timestamp}
	var blob []byte
	err := db.Pool.QueryRow(ctx, `
		SELECT name, subtitles FROM snapshots WHERE project_id = $1 AND taken_at = $2
	`, projectID, timestamp).Scan(&s.Name, &blob)
	if err != nil {
		return Snapshot{}, mapErr("get snapshot", err)
	}
	s.Subtitles = blob
	return s, nil
}

// RenameSnapshot sets or clears the label. ErrNotFound when no row matches.
func (db *DB) RenameSnapshot(ctx context.Context, projectID, timestamp int64, name *string) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE snapshots SET name = $3 WHERE project_id = $1 AND taken_at = $2
	`, projectID, timestamp, name)
	return expectOne("rename snapshot", tag, err)
}
