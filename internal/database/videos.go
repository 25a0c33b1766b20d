package database

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// Video is an external media reference. DurationMs stays nil until
// ingestion succeeds; the waveform bytes are served by GetProjectWaveform.
type Video struct {
	ID         int64  `json:"id"`
	Source     string `json:"source"`
	Identifier string `json:"identifier"`
	DurationMs *int   `json:"duration_ms,omitempty"`
	Ready      bool   `json:"ready"`
}

// upsertVideo returns the row for identifier, creating it if needed. A new
// project clears an earlier failure so its video is ingested again.
func upsertVideo(ctx context.Context, q pgx.Tx, source, identifier string) (Video, error) {
	var v Video
	err := q.QueryRow(ctx, `
		INSERT INTO videos (source, identifier)
		VALUES ($1, $2)
		ON CONFLICT (identifier) DO UPDATE SET ingest_failed_at = NULL
		RETURNING id, source, identifier, duration_ms, waveform IS NOT NULL
	`, source, identifier).Scan(&v.ID, &v.Source, &v.Identifier, &v.DurationMs, &v.Ready)
	return v, err
}

// SetVideoWaveform records ingestion output for identifier and returns the
// stored duration. Each column is written only while still NULL, so when two
// pipelines race on the same video the first result wins and both callers
// see it.
func (db *DB) SetVideoWaveform(ctx context.Context, identifier string, durationMs int, waveform []byte) (int, error) {
	var stored int
	err := db.Pool.QueryRow(ctx, `
		UPDATE videos SET
			duration_ms      = COALESCE(duration_ms, $2),
			waveform         = COALESCE(waveform, $3),
			ingest_failed_at = NULL
		WHERE identifier = $1
		RETURNING duration_ms
	`, identifier, durationMs, waveform).Scan(&stored)
	if err != nil {
		return 0, mapErr("set video waveform", err)
	}
	return stored, nil
}

// MarkVideoFailed records that an ingestion run failed at one of its steps.
// Failed videos are left out of PendingIngests so they are not retried.
func (db *DB) MarkVideoFailed(ctx context.Context, identifier string) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE videos SET ingest_failed_at = now()
		WHERE identifier = $1 AND waveform IS NULL
	`, identifier)
	return expectOne("mark video failed", tag, err)
}

// PendingIngest is a project whose video has neither a waveform nor a
// recorded failure: its ingestion never ran or was interrupted.
type PendingIngest struct {
	ProjectID int64
	Video     string
}

// PendingIngests lists every project waiting on a waveform, oldest first.
func (db *DB) PendingIngests(ctx context.Context) ([]PendingIngest, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT p.id, v.identifier
		FROM projects p
		JOIN videos v ON v.id = p.video_id
		WHERE v.waveform IS NULL AND v.ingest_failed_at IS NULL
		ORDER BY p.id
	`)
	if err != nil {
		return nil, mapErr("list pending ingests", err)
	}
	defer rows.Close()

	pending := []PendingIngest{}
	for rows.Next() {
		var pi PendingIngest
		if err := rows.Scan(&pi.ProjectID, &pi.Video); err != nil {
			return nil, err
		}
		pending = append(pending, pi)
	}
	return pending, rows.Err()
}

// GetProjectWaveform returns the waveform bytes for a project's video.
// ErrNotFound covers a missing project, a project without video, and a
// video whose ingestion has not completed.
func (db *DB) GetProjectWaveform(ctx context.Context, projectID int64) ([]byte, error) {
	var waveform []byte
	err := db.Pool.QueryRow(ctx, `
		SELECT v.waveform FROM projects p JOIN videos v ON v.id = p.video_id
		WHERE p.id = $1 AND v.waveform IS NOT NULL
	`, projectID).Scan(&waveform)
	if err != nil {
		return nil, mapErr("get waveform", err)
	}
	return waveform, nil
}
