// Package snapshot captures immutable, point-in-time copies of a project's
// subtitle set.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/captionhub/internal/database"
)

// Store is the slice of the persistence gateway the manager needs.
type Store interface {
	ListSubtitles(ctx context.Context, projectID int64) ([]database.Subtitle, error)
	InsertSnapshot(ctx context.Context, s database.Snapshot) error
	ListSnapshots(ctx context.Context, projectID int64) ([]database.SnapshotSummary, error)
	GetSnapshot(ctx context.Context, projectID, timestamp int64) (database.Snapshot, error)
	RenameSnapshot(ctx context.Context, projectID, timestamp int64, name *string) error
}

// Detail is a snapshot with its subtitle set decoded.
type Detail struct {
	Timestamp int64               `json:"timestamp"`
	Name      *string             `json:"name"`
	Subtitles []database.Subtitle `json:"subtitles"`
}

type Manager struct {
	store Store
	now   func() time.Time
	log   zerolog.Logger
}

func NewManager(store Store, log zerolog.Logger) *Manager {
	return &Manager{store: store, now: time.Now, log: log}
}

// Capture freezes the project's current subtitles under the current
// wall-clock second. A second capture in the same second returns
// database.ErrConflict and leaves the first untouched.
func (m *Manager) Capture(ctx context.Context, projectID int64, name *string) (database.SnapshotSummary, error) {
	subs, err := m.store.ListSubtitles(ctx, projectID)
	if err != nil {
		return database.SnapshotSummary{}, err
	}
	blob, err := json.Marshal(subs)
	if err != nil {
		return database.SnapshotSummary{}, fmt.Errorf("encode snapshot: %w", err)
	}

	snap := database.Snapshot{
		ProjectID: projectID,
		Timestamp: m.now().Unix(),
		Name:      normalizeName(name),
		Subtitles: blob,
	}
	if err := m.store.InsertSnapshot(ctx, snap); err != nil {
		return database.SnapshotSummary{}, err
	}

	m.log.Debug().
		Int64("project_id", projectID).
		Int64("timestamp", snap.Timestamp).
		Int("subtitles", len(subs)).
		Msg("snapshot captured")
	return database.SnapshotSummary{Timestamp: snap.Timestamp, Name: snap.Name}, nil
}

// List returns the project's snapshots, most recent first.
func (m *Manager) List(ctx context.Context, projectID int64) ([]database.SnapshotSummary, error) {
	return m.store.ListSnapshots(ctx, projectID)
}

// Get returns the snapshot taken at exactly timestamp, or database.ErrNotFound.
func (m *Manager) Get(ctx context.Context, projectID, timestamp int64) (Detail, error) {
	snap, err := m.store.GetSnapshot(ctx, projectID, timestamp)
	if err != nil {
		return Detail{}, err
	}
	var subs []database.Subtitle
	if err := json.Unmarshal(snap.Subtitles, &subs); err != nil {
		return Detail{}, fmt.Errorf("decode snapshot %d/%d: %w", projectID, timestamp, err)
	}
	if subs == nil {
		subs = []database.Subtitle{}
	}
	return Detail{Timestamp: snap.Timestamp, Name: snap.Name, Subtitles: subs}, nil
}

// Rename sets the label, or clears it when name is nil or blank.
// Returns database.ErrNotFound when no snapshot matches.
func (m *Manager) Rename(ctx context.Context, projectID, timestamp int64, name *string) error {
	return m.store.RenameSnapshot(ctx, projectID, timestamp, normalizeName(name))
}

func normalizeName(name *string) *string {
	if name == nil {
		return nil
	}
	s := strings.TrimSpace(*name)
	if s == "" {
		return nil
	}
	return &s
}
