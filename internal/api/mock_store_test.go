package api

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/snarg/captionhub/internal/database"
	"github.com/snarg/captionhub/internal/media"
	"github.com/snarg/captionhub/internal/waveform"
)

type snapKey struct{ project, ts int64 }

// mockStore is an in-memory Store and snapshot.Store with the same
// NotFound/Conflict rules as the database gateway.
type mockStore struct {
	mu sync.Mutex

	healthErr  error
	members    map[int64][]int64 // workspace -> users
	workspaces []database.Workspace
	projects   map[int64]database.Project
	videos     map[string]*database.Video
	waveforms  map[int64][]byte // project -> bytes
	subtitles  map[int64]database.Subtitle
	snapshots  map[snapKey]database.Snapshot
	nextID     int64

	readBackErr error
	calls       []string
}

func newMockStore() *mockStore {
	return &mockStore{
		members:   map[int64][]int64{},
		projects:  map[int64]database.Project{},
		videos:    map[string]*database.Video{},
		waveforms: map[int64][]byte{},
		subtitles: map[int64]database.Subtitle{},
		snapshots: map[snapKey]database.Snapshot{},
		nextID:    100,
	}
}

func notFound(op string) error { return fmt.Errorf("%s: %w", op, database.ErrNotFound) }

func (m *mockStore) record(call string) {
	m.calls = append(m.calls, call)
}

func (m *mockStore) addMember(workspaceID, userID int64) {
	m.members[workspaceID] = append(m.members[workspaceID], userID)
}

func (m *mockStore) addProject(p database.Project) {
	m.projects[p.ID] = p
}

func (m *mockStore) isMember(workspaceID, userID int64) bool {
	for _, u := range m.members[workspaceID] {
		if u == userID {
			return true
		}
	}
	return false
}

func (m *mockStore) HealthCheck(ctx context.Context) error { return m.healthErr }

func (m *mockStore) ListWorkspacesForUser(ctx context.Context, userID int64) ([]database.Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []database.Workspace{}
	for _, w := range m.workspaces {
		if m.isMember(w.ID, userID) {
			out = append(out, w)
		}
	}
	return out, nil
}

func (m *mockStore) IsWorkspaceMember(ctx context.Context, workspaceID, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isMember(workspaceID, userID), nil
}

func (m *mockStore) CreateProject(ctx context.Context, np database.NewProject) (database.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("CreateProject")
	m.nextID++
	p := database.Project{ID: m.nextID, WorkspaceID: np.WorkspaceID, Name: np.Name}
	if np.VideoIdentifier != "" {
		v, ok := m.videos[np.VideoIdentifier]
		if !ok {
			m.nextID++
			v = &database.Video{ID: m.nextID, Source: np.VideoSource, Identifier: np.VideoIdentifier}
			m.videos[np.VideoIdentifier] = v
		}
		cp := *v
		p.Video = &cp
	}
	m.projects[p.ID] = p
	return p, nil
}

func (m *mockStore) GetProjectForUser(ctx context.Context, projectID, userID int64) (database.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[projectID]
	if !ok || !m.isMember(p.WorkspaceID, userID) {
		return database.Project{}, notFound("get project")
	}
	return p, nil
}

func (m *mockStore) ListProjects(ctx context.Context, workspaceID int64) ([]database.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []database.Project{}
	for _, p := range m.projects {
		if p.WorkspaceID == workspaceID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockStore) RenameProject(ctx context.Context, projectID int64, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[projectID]
	if !ok {
		return notFound("rename project")
	}
	p.Name = name
	m.projects[projectID] = p
	return nil
}

func (m *mockStore) GetProjectWaveform(ctx context.Context, projectID int64) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.waveforms[projectID]
	if !ok {
		return nil, notFound("get waveform")
	}
	return data, nil
}

// SetVideoWaveform keeps the first stored result, like the COALESCE in the
// database gateway, and makes it visible to every project on the video.
func (m *mockStore) SetVideoWaveform(ctx context.Context, identifier string, durationMs int, data []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("SetVideoWaveform")
	v, ok := m.videos[identifier]
	if !ok {
		return 0, notFound("set video waveform")
	}
	if v.DurationMs == nil {
		d := durationMs
		v.DurationMs = &d
	}
	v.Ready = true
	for id, p := range m.projects {
		if p.Video == nil || p.Video.Identifier != identifier {
			continue
		}
		if _, ok := m.waveforms[id]; !ok {
			m.waveforms[id] = data
		}
		cp := *v
		p.Video = &cp
		m.projects[id] = p
	}
	return *v.DurationMs, nil
}

func (m *mockStore) MarkVideoFailed(ctx context.Context, identifier string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("MarkVideoFailed")
	if _, ok := m.videos[identifier]; !ok {
		return notFound("mark video failed")
	}
	return nil
}

// InsertSubtitle trims trailing whitespace from text, standing in for any
// normalization the database applies, so tests can tell request fields from
// persisted ones.
func (m *mockStore) InsertSubtitle(ctx context.Context, s database.Subtitle) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("InsertSubtitle")
	if _, ok := m.projects[s.ProjectID]; !ok {
		return 0, notFound("insert subtitle")
	}
	m.nextID++
	s.ID = m.nextID
	s.Text = strings.TrimRight(s.Text, " ")
	m.subtitles[s.ID] = s
	return s.ID, nil
}

func (m *mockStore) GetSubtitle(ctx context.Context, projectID, id int64) (database.Subtitle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("GetSubtitle")
	if m.readBackErr != nil {
		return database.Subtitle{}, m.readBackErr
	}
	s, ok := m.subtitles[id]
	if !ok || s.ProjectID != projectID {
		return database.Subtitle{}, notFound("get subtitle")
	}
	return s, nil
}

func (m *mockStore) UpdateSubtitle(ctx context.Context, s database.Subtitle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("UpdateSubtitle")
	cur, ok := m.subtitles[s.ID]
	if !ok || cur.ProjectID != s.ProjectID {
		return notFound("update subtitle")
	}
	s.Text = strings.TrimRight(s.Text, " ")
	m.subtitles[s.ID] = s
	return nil
}

func (m *mockStore) DeleteSubtitle(ctx context.Context, projectID, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("DeleteSubtitle")
	s, ok := m.subtitles[id]
	if !ok || s.ProjectID != projectID {
		return notFound("delete subtitle")
	}
	delete(m.subtitles, id)
	return nil
}

func (m *mockStore) ListSubtitles(ctx context.Context, projectID int64) ([]database.Subtitle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []database.Subtitle{}
	for _, s := range m.subtitles {
		if s.ProjectID == projectID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *mockStore) InsertSnapshot(ctx context.Context, s database.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := snapKey{s.ProjectID, s.Timestamp}
	if _, ok := m.snapshots[k]; ok {
		return fmt.Errorf("insert snapshot: %w", database.ErrConflict)
	}
	m.snapshots[k] = s
	return nil
}

func (m *mockStore) ListSnapshots(ctx context.Context, projectID int64) ([]database.SnapshotSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []database.SnapshotSummary{}
	for k, s := range m.snapshots {
		if k.project == projectID {
			out = append(out, database.SnapshotSummary{Timestamp: s.Timestamp, Name: s.Name})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	return out, nil
}

func (m *mockStore) GetSnapshot(ctx context.Context, projectID, ts int64) (database.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snapshots[snapKey{projectID, ts}]
	if !ok {
		return database.Snapshot{}, notFound("get snapshot")
	}
	return s, nil
}

func (m *mockStore) RenameSnapshot(ctx context.Context, projectID, ts int64, name *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := snapKey{projectID, ts}
	s, ok := m.snapshots[k]
	if !ok {
		return notFound("rename snapshot")
	}
	s.Name = name
	m.snapshots[k] = s
	return nil
}

// ── media / ingest fakes ─────────────────────────────────────────────

type mockSource struct {
	exists bool
	err    error
	stream *media.Stream
}

func (s *mockSource) Exists(ctx context.Context, ref string) (bool, error) { return s.exists, s.err }

func (s *mockSource) BestAudioStream(ctx context.Context, ref string) (media.Stream, error) {
	if s.stream == nil {
		return media.Stream{}, errors.New("no stream configured")
	}
	return *s.stream, nil
}

type mockIngest struct {
	mu   sync.Mutex
	jobs []waveform.Job
	full bool
}

func (q *mockIngest) Enqueue(ctx context.Context, j waveform.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.full {
		return context.DeadlineExceeded
	}
	q.jobs = append(q.jobs, j)
	return nil
}

func (q *mockIngest) Stats() waveform.QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return waveform.QueueStats{Pending: len(q.jobs)}
}
