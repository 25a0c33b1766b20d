package events

import (
	"encoding/json"
	"time"
)

// Kind is the discriminator clients see in the SSE "event:" field.
type Kind string

const (
	KindWaveformReady  Kind = "waveform_ready"
	KindSubtitleCreate Kind = "subtitle_create"
	KindSubtitleEdit   Kind = "subtitle_edit"
	KindSubtitleDelete Kind = "subtitle_delete"
)

// Event is a published domain event. Events are never persisted.
type Event struct {
	ID        string          `json:"event_id"`
	Kind      Kind            `json:"event_type"`
	ProjectID int64           `json:"project_id"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"` // pre-serialized payload
}

// EventData holds all fields needed to publish an event.
type EventData struct {
	Kind      Kind
	ProjectID int64
	Payload   any
}

// WaveformPayload announces that a project's media finished ingesting.
type WaveformPayload struct {
	Video      string `json:"video"`
	DurationMs int    `json:"duration_ms"`
}

// SubtitlePayload carries the persisted fields of a created or edited subtitle.
type SubtitlePayload struct {
	ID    int64  `json:"id"`
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text"`
}

// DeletedPayload identifies a removed subtitle.
type DeletedPayload struct {
	ID int64 `json:"id"`
}

func WaveformReady(projectID int64, video string, durationMs int) EventData {
	return EventData{
		Kind:      KindWaveformReady,
		ProjectID: projectID,
		Payload:   WaveformPayload{Video: video, DurationMs: durationMs},
	}
}

func SubtitleCreated(projectID int64, s SubtitlePayload) EventData {
	return EventData{Kind: KindSubtitleCreate, ProjectID: projectID, Payload: s}
}

func SubtitleEdited(projectID int64, s SubtitlePayload) EventData {
	return EventData{Kind: KindSubtitleEdit, ProjectID: projectID, Payload: s}
}

func SubtitleDeleted(projectID, subtitleID int64) EventData {
	return EventData{Kind: KindSubtitleDelete, ProjectID: projectID, Payload: DeletedPayload{ID: subtitleID}}
}
