package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/captionhub/internal/events"
)

type message struct {
	topic   string
	payload []byte
}

type mockPublisher struct {
	mu   sync.Mutex
	msgs []message
	err  error
}

func (p *mockPublisher) Publish(topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, message{topic, payload})
	return p.err
}

func (p *mockPublisher) IsConnected() bool { return true }

func (p *mockPublisher) snapshot() []message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]message(nil), p.msgs...)
}

func TestTopic(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		e      events.Event
		want   string
	}{
		{"plain", "captionhub", events.Event{ProjectID: 7, Kind: events.KindSubtitleEdit}, "captionhub/projects/7/subtitle_edit"},
		{"slashes_trimmed", "/site/a/", events.Event{ProjectID: 1, Kind: events.KindWaveformReady}, "site/a/projects/1/waveform_ready"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Topic(tt.prefix, tt.e); got != tt.want {
				t.Errorf("Topic = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMirrorForwardsUntilBusClose(t *testing.T) {
	bus := events.NewBus(16)
	pub := &mockPublisher{}
	m := New(bus, pub, "captionhub", zerolog.Nop())
	go m.Run(context.Background())

	bus.Publish(events.SubtitleCreated(3, events.SubtitlePayload{ID: 10, Start: 0, End: 500, Text: "hi"}))
	bus.Publish(events.SubtitleDeleted(4, 11))
	bus.Close()

	select {
	case <-m.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("mirror did not stop after bus close")
	}

	msgs := pub.snapshot()
	if len(msgs) != 2 {
		t.Fatalf("published %d messages, want 2", len(msgs))
	}
	if msgs[0].topic != "captionhub/projects/3/subtitle_create" {
		t.Errorf("topic[0] = %q", msgs[0].topic)
	}
	if msgs[1].topic != "captionhub/projects/4/subtitle_delete" {
		t.Errorf("topic[1] = %q", msgs[1].topic)
	}
	var e events.Event
	if err := json.Unmarshal(msgs[0].payload, &e); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if e.ProjectID != 3 || e.Kind != events.KindSubtitleCreate {
		t.Errorf("payload event = %+v", e)
	}
}

func TestMirrorStopsOnCancel(t *testing.T) {
	bus := events.NewBus(16)
	defer bus.Close()
	pub := &mockPublisher{err: errors.New("broker down")}
	m := New(bus, pub, "p", zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	go m.Run(ctx)

	bus.Publish(events.SubtitleDeleted(1, 1)) // publish error is logged, not fatal
	cancel()

	select {
	case <-m.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("mirror did not stop after cancel")
	}
	if bus.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount = %d after stop, want 0", bus.SubscriberCount())
	}
}
