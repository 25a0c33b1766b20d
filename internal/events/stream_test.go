package events

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func nextTimeout(t *testing.T, s *Stream) (Event, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return s.Next(ctx)
}

func TestStreamNext(t *testing.T) {
	t.Run("filters_other_projects", func(t *testing.T) {
		bus := NewBus(16)
		s := NewStream(bus.Subscribe(), 2, zerolog.Nop())
		defer s.Close()

		bus.Publish(SubtitleDeleted(1, 10))
		bus.Publish(WaveformReady(3, "zzz", 5000))
		bus.Publish(WaveformReady(2, "abc123", 5000))

		ev, err := nextTimeout(t, s)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if ev.ProjectID != 2 || ev.Kind != KindWaveformReady {
			t.Errorf("got %s for project %d, want waveform_ready for project 2", ev.Kind, ev.ProjectID)
		}
	})

	t.Run("continues_after_lag", func(t *testing.T) {
		bus := NewBus(2)
		s := NewStream(bus.Subscribe(), 1, zerolog.Nop())
		defer s.Close()

		for i := int64(0); i < 5; i++ {
			bus.Publish(SubtitleDeleted(1, i))
		}

		ev, err := nextTimeout(t, s)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if got := payloadID(t, ev); got != 3 {
			t.Errorf("first event after gap id = %d, want 3", got)
		}
		if s.Missed() != 3 {
			t.Errorf("Missed = %d, want 3", s.Missed())
		}
	})

	t.Run("bus_close_ends_with_eof", func(t *testing.T) {
		bus := NewBus(4)
		s := NewStream(bus.Subscribe(), 1, zerolog.Nop())
		defer s.Close()
		bus.Close()

		if _, err := nextTimeout(t, s); !errors.Is(err, io.EOF) {
			t.Errorf("err = %v, want io.EOF", err)
		}
	})
}

func TestStreamEvents(t *testing.T) {
	t.Run("delivers_and_closes_on_cancel", func(t *testing.T) {
		bus := NewBus(16)
		s := NewStream(bus.Subscribe(), 5, zerolog.Nop())

		ctx, cancel := context.WithCancel(context.Background())
		ch := s.Events(ctx)

		bus.Publish(SubtitleCreated(5, SubtitlePayload{ID: 1, Text: "a"}))
		select {
		case ev := <-ch:
			if ev.Kind != KindSubtitleCreate {
				t.Errorf("Kind = %q, want %q", ev.Kind, KindSubtitleCreate)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}

		cancel()
		select {
		case _, ok := <-ch:
			if ok {
				t.Fatal("channel delivered after cancel, want closed")
			}
		case <-time.After(time.Second):
			t.Fatal("channel not closed within 1s of cancel")
		}

		deadline := time.Now().Add(time.Second)
		for bus.SubscriberCount() != 0 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		if n := bus.SubscriberCount(); n != 0 {
			t.Errorf("SubscriberCount = %d after cancel, want 0", n)
		}
	})

	t.Run("closes_on_bus_shutdown", func(t *testing.T) {
		bus := NewBus(16)
		s := NewStream(bus.Subscribe(), 5, zerolog.Nop())
		ch := s.Events(context.Background())

		bus.Close()
		select {
		case _, ok := <-ch:
			if ok {
				t.Fatal("unexpected event")
			}
		case <-time.After(time.Second):
			t.Fatal("channel not closed after bus shutdown")
		}
	})
}
