package events

import (
	"context"
	"errors"
	"io"

	"github.com/rs/zerolog"
)

// Stream is one client's project-scoped view over a bus subscription.
// Events for other projects are read and discarded; lag signals are logged
// and skipped so a slow client keeps streaming with a gap.
type Stream struct {
	sub       *Subscription
	projectID int64
	log       zerolog.Logger
	gaps      uint64
}

// NewStream wraps sub. The stream owns sub and closes it on Close.
func NewStream(sub *Subscription, projectID int64, log zerolog.Logger) *Stream {
	return &Stream{sub: sub, projectID: projectID, log: log}
}

// Next returns the next event for the stream's project. It returns io.EOF
// when the bus shuts down or the stream is closed, and ctx.Err() on cancel.
func (s *Stream) Next(ctx context.Context) (Event, error) {
	for {
		r, err := s.sub.Recv(ctx)
		if errors.Is(err, ErrClosed) {
			return Event{}, io.EOF
		}
		if err != nil {
			return Event{}, err
		}
		if r.Lagged() {
			s.gaps += r.Missed
			s.log.Warn().
				Int64("project_id", s.projectID).
				Uint64("missed", r.Missed).
				Msg("event stream lagged, continuing after gap")
			continue
		}
		if r.Event.ProjectID != s.projectID {
			continue
		}
		return r.Event, nil
	}
}

// Events pumps Next into a channel until ctx is cancelled or the bus closes,
// then closes both the channel and the stream. Callers must not use Next
// concurrently with Events.
func (s *Stream) Events(ctx context.Context) <-chan Event {
	ch := make(chan Event)
	go func() {
		defer close(ch)
		defer s.Close()
		for {
			ev, err := s.Next(ctx)
			if err != nil {
				return
			}
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

// Missed returns the total number of events lost to lag on this stream.
func (s *Stream) Missed() uint64 { return s.gaps }

// Close releases the underlying subscription.
func (s *Stream) Close() { s.sub.Close() }
