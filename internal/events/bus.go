package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/snarg/captionhub/internal/metrics"
)

// DefaultCapacity is the number of events retained for slow subscribers.
const DefaultCapacity = 1024

// ErrClosed is returned by Subscription.Recv once the bus is closed and the
// subscriber has drained everything published before the close, or after the
// subscription itself was closed.
var ErrClosed = errors.New("event bus closed")

// Bus is a bounded multi-subscriber broadcast of domain events.
//
// Events live in a fixed ring indexed by a monotonically increasing sequence
// number. Each subscription keeps its own read position; a subscriber that
// falls more than the ring capacity behind gets one lag signal and resumes
// at the oldest retained event.
type Bus struct {
	mu       sync.Mutex
	ring     []Event
	capacity uint64
	head     uint64 // sequence number of the next publish
	subs     int
	closed   bool
	notify   chan struct{} // closed and replaced on every publish
}

// NewBus creates a bus retaining up to capacity unread events per subscriber.
func NewBus(capacity int) *Bus {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Bus{
		ring:     make([]Event, capacity),
		capacity: uint64(capacity),
		notify:   make(chan struct{}),
	}
}

// Drop reasons reported by Publish through metrics.EventsDroppedTotal.
const (
	DropNoSubscribers = "no_subscribers"
	DropClosed        = "closed"
	DropEncode        = "encode"
)

// Publish stamps and distributes an event. It never blocks on subscribers.
// The event is dropped (and false returned) when nobody is subscribed, the
// bus is closed, or the payload cannot be encoded; each case is counted
// under its own reason.
func (b *Bus) Publish(e EventData) bool {
	data, err := json.Marshal(e.Payload)
	if err != nil {
		metrics.EventsDroppedTotal.WithLabelValues(DropEncode).Inc()
		return false
	}
	event := Event{
		ID:        uuid.NewString(),
		Kind:      e.Kind,
		ProjectID: e.ProjectID,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	b.mu.Lock()
	if b.closed || b.subs == 0 {
		reason := DropNoSubscribers
		if b.closed {
			reason = DropClosed
		}
		b.mu.Unlock()
		metrics.EventsDroppedTotal.WithLabelValues(reason).Inc()
		return false
	}
	b.ring[b.head%b.capacity] = event
	b.head++
	b.wakeLocked()
	b.mu.Unlock()

	metrics.EventsPublishedTotal.WithLabelValues(string(e.Kind)).Inc()
	return true
}

// Subscribe returns a cursor that observes every event published after this call.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.subs++
	}
	return &Subscription{bus: b, next: b.head, done: b.closed}
}

// Close stops accepting publishes. Subscribers drain what is buffered and
// then receive ErrClosed.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.wakeLocked()
}

// SubscriberCount returns the number of live subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.subs
}

// Capacity returns the ring size.
func (b *Bus) Capacity() int {
	return int(b.capacity)
}

func (b *Bus) wakeLocked() {
	close(b.notify)
	b.notify = make(chan struct{})
}

// oldestLocked is the sequence number of the oldest event still in the ring.
func (b *Bus) oldestLocked() uint64 {
	if b.head > b.capacity {
		return b.head - b.capacity
	}
	return 0
}

// Received is one read from a subscription: either an event, or a lag
// signal reporting how many events were overwritten before they were read.
type Received struct {
	Event  Event
	Missed uint64
}

// Lagged reports whether this read is a lag signal rather than an event.
func (r Received) Lagged() bool { return r.Missed > 0 }

// Subscription is a single reader's cursor over the bus. It is not safe for
// concurrent Recv calls; Close may be called from any goroutine.
type Subscription struct {
	bus  *Bus
	next uint64
	done bool // guarded by bus.mu
}

// Recv blocks until the next event, a lag signal, ctx cancellation, or close.
func (s *Subscription) Recv(ctx context.Context) (Received, error) {
	b := s.bus
	for {
		b.mu.Lock()
		if s.done {
			b.mu.Unlock()
			return Received{}, ErrClosed
		}
		if s.next < b.head {
			if oldest := b.oldestLocked(); s.next < oldest {
				missed := oldest - s.next
				s.next = oldest
				b.mu.Unlock()
				metrics.EventsLaggedTotal.Add(float64(missed))
				return Received{Missed: missed}, nil
			}
			ev := b.ring[s.next%b.capacity]
			s.next++
			b.mu.Unlock()
			return Received{Event: ev}, nil
		}
		if b.closed {
			b.mu.Unlock()
			return Received{}, ErrClosed
		}
		wait := b.notify
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return Received{}, ctx.Err()
		case <-wait:
		}
	}
}

// Close detaches the subscription from the bus. A blocked Recv returns ErrClosed.
func (s *Subscription) Close() {
	b := s.bus
	b.mu.Lock()
	defer b.mu.Unlock()
	if s.done {
		return
	}
	s.done = true
	b.subs--
	b.wakeLocked()
}
