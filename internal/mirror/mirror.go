// Package mirror republishes bus events to an MQTT broker so consumers
// outside the HTTP API can follow project activity.
package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/snarg/captionhub/internal/events"
)

// Publisher sends one message to a topic.
type Publisher interface {
	Publish(topic string, payload []byte) error
	IsConnected() bool
}

// Topic returns the MQTT topic for e: {prefix}/projects/{id}/{kind}.
func Topic(prefix string, e events.Event) string {
	prefix = strings.Trim(prefix, "/")
	return prefix + "/projects/" + strconv.FormatInt(e.ProjectID, 10) + "/" + string(e.Kind)
}

// Mirror is a single bus subscriber forwarding every event.
type Mirror struct {
	sub    *events.Subscription
	pub    Publisher
	prefix string
	log    zerolog.Logger
	done   chan struct{}
}

// New subscribes to bus immediately so no event published after New
// returns is missed.
func New(bus *events.Bus, pub Publisher, prefix string, log zerolog.Logger) *Mirror {
	return &Mirror{
		sub:    bus.Subscribe(),
		pub:    pub,
		prefix: prefix,
		log:    log,
		done:   make(chan struct{}),
	}
}

// Run forwards events until ctx is cancelled or the bus closes.
func (m *Mirror) Run(ctx context.Context) {
	defer close(m.done)
	defer m.sub.Close()

	for {
		r, err := m.sub.Recv(ctx)
		if err != nil {
			if !errors.Is(err, events.ErrClosed) && ctx.Err() == nil {
				m.log.Error().Err(err).Msg("mirror receive failed")
			}
			return
		}
		if r.Lagged() {
			m.log.Warn().Uint64("missed", r.Missed).Msg("mirror lagged, events skipped")
			continue
		}
		m.forward(r.Event)
	}
}

// Done is closed when Run returns.
func (m *Mirror) Done() <-chan struct{} { return m.done }

func (m *Mirror) forward(e events.Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		m.log.Error().Err(err).Str("event_id", e.ID).Msg("mirror marshal failed")
		return
	}
	topic := Topic(m.prefix, e)
	if err := m.pub.Publish(topic, payload); err != nil {
		m.log.Warn().Err(err).Str("topic", topic).Msg("mirror publish failed")
	}
}
