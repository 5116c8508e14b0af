package realtime

import (
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/Dekunlebells/okaygoal/internal/domain"
)

// Dispatcher is the producer-facing write side of the broadcast layer. The
// score poller, the match-event source, and the notification source all
// publish through it. Every publish is fire-and-forget: best effort,
// at-most-once per connection, no delivery confirmation.
type Dispatcher struct {
	hub   *Hub
	clock clockwork.Clock
}

// NewDispatcher creates a dispatcher publishing through the given hub.
func NewDispatcher(hub *Hub, clock clockwork.Clock) *Dispatcher {
	return &Dispatcher{hub: hub, clock: clock}
}

// PublishLiveScoreUpdate fans a score delta out to the union of the global
// live-scores channel and the update's per-match channel. A connection
// subscribed to both receives exactly one copy.
func (d *Dispatcher) PublishLiveScoreUpdate(update domain.ScoreUpdate) {
	payload, ok := d.encode(domain.TypeLiveScore, update)
	if !ok {
		return
	}
	d.hub.cmdCh <- publishCmd{
		kind:     domain.TypeLiveScore,
		channels: []string{domain.ChannelLiveScores, domain.MatchChannel(update.MatchID)},
		payload:  payload,
	}
}

// PublishMatchEvent fans an in-match event out to the per-match channel only.
func (d *Dispatcher) PublishMatchEvent(matchID int64, event domain.MatchEvent) {
	payload, ok := d.encode(domain.TypeMatchEvent, event)
	if !ok {
		return
	}
	d.hub.cmdCh <- publishCmd{
		kind:     domain.TypeMatchEvent,
		channels: []string{domain.MatchChannel(matchID)},
		payload:  payload,
	}
}

// PublishUserNotification delivers a personal notification to the identity's
// connections that have opted in to the notifications channel.
func (d *Dispatcher) PublishUserNotification(identity string, notification domain.Notification) {
	payload, ok := d.encode(domain.TypeUserNotification, notification)
	if !ok {
		return
	}
	d.hub.cmdCh <- publishCmd{
		kind:     domain.TypeUserNotification,
		identity: identity,
		payload:  payload,
	}
}

func (d *Dispatcher) encode(frameType string, data any) ([]byte, bool) {
	env, err := domain.NewEnvelope(frameType, data, d.clock.Now())
	if err != nil {
		slog.Error("Failed to build broadcast frame", "type", frameType, "error", err)
		return nil, false
	}
	payload, err := env.Encode()
	if err != nil {
		slog.Error("Failed to encode broadcast frame", "type", frameType, "error", err)
		return nil, false
	}
	return payload, true
}
