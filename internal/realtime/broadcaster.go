package realtime

import (
	"context"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"rollcall/internal/types"
)

// maxConcurrentWrites bounds the fan-out parallelism of one broadcast so a
// very large group cannot spawn an unbounded number of goroutines.
const maxConcurrentWrites = 32

// Broadcaster delivers events to subscribers over their live connections.
// Delivery is at-most-once and best-effort by design: there is no retry of a
// missed event, and a reconnecting subscriber only receives events emitted
// after reconnection. Callers needing guaranteed delivery must pair this
// with a durable read model (fetch-on-reconnect from the data store).
type Broadcaster struct {
	registry *Registry
	logger   *slog.Logger
}

// NewBroadcaster creates a Broadcaster over the given registry.
func NewBroadcaster(registry *Registry, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{registry: registry, logger: logger}
}

// SendToSubscriber delivers the event to every live connection of the
// subscriber. An offline subscriber (no connections) is a silent no-op, not
// an error. Returns the number of successful deliveries.
func (b *Broadcaster) SendToSubscriber(ctx context.Context, subscriberID string, ev types.Event) int {
	return b.deliver(ctx, b.registry.connsForSubscriber(subscriberID), ev)
}

// BroadcastToGroup fans the event out to every connection tagged with the
// group id, across all of the group's subscribers. Ordering across
// connections is unspecified; a failure on one connection never blocks
// delivery to the others. Returns the number of successful deliveries.
func (b *Broadcaster) BroadcastToGroup(ctx context.Context, groupID string, ev types.Event) int {
	return b.deliver(ctx, b.registry.connsForGroup(groupID), ev)
}

// deliver writes the event to each connection in parallel. A write failure
// marks the connection dead and routes it to eviction; siblings are
// unaffected (delivery errors are contained, never cascaded).
func (b *Broadcaster) deliver(ctx context.Context, conns []*Connection, ev types.Event) int {
	if len(conns) == 0 {
		return 0
	}

	var delivered atomic.Int64
	g := &errgroup.Group{}
	g.SetLimit(maxConcurrentWrites)

	for _, conn := range conns {
		conn := conn
		g.Go(func() error {
			if err := conn.send(ev); err != nil {
				b.logger.WarnContext(ctx, "event delivery failed, evicting connection",
					"code", types.ErrCodeDeliveryFailed,
					"connection_id", conn.ID,
					"subscriber_id", conn.SubscriberID,
					"event_id", ev.ID,
					"event_type", ev.Type,
					"error", err,
				)
				b.registry.Close(ctx, conn.ID)
				return nil
			}
			delivered.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	return int(delivered.Load())
}
