package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"rollcall/internal/types"
)

// SubscriberResolver checks a subscriber id against the external user
// collaborator. Satisfied by db.SubscriberRepo.
type SubscriberResolver interface {
	Resolve(ctx context.Context, subscriberID string) (types.Subscriber, error)
}

// Connection is one live push connection. It is owned exclusively by the
// Registry for its lifetime: created on Open, destroyed on explicit Close,
// stream cancellation, or reaper eviction. LastPingAt is guarded by the
// registry mutex; only registry methods touch it.
type Connection struct {
	ID           string
	SubscriberID string
	GroupID      string
	CreatedAt    time.Time
	LastPingAt   time.Time

	stream EventStream
}

// send writes one event to the connection's stream. Stream implementations
// serialize their own writes, so this is safe from the broadcaster and the
// heartbeat loop concurrently.
func (c *Connection) send(ev types.Event) error {
	return c.stream.Send(ev)
}

// Registry is the in-process, authoritative map of live push connections.
// A best-effort mirror of connection identity is kept in the shared cache so
// other instances can answer "is subscriber X reachable" without holding the
// socket; the mirror is discovery-only and never consulted locally.
type Registry struct {
	resolver SubscriberResolver
	mirror   *Mirror // nil disables mirroring
	logger   *slog.Logger
	clock    func() time.Time

	mu    sync.RWMutex
	conns map[string]*Connection
}

// NewRegistry creates an empty Registry. mirror may be nil when no cache
// store is configured.
func NewRegistry(resolver SubscriberResolver, mirror *Mirror, logger *slog.Logger) *Registry {
	return &Registry{
		resolver: resolver,
		mirror:   mirror,
		logger:   logger,
		clock:    time.Now,
		conns:    make(map[string]*Connection),
	}
}

// SetClock overrides the time source. Intended for tests.
func (r *Registry) SetClock(clock func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clock = clock
}

// Open resolves the subscriber, registers a new connection for it, and
// mirrors the connection identity into the shared cache. Returns a
// not_found_subscriber AppError when the subscriber cannot be resolved.
// Mirror failures are logged and do not fail the open: the local map is
// authoritative.
func (r *Registry) Open(ctx context.Context, subscriberID, groupID string, stream EventStream) (*Connection, error) {
	sub, err := r.resolver.Resolve(ctx, subscriberID)
	if err != nil {
		return nil, err
	}
	if groupID == "" {
		groupID = sub.GroupID
	}

	r.mu.Lock()
	now := r.clock()
	conn := &Connection{
		ID:           "conn_" + uuid.NewString(),
		SubscriberID: subscriberID,
		GroupID:      groupID,
		CreatedAt:    now,
		LastPingAt:   now,
		stream:       stream,
	}
	r.conns[conn.ID] = conn
	r.mu.Unlock()

	// Cache writes happen outside the critical section.
	if r.mirror != nil {
		r.mirror.Add(ctx, mirrorRecordOf(conn, now))
	}

	r.logger.InfoContext(ctx, "connection opened",
		"connection_id", conn.ID,
		"subscriber_id", subscriberID,
		"group_id", groupID,
	)
	return conn, nil
}

// Close removes the connection, closes its stream, and shrinks the cache
// mirror. It is idempotent: closing an unknown or already-closed connection
// is a no-op.
func (r *Registry) Close(ctx context.Context, connID string) {
	r.mu.Lock()
	conn, ok := r.conns[connID]
	if ok {
		delete(r.conns, connID)
	}
	now := r.clock()
	r.mu.Unlock()

	if !ok {
		return
	}

	_ = conn.stream.Close()

	if r.mirror != nil {
		r.mirror.Remove(ctx, mirrorRecordOf(conn, now))
	}

	r.logger.InfoContext(ctx, "connection closed",
		"connection_id", connID,
		"subscriber_id", conn.SubscriberID,
		"group_id", conn.GroupID,
	)
}

// ListBySubscriber returns the ids of the subscriber's live connections.
// Reads only the local map; the cache mirror is never the source of truth
// within a process.
func (r *Registry) ListBySubscriber(subscriberID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for id, c := range r.conns {
		if c.SubscriberID == subscriberID {
			ids = append(ids, id)
		}
	}
	return ids
}

// ListByGroup returns the ids of all live connections tagged with the group.
func (r *Registry) ListByGroup(groupID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for id, c := range r.conns {
		if c.GroupID == groupID {
			ids = append(ids, id)
		}
	}
	return ids
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// connsForSubscriber snapshots the subscriber's connections for delivery.
// The snapshot lets callers write to streams without holding the lock.
func (r *Registry) connsForSubscriber(subscriberID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var conns []*Connection
	for _, c := range r.conns {
		if c.SubscriberID == subscriberID {
			conns = append(conns, c)
		}
	}
	return conns
}

// connsForGroup snapshots the group's connections for delivery.
func (r *Registry) connsForGroup(groupID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var conns []*Connection
	for _, c := range r.conns {
		if c.GroupID == groupID {
			conns = append(conns, c)
		}
	}
	return conns
}

// all snapshots every live connection. Used by the heartbeat loop.
func (r *Registry) all() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	return conns
}

// touch records a successful ping write. Returns false when the connection
// no longer exists (evicted between snapshot and write).
func (r *Registry) touch(connID string, at time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		return false
	}
	conn.LastPingAt = at
	return true
}

// stale returns the ids of connections whose last successful ping is older
// than cutoff.
func (r *Registry) stale(cutoff time.Time) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for id, c := range r.conns {
		if c.LastPingAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids
}
