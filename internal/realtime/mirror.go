package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"time"

	"rollcall/internal/cache"
)

// Mirror maintains a best-effort, TTL-bound copy of connection identity in
// the shared cache store so other instances can discover whether a
// subscriber is currently reachable. Three keys are written per connection:
//
//	rollcall:conn:<connectionID>        -> JSON connection record
//	rollcall:subconns:<subscriberID>    -> JSON array of connection ids
//	rollcall:groupconns:<groupID>       -> JSON array of connection ids
//
// Every write is best-effort: a failure is logged and swallowed, because the
// local registry map stays authoritative and cross-process visibility simply
// lapses until the cache store recovers. The set updates are read-modify-
// write; the short TTL bounds any staleness from concurrent writers.
type Mirror struct {
	store  cache.Store
	ttl    time.Duration
	logger *slog.Logger
}

// NewMirror creates a Mirror writing entries with the given TTL. The TTL must
// exceed the heartbeat interval (enforced at config load) so entries for live
// connections survive between refreshes.
func NewMirror(store cache.Store, ttl time.Duration, logger *slog.Logger) *Mirror {
	return &Mirror{store: store, ttl: ttl, logger: logger}
}

// mirrorRecord is the JSON document stored under the by-connection key.
type mirrorRecord struct {
	ConnectionID string    `json:"connection_id"`
	SubscriberID string    `json:"subscriber_id"`
	GroupID      string    `json:"group_id"`
	CreatedAt    time.Time `json:"created_at"`
	LastPing     time.Time `json:"last_ping"`
}

// mirrorRecordOf snapshots the fields the mirror needs. Called while the
// caller still knows the connection is consistent.
func mirrorRecordOf(c *Connection, lastPing time.Time) mirrorRecord {
	return mirrorRecord{
		ConnectionID: c.ID,
		SubscriberID: c.SubscriberID,
		GroupID:      c.GroupID,
		CreatedAt:    c.CreatedAt,
		LastPing:     lastPing,
	}
}

// Add writes the connection record and inserts the connection id into the
// by-subscriber and by-group sets.
func (m *Mirror) Add(ctx context.Context, rec mirrorRecord) {
	m.writeRecord(ctx, rec)
	m.updateSet(ctx, cache.Key("subconns", rec.SubscriberID), rec.ConnectionID, true)
	m.updateSet(ctx, cache.Key("groupconns", rec.GroupID), rec.ConnectionID, true)
}

// Refresh re-writes the connection record with an updated last ping and
// renews the TTL on both set keys. Called from the heartbeat loop.
func (m *Mirror) Refresh(ctx context.Context, rec mirrorRecord) {
	m.writeRecord(ctx, rec)
	m.updateSet(ctx, cache.Key("subconns", rec.SubscriberID), rec.ConnectionID, true)
	m.updateSet(ctx, cache.Key("groupconns", rec.GroupID), rec.ConnectionID, true)
}

// Remove deletes the connection record and shrinks both sets, deleting a set
// key entirely once it is empty.
func (m *Mirror) Remove(ctx context.Context, rec mirrorRecord) {
	if err := m.store.Delete(ctx, cache.Key("conn", rec.ConnectionID)); err != nil {
		m.warn(ctx, "removing mirrored connection", rec.ConnectionID, err)
	}
	m.updateSet(ctx, cache.Key("subconns", rec.SubscriberID), rec.ConnectionID, false)
	m.updateSet(ctx, cache.Key("groupconns", rec.GroupID), rec.ConnectionID, false)
}

func (m *Mirror) writeRecord(ctx context.Context, rec mirrorRecord) {
	payload, err := json.Marshal(rec)
	if err != nil {
		m.warn(ctx, "marshaling mirror record", rec.ConnectionID, err)
		return
	}
	if err := m.store.Set(ctx, cache.Key("conn", rec.ConnectionID), string(payload), m.ttl); err != nil {
		m.warn(ctx, "mirroring connection record", rec.ConnectionID, err)
	}
}

// updateSet performs a read-modify-write on a JSON id set, inserting or
// removing connID. An empty result deletes the key.
func (m *Mirror) updateSet(ctx context.Context, key, connID string, insert bool) {
	var ids []string
	raw, err := m.store.Get(ctx, key)
	switch {
	case err == nil:
		if err := json.Unmarshal([]byte(raw), &ids); err != nil {
			// Corrupt entry: rebuild the set from this operation alone.
			ids = nil
		}
	case errors.Is(err, cache.ErrNotFound):
		// First member, or the set expired.
	default:
		m.warn(ctx, "reading mirror set", connID, err)
		return
	}

	if insert {
		if !slices.Contains(ids, connID) {
			ids = append(ids, connID)
		}
	} else {
		ids = slices.DeleteFunc(ids, func(id string) bool { return id == connID })
	}

	if len(ids) == 0 {
		if err := m.store.Delete(ctx, key); err != nil {
			m.warn(ctx, "deleting empty mirror set", connID, err)
		}
		return
	}

	payload, err := json.Marshal(ids)
	if err != nil {
		m.warn(ctx, "marshaling mirror set", connID, err)
		return
	}
	if err := m.store.Set(ctx, key, string(payload), m.ttl); err != nil {
		m.warn(ctx, "writing mirror set", connID, err)
	}
}

func (m *Mirror) warn(ctx context.Context, msg, connID string, err error) {
	m.logger.WarnContext(ctx, "cache mirror degraded: "+msg,
		"connection_id", connID,
		"error", err,
	)
}
