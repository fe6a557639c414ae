package realtime

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"rollcall/internal/types"
)

// HeartbeatConfig tunes the liveness loops. StaleAfter must exceed
// PingInterval (enforced at config load) or every connection would look
// stale between pings.
type HeartbeatConfig struct {
	PingInterval time.Duration
	ReapInterval time.Duration
	StaleAfter   time.Duration
}

// Heartbeat runs the two liveness loops: a periodic ping to every live
// connection, and a reaper that evicts connections whose last successful
// ping exceeds the stale threshold. Together they bound resource leakage
// from clients that disappear without a clean disconnect (dropped network,
// crashed tab) to within one cleanup cycle.
//
// Both loops snapshot the registry and do all stream and cache writes
// outside its lock, so they never block new connection registration for more
// than the snapshot.
type Heartbeat struct {
	registry *Registry
	mirror   *Mirror // nil disables mirror refresh
	cfg      HeartbeatConfig
	logger   *slog.Logger
	clock    func() time.Time
}

// NewHeartbeat creates the liveness loops for the given registry. mirror may
// be nil when no cache store is configured.
func NewHeartbeat(registry *Registry, mirror *Mirror, cfg HeartbeatConfig, logger *slog.Logger) *Heartbeat {
	return &Heartbeat{
		registry: registry,
		mirror:   mirror,
		cfg:      cfg,
		logger:   logger,
		clock:    time.Now,
	}
}

// SetClock overrides the time source. Intended for tests.
func (h *Heartbeat) SetClock(clock func() time.Time) {
	h.clock = clock
}

// Run starts both loops and blocks until the context is cancelled.
func (h *Heartbeat) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return h.runPing(ctx) })
	g.Go(func() error { return h.runReaper(ctx) })
	return g.Wait()
}

func (h *Heartbeat) runPing(ctx context.Context) error {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	h.logger.Info("heartbeat loop started", "interval", h.cfg.PingInterval)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			h.pingOnce(ctx)
		}
	}
}

func (h *Heartbeat) runReaper(ctx context.Context) error {
	ticker := time.NewTicker(h.cfg.ReapInterval)
	defer ticker.Stop()

	h.logger.Info("reaper loop started",
		"interval", h.cfg.ReapInterval,
		"stale_after", h.cfg.StaleAfter,
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			h.reapOnce(ctx)
		}
	}
}

// pingOnce sends a ping event to every live connection. A successful write
// updates the connection's last ping and refreshes its mirror entry; a
// failed write evicts the connection immediately.
func (h *Heartbeat) pingOnce(ctx context.Context) {
	conns := h.registry.all()
	if len(conns) == 0 {
		return
	}

	now := h.clock()
	ping := types.NewEvent(types.EventPing, map[string]any{
		"at": now.Format(time.RFC3339),
	})

	g := &errgroup.Group{}
	g.SetLimit(maxConcurrentWrites)

	for _, conn := range conns {
		conn := conn
		g.Go(func() error {
			if err := conn.send(ping); err != nil {
				h.logger.WarnContext(ctx, "heartbeat write failed, evicting connection",
					"connection_id", conn.ID,
					"subscriber_id", conn.SubscriberID,
					"error", err,
				)
				h.registry.Close(ctx, conn.ID)
				return nil
			}
			if h.registry.touch(conn.ID, now) && h.mirror != nil {
				h.mirror.Refresh(ctx, mirrorRecordOf(conn, now))
			}
			return nil
		})
	}
	_ = g.Wait()
}

// reapOnce evicts every connection whose last successful ping is older than
// the stale threshold.
func (h *Heartbeat) reapOnce(ctx context.Context) {
	cutoff := h.clock().Add(-h.cfg.StaleAfter)
	staleIDs := h.registry.stale(cutoff)
	if len(staleIDs) == 0 {
		return
	}

	h.logger.InfoContext(ctx, "reaping stale connections", "count", len(staleIDs))
	for _, id := range staleIDs {
		h.registry.Close(ctx, id)
	}
}
