package jobs

import (
	"context"
	"log/slog"
	"time"

	"rollcall/internal/cache"
	"rollcall/internal/types"
)

// Job names for the built-in recurring tasks the scheduler registers at
// startup. Other subsystems enqueue these directly as well (e.g., an ad-hoc
// metrics refresh from an admin action).
const (
	JobAttendanceReminder = "attendance_reminder"
	JobMetricsRollup      = "metrics_rollup"
	JobCacheCleanup       = "cache_cleanup"
)

// SubscriberDirectory is the read-only slice of the relational collaborator
// the built-in processors need for payload construction. Satisfied by
// db.SubscriberRepo.
type SubscriberDirectory interface {
	ListActiveIDs(ctx context.Context) ([]string, error)
	ListGroupIDs(ctx context.Context) ([]string, error)
}

// EventSender is the broadcaster surface the processors publish through.
// Satisfied by realtime.Broadcaster.
type EventSender interface {
	SendToSubscriber(ctx context.Context, subscriberID string, ev types.Event) int
	BroadcastToGroup(ctx context.Context, groupID string, ev types.Event) int
}

// ProcessorDeps carries the collaborators the built-in processors use.
type ProcessorDeps struct {
	Directory SubscriberDirectory
	Sender    EventSender
	Store     cache.Store
	Logger    *slog.Logger
}

// RegisterBuiltins registers the built-in processors on the queue. Called
// once at process start; a conflict here means two components claimed the
// same job name and is a startup failure.
func RegisterBuiltins(q *Queue, deps ProcessorDeps) error {
	registrations := map[string]Handler{
		JobAttendanceReminder: deps.attendanceReminder,
		JobMetricsRollup:      deps.metricsRollup,
		JobCacheCleanup:       deps.cacheCleanup,
	}
	for name, handler := range registrations {
		if err := q.RegisterProcessor(name, handler); err != nil {
			return err
		}
	}
	return nil
}

// attendanceReminder notifies every group with active subscribers that an
// attendance submission is due. Offline groups are silent no-ops under the
// at-most-once contract.
func (d ProcessorDeps) attendanceReminder(ctx context.Context, job types.Job) error {
	groups, err := d.Directory.ListGroupIDs(ctx)
	if err != nil {
		return err
	}
	active, err := d.Directory.ListActiveIDs(ctx)
	if err != nil {
		return err
	}

	message := "attendance submission due"
	if m, ok := job.Payload["message"].(string); ok && m != "" {
		message = m
	}

	total := 0
	for _, groupID := range groups {
		ev := types.NewEvent(types.EventNotification, map[string]any{
			"message":  message,
			"group_id": groupID,
		})
		total += d.Sender.BroadcastToGroup(ctx, groupID, ev)
	}

	// Deliveries below the active roster size means some subscribers are
	// offline right now; they get no reminder, per at-most-once delivery.
	d.Logger.InfoContext(ctx, "attendance reminders sent",
		"job_id", job.ID,
		"groups", len(groups),
		"active_subscribers", len(active),
		"deliveries", total,
	)
	return nil
}

// metricsRollup publishes a metrics_update event to every group. The payload
// travels through from the enqueue call so the scheduler (or an admin
// trigger) controls which metrics window is announced.
func (d ProcessorDeps) metricsRollup(ctx context.Context, job types.Job) error {
	groups, err := d.Directory.ListGroupIDs(ctx)
	if err != nil {
		return err
	}

	for _, groupID := range groups {
		data := map[string]any{
			"group_id":     groupID,
			"generated_at": time.Now().UTC().Format(time.RFC3339),
		}
		for k, v := range job.Payload {
			data[k] = v
		}
		d.Sender.BroadcastToGroup(ctx, groupID, types.NewEvent(types.EventMetricsUpdate, data))
	}
	return nil
}

// cacheCleanup clears a response-cache namespace. The prefix may be
// overridden through the payload for targeted invalidation.
func (d ProcessorDeps) cacheCleanup(ctx context.Context, job types.Job) error {
	prefix := cache.Key("resp")
	if p, ok := job.Payload["prefix"].(string); ok && p != "" {
		prefix = p
	}
	if err := d.Store.DeleteByPattern(ctx, prefix); err != nil {
		return err
	}

	d.Logger.InfoContext(ctx, "cache namespace cleared",
		"job_id", job.ID,
		"prefix", prefix,
	)
	return nil
}
