// Package jobs implements the in-memory priority job queue and its worker
// loops. Jobs flow enqueued -> dequeued -> {succeeded, failed}; terminal
// states are not retained beyond a bounded observability log. Pending work is
// lost on restart by design (the non-goal of durable queueing).
package jobs

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"rollcall/internal/cache"
	"rollcall/internal/types"
)

// depthMirrorTTL bounds staleness of the lane depth gauges in the shared
// cache. The gauges are observability only.
const depthMirrorTTL = time.Minute

// Handler processes one job. Handlers run on worker goroutines, may take
// arbitrarily long, and are not preemptively cancelled once started; the
// context is cancelled only on process shutdown.
type Handler func(ctx context.Context, job types.Job) error

// Queue is the three-lane priority queue. Lanes are FIFO internally and
// drained in strict precedence order (urgent > normal > low); a continuous
// stream of urgent jobs starving the lower lanes is an accepted trade-off.
//
// The lane slices and processor table are mutated only under the queue
// mutex, and the mutex is never held across a cache or handler call.
type Queue struct {
	logger *slog.Logger
	store  cache.Store // nil disables the depth mirror

	mu         sync.Mutex
	lanes      map[types.JobPriority][]types.Job
	processors map[string]Handler
	history    []types.JobResult
	historyCap int

	// notify wakes one idle worker after an enqueue. Buffered so an
	// enqueue never blocks on a busy worker pool.
	notify chan struct{}
}

// NewQueue creates an empty queue. store may be nil; historySize bounds the
// terminal-state observability log (zero disables it).
func NewQueue(store cache.Store, historySize int, logger *slog.Logger) *Queue {
	lanes := make(map[types.JobPriority][]types.Job, len(types.Priorities))
	for _, p := range types.Priorities {
		lanes[p] = nil
	}
	return &Queue{
		logger:     logger,
		store:      store,
		lanes:      lanes,
		processors: make(map[string]Handler),
		historyCap: historySize,
		notify:     make(chan struct{}, 1),
	}
}

// RegisterProcessor associates a job name with a handler. Duplicate
// registration is rejected with a conflict error: two subsystems silently
// fighting over a job name is a bug worth surfacing at startup, not a race
// the last caller wins.
func (q *Queue) RegisterProcessor(name string, h Handler) error {
	if name == "" || h == nil {
		return types.NewAppError(types.ErrCodeValidationMissingField,
			"processor registration requires a name and a handler", nil)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.processors[name]; exists {
		return types.NewAppError(types.ErrCodeConflictProcessor,
			"processor already registered for job "+name, nil)
	}
	q.processors[name] = h
	return nil
}

// Enqueue appends a job to the tail of the named priority lane and returns
// immediately without waiting for processing.
func (q *Queue) Enqueue(ctx context.Context, priority types.JobPriority, name string, payload map[string]any) (string, error) {
	if !priority.Valid() {
		return "", types.NewAppError(types.ErrCodeValidationPriority,
			"unknown priority "+string(priority), nil)
	}
	if name == "" {
		return "", types.NewAppError(types.ErrCodeValidationMissingField,
			"job name is required", nil)
	}

	job := types.Job{
		ID:         "job_" + uuid.NewString(),
		Name:       name,
		Priority:   priority,
		Payload:    payload,
		EnqueuedAt: time.Now().UTC(),
	}

	q.mu.Lock()
	q.lanes[priority] = append(q.lanes[priority], job)
	depth := len(q.lanes[priority])
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}

	// Depth gauge write happens outside the critical section and is
	// best-effort.
	q.mirrorDepth(ctx, priority, depth)

	q.logger.InfoContext(ctx, "job enqueued",
		"job_id", job.ID,
		"job_name", name,
		"priority", priority,
	)
	return job.ID, nil
}

// dequeue pops the head of the highest-priority non-empty lane. The single
// mutex guarantees single-delivery: no job can be handed to two workers.
func (q *Queue) dequeue() (types.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, p := range types.Priorities {
		lane := q.lanes[p]
		if len(lane) == 0 {
			continue
		}
		job := lane[0]
		q.lanes[p] = lane[1:]
		return job, true
	}
	return types.Job{}, false
}

// Depths returns the current number of pending jobs per lane.
func (q *Queue) Depths() map[types.JobPriority]int {
	q.mu.Lock()
	defer q.mu.Unlock()

	depths := make(map[types.JobPriority]int, len(types.Priorities))
	for _, p := range types.Priorities {
		depths[p] = len(q.lanes[p])
	}
	return depths
}

// Recent returns the bounded log of terminal job results, newest last.
func (q *Queue) Recent() []types.JobResult {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]types.JobResult(nil), q.history...)
}

// processorFor looks up the handler registered for a job name.
func (q *Queue) processorFor(name string) (Handler, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	h, ok := q.processors[name]
	return h, ok
}

// recordResult appends a terminal state to the bounded history.
func (q *Queue) recordResult(res types.JobResult) {
	if q.historyCap == 0 {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.history = append(q.history, res)
	if len(q.history) > q.historyCap {
		q.history = q.history[len(q.history)-q.historyCap:]
	}
}

// mirrorDepth publishes a lane depth gauge to the shared cache, best-effort.
func (q *Queue) mirrorDepth(ctx context.Context, priority types.JobPriority, depth int) {
	if q.store == nil {
		return
	}
	key := cache.Key("queue", "depth", string(priority))
	if err := q.store.Set(ctx, key, strconv.Itoa(depth), depthMirrorTTL); err != nil {
		q.logger.WarnContext(ctx, "queue depth mirror degraded",
			"priority", priority,
			"error", err,
		)
	}
}
