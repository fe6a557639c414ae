package jobs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"rollcall/internal/types"
)

// idlePoll is the fallback wake interval for workers. The notify channel
// wakes one worker per enqueue; the poll catches the case where several jobs
// arrive while all workers are busy and the single buffered signal is spent.
const idlePoll = 250 * time.Millisecond

// RunWorker drains the queue until the context is cancelled. Multiple
// workers may run concurrently; the queue's single-delivery dequeue
// guarantees no job reaches two of them. A hung handler blocks only its own
// worker, not the other lanes.
func (q *Queue) RunWorker(ctx context.Context, workerID int) error {
	logger := q.logger.With("worker_id", workerID)
	logger.Info("queue worker started")

	ticker := time.NewTicker(idlePoll)
	defer ticker.Stop()

	for {
		if job, ok := q.dequeue(); ok {
			q.mirrorDepth(ctx, job.Priority, q.Depths()[job.Priority])
			q.process(ctx, logger, job)
			continue
		}

		select {
		case <-ctx.Done():
			logger.Info("queue worker stopped")
			return ctx.Err()
		case <-q.notify:
		case <-ticker.C:
		}
	}
}

// process invokes the registered handler for one dequeued job. Every failure
// mode is contained to this job: a missing processor drops it with a logged
// error, a handler error or panic marks it failed. There is no automatic
// retry at this layer; a caller wanting retry re-enqueues.
func (q *Queue) process(ctx context.Context, logger *slog.Logger, job types.Job) {
	handler, ok := q.processorFor(job.Name)
	if !ok {
		logger.ErrorContext(ctx, "no processor registered, dropping job",
			"job_id", job.ID,
			"job_name", job.Name,
		)
		q.recordResult(types.JobResult{
			JobID:      job.ID,
			Name:       job.Name,
			Priority:   job.Priority,
			Outcome:    types.JobFailed,
			Error:      "no processor registered",
			FinishedAt: time.Now().UTC(),
		})
		return
	}

	job.Attempts++
	start := time.Now()
	err := invoke(ctx, handler, job)
	elapsed := time.Since(start)

	if err != nil {
		logger.ErrorContext(ctx, "job handler failed",
			"code", types.ErrCodeHandlerExecution,
			"job_id", job.ID,
			"job_name", job.Name,
			"priority", job.Priority,
			"payload_digest", payloadDigest(job.Payload),
			"duration", elapsed,
			"error", err,
		)
		q.recordResult(types.JobResult{
			JobID:      job.ID,
			Name:       job.Name,
			Priority:   job.Priority,
			Outcome:    types.JobFailed,
			Error:      err.Error(),
			FinishedAt: time.Now().UTC(),
		})
		return
	}

	logger.InfoContext(ctx, "job succeeded",
		"job_id", job.ID,
		"job_name", job.Name,
		"duration", elapsed,
	)
	q.recordResult(types.JobResult{
		JobID:      job.ID,
		Name:       job.Name,
		Priority:   job.Priority,
		Outcome:    types.JobSucceeded,
		FinishedAt: time.Now().UTC(),
	})
}

// invoke runs the handler, converting a panic into an error so one
// misbehaving handler cannot take down the worker.
func invoke(ctx context.Context, handler Handler, job types.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler(ctx, job)
}

// payloadDigest returns a short content digest of the payload for log
// correlation without logging the payload itself.
func payloadDigest(payload map[string]any) string {
	if len(payload) == 0 {
		return "empty"
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "unserializable"
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:6])
}
