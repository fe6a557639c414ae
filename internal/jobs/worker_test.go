package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/types"
)

func TestWorker_ProcessSuccess(t *testing.T) {
	q := newTestQueue()
	ctx := context.Background()

	var got types.Job
	require.NoError(t, q.RegisterProcessor("mark-present", func(_ context.Context, job types.Job) error {
		got = job
		return nil
	}))

	id, err := q.Enqueue(ctx, types.PriorityNormal, "mark-present", map[string]any{"student_id": "stu_1"})
	require.NoError(t, err)

	job, ok := q.dequeue()
	require.True(t, ok)
	q.process(ctx, testLogger(), job)

	assert.Equal(t, id, got.ID)
	assert.Equal(t, 1, got.Attempts)

	recent := q.Recent()
	require.Len(t, recent, 1)
	assert.Equal(t, types.JobSucceeded, recent[0].Outcome)
}

func TestWorker_HandlerErrorMarksFailed(t *testing.T) {
	q := newTestQueue()
	ctx := context.Background()

	require.NoError(t, q.RegisterProcessor("flaky", func(context.Context, types.Job) error {
		return errors.New("upstream timed out")
	}))

	_, err := q.Enqueue(ctx, types.PriorityNormal, "flaky", nil)
	require.NoError(t, err)

	job, ok := q.dequeue()
	require.True(t, ok)
	q.process(ctx, testLogger(), job)

	recent := q.Recent()
	require.Len(t, recent, 1)
	assert.Equal(t, types.JobFailed, recent[0].Outcome)
	assert.Equal(t, "upstream timed out", recent[0].Error)
}

func TestWorker_HandlerPanicIsContained(t *testing.T) {
	q := newTestQueue()
	ctx := context.Background()

	require.NoError(t, q.RegisterProcessor("explosive", func(context.Context, types.Job) error {
		panic("nil map write")
	}))

	_, err := q.Enqueue(ctx, types.PriorityUrgent, "explosive", nil)
	require.NoError(t, err)

	job, ok := q.dequeue()
	require.True(t, ok)

	// Must not panic the worker.
	q.process(ctx, testLogger(), job)

	recent := q.Recent()
	require.Len(t, recent, 1)
	assert.Equal(t, types.JobFailed, recent[0].Outcome)
	assert.Contains(t, recent[0].Error, "handler panicked")
}

func TestWorker_UnregisteredJobIsDropped(t *testing.T) {
	q := newTestQueue()
	ctx := context.Background()

	// Fatal for this job, not for the queue.
	_, err := q.Enqueue(ctx, types.PriorityNormal, "ghost-job", nil)
	require.NoError(t, err)

	job, ok := q.dequeue()
	require.True(t, ok)
	q.process(ctx, testLogger(), job)

	recent := q.Recent()
	require.Len(t, recent, 1)
	assert.Equal(t, types.JobFailed, recent[0].Outcome)
	assert.Equal(t, "no processor registered", recent[0].Error)

	// The queue keeps working afterwards.
	require.NoError(t, q.RegisterProcessor("real-job", func(context.Context, types.Job) error { return nil }))
	_, err = q.Enqueue(ctx, types.PriorityNormal, "real-job", nil)
	require.NoError(t, err)
	job, ok = q.dequeue()
	require.True(t, ok)
	q.process(ctx, testLogger(), job)
	assert.Equal(t, types.JobSucceeded, q.Recent()[1].Outcome)
}

func TestWorker_SingleDeliveryAcrossWorkers(t *testing.T) {
	q := newTestQueue()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const jobCount = 50

	var mu sync.Mutex
	seen := make(map[string]int)
	done := make(chan struct{}, jobCount)

	require.NoError(t, q.RegisterProcessor("counted", func(_ context.Context, job types.Job) error {
		mu.Lock()
		seen[job.ID]++
		mu.Unlock()
		done <- struct{}{}
		return nil
	}))

	for i := 0; i < jobCount; i++ {
		_, err := q.Enqueue(ctx, types.PriorityNormal, "counted", nil)
		require.NoError(t, err)
	}

	// Two concurrent workers drain the queue.
	go func() { _ = q.RunWorker(ctx, 1) }()
	go func() { _ = q.RunWorker(ctx, 2) }()

	for i := 0; i < jobCount; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for job %d", i)
		}
	}
	cancel()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, jobCount)
	for id, count := range seen {
		assert.Equalf(t, 1, count, "job %s delivered %d times", id, count)
	}
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	q := newTestQueue()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- q.RunWorker(ctx, 1) }()

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on context cancellation")
	}
}

func TestPayloadDigest(t *testing.T) {
	a := payloadDigest(map[string]any{"k": "v"})
	b := payloadDigest(map[string]any{"k": "v"})
	c := payloadDigest(map[string]any{"k": "other"})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, "empty", payloadDigest(nil))
}
