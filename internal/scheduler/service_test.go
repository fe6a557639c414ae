package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeEnqueuer records enqueue calls and can be told to fail.
type fakeEnqueuer struct {
	mu    sync.Mutex
	calls []string
	fail  bool
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, _ types.JobPriority, name string, _ map[string]any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", errors.New("queue rejected the job")
	}
	f.calls = append(f.calls, name)
	return "job_test", nil
}

func (f *fakeEnqueuer) setFail(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = v
}

func (f *fakeEnqueuer) enqueued() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func newTestService() (*Service, *fakeEnqueuer, *time.Time) {
	queue := &fakeEnqueuer{}
	svc := NewService(queue, time.Second, testLogger())
	now := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
	svc.SetClock(func() time.Time { return now })
	return svc, queue, &now
}

func TestRegister(t *testing.T) {
	svc, _, now := newTestService()

	require.NoError(t, svc.Register("metrics_rollup", "*/5 * * * *", "rollup push", types.PriorityNormal, nil))

	configs := svc.List()
	require.Len(t, configs, 1)
	cfg := configs[0]
	assert.Equal(t, "metrics_rollup", cfg.Name)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, types.ScheduleRunning, cfg.Status)
	assert.Nil(t, cfg.LastRun)
	assert.True(t, cfg.NextRun.After(*now))
}

func TestRegister_InvalidCron(t *testing.T) {
	svc, _, _ := newTestService()

	err := svc.Register("bad", "not a cron line", "", types.PriorityNormal, nil)
	require.Error(t, err)
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeValidationCron, appErr.Code)
}

func TestRegister_DuplicateRejected(t *testing.T) {
	svc, _, _ := newTestService()

	require.NoError(t, svc.Register("cache_cleanup", "0 3 * * *", "", types.PriorityLow, nil))

	err := svc.Register("cache_cleanup", "0 4 * * *", "", types.PriorityLow, nil)
	require.Error(t, err)
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeConflictSchedule, appErr.Code)
}

func TestStartStop_UnknownSchedule(t *testing.T) {
	svc, _, _ := newTestService()

	var appErr *types.AppError
	require.ErrorAs(t, svc.Start("ghost"), &appErr)
	assert.Equal(t, types.ErrCodeNotFoundSchedule, appErr.Code)
	require.ErrorAs(t, svc.Stop("ghost"), &appErr)
	require.ErrorAs(t, svc.Trigger(context.Background(), "ghost"), &appErr)
}

func TestScanOnce_FiresDueSchedule(t *testing.T) {
	svc, queue, now := newTestService()

	require.NoError(t, svc.Register("metrics_rollup", "*/5 * * * *", "", types.PriorityNormal, nil))

	// Not due yet: nothing fires.
	svc.scanOnce(context.Background(), *now)
	assert.Empty(t, queue.enqueued())

	// Advance past the next slot.
	*now = now.Add(5 * time.Minute)
	svc.scanOnce(context.Background(), *now)
	assert.Equal(t, []string{"metrics_rollup"}, queue.enqueued())

	cfg := svc.List()[0]
	require.NotNil(t, cfg.LastRun)
	assert.Equal(t, *now, *cfg.LastRun)
	assert.True(t, cfg.NextRun.After(*now))
	assert.Equal(t, types.ScheduleRunning, cfg.Status)

	// Same instant again: nextRun already advanced, no double fire.
	svc.scanOnce(context.Background(), *now)
	assert.Len(t, queue.enqueued(), 1)
}

func TestScanOnce_SkipsStoppedSchedule(t *testing.T) {
	svc, queue, now := newTestService()

	require.NoError(t, svc.Register("attendance_reminder", "0 * * * *", "", types.PriorityUrgent, nil))
	require.NoError(t, svc.Stop("attendance_reminder"))

	*now = now.Add(2 * time.Hour)
	svc.scanOnce(context.Background(), *now)
	assert.Empty(t, queue.enqueued())
	assert.Equal(t, types.ScheduleStopped, svc.List()[0].Status)
}

func TestScanOnce_EnqueueFailureFlipsToError(t *testing.T) {
	svc, queue, now := newTestService()

	require.NoError(t, svc.Register("metrics_rollup", "*/5 * * * *", "", types.PriorityNormal, nil))
	queue.setFail(true)

	*now = now.Add(5 * time.Minute)
	svc.scanOnce(context.Background(), *now)

	cfg := svc.List()[0]
	assert.Equal(t, types.ScheduleError, cfg.Status)
	assert.Contains(t, cfg.ErrorMessage, "queue rejected the job")
	assert.Nil(t, cfg.LastRun)

	// The cadence keeps going: the next slot fires again and a success
	// clears the error state.
	queue.setFail(false)
	*now = now.Add(5 * time.Minute)
	svc.scanOnce(context.Background(), *now)

	cfg = svc.List()[0]
	assert.Equal(t, types.ScheduleRunning, cfg.Status)
	assert.Empty(t, cfg.ErrorMessage)
	require.NotNil(t, cfg.LastRun)
}

func TestTrigger_FiresOutOfBand(t *testing.T) {
	svc, queue, _ := newTestService()

	require.NoError(t, svc.Register("cache_cleanup", "0 3 * * *", "", types.PriorityLow, nil))
	before := svc.List()[0].NextRun

	require.NoError(t, svc.Trigger(context.Background(), "cache_cleanup"))

	assert.Equal(t, []string{"cache_cleanup"}, queue.enqueued())
	cfg := svc.List()[0]
	require.NotNil(t, cfg.LastRun)
	// The cron cadence is untouched by a manual fire.
	assert.Equal(t, before, cfg.NextRun)
}

func TestTrigger_FailureReportsScheduleFire(t *testing.T) {
	svc, queue, _ := newTestService()

	require.NoError(t, svc.Register("cache_cleanup", "0 3 * * *", "", types.PriorityLow, nil))
	queue.setFail(true)

	err := svc.Trigger(context.Background(), "cache_cleanup")
	require.Error(t, err)
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeScheduleFire, appErr.Code)
	assert.Equal(t, types.ScheduleError, svc.List()[0].Status)
}

func TestStatus_HealthRollup(t *testing.T) {
	tests := []struct {
		name       string
		total      int
		errored    int
		stopped    int
		wantHealth types.SystemHealth
	}{
		{name: "empty table", total: 0, wantHealth: types.HealthHealthy},
		{name: "no errors", total: 4, stopped: 1, wantHealth: types.HealthHealthy},
		{name: "one of four", total: 4, errored: 1, wantHealth: types.HealthDegraded},
		{name: "two of four", total: 4, errored: 2, wantHealth: types.HealthCritical},
		{name: "all errored", total: 2, errored: 2, wantHealth: types.HealthCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, queue, now := newTestService()
			for i := 0; i < tt.total; i++ {
				name := string(rune('a' + i))
				require.NoError(t, svc.Register(name, "*/5 * * * *", "", types.PriorityNormal, nil))
			}
			// Flip the first N into error via a failing fire.
			queue.setFail(true)
			*now = now.Add(5 * time.Minute)
			for i := 0; i < tt.errored; i++ {
				_ = svc.fire(context.Background(), firing{name: string(rune('a' + i)), priority: types.PriorityNormal}, *now)
			}
			for i := tt.errored; i < tt.errored+tt.stopped; i++ {
				require.NoError(t, svc.Stop(string(rune('a'+i))))
			}

			status := svc.Status()
			assert.Equal(t, tt.total, status.TotalJobs)
			assert.Equal(t, tt.errored, status.ErrorJobs)
			assert.Equal(t, tt.stopped, status.StoppedJobs)
			assert.Equal(t, tt.total-tt.errored-tt.stopped, status.RunningJobs)
			assert.Equal(t, tt.wantHealth, status.SystemHealth)
		})
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	svc, _, _ := newTestService()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Run(ctx) }()

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop on context cancellation")
	}
}
