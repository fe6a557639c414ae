package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/scheduler"
	"rollcall/internal/types"
)

// recordingEnqueuer counts fires without a real queue behind it.
type recordingEnqueuer struct {
	names []string
}

func (r *recordingEnqueuer) Enqueue(_ context.Context, _ types.JobPriority, name string, _ map[string]any) (string, error) {
	r.names = append(r.names, name)
	return "job_test", nil
}

func newSchedulesFixture(t *testing.T) (*chi.Mux, *scheduler.Service, *recordingEnqueuer) {
	t.Helper()
	queue := &recordingEnqueuer{}
	svc := scheduler.NewService(queue, time.Second, testLogger())
	require.NoError(t, svc.Register("metrics_rollup", "*/5 * * * *", "rollup push", types.PriorityNormal, nil))

	h := &SchedulesHandler{Scheduler: svc, Logger: testLogger()}
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r, svc, queue
}

func TestHandleList(t *testing.T) {
	r, _, _ := newSchedulesFixture(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/schedules", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data []types.ScheduleConfig `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "metrics_rollup", resp.Data[0].Name)
	assert.Equal(t, types.ScheduleRunning, resp.Data[0].Status)
}

func TestHandleStatus(t *testing.T) {
	r, _, _ := newSchedulesFixture(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/schedules/status", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data types.SchedulerStatus `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Data.TotalJobs)
	assert.Equal(t, types.HealthHealthy, resp.Data.SystemHealth)
}

func TestHandleStopAndStart(t *testing.T) {
	r, svc, _ := newSchedulesFixture(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/schedules/metrics_rollup/stop", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, types.ScheduleStopped, svc.List()[0].Status)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/schedules/metrics_rollup/start", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, types.ScheduleRunning, svc.List()[0].Status)
}

func TestHandleTrigger(t *testing.T) {
	r, svc, queue := newSchedulesFixture(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/schedules/metrics_rollup/trigger", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"metrics_rollup"}, queue.names)
	require.NotNil(t, svc.List()[0].LastRun)
}

func TestScheduleAdmin_UnknownSchedule(t *testing.T) {
	r, _, _ := newSchedulesFixture(t)

	for _, action := range []string{"start", "stop", "trigger"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/schedules/ghost/"+action, nil))
		assert.Equalf(t, http.StatusNotFound, rec.Code, "action %s", action)
		assert.Contains(t, rec.Body.String(), "not_found_schedule")
	}
}
