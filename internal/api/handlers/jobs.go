package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"rollcall/internal/core"
	"rollcall/internal/types"
)

// JobQueue is the queue surface the jobs handler drives. Satisfied by
// jobs.Queue.
type JobQueue interface {
	Enqueue(ctx context.Context, priority types.JobPriority, name string, payload map[string]any) (string, error)
	Depths() map[types.JobPriority]int
	Recent() []types.JobResult
}

// JobsHandler serves the internal enqueue API and the queue stats surface.
type JobsHandler struct {
	Queue  JobQueue
	Logger *slog.Logger
}

// RegisterRoutes mounts the jobs endpoints onto the given router.
func (h *JobsHandler) RegisterRoutes(r chi.Router) {
	r.Post("/jobs", h.HandleEnqueue)
	r.Get("/jobs/stats", h.HandleStats)
}

// EnqueueJobRequest is the request body for POST /v1/jobs.
type EnqueueJobRequest struct {
	Name     string         `json:"name"`
	Priority string         `json:"priority"`
	Payload  map[string]any `json:"payload,omitempty"`
}

// EnqueueJobResponse acknowledges acceptance; processing is asynchronous.
type EnqueueJobResponse struct {
	JobID string `json:"job_id"`
}

// QueueStatsResponse is the body for GET /v1/jobs/stats.
type QueueStatsResponse struct {
	Depths map[types.JobPriority]int `json:"depths"`
	Recent []types.JobResult         `json:"recent"`
}

// HandleEnqueue accepts a job for asynchronous processing and returns 202
// immediately; validation failures map through the queue's AppError codes.
func (h *JobsHandler) HandleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req EnqueueJobRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	jobID, err := h.Queue.Enqueue(r.Context(), types.JobPriority(req.Priority), req.Name, req.Payload)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusAccepted, core.APIResponse{
		Data: EnqueueJobResponse{JobID: jobID},
	})
}

// HandleStats returns current lane depths and the recent terminal jobs.
func (h *JobsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: QueueStatsResponse{
			Depths: h.Queue.Depths(),
			Recent: h.Queue.Recent(),
		},
	})
}
