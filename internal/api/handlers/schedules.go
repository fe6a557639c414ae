package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"rollcall/internal/core"
	"rollcall/internal/types"
)

// ScheduleService is the scheduler surface the admin handler drives.
// Satisfied by scheduler.Service.
type ScheduleService interface {
	List() []types.ScheduleConfig
	Status() types.SchedulerStatus
	Start(name string) error
	Stop(name string) error
	Trigger(ctx context.Context, name string) error
}

// SchedulesHandler serves the scheduler admin surface.
type SchedulesHandler struct {
	Scheduler ScheduleService
	Logger    *slog.Logger
}

// RegisterRoutes mounts the scheduler admin endpoints onto the given router.
func (h *SchedulesHandler) RegisterRoutes(r chi.Router) {
	r.Get("/schedules", h.HandleList)
	r.Get("/schedules/status", h.HandleStatus)
	r.Post("/schedules/{name}/start", h.HandleStart)
	r.Post("/schedules/{name}/stop", h.HandleStop)
	r.Post("/schedules/{name}/trigger", h.HandleTrigger)
}

// HandleList returns every registered schedule config.
func (h *SchedulesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: h.Scheduler.List()})
}

// HandleStatus returns the aggregate scheduler health rollup.
func (h *SchedulesHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: h.Scheduler.Status()})
}

// HandleStart re-enables a stopped schedule.
func (h *SchedulesHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.Scheduler.Start(name); err != nil {
		core.Error(w, r, err)
		return
	}
	h.Logger.InfoContext(r.Context(), "schedule started via admin", "schedule", name)
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]string{"status": "started"}})
}

// HandleStop disables a schedule, keeping its config for a later start.
func (h *SchedulesHandler) HandleStop(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.Scheduler.Stop(name); err != nil {
		core.Error(w, r, err)
		return
	}
	h.Logger.InfoContext(r.Context(), "schedule stopped via admin", "schedule", name)
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]string{"status": "stopped"}})
}

// HandleTrigger fires a schedule immediately, outside its cron cadence.
func (h *SchedulesHandler) HandleTrigger(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.Scheduler.Trigger(r.Context(), name); err != nil {
		core.Error(w, r, err)
		return
	}
	h.Logger.InfoContext(r.Context(), "schedule triggered via admin", "schedule", name)
	core.JSON(w, r, http.StatusAccepted, core.APIResponse{Data: map[string]string{"status": "triggered"}})
}
