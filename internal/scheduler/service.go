// Package scheduler fires recurring jobs into the queue on cron schedules.
// Schedules live for the process lifetime; on restart they are re-registered
// from code, not recovered from storage.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"rollcall/internal/types"
)

// Enqueuer is the queue surface the scheduler fires into. Satisfied by
// jobs.Queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, priority types.JobPriority, name string, payload map[string]any) (string, error)
}

// entry pairs the externally visible config with the parsed cron schedule and
// the enqueue parameters captured at registration.
type entry struct {
	config   types.ScheduleConfig
	schedule cron.Schedule
	priority types.JobPriority
	payload  map[string]any
}

// Service owns the schedule table and the single scan loop that fires due
// schedules. All library involvement ends at expression parsing: firing is one
// ticker comparing stored next-run times against the clock, so a slow or
// failing schedule can never wedge a per-schedule timer.
//
// The mutex guards the entry table and is never held across an enqueue call.
type Service struct {
	logger       *slog.Logger
	queue        Enqueuer
	scanInterval time.Duration
	clock        func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
}

// NewService creates a scheduler with no registered schedules.
func NewService(queue Enqueuer, scanInterval time.Duration, logger *slog.Logger) *Service {
	return &Service{
		logger:       logger,
		queue:        queue,
		scanInterval: scanInterval,
		clock:        time.Now,
		entries:      make(map[string]*entry),
	}
}

// SetClock overrides the time source. Test hook.
func (s *Service) SetClock(clock func() time.Time) { s.clock = clock }

// Register adds a recurring schedule. The expression must be a standard
// five-field cron spec; duplicate names are rejected rather than replaced so
// two components cannot silently fight over one schedule slot.
func (s *Service) Register(name, cronExpr, description string, priority types.JobPriority, payload map[string]any) error {
	if name == "" {
		return types.NewAppError(types.ErrCodeValidationMissingField,
			"schedule name is required", nil)
	}
	if !priority.Valid() {
		return types.NewAppError(types.ErrCodeValidationPriority,
			"unknown priority "+string(priority), nil)
	}
	sched, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return types.NewAppError(types.ErrCodeValidationCron,
			"invalid cron expression "+cronExpr, err)
	}

	now := s.clock().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[name]; exists {
		return types.NewAppError(types.ErrCodeConflictSchedule,
			"schedule already registered: "+name, nil)
	}
	s.entries[name] = &entry{
		config: types.ScheduleConfig{
			Name:        name,
			CronExpr:    cronExpr,
			Description: description,
			Enabled:     true,
			NextRun:     sched.Next(now),
			Status:      types.ScheduleRunning,
		},
		schedule: sched,
		priority: priority,
		payload:  payload,
	}

	s.logger.Info("schedule registered",
		"schedule", name,
		"cron", cronExpr,
		"next_run", s.entries[name].config.NextRun,
	)
	return nil
}

// Start re-enables a stopped schedule. The next-run time is recomputed from
// the current clock so a long-stopped schedule does not fire immediately for
// every missed slot. Also clears a lingering error state.
func (s *Service) Start(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[name]
	if !ok {
		return types.NewAppError(types.ErrCodeNotFoundSchedule,
			"schedule not found: "+name, nil)
	}
	e.config.Enabled = true
	e.config.Status = types.ScheduleRunning
	e.config.ErrorMessage = ""
	e.config.NextRun = e.schedule.Next(s.clock().UTC())

	s.logger.Info("schedule started", "schedule", name, "next_run", e.config.NextRun)
	return nil
}

// Stop disables a schedule without forgetting it. The config is retained so a
// later Start resumes with the same expression and payload.
func (s *Service) Stop(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[name]
	if !ok {
		return types.NewAppError(types.ErrCodeNotFoundSchedule,
			"schedule not found: "+name, nil)
	}
	e.config.Enabled = false
	e.config.Status = types.ScheduleStopped

	s.logger.Info("schedule stopped", "schedule", name)
	return nil
}

// Trigger fires a schedule immediately, outside its cron cadence. The fire is
// recorded exactly like a timer fire (lastRun advances, errors flip the
// status) but the stored nextRun is left alone.
func (s *Service) Trigger(ctx context.Context, name string) error {
	s.mu.Lock()
	e, ok := s.entries[name]
	if !ok {
		s.mu.Unlock()
		return types.NewAppError(types.ErrCodeNotFoundSchedule,
			"schedule not found: "+name, nil)
	}
	f := firing{name: name, priority: e.priority, payload: e.payload}
	s.mu.Unlock()

	return s.fire(ctx, f, s.clock().UTC())
}

// List returns a snapshot of every registered schedule config.
func (s *Service) List() []types.ScheduleConfig {
	s.mu.Lock()
	defer s.mu.Unlock()

	configs := make([]types.ScheduleConfig, 0, len(s.entries))
	for _, e := range s.entries {
		configs = append(configs, e.config)
	}
	return configs
}

// Status returns the aggregate rollup. Health thresholds are a contract with
// operational tooling: healthy means zero error schedules, critical means at
// least half are in error, degraded covers the rest. An empty table is
// healthy.
func (s *Service) Status() types.SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := types.SchedulerStatus{TotalJobs: len(s.entries)}
	for _, e := range s.entries {
		switch e.config.Status {
		case types.ScheduleError:
			status.ErrorJobs++
		case types.ScheduleStopped:
			status.StoppedJobs++
		default:
			status.RunningJobs++
		}
	}

	switch {
	case status.ErrorJobs == 0:
		status.SystemHealth = types.HealthHealthy
	case status.ErrorJobs*2 >= status.TotalJobs:
		status.SystemHealth = types.HealthCritical
	default:
		status.SystemHealth = types.HealthDegraded
	}
	return status
}

// Run drives the scan loop until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", "scan_interval", s.scanInterval)

	ticker := time.NewTicker(s.scanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.scanOnce(ctx, s.clock().UTC())
		}
	}
}

// firing is the snapshot of one due schedule, taken under the lock so the
// enqueue can happen outside it.
type firing struct {
	name     string
	priority types.JobPriority
	payload  map[string]any
}

// scanOnce fires every enabled schedule whose nextRun has passed. NextRun is
// advanced under the lock before the enqueue, so overlapping scans cannot
// double-fire the same slot. A schedule in error state keeps its cadence and
// retries on its next slot; there is no backoff.
func (s *Service) scanOnce(ctx context.Context, now time.Time) {
	s.mu.Lock()
	var due []firing
	for name, e := range s.entries {
		if !e.config.Enabled || now.Before(e.config.NextRun) {
			continue
		}
		e.config.NextRun = e.schedule.Next(now)
		due = append(due, firing{name: name, priority: e.priority, payload: e.payload})
	}
	s.mu.Unlock()

	for _, f := range due {
		_ = s.fire(ctx, f, now)
	}
}

// fire enqueues one schedule's job and records the outcome on its config.
// Failures are local to the schedule: the status flips to error with the
// message retained, and the next successful fire clears it.
func (s *Service) fire(ctx context.Context, f firing, now time.Time) error {
	jobID, err := s.queue.Enqueue(ctx, f.priority, f.name, f.payload)

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[f.name]
	if !ok {
		return nil
	}

	if err != nil {
		e.config.Status = types.ScheduleError
		e.config.ErrorMessage = err.Error()
		s.logger.ErrorContext(ctx, "schedule fire failed",
			"code", types.ErrCodeScheduleFire,
			"schedule", f.name,
			"error", err,
		)
		return types.NewAppError(types.ErrCodeScheduleFire,
			"failed to fire schedule "+f.name, err)
	}

	fired := now
	e.config.LastRun = &fired
	e.config.ErrorMessage = ""
	if e.config.Enabled {
		e.config.Status = types.ScheduleRunning
	}

	s.logger.InfoContext(ctx, "schedule fired",
		"schedule", f.name,
		"job_id", jobID,
		"next_run", e.config.NextRun,
	)
	return nil
}
