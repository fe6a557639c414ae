package types

import "time"

// ScheduleStatus is the lifecycle state of one registered recurring task.
type ScheduleStatus string

const (
	ScheduleRunning ScheduleStatus = "running"
	ScheduleStopped ScheduleStatus = "stopped"
	ScheduleError   ScheduleStatus = "error"
)

// ScheduleConfig describes one registered recurring task. One instance exists
// per registered name; it lives for the process lifetime and is re-created on
// restart rather than persisted. The scheduler mutates it on every fire and
// on explicit start/stop calls.
type ScheduleConfig struct {
	Name         string         `json:"name"`
	CronExpr     string         `json:"cron_expression"`
	Description  string         `json:"description"`
	Enabled      bool           `json:"enabled"`
	LastRun      *time.Time     `json:"last_run,omitempty"`
	NextRun      time.Time      `json:"next_run"`
	Status       ScheduleStatus `json:"status"`
	ErrorMessage string         `json:"error_message,omitempty"`
}

// SystemHealth is the three-tier rollup over all registered schedules.
// Operational tooling polls this value, so the thresholds are a contract:
// healthy when no schedule is in error, critical when at least half are,
// degraded otherwise.
type SystemHealth string

const (
	HealthHealthy  SystemHealth = "healthy"
	HealthDegraded SystemHealth = "degraded"
	HealthCritical SystemHealth = "critical"
)

// SchedulerStatus is the aggregate snapshot returned by the scheduler admin
// surface.
type SchedulerStatus struct {
	TotalJobs    int          `json:"total_jobs"`
	RunningJobs  int          `json:"running_jobs"`
	StoppedJobs  int          `json:"stopped_jobs"`
	ErrorJobs    int          `json:"error_jobs"`
	SystemHealth SystemHealth `json:"system_health"`
}
