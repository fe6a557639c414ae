package types

import "time"

// JobPriority selects one of the three queue lanes. Lanes are drained in
// strict precedence order: urgent before normal, normal before low, as long
// as the higher lane is non-empty.
type JobPriority string

const (
	PriorityUrgent JobPriority = "urgent"
	PriorityNormal JobPriority = "normal"
	PriorityLow    JobPriority = "low"
)

// Priorities lists all lanes in precedence order (highest first).
var Priorities = []JobPriority{PriorityUrgent, PriorityNormal, PriorityLow}

// Valid reports whether p names one of the three lanes.
func (p JobPriority) Valid() bool {
	switch p {
	case PriorityUrgent, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

// Job is a unit of background work. A job belongs to exactly one priority
// lane at a time and is removed from it by a single worker (single-delivery
// dequeue). Jobs are not persisted; a process restart drops pending work.
type Job struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Priority   JobPriority    `json:"priority"`
	Payload    map[string]any `json:"payload"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
	Attempts   int            `json:"attempts"`
}

// JobOutcome is the terminal state of a processed job.
type JobOutcome string

const (
	JobSucceeded JobOutcome = "succeeded"
	JobFailed    JobOutcome = "failed"
)

// JobResult records the terminal state of one job for the bounded
// observability log. Terminal states are not retained anywhere else.
type JobResult struct {
	JobID      string      `json:"job_id"`
	Name       string      `json:"name"`
	Priority   JobPriority `json:"priority"`
	Outcome    JobOutcome  `json:"outcome"`
	Error      string      `json:"error,omitempty"`
	FinishedAt time.Time   `json:"finished_at"`
}
