package stores

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("not found")

// RunRecord is a provisioning run as kept in the history.
type RunRecord struct {
	ID         string     `json:"id"`
	Profile    string     `json:"profile"`
	Status     string     `json:"status"`
	Reason     string     `json:"reason,omitempty"`
	Pillars    []string   `json:"pillars"`
	Succeeded  int        `json:"succeeded"`
	Failed     int        `json:"failed"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Duration returns how long the run took, zero while it is unfinished.
func (r *RunRecord) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// OutcomeEntry is one entry of a run's outcome log.
type OutcomeEntry struct {
	ID         int64         `json:"id"`
	RunID      string        `json:"run_id"`
	Seq        int           `json:"seq"`
	Unit       string        `json:"unit"`
	Kind       string        `json:"kind"`
	Pillar     string        `json:"pillar,omitempty"`
	Status     string        `json:"status"`
	Diagnostic string        `json:"diagnostic,omitempty"`
	ExitCode   int           `json:"exit_code"`
	Duration   time.Duration `json:"duration"`
	Decision   string        `json:"decision,omitempty"`
	RecordedAt time.Time     `json:"recorded_at"`
}

// EventEntry is a stored engine event. Data holds the full event as JSON.
type EventEntry struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	Seq       int       `json:"seq"`
	Type      string    `json:"type"`
	Level     string    `json:"level"`
	Unit      string    `json:"unit,omitempty"`
	Pillar    string    `json:"pillar,omitempty"`
	Message   string    `json:"message"`
	Data      string    `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}
