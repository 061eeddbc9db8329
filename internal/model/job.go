package model

import (
	"fmt"
	"strings"
	"time"
)

// Status of an analysis job. Transitions are monotonic, terminal
// states are sticky.
type Status string

const (
	StatusSubmitted  Status = "SUBMITTED"
	StatusRunning    Status = "RUNNING"
	StatusCancelling Status = "CANCELLING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Target is an HTTP endpoint the caller wants notified - either the
// terminal callback or the heartbeat receiver.
type Target struct {
	Method string `json:"method"`
	URI    string `json:"uri"`
}

// HeartbeatConfig describes a periodic liveness signal. A nil config
// means no heartbeats.
type HeartbeatConfig struct {
	Target
	Period int64  `json:"period"`
	Unit   string `json:"unit"` // MILLISECONDS | SECONDS | MINUTES
}

// Duration converts the (period, unit) pair into a time.Duration.
func (h HeartbeatConfig) Duration() (time.Duration, error) {
	if h.Period <= 0 {
		return 0, fmt.Errorf("heartbeat period must be positive, got %d", h.Period)
	}
	switch strings.ToUpper(h.Unit) {
	case "MILLISECONDS":
		return time.Duration(h.Period) * time.Millisecond, nil
	case "SECONDS", "":
		return time.Duration(h.Period) * time.Second, nil
	case "MINUTES":
		return time.Duration(h.Period) * time.Minute, nil
	}
	return 0, fmt.Errorf("unknown heartbeat time unit %q", h.Unit)
}

// AnalysisJob is one submitted request to resolve the origin of one or
// more deliverable archives. The lifecycle manager owns the only
// mutable copy; everyone else sees snapshots.
type AnalysisJob struct {
	ID        string           `json:"id"`
	URLs      []string         `json:"urls"`
	Callback  Target           `json:"callback"`
	Heartbeat *HeartbeatConfig `json:"heartbeat,omitempty"`
	Status    Status           `json:"status"`
	Results   []FinderResult   `json:"results,omitempty"`
	Error     string           `json:"error,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// Clone returns a snapshot safe to hand outside the manager.
func (j AnalysisJob) Clone() AnalysisJob {
	c := j
	c.URLs = append([]string(nil), j.URLs...)
	c.Results = append([]FinderResult(nil), j.Results...)
	if j.Heartbeat != nil {
		hb := *j.Heartbeat
		c.Heartbeat = &hb
	}
	return c
}
