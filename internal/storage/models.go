package storage

import "time"

// Status is the lifecycle state of an execution.
type Status string

const (
	StatusQueued    Status = "QUEUED"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusTimeout   Status = "TIMEOUT"
)

// Terminal reports whether the status is a terminal state.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTimeout:
		return true
	}
	return false
}

// SessionActive is the only session status the service currently assigns.
const SessionActive = "ACTIVE"

// Session groups code executions requested by one logical client session.
type Session struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Execution is one request to run a code snippet, tracked from QUEUED
// through a terminal outcome. Stdout, Stderr and ExecutionTimeMS stay nil
// until the worker records a result.
type Execution struct {
	ID              string    `json:"id"`
	SessionID       string    `json:"session_id"`
	Language        string    `json:"language"`
	Code            string    `json:"code"`
	Status          Status    `json:"status"`
	Stdout          *string   `json:"stdout"`
	Stderr          *string   `json:"stderr"`
	ExecutionTimeMS *int64    `json:"execution_time_ms"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
