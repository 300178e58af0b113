package types

import "errors"

// JobStatus is the lifecycle state of a background job record.
type JobStatus string

// Job lifecycle states. A job is created queued, moves to running, and
// terminates in exactly one of completed or failed.
const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Job errors.
var (
	ErrInvalidStatus     = errors.New("invalid job status")
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// Valid reports whether s is a known job status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobQueued, JobRunning, JobCompleted, JobFailed:
		return true
	}
	return false
}

// Terminal reports whether s is a final state. No transition is permitted
// out of a terminal state.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// ValidTransition reports whether a job may move from one status to another.
// Repeating the current non-terminal status is allowed (progress updates);
// leaving a terminal state is not.
func ValidTransition(from, to JobStatus) bool {
	if !to.Valid() {
		return false
	}
	if from.Terminal() {
		return false
	}
	return true
}

// Job is one asynchronous unit of work tracked as a pollable resource.
type Job struct {
	ID           string         `json:"id"`
	App          string         `json:"app"`
	Command      string         `json:"command"`
	Status       JobStatus      `json:"status"`
	Input        map[string]any `json:"input,omitempty"`
	Result       map[string]any `json:"result,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Progress     int            `json:"progress"`
	Created      string         `json:"created"`
	Updated      string         `json:"updated"`
}
