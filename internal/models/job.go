package models

import "time"

// Job is one unit of work, in the envelope the serverless runtime uses.
type Job struct {
	ID      string   `json:"id"`
	Input   JobInput `json:"input"`
	Webhook string   `json:"webhook,omitempty"`
}

type JobInput struct {
	Image string `json:"image"`
}

// JobStatus is what /runsync returns and what /status/:id reads back.
type JobStatus struct {
	ID            string    `json:"id"`
	Status        string    `json:"status"`
	Output        *Result   `json:"output,omitempty"`
	Error         string    `json:"error,omitempty"`
	DelayTime     int64     `json:"delayTime,omitempty"`
	ExecutionTime int64     `json:"executionTime,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

const (
	StatusInQueue    = "IN_QUEUE"
	StatusInProgress = "IN_PROGRESS"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

// Terminal reports whether no further updates will follow.
func (s *JobStatus) Terminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusFailed
}
