package models

import (
	"encoding/json"
	"time"
)

type JobKind string

const (
	JobDispatch   JobKind = "dispatch"
	JobSync       JobKind = "sync"
	JobNotify     JobKind = "notify"
	JobFundsRetry JobKind = "funds_retry"
)

type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

const DefaultJobMaxAttempts = 5

// Job is a persisted unit of background work. DedupeKey is unique, so enqueueing the
// same logical work twice is a no-op.
type Job struct {
	ID          string          `json:"id"`
	Kind        JobKind         `json:"kind"`
	OrderID     string          `json:"order_id,omitempty"`
	DedupeKey   string          `json:"dedupe_key"`
	Status      JobStatus       `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	RunAt       time.Time       `json:"run_at"`
	LastError   string          `json:"last_error,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// NotifyPayload is carried by notify jobs.
type NotifyPayload struct {
	Status   OrderStatus    `json:"status"`
	Tracking []TrackingInfo `json:"tracking,omitempty"`
}
