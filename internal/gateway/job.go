package gateway

import (
	"context"
	"time"

	"github.com/user/smsrelay/internal/types"
)

// JobStatus represents the lifecycle state of a Job.
type JobStatus string

const (
	JobStatusQueued   JobStatus = "queued"
	JobStatusRunning  JobStatus = "running"
	JobStatusComplete JobStatus = "complete"
	JobStatusFailed   JobStatus = "failed"
)

// Job is one inbound event's handling, bound to a lane.
type Job struct {
	ID        types.JobID
	Lane      string
	Kind      string
	Fn        func(ctx context.Context) error
	Status    JobStatus
	CreatedAt time.Time
	StartedAt *time.Time
	EndedAt   *time.Time
	Error     error
}

// NewJob creates a Job in the Queued state.
func NewJob(lane, kind string, fn func(ctx context.Context) error) *Job {
	return &Job{
		ID:        types.NewJobID(),
		Lane:      lane,
		Kind:      kind,
		Fn:        fn,
		Status:    JobStatusQueued,
		CreatedAt: time.Now(),
	}
}
