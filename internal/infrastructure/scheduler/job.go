package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/erp/manufacture/internal/domain/marketplace"
)

// JobStatus represents the status of a scheduled job
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusFailed  JobStatus = "FAILED"
)

// JobKind names the work a job performs
type JobKind string

const (
	JobKindOrders   JobKind = "orders"
	JobKindStocks   JobKind = "stocks"
	JobKindPurge    JobKind = "purge"
	JobKindFBSReset JobKind = "fbs-reset"
)

// AllJobKinds returns every job kind
func AllJobKinds() []JobKind {
	return []JobKind{JobKindOrders, JobKindStocks, JobKindPurge, JobKindFBSReset}
}

// PerAccount reports whether the kind runs once per seller account
func (k JobKind) PerAccount() bool {
	return k != JobKindPurge
}

// Job is one run of one kind for one account. Account is empty for global jobs.
// RunAt is fixed when the job is created and identifies the run across retries.
type Job struct {
	ID          uuid.UUID
	Kind        JobKind
	Account     marketplace.AccountID
	RunAt       time.Time
	Status      JobStatus
	Error       string
	StartedAt   *time.Time
	CompletedAt *time.Time
	RetryCount  int
	MaxRetries  int
	NextRetryAt *time.Time
}

// NewJob creates a new job instance
func NewJob(kind JobKind, account marketplace.AccountID, runAt time.Time, maxRetries int) *Job {
	return &Job{
		ID:         uuid.New(),
		Kind:       kind,
		Account:    account,
		RunAt:      runAt,
		Status:     JobStatusPending,
		MaxRetries: maxRetries,
	}
}

type jobKey struct {
	kind    JobKind
	account marketplace.AccountID
}

func (j *Job) key() jobKey {
	return jobKey{kind: j.Kind, account: j.Account}
}

// Start marks the job as running
func (j *Job) Start() {
	now := time.Now()
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.Error = ""
}

// Complete marks the job as successful
func (j *Job) Complete() {
	now := time.Now()
	j.Status = JobStatusSuccess
	j.CompletedAt = &now
}

// Fail marks the job as failed
func (j *Job) Fail(err string) {
	now := time.Now()
	j.Status = JobStatusFailed
	j.CompletedAt = &now
	j.Error = err
}

// ShouldRetry returns true if the job should be retried
func (j *Job) ShouldRetry() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// ScheduleRetry schedules the job for retry with exponential backoff and returns the delay
func (j *Job) ScheduleRetry(baseDelay, maxDelay time.Duration) time.Duration {
	j.RetryCount++
	j.Status = JobStatusPending
	// baseDelay * 2^(retryCount-1)
	delay := baseDelay * time.Duration(1<<(j.RetryCount-1))
	if maxDelay > 0 && delay > maxDelay {
		delay = maxDelay
	}
	nextRetry := time.Now().Add(delay)
	j.NextRetryAt = &nextRetry
	return delay
}

// JobExecutor runs jobs
type JobExecutor interface {
	Execute(ctx context.Context, job *Job) error
}
