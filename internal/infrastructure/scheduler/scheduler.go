package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/erp/manufacture/internal/domain/marketplace"
	"github.com/erp/manufacture/internal/infrastructure/logger"
)

// SchedulerConfig holds scheduler configuration
type SchedulerConfig struct {
	// MaxConcurrentJobs is the number of workers
	MaxConcurrentJobs int
	// QueueSize bounds jobs waiting for a worker
	QueueSize int
	// JobTimeout is the maximum time a job can run
	JobTimeout time.Duration
	// RetryAttempts is the number of retries of a failed job
	RetryAttempts int
	// RetryDelay is the base delay between retries (with exponential backoff)
	RetryDelay time.Duration
	// MaxRetryDelay caps the backoff
	MaxRetryDelay time.Duration
	// HistorySize is how many finished jobs are kept for inspection
	HistorySize int
}

// DefaultSchedulerConfig returns default scheduler configuration
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		MaxConcurrentJobs: 4,
		QueueSize:         100,
		JobTimeout:        30 * time.Minute,
		RetryAttempts:     3,
		RetryDelay:        time.Minute,
		MaxRetryDelay:     30 * time.Minute,
		HistorySize:       100,
	}
}

// Validate validates the configuration
func (c *SchedulerConfig) Validate() error {
	if c.MaxConcurrentJobs <= 0 || c.QueueSize <= 0 {
		return ErrInvalidConfig
	}
	if c.JobTimeout <= 0 {
		return ErrInvalidConfig
	}
	if c.RetryAttempts < 0 || c.RetryDelay < 0 {
		return ErrInvalidConfig
	}
	if c.MaxRetryDelay > 0 && c.MaxRetryDelay < c.RetryDelay {
		return ErrInvalidConfig
	}
	return nil
}

// JobObserver is told about every job attempt
type JobObserver interface {
	JobFinished(ctx context.Context, kind, status string, elapsed time.Duration)
}

// Scheduler runs sync jobs on a worker pool. At most one job per (kind, account) is
// pending or running at a time; a failed job keeps its slot while it waits for a retry.
type Scheduler struct {
	config   SchedulerConfig
	executor JobExecutor
	logger   *zap.Logger
	observer JobObserver
	tracer   trace.Tracer

	jobs      chan *Job
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	active    map[jobKey]uuid.UUID
	retries   map[*time.Timer]struct{}

	historyMu sync.RWMutex
	history   []*Job
}

// NewScheduler creates a new scheduler instance
func NewScheduler(config SchedulerConfig, executor JobExecutor, logger *zap.Logger) (*Scheduler, error) {
	if config.HistorySize <= 0 {
		config.HistorySize = DefaultSchedulerConfig().HistorySize
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		config:   config,
		executor: executor,
		logger:   logger,
		tracer:   otel.Tracer("github.com/erp/manufacture/scheduler"),
		jobs:     make(chan *Job, config.QueueSize),
		active:   make(map[jobKey]uuid.UUID),
		retries:  make(map[*time.Timer]struct{}),
		history:  make([]*Job, 0, config.HistorySize),
	}, nil
}

// WithObserver sets the observer of job attempts
func (s *Scheduler) WithObserver(observer JobObserver) *Scheduler {
	s.observer = observer
	return s
}

// Start starts the scheduler
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}
	s.isRunning = true

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for i := 0; i < s.config.MaxConcurrentJobs; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}

	s.logger.Info("Sync scheduler started",
		zap.Int("workers", s.config.MaxConcurrentJobs),
		zap.Duration("job_timeout", s.config.JobTimeout),
	)
	return nil
}

// Stop cancels pending retries and running jobs and waits for the workers
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	for t := range s.retries {
		t.Stop()
		delete(s.retries, t)
	}
	clear(s.active)
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Sync scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Sync scheduler stop timed out")
		return ctx.Err()
	}
}

// SubmitJob submits a job for execution
func (s *Scheduler) SubmitJob(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return ErrSchedulerNotRunning
	}
	if _, busy := s.active[job.key()]; busy {
		return fmt.Errorf("%w: %s %s", ErrJobAlreadyInProgress, job.Kind, job.Account)
	}

	select {
	case s.jobs <- job:
		s.active[job.key()] = job.ID
		s.logger.Debug("Job submitted",
			zap.String("job_id", job.ID.String()),
			zap.String("kind", string(job.Kind)),
			zap.String("account", job.Account.String()),
		)
		return nil
	default:
		return ErrJobQueueFull
	}
}

// Schedule submits a job of kind for account identified by runAt
func (s *Scheduler) Schedule(kind JobKind, account marketplace.AccountID, runAt time.Time) (*Job, error) {
	job := NewJob(kind, account, runAt, s.config.RetryAttempts)
	if err := s.SubmitJob(job); err != nil {
		return nil, err
	}
	return job, nil
}

// InProgress returns the number of jobs queued, running or waiting for a retry
func (s *Scheduler) InProgress() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// worker processes jobs from the queue
func (s *Scheduler) worker(ctx context.Context, workerID int) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Worker stopping", zap.Int("worker_id", workerID))
			return
		case job := <-s.jobs:
			s.processJob(ctx, job, workerID)
		}
	}
}

// processJob executes a single job
func (s *Scheduler) processJob(ctx context.Context, job *Job, workerID int) {
	log := s.logger.With(
		zap.Int("worker_id", workerID),
		zap.String("job_id", job.ID.String()),
		zap.String("kind", string(job.Kind)),
		zap.String("account", job.Account.String()),
	)

	job.Start()
	log.Info("Processing job", zap.Int("retry_count", job.RetryCount))

	err := s.execute(ctx, job)
	if err == nil {
		job.Complete()
		log.Info("Job completed successfully")
		s.observe(ctx, job)
		s.finish(job)
		return
	}

	job.Fail(err.Error())
	log.Error("Job failed", zap.Error(err))
	s.observe(ctx, job)

	if ctx.Err() == nil && retryable(err) && job.ShouldRetry() {
		delay := job.ScheduleRetry(s.config.RetryDelay, s.config.MaxRetryDelay)
		if s.retryLater(job, delay) {
			log.Info("Job scheduled for retry",
				zap.Int("retry_count", job.RetryCount),
				zap.Int("max_retries", job.MaxRetries),
				zap.Duration("delay", delay),
			)
			return
		}
	}
	s.finish(job)
}

// execute runs one attempt of job under the job timeout inside a span
func (s *Scheduler) execute(ctx context.Context, job *Job) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()

	ctx, span := s.tracer.Start(ctx, "job "+string(job.Kind), trace.WithAttributes(
		attribute.String("job.kind", string(job.Kind)),
		attribute.String("account", job.Account.String()),
		attribute.Int("job.retry", job.RetryCount),
	))
	defer span.End()

	ctx = logger.WithStream(ctx, string(job.Kind))
	if job.Account != "" {
		ctx = logger.WithAccount(ctx, job.Account.String())
	}
	ctx = logger.WithContext(ctx, s.logger)

	err := s.executor.Execute(ctx, job)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (s *Scheduler) observe(ctx context.Context, job *Job) {
	if s.observer == nil || job.StartedAt == nil || job.CompletedAt == nil {
		return
	}
	s.observer.JobFinished(ctx, string(job.Kind), string(job.Status), job.CompletedAt.Sub(*job.StartedAt))
}

// retryLater requeues job after delay, keeping its slot. It returns false when the
// scheduler is stopping.
func (s *Scheduler) retryLater(job *Job, delay time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return false
	}

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.retries, timer)
		if !s.isRunning {
			return
		}
		select {
		case s.jobs <- job:
		default:
			delete(s.active, job.key())
			s.logger.Warn("Failed to re-queue job for retry",
				zap.String("job_id", job.ID.String()),
			)
		}
	})
	s.retries[timer] = struct{}{}
	return true
}

// finish frees the job's slot and records it
func (s *Scheduler) finish(job *Job) {
	s.mu.Lock()
	if s.active[job.key()] == job.ID {
		delete(s.active, job.key())
	}
	s.mu.Unlock()
	s.addToHistory(job)
}

// addToHistory adds a finished job to history
func (s *Scheduler) addToHistory(job *Job) {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	s.history = append([]*Job{job}, s.history...)
	if len(s.history) > s.config.HistorySize {
		s.history = s.history[:s.config.HistorySize]
	}
}

// History returns finished jobs, newest first
func (s *Scheduler) History(limit int) []*Job {
	s.historyMu.RLock()
	defer s.historyMu.RUnlock()

	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}
	result := make([]*Job, limit)
	copy(result, s.history[:limit])
	return result
}
