package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/erp/manufacture/internal/domain/marketplace"
)

// TriggerConfig holds the refresh interval of each job kind. A kind without a
// positive interval is never triggered.
type TriggerConfig struct {
	Intervals map[JobKind]time.Duration
	// RunOnStart fires every configured kind once when the trigger starts
	RunOnStart bool
}

// IntervalTrigger periodically submits one job per active account for each kind
type IntervalTrigger struct {
	config    TriggerConfig
	scheduler *Scheduler
	accounts  marketplace.AccountProvider
	logger    *zap.Logger
	now       func() time.Time

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewIntervalTrigger creates a new interval trigger
func NewIntervalTrigger(
	config TriggerConfig,
	scheduler *Scheduler,
	accounts marketplace.AccountProvider,
	logger *zap.Logger,
) *IntervalTrigger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IntervalTrigger{
		config:    config,
		scheduler: scheduler,
		accounts:  accounts,
		logger:    logger,
		now:       time.Now,
	}
}

// Start starts one loop per configured kind
func (t *IntervalTrigger) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.isRunning {
		return nil
	}
	t.isRunning = true

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	for _, kind := range AllJobKinds() {
		interval := t.config.Intervals[kind]
		if interval <= 0 {
			continue
		}
		t.wg.Add(1)
		go t.runLoop(ctx, kind, interval)
		t.logger.Info("Refresh trigger started",
			zap.String("kind", string(kind)),
			zap.Duration("interval", interval),
		)
	}
	return nil
}

// Stop stops the trigger loops
func (t *IntervalTrigger) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = false
	t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.logger.Info("Refresh trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *IntervalTrigger) runLoop(ctx context.Context, kind JobKind, interval time.Duration) {
	defer t.wg.Done()

	if t.config.RunOnStart {
		t.Fire(kind)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Fire(kind)
		}
	}
}

// Fire submits the jobs of kind now and returns how many were accepted.
// Accounts whose previous job of the same kind is still in progress are skipped.
func (t *IntervalTrigger) Fire(kind JobKind) int {
	runAt := t.now().UTC()

	if !kind.PerAccount() {
		return t.submit(kind, "", runAt)
	}

	submitted := 0
	for _, account := range t.accounts.ActiveAccounts() {
		if !account.Active() {
			continue
		}
		submitted += t.submit(kind, account.ID, runAt)
	}
	return submitted
}

func (t *IntervalTrigger) submit(kind JobKind, account marketplace.AccountID, runAt time.Time) int {
	_, err := t.scheduler.Schedule(kind, account, runAt)
	switch {
	case err == nil:
		return 1
	case errors.Is(err, ErrJobAlreadyInProgress):
		t.logger.Info("Skipping refresh, previous job still in progress",
			zap.String("kind", string(kind)),
			zap.String("account", account.String()),
		)
	default:
		t.logger.Error("Failed to submit refresh job",
			zap.String("kind", string(kind)),
			zap.String("account", account.String()),
			zap.Error(err),
		)
	}
	return 0
}
