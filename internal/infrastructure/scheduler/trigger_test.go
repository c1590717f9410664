package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp/manufacture/internal/domain/marketplace"
)

type staticAccounts []marketplace.Account

func (s staticAccounts) ActiveAccounts() []marketplace.Account {
	return s
}

func (s staticAccounts) Account(id marketplace.AccountID) (marketplace.Account, error) {
	for _, a := range s {
		if a.ID == id {
			return a, nil
		}
	}
	return marketplace.Account{}, marketplace.ErrAccountNotConfigured
}

type jobLog struct {
	mu   sync.Mutex
	jobs []Job
}

func (l *jobLog) record(_ context.Context, job *Job) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.jobs = append(l.jobs, *job)
	return nil
}

func (l *jobLog) snapshot() []Job {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Job(nil), l.jobs...)
}

func TestIntervalTrigger_Fire(t *testing.T) {
	accounts := staticAccounts{
		{ID: accountA, Token: "token-a", Enabled: true},
		{ID: accountB, Token: "", Enabled: true},
	}

	t.Run("one job per active account", func(t *testing.T) {
		var log jobLog
		s := startScheduler(t, testConfig(), log.record)
		trigger := NewIntervalTrigger(TriggerConfig{}, s, accounts, nil)
		fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		trigger.now = func() time.Time { return fixed }

		assert.Equal(t, 1, trigger.Fire(JobKindOrders))

		assert.Eventually(t, func() bool { return len(log.snapshot()) == 1 }, time.Second, time.Millisecond)
		job := log.snapshot()[0]
		assert.Equal(t, accountA, job.Account)
		assert.Equal(t, JobKindOrders, job.Kind)
		assert.Equal(t, fixed, job.RunAt)
	})

	t.Run("purge runs once without an account", func(t *testing.T) {
		var log jobLog
		s := startScheduler(t, testConfig(), log.record)
		trigger := NewIntervalTrigger(TriggerConfig{}, s, accounts, nil)

		assert.Equal(t, 1, trigger.Fire(JobKindPurge))

		assert.Eventually(t, func() bool { return len(log.snapshot()) == 1 }, time.Second, time.Millisecond)
		assert.Empty(t, log.snapshot()[0].Account)
	})

	t.Run("skips accounts whose job is still running", func(t *testing.T) {
		release := make(chan struct{})
		s := startScheduler(t, testConfig(), func(ctx context.Context, _ *Job) error {
			select {
			case <-release:
			case <-ctx.Done():
			}
			return nil
		})
		trigger := NewIntervalTrigger(TriggerConfig{}, s, accounts, nil)

		assert.Equal(t, 1, trigger.Fire(JobKindStocks))
		assert.Equal(t, 0, trigger.Fire(JobKindStocks))
		close(release)
	})
}

func TestIntervalTrigger_StartStop(t *testing.T) {
	var log jobLog
	s := startScheduler(t, testConfig(), log.record)
	trigger := NewIntervalTrigger(TriggerConfig{
		Intervals: map[JobKind]time.Duration{
			JobKindOrders: time.Hour,
			JobKindStocks: 0,
		},
		RunOnStart: true,
	}, s, staticAccounts{{ID: accountA, Token: "t", Enabled: true}}, nil)

	require.NoError(t, trigger.Start(context.Background()))
	assert.Eventually(t, func() bool { return len(log.snapshot()) == 1 }, time.Second, time.Millisecond)
	require.NoError(t, trigger.Stop(context.Background()))

	assert.Equal(t, JobKindOrders, log.snapshot()[0].Kind)
}
