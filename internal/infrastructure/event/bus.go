package event

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/erp/manufacture/internal/domain/shared"
)

var (
	ErrBusNotRunning = errors.New("event bus: not running")
	ErrBusStopping   = errors.New("event bus: stopping")
)

// BusConfig tunes dispatch and redelivery
type BusConfig struct {
	// Workers is the number of concurrent deliveries. Default: 4
	Workers int
	// QueueSize bounds deliveries waiting for a worker. Default: 256
	QueueSize int
	// MaxRedeliveries is how many times a failed delivery is retried. Default: 5
	MaxRedeliveries int
	// RedeliveryDelay is the pause before a failed delivery is retried. Default: 5s
	RedeliveryDelay time.Duration
}

// DefaultBusConfig returns the default bus configuration
func DefaultBusConfig() BusConfig {
	return BusConfig{
		Workers:         4,
		QueueSize:       256,
		MaxRedeliveries: 5,
		RedeliveryDelay: 5 * time.Second,
	}
}

func (c BusConfig) withDefaults() BusConfig {
	d := DefaultBusConfig()
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	if c.MaxRedeliveries < 0 {
		c.MaxRedeliveries = 0
	}
	if c.RedeliveryDelay <= 0 {
		c.RedeliveryDelay = d.RedeliveryDelay
	}
	return c
}

// BusStats is a snapshot of delivery counters
type BusStats struct {
	Delivered   int64 `json:"delivered"`
	Failed      int64 `json:"failed"`
	Redelivered int64 `json:"redelivered"`
	Dropped     int64 `json:"dropped"`
}

type busCounters struct {
	delivered   atomic.Int64
	failed      atomic.Int64
	redelivered atomic.Int64
	dropped     atomic.Int64
}

// delivery is one event bound for one handler
type delivery struct {
	handler shared.EventHandler
	event   shared.DomainEvent
	attempt int
}

// InMemoryEventBus delivers events to subscribed handlers on a worker pool.
// Delivery is at-least-once per handler: a handler error or panic schedules a
// redelivery to that handler alone, up to MaxRedeliveries.
type InMemoryEventBus struct {
	registry *HandlerRegistry
	config   BusConfig
	logger   *zap.Logger
	counters busCounters

	queue    chan delivery
	inflight sync.WaitGroup
	workers  sync.WaitGroup

	mu       sync.Mutex
	running  bool
	stopping bool
	timers   map[*time.Timer]struct{}
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewInMemoryEventBus creates a new in-memory event bus
func NewInMemoryEventBus(config BusConfig, logger *zap.Logger) *InMemoryEventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	config = config.withDefaults()
	return &InMemoryEventBus{
		registry: NewHandlerRegistry(),
		config:   config,
		logger:   logger,
		queue:    make(chan delivery, config.QueueSize),
		timers:   make(map[*time.Timer]struct{}),
	}
}

// Start launches the delivery workers
func (b *InMemoryEventBus) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return nil
	}
	b.ctx, b.cancel = context.WithCancel(context.WithoutCancel(ctx))
	b.running = true
	b.stopping = false

	for i := 0; i < b.config.Workers; i++ {
		b.workers.Add(1)
		go b.work()
	}
	b.logger.Info("event bus started", zap.Int("workers", b.config.Workers))
	return nil
}

// Stop cancels pending delayed deliveries, drains queued and running ones and stops the workers.
// If ctx ends first the workers are stopped anyway and ctx.Err() is returned.
func (b *InMemoryEventBus) Stop(ctx context.Context) error {
	b.mu.Lock()
	if !b.running || b.stopping {
		b.mu.Unlock()
		return nil
	}
	b.stopping = true
	cancelled := 0
	for t := range b.timers {
		if t.Stop() {
			b.inflight.Done()
			cancelled++
		}
		delete(b.timers, t)
	}
	b.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		b.inflight.Wait()
		close(drained)
	}()

	var err error
	select {
	case <-drained:
	case <-ctx.Done():
		err = ctx.Err()
	}

	b.cancel()
	b.workers.Wait()

	b.mu.Lock()
	b.running = false
	b.mu.Unlock()

	b.logger.Info("event bus stopped",
		zap.Int("cancelled_delayed", cancelled),
		zap.Error(err))
	return err
}

// Publish queues every event for each handler subscribed to its type
func (b *InMemoryEventBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	if err := b.accepting(); err != nil {
		return err
	}
	for _, event := range events {
		for _, handler := range b.registry.Handlers(event.EventType()) {
			if err := b.enqueue(ctx, delivery{handler: handler, event: event, attempt: 1}); err != nil {
				return fmt.Errorf("publish %s: %w", event.EventType(), err)
			}
		}
	}
	return nil
}

// PublishDelayed delivers event to its handlers once delay has elapsed
func (b *InMemoryEventBus) PublishDelayed(_ context.Context, delay time.Duration, event shared.DomainEvent) error {
	if err := b.accepting(); err != nil {
		return err
	}
	for _, handler := range b.registry.Handlers(event.EventType()) {
		if err := b.schedule(delivery{handler: handler, event: event, attempt: 1}, delay); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe registers a handler for specific event types
func (b *InMemoryEventBus) Subscribe(handler shared.EventHandler, eventTypes ...string) {
	if len(eventTypes) == 0 {
		eventTypes = handler.EventTypes()
	}
	b.registry.Register(handler, eventTypes...)
	b.logger.Debug("handler subscribed", zap.Strings("event_types", eventTypes))
}

// Unsubscribe removes a handler
func (b *InMemoryEventBus) Unsubscribe(handler shared.EventHandler) {
	b.registry.Unregister(handler)
	b.logger.Debug("handler unsubscribed")
}

// Stats returns a snapshot of the delivery counters
func (b *InMemoryEventBus) Stats() BusStats {
	return BusStats{
		Delivered:   b.counters.delivered.Load(),
		Failed:      b.counters.failed.Load(),
		Redelivered: b.counters.redelivered.Load(),
		Dropped:     b.counters.dropped.Load(),
	}
}

func (b *InMemoryEventBus) accepting() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return ErrBusNotRunning
	}
	if b.stopping {
		return ErrBusStopping
	}
	return nil
}

func (b *InMemoryEventBus) enqueue(ctx context.Context, d delivery) error {
	b.inflight.Add(1)
	select {
	case b.queue <- d:
		return nil
	case <-ctx.Done():
		b.inflight.Done()
		return ctx.Err()
	case <-b.ctx.Done():
		b.inflight.Done()
		return ErrBusStopping
	}
}

func (b *InMemoryEventBus) schedule(d delivery, delay time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopping || !b.running {
		return ErrBusStopping
	}

	b.inflight.Add(1)
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		defer b.inflight.Done()

		b.mu.Lock()
		delete(b.timers, timer)
		b.mu.Unlock()

		if err := b.enqueue(b.ctx, d); err != nil {
			b.counters.dropped.Add(1)
			b.logger.Warn("delayed delivery dropped",
				zap.String("event_type", d.event.EventType()),
				zap.String("event_id", d.event.EventID().String()),
				zap.Error(err))
		}
	})
	b.timers[timer] = struct{}{}
	return nil
}

func (b *InMemoryEventBus) work() {
	defer b.workers.Done()
	for {
		select {
		case d := <-b.queue:
			b.deliver(d)
		case <-b.ctx.Done():
			return
		}
	}
}

func (b *InMemoryEventBus) deliver(d delivery) {
	defer b.inflight.Done()

	err := b.dispatchToHandler(b.ctx, d.handler, d.event)
	if err == nil {
		b.counters.delivered.Add(1)
		return
	}
	b.counters.failed.Add(1)

	fields := []zap.Field{
		zap.String("event_type", d.event.EventType()),
		zap.String("event_id", d.event.EventID().String()),
		zap.Int("attempt", d.attempt),
		zap.Error(err),
	}
	if d.attempt > b.config.MaxRedeliveries {
		b.counters.dropped.Add(1)
		b.logger.Error("handler failed, redeliveries exhausted", fields...)
		return
	}

	next := delivery{handler: d.handler, event: d.event, attempt: d.attempt + 1}
	if serr := b.schedule(next, b.config.RedeliveryDelay); serr != nil {
		b.counters.dropped.Add(1)
		b.logger.Warn("handler failed, redelivery dropped on shutdown", fields...)
		return
	}
	b.counters.redelivered.Add(1)
	b.logger.Warn("handler failed, redelivery scheduled",
		append(fields, zap.Duration("delay", b.config.RedeliveryDelay))...)
}

// dispatchToHandler runs the handler, turning a panic into an error
func (b *InMemoryEventBus) dispatchToHandler(ctx context.Context, handler shared.EventHandler, event shared.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("handler panicked",
				zap.String("event_type", event.EventType()),
				zap.Any("panic", r),
			)
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()

	return handler.Handle(ctx, event)
}

// Ensure InMemoryEventBus implements EventBus
var _ shared.EventBus = (*InMemoryEventBus)(nil)
