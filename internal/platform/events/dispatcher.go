package events

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

type DispatcherConfig struct {
	Workers        int
	QueueSize      int
	PublishTimeout time.Duration
}

func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		Workers:        2,
		QueueSize:      256,
		PublishTimeout: 10 * time.Second,
	}
}

type job struct {
	topic string
	msg   Message
	// ctx keeps request-scoped values but not the request's cancellation.
	ctx context.Context
}

// Dispatcher hands messages to a Publisher on background workers so callers
// never wait for broker round trips. Delivery is attempted once; failures
// are logged and counted.
type Dispatcher struct {
	pub     Publisher
	cfg     DispatcherConfig
	logger  zerolog.Logger
	metrics *Metrics

	mu     sync.RWMutex
	closed bool
	queue  chan job
	wg     sync.WaitGroup
}

func NewDispatcher(pub Publisher, cfg DispatcherConfig, logger zerolog.Logger, reg prometheus.Registerer) *Dispatcher {
	def := DefaultDispatcherConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = def.PublishTimeout
	}

	d := &Dispatcher{
		pub:     pub,
		cfg:     cfg,
		logger:  logger.With().Str("component", "events").Str("transport", pub.Name()).Logger(),
		metrics: NewMetrics(reg),
		queue:   make(chan job, cfg.QueueSize),
	}
	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Dispatch enqueues msg for topic and returns immediately. It reports false
// when the message could not be queued.
func (d *Dispatcher) Dispatch(ctx context.Context, topic string, msg Message) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.metrics.Dropped.Inc()
		d.logger.Error().Str("topic", topic).Str("event_id", msg.ID).Msg("event dropped: dispatcher closed")
		return false
	}

	select {
	case d.queue <- job{topic: topic, msg: msg, ctx: context.WithoutCancel(ctx)}:
		d.metrics.QueueLen.Set(float64(len(d.queue)))
		return true
	default:
		d.metrics.Dropped.Inc()
		d.logger.Error().Str("topic", topic).Str("event_id", msg.ID).Int("queue_size", d.cfg.QueueSize).Msg("event dropped: dispatch queue full")
		return false
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.queue {
		d.metrics.QueueLen.Set(float64(len(d.queue)))
		d.publish(j)
	}
}

func (d *Dispatcher) publish(j job) {
	ctx, cancel := context.WithTimeout(j.ctx, d.cfg.PublishTimeout)
	defer cancel()

	if err := d.pub.Publish(ctx, j.topic, j.msg); err != nil {
		d.metrics.Published.WithLabelValues(d.pub.Name(), "error").Inc()
		d.logger.Error().Err(err).
			Str("topic", j.topic).
			Str("event_id", j.msg.ID).
			Str("event_type", j.msg.Type).
			Msg("event publish failed")
		return
	}
	d.metrics.Published.WithLabelValues(d.pub.Name(), "ok").Inc()
	d.logger.Debug().Str("topic", j.topic).Str("event_id", j.msg.ID).Msg("event published")
}

// Close stops accepting messages, drains the queue and closes the
// publisher. It gives up waiting when ctx expires.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		d.logger.Warn().Int("pending", len(d.queue)).Msg("dispatcher shutdown timed out")
		return ctx.Err()
	}
	return d.pub.Close()
}
