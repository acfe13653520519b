package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dwikikusuma/shoping-fulfillment/internal/order/app"
	"github.com/dwikikusuma/shoping-fulfillment/internal/order/domain"
	"github.com/dwikikusuma/shoping-fulfillment/pkg/kafka"
)

type Processor interface {
	ProcessDueAdjustments(ctx context.Context, limit, maxAttempts int) (app.RelayStats, error)
	PublishEvents(ctx context.Context, limit int, publish func(context.Context, []domain.OutboxEvent) error) (int, error)
}

type Publisher interface {
	Publish(ctx context.Context, msgs ...kafka.Message) error
}

type Config struct {
	Interval    time.Duration
	Batch       int
	MaxAttempts int
}

// Relay periodically retries pending stock adjustments and drains the event
// outbox to Kafka.
type Relay struct {
	proc Processor
	pub  Publisher
	cfg  Config
	log  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	started bool
}

func NewRelay(proc Processor, pub Publisher, cfg Config, log *slog.Logger) *Relay {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 50
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Relay{
		proc:   proc,
		pub:    pub,
		cfg:    cfg,
		log:    log.With(slog.String("component", "relay")),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Start blocks until Stop is called. A relay stopped before it started
// returns at once.
func (r *Relay) Start() error {
	r.mu.Lock()
	if r.started || r.ctx.Err() != nil {
		r.mu.Unlock()
		return nil
	}
	r.started = true
	r.mu.Unlock()

	defer close(r.done)
	return r.Run(r.ctx)
}

func (r *Relay) Stop(ctx context.Context) error {
	r.cancel()

	r.mu.Lock()
	started := r.started
	r.mu.Unlock()
	if !started {
		return nil
	}

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Relay) Run(ctx context.Context) error {
	r.log.Info("relay started",
		slog.Duration("interval", r.cfg.Interval),
		slog.Int("batch", r.cfg.Batch),
		slog.Int("max_attempts", r.cfg.MaxAttempts),
	)
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		r.Tick(ctx)
		select {
		case <-ctx.Done():
			r.log.Info("relay stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick runs one pass: adjustments first, then the outbox.
func (r *Relay) Tick(ctx context.Context) {
	stats, err := r.proc.ProcessDueAdjustments(ctx, r.cfg.Batch, r.cfg.MaxAttempts)
	if err != nil && !errors.Is(err, context.Canceled) {
		r.log.Error("process stock adjustments", slog.Any("err", err))
	}
	if stats.Orders > 0 {
		r.log.Info("stock adjustments processed",
			slog.Int("orders", stats.Orders),
			slog.Int("applied", stats.Applied),
			slog.Int("rejected", stats.Rejected),
			slog.Int("unknown", stats.Unknown),
			slog.Int("skipped", stats.Skipped),
			slog.Int("deferred", stats.Deferred),
		)
	}

	if r.pub == nil {
		return
	}
	n, err := r.proc.PublishEvents(ctx, r.cfg.Batch, r.publish)
	switch {
	case errors.Is(err, kafka.ErrDisabled):
	case err != nil && !errors.Is(err, context.Canceled):
		r.log.Warn("publish outbox events", slog.Any("err", err))
	case n > 0:
		r.log.Debug("outbox events published", slog.Int("count", n))
	}
}

func (r *Relay) publish(ctx context.Context, events []domain.OutboxEvent) error {
	msgs := make([]kafka.Message, 0, len(events))
	for _, ev := range events {
		msgs = append(msgs, kafka.Message{Topic: ev.Topic, Key: ev.Key, Payload: ev.Payload})
	}
	return r.pub.Publish(ctx, msgs...)
}
