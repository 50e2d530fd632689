package events

import (
	"context"
	"time"

	"go.uber.org/zap"

	"banking-core/internal/domain"
	"banking-core/internal/store"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultBatchSize    = 10
	maxAttempts         = 5
)

// Dispatcher drains the outbox. Failed deliveries are rescheduled with a
// growing delay and parked as FAILED after maxAttempts; ledger state is never
// touched either way.
type Dispatcher struct {
	st       store.Store
	sender   Sender
	log      *zap.Logger
	interval time.Duration
	batch    int
}

func NewDispatcher(st store.Store, sender Sender, log *zap.Logger, interval time.Duration) *Dispatcher {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Dispatcher{
		st:       st,
		sender:   sender,
		log:      log,
		interval: interval,
		batch:    defaultBatchSize,
	}
}

// Run polls until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) {
	d.log.Info("event dispatcher started", zap.Duration("interval", d.interval))
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.log.Info("event dispatcher stopped")
			return
		case <-ticker.C:
			d.drain(ctx)
		}
	}
}

func (d *Dispatcher) drain(ctx context.Context) {
	for {
		claimed, err := d.st.ClaimPendingEvents(ctx, time.Now().UTC(), d.batch)
		if err != nil {
			d.log.Error("claim pending events", zap.Error(err))
			return
		}
		if len(claimed) == 0 {
			return
		}
		for _, e := range claimed {
			d.deliver(ctx, e)
		}
		if len(claimed) < d.batch {
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, e domain.Event) {
	err := d.sender.Send(ctx, e)
	if err == nil {
		if err := d.st.MarkEventDelivered(ctx, e.ID); err != nil {
			d.log.Error("mark delivered", zap.Stringer("event_id", e.ID), zap.Error(err))
		}
		d.log.Debug("event delivered",
			zap.Stringer("event_id", e.ID),
			zap.String("event_type", string(e.Type)))
		return
	}

	attempts := e.Attempts + 1
	terminal := attempts >= maxAttempts
	next := time.Now().UTC().Add(time.Duration(attempts) * 10 * time.Second)
	if markErr := d.st.MarkEventFailed(ctx, e.ID, next, terminal); markErr != nil {
		d.log.Error("mark failed", zap.Stringer("event_id", e.ID), zap.Error(markErr))
	}
	if terminal {
		d.log.Error("event delivery exhausted retries",
			zap.Stringer("event_id", e.ID),
			zap.String("event_type", string(e.Type)),
			zap.Int("attempts", attempts),
			zap.Error(err))
		return
	}
	d.log.Warn("event delivery failed, rescheduled",
		zap.Stringer("event_id", e.ID),
		zap.Int("attempts", attempts),
		zap.Time("next_attempt", next),
		zap.Error(err))
}
