package infra

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mmonster/booster-apply/internal/domain"
	"github.com/mmonster/booster-apply/internal/repository"
)

// WebhookSender posts one notification payload.
type WebhookSender interface {
	Send(ctx context.Context, payload json.RawMessage) error
}

// EventPublisher mirrors delivered events to a message broker.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// NotifierPoller drains the event_outbox table and delivers each event to
// the staff webhook, optionally mirroring it to Kafka. The webhook is the
// delivery that counts: an event is only marked delivered once the webhook
// accepted it, so submissions survive notification outages.
type NotifierPoller struct {
	pool      *pgxpool.Pool
	outbox    repository.Outbox
	webhook   WebhookSender
	publisher EventPublisher
	topic     string
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

// NewNotifierPoller creates a new notifier poller. publisher may be nil.
func NewNotifierPoller(pool *pgxpool.Pool, outbox repository.Outbox, webhook WebhookSender,
	publisher EventPublisher, topic string, logger *slog.Logger) *NotifierPoller {
	return &NotifierPoller{
		pool:      pool,
		outbox:    outbox,
		webhook:   webhook,
		publisher: publisher,
		topic:     topic,
		logger:    logger,
		interval:  500 * time.Millisecond,
		batchSize: 100,
	}
}

// Start begins polling in a goroutine. Stops when ctx is cancelled.
func (p *NotifierPoller) Start(ctx context.Context) {
	p.logger.Info("notifier poller started", "interval", p.interval, "batch_size", p.batchSize)

	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				p.logger.Info("notifier poller stopped")
				return
			case <-ticker.C:
				if err := p.poll(ctx); err != nil {
					p.logger.Error("notifier poll error", "error", err)
				}
			}
		}
	}()
}

func (p *NotifierPoller) poll(ctx context.Context) error {
	events, err := p.outbox.FetchUndelivered(ctx, p.pool, p.batchSize)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	delivered := make([]int64, 0, len(events))
	for _, e := range events {
		if err := p.deliver(ctx, e); err != nil {
			p.logger.Warn("event delivery failed",
				"event_id", e.EventID, "event_type", e.EventType,
				"attempts", e.Attempts+1, "error", err)
			if err := p.outbox.RecordFailure(ctx, p.pool, e.SeqID); err != nil {
				p.logger.Error("record delivery failure failed", "event_id", e.EventID, "error", err)
			}
			continue
		}
		delivered = append(delivered, e.SeqID)
	}

	if len(delivered) > 0 {
		if err := p.outbox.MarkDelivered(ctx, p.pool, delivered); err != nil {
			return err
		}
		p.logger.Debug("notifier poll complete", "delivered", len(delivered))
	}
	return nil
}

// deliver pushes one event to the webhook and then mirrors it to Kafka. The
// mirror is best effort; only the webhook outcome decides delivery.
func (p *NotifierPoller) deliver(ctx context.Context, e domain.OutboxEvent) error {
	if err := p.webhook.Send(ctx, e.Payload); err != nil {
		return err
	}

	if p.publisher != nil {
		msg, _ := json.Marshal(e)
		if err := p.publisher.Publish(ctx, p.topic, []byte(e.AggregateID), msg); err != nil {
			p.logger.Warn("kafka mirror failed", "event_id", e.EventID, "error", err)
		}
	}
	return nil
}
