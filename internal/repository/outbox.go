package repository

import (
	"context"
	"fmt"

	"github.com/mmonster/booster-apply/internal/domain"
)

type pgOutbox struct{}

// NewOutbox returns a pgx-backed Outbox.
func NewOutbox() Outbox {
	return &pgOutbox{}
}

func (o *pgOutbox) Insert(ctx context.Context, db DBTX, event domain.OutboxEvent) error {
	_, err := db.Exec(ctx, `
		INSERT INTO event_outbox (event_id, aggregate_id, event_type, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5)`,
		event.EventID, event.AggregateID, string(event.EventType), event.Payload, event.OccurredAt)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

func (o *pgOutbox) FetchUndelivered(ctx context.Context, db DBTX, limit int) ([]domain.OutboxEvent, error) {
	rows, err := db.Query(ctx, `
		SELECT id, event_id, aggregate_id, event_type, payload, occurred_at, attempts
		FROM event_outbox
		WHERE delivered_at IS NULL
		ORDER BY id ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch undelivered events: %w", err)
	}
	defer rows.Close()

	var events []domain.OutboxEvent
	for rows.Next() {
		var e domain.OutboxEvent
		if err := rows.Scan(&e.SeqID, &e.EventID, &e.AggregateID, &e.EventType,
			&e.Payload, &e.OccurredAt, &e.Attempts); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (o *pgOutbox) MarkDelivered(ctx context.Context, db DBTX, seqIDs []int64) error {
	if len(seqIDs) == 0 {
		return nil
	}
	_, err := db.Exec(ctx,
		`UPDATE event_outbox SET delivered_at = now() WHERE id = ANY($1)`, seqIDs)
	if err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	return nil
}

func (o *pgOutbox) RecordFailure(ctx context.Context, db DBTX, seqID int64) error {
	_, err := db.Exec(ctx,
		`UPDATE event_outbox SET attempts = attempts + 1 WHERE id = $1`, seqID)
	if err != nil {
		return fmt.Errorf("record delivery failure: %w", err)
	}
	return nil
}
