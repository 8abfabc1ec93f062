package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mmonster/booster-apply/internal/domain"
)

// DBTX abstracts pgx.Tx and pgxpool.Pool so repositories work with both.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// DraftStatus is the cheap status read used at session-resume time.
type DraftStatus struct {
	Status            domain.SubmissionStatus `json:"status"`
	ResubmissionCount int                     `json:"resubmission_count"`
}

// DraftStore is keyed persistence for one evolving application record per
// Discord identity.
type DraftStore interface {
	// Upsert creates or replaces the record payload for the identity. It
	// never touches the status or the resubmission counter; only the
	// dedicated transition operations do.
	Upsert(ctx context.Context, discordID, email string, record *domain.ApplicationRecord) error

	// Load returns the most recent full record regardless of status, or
	// nil when the identity has never saved anything.
	Load(ctx context.Context, discordID string) (*domain.ApplicationRecord, error)

	// MarkSubmitted atomically flips a draft to submitted and increments
	// the resubmission counter, returning the new count. The flip is a
	// single conditional update scoped to draft status, so a concurrent or
	// retried call cannot double-increment; it fails with a conflict when
	// the record is already submitted. The submission notification event
	// is enqueued in the same transaction.
	MarkSubmitted(ctx context.Context, discordID string, record *domain.ApplicationRecord) (int, error)

	// MarkEditable flips a submitted record back to draft, leaving the
	// counter untouched. Flipping a record that is already a draft is a
	// no-op.
	MarkEditable(ctx context.Context, discordID string) error

	// Status returns the lifecycle state and counter, or nil when the
	// identity has no record.
	Status(ctx context.Context, discordID string) (*DraftStatus, error)

	// Delete removes the record. Administrative and test use only; the
	// normal flow never hard-deletes.
	Delete(ctx context.Context, discordID string) error
}

// IdentityLedger is the durable registry of authenticated Discord users
// backing session validation.
type IdentityLedger interface {
	// Upsert registers or refreshes the identity, replacing the stored
	// profile wholesale.
	Upsert(ctx context.Context, identity domain.DiscordIdentity) error

	// Exists reports whether the identity is recognized.
	Exists(ctx context.Context, discordID string) (bool, error)
}

// Outbox provides access to the event_outbox table.
type Outbox interface {
	// Insert writes an event, typically within the transaction that
	// produced it.
	Insert(ctx context.Context, db DBTX, event domain.OutboxEvent) error

	// FetchUndelivered returns pending events in insertion order.
	FetchUndelivered(ctx context.Context, db DBTX, limit int) ([]domain.OutboxEvent, error)

	// MarkDelivered removes successfully delivered events.
	MarkDelivered(ctx context.Context, db DBTX, seqIDs []int64) error

	// RecordFailure bumps the attempt counter so delivery problems are
	// visible; the row stays queued.
	RecordFailure(ctx context.Context, db DBTX, seqID int64) error
}
