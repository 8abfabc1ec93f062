package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mmonster/booster-apply/internal/domain"
)

// PgDraftStore implements DraftStore on draft_applications using pgx.
type PgDraftStore struct {
	pool   *pgxpool.Pool
	outbox Outbox
}

// NewPgDraftStore creates a PgDraftStore. The outbox receives the
// submission event inside the MarkSubmitted transaction.
func NewPgDraftStore(pool *pgxpool.Pool, outbox Outbox) *PgDraftStore {
	return &PgDraftStore{pool: pool, outbox: outbox}
}

// Upsert creates or replaces the record payload. The ON CONFLICT clause
// deliberately leaves status and submit_count alone so a background autosave
// can never revert a submission or reset the counter.
func (s *PgDraftStore) Upsert(ctx context.Context, discordID, email string, record *domain.ApplicationRecord) error {
	if discordID == "" {
		return fmt.Errorf("discord id is required")
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal application record: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO draft_applications (discord_id, email, application_data, status, submit_count)
		VALUES ($1, NULLIF($2, ''), $3, 'draft', 0)
		ON CONFLICT (discord_id) DO UPDATE
		SET email = EXCLUDED.email,
		    application_data = EXCLUDED.application_data,
		    updated_at = now()`,
		discordID, email, payload)
	if err != nil {
		return fmt.Errorf("upsert draft: %w", err)
	}
	return nil
}

// Load returns the full record regardless of status. The status and counter
// columns are canonical and overwrite whatever the JSON payload carries.
func (s *PgDraftStore) Load(ctx context.Context, discordID string) (*domain.ApplicationRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT application_data, status, submit_count
		FROM draft_applications WHERE discord_id = $1`, discordID)

	var (
		payload json.RawMessage
		status  string
		count   int
	)
	err := row.Scan(&payload, &status, &count)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load draft: %w", err)
	}

	record := domain.NewApplicationRecord()
	if err := json.Unmarshal(payload, record); err != nil {
		return nil, fmt.Errorf("unmarshal application record: %w", err)
	}
	record.SubmissionStatus = domain.SubmissionStatus(status)
	record.ResubmissionCount = count
	return record, nil
}

// MarkSubmitted performs the atomic draft→submitted flip. The conditional
// UPDATE is the sole arbiter: of two concurrent calls exactly one matches
// the draft row and increments the counter, the other sees zero rows and
// fails with a conflict.
func (s *PgDraftStore) MarkSubmitted(ctx context.Context, discordID string, record *domain.ApplicationRecord) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, domain.ErrInternal("begin submit transaction", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()

	var count int
	err = tx.QueryRow(ctx, `
		UPDATE draft_applications
		SET status = 'submitted',
		    submit_count = submit_count + 1,
		    submitted_at = $2,
		    updated_at = now()
		WHERE discord_id = $1 AND status = 'draft'
		RETURNING submit_count`,
		discordID, now).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		status, stErr := s.Status(ctx, discordID)
		if stErr == nil && status == nil {
			return 0, domain.ErrNotFound("application", discordID)
		}
		return 0, domain.ErrConflict("application already submitted")
	}
	if err != nil {
		return 0, domain.ErrInternal("mark submitted", err)
	}

	submitted := record.Clone()
	submitted.SubmissionStatus = domain.StatusSubmitted
	submitted.ResubmissionCount = count
	if err := s.outbox.Insert(ctx, tx, domain.NewSubmissionEvent(discordID, submitted, now)); err != nil {
		return 0, domain.ErrInternal("enqueue submission event", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, domain.ErrInternal("commit submit transaction", err)
	}
	return count, nil
}

// MarkEditable flips submitted back to draft. Zero matched rows with an
// existing record means it is already a draft, which is a no-op.
func (s *PgDraftStore) MarkEditable(ctx context.Context, discordID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE draft_applications
		SET status = 'draft', updated_at = now()
		WHERE discord_id = $1 AND status = 'submitted'`, discordID)
	if err != nil {
		return domain.ErrInternal("mark editable", err)
	}
	if tag.RowsAffected() == 0 {
		status, stErr := s.Status(ctx, discordID)
		if stErr != nil {
			return stErr
		}
		if status == nil {
			return domain.ErrNotFound("application", discordID)
		}
	}
	return nil
}

// Status returns the lifecycle columns only.
func (s *PgDraftStore) Status(ctx context.Context, discordID string) (*DraftStatus, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT status, submit_count FROM draft_applications WHERE discord_id = $1`, discordID)

	var (
		status string
		count  int
	)
	err := row.Scan(&status, &count)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.ErrInternal("read draft status", err)
	}
	return &DraftStatus{Status: domain.SubmissionStatus(status), ResubmissionCount: count}, nil
}

// Delete removes the record. Test and administrative use only.
func (s *PgDraftStore) Delete(ctx context.Context, discordID string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM draft_applications WHERE discord_id = $1`, discordID)
	if err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	return nil
}
