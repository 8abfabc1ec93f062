package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mmonster/booster-apply/internal/domain"
)

// PgIdentityLedger implements IdentityLedger on discord_users using pgx.
type PgIdentityLedger struct {
	pool *pgxpool.Pool
}

// NewPgIdentityLedger creates a PgIdentityLedger.
func NewPgIdentityLedger(pool *pgxpool.Pool) *PgIdentityLedger {
	return &PgIdentityLedger{pool: pool}
}

// Upsert registers or refreshes the identity, replacing the profile
// wholesale. Re-login always wins over whatever was stored.
func (l *PgIdentityLedger) Upsert(ctx context.Context, identity domain.DiscordIdentity) error {
	if identity.ID == "" {
		return fmt.Errorf("discord id is required")
	}
	_, err := l.pool.Exec(ctx, `
		INSERT INTO discord_users (discord_id, username, discriminator, avatar, email)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''))
		ON CONFLICT (discord_id) DO UPDATE
		SET username = EXCLUDED.username,
		    discriminator = EXCLUDED.discriminator,
		    avatar = EXCLUDED.avatar,
		    email = EXCLUDED.email,
		    updated_at = now()`,
		identity.ID, identity.Username, identity.Discriminator, identity.Avatar, identity.Email)
	if err != nil {
		return fmt.Errorf("upsert discord user: %w", err)
	}
	return nil
}

// Exists reports whether the identity is recognized by the ledger.
func (l *PgIdentityLedger) Exists(ctx context.Context, discordID string) (bool, error) {
	var exists bool
	err := l.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM discord_users WHERE discord_id = $1)`, discordID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check discord user: %w", err)
	}
	return exists, nil
}

// Fetch returns the stored identity, or nil when unknown.
func (l *PgIdentityLedger) Fetch(ctx context.Context, discordID string) (*domain.DiscordIdentity, error) {
	row := l.pool.QueryRow(ctx, `
		SELECT discord_id, username, discriminator, avatar, COALESCE(email, '')
		FROM discord_users WHERE discord_id = $1`, discordID)

	var identity domain.DiscordIdentity
	err := row.Scan(&identity.ID, &identity.Username, &identity.Discriminator, &identity.Avatar, &identity.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch discord user: %w", err)
	}
	return &identity, nil
}
