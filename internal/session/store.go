package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mmonster/booster-apply/internal/domain"
)

const (
	liveKeyPrefix     = "apply:session:live:"
	identityKeyPrefix = "apply:session:identity:"
	oauthStatePrefix  = "apply:oauth:state:"

	oauthStateTTL = 10 * time.Minute
)

// IdentityLedger is the durable side of the store.
type IdentityLedger interface {
	Upsert(ctx context.Context, identity domain.DiscordIdentity) error
	Exists(ctx context.Context, discordID string) (bool, error)
	Fetch(ctx context.Context, discordID string) (*domain.DiscordIdentity, error)
}

// Store tracks live sessions and cached identity profiles. Redis is the hot
// path for both; the Postgres ledger is the durable fallback, so a cache
// flush degrades to extra queries rather than logging everyone out.
type Store struct {
	ledger IdentityLedger
	cache  *redis.Client
	ttl    time.Duration
}

// NewStore creates a Store. ttl bounds both the live-session marker and the
// cached identity; it should match the access token lifetime.
func NewStore(ledger IdentityLedger, cache *redis.Client, ttl time.Duration) *Store {
	return &Store{ledger: ledger, cache: cache, ttl: ttl}
}

// Save registers a fresh login: the identity is upserted into the ledger and
// the session is marked live for the token lifetime.
func (s *Store) Save(ctx context.Context, identity domain.DiscordIdentity) error {
	if identity.ID == "" {
		return domain.ErrValidation("discord id is required")
	}
	if err := s.ledger.Upsert(ctx, identity); err != nil {
		return domain.ErrInternal("persist identity", err)
	}

	if err := s.cache.Set(ctx, liveKeyPrefix+identity.ID, "1", s.ttl).Err(); err != nil {
		return domain.ErrInternal("mark session live", err)
	}
	if payload, err := json.Marshal(identity); err == nil {
		// Identity caching is best effort; Fetch covers a miss.
		_ = s.cache.Set(ctx, identityKeyPrefix+identity.ID, payload, s.ttl).Err()
	}
	return nil
}

// Validate reports whether the identity's session is still live. A missing
// marker with a reachable cache means logged out; when the cache itself is
// down the ledger decides, trading revocation latency for availability.
func (s *Store) Validate(ctx context.Context, discordID string) (bool, error) {
	if discordID == "" {
		return false, nil
	}
	err := s.cache.Get(ctx, liveKeyPrefix+discordID).Err()
	if err == nil {
		return true, nil
	}
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	return s.ledger.Exists(ctx, discordID)
}

// Clear logs the identity out by removing the live marker and the cached
// profile. The ledger row is kept; it is an identity record, not a session.
func (s *Store) Clear(ctx context.Context, discordID string) error {
	if discordID == "" {
		return nil
	}
	if err := s.cache.Del(ctx, liveKeyPrefix+discordID, identityKeyPrefix+discordID).Err(); err != nil {
		return domain.ErrInternal("clear session", err)
	}
	return nil
}

// LoadIdentity returns the identity profile, preferring the cache.
func (s *Store) LoadIdentity(ctx context.Context, discordID string) (*domain.DiscordIdentity, error) {
	payload, err := s.cache.Get(ctx, identityKeyPrefix+discordID).Bytes()
	if err == nil {
		var identity domain.DiscordIdentity
		if jsonErr := json.Unmarshal(payload, &identity); jsonErr == nil && identity.ID != "" {
			return &identity, nil
		}
	}

	identity, err := s.ledger.Fetch(ctx, discordID)
	if err != nil {
		return nil, domain.ErrInternal("fetch identity", err)
	}
	if identity == nil {
		return nil, nil
	}
	if payload, err := json.Marshal(identity); err == nil {
		_ = s.cache.Set(ctx, identityKeyPrefix+discordID, payload, s.ttl).Err()
	}
	return identity, nil
}

// SaveOAuthState stores a single-use OAuth state nonce.
func (s *Store) SaveOAuthState(ctx context.Context, state string) error {
	if state == "" {
		return domain.ErrValidation("oauth state is required")
	}
	if err := s.cache.Set(ctx, oauthStatePrefix+state, "1", oauthStateTTL).Err(); err != nil {
		return domain.ErrInternal("store oauth state", err)
	}
	return nil
}

// ConsumeOAuthState atomically checks and burns a state nonce, so a replayed
// callback fails even when the two requests race.
func (s *Store) ConsumeOAuthState(ctx context.Context, state string) (bool, error) {
	if state == "" {
		return false, nil
	}
	err := s.cache.GetDel(ctx, oauthStatePrefix+state).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("consume oauth state: %w", err)
	}
	return true, nil
}
