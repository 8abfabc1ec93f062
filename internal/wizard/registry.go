package wizard

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mmonster/booster-apply/internal/domain"
	"github.com/mmonster/booster-apply/internal/repository"
)

// IdentitySource resolves a Discord ID to its stored identity profile.
type IdentitySource interface {
	LoadIdentity(ctx context.Context, discordID string) (*domain.DiscordIdentity, error)
}

const defaultIdleTTL = 30 * time.Minute

// Registry keeps one live Controller per authenticated identity so wizard
// state survives across requests. Idle controllers are evicted by the
// sweeper; their state lives on in the draft store and is re-absorbed on
// the next touch.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*registryEntry

	drafts     repository.DraftStore
	sessions   SessionLedger
	identities IdentitySource
	logger     *slog.Logger
	idleTTL    time.Duration
}

type registryEntry struct {
	ctrl     *Controller
	lastSeen time.Time
}

// NewRegistry creates a Registry with the default idle TTL.
func NewRegistry(drafts repository.DraftStore, sessions SessionLedger, identities IdentitySource, logger *slog.Logger) *Registry {
	return &Registry{
		entries:    make(map[string]*registryEntry),
		drafts:     drafts,
		sessions:   sessions,
		identities: identities,
		logger:     logger,
		idleTTL:    defaultIdleTTL,
	}
}

// Acquire returns the identity's controller, creating and initializing one
// on first use. Initialization runs outside the registry lock; when two
// requests race, the controller registered first wins and the loser's copy
// is discarded.
func (g *Registry) Acquire(ctx context.Context, discordID string) (*Controller, error) {
	if discordID == "" {
		return nil, domain.ErrUnauthorized("authentication required")
	}

	g.mu.Lock()
	if e, ok := g.entries[discordID]; ok {
		e.lastSeen = time.Now()
		ctrl := e.ctrl
		g.mu.Unlock()
		return ctrl, nil
	}
	g.mu.Unlock()

	identity, err := g.identities.LoadIdentity(ctx, discordID)
	if err != nil {
		return nil, domain.ErrInternal("load identity", err)
	}
	if identity == nil {
		return nil, domain.ErrUnauthorized("unknown identity")
	}

	ctrl := NewController(*identity, g.drafts, g.sessions, g.logger)
	if err := ctrl.Initialize(ctx); err != nil {
		ctrl.Close()
		return nil, err
	}

	g.mu.Lock()
	if e, ok := g.entries[discordID]; ok {
		e.lastSeen = time.Now()
		existing := e.ctrl
		g.mu.Unlock()
		ctrl.Close()
		return existing, nil
	}
	g.entries[discordID] = &registryEntry{ctrl: ctrl, lastSeen: time.Now()}
	g.mu.Unlock()
	return ctrl, nil
}

// Evict drops the identity's controller, flushing pending autosaves. Used
// on logout; a later request simply builds a fresh controller.
func (g *Registry) Evict(discordID string) {
	g.mu.Lock()
	e, ok := g.entries[discordID]
	if ok {
		delete(g.entries, discordID)
	}
	g.mu.Unlock()
	if ok {
		e.ctrl.Close()
	}
}

// StartSweeper evicts idle controllers until ctx is cancelled.
func (g *Registry) StartSweeper(ctx context.Context) {
	ticker := time.NewTicker(g.idleTTL / 2)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				g.sweep()
			}
		}
	}()
}

func (g *Registry) sweep() {
	cutoff := time.Now().Add(-g.idleTTL)

	g.mu.Lock()
	var idle []*registryEntry
	for id, e := range g.entries {
		if e.lastSeen.Before(cutoff) {
			idle = append(idle, e)
			delete(g.entries, id)
		}
	}
	g.mu.Unlock()

	for _, e := range idle {
		e.ctrl.Close()
	}
	if len(idle) > 0 {
		g.logger.Debug("evicted idle wizard controllers", "count", len(idle))
	}
}
