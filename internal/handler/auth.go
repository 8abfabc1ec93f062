package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mmonster/booster-apply/internal/auth"
	"github.com/mmonster/booster-apply/internal/domain"
	"github.com/mmonster/booster-apply/internal/provider"
	"github.com/mmonster/booster-apply/internal/repository"
	"github.com/mmonster/booster-apply/internal/session"
	"github.com/mmonster/booster-apply/internal/wizard"
)

// AuthHandler drives the Discord OAuth login flow and logout.
type AuthHandler struct {
	discord  *provider.DiscordClient
	sessions *session.Store
	jwtMgr   *auth.JWTManager
	registry *wizard.Registry
	outbox   repository.Outbox
	db       repository.DBTX
	logger   *slog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(discord *provider.DiscordClient, sessions *session.Store, jwtMgr *auth.JWTManager,
	registry *wizard.Registry, outbox repository.Outbox, db repository.DBTX, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		discord:  discord,
		sessions: sessions,
		jwtMgr:   jwtMgr,
		registry: registry,
		outbox:   outbox,
		db:       db,
		logger:   logger,
	}
}

// StartDiscord handles GET /auth/discord. It mints a single-use state nonce
// and redirects the browser to the Discord consent screen.
func (h *AuthHandler) StartDiscord(w http.ResponseWriter, r *http.Request) {
	state := uuid.New().String()
	if err := h.sessions.SaveOAuthState(r.Context(), state); err != nil {
		RespondError(w, err)
		return
	}
	http.Redirect(w, r, h.discord.AuthURL(state), http.StatusFound)
}

// Callback handles GET /auth/discord/callback. It burns the state nonce,
// exchanges the code for the Discord identity, registers the session, and
// issues the applicant token.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if errCode := q.Get("error"); errCode != "" {
		RespondError(w, domain.ErrUnauthorized("discord authorization was denied"))
		return
	}
	code := q.Get("code")
	state := q.Get("state")
	if code == "" || state == "" {
		RespondError(w, domain.ErrValidation("code and state are required"))
		return
	}

	ok, err := h.sessions.ConsumeOAuthState(r.Context(), state)
	if err != nil {
		RespondError(w, domain.ErrInternal("verify oauth state", err))
		return
	}
	if !ok {
		RespondError(w, domain.ErrUnauthorized("unknown or replayed oauth state"))
		return
	}

	identity, err := h.discord.Authenticate(r.Context(), code)
	if err != nil {
		h.logger.Warn("discord authentication failed", "error", err)
		RespondError(w, domain.ErrUnauthorized("discord authentication failed"))
		return
	}

	if err := h.sessions.Save(r.Context(), *identity); err != nil {
		RespondError(w, err)
		return
	}

	// Login notification is best effort via the outbox; a delivery problem
	// must not block the login itself.
	if err := h.outbox.Insert(r.Context(), h.db, domain.NewAuthEvent(*identity, time.Now().UTC())); err != nil {
		h.logger.Warn("enqueue auth event failed", "discord_id", identity.ID, "error", err)
	}

	token, err := h.jwtMgr.GenerateToken(identity.ID, identity.Username, identity.Email)
	if err != nil {
		RespondError(w, domain.ErrInternal("issue token", err))
		return
	}

	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"token":    token,
		"identity": identity,
	})
}

// Logout handles POST /auth/logout. It clears the session and drops the
// live wizard controller; pending autosaves flush on eviction.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	discordID := auth.SubjectFromContext(r.Context())
	if discordID == "" {
		RespondError(w, domain.ErrUnauthorized("authentication required"))
		return
	}

	h.registry.Evict(discordID)
	if err := h.sessions.Clear(r.Context(), discordID); err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusNoContent, nil)
}
