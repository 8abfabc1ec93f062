package app

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/mmonster/booster-apply/internal/auth"
	"github.com/mmonster/booster-apply/internal/handler"
	"github.com/mmonster/booster-apply/internal/provider"
	"github.com/mmonster/booster-apply/internal/repository"
	"github.com/mmonster/booster-apply/internal/session"
	"github.com/mmonster/booster-apply/internal/wizard"
)

// RouterDeps holds all dependencies needed by NewRouter.
type RouterDeps struct {
	Pool   *pgxpool.Pool
	Cache  *redis.Client
	JWTMgr *auth.JWTManager
	Logger *slog.Logger

	Discord       provider.DiscordConfig
	Storage       provider.StorageConfig
	AllowedOrigin string
}

// NewRouter assembles the chi.Router with all routes and middleware. It also
// returns the wizard registry so the caller can run the idle sweeper.
func NewRouter(deps RouterDeps) (chi.Router, *wizard.Registry, error) {
	pool := deps.Pool
	logger := deps.Logger

	// Repositories
	outboxRepo := repository.NewOutbox()
	identityLedger := repository.NewPgIdentityLedger(pool)
	draftStore := repository.NewPgDraftStore(pool, outboxRepo)

	// Sessions and wizard state
	sessions := session.NewStore(identityLedger, deps.Cache, deps.JWTMgr.Expiry())
	registry := wizard.NewRegistry(draftStore, sessions, sessions, logger)

	// External providers
	discordClient := provider.NewDiscordClient(deps.Discord)
	evidenceStore, err := provider.NewEvidenceStore(deps.Storage)
	if err != nil {
		return nil, nil, err
	}

	// Handlers
	authHandler := handler.NewAuthHandler(discordClient, sessions, deps.JWTMgr,
		registry, outboxRepo, pool, logger)
	applicationHandler := handler.NewApplicationHandler(registry)
	evidenceHandler := handler.NewEvidenceHandler(registry, evidenceStore)
	catalogHandler := handler.NewCatalogHandler()

	// Router
	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(handler.Recovery(logger))
	r.Use(handler.RequestID)
	r.Use(handler.RequestLogger(logger))
	r.Use(handler.CORS(deps.AllowedOrigin))
	r.Use(handler.JSONContentType)

	// Health (no auth)
	r.Get("/health", handler.HealthHandler(pool))

	// Catalogs (no auth; the wizard renders them before login)
	r.Get("/catalog", catalogHandler.Get)
	r.Get("/catalog/{name}", catalogHandler.GetCollection)

	// OAuth entry and callback (no auth)
	r.Route("/auth", func(r chi.Router) {
		r.Get("/discord", authHandler.StartDiscord)
		r.Get("/discord/callback", authHandler.Callback)
	})

	// Applicant-authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(auth.Authenticate(deps.JWTMgr))

		r.Post("/auth/logout", authHandler.Logout)

		r.Route("/application", func(r chi.Router) {
			r.Get("/", applicationHandler.Get)
			r.Post("/updates", applicationHandler.Update)
			r.Post("/advance", applicationHandler.Advance)
			r.Post("/retreat", applicationHandler.Retreat)
			r.Post("/submit", applicationHandler.Submit)
			r.Post("/reopen", applicationHandler.Reopen)
		})

		r.Route("/evidence", func(r chi.Router) {
			r.Get("/", evidenceHandler.List)
			r.Post("/", evidenceHandler.Upload)
			r.Delete("/*", evidenceHandler.Delete)
		})
	})

	return r, registry, nil
}
