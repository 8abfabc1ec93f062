package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmonster/booster-apply/internal/auth"
	"github.com/mmonster/booster-apply/internal/domain"
	"github.com/mmonster/booster-apply/internal/repository"
	"github.com/mmonster/booster-apply/internal/wizard"
)

// --- RespondJSON / RespondError ---

func TestRespondJSON(t *testing.T) {
	t.Run("200 with body", func(t *testing.T) {
		w := httptest.NewRecorder()
		RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		assert.Equal(t, http.StatusOK, w.Code)
		var body map[string]string
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, "ok", body["status"])
	})

	t.Run("204 with nil body", func(t *testing.T) {
		w := httptest.NewRecorder()
		RespondJSON(w, http.StatusNoContent, nil)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, w.Body.String())
	})
}

func TestRespondError(t *testing.T) {
	t.Run("AppError maps to correct status", func(t *testing.T) {
		tests := []struct {
			err        *domain.AppError
			wantStatus int
			wantCode   string
		}{
			{domain.ErrNotFound("application", "123"), 404, "NOT_FOUND"},
			{domain.ErrValidation("bad input"), 400, "VALIDATION_ERROR"},
			{domain.ErrUnauthorized("no token"), 401, "UNAUTHORIZED"},
			{domain.ErrForbidden("not allowed"), 403, "FORBIDDEN"},
			{domain.ErrConflict("duplicate"), 409, "CONFLICT"},
			{domain.ErrEvidenceRejected("too big"), 400, "EVIDENCE_REJECTED"},
			{domain.ErrInternal("oops", nil), 500, "INTERNAL_ERROR"},
		}

		for _, tt := range tests {
			t.Run(tt.wantCode, func(t *testing.T) {
				w := httptest.NewRecorder()
				RespondError(w, tt.err)
				assert.Equal(t, tt.wantStatus, w.Code)

				var body map[string]string
				require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
				assert.Equal(t, tt.wantCode, body["code"])
			})
		}
	})

	t.Run("generic error returns 500", func(t *testing.T) {
		w := httptest.NewRecorder()
		RespondError(w, assert.AnError)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

// --- Middleware ---

func TestRequestIDGenerated(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, GetRequestID(r.Context()))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRequestIDPreserved(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
}

func TestRecoveryReturns500(t *testing.T) {
	handler := Recovery(slog.New(slog.NewTextHandler(io.Discard, nil)))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	handler := CORS("https://apply.example.com")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("preflight must short-circuit")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://apply.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

// --- Catalog ---

func TestCatalogGet(t *testing.T) {
	rec := httptest.NewRecorder()
	NewCatalogHandler().Get(rec, httptest.NewRequest(http.MethodGet, "/catalog", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Services  []domain.ServiceTag `json:"services"`
		Games     []string            `json:"games"`
		Countries []domain.Country    `json:"countries"`
		Languages []string            `json:"languages"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.NotEmpty(t, body.Services)
	assert.Contains(t, body.Games, "Valorant")
	assert.NotEmpty(t, body.Countries)
	assert.Contains(t, body.Languages, "English")
}

func TestCatalogGetCollection(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/catalog/{name}", NewCatalogHandler().GetCollection)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/catalog/games", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string][]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Contains(t, body["games"], "Dota 2")

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/catalog/weapons", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// --- Application endpoints over the wizard registry ---

type memDrafts struct {
	mu      sync.Mutex
	records map[string]*domain.ApplicationRecord
	status  map[string]*repository.DraftStatus
}

func newMemDrafts() *memDrafts {
	return &memDrafts{
		records: make(map[string]*domain.ApplicationRecord),
		status:  make(map[string]*repository.DraftStatus),
	}
}

func (s *memDrafts) Upsert(_ context.Context, discordID, _ string, record *domain.ApplicationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[discordID] = record.Clone()
	if _, ok := s.status[discordID]; !ok {
		s.status[discordID] = &repository.DraftStatus{Status: domain.StatusDraft}
	}
	return nil
}

func (s *memDrafts) Load(_ context.Context, discordID string) (*domain.ApplicationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[discordID]
	if !ok {
		return nil, nil
	}
	cp := r.Clone()
	cp.SubmissionStatus = s.status[discordID].Status
	cp.ResubmissionCount = s.status[discordID].ResubmissionCount
	return cp, nil
}

func (s *memDrafts) MarkSubmitted(_ context.Context, discordID string, _ *domain.ApplicationRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.status[discordID]
	if !ok {
		return 0, domain.ErrNotFound("application", discordID)
	}
	if st.Status != domain.StatusDraft {
		return 0, domain.ErrConflict("application already submitted")
	}
	st.Status = domain.StatusSubmitted
	st.ResubmissionCount++
	return st.ResubmissionCount, nil
}

func (s *memDrafts) MarkEditable(_ context.Context, discordID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.status[discordID]
	if !ok {
		return domain.ErrNotFound("application", discordID)
	}
	st.Status = domain.StatusDraft
	return nil
}

func (s *memDrafts) Status(_ context.Context, discordID string) (*repository.DraftStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.status[discordID]
	if !ok {
		return nil, nil
	}
	cp := *st
	return &cp, nil
}

func (s *memDrafts) Delete(_ context.Context, discordID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, discordID)
	delete(s.status, discordID)
	return nil
}

type memIdentities struct {
	identities map[string]domain.DiscordIdentity
}

func (m *memIdentities) Validate(_ context.Context, discordID string) (bool, error) {
	_, ok := m.identities[discordID]
	return ok, nil
}

func (m *memIdentities) Clear(_ context.Context, _ string) error { return nil }

func (m *memIdentities) LoadIdentity(_ context.Context, discordID string) (*domain.DiscordIdentity, error) {
	id, ok := m.identities[discordID]
	if !ok {
		return nil, nil
	}
	return &id, nil
}

const testDiscordID = "123456789012345678"

func newApplicationRouter(t *testing.T) chi.Router {
	t.Helper()
	drafts := newMemDrafts()
	idents := &memIdentities{identities: map[string]domain.DiscordIdentity{
		testDiscordID: {ID: testDiscordID, Username: "boostertest"},
	}}
	registry := wizard.NewRegistry(drafts, idents, idents, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() { registry.Evict(testDiscordID) })

	h := NewApplicationHandler(registry)
	r := chi.NewRouter()
	// Tests inject the subject directly instead of minting tokens.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(auth.WithSubject(req.Context(), req.Header.Get("X-Test-Subject"))))
		})
	})
	r.Get("/application", h.Get)
	r.Post("/application/updates", h.Update)
	r.Post("/application/advance", h.Advance)
	r.Post("/application/retreat", h.Retreat)
	r.Post("/application/submit", h.Submit)
	r.Post("/application/reopen", h.Reopen)
	return r
}

func doJSON(t *testing.T, router chi.Router, method, path, subject string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if subject != "" {
		req.Header.Set("X-Test-Subject", subject)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestApplicationRequiresSubject(t *testing.T) {
	router := newApplicationRouter(t)
	rec := doJSON(t, router, http.MethodGet, "/application", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestApplicationGetStartsAtAuthenticated(t *testing.T) {
	router := newApplicationRouter(t)
	rec := doJSON(t, router, http.MethodGet, "/application", testDiscordID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var view struct {
		Step   string                    `json:"step"`
		Record *domain.ApplicationRecord `json:"record"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&view))
	assert.Equal(t, "authenticated", view.Step)
	assert.Equal(t, testDiscordID, view.Record.Identity.ID)
}

func TestApplicationUpdateRejectsUnknownFields(t *testing.T) {
	router := newApplicationRouter(t)
	rec := doJSON(t, router, http.MethodPost, "/application/updates", testDiscordID, map[string]any{
		"step": "contact",
		"data": map[string]any{"discord_handle": "x", "phone": "555"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestApplicationAdvanceGateFailure(t *testing.T) {
	router := newApplicationRouter(t)

	// authenticated -> classification is always allowed.
	rec := doJSON(t, router, http.MethodPost, "/application/advance", testDiscordID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// classification gate is unmet.
	rec = doJSON(t, router, http.MethodPost, "/application/advance", testDiscordID, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestApplicationFullFlowOverHTTP(t *testing.T) {
	router := newApplicationRouter(t)

	updates := []map[string]any{
		{"step": "classification", "data": map[string]any{"classification": "solo", "confirmed": true}},
		{"step": "services", "data": map[string]any{"services": []string{"boosting"}}},
		{"step": "games", "data": map[string]any{"games": []string{"Valorant"}}},
		{"step": "experience", "data": map[string]any{"experience": "Years of ranked boosting."}},
		{"step": "contact", "data": map[string]any{"discord_handle": "boostertest"}},
		{"step": "personal", "data": map[string]any{
			"full_name": "Test Booster", "date_of_birth": "1999-04-12",
			"country": "US", "languages": []string{"English"},
		}},
		{"step": "community", "data": map[string]any{"joined": true}},
		{"step": "payment", "data": map[string]any{"accepts_crypto_payout": true}},
	}
	for i, u := range updates {
		rec := doJSON(t, router, http.MethodPost, "/application/updates", testDiscordID, u)
		require.Equal(t, http.StatusOK, rec.Code, fmt.Sprintf("update %d", i))
	}

	rec := doJSON(t, router, http.MethodPost, "/application/submit", testDiscordID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var view struct {
		Step   string                    `json:"step"`
		Record *domain.ApplicationRecord `json:"record"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&view))
	assert.Equal(t, "submitted", view.Step)
	assert.Equal(t, 1, view.Record.ResubmissionCount)

	// Duplicate submit conflicts.
	rec = doJSON(t, router, http.MethodPost, "/application/submit", testDiscordID, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Reopen, then resubmit bumps the counter.
	rec = doJSON(t, router, http.MethodPost, "/application/reopen", testDiscordID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, router, http.MethodPost, "/application/submit", testDiscordID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&view))
	assert.Equal(t, 2, view.Record.ResubmissionCount)
}
