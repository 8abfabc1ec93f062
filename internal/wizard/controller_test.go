package wizard

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmonster/booster-apply/internal/domain"
	"github.com/mmonster/booster-apply/internal/repository"
)

type memDraftStore struct {
	mu         sync.Mutex
	records    map[string]*domain.ApplicationRecord
	status     map[string]*repository.DraftStatus
	upserts    int
	failSubmit error
}

func newMemDraftStore() *memDraftStore {
	return &memDraftStore{
		records: make(map[string]*domain.ApplicationRecord),
		status:  make(map[string]*repository.DraftStatus),
	}
}

func (s *memDraftStore) Upsert(_ context.Context, discordID, _ string, record *domain.ApplicationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	s.records[discordID] = record.Clone()
	if _, ok := s.status[discordID]; !ok {
		s.status[discordID] = &repository.DraftStatus{Status: domain.StatusDraft}
	}
	return nil
}

func (s *memDraftStore) Load(_ context.Context, discordID string) (*domain.ApplicationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[discordID]
	if !ok {
		return nil, nil
	}
	cp := r.Clone()
	st := s.status[discordID]
	cp.SubmissionStatus = st.Status
	cp.ResubmissionCount = st.ResubmissionCount
	return cp, nil
}

func (s *memDraftStore) MarkSubmitted(_ context.Context, discordID string, _ *domain.ApplicationRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSubmit != nil {
		return 0, s.failSubmit
	}
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

func (s *memDraftStore) MarkEditable(_ context.Context, discordID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.status[discordID]
	if !ok {
		return domain.ErrNotFound("application", discordID)
	}
	st.Status = domain.StatusDraft
	return nil
}

func (s *memDraftStore) Status(_ context.Context, discordID string) (*repository.DraftStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.status[discordID]
	if !ok {
		return nil, nil
	}
	cp := *st
	return &cp, nil
}

func (s *memDraftStore) Delete(_ context.Context, discordID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, discordID)
	delete(s.status, discordID)
	return nil
}

func (s *memDraftStore) upsertCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upserts
}

type memSessions struct {
	mu    sync.Mutex
	live  map[string]bool
	ident map[string]domain.DiscordIdentity
}

func newMemSessions(identities ...domain.DiscordIdentity) *memSessions {
	s := &memSessions{live: make(map[string]bool), ident: make(map[string]domain.DiscordIdentity)}
	for _, id := range identities {
		s.live[id.ID] = true
		s.ident[id.ID] = id
	}
	return s
}

func (s *memSessions) Validate(_ context.Context, discordID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live[discordID], nil
}

func (s *memSessions) Clear(_ context.Context, discordID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.live, discordID)
	return nil
}

func (s *memSessions) LoadIdentity(_ context.Context, discordID string) (*domain.DiscordIdentity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.ident[discordID]
	if !ok {
		return nil, nil
	}
	return &id, nil
}

var testIdentity = domain.DiscordIdentity{
	ID:       "123456789012345678",
	Username: "boostertest",
	Email:    "booster@example.com",
}

func newTestController(t *testing.T, store *memDraftStore, sessions *memSessions) *Controller {
	t.Helper()
	c := NewController(testIdentity, store, sessions, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(c.Close)
	require.NoError(t, c.Initialize(context.Background()))
	return c
}

// waitForSave drains one autosave result, failing the test on timeout.
func waitForSave(t *testing.T, c *Controller) SaveResult {
	t.Helper()
	select {
	case res := <-c.SaveResults():
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for autosave")
		return SaveResult{}
	}
}

func completeRecord(t *testing.T, c *Controller) {
	t.Helper()
	updates := []domain.StepUpdate{
		domain.ClassificationUpdate{Classification: domain.ClassificationSolo, Confirmed: true},
		domain.ServicesUpdate{Services: []string{"boosting"}},
		domain.GamesUpdate{Games: []string{"Valorant"}},
		domain.ExperienceUpdate{Experience: "Three seasons of radiant-level duo queue boosting."},
		domain.ContactUpdate{DiscordHandle: "boostertest"},
		domain.PersonalUpdate{FullName: "Test Booster", DateOfBirth: "1999-04-12", Country: "US", Languages: []string{"English"}},
		domain.CommunityUpdate{Joined: true},
		domain.PaymentUpdate{AcceptsCryptoPayout: true, WalletRef: "TTestWallet123"},
	}
	for _, u := range updates {
		require.NoError(t, c.UpdateRecord(u))
		waitForSave(t, c)
	}
}

func TestInitializeStartsBlankWhenNoDraft(t *testing.T) {
	store := newMemDraftStore()
	c := newTestController(t, store, newMemSessions(testIdentity))

	step, record := c.Snapshot()
	assert.Equal(t, domain.StepAuthenticated, step)
	assert.Equal(t, domain.StatusDraft, record.SubmissionStatus)
	assert.Equal(t, testIdentity, record.Identity)
}

func TestInitializeResumesStoredDraft(t *testing.T) {
	store := newMemDraftStore()
	saved := domain.NewApplicationRecord()
	saved.Classification = domain.ClassificationGroup
	saved.ClassificationConfirmed = true
	saved.Services = []string{"boosting", "coaching"}
	saved.Identity = domain.DiscordIdentity{ID: testIdentity.ID, Username: "stale-name"}
	require.NoError(t, store.Upsert(context.Background(), testIdentity.ID, "", saved))

	c := newTestController(t, store, newMemSessions(testIdentity))

	step, record := c.Snapshot()
	assert.Equal(t, domain.StepAuthenticated, step)
	assert.Equal(t, domain.ClassificationGroup, record.Classification)
	assert.Equal(t, []string{"boosting", "coaching"}, record.Services)
	// The freshly validated identity wins over the stored snapshot.
	assert.Equal(t, "boostertest", record.Identity.Username)
}

func TestInitializeInvalidSessionResetsToUnauthenticated(t *testing.T) {
	store := newMemDraftStore()
	sessions := newMemSessions() // no live session
	c := NewController(testIdentity, store, sessions, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(c.Close)

	err := c.Initialize(context.Background())
	var appErr *domain.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "UNAUTHORIZED", appErr.Code)

	step, record := c.Snapshot()
	assert.Equal(t, domain.StepUnauthenticated, step)
	assert.Empty(t, record.Identity.ID)
}

func TestInitializeSubmittedRecordLandsOnTerminalStep(t *testing.T) {
	store := newMemDraftStore()
	saved := domain.NewApplicationRecord()
	saved.Identity = testIdentity
	require.NoError(t, store.Upsert(context.Background(), testIdentity.ID, "", saved))
	_, err := store.MarkSubmitted(context.Background(), testIdentity.ID, saved)
	require.NoError(t, err)

	c := newTestController(t, store, newMemSessions(testIdentity))

	step, record := c.Snapshot()
	assert.Equal(t, domain.StepSubmitted, step)
	assert.Equal(t, domain.StatusSubmitted, record.SubmissionStatus)
	assert.Equal(t, 1, record.ResubmissionCount)
}

func TestUpdateRecordAutosavesInBackground(t *testing.T) {
	store := newMemDraftStore()
	c := newTestController(t, store, newMemSessions(testIdentity))

	err := c.UpdateRecord(domain.ClassificationUpdate{
		Classification: domain.ClassificationSolo,
		Confirmed:      true,
	})
	require.NoError(t, err)

	res := waitForSave(t, c)
	require.NoError(t, res.Err)

	saved, err := store.Load(context.Background(), testIdentity.ID)
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, domain.ClassificationSolo, saved.Classification)
	assert.True(t, saved.ClassificationConfirmed)
}

func TestUpdateRecordRejectsInvalidWithoutSaving(t *testing.T) {
	store := newMemDraftStore()
	c := newTestController(t, store, newMemSessions(testIdentity))

	err := c.UpdateRecord(domain.GamesUpdate{Games: []string{"Not A Real Game"}})
	require.Error(t, err)

	_, record := c.Snapshot()
	assert.Empty(t, record.Games)
	assert.Zero(t, store.upsertCount())
}

func TestAdvanceGateRejectionSkipsAutosave(t *testing.T) {
	store := newMemDraftStore()
	c := newTestController(t, store, newMemSessions(testIdentity))

	// authenticated -> classification always passes and persists once.
	require.NoError(t, c.AdvanceStep())
	waitForSave(t, c)
	baseline := store.upsertCount()

	// classification gate is unmet, so the advance must not persist.
	err := c.AdvanceStep()
	var appErr *domain.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "VALIDATION_ERROR", appErr.Code)

	step, _ := c.Snapshot()
	assert.Equal(t, domain.StepClassification, step)

	// A subsequent valid update flows through the same serialized queue,
	// so once its save lands we know the rejected advance saved nothing.
	require.NoError(t, c.UpdateRecord(domain.ClassificationUpdate{
		Classification: domain.ClassificationSolo, Confirmed: true,
	}))
	waitForSave(t, c)
	assert.Equal(t, baseline+1, store.upsertCount())
}

func TestRetreatFloorsAtFirstWizardStep(t *testing.T) {
	store := newMemDraftStore()
	c := newTestController(t, store, newMemSessions(testIdentity))

	require.NoError(t, c.AdvanceStep()) // classification
	waitForSave(t, c)
	require.NoError(t, c.RetreatStep()) // back to authenticated
	require.NoError(t, c.RetreatStep()) // floor: no-op

	step, _ := c.Snapshot()
	assert.Equal(t, domain.StepAuthenticated, step)
}

func TestSubmitFlipsStatusAndCountsOnce(t *testing.T) {
	store := newMemDraftStore()
	c := newTestController(t, store, newMemSessions(testIdentity))
	completeRecord(t, c)

	require.NoError(t, c.Submit(context.Background()))

	step, record := c.Snapshot()
	assert.Equal(t, domain.StepSubmitted, step)
	assert.Equal(t, domain.StatusSubmitted, record.SubmissionStatus)
	assert.Equal(t, 1, record.ResubmissionCount)

	// A duplicate submit is a conflict and does not double-increment.
	err := c.Submit(context.Background())
	var appErr *domain.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "CONFLICT", appErr.Code)

	st, err := store.Status(context.Background(), testIdentity.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, st.ResubmissionCount)
}

func TestSubmitIncompleteRecordRejected(t *testing.T) {
	store := newMemDraftStore()
	c := newTestController(t, store, newMemSessions(testIdentity))

	err := c.Submit(context.Background())
	var appErr *domain.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "VALIDATION_ERROR", appErr.Code)

	_, record := c.Snapshot()
	assert.Equal(t, domain.StatusDraft, record.SubmissionStatus)
}

func TestSubmitFailureLeavesMemoryUnchangedAndRetriable(t *testing.T) {
	store := newMemDraftStore()
	c := newTestController(t, store, newMemSessions(testIdentity))
	completeRecord(t, c)

	store.mu.Lock()
	store.failSubmit = errors.New("connection reset")
	store.mu.Unlock()

	err := c.Submit(context.Background())
	require.Error(t, err)

	step, record := c.Snapshot()
	assert.NotEqual(t, domain.StepSubmitted, step)
	assert.Equal(t, domain.StatusDraft, record.SubmissionStatus)
	assert.Zero(t, record.ResubmissionCount)

	store.mu.Lock()
	store.failSubmit = nil
	store.mu.Unlock()

	require.NoError(t, c.Submit(context.Background()))
	_, record = c.Snapshot()
	assert.Equal(t, 1, record.ResubmissionCount)
}

func TestReopenEditResubmitIncrementsCounter(t *testing.T) {
	store := newMemDraftStore()
	c := newTestController(t, store, newMemSessions(testIdentity))
	completeRecord(t, c)
	require.NoError(t, c.Submit(context.Background()))

	require.NoError(t, c.ReopenForEditing(context.Background()))
	step, record := c.Snapshot()
	assert.Equal(t, domain.StepReview, step)
	assert.Equal(t, domain.StatusDraft, record.SubmissionStatus)

	require.NoError(t, c.UpdateRecord(domain.ExperienceUpdate{
		Experience: "Updated: four seasons of boosting experience.",
	}))
	waitForSave(t, c)

	require.NoError(t, c.Submit(context.Background()))
	_, record = c.Snapshot()
	assert.Equal(t, 2, record.ResubmissionCount)

	saved, err := store.Load(context.Background(), testIdentity.ID)
	require.NoError(t, err)
	assert.Contains(t, saved.Experience, "Updated")
}

func TestReopenDraftIsNoOp(t *testing.T) {
	store := newMemDraftStore()
	c := newTestController(t, store, newMemSessions(testIdentity))

	require.NoError(t, c.ReopenForEditing(context.Background()))
	step, record := c.Snapshot()
	assert.Equal(t, domain.StepAuthenticated, step)
	assert.Equal(t, domain.StatusDraft, record.SubmissionStatus)
}

func TestRegistryReusesAndEvictsControllers(t *testing.T) {
	store := newMemDraftStore()
	sessions := newMemSessions(testIdentity)
	reg := NewRegistry(store, sessions, sessions, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx := context.Background()
	first, err := reg.Acquire(ctx, testIdentity.ID)
	require.NoError(t, err)
	second, err := reg.Acquire(ctx, testIdentity.ID)
	require.NoError(t, err)
	assert.Same(t, first, second)

	// Eviction flushes pending saves; the next acquire resumes from storage.
	require.NoError(t, first.UpdateRecord(domain.ClassificationUpdate{
		Classification: domain.ClassificationReseller, Confirmed: true,
	}))
	reg.Evict(testIdentity.ID)

	third, err := reg.Acquire(ctx, testIdentity.ID)
	require.NoError(t, err)
	assert.NotSame(t, first, third)
	_, record := third.Snapshot()
	assert.Equal(t, domain.ClassificationReseller, record.Classification)
	reg.Evict(testIdentity.ID)
}

func TestUpdateAfterEvictionDoesNotPanic(t *testing.T) {
	store := newMemDraftStore()
	sessions := newMemSessions(testIdentity)
	reg := NewRegistry(store, sessions, sessions, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx := context.Background()
	ctrl, err := reg.Acquire(ctx, testIdentity.ID)
	require.NoError(t, err)

	// A logout in one tab can evict the controller another tab still holds.
	reg.Evict(testIdentity.ID)

	require.NotPanics(t, func() {
		err = ctrl.UpdateRecord(domain.ClassificationUpdate{
			Classification: domain.ClassificationSolo, Confirmed: true,
		})
	})
	require.NoError(t, err)

	// The late edit stays in the orphaned controller only; a fresh acquire
	// resumes from the last stored draft.
	fresh, err := reg.Acquire(ctx, testIdentity.ID)
	require.NoError(t, err)
	_, record := fresh.Snapshot()
	assert.Empty(t, record.Classification)
	reg.Evict(testIdentity.ID)

	// Closing an already-evicted controller again is harmless.
	require.NotPanics(t, ctrl.Close)
}

func TestRegistryRejectsUnknownIdentity(t *testing.T) {
	store := newMemDraftStore()
	sessions := newMemSessions(testIdentity)
	reg := NewRegistry(store, sessions, sessions, slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := reg.Acquire(context.Background(), "999999999999999999")
	var appErr *domain.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "UNAUTHORIZED", appErr.Code)
}
