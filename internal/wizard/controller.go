package wizard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mmonster/booster-apply/internal/domain"
	"github.com/mmonster/booster-apply/internal/repository"
)

// SessionLedger is the slice of the session store the controller needs.
type SessionLedger interface {
	// Validate reports whether the identity's session is still live.
	Validate(ctx context.Context, discordID string) (bool, error)

	// Clear tears the session down.
	Clear(ctx context.Context, discordID string) error
}

// Controller drives one applicant through the intake wizard. It owns the
// in-memory record and current step, resumes from the stored draft on first
// touch, and autosaves through a per-identity queue. All methods are safe
// for concurrent use.
type Controller struct {
	mu          sync.Mutex
	step        domain.Step
	record      *domain.ApplicationRecord
	identity    domain.DiscordIdentity
	initialized bool

	drafts   repository.DraftStore
	sessions SessionLedger
	saves    *saveQueue
	logger   *slog.Logger
}

// NewController creates a controller for the identity. Initialize must run
// before any other method does useful work.
func NewController(identity domain.DiscordIdentity, drafts repository.DraftStore, sessions SessionLedger, logger *slog.Logger) *Controller {
	return &Controller{
		step:     domain.StepUnauthenticated,
		record:   domain.NewApplicationRecord(),
		identity: identity,
		drafts:   drafts,
		sessions: sessions,
		saves:    newSaveQueue(drafts, logger),
		logger:   logger,
	}
}

// Initialize validates the session and absorbs the stored draft, exactly
// once. Until it completes, autosaves are suppressed: flushing a blank
// record before the draft is absorbed would wipe the applicant's progress.
func (c *Controller) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialized {
		return nil
	}
	defer func() { c.initialized = true }()

	if c.identity.ID == "" {
		c.step = domain.StepUnauthenticated
		return nil
	}

	ok, err := c.sessions.Validate(ctx, c.identity.ID)
	if err != nil {
		c.logger.Warn("session validation errored",
			"discord_id", c.identity.ID, "error", err)
	}
	if err != nil || !ok {
		if clearErr := c.sessions.Clear(ctx, c.identity.ID); clearErr != nil {
			c.logger.Warn("session clear failed",
				"discord_id", c.identity.ID, "error", clearErr)
		}
		c.identity = domain.DiscordIdentity{}
		c.record = domain.NewApplicationRecord()
		c.step = domain.StepUnauthenticated
		return domain.ErrUnauthorized("session is no longer valid")
	}

	c.record.Identity = c.identity

	saved, err := c.drafts.Load(ctx, c.identity.ID)
	if err != nil {
		// Resume is best effort: a load failure starts the wizard blank
		// rather than stranding the applicant on an error page.
		c.logger.Warn("draft load failed, starting blank",
			"discord_id", c.identity.ID, "error", err)
		saved = nil
	}
	if saved != nil {
		c.record.AbsorbDraft(*saved)
		c.record.Identity = c.identity
	}

	if c.record.SubmissionStatus == domain.StatusSubmitted {
		c.step = domain.StepSubmitted
	} else {
		c.step = domain.StepAuthenticated
	}
	return nil
}

// UpdateRecord validates and applies a step-scoped update, then autosaves in
// the background. A rejected update leaves both memory and storage untouched.
func (c *Controller) UpdateRecord(update domain.StepUpdate) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireAuthenticatedLocked(); err != nil {
		return err
	}
	if c.record.SubmissionStatus == domain.StatusSubmitted {
		return domain.ErrConflict("application already submitted")
	}
	if err := update.Validate(); err != nil {
		return err
	}
	update.Apply(c.record)
	c.autosaveLocked()
	return nil
}

// AdvanceStep moves forward once the current step's exit conditions hold,
// persisting the snapshot that passed the gate. At the review step it does
// nothing; only Submit leaves review.
func (c *Controller) AdvanceStep() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireAuthenticatedLocked(); err != nil {
		return err
	}
	next, ok := c.step.Next()
	if !ok {
		return nil
	}
	if !c.record.CanLeave(c.step) {
		return domain.ErrValidation(fmt.Sprintf("step %q is incomplete", c.step))
	}
	c.autosaveLocked()
	c.step = next
	return nil
}

// RetreatStep moves backward without validation; revisiting earlier answers
// is always allowed. The first wizard step is the floor.
func (c *Controller) RetreatStep() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireAuthenticatedLocked(); err != nil {
		return err
	}
	prev, ok := c.step.Prev()
	if !ok {
		return nil
	}
	if prev.Terminal() || prev == domain.StepUnauthenticated {
		return nil
	}
	c.step = prev
	return nil
}

// Submit runs the full-record readiness check, persists the latest edits
// synchronously, and performs the atomic draft-to-submitted flip. On any
// failure the in-memory record is left exactly as it was, so a retry after
// a transient storage error is safe.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireAuthenticatedLocked(); err != nil {
		return err
	}
	if c.record.SubmissionStatus == domain.StatusSubmitted {
		return domain.ErrConflict("application already submitted")
	}
	if err := c.record.ReadyToSubmit(); err != nil {
		return err
	}

	// The flip must act on the record the applicant reviewed, not on
	// whatever an earlier autosave happened to persist.
	if err := c.drafts.Upsert(ctx, c.identity.ID, c.identity.Email, c.record); err != nil {
		return domain.ErrInternal("persist application before submit", err)
	}

	count, err := c.drafts.MarkSubmitted(ctx, c.identity.ID, c.record)
	if err != nil {
		return err
	}

	c.record.SubmissionStatus = domain.StatusSubmitted
	c.record.ResubmissionCount = count
	c.step = domain.StepSubmitted
	return nil
}

// ReopenForEditing flips a submitted application back to a draft and parks
// the wizard at the review step so the applicant can amend and resubmit.
// Reopening a draft is a no-op.
func (c *Controller) ReopenForEditing(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireAuthenticatedLocked(); err != nil {
		return err
	}
	if c.record.SubmissionStatus != domain.StatusSubmitted {
		return nil
	}
	if err := c.drafts.MarkEditable(ctx, c.identity.ID); err != nil {
		return err
	}
	c.record.SubmissionStatus = domain.StatusDraft
	c.step = domain.StepReview
	return nil
}

// Snapshot returns the current step and a deep copy of the record.
func (c *Controller) Snapshot() (domain.Step, *domain.ApplicationRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.step, c.record.Clone()
}

// Identity returns the identity the controller was built for.
func (c *Controller) Identity() domain.DiscordIdentity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// SaveResults exposes autosave outcomes for observation. Consumers must
// drain promptly or accept drops; the controller never blocks on them.
func (c *Controller) SaveResults() <-chan SaveResult {
	return c.saves.results
}

// Close drains the save queue. Pending autosaves complete first.
func (c *Controller) Close() {
	c.saves.close()
}

func (c *Controller) requireAuthenticatedLocked() error {
	if !c.initialized || c.identity.ID == "" {
		return domain.ErrUnauthorized("authentication required")
	}
	return nil
}

// autosaveLocked snapshots the record and hands it to the save queue. It
// never fires before Initialize completes.
func (c *Controller) autosaveLocked() {
	if !c.initialized || c.identity.ID == "" {
		return
	}
	c.saves.enqueue(saveTask{
		discordID: c.identity.ID,
		email:     c.identity.Email,
		record:    c.record.Clone(),
	})
}
