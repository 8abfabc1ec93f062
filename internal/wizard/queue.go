package wizard

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mmonster/booster-apply/internal/domain"
	"github.com/mmonster/booster-apply/internal/repository"
)

// SaveResult reports the outcome of one background autosave. Results are
// observational only; autosave failures never block the applicant.
type SaveResult struct {
	DiscordID string
	Err       error
}

type saveTask struct {
	discordID string
	email     string
	record    *domain.ApplicationRecord
}

// saveQueue serializes background draft saves for one identity so a slow
// earlier save can never land after a newer one. Saves are fire-and-forget:
// a failure is logged, reported on the results channel, and dropped.
type saveQueue struct {
	store  repository.DraftStore
	logger *slog.Logger

	mu     sync.Mutex
	closed bool

	tasks   chan saveTask
	results chan SaveResult
	stopped chan struct{}
}

func newSaveQueue(store repository.DraftStore, logger *slog.Logger) *saveQueue {
	q := &saveQueue{
		store:   store,
		logger:  logger,
		tasks:   make(chan saveTask, 64),
		results: make(chan SaveResult, 64),
		stopped: make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *saveQueue) run() {
	defer close(q.stopped)
	for task := range q.tasks {
		// Saves run against a fresh context: an applicant navigating away
		// must not abort a write already in flight.
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := q.store.Upsert(ctx, task.discordID, task.email, task.record)
		cancel()
		if err != nil {
			q.logger.Warn("draft autosave failed",
				"discord_id", task.discordID, "error", err)
		}
		select {
		case q.results <- SaveResult{DiscordID: task.discordID, Err: err}:
		default:
		}
	}
}

// enqueue hands a snapshot to the worker. When the queue is full the oldest
// pending save is discarded: every snapshot carries the full record, so the
// newest one supersedes everything before it. After close the snapshot is
// dropped: a request racing an eviction may still hold the old controller,
// and the next acquire resumes from the last stored draft.
func (q *saveQueue) enqueue(t saveTask) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	for {
		select {
		case q.tasks <- t:
			return
		default:
		}
		select {
		case <-q.tasks:
		default:
		}
	}
}

func (q *saveQueue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()
	<-q.stopped
}
