package schedule

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/deusflow/newsbot/internal/logger"
)

var ErrClosed = errors.New("schedule: queue is shut down")

// Task is a delayed follow-up for one post.
type Task func(ctx context.Context, postID string)

// Pending describes a scheduled task that has not fired yet.
type Pending struct {
	ID     uuid.UUID
	PostID string
	Due    time.Time
}

type entry struct {
	Pending
	timer *time.Timer
}

// Queue holds follow-up tasks until they are due. Tasks get a context
// that is cancelled by Shutdown.
type Queue struct {
	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	task    Task
	entries map[uuid.UUID]*entry
	closed  bool
	wg      sync.WaitGroup
	log     *slog.Logger
}

func NewQueue(parent context.Context, task Task) *Queue {
	ctx, cancel := context.WithCancel(parent)
	return &Queue{
		ctx:     ctx,
		cancel:  cancel,
		task:    task,
		entries: make(map[uuid.UUID]*entry),
		log:     logger.With("followups"),
	}
}

// Schedule runs the task for postID after delay.
func (q *Queue) Schedule(postID string, delay time.Duration) (uuid.UUID, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return uuid.Nil, ErrClosed
	}

	id := uuid.New()
	e := &entry{Pending: Pending{ID: id, PostID: postID, Due: time.Now().Add(delay)}}
	q.wg.Add(1)
	e.timer = time.AfterFunc(delay, func() { q.fire(id) })
	q.entries[id] = e

	q.log.Info("follow-up scheduled", "id", id, "post_id", postID, "due", e.Due)
	return id, nil
}

func (q *Queue) fire(id uuid.UUID) {
	defer q.wg.Done()

	q.mu.Lock()
	e, ok := q.entries[id]
	delete(q.entries, id)
	q.mu.Unlock()
	if !ok || q.ctx.Err() != nil {
		return
	}

	q.log.Info("follow-up running", "id", id, "post_id", e.PostID)
	q.task(q.ctx, e.PostID)
}

// Cancel revokes a task that has not started. It reports whether the
// task was still pending.
func (q *Queue) Cancel(id uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[id]
	if !ok {
		return false
	}
	delete(q.entries, id)
	if e.timer.Stop() {
		q.wg.Done()
	}
	q.log.Info("follow-up cancelled", "id", id, "post_id", e.PostID)
	return true
}

// Pending lists tasks not yet fired, soonest first.
func (q *Queue) Pending() []Pending {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pendingLocked()
}

func (q *Queue) pendingLocked() []Pending {
	out := make([]Pending, 0, len(q.entries))
	for _, e := range q.entries {
		out = append(out, e.Pending)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Due.Before(out[j].Due) })
	return out
}

// Shutdown stops every pending task, cancels running ones and returns
// what never ran. Later Schedule calls fail with ErrClosed.
func (q *Queue) Shutdown() []Pending {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true

	dropped := q.pendingLocked()
	for id, e := range q.entries {
		if e.timer.Stop() {
			q.wg.Done()
		}
		delete(q.entries, id)
	}
	q.cancel()

	for _, p := range dropped {
		q.log.Warn("follow-up dropped at shutdown", "id", p.ID, "post_id", p.PostID, "due", p.Due)
	}
	return dropped
}

// Wait blocks until running tasks return.
func (q *Queue) Wait() { q.wg.Wait() }
