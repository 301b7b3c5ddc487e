package queue

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mmeink/livechat/backend/internal/types"
	"github.com/rs/zerolog"
)

// Queue orders waiting sessions by priority, FIFO within a priority
// band. All operations take the queue lock, so no two dequeues can
// claim the same entry and positions never go stale.
type Queue struct {
	mu      sync.Mutex
	pending []*types.QueueEntry          // priority desc, entered asc
	done    map[string]*types.QueueEntry // session id -> assigned/expired entry
	logger  zerolog.Logger
}

// New creates an empty queue
func New(logger zerolog.Logger) *Queue {
	return &Queue{
		done:   make(map[string]*types.QueueEntry),
		logger: logger.With().Str("component", "queue").Logger(),
	}
}

// Enqueue creates a pending entry for a waiting session. An existing
// entry for the same session is returned unchanged.
func (q *Queue) Enqueue(sessionID string, priority types.Priority) types.QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, e := range q.pending {
		if e.SessionID == sessionID {
			return *e
		}
	}

	entry := &types.QueueEntry{
		EntryID:        uuid.New().String(),
		SessionID:      sessionID,
		Priority:       priority.Weight(),
		Status:         types.QueueStatusPending,
		EnteredQueueAt: time.Now(),
	}
	q.insert(entry)
	q.renumber()

	q.logger.Debug().
		Str("session_id", sessionID).
		Int("priority", entry.Priority).
		Int("queue_position", entry.QueuePosition).
		Int("queue_depth", len(q.pending)).
		Msg("session enqueued")
	return *entry
}

// insert places the entry behind every entry of equal or higher
// priority, keeping FIFO order within a band. Caller holds the lock.
func (q *Queue) insert(entry *types.QueueEntry) {
	idx := len(q.pending)
	for i, e := range q.pending {
		if e.Priority < entry.Priority {
			idx = i
			break
		}
	}
	q.pending = append(q.pending, nil)
	copy(q.pending[idx+1:], q.pending[idx:])
	q.pending[idx] = entry
}

// renumber recomputes dense queue positions. Caller holds the lock.
func (q *Queue) renumber() {
	for i, e := range q.pending {
		e.QueuePosition = i + 1
	}
}

// Pop atomically claims the highest-priority, earliest-entered pending
// entry. The entry flips to assigned and its wait time freezes.
func (q *Queue) Pop() (types.QueueEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return types.QueueEntry{}, false
	}

	entry := q.pending[0]
	q.pending = q.pending[1:]
	q.renumber()

	now := time.Now()
	entry.Status = types.QueueStatusAssigned
	entry.AssignedAt = &now
	entry.WaitTimeSeconds = now.Sub(entry.EnteredQueueAt).Seconds()
	entry.QueuePosition = 0
	q.done[entry.SessionID] = entry

	return *entry, true
}

// Requeue puts a just-claimed entry back to pending, keeping its
// original entered-at so the wait clock is not reset. Used when no
// agent had capacity.
func (q *Queue) Requeue(sessionID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry, ok := q.done[sessionID]
	if !ok || entry.Status != types.QueueStatusAssigned {
		return false
	}
	delete(q.done, sessionID)

	entry.Status = types.QueueStatusPending
	entry.AssignedAt = nil
	entry.WaitTimeSeconds = 0
	q.insert(entry)
	q.renumber()
	return true
}

// Expire terminates an entry that will never be dispatched. Pending
// entries are removed from the line; an already-claimed entry is
// flipped in place. Reports false if the entry is unknown or already
// expired.
func (q *Queue) Expire(sessionID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, e := range q.pending {
		if e.SessionID == sessionID {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			q.renumber()

			now := time.Now()
			e.Status = types.QueueStatusExpired
			e.WaitTimeSeconds = now.Sub(e.EnteredQueueAt).Seconds()
			e.QueuePosition = 0
			q.done[sessionID] = e
			return true
		}
	}

	if entry, ok := q.done[sessionID]; ok && entry.Status == types.QueueStatusAssigned {
		entry.Status = types.QueueStatusExpired
		return true
	}
	return false
}

// UpdatePriority reorders a pending entry under a new priority.
// Position within the new band follows the original entered-at.
func (q *Queue) UpdatePriority(sessionID string, priority types.Priority) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, e := range q.pending {
		if e.SessionID == sessionID {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			e.Priority = priority.Weight()
			q.insertByEnteredAt(e)
			q.renumber()
			return true
		}
	}
	return false
}

// insertByEnteredAt places the entry among its new band peers by
// entered-at order. Caller holds the lock.
func (q *Queue) insertByEnteredAt(entry *types.QueueEntry) {
	idx := len(q.pending)
	for i, e := range q.pending {
		if e.Priority < entry.Priority ||
			(e.Priority == entry.Priority && e.EnteredQueueAt.After(entry.EnteredQueueAt)) {
			idx = i
			break
		}
	}
	q.pending = append(q.pending, nil)
	copy(q.pending[idx+1:], q.pending[idx:])
	q.pending[idx] = entry
}

// PendingOlderThan returns copies of pending entries that entered the
// queue before the cutoff. Used by the abandonment sweeper.
func (q *Queue) PendingOlderThan(cutoff time.Time) []types.QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	var stale []types.QueueEntry
	for _, e := range q.pending {
		if e.EnteredQueueAt.Before(cutoff) {
			stale = append(stale, *e)
		}
	}
	return stale
}

// Entry returns a copy of the queue entry for a session, pending or not
func (q *Queue) Entry(sessionID string) (types.QueueEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, e := range q.pending {
		if e.SessionID == sessionID {
			return *e, true
		}
	}
	if e, ok := q.done[sessionID]; ok {
		return *e, true
	}
	return types.QueueEntry{}, false
}

// Position returns the dense 1-based queue position of a pending
// session, or 0 if it is not pending.
func (q *Queue) Position(sessionID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, e := range q.pending {
		if e.SessionID == sessionID {
			return e.QueuePosition
		}
	}
	return 0
}

// Len returns the number of pending entries
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Snapshot summarizes the queue for dashboards
func (q *Queue) Snapshot() types.QueueSnapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	snap := types.QueueSnapshot{
		Timestamp:    time.Now(),
		WaitingCount: len(q.pending),
	}
	for _, e := range q.done {
		switch e.Status {
		case types.QueueStatusAssigned:
			snap.AssignedCount++
		case types.QueueStatusExpired:
			snap.ExpiredCount++
		}
	}
	if len(q.pending) > 0 {
		var oldest time.Time
		for _, e := range q.pending {
			if oldest.IsZero() || e.EnteredQueueAt.Before(oldest) {
				oldest = e.EnteredQueueAt
			}
		}
		snap.LongestWaitSecs = time.Since(oldest).Seconds()
	}
	return snap
}
