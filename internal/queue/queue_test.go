package queue

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mmeink/livechat/backend/internal/types"
	"github.com/rs/zerolog"
)

func TestEnqueuePopFIFOWithinBand(t *testing.T) {
	q := New(zerolog.Nop())

	q.Enqueue("s1", types.PriorityNormal)
	q.Enqueue("s2", types.PriorityNormal)
	q.Enqueue("s3", types.PriorityNormal)

	for _, want := range []string{"s1", "s2", "s3"} {
		entry, ok := q.Pop()
		if !ok {
			t.Fatal("expected entry")
		}
		if entry.SessionID != want {
			t.Errorf("expected %s, got %s", want, entry.SessionID)
		}
		if entry.Status != types.QueueStatusAssigned {
			t.Errorf("expected assigned status, got %s", entry.Status)
		}
		if entry.AssignedAt == nil {
			t.Error("expected assigned_at stamp")
		}
	}

	if _, ok := q.Pop(); ok {
		t.Error("expected empty queue")
	}
}

func TestHigherPriorityJumpsTheLine(t *testing.T) {
	q := New(zerolog.Nop())

	// Enqueued normal first, urgent second: urgent must pop first
	q.Enqueue("normal-1", types.PriorityNormal)
	q.Enqueue("urgent-1", types.PriorityUrgent)
	q.Enqueue("low-1", types.PriorityLow)
	q.Enqueue("urgent-2", types.PriorityUrgent)

	order := []string{"urgent-1", "urgent-2", "normal-1", "low-1"}
	for _, want := range order {
		entry, _ := q.Pop()
		if entry.SessionID != want {
			t.Errorf("expected %s, got %s", want, entry.SessionID)
		}
	}
}

func TestDensePositions(t *testing.T) {
	q := New(zerolog.Nop())

	q.Enqueue("s1", types.PriorityNormal)
	q.Enqueue("s2", types.PriorityNormal)
	e3 := q.Enqueue("s3", types.PriorityUrgent)

	if e3.QueuePosition != 1 {
		t.Errorf("urgent entry should be position 1, got %d", e3.QueuePosition)
	}
	if got := q.Position("s1"); got != 2 {
		t.Errorf("expected s1 at position 2, got %d", got)
	}
	if got := q.Position("s2"); got != 3 {
		t.Errorf("expected s2 at position 3, got %d", got)
	}

	// Positions stay dense after a dequeue
	q.Pop()
	if got := q.Position("s1"); got != 1 {
		t.Errorf("expected s1 at position 1 after pop, got %d", got)
	}
	if got := q.Position("s2"); got != 2 {
		t.Errorf("expected s2 at position 2 after pop, got %d", got)
	}
}

func TestEnqueueIsIdempotentPerSession(t *testing.T) {
	q := New(zerolog.Nop())

	first := q.Enqueue("s1", types.PriorityNormal)
	second := q.Enqueue("s1", types.PriorityUrgent)

	if first.EntryID != second.EntryID {
		t.Error("expected the existing entry to be returned")
	}
	if q.Len() != 1 {
		t.Errorf("expected 1 pending entry, got %d", q.Len())
	}
}

func TestRequeueKeepsWaitClock(t *testing.T) {
	q := New(zerolog.Nop())
	q.Enqueue("s1", types.PriorityNormal)

	popped, _ := q.Pop()
	enteredAt := popped.EnteredQueueAt

	if !q.Requeue("s1") {
		t.Fatal("expected requeue to succeed")
	}
	if q.Len() != 1 {
		t.Fatalf("expected 1 pending after requeue, got %d", q.Len())
	}

	entry, ok := q.Entry("s1")
	if !ok {
		t.Fatal("expected entry")
	}
	if entry.Status != types.QueueStatusPending {
		t.Errorf("expected pending after requeue, got %s", entry.Status)
	}
	if !entry.EnteredQueueAt.Equal(enteredAt) {
		t.Error("requeue must not reset the wait clock")
	}
	if entry.AssignedAt != nil {
		t.Error("expected assigned_at cleared after requeue")
	}
}

func TestExpirePending(t *testing.T) {
	q := New(zerolog.Nop())
	q.Enqueue("s1", types.PriorityNormal)
	q.Enqueue("s2", types.PriorityNormal)

	if !q.Expire("s1") {
		t.Fatal("expected expire to succeed")
	}
	if q.Expire("s1") {
		t.Error("second expire must report false")
	}
	if q.Len() != 1 {
		t.Errorf("expected 1 pending, got %d", q.Len())
	}

	entry, _ := q.Entry("s1")
	if entry.Status != types.QueueStatusExpired {
		t.Errorf("expected expired, got %s", entry.Status)
	}

	// s2 moved up
	if got := q.Position("s2"); got != 1 {
		t.Errorf("expected s2 at position 1, got %d", got)
	}
}

func TestExpireClaimedEntry(t *testing.T) {
	q := New(zerolog.Nop())
	q.Enqueue("s1", types.PriorityNormal)
	q.Pop()

	if !q.Expire("s1") {
		t.Fatal("expected expire of claimed entry to succeed")
	}
	entry, _ := q.Entry("s1")
	if entry.Status != types.QueueStatusExpired {
		t.Errorf("expected expired, got %s", entry.Status)
	}
}

func TestUpdatePriorityReorders(t *testing.T) {
	q := New(zerolog.Nop())
	q.Enqueue("s1", types.PriorityNormal)
	q.Enqueue("s2", types.PriorityNormal)
	q.Enqueue("s3", types.PriorityNormal)

	if !q.UpdatePriority("s3", types.PriorityUrgent) {
		t.Fatal("expected priority update to succeed")
	}
	entry, _ := q.Pop()
	if entry.SessionID != "s3" {
		t.Errorf("expected s3 first after upgrade, got %s", entry.SessionID)
	}
	if q.UpdatePriority("s3", types.PriorityLow) {
		t.Error("claimed entry must not be reprioritized")
	}
}

func TestPendingOlderThan(t *testing.T) {
	q := New(zerolog.Nop())
	q.Enqueue("s1", types.PriorityNormal)

	if stale := q.PendingOlderThan(time.Now().Add(-time.Minute)); len(stale) != 0 {
		t.Errorf("expected no stale entries, got %d", len(stale))
	}
	if stale := q.PendingOlderThan(time.Now().Add(time.Minute)); len(stale) != 1 {
		t.Errorf("expected 1 stale entry, got %d", len(stale))
	}
}

func TestConcurrentPopsNeverShareAnEntry(t *testing.T) {
	q := New(zerolog.Nop())
	const n = 100
	for i := 0; i < n; i++ {
		q.Enqueue(fmt.Sprintf("s-%d", i), types.PriorityNormal)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[string]int)

	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				entry, ok := q.Pop()
				if !ok {
					return
				}
				mu.Lock()
				seen[entry.SessionID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != n {
		t.Errorf("expected %d distinct entries, got %d", n, len(seen))
	}
	for id, count := range seen {
		if count != 1 {
			t.Errorf("entry %s dequeued %d times", id, count)
		}
	}
}

func TestSnapshot(t *testing.T) {
	q := New(zerolog.Nop())
	q.Enqueue("s1", types.PriorityNormal)
	q.Enqueue("s2", types.PriorityNormal)
	q.Enqueue("s3", types.PriorityNormal)
	q.Pop()
	q.Expire("s2")

	snap := q.Snapshot()
	if snap.WaitingCount != 1 {
		t.Errorf("expected 1 waiting, got %d", snap.WaitingCount)
	}
	if snap.AssignedCount != 1 {
		t.Errorf("expected 1 assigned, got %d", snap.AssignedCount)
	}
	if snap.ExpiredCount != 1 {
		t.Errorf("expected 1 expired, got %d", snap.ExpiredCount)
	}
	if snap.LongestWaitSecs < 0 {
		t.Error("expected non-negative longest wait")
	}
}
