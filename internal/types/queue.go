package types

import "time"

// QueueEntryStatus represents the lifecycle of a queue entry
type QueueEntryStatus string

const (
	QueueStatusPending  QueueEntryStatus = "pending"
	QueueStatusAssigned QueueEntryStatus = "assigned"
	QueueStatusExpired  QueueEntryStatus = "expired"
)

// QueueEntry is the queue-side record for one waiting session.
// It reaches exactly one of assigned or expired.
type QueueEntry struct {
	EntryID        string           `json:"entryId"`
	SessionID      string           `json:"sessionId"`
	Priority       int              `json:"priority"` // higher = more urgent
	QueuePosition  int              `json:"queuePosition"`
	Status         QueueEntryStatus `json:"status"`
	EnteredQueueAt time.Time        `json:"enteredQueueAt"`
	AssignedAt     *time.Time       `json:"assignedAt,omitempty"`

	// WaitTimeSeconds is frozen at the moment the entry leaves pending.
	WaitTimeSeconds float64 `json:"waitTimeSeconds"`
}

// QueueSnapshot summarizes the queue for dashboards and the admin API
type QueueSnapshot struct {
	Timestamp       time.Time `json:"timestamp"`
	WaitingCount    int       `json:"waitingCount"`
	AssignedCount   int       `json:"assignedCount"`
	ExpiredCount    int       `json:"expiredCount"`
	LongestWaitSecs float64   `json:"longestWaitSecs"`
}
