package types

import "time"

// SessionStatus represents the lifecycle state of a chat session
type SessionStatus string

const (
	SessionStatusBot       SessionStatus = "bot"       // handled by the bot, no agent involved
	SessionStatusWaiting   SessionStatus = "waiting"   // escalated, waiting in the queue
	SessionStatusAssigned  SessionStatus = "assigned"  // matched to an agent
	SessionStatusActive    SessionStatus = "active"    // customer and agent exchanging messages
	SessionStatusOnHold    SessionStatus = "on_hold"   // paused by the agent
	SessionStatusAbandoned SessionStatus = "abandoned" // expired while waiting
	SessionStatusClosed    SessionStatus = "closed"
)

// Terminal reports whether no further lifecycle transitions are allowed
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusAbandoned || s == SessionStatusClosed
}

// Priority represents how urgently a session needs an agent
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Weight maps a priority to its numeric queue weight, higher is more urgent
func (p Priority) Weight() int {
	switch p {
	case PriorityUrgent:
		return 30
	case PriorityHigh:
		return 20
	case PriorityNormal:
		return 10
	default:
		return 0
	}
}

// Valid reports whether p is one of the recognized priorities
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Customer identifies the person on the other end of a session
type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// ChatSession is the core lifecycle record for one customer conversation
type ChatSession struct {
	SessionID string        `json:"sessionId"`
	Customer  Customer      `json:"customer"`
	Status    SessionStatus `json:"status"`
	Priority  Priority      `json:"priority"`

	AssignedAgentID string `json:"assignedAgentId,omitempty"`

	ResumeToken          string     `json:"resumeToken,omitempty"`
	ResumeTokenExpiresAt *time.Time `json:"resumeTokenExpiresAt,omitempty"`

	IsAbandoned      bool `json:"isAbandoned"`
	IsResumed        bool `json:"isResumed"`
	RequiresFollowup bool `json:"requiresFollowup"`

	CreatedAt       time.Time  `json:"createdAt"`
	FirstResponseAt *time.Time `json:"firstResponseAt,omitempty"`
	ClosedAt        *time.Time `json:"closedAt,omitempty"`

	// Metrics are set exactly once by the state machine and never
	// recomputed after close.
	WaitTimeSeconds      float64 `json:"waitTimeSeconds,omitempty"`
	ResponseTimeSeconds  float64 `json:"responseTimeSeconds,omitempty"`
	TotalDurationSeconds float64 `json:"totalDurationSeconds,omitempty"`
	MessageCount         int     `json:"messageCount"`
}

// HoldReason categorizes why an agent paused a session
type HoldReason string

const (
	HoldReasonResearch        HoldReason = "research"
	HoldReasonEscalation      HoldReason = "escalation"
	HoldReasonTechnical       HoldReason = "technical"
	HoldReasonCustomerRequest HoldReason = "customer_request"
	HoldReasonOther           HoldReason = "other"
)

// ChatHold records one pause of a session. The hold is open while
// ResumedAt is nil; a session has at most one open hold.
type ChatHold struct {
	HoldID              string     `json:"holdId"`
	SessionID           string     `json:"sessionId"`
	AgentID             string     `json:"agentId"`
	Reason              HoldReason `json:"reason"`
	Notes               string     `json:"notes,omitempty"`
	HeldAt              time.Time  `json:"heldAt"`
	ResumedAt           *time.Time `json:"resumedAt,omitempty"`
	HoldDurationSeconds float64    `json:"holdDurationSeconds,omitempty"`
}

// ChatTransfer records an agent-to-agent handoff. AcceptedAt stays nil
// until the receiving agent accepts; ExpiresAt bounds how long they get.
type ChatTransfer struct {
	TransferID    string     `json:"transferId"`
	SessionID     string     `json:"sessionId"`
	FromAgentID   string     `json:"fromAgentId"`
	ToAgentID     string     `json:"toAgentId"`
	Reason        string     `json:"reason,omitempty"`
	TransferredAt time.Time  `json:"transferredAt"`
	AcceptedAt    *time.Time `json:"acceptedAt,omitempty"`
	ExpiresAt     time.Time  `json:"expiresAt"`
}

// ChatRating is the customer's one-time rating of a closed session
type ChatRating struct {
	RatingID  string    `json:"ratingId"`
	SessionID string    `json:"sessionId"`
	AgentID   string    `json:"agentId,omitempty"`
	Rating    int       `json:"rating"` // 1-5
	Feedback  string    `json:"feedback,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
