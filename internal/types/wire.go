package types

import "time"

// SessionAssign is pushed to an agent when the dispatcher assigns them
// a session
type SessionAssign struct {
	Type      string    `json:"type"` // "session_assign"
	AgentID   string    `json:"agentId"`
	SessionID string    `json:"sessionId"`
	Priority  Priority  `json:"priority"`
	Customer  Customer  `json:"customer"`
	Timestamp time.Time `json:"timestamp"`
}

// TransferRequest is pushed to the receiving agent of a transfer
type TransferRequest struct {
	Type        string    `json:"type"` // "transfer_request"
	TransferID  string    `json:"transferId"`
	SessionID   string    `json:"sessionId"`
	FromAgentID string    `json:"fromAgentId"`
	ToAgentID   string    `json:"toAgentId"`
	Reason      string    `json:"reason,omitempty"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// TransferOutcome enumerates how a transfer ended
type TransferOutcome string

const (
	TransferAccepted  TransferOutcome = "accepted"
	TransferTimedOut  TransferOutcome = "timed_out"
	TransferCancelled TransferOutcome = "cancelled"
)

// TransferResult is pushed to both agents when a transfer resolves
type TransferResult struct {
	Type       string          `json:"type"` // "transfer_result"
	TransferID string          `json:"transferId"`
	SessionID  string          `json:"sessionId"`
	Outcome    TransferOutcome `json:"outcome"`
	AgentID    string          `json:"agentId"` // agent holding the session after resolution
	Timestamp  time.Time       `json:"timestamp"`
}

// SessionMessage wraps a chat message pushed to a connected agent
type SessionMessage struct {
	Type      string  `json:"type"` // "session_message"
	SessionID string  `json:"sessionId"`
	Message   Message `json:"message"`
}

// AgentHello binds a websocket connection to an agent identity
type AgentHello struct {
	Type               string `json:"type"` // "hello"
	AgentID            string `json:"agentId"`
	Name               string `json:"name,omitempty"`
	MaxConcurrentChats int    `json:"maxConcurrentChats,omitempty"`
}

// AgentAvailability toggles whether the agent receives new chats
type AgentAvailability struct {
	Type      string `json:"type"` // "availability"
	AgentID   string `json:"agentId"`
	Available bool   `json:"available"`
}

// AgentStatusChange updates the agent's presence status
type AgentStatusChange struct {
	Type    string      `json:"type"` // "status_change"
	AgentID string      `json:"agentId"`
	Status  AgentStatus `json:"status"`
}

// QueueStatus is broadcast to connected agents after a dispatch cycle
// so dashboards track the wait queue without polling
type QueueStatus struct {
	Type               string    `json:"type"` // "queue_status"
	WaitingCount       int       `json:"waitingCount"`
	LongestWaitSeconds float64   `json:"longestWaitSeconds"`
	Timestamp          time.Time `json:"timestamp"`
}

// ServerAck acknowledges an agent hello
type ServerAck struct {
	Type    string `json:"type"` // "ack"
	AgentID string `json:"agentId"`
}
