package types

import "time"

// AgentStatus represents the working state of a support agent
type AgentStatus string

const (
	AgentStatusOnline  AgentStatus = "online"
	AgentStatusOffline AgentStatus = "offline"
	AgentStatusBusy    AgentStatus = "busy"
	AgentStatusBreak   AgentStatus = "break"
)

// Agent represents a human support agent and their current load
type Agent struct {
	AgentID            string      `json:"agentId"`
	Name               string      `json:"name"`
	Email              string      `json:"email"`
	Status             AgentStatus `json:"status"`
	IsAvailable        bool        `json:"isAvailable"`
	CurrentChatsCount  int         `json:"currentChatsCount"`
	MaxConcurrentChats int         `json:"maxConcurrentChats"`
	TotalChatsHandled  int         `json:"totalChatsHandled"`
	AverageRating      float64     `json:"averageRating"`
	TotalRatings       int         `json:"totalRatings"`
	LastActivity       time.Time   `json:"lastActivity"`
	RegisteredAt       time.Time   `json:"registeredAt"`
}

// CanAcceptChat reports whether the agent has a free concurrency slot.
// The registry re-checks this under the per-agent lock before reserving.
func (a *Agent) CanAcceptChat() bool {
	return a.IsAvailable &&
		a.Status == AgentStatusOnline &&
		a.CurrentChatsCount < a.MaxConcurrentChats
}
