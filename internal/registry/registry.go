package registry

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mmeink/livechat/backend/internal/types"
	"github.com/rs/zerolog"
)

// ErrAgentNotFound is returned when an operation names an unknown agent
var ErrAgentNotFound = errors.New("agent not found")

// agentRecord pairs one agent with its own lock so that unrelated
// agents never serialize on each other.
type agentRecord struct {
	mu    sync.Mutex
	agent types.Agent
}

// Registry is the single source of truth for agent availability and
// load. The dispatcher must never assign a session without a
// successful TryReserveSlot.
type Registry struct {
	mu     sync.RWMutex // guards the map only, not the records
	agents map[string]*agentRecord
	logger zerolog.Logger

	defaultMaxChats int
}

// New creates an empty Registry. defaultMaxChats is used for agents
// registered without an explicit capacity.
func New(defaultMaxChats int, logger zerolog.Logger) *Registry {
	if defaultMaxChats < 1 {
		defaultMaxChats = 1
	}
	return &Registry{
		agents:          make(map[string]*agentRecord),
		logger:          logger.With().Str("component", "registry").Logger(),
		defaultMaxChats: defaultMaxChats,
	}
}

// Register adds a new agent, or updates the profile of an existing
// one. Re-registering never touches live state: load counts, status,
// availability and rating aggregates survive a roster re-upload. A
// zero AgentID gets a generated one; a capacity below 1 falls back to
// the registry default for new agents and is ignored on update.
func (r *Registry) Register(agent types.Agent) types.Agent {
	if agent.AgentID == "" {
		agent.AgentID = uuid.New().String()
	}

	if rec, ok := r.record(agent.AgentID); ok {
		rec.mu.Lock()
		defer rec.mu.Unlock()

		if agent.Name != "" {
			rec.agent.Name = agent.Name
		}
		if agent.Email != "" {
			rec.agent.Email = agent.Email
		}
		if agent.MaxConcurrentChats >= 1 {
			rec.agent.MaxConcurrentChats = agent.MaxConcurrentChats
		}
		rec.agent.LastActivity = time.Now()

		r.logger.Debug().
			Str("agent_id", agent.AgentID).
			Int("max_concurrent_chats", rec.agent.MaxConcurrentChats).
			Msg("agent re-registered")
		return rec.agent
	}

	if agent.MaxConcurrentChats < 1 {
		agent.MaxConcurrentChats = r.defaultMaxChats
	}
	if agent.Status == "" {
		agent.Status = types.AgentStatusOffline
	}
	now := time.Now()
	agent.RegisteredAt = now
	agent.LastActivity = now

	r.mu.Lock()
	r.agents[agent.AgentID] = &agentRecord{agent: agent}
	r.mu.Unlock()

	r.logger.Debug().
		Str("agent_id", agent.AgentID).
		Int("max_concurrent_chats", agent.MaxConcurrentChats).
		Msg("agent registered")
	return agent
}

// Deregister removes an agent from the registry. Sessions the agent
// still holds are untouched; closing them is the caller's concern.
func (r *Registry) Deregister(agentID string) error {
	r.mu.Lock()
	_, ok := r.agents[agentID]
	if ok {
		delete(r.agents, agentID)
	}
	r.mu.Unlock()

	if !ok {
		return ErrAgentNotFound
	}
	r.logger.Debug().Str("agent_id", agentID).Msg("agent deregistered")
	return nil
}

// record looks up the lockable record for an agent
func (r *Registry) record(agentID string) (*agentRecord, bool) {
	r.mu.RLock()
	rec, ok := r.agents[agentID]
	r.mu.RUnlock()
	return rec, ok
}

// TryReserveSlot atomically checks availability and claims one
// concurrency slot. It returns false with no mutation when the agent
// is offline, unavailable, or at capacity.
func (r *Registry) TryReserveSlot(agentID string) (bool, error) {
	rec, ok := r.record(agentID)
	if !ok {
		return false, ErrAgentNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if !rec.agent.CanAcceptChat() {
		return false, nil
	}
	rec.agent.CurrentChatsCount++
	rec.agent.TotalChatsHandled++
	rec.agent.LastActivity = time.Now()
	return true, nil
}

// ReleaseSlot atomically frees one concurrency slot, floored at zero
func (r *Registry) ReleaseSlot(agentID string) error {
	rec, ok := r.record(agentID)
	if !ok {
		return ErrAgentNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.agent.CurrentChatsCount > 0 {
		rec.agent.CurrentChatsCount--
	}
	rec.agent.LastActivity = time.Now()
	return nil
}

// SetAvailability flips the agent's availability flag
func (r *Registry) SetAvailability(agentID string, available bool) error {
	rec, ok := r.record(agentID)
	if !ok {
		return ErrAgentNotFound
	}

	rec.mu.Lock()
	rec.agent.IsAvailable = available
	rec.agent.LastActivity = time.Now()
	rec.mu.Unlock()
	return nil
}

// SetStatus updates the agent's working status
func (r *Registry) SetStatus(agentID string, status types.AgentStatus) error {
	rec, ok := r.record(agentID)
	if !ok {
		return ErrAgentNotFound
	}

	rec.mu.Lock()
	rec.agent.Status = status
	rec.agent.LastActivity = time.Now()
	rec.mu.Unlock()
	return nil
}

// RecordRating folds one rating into the agent's running average
// without rescanning history: new_avg = old_avg + (rating-old_avg)/n.
func (r *Registry) RecordRating(agentID string, rating int) error {
	rec, ok := r.record(agentID)
	if !ok {
		return ErrAgentNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	rec.agent.TotalRatings++
	n := float64(rec.agent.TotalRatings)
	rec.agent.AverageRating += (float64(rating) - rec.agent.AverageRating) / n
	return nil
}

// Get returns a copy of the agent's current state
func (r *Registry) Get(agentID string) (types.Agent, error) {
	rec, ok := r.record(agentID)
	if !ok {
		return types.Agent{}, ErrAgentNotFound
	}

	rec.mu.Lock()
	agent := rec.agent
	rec.mu.Unlock()
	return agent, nil
}

// Snapshot returns copies of all agents' current states
func (r *Registry) Snapshot() []types.Agent {
	r.mu.RLock()
	recs := make([]*agentRecord, 0, len(r.agents))
	for _, rec := range r.agents {
		recs = append(recs, rec)
	}
	r.mu.RUnlock()

	agents := make([]types.Agent, 0, len(recs))
	for _, rec := range recs {
		rec.mu.Lock()
		agents = append(agents, rec.agent)
		rec.mu.Unlock()
	}
	return agents
}

// AvailableByLeastLoad returns agents that currently pass the
// capacity check, ordered by fewest active chats first. The result is
// a point-in-time candidate list; callers still reserve through
// TryReserveSlot before acting on it.
func (r *Registry) AvailableByLeastLoad() []types.Agent {
	all := r.Snapshot()

	candidates := make([]types.Agent, 0, len(all))
	for _, a := range all {
		if a.CanAcceptChat() {
			candidates = append(candidates, a)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].CurrentChatsCount < candidates[j].CurrentChatsCount
	})
	return candidates
}

// Count returns the total number of registered agents
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}
