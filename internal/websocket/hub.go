package websocket

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/mmeink/livechat/backend/internal/registry"
	"github.com/mmeink/livechat/backend/internal/types"
	"github.com/rs/zerolog"
)

// AgentHub maintains the set of active agent WebSocket connections.
// It keeps the registry's presence state in line with connection
// state: a connecting agent goes online, a dropped one goes offline.
type AgentHub struct {
	// Registered agent clients
	agents map[string]*AgentClient // agentID -> client

	// Unregister requests from agent clients
	unregister chan *AgentClient

	// Hello messages binding a connection to an agent identity
	hello chan helloEnvelope

	// Availability toggles from agents
	availability chan *types.AgentAvailability

	// Status changes from agents
	statusChange chan *types.AgentStatusChange

	// Mutex to protect agents map
	mu sync.RWMutex

	// Logger
	logger zerolog.Logger

	// Agent registry (presence and capacity)
	registry *registry.Registry
}

type helloEnvelope struct {
	client *AgentClient
	hello  *types.AgentHello
}

// NewAgentHub creates a new AgentHub
func NewAgentHub(reg *registry.Registry, logger zerolog.Logger) *AgentHub {
	return &AgentHub{
		agents:       make(map[string]*AgentClient),
		unregister:   make(chan *AgentClient),
		hello:        make(chan helloEnvelope, 100),
		availability: make(chan *types.AgentAvailability, 500),
		statusChange: make(chan *types.AgentStatusChange, 500),
		logger:       logger,
		registry:     reg,
	}
}

// Run starts the hub's main loop
func (h *AgentHub) Run() {
	for {
		select {
		case env := <-h.hello:
			h.handleHello(env)

		case client := <-h.unregister:
			h.mu.Lock()
			if existing, ok := h.agents[client.agentID]; ok && existing == client {
				delete(h.agents, client.agentID)
				client.Close()
				h.setOffline(client.agentID)

				h.logger.Debug().
					Str("agent_id", client.agentID).
					Int("total_agents", len(h.agents)).
					Msg("agent disconnected")
			}
			h.mu.Unlock()

		case av := <-h.availability:
			if err := h.registry.SetAvailability(av.AgentID, av.Available); err != nil {
				h.logger.Warn().Err(err).Str("agent_id", av.AgentID).Msg("availability change rejected")
			}

		case sc := <-h.statusChange:
			if err := h.registry.SetStatus(sc.AgentID, sc.Status); err != nil {
				h.logger.Warn().Err(err).Str("agent_id", sc.AgentID).Msg("status change rejected")
			}
		}
	}
}

// handleHello binds the connection to its agent and brings the agent
// online. A reconnect replaces the previous connection for the same
// agent id.
func (h *AgentHub) handleHello(env helloEnvelope) {
	client, hello := env.client, env.hello

	h.mu.Lock()
	if existing, ok := h.agents[hello.AgentID]; ok {
		existing.Close()
		delete(h.agents, hello.AgentID)
	}
	h.agents[hello.AgentID] = client
	total := len(h.agents)
	h.mu.Unlock()

	if _, err := h.registry.Get(hello.AgentID); errors.Is(err, registry.ErrAgentNotFound) {
		h.registry.Register(types.Agent{
			AgentID:            hello.AgentID,
			Name:               hello.Name,
			MaxConcurrentChats: hello.MaxConcurrentChats,
		})
	}
	if err := h.registry.SetStatus(hello.AgentID, types.AgentStatusOnline); err != nil {
		h.logger.Warn().Err(err).Str("agent_id", hello.AgentID).Msg("failed to set agent online")
	}

	h.logger.Debug().
		Str("agent_id", hello.AgentID).
		Int("total_agents", total).
		Msg("agent connected")

	ack := types.ServerAck{Type: "ack", AgentID: hello.AgentID}
	if data, err := json.Marshal(ack); err == nil {
		client.safeSend(data)
	}
}

func (h *AgentHub) setOffline(agentID string) {
	if agentID == "" {
		return
	}
	if err := h.registry.SetStatus(agentID, types.AgentStatusOffline); err != nil {
		h.logger.Warn().Err(err).Str("agent_id", agentID).Msg("failed to set agent offline")
	}
}

// Disconnect closes an agent's connection, if one exists
func (h *AgentHub) Disconnect(agentID string) bool {
	h.mu.Lock()
	client, ok := h.agents[agentID]
	if ok {
		delete(h.agents, agentID)
		client.Close()
		h.logger.Info().Str("agent_id", agentID).Msg("agent disconnected by server")
	}
	h.mu.Unlock()

	if ok {
		h.setOffline(agentID)
	}
	return ok
}

// AgentCount returns the number of connected agents
func (h *AgentHub) AgentCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.agents)
}

// SendToAgent sends a message to a specific agent
func (h *AgentHub) SendToAgent(agentID string, message []byte) bool {
	h.mu.RLock()
	client, ok := h.agents[agentID]
	h.mu.RUnlock()

	if !ok {
		return false
	}

	return client.safeSend(message)
}

// Broadcast sends a message to every connected agent. Returns the
// number of agents that accepted the message.
func (h *AgentHub) Broadcast(message []byte) int {
	h.mu.RLock()
	clients := make([]*AgentClient, 0, len(h.agents))
	for _, client := range h.agents {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	sent := 0
	for _, client := range clients {
		if client.safeSend(message) {
			sent++
		}
	}
	return sent
}
