package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mmeink/livechat/backend/internal/chat"
	"github.com/mmeink/livechat/backend/internal/dispatch"
	"github.com/mmeink/livechat/backend/internal/registry"
	"github.com/mmeink/livechat/backend/internal/types"
	"github.com/rs/zerolog"
)

// AgentHandler provides REST endpoints for agent console actions
type AgentHandler struct {
	sessions   *chat.Store
	dispatcher *dispatch.Dispatcher
	agents     *registry.Registry
	logger     zerolog.Logger
}

// NewAgentHandler creates a new AgentHandler
func NewAgentHandler(sessions *chat.Store, dispatcher *dispatch.Dispatcher, agents *registry.Registry, logger zerolog.Logger) *AgentHandler {
	return &AgentHandler{
		sessions:   sessions,
		dispatcher: dispatcher,
		agents:     agents,
		logger:     logger.With().Str("component", "agent_api").Logger(),
	}
}

// Activate handles POST /api/agents/{agentId}/sessions/{sessionId}/activate
func (h *AgentHandler) Activate(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")
	sessionID := chi.URLParam(r, "sessionId")

	session, err := h.sessions.Activate(sessionID, agentID)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(session)
}

// PostMessage handles POST /api/agents/{agentId}/sessions/{sessionId}/messages
func (h *AgentHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")
	sessionID := chi.URLParam(r, "sessionId")

	var req struct {
		Body       string `json:"body"`
		SenderName string `json:"senderName"`
		Internal   bool   `json:"internal"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Body == "" {
		http.Error(w, "message body is required", http.StatusBadRequest)
		return
	}

	message, err := h.sessions.AppendMessage(sessionID, types.SenderAgent, req.SenderName, agentID, req.Body, req.Internal)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(message)
}

// GetMessages handles GET /api/agents/{agentId}/sessions/{sessionId}/messages.
// Agents see the full history, internal notes included.
func (h *AgentHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	messages, err := h.sessions.Messages(sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(messages)
}

// Hold handles POST /api/agents/{agentId}/sessions/{sessionId}/hold
func (h *AgentHandler) Hold(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")
	sessionID := chi.URLParam(r, "sessionId")

	var req struct {
		Reason types.HoldReason `json:"reason"`
		Notes  string           `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	hold, err := h.sessions.Hold(sessionID, agentID, req.Reason, req.Notes)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(hold)
}

// ResumeHold handles POST /api/agents/{agentId}/sessions/{sessionId}/resume
func (h *AgentHandler) ResumeHold(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	hold, err := h.sessions.ResumeFromHold(sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(hold)
}

// CloseSession handles POST /api/agents/{agentId}/sessions/{sessionId}/close
func (h *AgentHandler) CloseSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	session, err := h.dispatcher.CloseSession(sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(session)
}

// SetFollowup handles PUT /api/agents/{agentId}/sessions/{sessionId}/followup
func (h *AgentHandler) SetFollowup(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	var req struct {
		Required bool `json:"required"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	if err := h.sessions.SetFollowup(sessionID, req.Required); err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"requiresFollowup": req.Required})
}

// Transfer handles POST /api/agents/{agentId}/sessions/{sessionId}/transfer
func (h *AgentHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")
	sessionID := chi.URLParam(r, "sessionId")

	var req struct {
		ToAgentID string `json:"toAgentId"`
		Reason    string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.ToAgentID == "" {
		http.Error(w, "toAgentId is required", http.StatusBadRequest)
		return
	}

	transfer, err := h.dispatcher.InitiateTransfer(sessionID, agentID, req.ToAgentID, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(transfer)
}

// AcceptTransfer handles POST /api/agents/{agentId}/transfers/{transferId}/accept
func (h *AgentHandler) AcceptTransfer(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")
	transferID := chi.URLParam(r, "transferId")

	session, err := h.dispatcher.AcceptTransfer(transferID, agentID)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(session)
}

// CancelTransfer handles POST /api/agents/{agentId}/transfers/{transferId}/cancel
func (h *AgentHandler) CancelTransfer(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")
	transferID := chi.URLParam(r, "transferId")

	if err := h.dispatcher.CancelTransfer(transferID, agentID); err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "transfer cancelled"})
}

// SetAvailability handles PUT /api/agents/{agentId}/availability
func (h *AgentHandler) SetAvailability(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")

	var req struct {
		Available bool `json:"available"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	if err := h.agents.SetAvailability(agentID, req.Available); err != nil {
		writeError(w, err)
		return
	}

	agent, err := h.agents.Get(agentID)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(agent)
}

// SetStatus handles PUT /api/agents/{agentId}/status
func (h *AgentHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")

	var req struct {
		Status types.AgentStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	switch req.Status {
	case types.AgentStatusOnline, types.AgentStatusOffline, types.AgentStatusBusy, types.AgentStatusBreak:
	default:
		http.Error(w, "invalid status", http.StatusBadRequest)
		return
	}

	if err := h.agents.SetStatus(agentID, req.Status); err != nil {
		writeError(w, err)
		return
	}

	agent, err := h.agents.Get(agentID)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(agent)
}

// GetAgent handles GET /api/agents/{agentId}
func (h *AgentHandler) GetAgent(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")

	agent, err := h.agents.Get(agentID)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(agent)
}
