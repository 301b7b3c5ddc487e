package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mmeink/livechat/backend/internal/chat"
	"github.com/mmeink/livechat/backend/internal/dispatch"
	"github.com/mmeink/livechat/backend/internal/metrics"
	"github.com/mmeink/livechat/backend/internal/queue"
	"github.com/mmeink/livechat/backend/internal/registry"
	"github.com/mmeink/livechat/backend/internal/storage"
	"github.com/mmeink/livechat/backend/internal/types"
	"github.com/rs/zerolog"
)

// AdminHandler provides supervisor endpoints: roster management,
// queue inspection, live stats and archived data
type AdminHandler struct {
	sessions   *chat.Store
	queue      *queue.Queue
	agents     *registry.Registry
	recorder   *metrics.Recorder
	dispatcher *dispatch.Dispatcher
	store      storage.Store
	logger     zerolog.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(sessions *chat.Store, q *queue.Queue, agents *registry.Registry, recorder *metrics.Recorder, dispatcher *dispatch.Dispatcher, store storage.Store, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		sessions:   sessions,
		queue:      q,
		agents:     agents,
		recorder:   recorder,
		dispatcher: dispatcher,
		store:      store,
		logger:     logger.With().Str("component", "admin_api").Logger(),
	}
}

// RosterEntry represents a single agent in the roster payload
type RosterEntry struct {
	AgentID            string `json:"agentId"`
	Name               string `json:"name"`
	Email              string `json:"email"`
	MaxConcurrentChats int    `json:"maxConcurrentChats"`
}

// HandleRoster handles POST /api/admin/roster
func (h *AdminHandler) HandleRoster(w http.ResponseWriter, r *http.Request) {
	var roster []RosterEntry
	if err := json.NewDecoder(r.Body).Decode(&roster); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	registered := 0
	for _, entry := range roster {
		h.agents.Register(types.Agent{
			AgentID:            entry.AgentID,
			Name:               entry.Name,
			Email:              entry.Email,
			MaxConcurrentChats: entry.MaxConcurrentChats,
		})
		registered++
	}

	h.logger.Info().Int("registered", registered).Msg("roster received")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"registered": registered})
}

// DeregisterAgent handles DELETE /api/admin/agents/{agentId}
func (h *AdminHandler) DeregisterAgent(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")

	if err := h.agents.Deregister(agentID); err != nil {
		writeError(w, err)
		return
	}

	h.logger.Info().Str("agent_id", agentID).Msg("agent deregistered")
	w.WriteHeader(http.StatusNoContent)
}

// GetAgents handles GET /api/admin/agents
func (h *AdminHandler) GetAgents(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.agents.Snapshot())
}

// GetQueue handles GET /api/admin/queue
func (h *AdminHandler) GetQueue(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.queue.Snapshot())
}

// GetStats handles GET /api/admin/stats
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := struct {
		Counters metrics.Stats               `json:"counters"`
		Queue    types.QueueSnapshot         `json:"queue"`
		Sessions map[types.SessionStatus]int `json:"sessions"`
		Agents   int                         `json:"agents"`
	}{
		Counters: h.recorder.Snapshot(),
		Queue:    h.queue.Snapshot(),
		Sessions: h.sessions.StatusCounts(),
		Agents:   h.agents.Count(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// SetPriority handles PUT /api/admin/sessions/{sessionId}/priority
func (h *AdminHandler) SetPriority(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	var req struct {
		Priority types.Priority `json:"priority"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if !req.Priority.Valid() {
		http.Error(w, "invalid priority", http.StatusBadRequest)
		return
	}

	if err := h.dispatcher.UpdatePriority(sessionID, req.Priority); err != nil {
		writeError(w, err)
		return
	}

	session, err := h.sessions.Get(sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(session)
}

// GetFacts handles GET /api/admin/facts?date=YYYY-MM-DD
func (h *AdminHandler) GetFacts(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		http.Error(w, "date query parameter is required (YYYY-MM-DD)", http.StatusBadRequest)
		return
	}

	facts, err := h.store.GetSessionFacts(date)
	if err != nil {
		h.logger.Error().Err(err).Str("date", date).Msg("failed to get session facts")
		http.Error(w, "failed to retrieve facts", http.StatusInternalServerError)
		return
	}

	if facts == nil {
		facts = []types.SessionFact{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(facts)
}

// GetAgentHistory handles GET /api/admin/agents/{agentId}/history
func (h *AdminHandler) GetAgentHistory(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")
	if agentID == "" {
		http.Error(w, "agentId is required", http.StatusBadRequest)
		return
	}

	rollups, err := h.store.GetAgentDailyRollups(agentID)
	if err != nil {
		h.logger.Error().Err(err).Str("agent_id", agentID).Msg("failed to get agent daily rollups")
		http.Error(w, "failed to retrieve history", http.StatusInternalServerError)
		return
	}

	if rollups == nil {
		rollups = []types.AgentDailyRollup{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rollups)
}

// GetAgentFacts handles GET /api/admin/agents/{agentId}/facts?date=YYYY-MM-DD
func (h *AdminHandler) GetAgentFacts(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")
	if agentID == "" {
		http.Error(w, "agentId is required", http.StatusBadRequest)
		return
	}

	date := r.URL.Query().Get("date")
	if date == "" {
		http.Error(w, "date query parameter is required (YYYY-MM-DD)", http.StatusBadRequest)
		return
	}

	facts, err := h.store.GetAgentFactsByDate(agentID, date)
	if err != nil {
		h.logger.Error().Err(err).
			Str("agent_id", agentID).
			Str("date", date).
			Msg("failed to get agent facts")
		http.Error(w, "failed to retrieve facts", http.StatusInternalServerError)
		return
	}

	if facts == nil {
		facts = []types.SessionFact{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(facts)
}

// GetTranscript handles GET /api/admin/transcripts/{sessionId}
func (h *AdminHandler) GetTranscript(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	transcript, found, err := h.store.GetTranscript(sessionID)
	if err != nil {
		h.logger.Error().Err(err).Str("session_id", sessionID).Msg("failed to get transcript")
		http.Error(w, "failed to retrieve transcript", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "transcript not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(transcript)
}

// GetHolds handles GET /api/admin/sessions/{sessionId}/holds
func (h *AdminHandler) GetHolds(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	holds, err := h.sessions.Holds(sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(holds)
}
