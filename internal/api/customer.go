package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mmeink/livechat/backend/internal/chat"
	"github.com/mmeink/livechat/backend/internal/dispatch"
	"github.com/mmeink/livechat/backend/internal/metrics"
	"github.com/mmeink/livechat/backend/internal/types"
	"github.com/rs/zerolog"
)

// CustomerHandler provides the customer-facing session endpoints.
// These are unauthenticated; the resume token is the customer's only
// credential.
type CustomerHandler struct {
	sessions   *chat.Store
	dispatcher *dispatch.Dispatcher
	recorder   *metrics.Recorder
	logger     zerolog.Logger
}

// NewCustomerHandler creates a new CustomerHandler
func NewCustomerHandler(sessions *chat.Store, dispatcher *dispatch.Dispatcher, recorder *metrics.Recorder, logger zerolog.Logger) *CustomerHandler {
	return &CustomerHandler{
		sessions:   sessions,
		dispatcher: dispatcher,
		recorder:   recorder,
		logger:     logger.With().Str("component", "customer_api").Logger(),
	}
}

// CreateSession handles POST /api/sessions
func (h *CustomerHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Customer types.Customer `json:"customer"`
		Priority types.Priority `json:"priority"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Customer.Name == "" {
		http.Error(w, "customer name is required", http.StatusBadRequest)
		return
	}

	session := h.sessions.Create(req.Customer, req.Priority)
	h.recorder.RecordCreated()

	h.logger.Info().
		Str("session_id", session.SessionID).
		Str("priority", string(session.Priority)).
		Msg("session created")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(session)
}

// GetSession handles GET /api/sessions/{sessionId}
func (h *CustomerHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	session, err := h.sessions.Get(sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(session)
}

// PostMessage handles POST /api/sessions/{sessionId}/messages
func (h *CustomerHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	var req struct {
		Body       string `json:"body"`
		SenderName string `json:"senderName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Body == "" {
		http.Error(w, "message body is required", http.StatusBadRequest)
		return
	}

	message, err := h.sessions.AppendMessage(sessionID, types.SenderCustomer, req.SenderName, "", req.Body, false)
	if err != nil {
		writeError(w, err)
		return
	}

	h.pushToAgent(sessionID, message)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(message)
}

// GetMessages handles GET /api/sessions/{sessionId}/messages.
// Internal agent notes are never served to customers.
func (h *CustomerHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	messages, err := h.sessions.Messages(sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	visible := make([]types.Message, 0, len(messages))
	for _, m := range messages {
		if !m.IsInternal {
			visible = append(visible, m)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(visible)
}

// Escalate handles POST /api/sessions/{sessionId}/escalate
func (h *CustomerHandler) Escalate(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	entry, err := h.dispatcher.Escalate(sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entry)
}

// QueuePosition handles GET /api/sessions/{sessionId}/queue
func (h *CustomerHandler) QueuePosition(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	if _, err := h.sessions.Get(sessionID); err != nil {
		writeError(w, err)
		return
	}

	position := h.dispatcher.QueuePosition(sessionID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"position": position})
}

// Resume handles POST /api/sessions/resume
func (h *CustomerHandler) Resume(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Token == "" {
		http.Error(w, "token is required", http.StatusBadRequest)
		return
	}

	session, err := h.sessions.ResumeByToken(req.Token)
	if err != nil {
		writeError(w, err)
		return
	}

	h.logger.Info().Str("session_id", session.SessionID).Msg("session resumed")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(session)
}

// CloseSession handles POST /api/sessions/{sessionId}/close
func (h *CustomerHandler) CloseSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	session, err := h.dispatcher.CloseSession(sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(session)
}

// RateSession handles POST /api/sessions/{sessionId}/rating
func (h *CustomerHandler) RateSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	var req struct {
		Rating   int    `json:"rating"`
		Feedback string `json:"feedback"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	rating, err := h.dispatcher.SubmitRating(sessionID, req.Rating, req.Feedback)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(rating)
}

// pushToAgent forwards a customer message to the assigned agent's
// websocket, if they are connected
func (h *CustomerHandler) pushToAgent(sessionID string, message types.Message) {
	session, err := h.sessions.Get(sessionID)
	if err != nil || session.AssignedAgentID == "" {
		return
	}
	h.dispatcher.PushSessionMessage(session.AssignedAgentID, sessionID, message)
}
