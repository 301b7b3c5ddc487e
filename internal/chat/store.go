package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mmeink/livechat/backend/internal/types"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

// sessionRecord is the single-writer home of one session. All
// lifecycle mutation happens under its lock.
type sessionRecord struct {
	mu       sync.Mutex
	session  types.ChatSession
	messages []types.Message
	holds    []types.ChatHold
	rating   *types.ChatRating
}

// Store owns every chat session and is the only legal mutator of
// session status. Transitions are guarded: a call from the wrong
// prior state returns ErrInvalidTransition and changes nothing.
type Store struct {
	mu       sync.RWMutex // guards the maps only
	sessions map[string]*sessionRecord
	byToken  map[string]string // resume token -> session id

	resumeTTL time.Duration
	logger    zerolog.Logger
}

// NewStore creates an empty session store. resumeTTL bounds how long
// resume links stay valid.
func NewStore(resumeTTL time.Duration, logger zerolog.Logger) *Store {
	return &Store{
		sessions:  make(map[string]*sessionRecord),
		byToken:   make(map[string]string),
		resumeTTL: resumeTTL,
		logger:    logger.With().Str("component", "chat").Logger(),
	}
}

// Create starts a new session in bot state and issues its resume token
func (s *Store) Create(customer types.Customer, priority types.Priority) types.ChatSession {
	if !priority.Valid() {
		priority = types.PriorityNormal
	}

	now := time.Now()
	expires := now.Add(s.resumeTTL)
	session := types.ChatSession{
		SessionID:            uuid.New().String(),
		Customer:             customer,
		Status:               types.SessionStatusBot,
		Priority:             priority,
		ResumeToken:          newResumeToken(),
		ResumeTokenExpiresAt: &expires,
		CreatedAt:            now,
	}

	s.mu.Lock()
	s.sessions[session.SessionID] = &sessionRecord{session: session}
	s.byToken[session.ResumeToken] = session.SessionID
	s.mu.Unlock()

	s.logger.Debug().
		Str("session_id", session.SessionID).
		Str("priority", string(session.Priority)).
		Msg("session created")
	return session
}

func (s *Store) record(sessionID string) (*sessionRecord, bool) {
	s.mu.RLock()
	rec, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	return rec, ok
}

// Get returns a copy of the session's current state
func (s *Store) Get(sessionID string) (types.ChatSession, error) {
	rec, ok := s.record(sessionID)
	if !ok {
		return types.ChatSession{}, ErrSessionNotFound
	}
	rec.mu.Lock()
	session := rec.session
	rec.mu.Unlock()
	return session, nil
}

// EscalateToQueue moves a bot-handled session into waiting. The caller
// enqueues it in the same logical step so session and queue entry
// never drift apart.
func (s *Store) EscalateToQueue(sessionID string) (types.ChatSession, error) {
	rec, ok := s.record(sessionID)
	if !ok {
		return types.ChatSession{}, ErrSessionNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.session.Status != types.SessionStatusBot {
		return types.ChatSession{}, ErrInvalidTransition
	}
	rec.session.Status = types.SessionStatusWaiting
	return rec.session, nil
}

// Assign moves a waiting session to an agent. It requires a prior
// successful registry reservation for that agent. First response,
// wait time and response time are computed here, once, and never
// recomputed afterwards.
func (s *Store) Assign(sessionID, agentID string) (types.ChatSession, error) {
	rec, ok := s.record(sessionID)
	if !ok {
		return types.ChatSession{}, ErrSessionNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.session.Status != types.SessionStatusWaiting {
		return types.ChatSession{}, ErrInvalidTransition
	}

	now := time.Now()
	rec.session.Status = types.SessionStatusAssigned
	rec.session.AssignedAgentID = agentID
	if rec.session.FirstResponseAt == nil {
		rec.session.FirstResponseAt = &now
		elapsed := now.Sub(rec.session.CreatedAt).Seconds()
		rec.session.WaitTimeSeconds = elapsed
		rec.session.ResponseTimeSeconds = elapsed
	}
	return rec.session, nil
}

// Activate marks the assigned session as actively chatting. agentID
// must match the assignment.
func (s *Store) Activate(sessionID, agentID string) (types.ChatSession, error) {
	rec, ok := s.record(sessionID)
	if !ok {
		return types.ChatSession{}, ErrSessionNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.session.Status != types.SessionStatusAssigned || rec.session.AssignedAgentID != agentID {
		return types.ChatSession{}, ErrInvalidTransition
	}
	rec.session.Status = types.SessionStatusActive
	return rec.session, nil
}

// Hold pauses an active session and opens a ChatHold. The agent keeps
// their concurrency slot; holds track attention, not load.
func (s *Store) Hold(sessionID, agentID string, reason types.HoldReason, notes string) (types.ChatHold, error) {
	rec, ok := s.record(sessionID)
	if !ok {
		return types.ChatHold{}, ErrSessionNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.session.Status != types.SessionStatusActive || rec.session.AssignedAgentID != agentID {
		return types.ChatHold{}, ErrInvalidTransition
	}

	hold := types.ChatHold{
		HoldID:    uuid.New().String(),
		SessionID: sessionID,
		AgentID:   agentID,
		Reason:    reason,
		Notes:     notes,
		HeldAt:    time.Now(),
	}
	rec.session.Status = types.SessionStatusOnHold
	rec.holds = append(rec.holds, hold)
	return hold, nil
}

// ResumeFromHold reopens the active conversation, closing the open
// hold and recording its duration.
func (s *Store) ResumeFromHold(sessionID string) (types.ChatHold, error) {
	rec, ok := s.record(sessionID)
	if !ok {
		return types.ChatHold{}, ErrSessionNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.session.Status != types.SessionStatusOnHold {
		return types.ChatHold{}, ErrInvalidTransition
	}

	rec.session.Status = types.SessionStatusActive

	// Close the open hold; there is at most one.
	for i := len(rec.holds) - 1; i >= 0; i-- {
		if rec.holds[i].ResumedAt == nil {
			now := time.Now()
			rec.holds[i].ResumedAt = &now
			rec.holds[i].HoldDurationSeconds = now.Sub(rec.holds[i].HeldAt).Seconds()
			return rec.holds[i], nil
		}
	}
	return types.ChatHold{}, ErrInvalidTransition
}

// Close ends the session, stamps closed_at and total duration, and is
// idempotent: closing an already-closed session changes nothing and
// reports closedNow=false. Abandoned sessions stay abandoned.
func (s *Store) Close(sessionID string) (session types.ChatSession, closedNow bool, err error) {
	rec, ok := s.record(sessionID)
	if !ok {
		return types.ChatSession{}, false, ErrSessionNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	switch rec.session.Status {
	case types.SessionStatusClosed:
		return rec.session, false, nil
	case types.SessionStatusAbandoned:
		return types.ChatSession{}, false, ErrInvalidTransition
	}

	now := time.Now()
	rec.session.Status = types.SessionStatusClosed
	rec.session.ClosedAt = &now
	rec.session.TotalDurationSeconds = now.Sub(rec.session.CreatedAt).Seconds()

	// Close any hold left open at close time
	for i := len(rec.holds) - 1; i >= 0; i-- {
		if rec.holds[i].ResumedAt == nil {
			rec.holds[i].ResumedAt = &now
			rec.holds[i].HoldDurationSeconds = now.Sub(rec.holds[i].HeldAt).Seconds()
		}
	}

	s.logger.Debug().
		Str("session_id", sessionID).
		Str("agent_id", rec.session.AssignedAgentID).
		Float64("total_duration_seconds", rec.session.TotalDurationSeconds).
		Msg("session closed")
	return rec.session, true, nil
}

// MarkAbandoned flips a waiting session to abandoned. Any other state
// means another actor won the race, so it silently reports false.
// Only the sweeper calls this.
func (s *Store) MarkAbandoned(sessionID string) bool {
	rec, ok := s.record(sessionID)
	if !ok {
		return false
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.session.Status != types.SessionStatusWaiting {
		return false
	}
	rec.session.Status = types.SessionStatusAbandoned
	rec.session.IsAbandoned = true
	return true
}

// TransferAgent swaps the assigned agent after an accepted transfer.
// The session must still be with fromAgent and past the waiting stage.
func (s *Store) TransferAgent(sessionID, fromAgent, toAgent string) (types.ChatSession, error) {
	rec, ok := s.record(sessionID)
	if !ok {
		return types.ChatSession{}, ErrSessionNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	switch rec.session.Status {
	case types.SessionStatusAssigned, types.SessionStatusActive, types.SessionStatusOnHold:
	default:
		return types.ChatSession{}, ErrInvalidTransition
	}
	if rec.session.AssignedAgentID != fromAgent {
		return types.ChatSession{}, ErrInvalidTransition
	}

	rec.session.AssignedAgentID = toAgent
	return rec.session, nil
}

// SetPriority changes the session priority. Terminal sessions are
// immutable; the caller is responsible for reordering the queue entry.
func (s *Store) SetPriority(sessionID string, priority types.Priority) error {
	rec, ok := s.record(sessionID)
	if !ok {
		return ErrSessionNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.session.Status.Terminal() {
		return ErrInvalidTransition
	}
	rec.session.Priority = priority
	return nil
}

// SetFollowup flags the session for later follow-up
func (s *Store) SetFollowup(sessionID string, required bool) error {
	rec, ok := s.record(sessionID)
	if !ok {
		return ErrSessionNotFound
	}

	rec.mu.Lock()
	rec.session.RequiresFollowup = required
	rec.mu.Unlock()
	return nil
}

// AppendMessage adds a message to the session log and bumps the
// message count. Terminal sessions reject new messages.
func (s *Store) AppendMessage(sessionID string, sender types.SenderType, senderName, senderID, body string, internal bool) (types.Message, error) {
	rec, ok := s.record(sessionID)
	if !ok {
		return types.Message{}, ErrSessionNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.session.Status.Terminal() {
		return types.Message{}, ErrInvalidTransition
	}

	msg := types.Message{
		MessageID:  ulid.Make().String(),
		SessionID:  sessionID,
		SenderType: sender,
		SenderName: senderName,
		SenderID:   senderID,
		Body:       body,
		Delivery:   types.DeliverySent,
		IsInternal: internal,
		CreatedAt:  time.Now(),
	}
	rec.messages = append(rec.messages, msg)
	if !internal {
		rec.session.MessageCount++
	}
	return msg, nil
}

// Messages returns a copy of the session's message log
func (s *Store) Messages(sessionID string) ([]types.Message, error) {
	rec, ok := s.record(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	msgs := make([]types.Message, len(rec.messages))
	copy(msgs, rec.messages)
	return msgs, nil
}

// Holds returns a copy of the session's hold history
func (s *Store) Holds(sessionID string) ([]types.ChatHold, error) {
	rec, ok := s.record(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	holds := make([]types.ChatHold, len(rec.holds))
	copy(holds, rec.holds)
	return holds, nil
}

// Rate records the customer's one-time rating of a closed session
func (s *Store) Rate(sessionID string, rating int, feedback string) (types.ChatRating, error) {
	if rating < 1 || rating > 5 {
		return types.ChatRating{}, ErrInvalidRating
	}

	rec, ok := s.record(sessionID)
	if !ok {
		return types.ChatRating{}, ErrSessionNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.session.Status != types.SessionStatusClosed {
		return types.ChatRating{}, ErrInvalidTransition
	}
	if rec.rating != nil {
		return types.ChatRating{}, ErrAlreadyRated
	}

	r := types.ChatRating{
		RatingID:  uuid.New().String(),
		SessionID: sessionID,
		AgentID:   rec.session.AssignedAgentID,
		Rating:    rating,
		Feedback:  feedback,
		CreatedAt: time.Now(),
	}
	rec.rating = &r
	return r, nil
}

// Rating returns the session's rating if one was recorded
func (s *Store) Rating(sessionID string) (types.ChatRating, bool) {
	rec, ok := s.record(sessionID)
	if !ok {
		return types.ChatRating{}, false
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.rating == nil {
		return types.ChatRating{}, false
	}
	return *rec.rating, true
}

// ResumeByToken validates a resume link at point of use. An expired
// token is rejected; a valid one on an abandoned session brings the
// customer back to the bot stage.
func (s *Store) ResumeByToken(token string) (types.ChatSession, error) {
	s.mu.RLock()
	sessionID, ok := s.byToken[token]
	s.mu.RUnlock()
	if !ok {
		return types.ChatSession{}, ErrTokenInvalid
	}

	rec, ok := s.record(sessionID)
	if !ok {
		return types.ChatSession{}, ErrTokenInvalid
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.session.ResumeTokenExpiresAt == nil || time.Now().After(*rec.session.ResumeTokenExpiresAt) {
		return types.ChatSession{}, ErrTokenExpired
	}
	if rec.session.Status == types.SessionStatusClosed {
		return types.ChatSession{}, ErrTokenInvalid
	}

	rec.session.IsResumed = true
	if rec.session.Status == types.SessionStatusAbandoned {
		// Back to the bot stage; the customer can escalate again
		rec.session.Status = types.SessionStatusBot
		rec.session.IsAbandoned = false
	}
	return rec.session, nil
}

// PurgeExpiredTokens drops resume tokens whose expiry has passed so
// the token index does not grow without bound. Returns the number of
// tokens purged. A purged session is no longer resumable.
func (s *Store) PurgeExpiredTokens() int {
	s.mu.RLock()
	recs := make([]*sessionRecord, 0, len(s.sessions))
	for _, rec := range s.sessions {
		recs = append(recs, rec)
	}
	s.mu.RUnlock()

	now := time.Now()
	purged := 0
	for _, rec := range recs {
		rec.mu.Lock()
		token := rec.session.ResumeToken
		expired := token != "" &&
			rec.session.ResumeTokenExpiresAt != nil &&
			now.After(*rec.session.ResumeTokenExpiresAt)
		if expired {
			rec.session.ResumeToken = ""
			rec.session.ResumeTokenExpiresAt = nil
		}
		rec.mu.Unlock()

		if expired {
			s.mu.Lock()
			delete(s.byToken, token)
			s.mu.Unlock()
			purged++
		}
	}
	return purged
}

// StatusCounts returns the number of sessions per lifecycle state
func (s *Store) StatusCounts() map[types.SessionStatus]int {
	s.mu.RLock()
	recs := make([]*sessionRecord, 0, len(s.sessions))
	for _, rec := range s.sessions {
		recs = append(recs, rec)
	}
	s.mu.RUnlock()

	counts := make(map[types.SessionStatus]int)
	for _, rec := range recs {
		rec.mu.Lock()
		counts[rec.session.Status]++
		rec.mu.Unlock()
	}
	return counts
}

// Count returns the total number of sessions in the store
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
