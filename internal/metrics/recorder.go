package metrics

import (
	"sync"
	"time"

	"github.com/mmeink/livechat/backend/internal/types"
	"github.com/rs/zerolog"
)

// FactStore is the subset of the storage layer the recorder writes to
type FactStore interface {
	SaveSessionFact(fact types.SessionFact) error
	SaveAgentDailyRollup(rollup types.AgentDailyRollup) error
}

// Stats are the process-level counters exposed on the admin API
type Stats struct {
	SessionsCreated   int64 `json:"sessionsCreated"`
	SessionsEnqueued  int64 `json:"sessionsEnqueued"`
	SessionsAssigned  int64 `json:"sessionsAssigned"`
	SessionsClosed    int64 `json:"sessionsClosed"`
	SessionsAbandoned int64 `json:"sessionsAbandoned"`
	RatingsRecorded   int64 `json:"ratingsRecorded"`

	DispatchCycles     int64 `json:"dispatchCycles"`
	StaleRetries       int64 `json:"staleRetries"`
	CapacityExhausted  int64 `json:"capacityExhausted"`
	TransfersInitiated int64 `json:"transfersInitiated"`
	TransfersAccepted  int64 `json:"transfersAccepted"`
	TransferTimeouts   int64 `json:"transferTimeouts"`

	LastDispatchDurationMs float64 `json:"lastDispatchDurationMs"`
}

// Recorder observes lifecycle transitions and turns them into
// immutable facts and per-day/per-agent rollups. It never mutates
// session or agent state; it only aggregates what the state machine
// already set. Fact emission is idempotent per session id so a
// re-delivered close changes nothing.
type Recorder struct {
	mu       sync.Mutex
	recorded map[string]struct{}                // session ids with an emitted fact
	rollups  map[string]*types.AgentDailyRollup // agentID|date -> rollup

	stats  Stats
	store  FactStore
	logger zerolog.Logger
}

// NewRecorder creates a Recorder persisting through store
func NewRecorder(store FactStore, logger zerolog.Logger) *Recorder {
	return &Recorder{
		recorded: make(map[string]struct{}),
		rollups:  make(map[string]*types.AgentDailyRollup),
		store:    store,
		logger:   logger.With().Str("component", "metrics").Logger(),
	}
}

// RecordCreated counts a new session
func (r *Recorder) RecordCreated() {
	r.mu.Lock()
	r.stats.SessionsCreated++
	r.mu.Unlock()
}

// RecordEnqueued counts an escalation into the queue
func (r *Recorder) RecordEnqueued() {
	r.mu.Lock()
	r.stats.SessionsEnqueued++
	r.mu.Unlock()
}

// RecordAssigned counts a successful dispatch
func (r *Recorder) RecordAssigned() {
	r.mu.Lock()
	r.stats.SessionsAssigned++
	r.mu.Unlock()
}

// RecordClosed emits the session's immutable fact and folds it into
// the owning agent's daily rollup. Duplicate closes are ignored.
func (r *Recorder) RecordClosed(session types.ChatSession, rating int) {
	fact := factFromSession(session, rating)

	r.mu.Lock()
	if _, dup := r.recorded[session.SessionID]; dup {
		r.mu.Unlock()
		return
	}
	r.recorded[session.SessionID] = struct{}{}
	r.stats.SessionsClosed++

	var rollup types.AgentDailyRollup
	hasRollup := false
	if session.AssignedAgentID != "" {
		rollup = r.foldIntoRollup(fact)
		hasRollup = true
	}
	r.mu.Unlock()

	r.persist(fact, rollup, hasRollup)
}

// RecordAbandoned emits a fact for a session that expired in the
// queue. Idempotent per session id like RecordClosed.
func (r *Recorder) RecordAbandoned(session types.ChatSession) {
	fact := factFromSession(session, 0)
	fact.Abandoned = true

	r.mu.Lock()
	if _, dup := r.recorded[session.SessionID]; dup {
		r.mu.Unlock()
		return
	}
	r.recorded[session.SessionID] = struct{}{}
	r.stats.SessionsAbandoned++
	r.mu.Unlock()

	r.persist(fact, types.AgentDailyRollup{}, false)
}

// RecordRating folds a rating into the agent's daily rollup
func (r *Recorder) RecordRating(rating types.ChatRating) {
	r.mu.Lock()
	r.stats.RatingsRecorded++

	var rollup types.AgentDailyRollup
	hasRollup := false
	if rating.AgentID != "" {
		key := rating.AgentID + "|" + rating.CreatedAt.Format("2006-01-02")
		ru := r.rollup(key, rating.AgentID, rating.CreatedAt.Format("2006-01-02"))
		ru.RatingsReceived++
		ru.AvgRating += (float64(rating.Rating) - ru.AvgRating) / float64(ru.RatingsReceived)
		rollup = *ru
		hasRollup = true
	}
	r.mu.Unlock()

	if hasRollup && r.store != nil {
		go func() {
			if err := r.store.SaveAgentDailyRollup(rollup); err != nil {
				r.logger.Error().Err(err).Str("agent_id", rollup.AgentID).Msg("failed to save agent rollup")
			}
		}()
	}
}

// RecordTransferInitiated counts a transfer request
func (r *Recorder) RecordTransferInitiated() {
	r.mu.Lock()
	r.stats.TransfersInitiated++
	r.mu.Unlock()
}

// RecordTransferAccepted updates both agents' transfer rollups
func (r *Recorder) RecordTransferAccepted(fromAgent, toAgent string, when time.Time) {
	date := when.Format("2006-01-02")

	r.mu.Lock()
	r.stats.TransfersAccepted++
	out := r.rollup(fromAgent+"|"+date, fromAgent, date)
	out.ChatsTransferredOut++
	in := r.rollup(toAgent+"|"+date, toAgent, date)
	in.ChatsTransferredIn++
	outCopy, inCopy := *out, *in
	r.mu.Unlock()

	if r.store != nil {
		go func() {
			for _, ru := range []types.AgentDailyRollup{outCopy, inCopy} {
				if err := r.store.SaveAgentDailyRollup(ru); err != nil {
					r.logger.Error().Err(err).Str("agent_id", ru.AgentID).Msg("failed to save agent rollup")
				}
			}
		}()
	}
}

// RecordTransferTimeout counts a transfer that nobody accepted
func (r *Recorder) RecordTransferTimeout() {
	r.mu.Lock()
	r.stats.TransferTimeouts++
	r.mu.Unlock()
}

// RecordStaleRetry counts a dispatch retry over a vanished entry
func (r *Recorder) RecordStaleRetry() {
	r.mu.Lock()
	r.stats.StaleRetries++
	r.mu.Unlock()
}

// RecordCapacityExhausted counts a dispatch cycle stopped by full agents
func (r *Recorder) RecordCapacityExhausted() {
	r.mu.Lock()
	r.stats.CapacityExhausted++
	r.mu.Unlock()
}

// RecordDispatchCycle tracks cycle timing
func (r *Recorder) RecordDispatchCycle(d time.Duration) {
	r.mu.Lock()
	r.stats.DispatchCycles++
	r.stats.LastDispatchDurationMs = float64(d.Microseconds()) / 1000.0
	r.mu.Unlock()
}

// Snapshot returns a copy of the current counters
func (r *Recorder) Snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Rollup returns a copy of one agent's rollup for a date, if present
func (r *Recorder) Rollup(agentID, date string) (types.AgentDailyRollup, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ru, ok := r.rollups[agentID+"|"+date]
	if !ok {
		return types.AgentDailyRollup{}, false
	}
	return *ru, true
}

// rollup returns the mutable rollup for a key, creating it if needed.
// Caller holds the lock.
func (r *Recorder) rollup(key, agentID, date string) *types.AgentDailyRollup {
	ru, ok := r.rollups[key]
	if !ok {
		ru = &types.AgentDailyRollup{AgentID: agentID, Date: date}
		r.rollups[key] = ru
	}
	return ru
}

// foldIntoRollup applies one closed-session fact to the owning
// agent's daily rollup with incremental running averages. Caller
// holds the lock; returns a copy for persistence.
func (r *Recorder) foldIntoRollup(fact types.SessionFact) types.AgentDailyRollup {
	key := fact.AgentID + "|" + fact.DateKey
	ru := r.rollup(key, fact.AgentID, fact.DateKey)

	ru.TotalChats++
	n := float64(ru.TotalChats)
	ru.TotalDurationSeconds += fact.TotalDurationSeconds
	ru.AvgDurationSeconds += (fact.TotalDurationSeconds - ru.AvgDurationSeconds) / n
	ru.AvgWaitTimeSeconds += (fact.WaitTimeSeconds - ru.AvgWaitTimeSeconds) / n
	ru.AvgResponseTimeSeconds += (fact.ResponseTimeSeconds - ru.AvgResponseTimeSeconds) / n
	return *ru
}

// persist saves the fact (and rollup, when present) off the hot path
func (r *Recorder) persist(fact types.SessionFact, rollup types.AgentDailyRollup, hasRollup bool) {
	if r.store == nil {
		return
	}
	go func() {
		if err := r.store.SaveSessionFact(fact); err != nil {
			r.logger.Error().Err(err).Str("session_id", fact.SessionID).Msg("failed to save session fact")
		}
		if hasRollup {
			if err := r.store.SaveAgentDailyRollup(rollup); err != nil {
				r.logger.Error().Err(err).Str("agent_id", rollup.AgentID).Msg("failed to save agent rollup")
			}
		}
	}()
}

// factFromSession snapshots a terminal session into its immutable fact
func factFromSession(session types.ChatSession, rating int) types.SessionFact {
	fact := types.SessionFact{
		SessionID:            session.SessionID,
		AgentID:              session.AssignedAgentID,
		Priority:             string(session.Priority),
		CreatedAt:            session.CreatedAt.Format(time.RFC3339),
		WaitTimeSeconds:      session.WaitTimeSeconds,
		ResponseTimeSeconds:  session.ResponseTimeSeconds,
		TotalDurationSeconds: session.TotalDurationSeconds,
		MessageCount:         session.MessageCount,
		Rating:               rating,
		Abandoned:            session.IsAbandoned,
	}
	if session.ClosedAt != nil {
		fact.DateKey = session.ClosedAt.Format("2006-01-02")
		fact.ClosedAt = session.ClosedAt.Format(time.RFC3339)
	} else {
		fact.DateKey = time.Now().Format("2006-01-02")
	}
	return fact
}
