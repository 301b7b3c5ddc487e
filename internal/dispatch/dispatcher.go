package dispatch

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/mmeink/livechat/backend/internal/chat"
	"github.com/mmeink/livechat/backend/internal/metrics"
	"github.com/mmeink/livechat/backend/internal/queue"
	"github.com/mmeink/livechat/backend/internal/registry"
	"github.com/mmeink/livechat/backend/internal/types"
	"github.com/rs/zerolog"
)

// Notifier pushes a payload to a connected agent. Returns false when
// the agent has no live connection; dispatch outcomes never depend on
// delivery.
type Notifier interface {
	SendToAgent(agentID string, message []byte) bool
	Broadcast(message []byte) int
}

// Archiver receives the final snapshot of a closed session
type Archiver interface {
	Archive(session types.ChatSession, messages []types.Message, rating int)
}

// Dispatcher owns the assignment transaction across queue, registry
// and session store, plus the transfer handshake between agents. It
// is the only writer that touches all three, always in the order
// queue -> registry -> sessions, so partial failure can be unwound
// without deadlock.
type Dispatcher struct {
	sessions *chat.Store
	queue    *queue.Queue
	agents   *registry.Registry
	recorder *metrics.Recorder
	notifier Notifier
	archiver Archiver

	transferMu  sync.Mutex
	transfers   map[string]*types.ChatTransfer // pending, keyed by transfer id
	transferTTL time.Duration

	interval time.Duration
	logger   zerolog.Logger
}

// New creates a Dispatcher. notifier and archiver may be nil in tests.
func New(sessions *chat.Store, q *queue.Queue, agents *registry.Registry, recorder *metrics.Recorder, notifier Notifier, archiver Archiver, transferTTL, interval time.Duration, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		sessions:    sessions,
		queue:       q,
		agents:      agents,
		recorder:    recorder,
		notifier:    notifier,
		archiver:    archiver,
		transfers:   make(map[string]*types.ChatTransfer),
		transferTTL: transferTTL,
		interval:    interval,
		logger:      logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Start runs the dispatch loop until ctx is cancelled
func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.logger.Info().Dur("interval", d.interval).Msg("dispatch loop started")

	for {
		select {
		case <-ctx.Done():
			d.logger.Info().Msg("dispatch loop stopped")
			return
		case <-ticker.C:
			d.DispatchCycle()
			d.CheckTransferTimeouts()
		}
	}
}

// DispatchCycle drains the queue head-first until it runs out of
// pending entries or agent capacity. Returns the number of sessions
// assigned this cycle.
//
// A popped entry whose session is no longer waiting lost a race with
// the sweeper or a resume; it is expired and the cycle moves on. When
// no agent has a free slot the entry goes back to the queue with its
// wait clock intact and the cycle stops, since every later entry has
// equal or lower priority.
func (d *Dispatcher) DispatchCycle() int {
	start := time.Now()
	assigned := 0

	for {
		entry, ok := d.queue.Pop()
		if !ok {
			break
		}

		session, err := d.sessions.Get(entry.SessionID)
		if err != nil || session.Status != types.SessionStatusWaiting {
			d.queue.Expire(entry.SessionID)
			d.recorder.RecordStaleRetry()
			d.logger.Debug().Str("session_id", entry.SessionID).Msg("skipped stale queue entry")
			continue
		}

		agentID, ok := d.reserveAgent()
		if !ok {
			d.queue.Requeue(entry.SessionID)
			d.recorder.RecordCapacityExhausted()
			break
		}

		session, err = d.sessions.Assign(entry.SessionID, agentID)
		if err != nil {
			// session moved between the status check and Assign
			if relErr := d.agents.ReleaseSlot(agentID); relErr != nil {
				d.logger.Error().Err(relErr).Str("agent_id", agentID).Msg("failed to release slot")
			}
			d.queue.Expire(entry.SessionID)
			d.recorder.RecordStaleRetry()
			continue
		}

		assigned++
		d.recorder.RecordAssigned()
		d.logger.Info().
			Str("session_id", session.SessionID).
			Str("agent_id", agentID).
			Str("priority", string(session.Priority)).
			Float64("wait_seconds", session.WaitTimeSeconds).
			Msg("session assigned")
		d.notifyAssign(session)
	}

	d.recorder.RecordDispatchCycle(time.Since(start))
	if assigned > 0 {
		d.broadcastQueueStatus()
	}
	return assigned
}

// broadcastQueueStatus pushes the post-cycle queue summary to every
// connected agent
func (d *Dispatcher) broadcastQueueStatus() {
	if d.notifier == nil {
		return
	}

	snap := d.queue.Snapshot()
	payload, err := json.Marshal(types.QueueStatus{
		Type:               "queue_status",
		WaitingCount:       snap.WaitingCount,
		LongestWaitSeconds: snap.LongestWaitSecs,
		Timestamp:          snap.Timestamp,
	})
	if err != nil {
		d.logger.Error().Err(err).Msg("failed to marshal queue status")
		return
	}
	d.notifier.Broadcast(payload)
}

// reserveAgent claims a slot on the least-loaded available agent.
// Candidates are re-checked atomically so a concurrent reservation on
// the same agent falls through to the next one.
func (d *Dispatcher) reserveAgent() (string, bool) {
	for _, agent := range d.agents.AvailableByLeastLoad() {
		ok, err := d.agents.TryReserveSlot(agent.AgentID)
		if err != nil {
			continue
		}
		if ok {
			return agent.AgentID, true
		}
	}
	return "", false
}

// Escalate moves a bot session into the waiting queue
func (d *Dispatcher) Escalate(sessionID string) (types.QueueEntry, error) {
	session, err := d.sessions.EscalateToQueue(sessionID)
	if err != nil {
		return types.QueueEntry{}, err
	}

	entry := d.queue.Enqueue(sessionID, session.Priority)
	d.recorder.RecordEnqueued()
	d.logger.Info().
		Str("session_id", sessionID).
		Str("priority", string(session.Priority)).
		Int("position", entry.QueuePosition).
		Msg("session escalated to queue")
	return entry, nil
}

// CloseSession closes the session, releases the agent's slot, cancels
// any pending transfer and hands the final snapshot to metrics and the
// archiver. Closing an already closed session is a no-op.
func (d *Dispatcher) CloseSession(sessionID string) (types.ChatSession, error) {
	session, closedNow, err := d.sessions.Close(sessionID)
	if err != nil {
		return session, err
	}
	if !closedNow {
		return session, nil
	}

	d.cancelTransfersForSession(sessionID)

	if session.AssignedAgentID != "" {
		if err := d.agents.ReleaseSlot(session.AssignedAgentID); err != nil {
			d.logger.Error().Err(err).Str("agent_id", session.AssignedAgentID).Msg("failed to release slot")
		}
	} else {
		// Closed while still waiting: retire the pending entry now so
		// queue positions stay honest instead of waiting for the next
		// cycle to pop and discard it.
		d.queue.Expire(sessionID)
	}

	rating := 0
	if r, ok := d.sessions.Rating(sessionID); ok {
		rating = r.Rating
	}
	d.recorder.RecordClosed(session, rating)

	if d.archiver != nil {
		messages, _ := d.sessions.Messages(sessionID)
		d.archiver.Archive(session, messages, rating)
	}

	d.logger.Info().
		Str("session_id", sessionID).
		Float64("duration_seconds", session.TotalDurationSeconds).
		Msg("session closed")
	return session, nil
}

// SubmitRating records the customer's rating against the session and
// the handling agent's aggregates
func (d *Dispatcher) SubmitRating(sessionID string, rating int, feedback string) (types.ChatRating, error) {
	r, err := d.sessions.Rate(sessionID, rating, feedback)
	if err != nil {
		return types.ChatRating{}, err
	}

	if r.AgentID != "" {
		if err := d.agents.RecordRating(r.AgentID, r.Rating); err != nil {
			d.logger.Error().Err(err).Str("agent_id", r.AgentID).Msg("failed to record agent rating")
		}
	}
	d.recorder.RecordRating(r)
	return r, nil
}

// UpdatePriority changes a session's priority and, while it is still
// waiting, its queue position
func (d *Dispatcher) UpdatePriority(sessionID string, priority types.Priority) error {
	if err := d.sessions.SetPriority(sessionID, priority); err != nil {
		return err
	}
	d.queue.UpdatePriority(sessionID, priority)
	return nil
}

// QueuePosition returns the session's 1-based place among pending
// entries, or 0 when it is not waiting
func (d *Dispatcher) QueuePosition(sessionID string) int {
	return d.queue.Position(sessionID)
}

// PushSessionMessage forwards a chat message to a connected agent.
// Returns false when the agent has no live connection.
func (d *Dispatcher) PushSessionMessage(agentID, sessionID string, message types.Message) bool {
	if d.notifier == nil {
		return false
	}

	payload, err := json.Marshal(types.SessionMessage{
		Type:      "session_message",
		SessionID: sessionID,
		Message:   message,
	})
	if err != nil {
		d.logger.Error().Err(err).Msg("failed to marshal session message")
		return false
	}
	return d.notifier.SendToAgent(agentID, payload)
}

func (d *Dispatcher) notifyAssign(session types.ChatSession) {
	if d.notifier == nil {
		return
	}

	payload, err := json.Marshal(types.SessionAssign{
		Type:      "session_assign",
		AgentID:   session.AssignedAgentID,
		SessionID: session.SessionID,
		Priority:  session.Priority,
		Customer:  session.Customer,
		Timestamp: time.Now(),
	})
	if err != nil {
		d.logger.Error().Err(err).Msg("failed to marshal assignment")
		return
	}
	if !d.notifier.SendToAgent(session.AssignedAgentID, payload) {
		d.logger.Warn().
			Str("agent_id", session.AssignedAgentID).
			Str("session_id", session.SessionID).
			Msg("agent not connected for assignment push")
	}
}
