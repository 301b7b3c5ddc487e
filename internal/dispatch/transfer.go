package dispatch

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/mmeink/livechat/backend/internal/chat"
	"github.com/mmeink/livechat/backend/internal/types"
)

// InitiateTransfer starts a handoff of a session from its current
// agent to another. The target's slot is reserved up front so the
// session cannot be stranded at acceptance time; the source agent
// keeps their slot until the target accepts.
func (d *Dispatcher) InitiateTransfer(sessionID, fromAgent, toAgent, reason string) (types.ChatTransfer, error) {
	if fromAgent == toAgent {
		return types.ChatTransfer{}, ErrSelfTransfer
	}

	session, err := d.sessions.Get(sessionID)
	if err != nil {
		return types.ChatTransfer{}, err
	}
	if session.Status.Terminal() || session.AssignedAgentID != fromAgent {
		return types.ChatTransfer{}, chat.ErrInvalidTransition
	}

	ok, err := d.agents.TryReserveSlot(toAgent)
	if err != nil {
		return types.ChatTransfer{}, err
	}
	if !ok {
		return types.ChatTransfer{}, ErrCapacityExhausted
	}

	transfer := types.ChatTransfer{
		TransferID:    uuid.New().String(),
		SessionID:     sessionID,
		FromAgentID:   fromAgent,
		ToAgentID:     toAgent,
		Reason:        reason,
		TransferredAt: time.Now(),
		ExpiresAt:     time.Now().Add(d.transferTTL),
	}

	// The pending check shares the insert's critical section so two
	// racing initiations for one session cannot both get through.
	d.transferMu.Lock()
	for _, t := range d.transfers {
		if t.SessionID == sessionID {
			d.transferMu.Unlock()
			if relErr := d.agents.ReleaseSlot(toAgent); relErr != nil {
				d.logger.Error().Err(relErr).Str("agent_id", toAgent).Msg("failed to release slot")
			}
			return types.ChatTransfer{}, ErrTransferPending
		}
	}
	d.transfers[transfer.TransferID] = &transfer
	d.transferMu.Unlock()

	d.recorder.RecordTransferInitiated()
	d.logger.Info().
		Str("session_id", sessionID).
		Str("from_agent", fromAgent).
		Str("to_agent", toAgent).
		Str("transfer_id", transfer.TransferID).
		Msg("transfer initiated")

	d.notifyTransferRequest(transfer)
	return transfer, nil
}

// AcceptTransfer completes a pending transfer. Expiry is checked here,
// at the point of use; a late accept resolves the transfer as timed
// out instead of handing the session over.
func (d *Dispatcher) AcceptTransfer(transferID, agentID string) (types.ChatSession, error) {
	d.transferMu.Lock()
	transfer, ok := d.transfers[transferID]
	if !ok {
		d.transferMu.Unlock()
		return types.ChatSession{}, ErrTransferNotFound
	}
	if transfer.ToAgentID != agentID {
		d.transferMu.Unlock()
		return types.ChatSession{}, ErrNotTransferTarget
	}
	if time.Now().After(transfer.ExpiresAt) {
		expired := *transfer
		delete(d.transfers, transferID)
		d.transferMu.Unlock()
		d.resolveTimeout(expired)
		return types.ChatSession{}, ErrTransferExpired
	}
	claimed := *transfer
	delete(d.transfers, transferID)
	d.transferMu.Unlock()

	session, err := d.sessions.TransferAgent(claimed.SessionID, claimed.FromAgentID, claimed.ToAgentID)
	if err != nil {
		// session closed or moved while the transfer was pending
		if relErr := d.agents.ReleaseSlot(claimed.ToAgentID); relErr != nil {
			d.logger.Error().Err(relErr).Str("agent_id", claimed.ToAgentID).Msg("failed to release slot")
		}
		return types.ChatSession{}, err
	}

	if err := d.agents.ReleaseSlot(claimed.FromAgentID); err != nil {
		d.logger.Error().Err(err).Str("agent_id", claimed.FromAgentID).Msg("failed to release slot")
	}

	now := time.Now()
	claimed.AcceptedAt = &now
	d.recorder.RecordTransferAccepted(claimed.FromAgentID, claimed.ToAgentID, now)
	d.logger.Info().
		Str("session_id", claimed.SessionID).
		Str("from_agent", claimed.FromAgentID).
		Str("to_agent", claimed.ToAgentID).
		Msg("transfer accepted")

	d.notifyTransferResult(claimed, types.TransferAccepted, claimed.ToAgentID)
	return session, nil
}

// CancelTransfer withdraws a pending transfer. Only the initiating
// agent may cancel.
func (d *Dispatcher) CancelTransfer(transferID, agentID string) error {
	d.transferMu.Lock()
	transfer, ok := d.transfers[transferID]
	if !ok {
		d.transferMu.Unlock()
		return ErrTransferNotFound
	}
	if transfer.FromAgentID != agentID {
		d.transferMu.Unlock()
		return ErrNotTransferTarget
	}
	cancelled := *transfer
	delete(d.transfers, transferID)
	d.transferMu.Unlock()

	if err := d.agents.ReleaseSlot(cancelled.ToAgentID); err != nil {
		d.logger.Error().Err(err).Str("agent_id", cancelled.ToAgentID).Msg("failed to release slot")
	}

	d.logger.Info().
		Str("session_id", cancelled.SessionID).
		Str("transfer_id", cancelled.TransferID).
		Msg("transfer cancelled")
	d.notifyTransferResult(cancelled, types.TransferCancelled, cancelled.FromAgentID)
	return nil
}

// CheckTransferTimeouts resolves every pending transfer past its
// deadline: the target's reserved slot is released and the session
// stays with the source agent
func (d *Dispatcher) CheckTransferTimeouts() int {
	now := time.Now()

	d.transferMu.Lock()
	var expired []types.ChatTransfer
	for id, t := range d.transfers {
		if now.After(t.ExpiresAt) {
			expired = append(expired, *t)
			delete(d.transfers, id)
		}
	}
	d.transferMu.Unlock()

	for _, t := range expired {
		d.resolveTimeout(t)
	}
	return len(expired)
}

// PendingTransfer returns the unresolved transfer for a session, if any
func (d *Dispatcher) PendingTransfer(sessionID string) (types.ChatTransfer, bool) {
	d.transferMu.Lock()
	defer d.transferMu.Unlock()

	for _, t := range d.transfers {
		if t.SessionID == sessionID {
			return *t, true
		}
	}
	return types.ChatTransfer{}, false
}

func (d *Dispatcher) resolveTimeout(transfer types.ChatTransfer) {
	if err := d.agents.ReleaseSlot(transfer.ToAgentID); err != nil {
		d.logger.Error().Err(err).Str("agent_id", transfer.ToAgentID).Msg("failed to release slot")
	}
	d.recorder.RecordTransferTimeout()
	d.logger.Warn().
		Str("session_id", transfer.SessionID).
		Str("to_agent", transfer.ToAgentID).
		Msg("transfer timed out")
	d.notifyTransferResult(transfer, types.TransferTimedOut, transfer.FromAgentID)
}

// cancelTransfersForSession drops pending transfers when their session
// closes out from under them
func (d *Dispatcher) cancelTransfersForSession(sessionID string) {
	d.transferMu.Lock()
	var dropped []types.ChatTransfer
	for id, t := range d.transfers {
		if t.SessionID == sessionID {
			dropped = append(dropped, *t)
			delete(d.transfers, id)
		}
	}
	d.transferMu.Unlock()

	for _, t := range dropped {
		if err := d.agents.ReleaseSlot(t.ToAgentID); err != nil {
			d.logger.Error().Err(err).Str("agent_id", t.ToAgentID).Msg("failed to release slot")
		}
		d.notifyTransferResult(t, types.TransferCancelled, t.FromAgentID)
	}
}

func (d *Dispatcher) notifyTransferRequest(transfer types.ChatTransfer) {
	if d.notifier == nil {
		return
	}

	payload, err := json.Marshal(types.TransferRequest{
		Type:        "transfer_request",
		TransferID:  transfer.TransferID,
		SessionID:   transfer.SessionID,
		FromAgentID: transfer.FromAgentID,
		ToAgentID:   transfer.ToAgentID,
		Reason:      transfer.Reason,
		ExpiresAt:   transfer.ExpiresAt,
	})
	if err != nil {
		d.logger.Error().Err(err).Msg("failed to marshal transfer request")
		return
	}
	d.notifier.SendToAgent(transfer.ToAgentID, payload)
}

func (d *Dispatcher) notifyTransferResult(transfer types.ChatTransfer, outcome types.TransferOutcome, holder string) {
	if d.notifier == nil {
		return
	}

	payload, err := json.Marshal(types.TransferResult{
		Type:       "transfer_result",
		TransferID: transfer.TransferID,
		SessionID:  transfer.SessionID,
		Outcome:    outcome,
		AgentID:    holder,
		Timestamp:  time.Now(),
	})
	if err != nil {
		d.logger.Error().Err(err).Msg("failed to marshal transfer result")
		return
	}
	d.notifier.SendToAgent(transfer.FromAgentID, payload)
	d.notifier.SendToAgent(transfer.ToAgentID, payload)
}
