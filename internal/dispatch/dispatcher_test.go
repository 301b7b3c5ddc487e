package dispatch

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mmeink/livechat/backend/internal/chat"
	"github.com/mmeink/livechat/backend/internal/metrics"
	"github.com/mmeink/livechat/backend/internal/queue"
	"github.com/mmeink/livechat/backend/internal/registry"
	"github.com/mmeink/livechat/backend/internal/types"
	"github.com/rs/zerolog"
)

type fakeNotifier struct {
	mu         sync.Mutex
	payloads   map[string][][]byte
	offline    map[string]bool
	broadcasts [][]byte
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{payloads: make(map[string][][]byte), offline: make(map[string]bool)}
}

func (f *fakeNotifier) Broadcast(message []byte) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, message)
	return len(f.payloads)
}

func (f *fakeNotifier) SendToAgent(agentID string, message []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline[agentID] {
		return false
	}
	f.payloads[agentID] = append(f.payloads[agentID], message)
	return true
}

func (f *fakeNotifier) sent(agentID string) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.payloads[agentID]...)
}

type fakeArchiver struct {
	mu       sync.Mutex
	sessions []types.ChatSession
}

func (f *fakeArchiver) Archive(session types.ChatSession, messages []types.Message, rating int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = append(f.sessions, session)
}

type fixture struct {
	sessions   *chat.Store
	queue      *queue.Queue
	agents     *registry.Registry
	recorder   *metrics.Recorder
	notifier   *fakeNotifier
	archiver   *fakeArchiver
	dispatcher *Dispatcher
}

func newFixture(t *testing.T, transferTTL time.Duration) *fixture {
	t.Helper()
	f := &fixture{
		sessions: chat.NewStore(24*time.Hour, zerolog.Nop()),
		queue:    queue.New(zerolog.Nop()),
		agents:   registry.New(5, zerolog.Nop()),
		recorder: metrics.NewRecorder(nil, zerolog.Nop()),
		notifier: newFakeNotifier(),
		archiver: &fakeArchiver{},
	}
	f.dispatcher = New(f.sessions, f.queue, f.agents, f.recorder, f.notifier, f.archiver, transferTTL, time.Second, zerolog.Nop())
	return f
}

func (f *fixture) onlineAgent(t *testing.T, id string, maxChats int) {
	t.Helper()
	f.agents.Register(types.Agent{AgentID: id, MaxConcurrentChats: maxChats})
	if err := f.agents.SetStatus(id, types.AgentStatusOnline); err != nil {
		t.Fatalf("SetStatus(%s): %v", id, err)
	}
	if err := f.agents.SetAvailability(id, true); err != nil {
		t.Fatalf("SetAvailability(%s): %v", id, err)
	}
}

func (f *fixture) waitingSession(t *testing.T, priority types.Priority) types.ChatSession {
	t.Helper()
	session := f.sessions.Create(types.Customer{Name: "Customer"}, priority)
	if _, err := f.dispatcher.Escalate(session.SessionID); err != nil {
		t.Fatalf("Escalate: %v", err)
	}
	updated, err := f.sessions.Get(session.SessionID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	return updated
}

func TestDispatchAssignsWaitingSession(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.onlineAgent(t, "agent-1", 5)
	session := f.waitingSession(t, types.PriorityNormal)

	if got := f.dispatcher.DispatchCycle(); got != 1 {
		t.Fatalf("DispatchCycle = %d, want 1", got)
	}

	updated, err := f.sessions.Get(session.SessionID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if updated.Status != types.SessionStatusAssigned {
		t.Errorf("status = %s, want assigned", updated.Status)
	}
	if updated.AssignedAgentID != "agent-1" {
		t.Errorf("agent = %q, want agent-1", updated.AssignedAgentID)
	}

	agent, _ := f.agents.Get("agent-1")
	if agent.CurrentChatsCount != 1 {
		t.Errorf("CurrentChatsCount = %d, want 1", agent.CurrentChatsCount)
	}

	payloads := f.notifier.sent("agent-1")
	if len(payloads) != 1 {
		t.Fatalf("pushed %d payloads, want 1", len(payloads))
	}
	var assign types.SessionAssign
	if err := json.Unmarshal(payloads[0], &assign); err != nil {
		t.Fatalf("unmarshal push: %v", err)
	}
	if assign.Type != "session_assign" || assign.SessionID != session.SessionID {
		t.Errorf("push = %+v", assign)
	}

	f.notifier.mu.Lock()
	broadcasts := len(f.notifier.broadcasts)
	var status types.QueueStatus
	if broadcasts > 0 {
		if err := json.Unmarshal(f.notifier.broadcasts[0], &status); err != nil {
			t.Fatalf("unmarshal broadcast: %v", err)
		}
	}
	f.notifier.mu.Unlock()
	if broadcasts != 1 {
		t.Fatalf("broadcasts = %d, want 1", broadcasts)
	}
	if status.Type != "queue_status" || status.WaitingCount != 0 {
		t.Errorf("broadcast = %+v", status)
	}
}

func TestDispatchPrefersLeastLoadedAgent(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.onlineAgent(t, "busy", 5)
	f.onlineAgent(t, "idle", 5)
	for i := 0; i < 3; i++ {
		if ok, _ := f.agents.TryReserveSlot("busy"); !ok {
			t.Fatal("seed reservation failed")
		}
	}

	session := f.waitingSession(t, types.PriorityNormal)
	f.dispatcher.DispatchCycle()

	updated, _ := f.sessions.Get(session.SessionID)
	if updated.AssignedAgentID != "idle" {
		t.Errorf("agent = %q, want idle", updated.AssignedAgentID)
	}
}

func TestDispatchCapacityExhaustedRequeues(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.onlineAgent(t, "agent-1", 1)
	first := f.waitingSession(t, types.PriorityNormal)
	second := f.waitingSession(t, types.PriorityNormal)

	if got := f.dispatcher.DispatchCycle(); got != 1 {
		t.Fatalf("DispatchCycle = %d, want 1", got)
	}

	updated, _ := f.sessions.Get(first.SessionID)
	if updated.Status != types.SessionStatusAssigned {
		t.Fatalf("first session status = %s, want assigned", updated.Status)
	}

	entry, ok := f.queue.Entry(second.SessionID)
	if !ok || entry.Status != types.QueueStatusPending {
		t.Fatalf("second entry = %+v ok=%v, want pending", entry, ok)
	}
	if f.queue.Position(second.SessionID) != 1 {
		t.Errorf("position = %d, want 1", f.queue.Position(second.SessionID))
	}
	if got := f.recorder.Snapshot().CapacityExhausted; got != 1 {
		t.Errorf("CapacityExhausted = %d, want 1", got)
	}
}

func TestDispatchSkipsStaleEntry(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.onlineAgent(t, "agent-1", 5)
	stale := f.waitingSession(t, types.PriorityUrgent)
	live := f.waitingSession(t, types.PriorityNormal)

	// the sweeper got there first
	if !f.sessions.MarkAbandoned(stale.SessionID) {
		t.Fatal("MarkAbandoned failed")
	}

	if got := f.dispatcher.DispatchCycle(); got != 1 {
		t.Fatalf("DispatchCycle = %d, want 1", got)
	}

	assigned, _ := f.sessions.Get(live.SessionID)
	if assigned.Status != types.SessionStatusAssigned {
		t.Errorf("live session status = %s, want assigned", assigned.Status)
	}
	abandoned, _ := f.sessions.Get(stale.SessionID)
	if abandoned.Status != types.SessionStatusAbandoned {
		t.Errorf("stale session status = %s, want abandoned", abandoned.Status)
	}
	if got := f.recorder.Snapshot().StaleRetries; got != 1 {
		t.Errorf("StaleRetries = %d, want 1", got)
	}
}

func TestDispatchUrgentBeforeEarlierNormal(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.onlineAgent(t, "agent-1", 1)
	normal := f.waitingSession(t, types.PriorityNormal)
	urgent := f.waitingSession(t, types.PriorityUrgent)

	f.dispatcher.DispatchCycle()

	got, _ := f.sessions.Get(urgent.SessionID)
	if got.Status != types.SessionStatusAssigned {
		t.Errorf("urgent session status = %s, want assigned", got.Status)
	}
	still, _ := f.sessions.Get(normal.SessionID)
	if still.Status != types.SessionStatusWaiting {
		t.Errorf("normal session status = %s, want waiting", still.Status)
	}
}

func TestCloseReleasesSlotAndArchives(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.onlineAgent(t, "agent-1", 5)
	session := f.waitingSession(t, types.PriorityNormal)
	f.dispatcher.DispatchCycle()

	if _, err := f.sessions.Activate(session.SessionID, "agent-1"); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	closed, err := f.dispatcher.CloseSession(session.SessionID)
	if err != nil {
		t.Fatalf("CloseSession: %v", err)
	}
	if closed.Status != types.SessionStatusClosed {
		t.Fatalf("status = %s, want closed", closed.Status)
	}

	agent, _ := f.agents.Get("agent-1")
	if agent.CurrentChatsCount != 0 {
		t.Errorf("CurrentChatsCount = %d, want 0", agent.CurrentChatsCount)
	}

	f.archiver.mu.Lock()
	archived := len(f.archiver.sessions)
	f.archiver.mu.Unlock()
	if archived != 1 {
		t.Fatalf("archived %d sessions, want 1", archived)
	}

	// duplicate close changes nothing
	if _, err := f.dispatcher.CloseSession(session.SessionID); err != nil {
		t.Fatalf("second CloseSession: %v", err)
	}
	agent, _ = f.agents.Get("agent-1")
	if agent.CurrentChatsCount != 0 {
		t.Errorf("CurrentChatsCount after duplicate close = %d, want 0", agent.CurrentChatsCount)
	}
	if got := f.recorder.Snapshot().SessionsClosed; got != 1 {
		t.Errorf("SessionsClosed = %d, want 1", got)
	}
}

func TestSubmitRatingUpdatesAgent(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.onlineAgent(t, "agent-1", 5)
	session := f.waitingSession(t, types.PriorityNormal)
	f.dispatcher.DispatchCycle()
	if _, err := f.dispatcher.CloseSession(session.SessionID); err != nil {
		t.Fatalf("CloseSession: %v", err)
	}

	if _, err := f.dispatcher.SubmitRating(session.SessionID, 4, "helpful"); err != nil {
		t.Fatalf("SubmitRating: %v", err)
	}

	agent, _ := f.agents.Get("agent-1")
	if agent.TotalRatings != 1 || agent.AverageRating != 4.0 {
		t.Errorf("agent rating aggregates = %d/%v, want 1/4.0", agent.TotalRatings, agent.AverageRating)
	}

	if _, err := f.dispatcher.SubmitRating(session.SessionID, 5, "again"); !errors.Is(err, chat.ErrAlreadyRated) {
		t.Errorf("second rating err = %v, want ErrAlreadyRated", err)
	}
}

func TestTransferAcceptMovesSession(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.onlineAgent(t, "agent-1", 5)
	session := f.waitingSession(t, types.PriorityNormal)
	f.dispatcher.DispatchCycle()
	f.onlineAgent(t, "agent-2", 5)

	transfer, err := f.dispatcher.InitiateTransfer(session.SessionID, "agent-1", "agent-2", "needs billing")
	if err != nil {
		t.Fatalf("InitiateTransfer: %v", err)
	}

	// target slot held while pending, source keeps theirs
	a1, _ := f.agents.Get("agent-1")
	a2, _ := f.agents.Get("agent-2")
	if a1.CurrentChatsCount != 1 || a2.CurrentChatsCount != 1 {
		t.Fatalf("counts during transfer = %d/%d, want 1/1", a1.CurrentChatsCount, a2.CurrentChatsCount)
	}

	moved, err := f.dispatcher.AcceptTransfer(transfer.TransferID, "agent-2")
	if err != nil {
		t.Fatalf("AcceptTransfer: %v", err)
	}
	if moved.AssignedAgentID != "agent-2" {
		t.Errorf("agent after accept = %q, want agent-2", moved.AssignedAgentID)
	}

	a1, _ = f.agents.Get("agent-1")
	a2, _ = f.agents.Get("agent-2")
	if a1.CurrentChatsCount != 0 || a2.CurrentChatsCount != 1 {
		t.Errorf("counts after accept = %d/%d, want 0/1", a1.CurrentChatsCount, a2.CurrentChatsCount)
	}

	if _, err := f.dispatcher.AcceptTransfer(transfer.TransferID, "agent-2"); !errors.Is(err, ErrTransferNotFound) {
		t.Errorf("second accept err = %v, want ErrTransferNotFound", err)
	}
}

func TestTransferWrongTargetRejected(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.onlineAgent(t, "agent-1", 5)
	session := f.waitingSession(t, types.PriorityNormal)
	f.dispatcher.DispatchCycle()
	f.onlineAgent(t, "agent-2", 5)
	f.onlineAgent(t, "agent-3", 5)

	transfer, err := f.dispatcher.InitiateTransfer(session.SessionID, "agent-1", "agent-2", "")
	if err != nil {
		t.Fatalf("InitiateTransfer: %v", err)
	}
	if _, err := f.dispatcher.AcceptTransfer(transfer.TransferID, "agent-3"); !errors.Is(err, ErrNotTransferTarget) {
		t.Errorf("err = %v, want ErrNotTransferTarget", err)
	}
}

func TestTransferTimeoutRevertsReservation(t *testing.T) {
	f := newFixture(t, -time.Second)
	f.onlineAgent(t, "agent-1", 5)
	session := f.waitingSession(t, types.PriorityNormal)
	f.dispatcher.DispatchCycle()
	f.onlineAgent(t, "agent-2", 5)

	if _, err := f.dispatcher.InitiateTransfer(session.SessionID, "agent-1", "agent-2", ""); err != nil {
		t.Fatalf("InitiateTransfer: %v", err)
	}

	if got := f.dispatcher.CheckTransferTimeouts(); got != 1 {
		t.Fatalf("CheckTransferTimeouts = %d, want 1", got)
	}

	still, _ := f.sessions.Get(session.SessionID)
	if still.AssignedAgentID != "agent-1" {
		t.Errorf("agent after timeout = %q, want agent-1", still.AssignedAgentID)
	}
	a2, _ := f.agents.Get("agent-2")
	if a2.CurrentChatsCount != 0 {
		t.Errorf("target CurrentChatsCount = %d, want 0", a2.CurrentChatsCount)
	}
	if got := f.recorder.Snapshot().TransferTimeouts; got != 1 {
		t.Errorf("TransferTimeouts = %d, want 1", got)
	}
}

func TestLateAcceptResolvesAsTimeout(t *testing.T) {
	f := newFixture(t, -time.Second)
	f.onlineAgent(t, "agent-1", 5)
	session := f.waitingSession(t, types.PriorityNormal)
	f.dispatcher.DispatchCycle()
	f.onlineAgent(t, "agent-2", 5)

	transfer, err := f.dispatcher.InitiateTransfer(session.SessionID, "agent-1", "agent-2", "")
	if err != nil {
		t.Fatalf("InitiateTransfer: %v", err)
	}

	if _, err := f.dispatcher.AcceptTransfer(transfer.TransferID, "agent-2"); !errors.Is(err, ErrTransferExpired) {
		t.Fatalf("err = %v, want ErrTransferExpired", err)
	}

	still, _ := f.sessions.Get(session.SessionID)
	if still.AssignedAgentID != "agent-1" {
		t.Errorf("agent after late accept = %q, want agent-1", still.AssignedAgentID)
	}
	a2, _ := f.agents.Get("agent-2")
	if a2.CurrentChatsCount != 0 {
		t.Errorf("target CurrentChatsCount = %d, want 0", a2.CurrentChatsCount)
	}
}

func TestTransferToFullAgentRejected(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.onlineAgent(t, "agent-1", 5)
	session := f.waitingSession(t, types.PriorityNormal)
	f.dispatcher.DispatchCycle()
	f.onlineAgent(t, "agent-2", 1)
	if ok, _ := f.agents.TryReserveSlot("agent-2"); !ok {
		t.Fatal("seed reservation failed")
	}

	if _, err := f.dispatcher.InitiateTransfer(session.SessionID, "agent-1", "agent-2", ""); !errors.Is(err, ErrCapacityExhausted) {
		t.Errorf("err = %v, want ErrCapacityExhausted", err)
	}
}

func TestDuplicatePendingTransferRejected(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.onlineAgent(t, "agent-1", 5)
	session := f.waitingSession(t, types.PriorityNormal)
	f.dispatcher.DispatchCycle()
	f.onlineAgent(t, "agent-2", 5)
	f.onlineAgent(t, "agent-3", 5)

	if _, err := f.dispatcher.InitiateTransfer(session.SessionID, "agent-1", "agent-2", ""); err != nil {
		t.Fatalf("InitiateTransfer: %v", err)
	}
	if _, err := f.dispatcher.InitiateTransfer(session.SessionID, "agent-1", "agent-3", ""); !errors.Is(err, ErrTransferPending) {
		t.Errorf("err = %v, want ErrTransferPending", err)
	}

	// the rejected initiation must give back the slot it reserved
	agent3, _ := f.agents.Get("agent-3")
	if agent3.CurrentChatsCount != 0 {
		t.Errorf("agent-3 CurrentChatsCount = %d, want 0", agent3.CurrentChatsCount)
	}
}

func TestTransferOnClosedSessionRejected(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.onlineAgent(t, "agent-1", 5)
	session := f.waitingSession(t, types.PriorityNormal)
	f.dispatcher.DispatchCycle()
	f.onlineAgent(t, "agent-2", 5)

	if _, err := f.dispatcher.CloseSession(session.SessionID); err != nil {
		t.Fatalf("CloseSession: %v", err)
	}

	if _, err := f.dispatcher.InitiateTransfer(session.SessionID, "agent-1", "agent-2", ""); !errors.Is(err, chat.ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}

	// no slot may be held for a dead session
	agent2, _ := f.agents.Get("agent-2")
	if agent2.CurrentChatsCount != 0 {
		t.Errorf("agent-2 CurrentChatsCount = %d, want 0", agent2.CurrentChatsCount)
	}
	if _, pending := f.dispatcher.PendingTransfer(session.SessionID); pending {
		t.Error("expected no pending transfer for a closed session")
	}
}

func TestCloseWaitingSessionExpiresQueueEntry(t *testing.T) {
	f := newFixture(t, time.Minute)
	session := f.waitingSession(t, types.PriorityNormal)

	if _, err := f.dispatcher.CloseSession(session.SessionID); err != nil {
		t.Fatalf("CloseSession: %v", err)
	}

	if f.queue.Len() != 0 {
		t.Errorf("queue length = %d, want 0 after closing a waiting session", f.queue.Len())
	}
	if pos := f.queue.Position(session.SessionID); pos != 0 {
		t.Errorf("position = %d, want 0", pos)
	}

	f.onlineAgent(t, "agent-1", 5)
	if got := f.dispatcher.DispatchCycle(); got != 0 {
		t.Errorf("DispatchCycle = %d, want 0", got)
	}
}

func TestCloseCancelsPendingTransfer(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.onlineAgent(t, "agent-1", 5)
	session := f.waitingSession(t, types.PriorityNormal)
	f.dispatcher.DispatchCycle()
	f.onlineAgent(t, "agent-2", 5)

	if _, err := f.dispatcher.InitiateTransfer(session.SessionID, "agent-1", "agent-2", ""); err != nil {
		t.Fatalf("InitiateTransfer: %v", err)
	}
	if _, err := f.dispatcher.CloseSession(session.SessionID); err != nil {
		t.Fatalf("CloseSession: %v", err)
	}

	if _, pending := f.dispatcher.PendingTransfer(session.SessionID); pending {
		t.Error("transfer still pending after close")
	}
	a2, _ := f.agents.Get("agent-2")
	if a2.CurrentChatsCount != 0 {
		t.Errorf("target CurrentChatsCount = %d, want 0", a2.CurrentChatsCount)
	}
}

func TestUpdatePriorityReordersQueue(t *testing.T) {
	f := newFixture(t, time.Minute)
	first := f.waitingSession(t, types.PriorityNormal)
	second := f.waitingSession(t, types.PriorityNormal)

	if err := f.dispatcher.UpdatePriority(second.SessionID, types.PriorityUrgent); err != nil {
		t.Fatalf("UpdatePriority: %v", err)
	}

	if f.queue.Position(second.SessionID) != 1 {
		t.Errorf("bumped session position = %d, want 1", f.queue.Position(second.SessionID))
	}
	if f.queue.Position(first.SessionID) != 2 {
		t.Errorf("other session position = %d, want 2", f.queue.Position(first.SessionID))
	}
}

func TestOfflineAgentStillAssigned(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.onlineAgent(t, "agent-1", 5)
	f.notifier.offline["agent-1"] = true
	session := f.waitingSession(t, types.PriorityNormal)

	if got := f.dispatcher.DispatchCycle(); got != 1 {
		t.Fatalf("DispatchCycle = %d, want 1", got)
	}
	updated, _ := f.sessions.Get(session.SessionID)
	if updated.Status != types.SessionStatusAssigned {
		t.Errorf("status = %s, want assigned despite failed push", updated.Status)
	}
}
