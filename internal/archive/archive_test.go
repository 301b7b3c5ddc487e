package archive

import (
	"sync"
	"testing"
	"time"

	"github.com/mmeink/livechat/backend/internal/types"
	"github.com/rs/zerolog"
)

type captureStore struct {
	mu          sync.Mutex
	transcripts []types.Transcript
}

func (c *captureStore) SaveTranscript(t types.Transcript) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transcripts = append(c.transcripts, t)
	return nil
}

func TestBuildTranscript(t *testing.T) {
	closedAt := time.Date(2026, 3, 14, 10, 5, 0, 0, time.UTC)
	session := types.ChatSession{
		SessionID:            "s1",
		Customer:             types.Customer{Name: "Ada", Email: "ada@example.com"},
		AssignedAgentID:      "agent-1",
		Status:               types.SessionStatusClosed,
		CreatedAt:            closedAt.Add(-5 * time.Minute),
		ClosedAt:             &closedAt,
		TotalDurationSeconds: 300,
	}
	messages := []types.Message{
		{MessageID: "m1", SenderType: types.SenderCustomer, Body: "hi"},
		{MessageID: "m2", SenderType: types.SenderAgent, Body: "hello", IsInternal: false},
		{MessageID: "m3", SenderType: types.SenderAgent, Body: "note", IsInternal: true},
	}

	transcript := Build(session, messages, 5)

	if transcript.SessionID != "s1" || transcript.AgentID != "agent-1" {
		t.Errorf("identity fields = %q/%q", transcript.SessionID, transcript.AgentID)
	}
	if transcript.TotalMessages != 3 {
		t.Errorf("TotalMessages = %d, want 3 (internal notes included)", transcript.TotalMessages)
	}
	if transcript.Rating != 5 {
		t.Errorf("Rating = %d, want 5", transcript.Rating)
	}
	if transcript.ChatEndedAt != closedAt.Format(time.RFC3339) {
		t.Errorf("ChatEndedAt = %q", transcript.ChatEndedAt)
	}
	if transcript.DurationSeconds != 300 {
		t.Errorf("DurationSeconds = %v, want 300", transcript.DurationSeconds)
	}
}

func TestArchiveSavesAsynchronously(t *testing.T) {
	store := &captureStore{}
	a := New(store, zerolog.Nop())

	closedAt := time.Now()
	session := types.ChatSession{SessionID: "s1", Status: types.SessionStatusClosed, ClosedAt: &closedAt}
	a.Archive(session, nil, 0)

	deadline := time.Now().Add(time.Second)
	for {
		store.mu.Lock()
		n := len(store.transcripts)
		store.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("saved %d transcripts, want 1", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
