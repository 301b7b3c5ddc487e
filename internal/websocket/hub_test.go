package websocket

import (
	"bytes"
	"testing"
	"time"

	"github.com/mmeink/livechat/backend/internal/config"
	"github.com/mmeink/livechat/backend/internal/registry"
	"github.com/mmeink/livechat/backend/internal/types"
	"github.com/rs/zerolog"
)

func newTestHub() *AgentHub {
	logger := zerolog.New(&bytes.Buffer{})
	reg := registry.New(5, logger)
	return NewAgentHub(reg, logger)
}

func mockClient(hub *AgentHub, agentID string) *AgentClient {
	return &AgentClient{
		agentID: agentID,
		hub:     hub,
		send:    make(chan []byte, 10),
		done:    make(chan struct{}),
	}
}

func TestNewAgentHub(t *testing.T) {
	hub := newTestHub()

	if hub == nil {
		t.Fatal("expected hub to be created")
	}

	if hub.agents == nil {
		t.Error("expected agents map to be initialized")
	}

	if hub.hello == nil {
		t.Error("expected hello channel to be initialized")
	}

	if hub.unregister == nil {
		t.Error("expected unregister channel to be initialized")
	}

	if hub.statusChange == nil {
		t.Error("expected statusChange channel to be initialized")
	}

	if hub.availability == nil {
		t.Error("expected availability channel to be initialized")
	}
}

func TestHubHelloBringsAgentOnline(t *testing.T) {
	hub := newTestHub()
	go hub.Run()

	client := mockClient(hub, "agent-1")
	hub.hello <- helloEnvelope{client: client, hello: &types.AgentHello{
		Type: "hello", AgentID: "agent-1", Name: "Ada", MaxConcurrentChats: 3,
	}}
	time.Sleep(10 * time.Millisecond)

	if hub.AgentCount() != 1 {
		t.Errorf("expected 1 agent after hello, got %d", hub.AgentCount())
	}

	agent, err := hub.registry.Get("agent-1")
	if err != nil {
		t.Fatalf("agent not registered: %v", err)
	}
	if agent.Status != types.AgentStatusOnline {
		t.Errorf("expected agent online, got %s", agent.Status)
	}
	if agent.MaxConcurrentChats != 3 {
		t.Errorf("expected max chats 3, got %d", agent.MaxConcurrentChats)
	}

	// hello is acked
	select {
	case msg := <-client.send:
		if string(msg) == "" {
			t.Error("expected ack payload")
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("client did not receive ack")
	}
}

func TestHubUnregisterSetsAgentOffline(t *testing.T) {
	hub := newTestHub()
	go hub.Run()

	client := mockClient(hub, "agent-1")
	hub.hello <- helloEnvelope{client: client, hello: &types.AgentHello{Type: "hello", AgentID: "agent-1"}}
	time.Sleep(10 * time.Millisecond)

	hub.unregister <- client
	time.Sleep(10 * time.Millisecond)

	if hub.AgentCount() != 0 {
		t.Errorf("expected 0 agents after unregister, got %d", hub.AgentCount())
	}

	agent, err := hub.registry.Get("agent-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if agent.Status != types.AgentStatusOffline {
		t.Errorf("expected agent offline, got %s", agent.Status)
	}
}

func TestHubReconnectReplacesClient(t *testing.T) {
	hub := newTestHub()
	go hub.Run()

	first := mockClient(hub, "agent-1")
	second := mockClient(hub, "agent-1")
	hub.hello <- helloEnvelope{client: first, hello: &types.AgentHello{Type: "hello", AgentID: "agent-1"}}
	hub.hello <- helloEnvelope{client: second, hello: &types.AgentHello{Type: "hello", AgentID: "agent-1"}}
	time.Sleep(10 * time.Millisecond)

	if hub.AgentCount() != 1 {
		t.Errorf("expected 1 agent after reconnect, got %d", hub.AgentCount())
	}

	// stale unregister from the first connection must not evict the second
	hub.unregister <- first
	time.Sleep(10 * time.Millisecond)

	if hub.AgentCount() != 1 {
		t.Errorf("expected 1 agent after stale unregister, got %d", hub.AgentCount())
	}
}

func TestHubAvailabilityReachesRegistry(t *testing.T) {
	hub := newTestHub()
	go hub.Run()

	client := mockClient(hub, "agent-1")
	hub.hello <- helloEnvelope{client: client, hello: &types.AgentHello{Type: "hello", AgentID: "agent-1"}}
	time.Sleep(10 * time.Millisecond)

	hub.availability <- &types.AgentAvailability{Type: "availability", AgentID: "agent-1", Available: true}
	time.Sleep(10 * time.Millisecond)

	agent, _ := hub.registry.Get("agent-1")
	if !agent.IsAvailable {
		t.Error("expected agent to be available")
	}

	hub.statusChange <- &types.AgentStatusChange{Type: "status_change", AgentID: "agent-1", Status: types.AgentStatusBreak}
	time.Sleep(10 * time.Millisecond)

	agent, _ = hub.registry.Get("agent-1")
	if agent.Status != types.AgentStatusBreak {
		t.Errorf("expected status break, got %s", agent.Status)
	}
}

func TestSendToAgent(t *testing.T) {
	hub := newTestHub()
	go hub.Run()

	client := mockClient(hub, "agent-1")
	hub.hello <- helloEnvelope{client: client, hello: &types.AgentHello{Type: "hello", AgentID: "agent-1"}}
	time.Sleep(10 * time.Millisecond)
	<-client.send // drain the ack

	message := []byte("test payload")
	if !hub.SendToAgent("agent-1", message) {
		t.Fatal("expected send to succeed")
	}

	select {
	case msg := <-client.send:
		if string(msg) != string(message) {
			t.Errorf("expected %s, got %s", message, msg)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("client did not receive message")
	}

	if hub.SendToAgent("agent-unknown", message) {
		t.Error("expected send to unknown agent to fail")
	}
}

func TestNewAgentClientCarriesConfig(t *testing.T) {
	hub := newTestHub()
	cfg := &config.Config{
		PongWait:       45 * time.Second,
		PingPeriod:     40 * time.Second,
		WriteWait:      5 * time.Second,
		MaxMessageSize: 2048,
	}

	client := NewAgentClient(hub, nil, cfg, zerolog.Nop())

	if client.config.PongWait != 45*time.Second {
		t.Errorf("expected pong wait 45s, got %s", client.config.PongWait)
	}
	if client.config.PingPeriod != 40*time.Second {
		t.Errorf("expected ping period 40s, got %s", client.config.PingPeriod)
	}
	if client.config.WriteWait != 5*time.Second {
		t.Errorf("expected write wait 5s, got %s", client.config.WriteWait)
	}
	if client.config.MaxMessageSize != 2048 {
		t.Errorf("expected max message size 2048, got %d", client.config.MaxMessageSize)
	}
	if client.send == nil || client.done == nil {
		t.Error("expected send and done channels to be initialized")
	}
}

func TestBroadcast(t *testing.T) {
	hub := newTestHub()
	go hub.Run()

	first := mockClient(hub, "agent-1")
	second := mockClient(hub, "agent-2")
	hub.hello <- helloEnvelope{client: first, hello: &types.AgentHello{Type: "hello", AgentID: "agent-1"}}
	hub.hello <- helloEnvelope{client: second, hello: &types.AgentHello{Type: "hello", AgentID: "agent-2"}}
	time.Sleep(10 * time.Millisecond)
	<-first.send // drain the acks
	<-second.send

	message := []byte("queue update")
	if got := hub.Broadcast(message); got != 2 {
		t.Errorf("expected broadcast to reach 2 agents, got %d", got)
	}

	for _, client := range []*AgentClient{first, second} {
		select {
		case msg := <-client.send:
			if string(msg) != string(message) {
				t.Errorf("expected %s, got %s", message, msg)
			}
		case <-time.After(100 * time.Millisecond):
			t.Error("client did not receive broadcast")
		}
	}
}
