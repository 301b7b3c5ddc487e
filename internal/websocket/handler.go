package websocket

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/mmeink/livechat/backend/internal/config"
	"github.com/rs/zerolog"
)

// agentUpgrader is the WebSocket upgrader for agent connections
var agentUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking happens in the CORS layer; the auth
		// middleware has already validated the token by this point
		return true
	},
}

// AgentHandler handles WebSocket upgrade requests from agent consoles
type AgentHandler struct {
	hub    *AgentHub
	config *config.Config
	logger zerolog.Logger
}

// NewAgentHandler creates a new AgentHandler
func NewAgentHandler(hub *AgentHub, cfg *config.Config, logger zerolog.Logger) *AgentHandler {
	return &AgentHandler{
		hub:    hub,
		config: cfg,
		logger: logger,
	}
}

// ServeHTTP upgrades the connection and starts the client pumps. The
// agent identifies itself with a hello message; until then the
// connection receives nothing.
func (h *AgentHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := agentUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to upgrade agent connection")
		return
	}

	client := NewAgentClient(h.hub, conn, h.config, h.logger)
	client.Start()
}
