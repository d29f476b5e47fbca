package methods

import (
	"context"

	"github.com/nextlevelbuilder/goclaw/internal/agent"
	"github.com/nextlevelbuilder/goclaw/internal/gateway"
	"github.com/nextlevelbuilder/goclaw/pkg/protocol"
)

// AgentsMethods exposes the configured agent roster (agents.list). Single-
// operator deployments configure agents entirely from config.json, so
// there is no create/update/delete surface — that would need a database.
type AgentsMethods struct {
	router *agent.Router
}

// NewAgentsMethods creates a new handler for agent roster queries.
func NewAgentsMethods(router *agent.Router) *AgentsMethods {
	return &AgentsMethods{router: router}
}

// Register binds the agents.list method.
func (m *AgentsMethods) Register(router *gateway.MethodRouter) {
	router.Register(protocol.MethodAgentsList, m.handleList)
}

func (m *AgentsMethods) handleList(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]interface{}{
		"agents": m.router.List(),
	}))
}
