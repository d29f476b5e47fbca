package methods

import (
	"context"
	"encoding/json"

	"github.com/nextlevelbuilder/goclaw/internal/gateway"
	"github.com/nextlevelbuilder/goclaw/internal/store"
	"github.com/nextlevelbuilder/goclaw/pkg/protocol"
)

// SessionsMethods exposes session bookkeeping over the gateway's RPC
// channel: listing, pagination, and operator-triggered reset/delete.
type SessionsMethods struct {
	sessions store.SessionStore
}

// NewSessionsMethods creates a new handler for session management.
func NewSessionsMethods(sessions store.SessionStore) *SessionsMethods {
	return &SessionsMethods{sessions: sessions}
}

// Register binds the sessions.* methods.
func (m *SessionsMethods) Register(router *gateway.MethodRouter) {
	router.Register(protocol.MethodSessionsList, m.handleList)
	router.Register(protocol.MethodSessionsDelete, m.handleDelete)
	router.Register(protocol.MethodSessionsReset, m.handleReset)
}

func (m *SessionsMethods) handleList(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var params struct {
		AgentID string `json:"agent_id"`
		Limit   int    `json:"limit"`
		Offset  int    `json:"offset"`
	}
	if req.Params != nil {
		json.Unmarshal(req.Params, &params)
	}

	if params.Limit <= 0 {
		client.SendResponse(protocol.NewOKResponse(req.ID, map[string]interface{}{
			"sessions": m.sessions.List(params.AgentID),
		}))
		return
	}

	result := m.sessions.ListPaged(store.SessionListOpts{
		AgentID: params.AgentID,
		Limit:   params.Limit,
		Offset:  params.Offset,
	})
	client.SendResponse(protocol.NewOKResponse(req.ID, result))
}

func (m *SessionsMethods) handleDelete(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var params struct {
		Key string `json:"key"`
	}
	if req.Params != nil {
		json.Unmarshal(req.Params, &params)
	}
	if params.Key == "" {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInvalidRequest, "key is required"))
		return
	}
	if err := m.sessions.Delete(params.Key); err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInternal, "failed to delete session: "+err.Error()))
		return
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]interface{}{"status": "deleted"}))
}

func (m *SessionsMethods) handleReset(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var params struct {
		Key string `json:"key"`
	}
	if req.Params != nil {
		json.Unmarshal(req.Params, &params)
	}
	if params.Key == "" {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInvalidRequest, "key is required"))
		return
	}
	m.sessions.Reset(params.Key)
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]interface{}{"status": "reset"}))
}
