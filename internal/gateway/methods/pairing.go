package methods

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/gateway"
	"github.com/nextlevelbuilder/goclaw/internal/store"
	"github.com/nextlevelbuilder/goclaw/pkg/protocol"
)

// defaultPairingTTL bounds how long an issued token stays redeemable.
const defaultPairingTTL = 15 * time.Minute

// PairingMethods exposes bearer-token pairing (device.pair.*) so an
// operator can mint and revoke enrollment tokens for new nodes/channels.
type PairingMethods struct {
	store store.PairingStore
}

// NewPairingMethods creates a new handler for pairing token management.
func NewPairingMethods(s store.PairingStore) *PairingMethods {
	return &PairingMethods{store: s}
}

// Register binds the device.pair.* methods.
func (m *PairingMethods) Register(router *gateway.MethodRouter) {
	router.Register(protocol.MethodPairingRequest, m.handleRequest)
	router.Register(protocol.MethodPairingList, m.handleList)
	router.Register(protocol.MethodPairingRevoke, m.handleRevoke)
}

func (m *PairingMethods) handleRequest(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var params struct {
		Role string `json:"role"`
	}
	if req.Params != nil {
		json.Unmarshal(req.Params, &params)
	}
	if params.Role == "" {
		params.Role = "operator"
	}

	token, expiresAt, err := m.store.Issue(params.Role, defaultPairingTTL)
	if err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInternal, "failed to issue pairing token: "+err.Error()))
		return
	}

	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]interface{}{
		"token":      token,
		"role":       params.Role,
		"expires_at": expiresAt,
	}))
}

func (m *PairingMethods) handleList(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	records, err := m.store.List()
	if err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInternal, "failed to list pairing records: "+err.Error()))
		return
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]interface{}{"pairings": records}))
}

func (m *PairingMethods) handleRevoke(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var params struct {
		Token string `json:"token"`
	}
	if req.Params != nil {
		json.Unmarshal(req.Params, &params)
	}
	if err := m.store.Revoke(params.Token); err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInvalidRequest, "failed to revoke pairing token: "+err.Error()))
		return
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]interface{}{"status": "revoked"}))
}
