package methods

import (
	"context"
	"encoding/json"

	"github.com/nextlevelbuilder/goclaw/internal/gateway"
	"github.com/nextlevelbuilder/goclaw/internal/tools"
	"github.com/nextlevelbuilder/goclaw/pkg/protocol"
)

// ApprovalsMethods resolves pending exec-tool approvals from an
// operator-facing client (exec.approval.approve / exec.approval.deny).
type ApprovalsMethods struct {
	mgr *tools.ExecApprovalManager
}

// NewApprovalsMethods creates a new handler bound to the exec approval
// manager wired into the gateway's tool registry.
func NewApprovalsMethods(mgr *tools.ExecApprovalManager) *ApprovalsMethods {
	return &ApprovalsMethods{mgr: mgr}
}

// Register binds the exec.approval.* methods.
func (m *ApprovalsMethods) Register(router *gateway.MethodRouter) {
	router.Register(protocol.MethodApprovalsApprove, m.handleDecide(true))
	router.Register(protocol.MethodApprovalsDeny, m.handleDecide(false))
}

func (m *ApprovalsMethods) handleDecide(grant bool) gateway.HandlerFunc {
	return func(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
		var params struct {
			ApprovalID string `json:"approval_id"`
		}
		if req.Params != nil {
			json.Unmarshal(req.Params, &params)
		}
		if params.ApprovalID == "" {
			client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInvalidRequest, "approval_id is required"))
			return
		}
		if err := m.mgr.Decide(params.ApprovalID, grant); err != nil {
			client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInternal, "failed to resolve approval: "+err.Error()))
			return
		}
		client.SendResponse(protocol.NewOKResponse(req.ID, map[string]interface{}{"status": "resolved"}))
	}
}
