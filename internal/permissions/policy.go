// Package permissions implements role-based access control over the
// gateway's RPC surface. A connection's role is fixed at handshake (see
// gateway.Server.authenticate) and never escalates for the lifetime of the
// connection.
package permissions

import (
	"strings"
	"sync"
)

// Role is the connection role named in the hello frame. This package stays
// leaf-level (no dependency on gateway or identity) the way the teacher
// keeps internal/tools free of internal/agent.
type Role string

const (
	RoleOperator Role = "operator"
	RoleNode     Role = "node"
	RoleChannel  Role = "channel"
	RoleReadOnly Role = "read-only"
)

// methodAllow maps an RPC method namespace prefix to the roles permitted to
// call it. Namespaces follow pkg/protocol's method constants.
var methodAllow = map[string][]Role{
	"agent.":    {RoleOperator, RoleChannel},
	"chat.":     {RoleOperator, RoleChannel, RoleReadOnly},
	"send.":     {RoleOperator, RoleChannel},
	"sessions.": {RoleOperator, RoleChannel},
	"config.":   {RoleOperator},
	"channels.": {RoleOperator},
	"node.":     {RoleOperator, RoleNode},
}

// PolicyEngine gates RPC methods by connection role and tracks which
// sender IDs are configured as the installation's owner(s).
type PolicyEngine struct {
	mu       sync.RWMutex
	ownerIDs map[string]bool
}

// NewPolicyEngine builds a policy engine. ownerIDs identifies senders who
// are always treated as the operator regardless of channel-level allowlists.
func NewPolicyEngine(ownerIDs []string) *PolicyEngine {
	set := make(map[string]bool, len(ownerIDs))
	for _, id := range ownerIDs {
		if id != "" {
			set[id] = true
		}
	}
	return &PolicyEngine{ownerIDs: set}
}

// IsOwner reports whether senderID is configured as an owner.
func (p *PolicyEngine) IsOwner(senderID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ownerIDs[senderID]
}

// SetOwnerIDs replaces the owner set, used on config hot-reload.
func (p *PolicyEngine) SetOwnerIDs(ownerIDs []string) {
	set := make(map[string]bool, len(ownerIDs))
	for _, id := range ownerIDs {
		if id != "" {
			set[id] = true
		}
	}
	p.mu.Lock()
	p.ownerIDs = set
	p.mu.Unlock()
}

// Allow reports whether a connection with the given role may invoke
// method. Unknown method namespaces are denied by default (closed policy);
// the gateway responds with UnknownMethod rather than dispatching.
func (p *PolicyEngine) Allow(role Role, method string) bool {
	for prefix, roles := range methodAllow {
		if strings.HasPrefix(method, prefix) {
			for _, r := range roles {
				if r == role {
					return true
				}
			}
			return false
		}
	}
	return false
}
