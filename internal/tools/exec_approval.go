package tools

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/approval"
)

// ExecSecurity selects the baseline posture for shell command execution,
// independent of the operator ask-mode below.
type ExecSecurity string

const (
	ExecSecurityDeny      ExecSecurity = "deny"      // refuse every command outright
	ExecSecurityAllowlist ExecSecurity = "allowlist"  // only glob-matched commands run
	ExecSecurityFull      ExecSecurity = "full"       // any command not caught by deny patterns runs
)

// ExecAskMode selects when an otherwise-permitted command still pauses for
// an operator decision via the approval broker.
type ExecAskMode string

const (
	ExecAskOff    ExecAskMode = "off"     // never ask
	ExecAskOnMiss ExecAskMode = "on-miss" // ask only when Security==allowlist and no pattern matches
	ExecAskAlways ExecAskMode = "always"  // ask before every command
)

// ApprovalDecision mirrors approval.Decision at the exec-tool boundary so
// callers of this package don't need to import internal/approval directly.
type ApprovalDecision string

const (
	ApprovalGrant ApprovalDecision = ApprovalDecision(approval.Granted)
	ApprovalDeny  ApprovalDecision = ApprovalDecision(approval.Denied)
)

// ExecApprovalConfig configures the exec approval pipeline.
type ExecApprovalConfig struct {
	Security  ExecSecurity
	Ask       ExecAskMode
	Allowlist []string // glob patterns, matched against the full command line
}

// DefaultExecApprovalConfig returns the conservative default: any command
// is permitted (deny-pattern list in ExecTool already blocks the dangerous
// ones) and the operator is never interrupted.
func DefaultExecApprovalConfig() ExecApprovalConfig {
	return ExecApprovalConfig{Security: ExecSecurityFull, Ask: ExecAskOff}
}

// ApprovalAware is implemented by tools that can have an ExecApprovalManager
// wired in after construction (the registry builds tools before the
// approval system is configured from cfg.Tools.ExecApproval).
type ApprovalAware interface {
	SetApprovalManager(mgr *ExecApprovalManager, agentID string)
}

// ExecApprovalManager applies the exec-specific security/ask pipeline in
// front of the generic approval broker: CheckCommand decides whether a
// command is denied, allowed outright, or must pause for a decision;
// RequestApproval mediates that pause through the broker's digest-bound,
// TTL-expiring approval record.
type ExecApprovalManager struct {
	cfg    ExecApprovalConfig
	broker *approval.Broker
}

// NewExecApprovalManager builds a manager with its own broker instance (a
// 2-minute default TTL matches the per-call timeout exec tools request).
func NewExecApprovalManager(cfg ExecApprovalConfig) *ExecApprovalManager {
	return &ExecApprovalManager{cfg: cfg, broker: approval.NewBroker(2 * time.Minute)}
}

// OnRequested forwards to the underlying broker so the gateway can publish
// approval.requested events for pending exec decisions.
func (m *ExecApprovalManager) OnRequested(f func(approval.Record, map[string]interface{})) {
	m.broker.OnRequested(f)
}

// CheckCommand classifies a command line before execution: "deny" refuses
// outright, "ask" requires an operator decision, "" allows immediately.
func (m *ExecApprovalManager) CheckCommand(command string) string {
	switch m.cfg.Security {
	case ExecSecurityDeny:
		return "deny"

	case ExecSecurityAllowlist:
		if matchesAnyGlob(m.cfg.Allowlist, command) {
			if m.cfg.Ask == ExecAskAlways {
				return "ask"
			}
			return ""
		}
		if m.cfg.Ask == ExecAskOnMiss || m.cfg.Ask == ExecAskAlways {
			return "ask"
		}
		return "deny"

	default: // ExecSecurityFull
		if m.cfg.Ask == ExecAskAlways {
			return "ask"
		}
		return ""
	}
}

// RequestApproval issues an approvalId for command, blocking up to timeout
// for the operator's decision via the approval broker.
func (m *ExecApprovalManager) RequestApproval(command, agentID string, timeout time.Duration) (ApprovalDecision, error) {
	args := map[string]interface{}{"command": command}
	rec := m.broker.Request(agentID, "exec", args, map[string]interface{}{"command": redactCommandPreview(command)})

	resolved, err := m.broker.Wait(context.Background(), rec.ApprovalID, timeout)
	if err != nil {
		return ApprovalDeny, err
	}

	switch resolved.State {
	case approval.StateGranted:
		if _, err := m.broker.Consume(resolved.ApprovalID, args); err != nil {
			return ApprovalDeny, err
		}
		return ApprovalGrant, nil
	default:
		return ApprovalDeny, nil
	}
}

// Decide resolves a pending exec approval from an operator-facing RPC
// (approval.decide / approvals.approve / approvals.deny).
func (m *ExecApprovalManager) Decide(approvalID string, grant bool) error {
	decision := approval.Denied
	if grant {
		decision = approval.Granted
	}
	_, err := m.broker.Decide(approvalID, decision)
	return err
}

func matchesAnyGlob(patterns []string, command string) bool {
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, command); ok {
			return true
		}
		// Also match against just the first token (the binary name), the
		// common case for allowlist entries like "git" or "ls".
		if fields := strings.Fields(command); len(fields) > 0 {
			if ok, _ := filepath.Match(p, fields[0]); ok {
				return true
			}
		}
	}
	return false
}

// redactCommandPreview truncates an overlong command before it's surfaced
// in an approval.requested event payload.
func redactCommandPreview(command string) string {
	const maxLen = 500
	if len(command) <= maxLen {
		return command
	}
	return command[:maxLen] + "…"
}
