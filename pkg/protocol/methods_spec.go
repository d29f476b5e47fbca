package protocol

// Additional RPC methods named directly in the control-plane surface:
// agent invocation/cancellation, cross-session coordination, config
// mutation/reload, channel lifecycle, and device-local node dispatch.
// Kept in their own file alongside the teacher's existing Method*
// constants rather than renaming any of them.
const (
	MethodAgentInvoke = "agent.invoke"
	MethodAgentCancel = "agent.cancel"

	MethodSendOutbound = "send.outbound"

	MethodSessionsSend    = "sessions.send"
	MethodSessionsHistory = "sessions.history"

	MethodConfigUpdate = "config.update"
	MethodConfigReload = "config.reload"

	MethodChannelsRestart = "channels.restart"

	MethodNodeList     = "node.list"
	MethodNodeDescribe = "node.describe"
	MethodNodeInvoke   = "node.invoke"

	MethodApprovalDecide = "approval.decide"
)
