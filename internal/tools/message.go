package tools

import (
	"context"
	"fmt"

	"github.com/nextlevelbuilder/goclaw/internal/bus"
)

// MessageTool lets the agent send a message to the same channel/chat it is
// currently responding in, outside of its normal reply (e.g. a progress
// update sent mid-turn, or from a background/cron-triggered run).
type MessageTool struct {
	bus *bus.MessageBus
}

func NewMessageTool() *MessageTool {
	return &MessageTool{}
}

// SetMessageBus wires the bus used to deliver messages; registries call this
// after construction since the bus isn't always available at tool-registration time.
func (t *MessageTool) SetMessageBus(b *bus.MessageBus) {
	t.bus = b
}

func (t *MessageTool) Name() string { return "message" }
func (t *MessageTool) Description() string {
	return "Send a message to the user on the current channel, outside of the normal reply flow"
}
func (t *MessageTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"content": map[string]interface{}{
				"type":        "string",
				"description": "Message text to send",
			},
		},
		"required": []string{"content"},
	}
}

func (t *MessageTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	if t.bus == nil {
		return ErrorResult("message bus is not configured")
	}
	content, _ := args["content"].(string)
	if content == "" {
		return ErrorResult("content is required")
	}

	channel := ToolChannelFromCtx(ctx)
	chatID := ToolChatIDFromCtx(ctx)
	if channel == "" || chatID == "" {
		return ErrorResult("no active channel/chat to message")
	}

	t.bus.PublishOutbound(bus.OutboundMessage{
		Channel: channel,
		ChatID:  chatID,
		Content: content,
		Metadata: map[string]string{
			"peer_kind": ToolPeerKindFromCtx(ctx),
			"source":    "message_tool",
		},
	})

	return SilentResult(fmt.Sprintf("sent %d chars to %s", len(content), channel))
}
