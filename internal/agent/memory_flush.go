package agent

import (
	"context"
	"log/slog"
	"time"

	contextpkg "github.com/nextlevelbuilder/goclaw/internal/context"
	"github.com/nextlevelbuilder/goclaw/internal/providers"
)

// memoryFlushEvent is the AgentEvent type emitted when a flush turn
// produces something worth persisting. Managed mode subscribes to this to
// write the content into the agent's durable memory store; standalone mode
// just logs it.
const memoryFlushEvent = "memory.flush"

// shouldRunMemoryFlush reports whether sessionKey needs a pre-compaction
// memory flush right now: memory must be enabled for this agent and for
// this flush config, and the session's estimated size must be within
// SoftThresholdTokens of the context window (the point at which
// maybeSummarize is about to truncate history). Each session only flushes
// once per growth past that threshold — memoryFlushed tracks the history
// length the last flush ran at.
func (l *Loop) shouldRunMemoryFlush(sessionKey string, tokenEstimate int, settings contextpkg.MemoryFlushSettings) bool {
	if !settings.Enabled || !l.hasMemory || l.contextWindow <= 0 {
		return false
	}

	if tokenEstimate < l.contextWindow-settings.SoftThresholdTokens {
		return false
	}

	history := l.sessions.GetHistory(sessionKey)
	if v, ok := l.memoryFlushed.Load(sessionKey); ok {
		if lastLen, ok := v.(int); ok && lastLen == len(history) {
			return false
		}
	}
	return true
}

// runMemoryFlush asks the model, synchronously, to write down anything
// durable worth remembering before maybeSummarize truncates the history it
// would otherwise reason from. Runs inline (not backgrounded) so it
// completes before the caller's own summarization goroutine starts
// dropping messages.
func (l *Loop) runMemoryFlush(ctx context.Context, sessionKey string, settings contextpkg.MemoryFlushSettings) {
	history := l.sessions.GetHistory(sessionKey)
	l.memoryFlushed.Store(sessionKey, len(history))

	fctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	messages := append([]providers.Message{}, history...)
	messages = append(messages, providers.Message{Role: "user", Content: settings.Prompt})

	resp, err := l.provider.Chat(fctx, providers.ChatRequest{
		Messages: messages,
		Model:    l.model,
		Options: map[string]interface{}{
			providers.OptMaxTokens:   1024,
			providers.OptTemperature: 0.2,
		},
	})
	if err != nil {
		slog.Warn("memory flush failed", "session", sessionKey, "error", err)
		return
	}

	content := SanitizeAssistantContent(resp.Content)
	if content == "" {
		return
	}

	l.emit(AgentEvent{
		Type:    memoryFlushEvent,
		AgentID: l.id,
		Payload: map[string]string{
			"sessionKey": sessionKey,
			"content":    content,
		},
	})
}
