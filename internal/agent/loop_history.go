package agent

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nextlevelbuilder/goclaw/internal/bootstrap"
	contextpkg "github.com/nextlevelbuilder/goclaw/internal/context"
	"github.com/nextlevelbuilder/goclaw/internal/providers"
	"github.com/nextlevelbuilder/goclaw/internal/sessions"
	"github.com/nextlevelbuilder/goclaw/pkg/protocol"
)

// buildMessages constructs the full message list for an LLM request.
// Returns the messages and whether BOOTSTRAP.md was present in context files
// (used by the caller for auto-cleanup without an extra DB roundtrip).
func (l *Loop) buildMessages(ctx context.Context, history []providers.Message, summary, userMessage, extraSystemPrompt, sessionKey, channel, userID string, historyLimit int) ([]providers.Message, bool) {
	var messages []providers.Message

	mode := PromptFull
	if sessions.IsSubagentSession(sessionKey) || sessions.IsCronSession(sessionKey) {
		mode = PromptMinimal
	}

	_, hasSpawn := l.tools.Get("spawn")
	_, hasSkillSearch := l.tools.Get("skill_search")

	// Per-user workspace: show the user's subdirectory in the system prompt (managed mode)
	promptWorkspace := l.workspace
	if l.agentUUID != uuid.Nil && userID != "" && l.workspace != "" {
		promptWorkspace = filepath.Join(l.workspace, sanitizePathSegment(userID))
	}

	// Resolve context files once — also detect BOOTSTRAP.md presence.
	contextFiles := l.resolveContextFiles(ctx, userID)
	hadBootstrap := false
	for _, cf := range contextFiles {
		if cf.Path == bootstrap.BootstrapFile {
			hadBootstrap = true
			break
		}
	}

	systemPrompt := BuildSystemPrompt(SystemPromptConfig{
		AgentID:        l.id,
		Model:          l.model,
		Workspace:      promptWorkspace,
		Channel:        channel,
		OwnerIDs:       l.ownerIDs,
		Mode:           mode,
		ToolNames:      l.tools.List(),
		SkillsSummary:  l.resolveSkillsSummary(),
		HasMemory:      l.hasMemory,
		HasSpawn:       l.tools != nil && hasSpawn,
		HasSkillSearch: hasSkillSearch,
		ContextFiles:   contextFiles,
		ExtraPrompt:    extraSystemPrompt,
		SandboxEnabled:        l.sandboxEnabled,
		SandboxContainerDir:   l.sandboxContainerDir,
		SandboxWorkspaceAccess: l.sandboxWorkspaceAccess,
	})

	messages = append(messages, providers.Message{
		Role:    "system",
		Content: systemPrompt,
	})

	// Semantic retrieval (optional): inject relevant prior context ahead of
	// history, counted against the bootstrap slice of the token budget.
	if preamble := l.resolveRetrievalPreamble(ctx, userMessage); preamble != "" {
		messages = append(messages, providers.Message{
			Role:    "user",
			Content: preamble,
		})
	}

	// Summary context
	if summary != "" {
		messages = append(messages, providers.Message{
			Role:    "user",
			Content: fmt.Sprintf("[Previous conversation summary]\n%s", summary),
		})
		messages = append(messages, providers.Message{
			Role:    "assistant",
			Content: "I understand the context from our previous conversation. How can I help you?",
		})
	}

	// History pipeline: limitHistoryTurns → pruneContext → sanitizeHistory.
	trimmed := limitHistoryTurns(history, historyLimit)
	pruned := contextpkg.PruneMessages(trimmed, l.contextWindow, l.contextPruningCfg)
	messages = append(messages, sanitizeHistory(pruned)...)

	// Current user message
	messages = append(messages, providers.Message{
		Role:    "user",
		Content: userMessage,
	})

	return messages, hadBootstrap
}

// resolveRetrievalPreamble queries the configured semantic retrieval
// backend (if any) with the current user message, packs whatever fits into
// the bootstrap slice's token budget, and renders it as a
// <relevant-prior-context> preamble. Returns "" when retrieval is disabled,
// finds nothing above the relevance floor, or the backend errors — semantic
// retrieval is an enrichment, never a blocking dependency of a run.
func (l *Loop) resolveRetrievalPreamble(ctx context.Context, userMessage string) string {
	if l.memorySearch == nil || userMessage == "" {
		return ""
	}

	plan := contextpkg.Allocate(l.contextWindow, l.compactionRatios(), 256)

	hits, err := l.memorySearch.Search(ctx, l.id, userMessage, l.memorySearchMaxChunks)
	if err != nil {
		slog.Warn("semantic retrieval failed, continuing without it", "agent", l.id, "error", err)
		return ""
	}
	if len(hits) == 0 {
		return ""
	}

	packed := contextpkg.PackRetrieval(hits, l.memorySearchMinScore, l.memorySearchMaxChunks, plan.Bootstrap)
	return contextpkg.RenderRetrievalPreamble(packed)
}

// resolveContextFiles merges base context files (from resolver, e.g. auto-generated
// delegation targets) with per-user files. Per-user files override same-name base files,
// but base-only files (like auto-injected delegation info) are preserved.
func (l *Loop) resolveContextFiles(ctx context.Context, userID string) []bootstrap.ContextFile {
	if l.contextFileLoader == nil || userID == "" {
		return l.contextFiles
	}
	userFiles := l.contextFileLoader(ctx, l.agentUUID, userID, l.agentType)
	if len(userFiles) == 0 {
		return l.contextFiles
	}
	if len(l.contextFiles) == 0 {
		return userFiles
	}

	// Merge: start with per-user files, then append base-only files
	userSet := make(map[string]struct{}, len(userFiles))
	for _, f := range userFiles {
		userSet[f.Path] = struct{}{}
	}
	merged := make([]bootstrap.ContextFile, len(userFiles))
	copy(merged, userFiles)
	for _, base := range l.contextFiles {
		if _, exists := userSet[base.Path]; !exists {
			merged = append(merged, base)
		}
	}
	return merged
}

// Hybrid skill thresholds: when skill count and total token estimate are below
// these limits, inline all skills as XML in the system prompt (like TS).
// Above these limits, only include skill_search instructions.
const (
	skillInlineMaxCount  = 20   // max skills to inline
	skillInlineMaxTokens = 3500 // max estimated tokens for skill descriptions
)

// resolveSkillsSummary dynamically builds the skills summary for the system prompt.
// Called per-message so it picks up hot-reloaded skills automatically.
// Returns the inline XML summary, or "" when there are no skills or they exceed
// the inline limits (the system prompt then points at skill_search instead).
func (l *Loop) resolveSkillsSummary() string {
	if l.skillsLoader == nil {
		return ""
	}

	filtered := l.skillsLoader.FilterSkills(l.skillAllowList)
	if len(filtered) == 0 {
		return ""
	}

	// Estimate tokens: ~1 token per 4 chars for name+description
	totalChars := 0
	for _, s := range filtered {
		totalChars += len(s.Name) + len(s.Description) + 10 // +10 for XML tags overhead
	}
	estimatedTokens := totalChars / 4

	if len(filtered) <= skillInlineMaxCount && estimatedTokens <= skillInlineMaxTokens {
		// Inline mode: build full XML summary
		return l.skillsLoader.BuildSummary(l.skillAllowList)
	}

	// Search mode: no XML in prompt, agent uses skill_search tool
	return ""
}

// limitHistoryTurns keeps only the last N user turns (and their associated
// assistant/tool messages) from history. A "turn" = one user message plus
// all subsequent non-user messages until the next user message.
// Matching TS src/agents/pi-embedded-runner/history.ts limitHistoryTurns().
func limitHistoryTurns(msgs []providers.Message, limit int) []providers.Message {
	if limit <= 0 || len(msgs) == 0 {
		return msgs
	}

	// Walk backwards counting user messages.
	userCount := 0
	lastUserIndex := len(msgs)

	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			userCount++
			if userCount > limit {
				return msgs[lastUserIndex:]
			}
			lastUserIndex = i
		}
	}

	return msgs
}

// sanitizeHistory repairs tool_use/tool_result pairing in session history.
// Matching TS session-transcript-repair.ts sanitizeToolUseResultPairing().
//
// Problems this fixes:
//   - Orphaned tool messages at start of history (after truncation)
//   - tool_result without matching tool_use in preceding assistant message
//   - assistant with tool_calls but missing tool_results
func sanitizeHistory(msgs []providers.Message) []providers.Message {
	if len(msgs) == 0 {
		return msgs
	}

	// 1. Skip leading orphaned tool messages (no preceding assistant with tool_calls).
	start := 0
	for start < len(msgs) && msgs[start].Role == "tool" {
		slog.Warn("dropping orphaned tool message at history start",
			"tool_call_id", msgs[start].ToolCallID)
		start++
	}

	if start >= len(msgs) {
		return nil
	}

	// 2. Walk through messages ensuring tool_result follows matching tool_use.
	var result []providers.Message
	for i := start; i < len(msgs); i++ {
		msg := msgs[i]

		if msg.Role == "assistant" && len(msg.ToolCalls) > 0 {
			// Collect expected tool call IDs
			expectedIDs := make(map[string]bool, len(msg.ToolCalls))
			for _, tc := range msg.ToolCalls {
				expectedIDs[tc.ID] = true
			}

			result = append(result, msg)

			// Collect matching tool results that follow
			for i+1 < len(msgs) && msgs[i+1].Role == "tool" {
				i++
				toolMsg := msgs[i]
				if expectedIDs[toolMsg.ToolCallID] {
					result = append(result, toolMsg)
					delete(expectedIDs, toolMsg.ToolCallID)
				} else {
					slog.Warn("dropping mismatched tool result",
						"tool_call_id", toolMsg.ToolCallID)
				}
			}

			// Synthesize missing tool results
			for id := range expectedIDs {
				slog.Warn("synthesizing missing tool result", "tool_call_id", id)
				result = append(result, providers.Message{
					Role:       "tool",
					Content:    "[Tool result missing — session was compacted]",
					ToolCallID: id,
				})
			}
		} else if msg.Role == "tool" {
			// Orphaned tool message mid-history (no preceding assistant with matching tool_calls)
			slog.Warn("dropping orphaned tool message mid-history",
				"tool_call_id", msg.ToolCallID)
		} else {
			result = append(result, msg)
		}
	}

	return result
}

// compactionRatios turns the loop's configured history share into a full
// budget.Ratios so Allocate/Reclaim — not an ad hoc percentage — decide how
// many history tokens a compaction decision has to work with.
func (l *Loop) compactionRatios() contextpkg.Ratios {
	historyShare := 0.75
	if l.compactionCfg != nil && l.compactionCfg.MaxHistoryShare > 0 {
		historyShare = l.compactionCfg.MaxHistoryShare
	}
	return contextpkg.Ratios{
		SystemPrompt: 0.08,
		Bootstrap:    0.02,
		History:      historyShare,
		Response:     0.15,
	}
}

func (l *Loop) maybeSummarize(ctx context.Context, sessionKey string) {
	history := l.sessions.GetHistory(sessionKey)

	// Use calibrated token estimation when available.
	lastPT, lastMC := l.sessions.GetLastPromptTokens(sessionKey)
	tokenEstimate := contextpkg.EstimateTokensWithCalibration(history, lastPT, lastMC)

	minMessages := 50
	if l.compactionCfg != nil && l.compactionCfg.MinMessages > 0 {
		minMessages = l.compactionCfg.MinMessages
	}

	plan := contextpkg.Allocate(l.contextWindow, l.compactionRatios(), 256)
	historyBudget := plan.History

	if len(history) <= minMessages && tokenEstimate <= historyBudget {
		return
	}

	// Per-session lock: prevent concurrent summarize+flush goroutines for the same session.
	// TryLock is non-blocking — if another run is already summarizing this session, skip.
	// The next run will trigger summarization again if still needed.
	muI, _ := l.summarizeMu.LoadOrStore(sessionKey, &sync.Mutex{})
	sessionMu := muI.(*sync.Mutex)
	if !sessionMu.TryLock() {
		slog.Debug("summarization already in progress, skipping", "session", sessionKey)
		return
	}

	// Memory flush runs synchronously INSIDE the guard
	// (so concurrent runs don't both trigger flush for the same compaction cycle).
	flushSettings := contextpkg.ResolveMemoryFlushSettings(l.compactionCfg)
	if l.shouldRunMemoryFlush(sessionKey, tokenEstimate, flushSettings) {
		l.runMemoryFlush(ctx, sessionKey, flushSettings)
	}

	rsSettings := contextpkg.ResolveRollingSummarySettings(l.compactionCfg)

	keepLast := 4
	if l.compactionCfg != nil && l.compactionCfg.KeepLastMessages > 0 {
		keepLast = l.compactionCfg.KeepLastMessages
	}

	// Summarize in background (holds the per-session lock until done)
	go func() {
		defer sessionMu.Unlock()

		// Re-check: history may have been truncated by a concurrent summarize
		// that finished between our threshold check and acquiring the lock.
		history := l.sessions.GetHistory(sessionKey)
		if len(history) <= keepLast {
			return
		}

		sctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
		defer cancel()

		if rsSettings.Enabled && contextpkg.ShouldRollingSummarize(tokenEstimate, l.contextWindow, rsSettings) {
			l.rollingSummarize(sctx, sessionKey, history, rsSettings, historyBudget)
			return
		}

		l.tokenTrim(sessionKey, history, historyBudget)
	}()
}

// rollingSummarize implements the windowed strategy: the last WindowSize
// user turns stay verbatim, everything older is folded into the session's
// running summary via a staged, chunked summarizer call per chunk (each
// chunk sized to fit comfortably within one model call). A chunk failure
// aborts the whole pass and falls back to a plain token-trim — the rolling
// summary never partially commits a chunked update that skips chunks.
func (l *Loop) rollingSummarize(ctx context.Context, sessionKey string, history []providers.Message, settings contextpkg.RollingSummarySettings, historyBudget int) {
	older, recent := contextpkg.SplitWindow(history, settings.WindowSize)
	if len(older) == 0 {
		return
	}

	existingSummary := l.sessions.GetSummary(sessionKey)
	chunks := contextpkg.ChunkForSummary(older, l.contextWindow)

	runningSummary := existingSummary
	for _, chunk := range chunks {
		var sb string
		for _, m := range chunk {
			if m.Role == "user" {
				sb += fmt.Sprintf("user: %s\n", m.Content)
			} else if m.Role == "assistant" {
				sb += fmt.Sprintf("assistant: %s\n", SanitizeAssistantContent(m.Content))
			}
		}

		prompt := contextpkg.PreservationPrompt + "\n\n"
		if runningSummary != "" {
			prompt += "Prior summary so far:\n" + runningSummary + "\n\n"
		}
		prompt += "Conversation excerpt:\n" + sb

		resp, err := l.provider.Chat(ctx, providers.ChatRequest{
			Messages: []providers.Message{{Role: "user", Content: prompt}},
			Model:    l.model,
			Options:  map[string]interface{}{"max_tokens": 1024, "temperature": 0.3},
		})
		if err != nil {
			slog.Warn("rolling summarization chunk failed, falling back to token-trim", "session", sessionKey, "error", err)
			l.emit(AgentEvent{
				Type:    protocol.AgentEventContextAlert,
				AgentID: l.id,
				Payload: map[string]string{
					"reason":  "rolling_summary_chunk_failed",
					"session": sessionKey,
					"error":   err.Error(),
				},
			})
			l.tokenTrim(sessionKey, history, historyBudget)
			return
		}
		runningSummary = SanitizeAssistantContent(resp.Content)
	}

	l.sessions.SetSummary(sessionKey, runningSummary)
	l.sessions.TruncateHistory(sessionKey, len(recent))
	l.sessions.IncrementCompaction(sessionKey)
	l.sessions.Save(sessionKey)
}

// tokenTrim is the no-LLM fallback: drop oldest-first until history fits
// historyBudget, always preserving the last preserveRecentTurns user turns
// and realigning the cut to the next user-role message.
func (l *Loop) tokenTrim(sessionKey string, history []providers.Message, historyBudget int) {
	trimmed, overBudget := contextpkg.TrimToBudget(history, historyBudget, 0)
	if overBudget {
		slog.Warn("token-trim could not fit history within budget even after preserving recent turns", "session", sessionKey)
	}
	if len(trimmed) >= len(history) {
		return
	}
	l.sessions.TruncateHistory(sessionKey, len(trimmed))
	l.sessions.IncrementCompaction(sessionKey)
	l.sessions.Save(sessionKey)
}
