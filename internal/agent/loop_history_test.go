package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/nextlevelbuilder/goclaw/internal/config"
	contextpkg "github.com/nextlevelbuilder/goclaw/internal/context"
	"github.com/nextlevelbuilder/goclaw/internal/providers"
	"github.com/nextlevelbuilder/goclaw/internal/sessions"
	"github.com/nextlevelbuilder/goclaw/internal/store/file"
)

func TestLimitHistoryTurnsKeepsLastN(t *testing.T) {
	var history []providers.Message
	for i := 0; i < 6; i++ {
		history = append(history,
			providers.Message{Role: "user", Content: "q"},
			providers.Message{Role: "assistant", Content: "a"},
		)
	}
	limited := limitHistoryTurns(history, 2)
	userCount := 0
	for _, m := range limited {
		if m.Role == "user" {
			userCount++
		}
	}
	if userCount != 2 {
		t.Fatalf("expected 2 user turns, got %d", userCount)
	}
}

func TestSanitizeHistoryDropsLeadingOrphanedToolMessage(t *testing.T) {
	history := []providers.Message{
		{Role: "tool", Content: "orphan", ToolCallID: "missing"},
		{Role: "user", Content: "hello"},
	}
	result := sanitizeHistory(history)
	if len(result) != 1 || result[0].Role != "user" {
		t.Fatalf("expected only the user message to survive, got %+v", result)
	}
}

func TestSanitizeHistorySynthesizesMissingToolResult(t *testing.T) {
	history := []providers.Message{
		{Role: "assistant", ToolCalls: []providers.ToolCall{{ID: "call-1", Name: "read_file"}}},
	}
	result := sanitizeHistory(history)
	if len(result) != 2 {
		t.Fatalf("expected assistant message plus synthesized tool result, got %d messages", len(result))
	}
	if result[1].Role != "tool" || result[1].ToolCallID != "call-1" {
		t.Fatalf("expected synthesized tool result for call-1, got %+v", result[1])
	}
}

func TestCompactionRatiosUsesConfiguredHistoryShare(t *testing.T) {
	l := &Loop{compactionCfg: &config.CompactionConfig{MaxHistoryShare: 0.5}}
	ratios := l.compactionRatios()
	if ratios.History != 0.5 {
		t.Errorf("history ratio = %v, want 0.5", ratios.History)
	}
}

func TestCompactionRatiosDefaultsWithoutConfig(t *testing.T) {
	l := &Loop{}
	ratios := l.compactionRatios()
	if ratios.History != 0.75 {
		t.Errorf("history ratio = %v, want default 0.75", ratios.History)
	}
}

func newTestLoopWithSessions(t *testing.T, provider providers.Provider) (*Loop, string) {
	t.Helper()
	mgr := sessions.NewManager(t.TempDir())
	store := file.NewFileSessionStore(mgr)
	key := sessions.SessionKey("default", "history-test")

	l := NewLoop(LoopConfig{
		ID:            "agent-1",
		Provider:      provider,
		Model:         "test-model",
		ContextWindow: 2000,
		Sessions:      store,
		CompactionCfg: &config.CompactionConfig{
			MaxHistoryShare:  0.5,
			MinMessages:      1,
			KeepLastMessages: 2,
		},
	})
	return l, key
}

type fakeProvider struct {
	resp *providers.ChatResponse
	err  error
}

func (f *fakeProvider) Chat(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	return f.resp, f.err
}
func (f *fakeProvider) ChatStream(ctx context.Context, req providers.ChatRequest, onChunk func(providers.StreamChunk)) (*providers.ChatResponse, error) {
	return f.resp, f.err
}
func (f *fakeProvider) DefaultModel() string { return "test-model" }
func (f *fakeProvider) Name() string         { return "fake" }

func seedHistory(t *testing.T, l *Loop, key string, turns int) []providers.Message {
	t.Helper()
	var history []providers.Message
	for i := 0; i < turns; i++ {
		msgs := []providers.Message{
			{Role: "user", Content: "message body padded out with enough characters to matter"},
			{Role: "assistant", Content: "reply body padded out with enough characters to matter too"},
		}
		for _, m := range msgs {
			l.sessions.AddMessage(key, m)
			history = append(history, m)
		}
	}
	return history
}

func TestTokenTrimShrinksHistoryAndIncrementsCompaction(t *testing.T) {
	l, key := newTestLoopWithSessions(t, &fakeProvider{})
	history := seedHistory(t, l, key, 30)

	l.tokenTrim(key, history, 100) // small budget forces trimming

	remaining := l.sessions.GetHistory(key)
	if len(remaining) >= len(history) {
		t.Fatalf("expected history to shrink, got %d messages (started with %d)", len(remaining), len(history))
	}
	if remaining[0].Role != "user" {
		t.Errorf("trimmed history must start at a user turn boundary, got role %q", remaining[0].Role)
	}
	if l.sessions.GetCompactionCount(key) != 1 {
		t.Errorf("expected compaction count 1, got %d", l.sessions.GetCompactionCount(key))
	}
}

func TestRollingSummarizeFallsBackToTokenTrimOnSummarizerFailure(t *testing.T) {
	l, key := newTestLoopWithSessions(t, &fakeProvider{err: errors.New("provider unavailable")})
	history := seedHistory(t, l, key, 30)

	var alerted bool
	l.onEvent = func(e AgentEvent) {
		if e.Type == "context.alert" {
			alerted = true
		}
	}

	settings := contextpkg.RollingSummarySettings{Enabled: true, WindowSize: 5, TriggerThresholdTokens: 1}

	l.rollingSummarize(context.Background(), key, history, settings, 100)

	if !alerted {
		t.Error("expected a context.alert event when the summarizer fails")
	}
	remaining := l.sessions.GetHistory(key)
	if len(remaining) == 0 {
		t.Fatal("fallback must never drop history to nothing")
	}
	if len(remaining) >= len(history) {
		t.Errorf("expected fallback token-trim to shrink history, got %d (started with %d)", len(remaining), len(history))
	}
}
