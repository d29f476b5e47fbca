package context

import (
	"testing"

	"github.com/nextlevelbuilder/goclaw/internal/config"
	"github.com/nextlevelbuilder/goclaw/internal/providers"
)

func userAssistantTurns(n int) []providers.Message {
	var msgs []providers.Message
	for i := 0; i < n; i++ {
		msgs = append(msgs,
			providers.Message{Role: "user", Content: "question"},
			providers.Message{Role: "assistant", Content: "answer"},
		)
	}
	return msgs
}

func TestResolveRollingSummarySettingsDefaults(t *testing.T) {
	settings := ResolveRollingSummarySettings(nil)
	if !settings.Enabled {
		t.Error("expected enabled by default")
	}
	if settings.WindowSize != defaultRollingSummaryWindowSize {
		t.Errorf("window size = %d, want %d", settings.WindowSize, defaultRollingSummaryWindowSize)
	}
}

func TestResolveRollingSummarySettingsOverride(t *testing.T) {
	disabled := false
	cfg := &config.CompactionConfig{
		RollingSummary: &config.RollingSummaryConfig{
			Enabled:    &disabled,
			WindowSize: 3,
		},
	}
	settings := ResolveRollingSummarySettings(cfg)
	if settings.Enabled {
		t.Error("expected disabled override to take effect")
	}
	if settings.WindowSize != 3 {
		t.Errorf("window size = %d, want 3", settings.WindowSize)
	}
}

func TestShouldRollingSummarizeUsesLowerOfThresholdAnd80Percent(t *testing.T) {
	settings := RollingSummarySettings{Enabled: true, TriggerThresholdTokens: 1000000}
	// 80% of a 10000 window is 8000; 7999 tokens must not trigger, 8001 must.
	if ShouldRollingSummarize(7999, 10000, settings) {
		t.Error("should not trigger below the 80%% floor")
	}
	if !ShouldRollingSummarize(8001, 10000, settings) {
		t.Error("should trigger above the 80%% floor")
	}
}

func TestShouldRollingSummarizeDisabled(t *testing.T) {
	settings := RollingSummarySettings{Enabled: false, TriggerThresholdTokens: 1}
	if ShouldRollingSummarize(1000000, 10000, settings) {
		t.Error("disabled rolling summary should never trigger")
	}
}

func TestSplitWindowKeepsLastNTurnsVerbatim(t *testing.T) {
	history := userAssistantTurns(15) // 30 messages, 15 user turns
	older, recent := SplitWindow(history, 10)

	recentUserCount := 0
	for _, m := range recent {
		if m.Role == "user" {
			recentUserCount++
		}
	}
	if recentUserCount != 10 {
		t.Errorf("recent should have exactly 10 user turns, got %d", recentUserCount)
	}
	if len(older)+len(recent) != len(history) {
		t.Errorf("split should partition all messages: older=%d recent=%d total=%d", len(older), len(recent), len(history))
	}
	// recent must start on a user message (turn boundary).
	if len(recent) > 0 && recent[0].Role != "user" {
		t.Errorf("recent should start at a user turn boundary, got role %q", recent[0].Role)
	}
}

func TestSplitWindowNoOlderWhenUnderWindow(t *testing.T) {
	history := userAssistantTurns(5)
	older, recent := SplitWindow(history, 10)
	if older != nil {
		t.Errorf("expected no older portion when history is under the window, got %d messages", len(older))
	}
	if len(recent) != len(history) {
		t.Errorf("recent should be the entire history when under the window")
	}
}

func TestChunkForSummaryRespectsMaxShareAndTurnBoundaries(t *testing.T) {
	older := userAssistantTurns(20) // 40 messages
	chunks := ChunkForSummary(older, 1000)

	if len(chunks) == 0 {
		t.Fatal("expected at least one chunk")
	}

	var total int
	for _, c := range chunks {
		total += len(c)
		if len(c) == 0 {
			t.Fatal("chunk must not be empty")
		}
		if c[0].Role != "user" {
			t.Errorf("chunk should start at a user turn boundary, got role %q", c[0].Role)
		}
	}
	if total != len(older) {
		t.Errorf("chunks should partition every message: got %d, want %d", total, len(older))
	}
}

func TestChunkForSummaryEmptyInput(t *testing.T) {
	if chunks := ChunkForSummary(nil, 1000); chunks != nil {
		t.Errorf("expected nil for empty input, got %v", chunks)
	}
}
