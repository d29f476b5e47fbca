package context

import (
	"testing"

	"github.com/nextlevelbuilder/goclaw/internal/providers"
)

func bigMessage(role string, chars int) providers.Message {
	b := make([]byte, chars)
	for i := range b {
		b[i] = 'x'
	}
	return providers.Message{Role: role, Content: string(b)}
}

func TestLimitTurnsKeepsLastN(t *testing.T) {
	history := userAssistantTurns(8)
	limited := LimitTurns(history, 3)

	userCount := 0
	for _, m := range limited {
		if m.Role == "user" {
			userCount++
		}
	}
	if userCount != 3 {
		t.Errorf("expected 3 user turns, got %d", userCount)
	}
}

func TestLimitTurnsNoLimitReturnsAll(t *testing.T) {
	history := userAssistantTurns(3)
	if got := LimitTurns(history, 0); len(got) != len(history) {
		t.Errorf("limit<=0 should return everything")
	}
}

func TestTrimToBudgetPreservesRecentTurnsAndRealignsBoundary(t *testing.T) {
	// Each message is 200 chars = 50 tokens, so one turn (user+assistant) is
	// 100 tokens. 20 turns = 2000 tokens total; a 600-token budget forces
	// trimming but comfortably fits the 5 preserved recent turns (500 tokens).
	var history []providers.Message
	for i := 0; i < 20; i++ {
		history = append(history, bigMessage("user", 200), bigMessage("assistant", 200))
	}

	trimmed, overBudget := TrimToBudget(history, 600, 5)
	if overBudget {
		t.Fatalf("5 preserved turns at ~100 tokens each should fit a 600-token budget")
	}
	if trimmed[0].Role != "user" {
		t.Errorf("trimmed history must start at a user turn boundary, got role %q", trimmed[0].Role)
	}

	userCount := 0
	for _, m := range trimmed {
		if m.Role == "user" {
			userCount++
		}
	}
	if userCount < 5 {
		t.Errorf("expected at least the 5 preserved recent turns, got %d", userCount)
	}
}

func TestTrimToBudgetUnderBudgetIsNoOp(t *testing.T) {
	history := userAssistantTurns(2)
	trimmed, overBudget := TrimToBudget(history, 1000000, 5)
	if overBudget {
		t.Error("should not be over budget")
	}
	if len(trimmed) != len(history) {
		t.Error("history under budget should be returned unchanged")
	}
}

func TestTrimToBudgetOverBudgetEvenAfterTrimReportsTrue(t *testing.T) {
	// A single preserved turn alone exceeds the budget.
	history := []providers.Message{bigMessage("user", 20000), bigMessage("assistant", 20000)}
	_, overBudget := TrimToBudget(history, 10, 5)
	if !overBudget {
		t.Error("expected overBudget=true when even preserved turns exceed budget")
	}
}
