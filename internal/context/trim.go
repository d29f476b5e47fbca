package context

import "github.com/nextlevelbuilder/goclaw/internal/providers"

// defaultPreserveRecentTurns is the minimum number of most-recent user
// turns that TrimToBudget never drops, even when the turn's own content
// exceeds the history budget outright — a single huge recent turn is a
// correctness signal the agent needs to see, not something to silently
// drop.
const defaultPreserveRecentTurns = 5

// LimitTurns keeps only the last N user turns (and their associated
// assistant/tool messages). A "turn" is one user message plus every
// subsequent non-user message up to the next user message.
func LimitTurns(msgs []providers.Message, limit int) []providers.Message {
	if limit <= 0 || len(msgs) == 0 {
		return msgs
	}

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

// TrimToBudget drops oldest-first from history until its estimated token
// count fits within budget, always preserving the last preserveRecentTurns
// user turns regardless of size. After computing the drop point, the cut
// advances forward to the next user-role message so the first surviving
// message always starts a turn — a history slice starting mid-turn (e.g.
// on a dangling tool result) is never produced.
//
// overBudget is true when even the preserved recent turns alone exceed
// budget; callers should surface this as a non-fatal OverBudget warning
// and proceed with the (honest, over-budget) trimmed slice regardless.
func TrimToBudget(msgs []providers.Message, budget int, preserveRecentTurns int) (trimmed []providers.Message, overBudget bool) {
	if len(msgs) == 0 {
		return msgs, false
	}
	if preserveRecentTurns <= 0 {
		preserveRecentTurns = defaultPreserveRecentTurns
	}

	if EstimateTokens(msgs) <= budget {
		return msgs, false
	}

	protectedFrom := protectedStartIndex(msgs, preserveRecentTurns)

	// Try every possible cut point from the protected boundary backward to
	// the start, keeping the earliest (largest) slice that still fits.
	best := protectedFrom
	for cut := 0; cut <= protectedFrom; cut++ {
		candidate := msgs[cut:]
		if EstimateTokens(candidate) <= budget {
			best = cut
			break
		}
	}

	best = advanceToUserBoundary(msgs, best)
	result := msgs[best:]

	if EstimateTokens(result) > budget {
		return result, true
	}
	return result, false
}

// protectedStartIndex returns the index at which the last N user turns
// begin.
func protectedStartIndex(msgs []providers.Message, n int) int {
	userCount := 0
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			userCount++
			if userCount == n {
				return i
			}
		}
	}
	return 0
}

// advanceToUserBoundary moves idx forward to the next user-role message so
// the resulting slice starts a turn, never mid-turn.
func advanceToUserBoundary(msgs []providers.Message, idx int) int {
	for i := idx; i < len(msgs); i++ {
		if msgs[i].Role == "user" {
			return i
		}
	}
	return idx
}
