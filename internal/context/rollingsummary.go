package context

import (
	"github.com/nextlevelbuilder/goclaw/internal/config"
	"github.com/nextlevelbuilder/goclaw/internal/providers"
)

const (
	defaultRollingSummaryWindowSize             = 10
	defaultRollingSummaryTriggerThresholdTokens = 1 << 30 // effectively "use the 0.8*window floor"
	// maxChunkShare bounds each staged summarization call to at most this
	// share of the context window, so a single chunk never itself risks
	// overflowing the model it's summarized with.
	maxChunkShare = 0.30
)

// PreservationPrompt is the standard instruction given to the summarizer for
// every staged chunk: it must keep the conversation usable later, not just
// shrink it.
const PreservationPrompt = `Summarize the conversation excerpt below. Preserve, explicitly and by name:
- key decisions made and their rationale
- open questions that were not yet resolved
- stated user preferences or constraints
- pending tasks or commitments made to the user

Be concise. Omit pleasantries and restated context that adds nothing new.`

// RollingSummarySettings is the resolved (defaults-applied) configuration
// for windowed rolling summarization.
type RollingSummarySettings struct {
	Enabled                bool
	WindowSize             int
	TriggerThresholdTokens int
}

// ResolveRollingSummarySettings applies documented defaults (enabled,
// 10-turn window) on top of whatever the operator configured.
func ResolveRollingSummarySettings(cfg *config.CompactionConfig) RollingSummarySettings {
	settings := RollingSummarySettings{
		Enabled:                true,
		WindowSize:             defaultRollingSummaryWindowSize,
		TriggerThresholdTokens: defaultRollingSummaryTriggerThresholdTokens,
	}

	if cfg == nil || cfg.RollingSummary == nil {
		return settings
	}

	rs := cfg.RollingSummary
	if rs.Enabled != nil {
		settings.Enabled = *rs.Enabled
	}
	if rs.WindowSize > 0 {
		settings.WindowSize = rs.WindowSize
	}
	if rs.TriggerThresholdTokens > 0 {
		settings.TriggerThresholdTokens = rs.TriggerThresholdTokens
	}

	return settings
}

// ShouldRollingSummarize reports whether history has crossed the rolling
// summary trigger: min(configured threshold, 80% of the context window).
func ShouldRollingSummarize(tokenEstimate, contextWindow int, settings RollingSummarySettings) bool {
	if !settings.Enabled {
		return false
	}
	trigger := settings.TriggerThresholdTokens
	if eightyPercent := int(float64(contextWindow) * 0.8); eightyPercent < trigger {
		trigger = eightyPercent
	}
	return tokenEstimate > trigger
}

// SplitWindow divides history into an older portion (candidate for
// summarization) and a recent portion (last windowSize user turns, kept
// verbatim). The split always lands on a user-message boundary so neither
// half starts or ends mid-turn.
func SplitWindow(history []providers.Message, windowSize int) (older, recent []providers.Message) {
	if windowSize <= 0 || len(history) == 0 {
		return nil, history
	}

	userCount := 0
	splitAt := 0
	found := false
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == "user" {
			userCount++
			if userCount > windowSize {
				splitAt = i + 1
				found = true
				break
			}
		}
	}
	if !found {
		return nil, history
	}

	// splitAt currently points just past the last excluded user message; it
	// may land mid-turn (e.g. on that turn's assistant reply). Advance to
	// the next user message so recent always starts a turn.
	splitAt = advanceToUserBoundary(history, splitAt)

	return history[:splitAt], history[splitAt:]
}

// ChunkForSummary splits the "older" portion of history into turn-aligned
// chunks, each sized at most maxChunkShare of the context window, so a
// staged summarizer call never itself risks overflowing its own model.
func ChunkForSummary(older []providers.Message, contextWindow int) [][]providers.Message {
	if len(older) == 0 {
		return nil
	}

	maxChunkTokens := int(float64(contextWindow) * maxChunkShare)
	if maxChunkTokens <= 0 {
		return [][]providers.Message{older}
	}

	var chunks [][]providers.Message
	start := 0
	for start < len(older) {
		end := start + 1
		for end < len(older) {
			next := end + 1
			// Extend to the next user-boundary before accepting, so a chunk
			// never ends mid-turn (dangling assistant/tool messages).
			for next < len(older) && older[next].Role != "user" {
				next++
			}
			if EstimateTokens(older[start:next]) > maxChunkTokens {
				break
			}
			end = next
		}
		chunks = append(chunks, older[start:end])
		start = end
	}
	return chunks
}
