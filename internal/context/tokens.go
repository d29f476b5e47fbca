// Package context implements the token-budget allocator, history
// trimmer/summariser, and semantic retrieval packing that keep each model
// call within its context window while preserving conversational
// continuity. Generalized out of internal/agent's per-loop history
// handling so the allocation and trimming rules live in one place,
// independent of any one provider or channel.
package context

import "github.com/nextlevelbuilder/goclaw/internal/providers"

// charsPerToken is the character-count heuristic's calibration baseline:
// provider-agnostic, stable, and sufficient for budget enforcement. True
// usage returned by the provider updates the session's token counter
// post-call (see EstimateTokensWithCalibration).
const charsPerToken = 4.0

// EstimateTokens approximates the token count of a message list using the
// ~4-chars/token heuristic.
func EstimateTokens(msgs []providers.Message) int {
	chars := 0
	for _, m := range msgs {
		chars += len(m.Content)
		for _, tc := range m.ToolCalls {
			chars += len(tc.Name) + 24
			for k, v := range tc.Arguments {
				chars += len(k) + estimateValueChars(v)
			}
		}
	}
	return int(float64(chars) / charsPerToken)
}

func estimateValueChars(v interface{}) int {
	switch val := v.(type) {
	case string:
		return len(val)
	default:
		return 8
	}
}

// EstimateTokensWithCalibration refines the raw heuristic using the actual
// prompt-token count the provider reported for the last call against that
// same history. When the provider's own count and the message count from
// that call are both known, the heuristic is scaled by the ratio of
// actual-to-estimated tokens observed last time — correcting for
// provider/tokenizer differences (e.g. CJK text runs far denser than 4
// chars/token) without requiring a real tokenizer dependency.
func EstimateTokensWithCalibration(msgs []providers.Message, lastPromptTokens, lastMessageCount int) int {
	raw := EstimateTokens(msgs)
	if lastPromptTokens <= 0 || lastMessageCount <= 0 || len(msgs) == 0 {
		return raw
	}

	// Only trust the calibration factor when comparing against a
	// similarly-sized history; a wildly different message count means the
	// last call's ratio doesn't describe this one.
	ratio := float64(len(msgs)) / float64(lastMessageCount)
	if ratio < 0.5 || ratio > 2.0 {
		return raw
	}

	priorEstimate := EstimateTokens(msgs[:min(len(msgs), lastMessageCount)])
	if priorEstimate <= 0 {
		return raw
	}

	factor := float64(lastPromptTokens) / float64(priorEstimate)
	if factor < 0.25 || factor > 4.0 {
		return raw // calibration factor too extreme to trust
	}

	return int(float64(raw) * factor)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
