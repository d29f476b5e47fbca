package context

import (
	"context"
	"strings"
)

// defaultRetrievalChunkCap bounds how many memory chunks get packed into a
// single call's bootstrap slice, regardless of how many the provider returns.
const defaultRetrievalChunkCap = 5

// minTruncatedChunkTokens is the floor below which a partially-fit final
// chunk is dropped rather than truncated — a chunk shaved down to a
// fragment isn't worth the tokens it costs to include.
const minTruncatedChunkTokens = 100

// RetrievedChunk is one scored hit from a memory search backend.
type RetrievedChunk struct {
	Content string
	Score   float64
}

// MemorySearchProvider is the pluggable semantic-retrieval backend. Real
// implementations (vector DB, hybrid FTS+embedding search) live outside
// this package — internal/store.MemoryStore is one such collaborator.
type MemorySearchProvider interface {
	Search(ctx context.Context, agentID, query string, limit int) ([]RetrievedChunk, error)
}

// PackRetrieval filters chunks by minScore, keeps at most maxChunks
// (defaultRetrievalChunkCap if maxChunks <= 0), and greedily packs them into
// budgetTokens. The last chunk that doesn't fully fit is truncated only if
// at least minTruncatedChunkTokens remain in the budget; otherwise it's
// dropped rather than included as an unhelpfully small fragment.
func PackRetrieval(chunks []RetrievedChunk, minScore float64, maxChunks, budgetTokens int) []string {
	if maxChunks <= 0 {
		maxChunks = defaultRetrievalChunkCap
	}

	var packed []string
	remaining := budgetTokens
	for _, c := range chunks {
		if len(packed) >= maxChunks {
			break
		}
		if c.Score < minScore {
			continue
		}
		if remaining <= 0 {
			break
		}

		content := c.Content
		tokens := estimateTextTokens(content)
		if tokens > remaining {
			if remaining < minTruncatedChunkTokens {
				continue
			}
			content = truncateToTokens(content, remaining)
			tokens = remaining
		}

		packed = append(packed, content)
		remaining -= tokens
	}
	return packed
}

// RenderRetrievalPreamble wraps packed chunks in the <relevant-prior-context>
// tag the context engine injects ahead of history. Returns "" when there's
// nothing to inject, so callers can skip adding an empty message.
func RenderRetrievalPreamble(chunks []string) string {
	if len(chunks) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("<relevant-prior-context>\n")
	for i, c := range chunks {
		if i > 0 {
			sb.WriteString("\n---\n")
		}
		sb.WriteString(c)
	}
	sb.WriteString("\n</relevant-prior-context>")
	return sb.String()
}

func estimateTextTokens(s string) int {
	return int(float64(len(s)) / charsPerToken)
}

// truncateToTokens cuts s down to approximately budget tokens, respecting
// rune boundaries.
func truncateToTokens(s string, budget int) string {
	maxChars := int(float64(budget) * charsPerToken)
	if maxChars >= len(s) {
		return s
	}
	for maxChars > 0 && !isRuneStart(s[maxChars]) {
		maxChars--
	}
	return s[:maxChars]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
