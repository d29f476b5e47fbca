package context

import "testing"

func TestPackRetrievalFiltersByMinScore(t *testing.T) {
	chunks := []RetrievedChunk{
		{Content: "low relevance hit", Score: 0.1},
		{Content: "strong match", Score: 0.9},
	}
	packed := PackRetrieval(chunks, 0.35, 5, 10000)
	if len(packed) != 1 {
		t.Fatalf("expected 1 chunk above min score, got %d", len(packed))
	}
	if packed[0] != "strong match" {
		t.Errorf("unexpected chunk packed: %q", packed[0])
	}
}

func TestPackRetrievalCapsChunkCount(t *testing.T) {
	var chunks []RetrievedChunk
	for i := 0; i < 10; i++ {
		chunks = append(chunks, RetrievedChunk{Content: "x", Score: 1.0})
	}
	packed := PackRetrieval(chunks, 0, 0, 100000)
	if len(packed) != defaultRetrievalChunkCap {
		t.Errorf("expected default cap of %d chunks, got %d", defaultRetrievalChunkCap, len(packed))
	}
}

func TestPackRetrievalDropsChunkBelowTruncationFloor(t *testing.T) {
	// budgetTokens only has room for 50 tokens remaining after accounting for
	// the chunk's size, below minTruncatedChunkTokens — the chunk must be
	// dropped, not truncated to a near-empty fragment.
	big := make([]byte, 2000) // ~500 tokens at 4 chars/token
	for i := range big {
		big[i] = 'a'
	}
	chunks := []RetrievedChunk{{Content: string(big), Score: 1.0}}
	packed := PackRetrieval(chunks, 0, 5, 50)
	if len(packed) != 0 {
		t.Errorf("expected chunk to be dropped below the truncation floor, got %d chunks", len(packed))
	}
}

func TestPackRetrievalTruncatesWhenFloorMet(t *testing.T) {
	big := make([]byte, 2000)
	for i := range big {
		big[i] = 'a'
	}
	chunks := []RetrievedChunk{{Content: string(big), Score: 1.0}}
	packed := PackRetrieval(chunks, 0, 5, 200)
	if len(packed) != 1 {
		t.Fatalf("expected chunk to be truncated and kept, got %d chunks", len(packed))
	}
	if len(packed[0]) >= len(big) {
		t.Errorf("expected truncation to shrink the chunk")
	}
}

func TestRenderRetrievalPreambleEmpty(t *testing.T) {
	if got := RenderRetrievalPreamble(nil); got != "" {
		t.Errorf("expected empty preamble for no chunks, got %q", got)
	}
}

func TestRenderRetrievalPreambleWrapsTag(t *testing.T) {
	got := RenderRetrievalPreamble([]string{"a", "b"})
	if got == "" {
		t.Fatal("expected non-empty preamble")
	}
	if got[:len("<relevant-prior-context>")] != "<relevant-prior-context>" {
		t.Errorf("preamble should start with the tag, got %q", got)
	}
}
