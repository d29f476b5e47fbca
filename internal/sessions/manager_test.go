package sessions

import (
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/nextlevelbuilder/goclaw/internal/providers"
)

func TestAppendLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)

	key := SessionKey("default", "test:direct:u1")
	m.AddMessage(key, providers.Message{Role: "user", Content: "hello"})
	m.AddMessage(key, providers.Message{Role: "assistant", Content: "hi there"})
	m.SetSummary(key, "greeting exchanged")

	entries, err := m.Load(key, 0, 0)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i, e := range entries {
		if e.Seq != int64(i+1) {
			t.Errorf("entry %d: expected seq %d, got %d", i, i+1, e.Seq)
		}
	}
	if entries[0].Message.Content != "hello" {
		t.Errorf("entry 0 content mismatch: %q", entries[0].Message.Content)
	}
	if entries[2].Type != "summary" || entries[2].Summary != "greeting exchanged" {
		t.Errorf("entry 2 not the expected summary: %+v", entries[2])
	}

	// A fresh Manager reading the same storage dir must reconstruct the
	// exact same in-memory history — this is the spec's round-trip property.
	m2 := NewManager(dir)
	history := m2.GetHistory(key)
	if len(history) != 2 {
		t.Fatalf("expected 2 replayed messages, got %d", len(history))
	}
	if history[0].Content != "hello" || history[1].Content != "hi there" {
		t.Errorf("replayed history mismatch: %+v", history)
	}
	if m2.GetSummary(key) != "greeting exchanged" {
		t.Errorf("replayed summary mismatch: %q", m2.GetSummary(key))
	}
}

func TestSequenceGapReportsCorrupted(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)
	key := SessionKey("default", "test:direct:u2")
	m.AddMessage(key, providers.Message{Role: "user", Content: "one"})
	m.AddMessage(key, providers.Message{Role: "user", Content: "two"})
	m.AddMessage(key, providers.Message{Role: "user", Content: "three"})

	// Corrupt the log on disk by deleting the middle line, leaving a gap
	// between seq 1 and seq 3.
	path := newSessionLog(dir, key).path
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines before corruption, got %d", len(lines))
	}
	corrupted := lines[0] + "\n" + lines[2] + "\n"
	if err := os.WriteFile(path, []byte(corrupted), 0644); err != nil {
		t.Fatalf("write corrupted log: %v", err)
	}

	m2 := NewManager(dir)
	if err := m2.IsPoisoned(key); err == nil {
		t.Fatal("expected key to be poisoned after loading a gapped log")
	}

	if _, err := m2.Append(key, SessionEntry{Type: "user", Message: &providers.Message{Role: "user", Content: "four"}}); err == nil {
		t.Fatal("expected Append to refuse writes to a poisoned key")
	}
}

func TestLoadFromSeqAndLimit(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)
	key := SessionKey("default", "test:direct:u3")
	for i := 0; i < 5; i++ {
		m.AddMessage(key, providers.Message{Role: "user", Content: "msg"})
	}

	entries, err := m.Load(key, 3, 0)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries from seq 3, got %d", len(entries))
	}
	if entries[0].Seq != 3 {
		t.Errorf("expected first entry seq 3, got %d", entries[0].Seq)
	}

	entries, err = m.Load(key, 0, 2)
	if err != nil {
		t.Fatalf("Load with limit: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries with limit=2, got %d", len(entries))
	}
}

func TestAppendIsValidJSONLinePerEntry(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)
	key := SessionKey("default", "test:direct:u4")
	m.AddMessage(key, providers.Message{Role: "user", Content: "a"})
	m.AddMessage(key, providers.Message{Role: "user", Content: "b"})

	data, err := os.ReadFile(newSessionLog(dir, key).path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	for _, line := range lines {
		var e SessionEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			t.Errorf("line not valid JSON: %v", err)
		}
	}
}
