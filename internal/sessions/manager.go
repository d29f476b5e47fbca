package sessions

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/providers"
)

// Session is the in-memory cached representation of a session: the replayed
// history plus the mutable metadata that rides alongside it. It is rebuilt
// from the append-only log on first access, not the source of truth itself.
type Session struct {
	Key      string              `json:"key"`       // agent:{agentId}:{sessionKey}
	Messages []providers.Message `json:"messages"`
	Summary  string              `json:"summary,omitempty"`
	Created  time.Time           `json:"created"`
	Updated  time.Time           `json:"updated"`

	// Metadata (matching TS SessionEntry subset)
	Model                      string `json:"model,omitempty"`
	Provider                   string `json:"provider,omitempty"`
	Channel                    string `json:"channel,omitempty"`
	InputTokens                int64  `json:"inputTokens,omitempty"`
	OutputTokens               int64  `json:"outputTokens,omitempty"`
	CompactionCount            int    `json:"compactionCount,omitempty"`
	MemoryFlushCompactionCount int    `json:"memoryFlushCompactionCount,omitempty"`
	MemoryFlushAt              int64  `json:"memoryFlushAt,omitempty"` // unix ms
	Label                      string `json:"label,omitempty"`
	SpawnedBy                  string `json:"spawnedBy,omitempty"`
	SpawnDepth                 int    `json:"spawnDepth,omitempty"`

	ContextWindow    int `json:"contextWindow,omitempty"`
	LastPromptTokens int `json:"lastPromptTokens,omitempty"`
	LastMessageCount int `json:"lastMessageCount,omitempty"`

	seq int64 // last assigned sequence number in this session's log
}

// Manager handles session lifecycle, persistence, and lookup. History is
// durable via one append-only JSONL log per session key (internal/sessions
// log.go); Manager itself is the LRU-ish in-memory cache and the only place
// that mutates metadata fields that don't belong in the append-only history
// (token counters, labels, compaction bookkeeping).
type Manager struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	storage  string

	// writeLocks serializes appends per session key (see log.go).
	writeLocks sync.Map

	// poisoned records keys whose log failed gap verification on load.
	// Writes to a poisoned key are refused until an operator clears it
	// (by fixing or deleting the .jsonl file and restarting).
	poisonedMu sync.RWMutex
	poisoned   map[string]error
}

func NewManager(storage string) *Manager {
	m := &Manager{
		sessions: make(map[string]*Session),
		storage:  storage,
		poisoned: make(map[string]error),
	}
	if storage != "" {
		os.MkdirAll(storage, 0755)
		m.loadAll()
	}
	return m
}

// SessionKey builds a composite session key: agent:{agentId}:{scopeKey}
func SessionKey(agentID, scopeKey string) string {
	return "agent:" + agentID + ":" + scopeKey
}

// IsPoisoned reports whether key's log failed gap verification and is
// refusing writes.
func (m *Manager) IsPoisoned(key string) error {
	m.poisonedMu.RLock()
	defer m.poisonedMu.RUnlock()
	return m.poisoned[key]
}

func (m *Manager) markPoisoned(key string, err error) {
	m.poisonedMu.Lock()
	m.poisoned[key] = err
	m.poisonedMu.Unlock()
	slog.Error("session log corrupted, refusing further writes", "key", key, "error", err)
}

// GetOrCreate returns an existing session or creates a new one.
func (m *Manager) GetOrCreate(key string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[key]; ok {
		return s
	}

	s := &Session{
		Key:      key,
		Messages: []providers.Message{},
		Created:  time.Now(),
		Updated:  time.Now(),
	}
	m.sessions[key] = s
	return s
}

// append appends one entry to key's durable log and returns its sequence
// number, or ErrSessionCorrupted/an I/O error if the key is poisoned or the
// write fails. Serialized per key via writeLockFor.
func (m *Manager) append(key string, entry SessionEntry) (int64, error) {
	if err := m.IsPoisoned(key); err != nil {
		return 0, err
	}
	if m.storage == "" {
		return 0, nil
	}

	lock := m.writeLockFor(key)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	s, ok := m.sessions[key]
	if !ok {
		s = &Session{Key: key, Messages: []providers.Message{}, Created: time.Now()}
		m.sessions[key] = s
	}
	s.seq++
	entry.Seq = s.seq
	entry.Key = key
	m.mu.Unlock()

	entry.Timestamp = time.Now()
	log := newSessionLog(m.storage, key)
	if err := log.append(entry); err != nil {
		m.mu.Lock()
		s.seq--
		m.mu.Unlock()
		return 0, err
	}
	return entry.Seq, nil
}

// Append is the spec-level `append(sessionKey, entry)` primitive: durable,
// atomic, advances the per-session sequence number, returns the assigned
// sequence.
func (m *Manager) Append(key string, entry SessionEntry) (int64, error) {
	return m.append(key, entry)
}

// Load is the spec-level `load(sessionKey, {fromSeq?, limit?})` primitive:
// streams entries in order directly from the durable log, independent of
// whatever happens to be cached in memory. fromSeq=0 means from the start;
// limit<=0 means no limit.
func (m *Manager) Load(key string, fromSeq int64, limit int) ([]SessionEntry, error) {
	log := newSessionLog(m.storage, key)
	entries, err := log.load()
	if fromSeq > 0 {
		var filtered []SessionEntry
		for _, e := range entries {
			if e.Seq >= fromSeq {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, err
}

// Snapshot is the spec-level `snapshot(sessionKey)` primitive: the in-memory
// cached representation (history array + metadata), without touching disk.
func (m *Manager) Snapshot(key string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[key]
	if !ok {
		return nil
	}
	cp := *s
	cp.Messages = append([]providers.Message(nil), s.Messages...)
	return &cp
}

// AddMessage appends a message to a session's durable log and the in-memory
// cache. A log write failure poisons the key and the message is still kept
// in memory for the running process, but LRU eviction would lose it — this
// matches the spec's "refuse further writes to that key" invariant rather
// than silently degrading to memory-only.
func (m *Manager) AddMessage(key string, msg providers.Message) {
	if _, err := m.append(key, SessionEntry{Type: entryTypeForRole(msg.Role), Message: &msg}); err != nil {
		if err != ErrSessionCorrupted {
			slog.Warn("session append failed", "key", key, "error", err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	if !ok {
		s = &Session{Key: key, Messages: []providers.Message{}, Created: time.Now()}
		m.sessions[key] = s
	}
	s.Messages = append(s.Messages, msg)
	s.Updated = time.Now()
}

// GetHistory returns a copy of the message history.
func (m *Manager) GetHistory(key string) []providers.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[key]
	if !ok {
		return nil
	}

	msgs := make([]providers.Message, len(s.Messages))
	copy(msgs, s.Messages)
	return msgs
}

// GetSummary returns the session summary.
func (m *Manager) GetSummary(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.sessions[key]; ok {
		return s.Summary
	}
	return ""
}

// SetSummary updates the session summary, appending a "summary" entry to
// the durable log so rolling-summary history survives a restart.
func (m *Manager) SetSummary(key, summary string) {
	if _, err := m.append(key, SessionEntry{Type: "summary", Summary: summary}); err != nil && err != ErrSessionCorrupted {
		slog.Warn("session summary append failed", "key", key, "error", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[key]; ok {
		s.Summary = summary
		s.Updated = time.Now()
	}
}

// SetLabel updates the session label.
func (m *Manager) SetLabel(key, label string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[key]; ok {
		s.Label = label
		s.Updated = time.Now()
	}
}

// UpdateMetadata sets model/provider/channel metadata on a session.
func (m *Manager) UpdateMetadata(key, model, provider, channel string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[key]; ok {
		if model != "" {
			s.Model = model
		}
		if provider != "" {
			s.Provider = provider
		}
		if channel != "" {
			s.Channel = channel
		}
	}
}

// AccumulateTokens adds token counts from a completed run.
func (m *Manager) AccumulateTokens(key string, inputTokens, outputTokens int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[key]; ok {
		s.InputTokens += inputTokens
		s.OutputTokens += outputTokens
	}
}

// IncrementCompaction bumps the compaction counter after summarization.
func (m *Manager) IncrementCompaction(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[key]; ok {
		s.CompactionCount++
	}
}

// GetCompactionCount returns the current compaction count for a session.
func (m *Manager) GetCompactionCount(key string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.sessions[key]; ok {
		return s.CompactionCount
	}
	return 0
}

// GetMemoryFlushCompactionCount returns the compaction count at which memory flush last ran.
func (m *Manager) GetMemoryFlushCompactionCount(key string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.sessions[key]; ok {
		return s.MemoryFlushCompactionCount
	}
	return -1 // never flushed
}

// SetMemoryFlushDone records that memory flush completed at the current compaction count.
func (m *Manager) SetMemoryFlushDone(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[key]; ok {
		s.MemoryFlushCompactionCount = s.CompactionCount
		s.MemoryFlushAt = time.Now().UnixMilli()
	}
}

// SetSpawnInfo sets subagent origin metadata on a session.
func (m *Manager) SetSpawnInfo(key, spawnedBy string, depth int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[key]; ok {
		s.SpawnedBy = spawnedBy
		s.SpawnDepth = depth
	}
}

// SetContextWindow caches the agent's context window on the session.
func (m *Manager) SetContextWindow(key string, cw int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[key]; ok {
		s.ContextWindow = cw
	}
}

// GetContextWindow returns the cached context window for a session (0 if unset).
func (m *Manager) GetContextWindow(key string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.sessions[key]; ok {
		return s.ContextWindow
	}
	return 0
}

// SetLastPromptTokens records actual prompt tokens from the last LLM response.
func (m *Manager) SetLastPromptTokens(key string, tokens, msgCount int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[key]; ok {
		s.LastPromptTokens = tokens
		s.LastMessageCount = msgCount
	}
}

// GetLastPromptTokens returns the last known prompt tokens and message count.
func (m *Manager) GetLastPromptTokens(key string) (int, int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.sessions[key]; ok {
		return s.LastPromptTokens, s.LastMessageCount
	}
	return 0, 0
}

// TruncateHistory keeps only the last N messages in the in-memory cache.
// It does not rewrite the durable log — the log is append-only by design;
// a trim is a cache-level view, replayed fresh from disk on next load.
func (m *Manager) TruncateHistory(key string, keepLast int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[key]
	if !ok {
		return
	}

	if keepLast <= 0 {
		s.Messages = []providers.Message{}
	} else if len(s.Messages) > keepLast {
		s.Messages = s.Messages[len(s.Messages)-keepLast:]
	}
	s.Updated = time.Now()
}

// Reset clears a session's in-memory history and summary and truncates its
// durable log to zero length, starting sequence numbering over from 1.
func (m *Manager) Reset(key string) {
	m.mu.Lock()
	if s, ok := m.sessions[key]; ok {
		s.Messages = []providers.Message{}
		s.Summary = ""
		s.Updated = time.Now()
		s.seq = 0
	}
	m.mu.Unlock()

	m.poisonedMu.Lock()
	delete(m.poisoned, key)
	m.poisonedMu.Unlock()

	if m.storage != "" {
		newSessionLog(m.storage, key).delete()
	}
}

// Delete removes a session entirely, including its durable log.
func (m *Manager) Delete(key string) error {
	m.mu.Lock()
	delete(m.sessions, key)
	m.mu.Unlock()

	m.poisonedMu.Lock()
	delete(m.poisoned, key)
	m.poisonedMu.Unlock()

	if m.storage != "" {
		return newSessionLog(m.storage, key).delete()
	}
	return nil
}

// List returns metadata for all sessions, optionally filtered by agent ID.
func (m *Manager) List(agentID string) []SessionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []SessionInfo
	prefix := ""
	if agentID != "" {
		prefix = "agent:" + agentID + ":"
	}

	for key, s := range m.sessions {
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			continue
		}
		result = append(result, SessionInfo{
			Key:          key,
			MessageCount: len(s.Messages),
			Created:      s.Created,
			Updated:      s.Updated,
		})
	}
	return result
}

// LastUsedChannel finds the most recently updated channel session for an agent
// and extracts channel + chatID from the key. Returns ("", "") if none found.
// Used for heartbeat delivery target resolution (target="last").
func (m *Manager) LastUsedChannel(agentID string) (channel, chatID string) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	prefix := "agent:" + agentID + ":"
	var bestKey string
	var bestUpdated time.Time

	for key, s := range m.sessions {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		// Skip non-channel sessions (cron, subagent, heartbeat)
		rest := key[len(prefix):]
		if strings.HasPrefix(rest, "cron:") || strings.HasPrefix(rest, "subagent:") || strings.HasPrefix(rest, "heartbeat:") {
			continue
		}
		if s.Updated.After(bestUpdated) {
			bestUpdated = s.Updated
			bestKey = key
		}
	}

	if bestKey == "" {
		return "", ""
	}

	// Parse: agent:{agentId}:{channel}:{peerKind}:{chatId}
	parts := strings.SplitN(bestKey, ":", 5)
	if len(parts) >= 5 {
		return parts[2], parts[4]
	}
	return "", ""
}

// SessionInfo is a lightweight session descriptor for listing.
type SessionInfo struct {
	Key          string    `json:"key"`
	MessageCount int       `json:"messageCount"`
	Created      time.Time `json:"created"`
	Updated      time.Time `json:"updated"`
}

// Save is a no-op: AddMessage/SetSummary already append durably as they
// happen. Kept so store.SessionStore callers that flush explicitly (e.g.
// before LRU eviction) don't need a special case.
func (m *Manager) Save(key string) error {
	return nil
}

// loadAll replays every session's append-only log under storage into the
// in-memory cache at startup. A session whose log fails gap verification is
// still loaded up through the last good entry, then marked poisoned.
func (m *Manager) loadAll() {
	files, err := os.ReadDir(m.storage)
	if err != nil {
		return
	}

	for _, f := range files {
		if f.IsDir() || filepath.Ext(f.Name()) != ".jsonl" {
			continue
		}
		// The filename is a sanitized key, only used to locate the file;
		// the authoritative key is read back from the entries themselves
		// so a key containing "_" round-trips exactly.
		filenameKey := strings.TrimSuffix(f.Name(), ".jsonl")

		entries, loadErr := (&sessionLog{path: filepath.Join(m.storage, f.Name())}).load()

		key := filenameKey
		if len(entries) > 0 && entries[0].Key != "" {
			key = entries[0].Key
		}

		s := &Session{Key: key, Messages: []providers.Message{}}
		for _, e := range entries {
			switch e.Type {
			case "summary":
				s.Summary = e.Summary
			default:
				if e.Message != nil {
					s.Messages = append(s.Messages, *e.Message)
				}
			}
			s.seq = e.Seq
			s.Updated = e.Timestamp
		}
		if s.Created.IsZero() && len(entries) > 0 {
			s.Created = entries[0].Timestamp
		}
		m.sessions[key] = s

		if loadErr != nil {
			m.markPoisoned(key, loadErr)
		}
	}
}

func sanitizeFilename(key string) string {
	return strings.ReplaceAll(key, ":", "_")
}
