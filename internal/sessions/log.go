package sessions

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/providers"
)

// ErrSessionCorrupted is returned when a session's append-only log has a gap
// in its sequence numbers. The key is refused further writes until an
// operator inspects and repairs (or deletes) the file on disk.
var ErrSessionCorrupted = errors.New("sessions: corrupted log (sequence gap)")

// SessionEntry is one line of a session's append-only JSONL log.
// Seq is dense and gap-free per session: load fails with ErrSessionCorrupted
// the moment it finds entries[i].Seq != entries[i-1].Seq+1.
type SessionEntry struct {
	Key       string             `json:"key"`
	Seq       int64              `json:"seq"`
	Type      string             `json:"type"` // "user" | "assistant" | "tool_result" | "summary"
	Message   *providers.Message `json:"message,omitempty"`
	Summary   string             `json:"summary,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

// entryTypeForRole maps a provider message role to the spec's entry taxonomy.
func entryTypeForRole(role string) string {
	switch role {
	case "user":
		return "user"
	case "tool":
		return "tool_result"
	default:
		return "assistant"
	}
}

// sessionLog is the durable append-only writer+reader for one session key.
// Writes are serialized per key by Manager's writeLocks registry; sessionLog
// itself assumes single-writer access.
type sessionLog struct {
	path string
}

func newSessionLog(storage, key string) *sessionLog {
	return &sessionLog{path: filepath.Join(storage, sanitizeFilename(key)+".jsonl")}
}

// append writes entry as one JSON line, O_APPEND so concurrent readers never
// see a partial rewrite, and fsyncs before returning so a crash immediately
// after append() cannot silently drop the entry.
func (l *sessionLog) append(entry SessionEntry) error {
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

// load streams every entry in the log, verifying sequence numbers are dense
// and gap-free. It returns whatever entries it read before the gap alongside
// ErrSessionCorrupted, so callers can still serve the readable prefix while
// refusing further writes to the key.
func (l *sessionLog) load() ([]SessionEntry, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var entries []SessionEntry
	var lastSeq int64
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e SessionEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return entries, fmt.Errorf("%w: line %d: %v", ErrSessionCorrupted, lineNo, err)
		}
		if len(entries) > 0 && e.Seq != lastSeq+1 {
			return entries, fmt.Errorf("%w: expected seq %d, got %d", ErrSessionCorrupted, lastSeq+1, e.Seq)
		}
		if len(entries) == 0 && e.Seq != 1 {
			return entries, fmt.Errorf("%w: log does not start at seq 1 (got %d)", ErrSessionCorrupted, e.Seq)
		}
		entries = append(entries, e)
		lastSeq = e.Seq
	}
	if err := scanner.Err(); err != nil {
		return entries, err
	}
	return entries, nil
}

func (l *sessionLog) delete() error {
	err := os.Remove(l.path)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// writeLockFor returns the per-key mutex serializing appends, creating one
// on first use. Mirrors the summarizeMu sync.Map idiom in internal/agent's
// Loop: one lock per session key, never a single global lock.
func (m *Manager) writeLockFor(key string) *sync.Mutex {
	v, _ := m.writeLocks.LoadOrStore(key, &sync.Mutex{})
	return v.(*sync.Mutex)
}
