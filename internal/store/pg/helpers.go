package pg

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// nilStr converts an empty Go string to a SQL NULL so optional TEXT columns
// don't store empty-string placeholders.
func nilStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// derefStr reads back a nullable TEXT column scanned into a *string.
func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// nilUUID converts a nil *uuid.UUID to a SQL NULL.
func nilUUID(u *uuid.UUID) interface{} {
	if u == nil {
		return nil
	}
	return *u
}

// jsonOrEmpty passes a json.RawMessage through unchanged, substituting "{}"
// for a nil/empty value so JSONB NOT NULL columns never get a Go nil.
func jsonOrEmpty(b json.RawMessage) interface{} {
	if len(b) == 0 {
		return []byte("{}")
	}
	return []byte(b)
}

// jsonOrNull passes a json.RawMessage through unchanged, substituting SQL
// NULL for a nil/empty value on nullable JSONB columns.
func jsonOrNull(b json.RawMessage) interface{} {
	if len(b) == 0 {
		return nil
	}
	return []byte(b)
}

// pqStringArray adapts a []string for a Postgres TEXT[] column.
func pqStringArray(ss []string) interface{} {
	return pq.Array(ss)
}

// scanStringArray parses a driver-returned TEXT[] literal into out.
func scanStringArray(raw []byte, out *[]string) {
	if len(raw) == 0 {
		return
	}
	var arr pq.StringArray
	if err := arr.Scan(raw); err != nil {
		return
	}
	*out = []string(arr)
}
