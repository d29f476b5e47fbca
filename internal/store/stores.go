package store

// Stores is the top-level container for all storage backends. A
// single-operator deployment runs entirely on the file-backed
// implementations; the Postgres-backed ones in internal/store/pg are an
// optional durable mirror for sessions, pairing, traces, and MCP server
// registration.
type Stores struct {
	Sessions SessionStore
	Memory   MemoryStore
	Cron     CronStore
	Pairing  PairingStore
	Skills   SkillStore
	Tracing  TracingStore // nil when no trace store is configured
	MCP      MCPServerStore
	BuiltinTools BuiltinToolStore
}
