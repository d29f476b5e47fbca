// Package sandbox manages per-session Docker containers that exec and
// filesystem tools route into when sandboxing is enabled, instead of
// touching the host directly.
package sandbox

// Mode controls which turns get routed through a sandbox container.
type Mode string

const (
	ModeOff     Mode = "off"      // never sandbox, always run on host
	ModeNonMain Mode = "non-main" // sandbox everything except the main/default agent
	ModeAll     Mode = "all"      // sandbox every agent
)

// Scope controls how containers are shared across sessions.
type Scope string

const (
	ScopeSession Scope = "session" // one container per session key (default)
	ScopeAgent   Scope = "agent"   // one container shared by every session of an agent
	ScopeShared  Scope = "shared"  // one container shared by the whole process
)

// WorkspaceAccess controls whether the container can see the agent's
// workspace directory on the host, and how.
type WorkspaceAccess string

const (
	AccessNone WorkspaceAccess = "none" // no bind mount
	AccessRO   WorkspaceAccess = "ro"   // read-only bind mount
	AccessRW   WorkspaceAccess = "rw"   // read-write bind mount (default)
)

// Config is the fully-resolved sandbox configuration for one agent, with
// every default applied. config.SandboxConfig.ToSandboxConfig produces one
// of these from the operator's raw JSON config.
type Config struct {
	Mode            Mode
	Image           string
	WorkspaceAccess WorkspaceAccess
	Scope           Scope
	MemoryMB        int
	CPUs            float64
	TimeoutSec      int
	NetworkEnabled  bool
	ReadOnlyRoot    bool
	SetupCommand    string
	Env             map[string]string

	User           string
	TmpfsSizeMB    int
	MaxOutputBytes int

	IdleHours        int
	MaxAgeDays       int
	PruneIntervalMin int
}

// DefaultConfig returns the baseline sandbox configuration before any
// operator overrides are applied.
func DefaultConfig() Config {
	return Config{
		Mode:            ModeOff,
		Image:           "goclaw-sandbox:bookworm-slim",
		WorkspaceAccess: AccessRW,
		Scope:           ScopeSession,
		MemoryMB:        512,
		CPUs:            1.0,
		TimeoutSec:      300,
		NetworkEnabled:  false,
		ReadOnlyRoot:    true,
		MaxOutputBytes:  1 << 20,
		IdleHours:       24,
		MaxAgeDays:      7,
		PruneIntervalMin: 5,
	}
}

// ContainerWorkdir returns the path the workspace is mounted at inside the
// container.
func (c Config) ContainerWorkdir() string {
	return "/workspace"
}
