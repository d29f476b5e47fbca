package sandbox

import (
	"context"
	"errors"
)

// ErrSandboxDisabled is returned by Manager.Get when sandboxing is
// configured off; callers fall back to direct host execution.
var ErrSandboxDisabled = errors.New("sandbox: disabled")

// ExecResult is the outcome of running a command inside a Sandbox.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Sandbox is a single running container that tool calls can exec commands
// and read/write files into.
type Sandbox interface {
	ID() string
	Exec(ctx context.Context, cmd []string, workdir string) (ExecResult, error)
}

// Manager resolves a session/agent-scoped key to a running Sandbox,
// creating the backing container on first use per the configured Scope.
type Manager interface {
	Get(ctx context.Context, key, hostWorkspace string) (Sandbox, error)

	// Stop halts any background maintenance the manager runs (e.g. idle
	// container pruning). It does not release running containers.
	Stop()

	// ReleaseAll stops and removes every container the manager created,
	// called once during graceful shutdown.
	ReleaseAll(ctx context.Context) error
}
