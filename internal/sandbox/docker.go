package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// CheckDockerAvailable pings the local Docker daemon, returning an error if
// it's unreachable (binary missing, daemon not running). Called once at
// startup so the gateway can log a clear warning instead of failing every
// sandboxed exec individually.
func CheckDockerAvailable(ctx context.Context) error {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return fmt.Errorf("docker client: %w", err)
	}
	defer cli.Close()

	if _, err := cli.Ping(ctx); err != nil {
		return fmt.Errorf("docker daemon unreachable: %w", err)
	}
	return nil
}

// dockerSandbox is a single running container, keyed by session/agent/shared
// scope in DockerManager.
type dockerSandbox struct {
	cli         *client.Client
	containerID string
}

func (s *dockerSandbox) ID() string { return s.containerID }

func (s *dockerSandbox) Exec(ctx context.Context, cmd []string, workdir string) (ExecResult, error) {
	execConfig := container.ExecOptions{
		Cmd:          cmd,
		WorkingDir:   workdir,
		AttachStdout: true,
		AttachStderr: true,
	}

	execID, err := s.cli.ContainerExecCreate(ctx, s.containerID, execConfig)
	if err != nil {
		return ExecResult{}, fmt.Errorf("exec create: %w", err)
	}

	attachResp, err := s.cli.ContainerExecAttach(ctx, execID.ID, container.ExecAttachOptions{})
	if err != nil {
		return ExecResult{}, fmt.Errorf("exec attach: %w", err)
	}
	defer attachResp.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, attachResp.Reader); err != nil {
		return ExecResult{}, fmt.Errorf("exec stream: %w", err)
	}

	inspect, err := s.cli.ContainerExecInspect(ctx, execID.ID)
	if err != nil {
		return ExecResult{}, fmt.Errorf("exec inspect: %w", err)
	}

	return ExecResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: inspect.ExitCode,
	}, nil
}

// DockerManager lazily creates and reuses sandbox containers per key,
// scoped per cfg.Scope by the caller choosing what key to pass to Get.
type DockerManager struct {
	cfg Config
	cli *client.Client

	mu         sync.Mutex
	containers map[string]*dockerSandbox
}

// NewDockerManager returns a Manager that creates containers from cfg on
// demand. If cfg.Mode is ModeOff, Get always returns ErrSandboxDisabled.
func NewDockerManager(cfg Config) Manager {
	return &DockerManager{cfg: cfg, containers: make(map[string]*dockerSandbox)}
}

func (m *DockerManager) Get(ctx context.Context, key, hostWorkspace string) (Sandbox, error) {
	if m.cfg.Mode == ModeOff {
		return nil, ErrSandboxDisabled
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if sb, ok := m.containers[key]; ok {
		return sb, nil
	}

	if m.cli == nil {
		cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			return nil, fmt.Errorf("docker client: %w", err)
		}
		m.cli = cli
	}

	sb, err := m.createContainer(ctx, key, hostWorkspace)
	if err != nil {
		return nil, err
	}
	m.containers[key] = sb
	return sb, nil
}

func (m *DockerManager) createContainer(ctx context.Context, key, hostWorkspace string) (*dockerSandbox, error) {
	containerCfg := &container.Config{
		Image:      m.cfg.Image,
		Cmd:        []string{"sleep", "infinity"},
		WorkingDir: m.cfg.ContainerWorkdir(),
		User:       m.cfg.User,
		Tty:        false,
	}
	if len(m.cfg.Env) > 0 {
		for k, v := range m.cfg.Env {
			containerCfg.Env = append(containerCfg.Env, k+"="+v)
		}
	}

	hostCfg := &container.HostConfig{
		NetworkMode:    "none",
		ReadonlyRootfs: m.cfg.ReadOnlyRoot,
		Resources: container.Resources{
			Memory:   int64(m.cfg.MemoryMB) * 1024 * 1024,
			NanoCPUs: int64(m.cfg.CPUs * 1e9),
		},
	}
	if m.cfg.NetworkEnabled {
		hostCfg.NetworkMode = "bridge"
	}
	if m.cfg.WorkspaceAccess != AccessNone && hostWorkspace != "" {
		hostCfg.Mounts = []mount.Mount{{
			Type:     mount.TypeBind,
			Source:   hostWorkspace,
			Target:   m.cfg.ContainerWorkdir(),
			ReadOnly: m.cfg.WorkspaceAccess == AccessRO,
		}}
	}

	resp, err := m.cli.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, "goclaw-sandbox-"+key)
	if err != nil {
		return nil, fmt.Errorf("container create: %w", err)
	}
	if err := m.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("container start: %w", err)
	}

	if m.cfg.SetupCommand != "" {
		sb := &dockerSandbox{cli: m.cli, containerID: resp.ID}
		if result, err := sb.Exec(ctx, []string{"sh", "-c", m.cfg.SetupCommand}, m.cfg.ContainerWorkdir()); err != nil || result.ExitCode != 0 {
			slog.Warn("sandbox setup command failed", "container", resp.ID, "error", err, "exit_code", result.ExitCode)
		}
	}

	slog.Info("sandbox container created", "key", key, "container", resp.ID, "image", m.cfg.Image)
	return &dockerSandbox{cli: m.cli, containerID: resp.ID}, nil
}

// Stop is a no-op for DockerManager: it runs no background maintenance
// goroutine of its own, so there is nothing to halt before ReleaseAll.
func (m *DockerManager) Stop() {}

// ReleaseAll stops and removes every container this manager created.
// Errors for individual containers are logged, not returned, so one stuck
// container doesn't prevent cleanup of the rest during shutdown.
func (m *DockerManager) ReleaseAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cli == nil {
		return nil
	}
	for key, sb := range m.containers {
		if err := m.cli.ContainerStop(ctx, sb.containerID, container.StopOptions{}); err != nil {
			slog.Warn("sandbox container stop failed", "key", key, "container", sb.containerID, "error", err)
		}
		if err := m.cli.ContainerRemove(ctx, sb.containerID, container.RemoveOptions{Force: true}); err != nil {
			slog.Warn("sandbox container remove failed", "key", key, "container", sb.containerID, "error", err)
		}
		delete(m.containers, key)
	}
	return nil
}
