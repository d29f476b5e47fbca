package sandbox

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// FsBridge reads files out of a sandbox container for tools (like
// read_file) that only know a container ID, not the Manager that created
// it. It opens its own short-lived Docker client per call rather than
// holding a long-lived one, since it's constructed fresh per tool call.
type FsBridge struct {
	containerID string
	workdir     string
}

// NewFsBridge wraps containerID for file access rooted at workdir (the
// path the workspace is mounted at inside the container).
func NewFsBridge(containerID, workdir string) *FsBridge {
	return &FsBridge{containerID: containerID, workdir: workdir}
}

// ReadFile cats path (resolved relative to the bridge's workdir if not
// already absolute) out of the container via docker exec.
func (b *FsBridge) ReadFile(ctx context.Context, path string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(b.workdir, path)
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return "", fmt.Errorf("docker client: %w", err)
	}
	defer cli.Close()

	execID, err := cli.ContainerExecCreate(ctx, b.containerID, container.ExecOptions{
		Cmd:          []string{"cat", path},
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return "", fmt.Errorf("exec create: %w", err)
	}

	attachResp, err := cli.ContainerExecAttach(ctx, execID.ID, container.ExecAttachOptions{})
	if err != nil {
		return "", fmt.Errorf("exec attach: %w", err)
	}
	defer attachResp.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, attachResp.Reader); err != nil {
		return "", fmt.Errorf("exec stream: %w", err)
	}

	inspect, err := cli.ContainerExecInspect(ctx, execID.ID)
	if err != nil {
		return "", fmt.Errorf("exec inspect: %w", err)
	}
	if inspect.ExitCode != 0 {
		msg := stderr.String()
		if msg == "" {
			msg = fmt.Sprintf("cat exited with code %d", inspect.ExitCode)
		}
		return "", fmt.Errorf("%s", msg)
	}

	return stdout.String(), nil
}

// WriteFile writes content to path inside the container, creating parent
// directories as needed. Content is base64-encoded over the exec command
// line to avoid quoting/escaping issues with arbitrary bytes.
func (b *FsBridge) WriteFile(ctx context.Context, path, content string) error {
	if !filepath.IsAbs(path) {
		path = filepath.Join(b.workdir, path)
	}
	encoded := base64.StdEncoding.EncodeToString([]byte(content))
	script := fmt.Sprintf("mkdir -p %q && echo %s | base64 -d > %q", filepath.Dir(path), encoded, path)
	_, stderr, exitCode, err := b.exec(ctx, []string{"sh", "-c", script})
	if err != nil {
		return err
	}
	if exitCode != 0 {
		if stderr == "" {
			stderr = fmt.Sprintf("write exited with code %d", exitCode)
		}
		return fmt.Errorf("%s", stderr)
	}
	return nil
}

// ListDir lists the immediate entries of path inside the container via ls.
func (b *FsBridge) ListDir(ctx context.Context, path string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(b.workdir, path)
	}
	stdout, stderr, exitCode, err := b.exec(ctx, []string{"ls", "-1p", path})
	if err != nil {
		return "", err
	}
	if exitCode != 0 {
		if stderr == "" {
			stderr = fmt.Sprintf("ls exited with code %d", exitCode)
		}
		return "", fmt.Errorf("%s", stderr)
	}
	return stdout, nil
}

// exec runs cmd inside the container and returns its stdout, stderr, and exit code.
func (b *FsBridge) exec(ctx context.Context, cmd []string) (stdout, stderr string, exitCode int, err error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return "", "", 0, fmt.Errorf("docker client: %w", err)
	}
	defer cli.Close()

	execID, err := cli.ContainerExecCreate(ctx, b.containerID, container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return "", "", 0, fmt.Errorf("exec create: %w", err)
	}

	attachResp, err := cli.ContainerExecAttach(ctx, execID.ID, container.ExecAttachOptions{})
	if err != nil {
		return "", "", 0, fmt.Errorf("exec attach: %w", err)
	}
	defer attachResp.Close()

	var outBuf, errBuf bytes.Buffer
	if _, err := stdcopy.StdCopy(&outBuf, &errBuf, attachResp.Reader); err != nil {
		return "", "", 0, fmt.Errorf("exec stream: %w", err)
	}

	inspect, err := cli.ContainerExecInspect(ctx, execID.ID)
	if err != nil {
		return "", "", 0, fmt.Errorf("exec inspect: %w", err)
	}

	return strings.TrimRight(outBuf.String(), "\n"), errBuf.String(), inspect.ExitCode, nil
}
