package bootstrap

import (
	"os"
	"path/filepath"
)

// DefaultMaxCharsPerFile bounds a single context file before it's truncated.
const DefaultMaxCharsPerFile = 20000

// DefaultTotalMaxChars bounds the combined size of all context files injected
// into a system prompt.
const DefaultTotalMaxChars = 60000

// workspaceFileOrder is the order context files are read from a workspace
// directory and, after truncation, concatenated into the system prompt.
var workspaceFileOrder = []string{
	AgentsFile,
	SoulFile,
	IdentityFile,
	ToolsFile,
	UserFile,
	HeartbeatFile,
	BootstrapFile,
}

// RawFile is an unprocessed workspace context file, read but not yet
// truncated to the configured size budget.
type RawFile struct {
	Path    string
	Content string
}

// TruncateConfig bounds how much of each workspace file — and how much in
// total — gets injected into an agent's system prompt.
type TruncateConfig struct {
	MaxCharsPerFile int
	TotalMaxChars   int
}

// LoadWorkspaceFiles reads the known context files (AGENTS.md, SOUL.md, etc.)
// from workspaceDir. Missing files are skipped; empty files are skipped.
func LoadWorkspaceFiles(workspaceDir string) []RawFile {
	var files []RawFile
	for _, name := range workspaceFileOrder {
		data, err := os.ReadFile(filepath.Join(workspaceDir, name))
		if err != nil || len(data) == 0 {
			continue
		}
		files = append(files, RawFile{Path: name, Content: string(data)})
	}
	return files
}

// BuildContextFiles truncates raw workspace files to cfg's per-file and
// total budgets, preserving workspaceFileOrder, and tags each with
// SourceWorkspace.
func BuildContextFiles(raw []RawFile, cfg TruncateConfig) []ContextFile {
	maxPerFile := cfg.MaxCharsPerFile
	if maxPerFile <= 0 {
		maxPerFile = DefaultMaxCharsPerFile
	}
	totalMax := cfg.TotalMaxChars
	if totalMax <= 0 {
		totalMax = DefaultTotalMaxChars
	}

	var out []ContextFile
	remaining := totalMax
	for _, f := range raw {
		if remaining <= 0 {
			break
		}
		content := f.Content
		if len(content) > maxPerFile {
			content = content[:maxPerFile]
		}
		if len(content) > remaining {
			content = content[:remaining]
		}
		remaining -= len(content)
		out = append(out, ContextFile{
			Path:    f.Path,
			Content: content,
			Source:  SourceWorkspace,
		})
	}
	return out
}
