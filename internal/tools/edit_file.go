package tools

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/nextlevelbuilder/goclaw/internal/sandbox"
)

// EditTool performs an exact string replacement within an existing file,
// optionally through a sandbox container. It refuses ambiguous edits: the
// old string must appear exactly once, unless replace_all is set.
type EditTool struct {
	workspace       string
	restrict        bool
	allowedPrefixes []string
	deniedPrefixes  []string
	sandboxMgr      sandbox.Manager
}

func NewEditTool(workspace string, restrict bool) *EditTool {
	return &EditTool{workspace: workspace, restrict: restrict}
}

func NewSandboxedEditTool(workspace string, restrict bool, mgr sandbox.Manager) *EditTool {
	return &EditTool{workspace: workspace, restrict: restrict, sandboxMgr: mgr}
}

func (t *EditTool) AllowPaths(prefixes ...string) {
	t.allowedPrefixes = append(t.allowedPrefixes, prefixes...)
}

func (t *EditTool) DenyPaths(prefixes ...string) {
	t.deniedPrefixes = append(t.deniedPrefixes, prefixes...)
}

func (t *EditTool) Name() string { return "edit_file" }
func (t *EditTool) Description() string {
	return "Replace an exact string match within an existing file"
}
func (t *EditTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Path to the file to edit",
			},
			"old_string": map[string]interface{}{
				"type":        "string",
				"description": "Exact text to replace; must match exactly once unless replace_all is set",
			},
			"new_string": map[string]interface{}{
				"type":        "string",
				"description": "Replacement text",
			},
			"replace_all": map[string]interface{}{
				"type":        "boolean",
				"description": "Replace every occurrence instead of requiring exactly one",
			},
		},
		"required": []string{"path", "old_string", "new_string"},
	}
}

func (t *EditTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	path, _ := args["path"].(string)
	if path == "" {
		return ErrorResult("path is required")
	}
	oldString, _ := args["old_string"].(string)
	newString, _ := args["new_string"].(string)
	replaceAll, _ := args["replace_all"].(bool)
	if oldString == "" {
		return ErrorResult("old_string is required")
	}
	if oldString == newString {
		return ErrorResult("old_string and new_string must differ")
	}

	sandboxKey := ToolSandboxKeyFromCtx(ctx)
	if t.sandboxMgr != nil && sandboxKey != "" {
		return t.executeInSandbox(ctx, path, oldString, newString, replaceAll, sandboxKey)
	}

	workspace := ToolWorkspaceFromCtx(ctx)
	if workspace == "" {
		workspace = t.workspace
	}
	resolved, err := resolvePathWithAllowed(path, workspace, t.restrict, t.allowedPrefixes)
	if err != nil {
		return ErrorResult(err.Error())
	}
	if err := checkDeniedPath(resolved, t.workspace, t.deniedPrefixes); err != nil {
		return ErrorResult(err.Error())
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return ErrorResult(fmt.Sprintf("failed to read file: %v", err))
	}

	updated, replaceErr := applyEdit(string(data), oldString, newString, replaceAll)
	if replaceErr != nil {
		return ErrorResult(replaceErr.Error())
	}

	if err := os.WriteFile(resolved, []byte(updated), 0o644); err != nil {
		return ErrorResult(fmt.Sprintf("failed to write file: %v", err))
	}

	return SilentResult(fmt.Sprintf("edited %s", path))
}

func (t *EditTool) executeInSandbox(ctx context.Context, path, oldString, newString string, replaceAll bool, sandboxKey string) *Result {
	sb, err := t.sandboxMgr.Get(ctx, sandboxKey, t.workspace)
	if err != nil {
		return ErrorResult(fmt.Sprintf("sandbox error: %v", err))
	}
	bridge := sandbox.NewFsBridge(sb.ID(), "/workspace")

	content, err := bridge.ReadFile(ctx, path)
	if err != nil {
		return ErrorResult(fmt.Sprintf("failed to read file: %v", err))
	}

	updated, replaceErr := applyEdit(content, oldString, newString, replaceAll)
	if replaceErr != nil {
		return ErrorResult(replaceErr.Error())
	}

	if err := bridge.WriteFile(ctx, path, updated); err != nil {
		return ErrorResult(fmt.Sprintf("failed to write file: %v", err))
	}
	return SilentResult(fmt.Sprintf("edited %s", path))
}

// applyEdit replaces oldString with newString in content. With replaceAll
// false, oldString must occur exactly once; otherwise the edit is rejected
// as ambiguous (zero matches) or unsafe (multiple matches).
func applyEdit(content, oldString, newString string, replaceAll bool) (string, error) {
	count := strings.Count(content, oldString)
	if count == 0 {
		return "", fmt.Errorf("old_string not found in file")
	}
	if replaceAll {
		return strings.ReplaceAll(content, oldString, newString), nil
	}
	if count > 1 {
		return "", fmt.Errorf("old_string matches %d times; must be unique or set replace_all", count)
	}
	return strings.Replace(content, oldString, newString, 1), nil
}
