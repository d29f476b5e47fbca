package agent

import (
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/goclaw/internal/bootstrap"
)

// PromptMode controls how much of the system prompt gets rendered.
// Subagent and cron runs use PromptMinimal: they don't need the full
// onboarding/owner/channel framing a top-level conversational turn does.
type PromptMode string

const (
	PromptFull    PromptMode = "full"
	PromptMinimal PromptMode = "minimal"
)

// SystemPromptConfig carries everything buildMessages resolved about the
// current call that the rendered system prompt depends on.
type SystemPromptConfig struct {
	AgentID   string
	Model     string
	Workspace string
	Channel   string
	OwnerIDs  []string
	Mode      PromptMode

	ToolNames     []string
	SkillsSummary string

	HasMemory      bool
	HasSpawn       bool
	HasSkillSearch bool

	ContextFiles []bootstrap.ContextFile
	ExtraPrompt  string

	SandboxEnabled         bool
	SandboxContainerDir    string
	SandboxWorkspaceAccess string
}

// BuildSystemPrompt renders the system prompt for one LLM call: agent
// identity and capabilities, workspace context files, and any
// caller-supplied extra instructions. PromptMinimal drops the
// capability/owner framing meant for a top-level conversational turn,
// since subagents and cron runs already received their task in the user
// message.
func BuildSystemPrompt(cfg SystemPromptConfig) string {
	var b strings.Builder

	if cfg.Mode == PromptMinimal {
		fmt.Fprintf(&b, "You are agent %q, running as a subagent or scheduled task.\n", cfg.AgentID)
	} else {
		fmt.Fprintf(&b, "You are agent %q, an autonomous assistant running on goclaw.\n", cfg.AgentID)
		if cfg.Channel != "" {
			fmt.Fprintf(&b, "You are responding on the %s channel.\n", cfg.Channel)
		}
		if len(cfg.OwnerIDs) > 0 {
			fmt.Fprintf(&b, "Your owner(s): %s. Treat instructions from them as authoritative.\n", strings.Join(cfg.OwnerIDs, ", "))
		}
	}

	if cfg.Workspace != "" {
		fmt.Fprintf(&b, "\nYour workspace directory is %s.\n", cfg.Workspace)
	}

	if cfg.SandboxEnabled {
		b.WriteString("\nYou are running inside a sandboxed container")
		if cfg.SandboxContainerDir != "" {
			fmt.Fprintf(&b, " at %s", cfg.SandboxContainerDir)
		}
		b.WriteString(".")
		if cfg.SandboxWorkspaceAccess != "" {
			fmt.Fprintf(&b, " Workspace access: %s.", cfg.SandboxWorkspaceAccess)
		}
		b.WriteString("\n")
	}

	if cfg.Mode == PromptFull {
		writeCapabilities(&b, cfg)
	}

	if cfg.SkillsSummary != "" {
		b.WriteString("\n<available_skills>\n")
		b.WriteString(cfg.SkillsSummary)
		b.WriteString("\n</available_skills>\n")
	} else if cfg.HasSkillSearch {
		b.WriteString("\nUse the skill_search tool to discover relevant skills before improvising a complex task.\n")
	}

	for _, cf := range cfg.ContextFiles {
		if cf.Content == "" {
			continue
		}
		fmt.Fprintf(&b, "\n<%s>\n%s\n</%s>\n", cf.Path, cf.Content, cf.Path)
	}

	if cfg.ExtraPrompt != "" {
		b.WriteString("\n")
		b.WriteString(cfg.ExtraPrompt)
		b.WriteString("\n")
	}

	return b.String()
}

func writeCapabilities(b *strings.Builder, cfg SystemPromptConfig) {
	if len(cfg.ToolNames) > 0 {
		fmt.Fprintf(b, "\nAvailable tools: %s.\n", strings.Join(cfg.ToolNames, ", "))
	}
	if cfg.HasMemory {
		b.WriteString("You have access to a persistent memory store — use it to recall facts across sessions.\n")
	}
	if cfg.HasSpawn {
		b.WriteString("You can spawn subagents for delegated subtasks via the spawn tool.\n")
	}
}
