package agent

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/nextlevelbuilder/goclaw/internal/bootstrap"
	"github.com/nextlevelbuilder/goclaw/internal/bus"
	"github.com/nextlevelbuilder/goclaw/internal/config"
	"github.com/nextlevelbuilder/goclaw/internal/providers"
	"github.com/nextlevelbuilder/goclaw/internal/skills"
	"github.com/nextlevelbuilder/goclaw/internal/store"
	"github.com/nextlevelbuilder/goclaw/internal/tools"
	"github.com/nextlevelbuilder/goclaw/internal/tracing"
)

// ResolverDeps holds the shared dependencies every config-driven agent is
// built from. One Router serves every configured agent; NewConfigResolver
// builds a Loop per agentID the first time it's requested, pulling
// per-agent overrides from cfg.Agents.List[agentID] and falling back to
// cfg.Agents.Defaults.
type ResolverDeps struct {
	Config      *config.Config
	ProviderReg *providers.Registry
	Bus         bus.EventPublisher
	Sessions    store.SessionStore
	Tools       *tools.Registry
	ToolPolicy  *tools.PolicyEngine
	Skills      *skills.Loader
	HasMemory   bool
	OnEvent     func(AgentEvent)

	TraceCollector *tracing.Collector

	// Per-user file seeding + dynamic context loading; both nil in
	// single-operator deployments (no durable per-user store to seed from).
	EnsureUserFiles   EnsureUserFilesFunc
	ContextFileLoader ContextFileLoaderFunc
	BootstrapCleanup  BootstrapCleanupFunc

	// Security
	InjectionAction string // "log", "warn", "block", "off"
	MaxMessageChars int

	// Global defaults. Only the sandbox settings can be overridden per agent
	// (config.AgentSpec.Sandbox); compaction and pruning are always global.
	CompactionCfg          *config.CompactionConfig
	ContextPruningCfg      *config.ContextPruningConfig
	SandboxEnabled         bool
	SandboxContainerDir    string
	SandboxWorkspaceAccess string

	// Workspace-seeded context files, shared across every agent unless a
	// per-agent override replaces them.
	ContextFiles []bootstrap.ContextFile
}

// NewConfigResolver creates a ResolverFunc that builds a Loop from
// config.json's agents.list[agentID] (falling back to agents.defaults for
// anything unset). This is the only agent-resolution path a single-operator
// deployment needs: every agent is named in config.json up front, so the
// Router typically has them all Registered eagerly and this resolver only
// runs on an explicit reload or a key the router hasn't seen yet.
func NewConfigResolver(deps ResolverDeps) ResolverFunc {
	return func(agentID string) (Agent, error) {
		defaults := deps.Config.Agents.Defaults
		spec, ok := deps.Config.Agents.List[agentID]
		if !ok {
			return nil, fmt.Errorf("agent not configured: %s", agentID)
		}

		providerName := firstNonEmpty(spec.Provider, defaults.Provider)
		provider, err := deps.ProviderReg.Get(providerName)
		if err != nil {
			names := deps.ProviderReg.List()
			if len(names) == 0 {
				return nil, fmt.Errorf("no providers configured for agent %s", agentID)
			}
			provider, _ = deps.ProviderReg.Get(names[0])
			slog.Warn("agent provider not found, using fallback",
				"agent", agentID, "wanted", providerName, "using", names[0])
		}
		if provider == nil {
			return nil, fmt.Errorf("no provider available for agent %s", agentID)
		}

		contextWindow := spec.ContextWindow
		if contextWindow <= 0 {
			contextWindow = defaults.ContextWindow
		}
		if contextWindow <= 0 {
			contextWindow = 200000
		}
		maxIter := spec.MaxToolIterations
		if maxIter <= 0 {
			maxIter = defaults.MaxToolIterations
		}
		if maxIter <= 0 {
			maxIter = 20
		}

		compactionCfg := deps.CompactionCfg
		contextPruningCfg := deps.ContextPruningCfg
		sandboxEnabled := deps.SandboxEnabled
		sandboxContainerDir := deps.SandboxContainerDir
		sandboxWorkspaceAccess := deps.SandboxWorkspaceAccess
		if spec.Sandbox != nil {
			resolved := spec.Sandbox.ToSandboxConfig()
			sandboxEnabled = true
			sandboxContainerDir = resolved.ContainerWorkdir()
			sandboxWorkspaceAccess = string(resolved.WorkspaceAccess)
		}

		workspace := firstNonEmpty(spec.Workspace, defaults.Workspace)
		if workspace != "" {
			workspace = config.ExpandHome(workspace)
			if !filepath.IsAbs(workspace) {
				workspace, _ = filepath.Abs(workspace)
			}
			if err := os.MkdirAll(workspace, 0755); err != nil {
				slog.Warn("failed to create agent workspace directory", "workspace", workspace, "agent", agentID, "error", err)
			}
		}

		agentType := firstNonEmpty(spec.AgentType, defaults.AgentType)

		loop := NewLoop(LoopConfig{
			ID:                     agentID,
			AgentType:              agentType,
			Provider:               provider,
			Model:                  firstNonEmpty(spec.Model, defaults.Model),
			ContextWindow:          contextWindow,
			MaxIterations:          maxIter,
			Workspace:              workspace,
			Bus:                    deps.Bus,
			Sessions:               deps.Sessions,
			Tools:                  deps.Tools,
			ToolPolicy:             deps.ToolPolicy,
			AgentToolPolicy:        spec.Tools,
			SkillAllowList:         spec.Skills,
			SkillsLoader:           deps.Skills,
			HasMemory:              deps.HasMemory,
			ContextFiles:           deps.ContextFiles,
			EnsureUserFiles:        deps.EnsureUserFiles,
			ContextFileLoader:      deps.ContextFileLoader,
			BootstrapCleanup:       deps.BootstrapCleanup,
			OnEvent:                deps.OnEvent,
			TraceCollector:         deps.TraceCollector,
			InjectionAction:        deps.InjectionAction,
			MaxMessageChars:        deps.MaxMessageChars,
			CompactionCfg:          compactionCfg,
			ContextPruningCfg:      contextPruningCfg,
			SandboxEnabled:         sandboxEnabled,
			SandboxContainerDir:    sandboxContainerDir,
			SandboxWorkspaceAccess: sandboxWorkspaceAccess,
		})

		slog.Info("resolved agent from config", "agent", agentID, "model", loop.model, "provider", providerName)
		return loop, nil
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// InvalidateAgent removes an agent from the router cache, forcing re-resolution.
// Used when agent config is updated via API.
func (r *Router) InvalidateAgent(agentKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.agents, agentKey)
	slog.Debug("invalidated agent cache", "agent", agentKey)
}

// InvalidateAll clears the entire agent cache, forcing all agents to re-resolve.
// Used when global tools change (custom tools reload).
func (r *Router) InvalidateAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents = make(map[string]*agentEntry)
	slog.Debug("invalidated all agent caches")
}
