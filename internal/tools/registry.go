package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/nextlevelbuilder/goclaw/internal/providers"
)

// Tool is the interface every built-in or custom tool implements. Execute
// receives only ctx and args — anything about the caller's channel, chat,
// sandbox, or workspace is read back out of ctx via the accessors in
// context_keys.go, keeping tool instances safe to share across concurrent
// calls.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) *Result
}

// AsyncCallback lets a tool that returns Async: true deliver its real result
// later (e.g. a spawned subagent finishing after the parent turn already
// responded).
type AsyncCallback func(toolCallID string, result *Result)

// Registry holds every tool known to an agent, keyed by name.
type Registry struct {
	mu          sync.RWMutex
	tools       map[string]Tool
	rateLimiter *ToolRateLimiter
	scrubbing   bool
}

// NewRegistry returns an empty registry with output scrubbing (redacting
// secrets from tool results before they reach the model) enabled by
// default.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool), scrubbing: true}
}

// SetRateLimiter installs a per-tool rate limiter; nil disables limiting.
func (r *Registry) SetRateLimiter(rl *ToolRateLimiter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rateLimiter = rl
}

// SetScrubbing toggles redaction of secret-looking substrings from tool
// results before they're returned to the caller.
func (r *Registry) SetScrubbing(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scrubbing = enabled
}

// Register adds a tool, overwriting any existing tool of the same name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get returns the tool registered under name, if any.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Unregister removes a tool (e.g. an MCP server's tool going offline).
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// List returns every registered tool name, sorted for deterministic prompt
// rendering.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ProviderDefs returns every registered tool's provider-facing schema,
// unfiltered. Callers that need policy filtering go through
// PolicyEngine.FilterTools instead.
func (r *Registry) ProviderDefs() []providers.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]providers.ToolDefinition, 0, len(r.tools))
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		defs = append(defs, ToProviderDef(r.tools[name]))
	}
	return defs
}

// ToProviderDef converts a Tool into the provider-facing function-call
// schema.
func ToProviderDef(t Tool) providers.ToolDefinition {
	return providers.ToolDefinition{
		Type: "function",
		Function: providers.ToolFunctionSchema{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		},
	}
}

// ExecuteWithContext runs the named tool, recovering from panics and
// injecting call-scoped values (channel, chat, peer kind, session/sandbox
// key, async callback) into ctx the way context_keys.go expects.
func (r *Registry) ExecuteWithContext(ctx context.Context, name string, args map[string]interface{}, channel, chatID, peerKind, sandboxKey string, cb AsyncCallback) (result *Result) {
	tool, ok := r.Get(name)
	if !ok {
		return ErrorResult(fmt.Sprintf("unknown tool %q", name))
	}

	r.mu.RLock()
	limiter := r.rateLimiter
	scrub := r.scrubbing
	r.mu.RUnlock()

	if limiter != nil && !limiter.Allow(name) {
		return ErrorResult(fmt.Sprintf("tool %q rate limit exceeded", name))
	}

	ctx = WithToolChannel(ctx, channel)
	ctx = WithToolChatID(ctx, chatID)
	ctx = WithToolPeerKind(ctx, peerKind)
	ctx = WithToolSandboxKey(ctx, sandboxKey)
	if cb != nil {
		ctx = WithToolAsyncCB(ctx, cb)
	}

	defer func() {
		if p := recover(); p != nil {
			slog.Error("tool panicked", "tool", name, "panic", p)
			result = ErrorResult(fmt.Sprintf("tool %q panicked: %v", name, p))
		}
	}()

	result = tool.Execute(ctx, args)
	if scrub && result != nil {
		result.ForLLM = scrubSecrets(result.ForLLM)
		result.ForUser = scrubSecrets(result.ForUser)
	}
	return result
}

// Execute runs a tool without channel/chat/sandbox context — used by
// callers (e.g. the skill_search tool invoking another tool directly) that
// don't have a conversational context to propagate.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]interface{}) *Result {
	return r.ExecuteWithContext(ctx, name, args, "", "", "", "", nil)
}
