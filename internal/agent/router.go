package agent

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Agent is anything the router can dispatch a RunRequest to. *Loop is the
// only production implementation; tests may stub it.
type Agent interface {
	Run(ctx context.Context, req RunRequest) (*RunResult, error)
}

// ResolverFunc builds (or looks up) the Agent behind agentKey. Resolution is
// lazy: the router only calls this on a cache miss, so config-driven
// deployments that Register agents eagerly up front never invoke it at all.
type ResolverFunc func(agentKey string) (Agent, error)

type agentEntry struct {
	agent Agent
}

// Router is the process-wide agent directory: every inbound message,
// scheduled job, and cron fiber resolves its target agent through here
// rather than holding a direct *Loop reference, so agents can be
// invalidated and rebuilt (e.g. after a config reload) without restarting
// the gateway.
type Router struct {
	mu       sync.Mutex
	agents   map[string]*agentEntry
	resolver ResolverFunc
}

// NewRouter returns an empty router. Call SetResolver to enable lazy
// resolution, or Register to populate it eagerly (the config-driven
// standalone path does this once at startup for every configured agent).
func NewRouter() *Router {
	return &Router{agents: make(map[string]*agentEntry)}
}

// SetResolver installs the fallback used on a cache miss.
func (r *Router) SetResolver(fn ResolverFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolver = fn
}

// Register adds or replaces an already-built agent under agentKey.
func (r *Router) Register(agentKey string, ag Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[agentKey] = &agentEntry{agent: ag}
}

// Get returns the agent for agentKey, resolving and caching it on first use
// if a resolver is installed and no entry exists yet.
func (r *Router) Get(agentKey string) (Agent, error) {
	r.mu.Lock()
	entry, ok := r.agents[agentKey]
	resolver := r.resolver
	r.mu.Unlock()
	if ok {
		return entry.agent, nil
	}
	if resolver == nil {
		return nil, fmt.Errorf("agent %q not registered", agentKey)
	}

	ag, err := resolver(agentKey)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.agents[agentKey] = &agentEntry{agent: ag}
	r.mu.Unlock()
	return ag, nil
}

// List returns every currently-resolved agent key, sorted.
func (r *Router) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.agents))
	for k := range r.agents {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
