package context

import "github.com/nextlevelbuilder/goclaw/internal/config"

const (
	defaultMemoryFlushSoftThresholdTokens = 4000
	defaultMemoryFlushPrompt              = "Before this conversation is compacted, write down anything worth remembering long-term using your memory tool."
	defaultMemoryFlushSystemPrompt        = "You are about to lose detailed access to this conversation's history. Persist anything durably useful to memory now."
)

// MemoryFlushSettings is the resolved (defaults-applied) configuration for
// the pre-compaction memory flush turn.
type MemoryFlushSettings struct {
	Enabled             bool
	SoftThresholdTokens int
	Prompt              string
	SystemPrompt        string
}

// ResolveMemoryFlushSettings applies config.MemoryFlushConfig's documented
// defaults (enabled unless explicitly disabled, 4000-token soft threshold)
// on top of whatever the operator configured in cfg.MemoryFlush.
func ResolveMemoryFlushSettings(cfg *config.CompactionConfig) MemoryFlushSettings {
	settings := MemoryFlushSettings{
		Enabled:             true,
		SoftThresholdTokens: defaultMemoryFlushSoftThresholdTokens,
		Prompt:              defaultMemoryFlushPrompt,
		SystemPrompt:        defaultMemoryFlushSystemPrompt,
	}

	if cfg == nil || cfg.MemoryFlush == nil {
		return settings
	}

	mf := cfg.MemoryFlush
	if mf.Enabled != nil {
		settings.Enabled = *mf.Enabled
	}
	if mf.SoftThresholdTokens > 0 {
		settings.SoftThresholdTokens = mf.SoftThresholdTokens
	}
	if mf.Prompt != "" {
		settings.Prompt = mf.Prompt
	}
	if mf.SystemPrompt != "" {
		settings.SystemPrompt = mf.SystemPrompt
	}

	return settings
}
