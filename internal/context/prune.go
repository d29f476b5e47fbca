package context

import (
	"github.com/nextlevelbuilder/goclaw/internal/config"
	"github.com/nextlevelbuilder/goclaw/internal/providers"
)

// defaultSoftTrimRatio/defaultHardClearRatio/defaultKeepLastAssistants/
// defaultMinPrunableToolChars mirror config.ContextPruningConfig's
// documented defaults so PruneMessages behaves sanely when the operator
// hasn't customized it.
const (
	defaultSoftTrimRatio        = 0.30
	defaultHardClearRatio       = 0.50
	defaultKeepLastAssistants   = 3
	defaultMinPrunableToolChars = 50000
	defaultSoftTrimMaxChars     = 4000
	defaultSoftTrimHeadChars    = 1500
	defaultSoftTrimTailChars    = 1500
	defaultHardClearPlaceholder = "[Old tool result content cleared]"
)

// PruneMessages reduces the size of old tool-result messages once the
// estimated token count of msgs exceeds softTrimRatio (then hardClearRatio)
// of contextWindow. The last keepLastAssistants assistant turns (and their
// tool results) are always left untouched, since those are the turns most
// likely to still be referenced by the model's current reasoning. A nil
// cfg or Mode != "cache-ttl" disables pruning entirely.
func PruneMessages(msgs []providers.Message, contextWindow int, cfg *config.ContextPruningConfig) []providers.Message {
	if cfg == nil || cfg.Mode != "cache-ttl" || contextWindow <= 0 || len(msgs) == 0 {
		return msgs
	}

	softRatio := cfg.SoftTrimRatio
	if softRatio <= 0 {
		softRatio = defaultSoftTrimRatio
	}
	hardRatio := cfg.HardClearRatio
	if hardRatio <= 0 {
		hardRatio = defaultHardClearRatio
	}
	keepLast := cfg.KeepLastAssistants
	if keepLast <= 0 {
		keepLast = defaultKeepLastAssistants
	}
	minChars := cfg.MinPrunableToolChars
	if minChars <= 0 {
		minChars = defaultMinPrunableToolChars
	}

	estimate := EstimateTokens(msgs)
	softBudget := int(float64(contextWindow) * softRatio)
	if estimate <= softBudget {
		return msgs
	}

	protectedFrom := protectedAssistantStartIndex(msgs, keepLast)
	hardBudget := int(float64(contextWindow) * hardRatio)
	hardClear := estimate > hardBudget

	totalPrunable := 0
	for i := 0; i < protectedFrom; i++ {
		if msgs[i].Role == "tool" {
			totalPrunable += len(msgs[i].Content)
		}
	}
	if totalPrunable < minChars {
		return msgs
	}

	out := make([]providers.Message, len(msgs))
	copy(out, msgs)

	for i := 0; i < protectedFrom; i++ {
		if out[i].Role != "tool" {
			continue
		}
		if hardClear {
			out[i].Content = clearPlaceholder(cfg)
		} else {
			out[i].Content = softTrim(out[i].Content, cfg)
		}
	}

	return out
}

// protectedAssistantStartIndex returns the index at which the last n
// assistant messages (and everything after) begin, protecting them from
// pruning.
func protectedAssistantStartIndex(msgs []providers.Message, n int) int {
	count := 0
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "assistant" {
			count++
			if count == n {
				return i
			}
		}
	}
	return 0
}

func softTrim(content string, cfg *config.ContextPruningConfig) string {
	maxChars := defaultSoftTrimMaxChars
	headChars := defaultSoftTrimHeadChars
	tailChars := defaultSoftTrimTailChars
	if cfg.SoftTrim != nil {
		if cfg.SoftTrim.MaxChars > 0 {
			maxChars = cfg.SoftTrim.MaxChars
		}
		if cfg.SoftTrim.HeadChars > 0 {
			headChars = cfg.SoftTrim.HeadChars
		}
		if cfg.SoftTrim.TailChars > 0 {
			tailChars = cfg.SoftTrim.TailChars
		}
	}
	if len(content) <= maxChars {
		return content
	}
	if headChars+tailChars >= len(content) {
		return content
	}
	return content[:headChars] + "\n...[trimmed]...\n" + content[len(content)-tailChars:]
}

func clearPlaceholder(cfg *config.ContextPruningConfig) string {
	if cfg.HardClear != nil && cfg.HardClear.Placeholder != "" {
		return cfg.HardClear.Placeholder
	}
	return defaultHardClearPlaceholder
}
