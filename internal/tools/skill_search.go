package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/goclaw/internal/skills"
)

// SkillSearchTool lets the agent look up a loaded skill's full instructions
// by name, or search by keyword when the skill set is too large to inline
// into the system prompt (see resolveSkillsSummary's inline thresholds).
type SkillSearchTool struct {
	loader *skills.Loader
}

func NewSkillSearchTool(loader *skills.Loader) *SkillSearchTool {
	return &SkillSearchTool{loader: loader}
}

func (t *SkillSearchTool) Name() string { return "skill_search" }
func (t *SkillSearchTool) Description() string {
	return "Search loaded skills by name or keyword and return matching skill instructions"
}
func (t *SkillSearchTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "Skill name or keyword to search for",
			},
		},
		"required": []string{"query"},
	}
}

func (t *SkillSearchTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	query, _ := args["query"].(string)
	if query == "" {
		return ErrorResult("query is required")
	}
	if t.loader == nil {
		return ErrorResult("no skills are configured")
	}

	if s, ok := t.loader.Get(query); ok {
		return SilentResult(fmt.Sprintf("# %s\n\n%s", s.Name, s.Content))
	}

	lowered := strings.ToLower(query)
	var matches []string
	for _, s := range t.loader.FilterSkills(nil) {
		if strings.Contains(strings.ToLower(s.Name), lowered) || strings.Contains(strings.ToLower(s.Description), lowered) {
			matches = append(matches, fmt.Sprintf("- %s: %s", s.Name, s.Description))
		}
	}
	if len(matches) == 0 {
		return SilentResult(fmt.Sprintf("no skill matches %q", query))
	}
	return SilentResult(strings.Join(matches, "\n"))
}
