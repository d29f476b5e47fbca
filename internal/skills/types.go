// Package skills loads markdown-defined agent skills from the workspace and
// global skill directories and builds the system-prompt summary the agent
// loop injects (or, above the inline threshold, points at skill_search for).
package skills

// Skill is a single loaded skill: YAML frontmatter metadata plus the
// markdown body that follows it.
type Skill struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Content     string `yaml:"-"`
	Path        string `yaml:"-"`
}
