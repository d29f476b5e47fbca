package skills

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// frontmatterDelim marks the start/end of a skill's YAML frontmatter block.
const frontmatterDelim = "---"

// Loader discovers skills as markdown files (optionally prefixed with YAML
// frontmatter) under up to three directories, in increasing priority:
// workspace < global < extra. A skill with the same name in a
// higher-priority directory shadows a lower-priority one.
type Loader struct {
	workspaceDir string
	globalDir    string
	extraDir     string

	mu     sync.RWMutex
	skills map[string]Skill // name -> skill, already priority-resolved
}

// NewLoader scans workspaceDir/skills, globalDir, and extraDir (any of
// which may be empty) for *.md skill files and loads them immediately.
func NewLoader(workspaceDir, globalDir, extraDir string) *Loader {
	l := &Loader{workspaceDir: workspaceDir, globalDir: globalDir, extraDir: extraDir}
	l.Reload()
	return l
}

// dirs returns the loader's source directories in priority order (lowest first).
func (l *Loader) dirs() []string {
	var out []string
	if l.workspaceDir != "" {
		out = append(out, filepath.Join(l.workspaceDir, "skills"))
	}
	if l.globalDir != "" {
		out = append(out, l.globalDir)
	}
	if l.extraDir != "" {
		out = append(out, l.extraDir)
	}
	return out
}

// Reload rescans all source directories, replacing the in-memory skill set.
// Safe to call concurrently with readers and from a file watcher.
func (l *Loader) Reload() error {
	merged := map[string]Skill{}
	for _, dir := range l.dirs() {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue // missing/unreadable source dirs are skipped, not fatal
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
				continue
			}
			path := filepath.Join(dir, e.Name())
			data, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			skill := parseSkill(e.Name(), string(data))
			skill.Path = path
			merged[skill.Name] = skill // later (higher-priority) dir wins
		}
	}

	l.mu.Lock()
	l.skills = merged
	l.mu.Unlock()
	return nil
}

// parseSkill splits optional YAML frontmatter from filename's markdown
// body, falling back to the filename (minus extension) as the skill name
// and the first non-empty body line as its description.
func parseSkill(filename, data string) Skill {
	name := strings.TrimSuffix(filename, ".md")
	skill := Skill{Name: name, Content: data}

	trimmed := strings.TrimLeft(data, "\n")
	if strings.HasPrefix(trimmed, frontmatterDelim) {
		rest := trimmed[len(frontmatterDelim):]
		if idx := strings.Index(rest, "\n"+frontmatterDelim); idx >= 0 {
			fm := rest[:idx]
			body := rest[idx+len(frontmatterDelim)+1:]
			var parsed Skill
			if err := yaml.Unmarshal([]byte(fm), &parsed); err == nil {
				if parsed.Name != "" {
					skill.Name = parsed.Name
				}
				skill.Description = parsed.Description
			}
			skill.Content = strings.TrimLeft(body, "\n")
		}
	}

	if skill.Description == "" {
		for _, line := range strings.Split(skill.Content, "\n") {
			line = strings.TrimSpace(line)
			if line != "" && !strings.HasPrefix(line, "#") {
				skill.Description = line
				break
			}
		}
	}

	return skill
}

// ListSkills returns all loaded skill names, sorted.
func (l *Loader) ListSkills() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.skills))
	for name := range l.skills {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FilterSkills returns the loaded skills whose name passes allowList: nil
// means all skills, an empty non-nil slice means none, otherwise only the
// named skills (in allowList order).
func (l *Loader) FilterSkills(allowList []string) []Skill {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if allowList == nil {
		out := make([]Skill, 0, len(l.skills))
		for _, name := range l.sortedNamesLocked() {
			out = append(out, l.skills[name])
		}
		return out
	}
	out := make([]Skill, 0, len(allowList))
	for _, name := range allowList {
		if s, ok := l.skills[name]; ok {
			out = append(out, s)
		}
	}
	return out
}

func (l *Loader) sortedNamesLocked() []string {
	names := make([]string, 0, len(l.skills))
	for name := range l.skills {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the named skill's full content, or false if it isn't loaded.
func (l *Loader) Get(name string) (Skill, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.skills[name]
	return s, ok
}

// BuildSummary renders an XML-ish <available_skills> block listing the
// filtered skills' names and descriptions, for inlining into a system
// prompt (below skillInlineMaxCount/skillInlineMaxTokens thresholds).
func (l *Loader) BuildSummary(allowList []string) string {
	filtered := l.FilterSkills(allowList)
	if len(filtered) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("<available_skills>\n")
	for _, s := range filtered {
		fmt.Fprintf(&b, "  <skill name=%q>%s</skill>\n", s.Name, s.Description)
	}
	b.WriteString("</available_skills>")
	return b.String()
}

// SearchDirs exposes the loader's source directories for a file watcher.
func (l *Loader) SearchDirs() []string {
	return l.dirs()
}
