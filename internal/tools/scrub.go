package tools

import "regexp"

// secretPatterns catches the common shapes of credential leaked into a
// tool's stdout/stderr (e.g. a misconfigured command that echoes an env
// var) before the result reaches the model.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-ant-[A-Za-z0-9_-]{20,}`),
	regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`),
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._-]{20,}`),
	regexp.MustCompile(`ghp_[A-Za-z0-9]{36}`),
	regexp.MustCompile(`xox[baprs]-[A-Za-z0-9-]{10,}`),
}

const scrubReplacement = "[REDACTED]"

// scrubSecrets replaces anything that looks like a credential in s with a
// placeholder, so a tool result can't leak a secret into the model context
// or session history.
func scrubSecrets(s string) string {
	for _, p := range secretPatterns {
		s = p.ReplaceAllString(s, scrubReplacement)
	}
	return s
}
