package sandbox

import (
	"regexp"
	"strings"
)

var importLine = regexp.MustCompile(`^(\s*)(import\s+[\w.]+|from\s+[\w.]+\s+import\s+)`)

// stripImports replaces import statements with pass. Every name the code
// may use is already predeclared, and Starlark has no import statement.
func stripImports(code string) string {
	lines := strings.Split(code, "\n")
	for i, line := range lines {
		if m := importLine.FindStringSubmatch(line); m != nil {
			lines[i] = m[1] + "pass"
		}
	}
	return strings.Join(lines, "\n")
}
