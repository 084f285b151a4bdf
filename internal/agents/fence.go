package agents

import (
	"strings"
	"unicode"
)

const fence = "```"

// StripCodeFence removes a leading ``` (with an optional language tag such as
// python or sql) and a trailing ```, ignoring whitespace after it. A word
// after the opening fence is only a tag when it ends the line, so inline
// fences keep their first word. Text without either marker is returned
// unchanged; otherwise the remainder is trimmed.
func StripCodeFence(s string) string {
	out := s
	stripped := false
	if strings.HasPrefix(out, fence) {
		out = out[len(fence):]
		out = out[tagLen(out):]
		stripped = true
	}
	if trimmed := strings.TrimRightFunc(out, unicode.IsSpace); strings.HasSuffix(trimmed, fence) {
		out = trimmed[:len(trimmed)-len(fence)]
		stripped = true
	}
	if !stripped {
		return s
	}
	return strings.TrimSpace(out)
}

// tagLen is the length of the language tag at the start of s, or 0 when the
// leading word is code rather than a tag.
func tagLen(s string) int {
	i := 0
	for i < len(s) && isTagByte(s[i]) {
		i++
	}
	j := i
	for j < len(s) && (s[j] == ' ' || s[j] == '\t' || s[j] == '\r') {
		j++
	}
	if j == len(s) || s[j] == '\n' {
		return i
	}
	return 0
}

func isTagByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' || c == '+' || c == '-'
}
