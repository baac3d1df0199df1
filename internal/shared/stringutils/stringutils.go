// Package stringutils holds small text helpers shared across packages.
package stringutils

import "regexp"

var reThink = regexp.MustCompile(`(?s)<think>.*?</think>\s*`)

// Truncate shortens s to at most n runes, adding "..." if it was truncated.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// StripThink removes <think>…</think> blocks that some models embed.
func StripThink(s string) string {
	return reThink.ReplaceAllString(s, "")
}
