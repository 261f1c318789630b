// Package normalize strips non-semantic control tokens from model output
// before fingerprinting. The same function must be applied at call time and
// at verification time; fingerprinting raw output on one side and normalized
// output on the other silently breaks replay verification.
package normalize

import (
	"regexp"
	"strings"
)

var (
	// Reasoning blocks: an analysis channel opened with a channel token,
	// an internal message tag, and a closing end token. (?s) so the block
	// may span lines; non-greedy so adjacent blocks are not merged.
	reasoningBlock = regexp.MustCompile(`(?s)<\|channel\|>\s*analysis\s*<\|message\|>.*?<\|end\|>`)

	// Any remaining <|...|> control marker (channel, role, separator).
	controlMarker = regexp.MustCompile(`<\|[^|]*\|>`)
)

// Normalize removes reasoning blocks and control markers and trims
// surrounding whitespace. No case folding and no whitespace collapsing:
// normalization is minimal so real content differences stay detectable.
func Normalize(raw string) string {
	out := strings.TrimSpace(reasoningBlock.ReplaceAllString(raw, ""))
	out = strings.TrimSpace(controlMarker.ReplaceAllString(out, ""))
	return out
}

// StripMarkers removes only the generic control markers, without touching
// reasoning blocks. The extractor uses this as its first cleanup step.
func StripMarkers(raw string) string {
	return strings.TrimSpace(controlMarker.ReplaceAllString(raw, ""))
}
