// Package extract recovers a structured JSON value from noisy model output:
// prose wrapping, markdown fences, control markers, or truncated documents.
package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/verascope-ai/verascope/pkg/normalize"
)

// ExtractionError reports that no structured value could be recovered.
// Text carries a bounded excerpt of the offending output for diagnostics.
type ExtractionError struct {
	Text string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("no structured value found in output: %q", e.Text)
}

const errExcerptLen = 200

// strategy attempts one recovery approach. ok is false when the strategy
// does not apply or cannot produce a parseable value.
type strategy func(clean string) (Value, bool)

// strategies are tried in order; the first success wins.
var strategies = []strategy{
	directParse,
	bracketScan,
	tailParse,
}

// Extract recovers a structured value from text. It strips control markers
// and markdown fences, then walks the strategy chain. It returns an
// *ExtractionError when every strategy fails; it never panics.
func Extract(text string) (Value, error) {
	clean := normalize.StripMarkers(text)
	clean = stripFence(clean)

	for _, s := range strategies {
		if v, ok := s(clean); ok {
			return v, nil
		}
	}

	excerpt := clean
	if len(excerpt) > errExcerptLen {
		excerpt = excerpt[:errExcerptLen]
	}
	return Value{}, &ExtractionError{Text: excerpt}
}

// stripFence removes a leading ```lang line and a trailing ``` fence.
func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = s[3:]
	}
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func parseJSON(s string) (Value, bool) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return Value{}, false
	}
	return FromAny(v), true
}

// directParse tries the whole remaining text as one JSON document.
func directParse(clean string) (Value, bool) {
	return parseJSON(clean)
}

// bracketScan finds balanced [...] or {...} spans, skipping brackets inside
// quoted strings and honoring backslash escapes. Arrays are tried before
// objects. A span that balances but does not parse abandons that opening
// position and scanning continues.
func bracketScan(clean string) (Value, bool) {
	for _, pair := range [][2]byte{{'[', ']'}, {'{', '}'}} {
		open, close := pair[0], pair[1]
		from := 0
		for {
			rel := strings.IndexByte(clean[from:], open)
			if rel < 0 {
				break
			}
			start := from + rel
			if v, ok := walkBalanced(clean, start, open, close); ok {
				return v, true
			}
			from = start + 1
		}
	}
	return Value{}, false
}

// walkBalanced runs the depth state machine from start. It returns a parsed
// value when depth returns to zero and the enclosed span is valid JSON.
func walkBalanced(s string, start int, open, close byte) (Value, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
			// brackets inside strings do not count
		case c == open:
			depth++
		case c == close:
			depth--
			if depth == 0 {
				return parseJSON(s[start : i+1])
			}
		}
	}
	return Value{}, false
}

// tailParse is the last resort for truncated output: parse from the first
// opening bracket to the end of the text.
func tailParse(clean string) (Value, bool) {
	for _, open := range []byte{'{', '['} {
		idx := strings.IndexByte(clean, open)
		if idx < 0 {
			continue
		}
		if v, ok := parseJSON(clean[idx:]); ok {
			return v, true
		}
	}
	return Value{}, false
}
