package agent

import (
	"encoding/json"
	"strings"

	"github.com/dealradar-io/dealradar/pkg/protocol"
)

// ParseSignalReport parses a model's final text into a SignalReport.
// Models wrap JSON in code fences or pad it with prose often enough that
// a strict parse is not good enough: fences are stripped first, then the
// whole text is tried, then the first balanced {...} span. If nothing
// parses, the zero report is returned with ok false.
func ParseSignalReport(text string) (protocol.SignalReport, bool) {
	raw, ok := ExtractJSONObject(text)
	if !ok {
		return protocol.SignalReport{}, false
	}
	var report protocol.SignalReport
	if err := json.Unmarshal([]byte(raw), &report); err != nil {
		return protocol.SignalReport{}, false
	}
	return report, true
}

// ExtractJSONObject pulls a single JSON object out of free-form model
// output. Returns the raw JSON text and whether one was found.
func ExtractJSONObject(text string) (string, bool) {
	s := stripFences(strings.TrimSpace(text))

	if json.Valid([]byte(s)) && strings.HasPrefix(s, "{") {
		return s, true
	}

	if span, ok := balancedSpan(s); ok && json.Valid([]byte(span)) {
		return span, true
	}
	return "", false
}

// stripFences removes a surrounding markdown code fence, with or without
// a language tag.
func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		// Drop the language tag line ("json", "JSON", or empty).
		first := strings.TrimSpace(s[:i])
		if len(first) <= 8 && !strings.ContainsAny(first, "{}") {
			s = s[i+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// balancedSpan finds the first brace-balanced {...} span, tracking
// string literals and escapes so braces inside values don't miscount.
func balancedSpan(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1], true
				}
			}
		}
	}
	return "", false
}
