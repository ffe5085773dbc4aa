// Package parser turns free-text language-model responses into structured
// values. It never fails: anything it cannot decode is wrapped as
// {"response": <raw text>}.
package parser

import (
	"log/slog"
	"strings"

	json "github.com/goccy/go-json"
)

// ResponseKey is the key raw text is wrapped under when no structured data is found.
const ResponseKey = "response"

const fence = "```"

// Parse applies, in order:
//  1. trimmed text starting with '{' or '[' is decoded as a whole;
//  2. a ```json fenced block is extracted and decoded;
//  3. any other fenced block is decoded if its content looks structured;
//  4. otherwise the text is wrapped as {"response": raw}.
//
// A decode failure at any step wraps the raw text.
func Parse(raw string) any {
	s := strings.TrimSpace(raw)

	if looksStructured(s) {
		return decodeOrWrap(s, raw)
	}

	if body, ok := fencedBlock(raw, fence+"json"); ok {
		return decodeOrWrap(body, raw)
	}

	if body, ok := fencedBlock(raw, fence); ok {
		body = stripInfoString(body)
		if looksStructured(body) {
			return decodeOrWrap(body, raw)
		}
	}

	return Wrap(raw)
}

// ParseObject parses raw and returns the result as an object. Arrays are
// returned under the "items" key; wrapped text under "response". The boolean
// reports whether structured data was found.
func ParseObject(raw string) (map[string]any, bool) {
	switch v := Parse(raw).(type) {
	case map[string]any:
		if IsWrapped(v) {
			return v, false
		}
		return v, true
	case []any:
		return map[string]any{"items": v}, true
	default:
		return Wrap(raw), false
	}
}

// Wrap returns the raw-text fallback value.
func Wrap(raw string) map[string]any {
	return map[string]any{ResponseKey: raw}
}

// IsWrapped reports whether v is exactly the raw-text fallback.
func IsWrapped(v map[string]any) bool {
	if len(v) != 1 {
		return false
	}
	_, ok := v[ResponseKey].(string)
	return ok
}

func looksStructured(s string) bool {
	return strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[")
}

// fencedBlock returns the text between the first occurrence of open and the
// next closing fence. An unterminated block runs to the end of the text.
func fencedBlock(raw, open string) (string, bool) {
	i := strings.Index(raw, open)
	if i < 0 {
		return "", false
	}
	rest := raw[i+len(open):]
	if j := strings.Index(rest, fence); j >= 0 {
		rest = rest[:j]
	}
	return strings.TrimSpace(rest), true
}

// stripInfoString drops a leading language tag such as "python" or "JSON" from
// a fenced block body.
func stripInfoString(body string) string {
	if looksStructured(body) {
		return body
	}
	first, rest, found := strings.Cut(body, "\n")
	if !found || strings.ContainsAny(first, " \t{[") {
		return body
	}
	return strings.TrimSpace(rest)
}

func decodeOrWrap(s, raw string) any {
	var v any
	err := json.Unmarshal([]byte(s), &v)
	if err == nil {
		return v
	}
	slog.Warn("PARSER: Failed to decode structured response, wrapping raw text", "error", err, "length", len(raw))
	return Wrap(raw)
}
