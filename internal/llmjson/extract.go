// Package llmjson pulls JSON values out of generative model output. Models
// frequently wrap JSON in markdown code fences or surround it with prose.
package llmjson

import (
	"encoding/json"
	"errors"
	"strings"
)

var (
	ErrNoArray  = errors.New("no JSON array in response")
	ErrNoObject = errors.New("no JSON object in response")
)

// ExtractArray returns the first well-formed JSON array in s.
func ExtractArray(s string) (json.RawMessage, error) {
	if raw, ok := extract(s, '[', ']'); ok {
		return raw, nil
	}
	return nil, ErrNoArray
}

// ExtractObject returns the first well-formed JSON object in s.
func ExtractObject(s string) (json.RawMessage, error) {
	if raw, ok := extract(s, '{', '}'); ok {
		return raw, nil
	}
	return nil, ErrNoObject
}

// StripFences removes a surrounding markdown code fence, with or without a
// language tag. Text without a fence is returned trimmed.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	idx := strings.Index(s, "```")
	if idx == -1 {
		return s
	}
	body := s[idx+3:]
	if nl := strings.IndexByte(body, '\n'); nl != -1 && !strings.ContainsAny(body[:nl], "[{") {
		body = body[nl+1:]
	}
	if end := strings.Index(body, "```"); end != -1 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

func extract(s string, open, close byte) (json.RawMessage, bool) {
	for _, candidate := range []string{StripFences(s), s} {
		if raw, ok := scan(candidate, open, close); ok {
			return raw, true
		}
	}
	return nil, false
}

// scan tries every occurrence of open as a start position and returns the
// first balanced span that also decodes as JSON.
func scan(s string, open, close byte) (json.RawMessage, bool) {
	for start := 0; start < len(s); start++ {
		if s[start] != open {
			continue
		}
		end := balancedEnd(s, start, open, close)
		if end == -1 {
			continue
		}
		candidate := s[start : end+1]
		if json.Valid([]byte(candidate)) {
			return json.RawMessage(candidate), true
		}
	}
	return nil, false
}

// balancedEnd returns the index of the close byte matching s[start], skipping
// brackets inside string literals, or -1.
func balancedEnd(s string, start int, open, close byte) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
