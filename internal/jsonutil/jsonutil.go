// Package jsonutil decodes JSON that language models return with
// varying amounts of wrapping (markdown fences, leading prose).
package jsonutil

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

var ErrNoJSON = errors.New("no decodable JSON found")

var codeBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n(.*?)\\n\\s*```")

// DecodeWithFallback tries the raw text first, then a fenced code
// block, then the first balanced JSON object embedded in the text.
func DecodeWithFallback(raw string, out any) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ErrNoJSON
	}

	var lastErr error
	if err := json.Unmarshal([]byte(raw), out); err == nil {
		return nil
	} else {
		lastErr = err
	}

	if block := extractFromCodeBlock(raw); block != "" {
		if err := json.Unmarshal([]byte(block), out); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}

	if obj := extractJSONObject(raw); obj != "" {
		if err := json.Unmarshal([]byte(obj), out); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}

	if lastErr != nil {
		return lastErr
	}
	return ErrNoJSON
}

func extractFromCodeBlock(text string) string {
	matches := codeBlockRe.FindStringSubmatch(text)
	if len(matches) >= 2 {
		return strings.TrimSpace(matches[1])
	}
	return ""
}

func extractJSONObject(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		if c == '\\' && inString {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
