package extraction

import (
	"regexp"
	"strings"
)

type compiledRefPattern struct {
	re *regexp.Regexp
}

func compileRefPatterns(patterns []string) []compiledRefPattern {
	out := make([]compiledRefPattern, 0, len(patterns))
	for _, raw := range patterns {
		re, err := regexp.Compile(raw)
		if err != nil || re.NumSubexp() < 1 {
			continue
		}
		out = append(out, compiledRefPattern{re: re})
	}
	return out
}

// ScanReferenceCode pulls a creditor reference code out of a message.
// Patterns are tried in specificity order: explicit prefixes first,
// then bracketed tokens, then bare long digit runs. Subject is scanned
// before body within each pattern so headers win over quoted text.
func (e *Extractor) ScanReferenceCode(subject, body string) string {
	for _, p := range e.refRes {
		for _, text := range []string{subject, body} {
			if strings.TrimSpace(text) == "" {
				continue
			}
			m := p.re.FindStringSubmatch(text)
			if len(m) >= 2 {
				code := strings.TrimSpace(m[1])
				if code != "" {
					return code
				}
			}
		}
	}
	return ""
}
