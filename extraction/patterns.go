package extraction

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const (
	// Plausible claim range in EUR; tokens outside it are noise
	// (dates, reference numbers, cents-only fragments).
	minPlausibleAmount = 10
	maxPlausibleAmount = 1_000_000

	// How far behind an amount token a tier keyword may sit.
	keywordWindow = 48
	// How close a currency marker must be to an amount token.
	currencyWindow = 8
)

var amountTokenRe = regexp.MustCompile(`\d{1,3}(?:\.\d{3})+(?:,\d{1,2})?|\d+,\d{1,2}|\d+\.\d{1,2}|\d+`)

var currencyMarkerRe = regexp.MustCompile(`(?i)€|\beuro?\b|\beur\b`)

type patternCandidate struct {
	amount   float64
	priority int
	base     float64
	snippet  string
}

// patternExtract runs the deterministic tiered scan. ok is false when
// no plausible amount was found.
func patternExtract(text string, tiers []Tier) (Result, bool) {
	candidates := collectCandidates(text, tiers)
	if len(candidates) == 0 {
		return Result{}, false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].priority != candidates[j].priority {
			return candidates[i].priority > candidates[j].priority
		}
		return candidates[i].amount > candidates[j].amount
	})

	best := candidates[0]
	confidence := best.base
	switch {
	case len(candidates) > 5:
		confidence *= 0.8
	case len(candidates) > 3:
		confidence *= 0.9
	}

	return Result{
		Amount:        best.amount,
		Currency:      "EUR",
		Confidence:    confidence,
		SourceSnippet: best.snippet,
		Breakdown:     Breakdown{Main: best.amount},
		Reasoning:     fmt.Sprintf("pattern match, %d candidate(s)", len(candidates)),
		Method:        MethodPattern,
	}, true
}

func collectCandidates(text string, tiers []Tier) []patternCandidate {
	var out []patternCandidate
	for _, loc := range amountTokenRe.FindAllStringIndex(text, -1) {
		token := text[loc[0]:loc[1]]
		amount, err := normalizeGermanNumber(token)
		if err != nil {
			continue
		}
		if amount < minPlausibleAmount || amount > maxPlausibleAmount {
			continue
		}

		tier, keywordStart, ok := classifyToken(text, loc[0], loc[1], tiers)
		if !ok {
			continue
		}
		out = append(out, patternCandidate{
			amount:   amount,
			priority: tier.Priority,
			base:     tier.Confidence,
			snippet:  snippetAround(text, keywordStart, loc[1]),
		})
	}
	return out
}

// classifyToken assigns the best tier for the amount token at
// [start,end). Keyword tiers look at a window before the token; the
// keywordless tier requires a currency marker next to the token.
// Offsets index the original text; only the inspected slices are
// lowered, since a case fold can change byte length (ẞ -> ß).
func classifyToken(text string, start, end int, tiers []Tier) (Tier, int, bool) {
	windowStart := start - keywordWindow
	if windowStart < 0 {
		windowStart = 0
	}
	window := strings.ToLower(text[windowStart:start])

	best := Tier{}
	bestStart := start
	found := false
	for _, tier := range tiers {
		if len(tier.Keywords) == 0 {
			continue
		}
		for _, keyword := range tier.Keywords {
			idx := strings.LastIndex(window, strings.ToLower(keyword))
			if idx < 0 {
				continue
			}
			if !found || tier.Priority > best.Priority {
				best = tier
				bestStart = windowStart + idx
				found = true
			}
		}
	}
	if found {
		return best, bestStart, true
	}

	if !hasCurrencyMarker(text, start, end) {
		return Tier{}, 0, false
	}
	for _, tier := range tiers {
		if len(tier.Keywords) == 0 {
			return tier, start, true
		}
	}
	return Tier{}, 0, false
}

func hasCurrencyMarker(text string, start, end int) bool {
	before := start - currencyWindow
	if before < 0 {
		before = 0
	}
	after := end + currencyWindow
	if after > len(text) {
		after = len(text)
	}
	return currencyMarkerRe.MatchString(text[before:start]) || currencyMarkerRe.MatchString(text[end:after])
}

// normalizeGermanNumber parses German-formatted numbers (dot thousands
// separator, comma decimal) as well as plain machine formats.
func normalizeGermanNumber(token string) (float64, error) {
	token = strings.TrimSpace(token)
	hasDot := strings.Contains(token, ".")
	hasComma := strings.Contains(token, ",")

	switch {
	case hasDot && hasComma:
		token = strings.ReplaceAll(token, ".", "")
		token = strings.Replace(token, ",", ".", 1)
	case hasComma:
		token = strings.Replace(token, ",", ".", 1)
	case hasDot:
		// A dot followed by exactly three digits is a thousands
		// separator in German notation.
		if i := strings.LastIndex(token, "."); len(token)-i-1 == 3 {
			token = strings.ReplaceAll(token, ".", "")
		}
	}
	return strconv.ParseFloat(token, 64)
}

func snippetAround(text string, start, end int) string {
	if start > end {
		start = end
	}
	from := start - 10
	if from < 0 {
		from = 0
	}
	to := end + 10
	if to > len(text) {
		to = len(text)
	}
	return strings.TrimSpace(text[from:to])
}
