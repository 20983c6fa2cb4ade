// Package extraction resolves monetary claim amounts from free-text
// German creditor replies. The primary path asks an LLM for a
// structured judgement; a deterministic keyword-tier scan backs it up
// whenever the model is unavailable, malformed or unsure.
package extraction

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/justLukaBB/glaeubiger-sync/internal/jsonutil"
	"github.com/justLukaBB/glaeubiger-sync/llm"
)

type Method string

const (
	MethodLLM     Method = "llm"
	MethodPattern Method = "pattern"
	MethodNone    Method = "none"
)

// DefaultPrimaryThreshold is the confidence below which the LLM result
// is discarded in favor of the pattern scan.
const DefaultPrimaryThreshold = 0.7

type Breakdown struct {
	Main     float64 `json:"main"`
	Interest float64 `json:"interest"`
	Costs    float64 `json:"costs"`
}

type Result struct {
	Amount        float64   `json:"amount"`
	Currency      string    `json:"currency"`
	Confidence    float64   `json:"confidence"`
	SourceSnippet string    `json:"source_snippet,omitempty"`
	Breakdown     Breakdown `json:"breakdown"`
	Reasoning     string    `json:"reasoning,omitempty"`
	Method        Method    `json:"method"`
}

// Context carries what is already known about the creditor whose reply
// is being analyzed; it sharpens the LLM judgement.
type Context struct {
	CreditorName   string
	ReferenceCode  string
	OriginalAmount float64
}

type Options struct {
	Model            string
	Logger           *slog.Logger
	Patterns         *PatternConfig
	PrimaryThreshold float64
}

type Extractor struct {
	client    llm.Client
	model     string
	logger    *slog.Logger
	cfg       PatternConfig
	threshold float64
	refRes    []compiledRefPattern
}

// NewExtractor builds an extractor. A nil client disables the primary
// path; the pattern scan still works.
func NewExtractor(client llm.Client, opts Options) *Extractor {
	cfg := DefaultPatternConfig()
	if opts.Patterns != nil {
		cfg = *opts.Patterns
	}
	threshold := opts.PrimaryThreshold
	if threshold <= 0 {
		threshold = DefaultPrimaryThreshold
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		client:    client,
		model:     strings.TrimSpace(opts.Model),
		logger:    logger,
		cfg:       cfg,
		threshold: threshold,
		refRes:    compileRefPatterns(cfg.ReferencePatterns),
	}
}

// Extract resolves an amount from reply text. It never fails hard:
// provider trouble degrades to the pattern scan, and an empty scan
// yields the zero result so the caller's fallback chain can decide.
func (e *Extractor) Extract(ctx context.Context, text string, rc Context) Result {
	text = strings.TrimSpace(text)
	if text == "" {
		return noAmountResult()
	}

	if primary, ok := e.extractLLM(ctx, text, rc); ok && primary.Confidence >= e.threshold {
		return primary
	}

	if res, ok := patternExtract(text, e.cfg.Tiers); ok {
		return res
	}
	return noAmountResult()
}

// IsDebtRelevant reports whether a message body looks like creditor
// correspondence at all, per the configured keyword set.
func (e *Extractor) IsDebtRelevant(body string) bool {
	lower := strings.ToLower(body)
	for _, keyword := range e.cfg.RelevanceKeywords {
		if strings.Contains(lower, strings.ToLower(keyword)) {
			return true
		}
	}
	return false
}

func noAmountResult() Result {
	return Result{Currency: "EUR", Reasoning: "no amount found", Method: MethodNone}
}

type llmExtractionResponse struct {
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	Confidence    float64 `json:"confidence"`
	SourceSnippet string  `json:"source_snippet"`
	Breakdown     struct {
		Main     float64 `json:"main"`
		Interest float64 `json:"interest"`
		Costs    float64 `json:"costs"`
	} `json:"breakdown"`
	Reasoning string `json:"reasoning"`
}

func (e *Extractor) extractLLM(ctx context.Context, text string, rc Context) (Result, bool) {
	if e.client == nil || e.model == "" {
		return Result{}, false
	}

	payload := map[string]any{
		"reply_text": text,
		"known_context": map[string]any{
			"creditor_name":   rc.CreditorName,
			"reference_code":  rc.ReferenceCode,
			"original_amount": rc.OriginalAmount,
		},
	}
	input, _ := json.Marshal(payload)

	systemPrompt := strings.Join([]string{
		"You extract the final claim amount from German creditor correspondence.",
		"Return JSON only, no markdown, no prose.",
		"Output schema: {\"amount\":0,\"currency\":\"EUR\",\"confidence\":0..1,\"source_snippet\":\"...\",\"breakdown\":{\"main\":0,\"interest\":0,\"costs\":0},\"reasoning\":\"...\"}",
		"amount uses dot as decimal separator regardless of the input notation.",
		"Prefer an explicit Gesamtforderung/total over partial amounts.",
		"If the text states no amount, set amount to 0 and confidence to 0.",
		"Lower confidence when several conflicting amounts appear.",
	}, " ")

	res, err := e.client.Chat(ctx, llm.Request{
		Model:     e.model,
		ForceJSON: true,
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: string(input)},
		},
		Parameters: map[string]any{
			"temperature": 0,
			"max_tokens":  600,
		},
	})
	if err != nil {
		e.logger.Warn("extraction_llm_unavailable", "error", err.Error())
		return Result{}, false
	}

	var out llmExtractionResponse
	if err := jsonutil.DecodeWithFallback(res.Text, &out); err != nil {
		e.logger.Warn("extraction_llm_malformed", "error", err.Error())
		return Result{}, false
	}

	currency := strings.ToUpper(strings.TrimSpace(out.Currency))
	if currency == "" {
		currency = "EUR"
	}
	return Result{
		Amount:        out.Amount,
		Currency:      currency,
		Confidence:    clamp(out.Confidence, 0, 1),
		SourceSnippet: strings.TrimSpace(out.SourceSnippet),
		Breakdown: Breakdown{
			Main:     out.Breakdown.Main,
			Interest: out.Breakdown.Interest,
			Costs:    out.Breakdown.Costs,
		},
		Reasoning: strings.TrimSpace(out.Reasoning),
		Method:    MethodLLM,
	}, true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
