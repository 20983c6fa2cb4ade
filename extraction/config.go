package extraction

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tier is one priority band of the keyword-context table. Higher
// priority wins; confidence is the base score for a match in this
// band.
type Tier struct {
	Name       string   `yaml:"name"`
	Priority   int      `yaml:"priority"`
	Confidence float64  `yaml:"confidence"`
	Keywords   []string `yaml:"keywords"`
}

// PatternConfig bundles everything the deterministic text analysis
// needs: the amount keyword tiers, the reference-code patterns in
// specificity order, and the inbound-relevance keyword set.
type PatternConfig struct {
	Tiers             []Tier   `yaml:"tiers"`
	ReferencePatterns []string `yaml:"reference_patterns"`
	RelevanceKeywords []string `yaml:"relevance_keywords"`
}

func DefaultPatternConfig() PatternConfig {
	return PatternConfig{
		Tiers: []Tier{
			{
				Name:       "total_claim",
				Priority:   3,
				Confidence: 0.85,
				Keywords: []string{
					"gesamtforderung", "gesamtbetrag", "gesamtsumme",
					"forderungssumme", "forderungshöhe", "zu zahlen",
					"zahlbetrag", "gesamtschuld",
				},
			},
			{
				Name:       "financial",
				Priority:   2,
				Confidence: 0.7,
				Keywords: []string{
					"forderung", "hauptforderung", "betrag", "summe",
					"saldo", "restschuld", "offen",
				},
			},
			{
				// Bare currency tokens; matched via currency markers,
				// not keywords.
				Name:       "currency",
				Priority:   1,
				Confidence: 0.5,
			},
		},
		ReferencePatterns: []string{
			`(?i)(?:aktenzeichen|geschäftszeichen|vorgangsnummer|kundennummer|referenz(?:nummer)?|zeichen|az|ref)\s*[.:#-]?\s*([A-Za-z0-9][A-Za-z0-9./-]{3,})`,
			`\[([A-Za-z0-9][A-Za-z0-9./-]{3,})\]`,
			`\b(\d{6,})\b`,
		},
		RelevanceKeywords: []string{
			"forderung", "betrag", "euro", "eur", "€", "zahlung",
			"schulden", "rechnung", "mahnung", "gläubiger", "summe",
			"saldo", "inkasso",
		},
	}
}

// LoadPatternConfig reads a YAML override file. Sections left empty in
// the file keep their defaults.
func LoadPatternConfig(path string) (PatternConfig, error) {
	cfg := DefaultPatternConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read pattern config %s: %w", path, err)
	}
	var override PatternConfig
	if err := yaml.Unmarshal(raw, &override); err != nil {
		return cfg, fmt.Errorf("decode pattern config %s: %w", path, err)
	}
	if len(override.Tiers) > 0 {
		cfg.Tiers = override.Tiers
	}
	if len(override.ReferencePatterns) > 0 {
		cfg.ReferencePatterns = override.ReferencePatterns
	}
	if len(override.RelevanceKeywords) > 0 {
		cfg.RelevanceKeywords = override.RelevanceKeywords
	}
	return cfg, nil
}
