package config

// Shared types used across configuration structs

// AdapterConfig describes one configured LLM adapter: a named model
// behind a concrete provider implementation, with its API key supplied
// via an environment variable rather than inline in YAML.
type AdapterConfig struct {
	Name      string `yaml:"name" validate:"required"`
	Type      string `yaml:"type" validate:"required"` // "anthropic" | "langchain"
	Model     string `yaml:"model" validate:"required"`
	APIKeyEnv string `yaml:"api_key_env" validate:"required"`
	BaseURL   string `yaml:"base_url,omitempty"`

	// LeadEligible marks an adapter usable for Lead select/synthesize/
	// reassess calls; adapters without it are worker-only.
	LeadEligible bool `yaml:"lead_eligible,omitempty"`
}

// SearchProviderConfig describes one entry in the search-manager's
// immutable fallback list (§6); providers are tried in ascending
// Priority order, first non-empty non-error result wins.
type SearchProviderConfig struct {
	Name      string `yaml:"name" validate:"required"`
	APIKeyEnv string `yaml:"api_key_env,omitempty"`
	Priority  int    `yaml:"priority"`
}

// Thresholds groups the tunable similarity/confidence constants spec.md
// §4.2/§4.3/§4.6 names (defaults in DefaultThresholds).
type Thresholds struct {
	// MergeThreshold is the Jaccard similarity above which a synthesized
	// candidate is treated as an update to an existing direction rather
	// than a new one (default 0.75).
	MergeThreshold float64 `yaml:"merge_threshold" validate:"gte=0,lte=1"`

	// DedupThreshold is the Jaccard similarity above which sibling
	// directions under one parent are consolidated (default 0.85).
	DedupThreshold float64 `yaml:"dedup_threshold" validate:"gte=0,lte=1"`

	// ConfidenceDiscount (default 0.7) discounts a synthesized finding's
	// own confidence before blending it into a direction's confidence,
	// applied on both the create and the update branch (§4.8; see
	// DESIGN.md on the Open Question this raises).
	ConfidenceDiscount float64 `yaml:"confidence_discount" validate:"gte=0,lte=1"`

	// ConsensusBoost is loaded from consensus_boost and range-checked
	// with the other thresholds. No other package reads it, so it does
	// not change any direction's confidence. The default, 0.1, is chosen
	// here.
	ConsensusBoost float64 `yaml:"consensus_boost" validate:"gte=0,lte=1"`
}

// DefaultThresholds returns the spec's stated defaults, with
// ConsensusBoost set to 0.1, a value chosen here.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MergeThreshold:     0.75,
		DedupThreshold:     0.85,
		ConfidenceDiscount: 0.7,
		ConsensusBoost:     0.1,
	}
}
