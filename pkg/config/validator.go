package config

import (
	"fmt"
	"os"
)

// Validator validates configuration comprehensively, aggregating every
// check into fail-fast ValidateAll calls the way the teacher's
// Validator does, scaled down to research-engine's flatter config
// shape (no agent/chain/MCP-server cross-reference graph to walk).
type Validator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll performs comprehensive validation (fail-fast — stops at
// the first error). Order: identity → adapters → search providers →
// thresholds → worker/report tunables.
func (v *Validator) ValidateAll() error {
	if err := v.validateIdentity(); err != nil {
		return fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}
	if err := v.validateAdapters(); err != nil {
		return fmt.Errorf("adapter validation failed: %w", err)
	}
	if err := v.validateSearchProviders(); err != nil {
		return fmt.Errorf("search provider validation failed: %w", err)
	}
	if err := v.validateThresholds(); err != nil {
		return fmt.Errorf("threshold validation failed: %w", err)
	}
	if err := v.validateTunables(); err != nil {
		return fmt.Errorf("tunable validation failed: %w", err)
	}
	return nil
}

func (v *Validator) validateIdentity() error {
	if v.cfg.Mission == "" {
		return fmt.Errorf("%w: mission", ErrMissingRequiredField)
	}
	if v.cfg.WorkspaceID == "" {
		return fmt.Errorf("%w: workspace_id", ErrMissingRequiredField)
	}
	if v.cfg.StoragePath == "" {
		return fmt.Errorf("%w: storage_path", ErrMissingRequiredField)
	}
	return nil
}

func (v *Validator) validateAdapters() error {
	if len(v.cfg.Adapters) == 0 {
		return NewValidationError("adapters", "", "", fmt.Errorf("at least one adapter required"))
	}

	seen := make(map[string]bool, len(v.cfg.Adapters))
	hasLead := false
	for _, a := range v.cfg.Adapters {
		if a.Name == "" {
			return NewValidationError("adapter", "", "name", fmt.Errorf("name required"))
		}
		if seen[a.Name] {
			return NewValidationError("adapter", a.Name, "name", fmt.Errorf("duplicate adapter name"))
		}
		seen[a.Name] = true

		switch a.Type {
		case "anthropic", "langchain":
		default:
			return NewValidationError("adapter", a.Name, "type", fmt.Errorf("unsupported adapter type %q", a.Type))
		}
		if a.Model == "" {
			return NewValidationError("adapter", a.Name, "model", fmt.Errorf("model required"))
		}
		if a.APIKeyEnv == "" {
			return NewValidationError("adapter", a.Name, "api_key_env", fmt.Errorf("required"))
		}
		if os.Getenv(a.APIKeyEnv) == "" {
			return NewValidationError("adapter", a.Name, "api_key_env", fmt.Errorf("environment variable %s is not set", a.APIKeyEnv))
		}
		if a.LeadEligible {
			hasLead = true
		}
	}
	if !hasLead {
		return NewValidationError("adapters", "", "lead_eligible", fmt.Errorf("at least one adapter must be lead-eligible"))
	}
	return nil
}

func (v *Validator) validateSearchProviders() error {
	seen := make(map[string]bool, len(v.cfg.SearchProviders))
	for _, p := range v.cfg.SearchProviders {
		if p.Name == "" {
			return NewValidationError("search_provider", "", "name", fmt.Errorf("name required"))
		}
		if seen[p.Name] {
			return NewValidationError("search_provider", p.Name, "name", fmt.Errorf("duplicate search provider name"))
		}
		seen[p.Name] = true
		if p.APIKeyEnv != "" && os.Getenv(p.APIKeyEnv) == "" {
			return NewValidationError("search_provider", p.Name, "api_key_env", fmt.Errorf("environment variable %s is not set", p.APIKeyEnv))
		}
	}
	return nil
}

func (v *Validator) validateThresholds() error {
	t := v.cfg.Thresholds
	for _, f := range []struct {
		name string
		val  float64
	}{
		{"merge_threshold", t.MergeThreshold},
		{"dedup_threshold", t.DedupThreshold},
		{"confidence_discount", t.ConfidenceDiscount},
		{"consensus_boost", t.ConsensusBoost},
	} {
		if f.val < 0 || f.val > 1 {
			return NewValidationError("thresholds", "", f.name, fmt.Errorf("must be in [0,1], got %v", f.val))
		}
	}
	return nil
}

func (v *Validator) validateTunables() error {
	if v.cfg.WorkerCount < 1 {
		return NewValidationError("defaults", "", "worker_count", fmt.Errorf("must be at least 1, got %d", v.cfg.WorkerCount))
	}
	if v.cfg.SearchBudget < 1 {
		return NewValidationError("defaults", "", "search_budget", fmt.Errorf("must be at least 1, got %d", v.cfg.SearchBudget))
	}
	if v.cfg.ReportInterval < 1 {
		return NewValidationError("defaults", "", "report_interval", fmt.Errorf("must be positive, got %d seconds", v.cfg.ReportInterval))
	}
	return nil
}
