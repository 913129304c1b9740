package config

import "fmt"

// Config is the umbrella configuration object returned by Initialize
// and threaded through the composition root: mission, storage, the
// adapter/search-provider lists, and the tunable thresholds every
// other package reads at construction time.
type Config struct {
	configDir string // configuration directory path (for reference)

	// Mission is the project's "north star" — the text that conditions
	// every Lead and worker prompt (spec.md Glossary).
	Mission string

	// WorkspaceID scopes every Store read/write (I6 workspace
	// isolation).
	WorkspaceID string

	// StoragePath is the single-file SQLite database path (§4.1, §6).
	StoragePath string

	// Adapters is the configured LLM adapter list, API keys resolved
	// from environment variables named in each entry.
	Adapters []AdapterConfig

	// SearchProviders is the immutable fallback list, already sorted by
	// Priority ascending once Initialize returns.
	SearchProviders []SearchProviderConfig

	Thresholds Thresholds

	// WorkerCount is the number of research workers dispatched per
	// cycle (§4.9 DISPATCHING).
	WorkerCount int

	// SearchBudget caps web_search calls per worker per cycle (§4.7).
	SearchBudget int

	// ReportInterval is the minimum spacing between automatic report
	// regenerations (§4.11).
	ReportInterval int64 // seconds; time.Duration would also work but the Store column is an integer count of seconds (§6)
}

// Initialize is defined in loader.go.

// Stats summarizes the loaded configuration for startup logging.
type Stats struct {
	Adapters        int
	SearchProviders int
}

// Stats returns configuration statistics for logging/monitoring.
func (c *Config) Stats() Stats {
	return Stats{
		Adapters:        len(c.Adapters),
		SearchProviders: len(c.SearchProviders),
	}
}

// ConfigDir returns the configuration directory path.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// GetAdapter retrieves an adapter configuration by name.
func (c *Config) GetAdapter(name string) (*AdapterConfig, error) {
	for i := range c.Adapters {
		if c.Adapters[i].Name == name {
			return &c.Adapters[i], nil
		}
	}
	return nil, fmt.Errorf("%w: adapter %q", ErrAdapterNotFound, name)
}

// LeadAdapters returns the subset of Adapters marked LeadEligible, in
// configured order.
func (c *Config) LeadAdapters() []AdapterConfig {
	var out []AdapterConfig
	for _, a := range c.Adapters {
		if a.LeadEligible {
			out = append(out, a)
		}
	}
	return out
}
