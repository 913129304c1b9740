package config

import "time"

// Defaults contains system-wide default values, applied when the user
// YAML omits a field outright.
type Defaults struct {
	WorkerCount      int           `yaml:"worker_count"`
	SearchBudget     int           `yaml:"search_budget"`
	ReportInterval   time.Duration `yaml:"report_interval"`
	MaxReasoningDepth int          `yaml:"max_reasoning_depth,omitempty"`
}

// defaultDefaults returns the built-in values mergo fills in wherever
// the user's YAML doesn't set a field (worker count, search budget and
// report interval have no stated spec default; the values below are
// chosen here).
func defaultDefaults() Defaults {
	return Defaults{
		WorkerCount:    3,
		SearchBudget:   5,
		ReportInterval: 24 * time.Hour,
	}
}
