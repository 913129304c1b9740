package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// YAMLConfig represents the complete research-engine.yaml file
// structure. The config file is flat by design — there is no
// agent/chain/MCP-server registry to cross-reference, just the mission,
// storage location, adapter/search-provider lists, and tunables the
// AMBIENT STACK section of SPEC_FULL.md names.
type YAMLConfig struct {
	Mission         string                 `yaml:"mission"`
	WorkspaceID     string                 `yaml:"workspace_id"`
	StoragePath     string                 `yaml:"storage_path"`
	Adapters        []AdapterConfig        `yaml:"adapters"`
	SearchProviders []SearchProviderConfig `yaml:"search_providers"`
	Thresholds      *Thresholds            `yaml:"thresholds"`
	Defaults        *Defaults              `yaml:"defaults"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load research-engine.yaml from configDir
//  2. Expand environment variables
//  3. Parse YAML into structs
//  4. Merge thresholds/defaults with built-ins (dario.cat/mergo)
//  5. Sort search providers by priority
//  6. Validate all configuration
//  7. Return Config ready for use
func Initialize(_ context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("initializing configuration")

	cfg, err := load(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	stats := cfg.Stats()
	log.Info("configuration initialized",
		"workspace_id", cfg.WorkspaceID,
		"adapters", stats.Adapters,
		"search_providers", stats.SearchProviders,
		"worker_count", cfg.WorkerCount)

	return cfg, nil
}

func load(configDir string) (*Config, error) {
	loader := &configLoader{configDir: configDir}

	yamlCfg, err := loader.loadResearchEngineYAML()
	if err != nil {
		return nil, NewLoadError("research-engine.yaml", err)
	}

	thresholds, err := mergeThresholds(yamlCfg.Thresholds)
	if err != nil {
		return nil, fmt.Errorf("failed to merge thresholds: %w", err)
	}

	defaults, err := mergeDefaults(yamlCfg.Defaults)
	if err != nil {
		return nil, fmt.Errorf("failed to merge defaults: %w", err)
	}

	providers := make([]SearchProviderConfig, len(yamlCfg.SearchProviders))
	copy(providers, yamlCfg.SearchProviders)
	sort.SliceStable(providers, func(i, j int) bool { return providers[i].Priority < providers[j].Priority })

	storagePath := yamlCfg.StoragePath
	if storagePath == "" {
		storagePath = "research-engine.db"
	}

	return &Config{
		configDir:       configDir,
		Mission:         yamlCfg.Mission,
		WorkspaceID:     yamlCfg.WorkspaceID,
		StoragePath:     storagePath,
		Adapters:        yamlCfg.Adapters,
		SearchProviders: providers,
		Thresholds:      thresholds,
		WorkerCount:     defaults.WorkerCount,
		SearchBudget:    defaults.SearchBudget,
		ReportInterval:  int64(defaults.ReportInterval / time.Second),
	}, nil
}

// validate performs comprehensive validation on loaded configuration.
func validate(cfg *Config) error {
	v := NewValidator(cfg)
	return v.ValidateAll()
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	// Expand environment variables ({{.VAR}}) before parsing; missing
	// variables expand to empty string and are caught by validation.
	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	return nil
}

func (l *configLoader) loadResearchEngineYAML() (*YAMLConfig, error) {
	var cfg YAMLConfig
	if err := l.loadYAML("research-engine.yaml", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
