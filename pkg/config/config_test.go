package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_GetAdapter(t *testing.T) {
	cfg := &Config{Adapters: []AdapterConfig{
		{Name: "lead-claude", Type: "anthropic", LeadEligible: true},
		{Name: "worker-fast", Type: "langchain"},
	}}

	got, err := cfg.GetAdapter("worker-fast")
	require.NoError(t, err)
	assert.Equal(t, "langchain", got.Type)

	_, err = cfg.GetAdapter("missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAdapterNotFound)
}

func TestConfig_LeadAdapters(t *testing.T) {
	cfg := &Config{Adapters: []AdapterConfig{
		{Name: "lead-claude", LeadEligible: true},
		{Name: "worker-fast"},
		{Name: "lead-backup", LeadEligible: true},
	}}

	leads := cfg.LeadAdapters()
	require.Len(t, leads, 2)
	assert.Equal(t, "lead-claude", leads[0].Name)
	assert.Equal(t, "lead-backup", leads[1].Name)
}

func TestConfig_Stats(t *testing.T) {
	cfg := &Config{
		Adapters:        []AdapterConfig{{Name: "a"}, {Name: "b"}},
		SearchProviders: []SearchProviderConfig{{Name: "brave"}},
	}
	stats := cfg.Stats()
	assert.Equal(t, 2, stats.Adapters)
	assert.Equal(t, 1, stats.SearchProviders)
}
