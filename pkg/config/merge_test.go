package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeThresholds_NilUsesDefaults(t *testing.T) {
	merged, err := mergeThresholds(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultThresholds(), merged)
}

func TestMergeThresholds_PartialOverride(t *testing.T) {
	merged, err := mergeThresholds(&Thresholds{MergeThreshold: 0.9})
	require.NoError(t, err)
	assert.Equal(t, 0.9, merged.MergeThreshold)
	assert.Equal(t, DefaultThresholds().DedupThreshold, merged.DedupThreshold, "unset fields keep the default")
}

func TestMergeDefaults_PartialOverride(t *testing.T) {
	merged, err := mergeDefaults(&Defaults{WorkerCount: 10})
	require.NoError(t, err)
	assert.Equal(t, 10, merged.WorkerCount)
	assert.Equal(t, defaultDefaults().SearchBudget, merged.SearchBudget)
	assert.Equal(t, defaultDefaults().ReportInterval, merged.ReportInterval)
}

func TestMergeDefaults_ReportIntervalOverride(t *testing.T) {
	merged, err := mergeDefaults(&Defaults{ReportInterval: 6 * time.Hour})
	require.NoError(t, err)
	assert.Equal(t, 6*time.Hour, merged.ReportInterval)
}
