package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, 8080, cfg.Port)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, "october", cfg.Scheduler.FiscalStart)
	assert.Equal(t, []string{"leadership"}, cfg.Scheduler.SpecialKeywords)
	assert.Equal(t, 3*time.Hour, cfg.Scheduler.MinSeparation)
	assert.Equal(t, 30*time.Minute, cfg.Scheduler.ProposalTTL)
	assert.False(t, cfg.Database.Enabled)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("SCHEDULER_FISCAL_START", "july")
	t.Setenv("SCHEDULER_SPECIAL_KEYWORDS", "leadership, Executive Coaching ,")
	t.Setenv("SCHEDULER_MIN_SEPARATION", "bogus")
	t.Setenv("EXPORTS_WORKER_CONCURRENCY", "4")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "july", cfg.Scheduler.FiscalStart)
	assert.Equal(t, []string{"leadership", "Executive Coaching"}, cfg.Scheduler.SpecialKeywords)
	assert.Equal(t, 3*time.Hour, cfg.Scheduler.MinSeparation, "unparseable durations fall back")
	assert.Equal(t, 4, cfg.Exports.WorkerConcurrency)
}
