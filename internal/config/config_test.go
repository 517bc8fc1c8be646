package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("LENDARR_DATA_DIR", t.TempDir())

	c := Load()

	assert.Equal(t, "3092", c.Port)
	assert.Equal(t, "info", c.LogLevel)
	assert.Equal(t, 2, c.DueSoonThresholdDays)
	assert.Empty(t, c.SweepCron)
	assert.Equal(t, filepath.Join(c.DataDir, "lendarr.db"), c.DatabasePath)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LENDARR_DATA_DIR", t.TempDir())
	t.Setenv("LENDARR_PORT", "8099")
	t.Setenv("LENDARR_LOG_LEVEL", "debug")
	t.Setenv("LENDARR_DUE_SOON_DAYS", "5")
	t.Setenv("LENDARR_SWEEP_CRON", "@hourly")

	c := Load()

	assert.Equal(t, "8099", c.Port)
	assert.Equal(t, "debug", c.LogLevel)
	assert.Equal(t, 5, c.DueSoonThresholdDays)
	assert.Equal(t, "@hourly", c.SweepCron)
}

func TestApplyFlags(t *testing.T) {
	t.Setenv("LENDARR_DATA_DIR", t.TempDir())
	Load()

	port := "9000"
	level := "warn"
	days := 3
	ApplyFlags(FlagOverrides{Port: &port, LogLevel: &level, DueSoonThresholdDays: &days})

	c := Get()
	assert.Equal(t, "9000", c.Port)
	assert.Equal(t, "warn", c.LogLevel)
	assert.Equal(t, 3, c.DueSoonThresholdDays)
}

func TestApplyFlags_EmptyValuesIgnored(t *testing.T) {
	t.Setenv("LENDARR_DATA_DIR", t.TempDir())
	t.Setenv("LENDARR_PORT", "8099")
	Load()

	empty := ""
	ApplyFlags(FlagOverrides{Port: &empty})

	assert.Equal(t, "8099", Get().Port)
}
