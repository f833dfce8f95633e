package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8086, cfg.Server.Port)
	assert.Equal(t, 0.4, cfg.Scoring.Weights.RiskScoreFactor)
	assert.Equal(t, 80, cfg.Scoring.RiskThresholds.Critical)
	assert.Equal(t, 4*time.Hour, cfg.SLA.Critical)
	assert.Equal(t, 168*time.Hour, cfg.SLA.Low)
	assert.Equal(t, 5*time.Minute, cfg.Worker.EscalationInterval)
	assert.Equal(t, 30, cfg.Dashboard.TrendDays)
}

func TestLoadFileOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `
server:
  port: 9090
scoring:
  weights:
    fraud_history: 20
sla:
  critical: 2h
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, float64(20), cfg.Scoring.Weights.FraudHistory)
	assert.Equal(t, 2*time.Hour, cfg.SLA.Critical)
	// untouched defaults survive
	assert.Equal(t, float64(15), cfg.Scoring.Weights.PreviousResultBad)
}

func TestLoadRejectsBadThresholdOrder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `
scoring:
  risk_thresholds:
    critical: 40
    high: 60
    medium: 80
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestDatabaseDSN(t *testing.T) {
	d := DatabaseConfig{
		Host: "db", Port: 5433, User: "u", Password: "p",
		Database: "grc", SSLMode: "require",
	}
	assert.Equal(t, "postgres://u:p@db:5433/grc?sslmode=require", d.DSN())
}
