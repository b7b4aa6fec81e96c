package config

import (
	"testing"

	"github.com/caarlos0/env"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_EnvOverridesFlags(t *testing.T) {
	t.Setenv("RUN_ADDRESS", ":9090")
	t.Setenv("COST_BUFFER", "0.25")
	t.Setenv("SAFETY_MARGIN", "10.50")

	cfg := Config{Address: ":8080", CostBuffer: 0.1, DatabaseDNS: "postgres://flag"}
	require.NoError(t, env.Parse(&cfg))

	assert.Equal(t, ":9090", cfg.Address)
	assert.Equal(t, "postgres://flag", cfg.DatabaseDNS)
	assert.True(t, decimal.RequireFromString("0.25").Equal(cfg.Buffer()))
	assert.True(t, decimal.RequireFromString("10.50").Equal(cfg.SafetyMarginAmount()))
}

func TestConfig_InvalidAmountFallsBackToZero(t *testing.T) {
	cfg := Config{InitialBalance: "lots"}
	assert.True(t, cfg.InitialBalanceAmount().IsZero())

	cfg.InitialBalance = ""
	assert.True(t, cfg.InitialBalanceAmount().IsZero())
}
