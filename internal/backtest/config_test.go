package backtest_test

import (
	"testing"

	"github.com/mExOms/backtester/internal/backtest"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRunConfig_Defaults(t *testing.T) {
	v := viper.New()
	cfg := backtest.LoadRunConfig(v)

	assert.Equal(t, "./data/bars", cfg.DataRootDir)
	assert.True(t, cfg.StartingBalance.Equal(decimal.NewFromInt(10_000)))
	require.NoError(t, backtest.ValidateRunConfig(cfg))
}

func TestLoadRunConfig_OverridesFromViper(t *testing.T) {
	v := viper.New()
	v.Set("backtest.data_root_dir", "/custom/bars")
	v.Set("backtest.starting_balance", "25000")

	cfg := backtest.LoadRunConfig(v)

	assert.Equal(t, "/custom/bars", cfg.DataRootDir)
	assert.True(t, cfg.StartingBalance.Equal(decimal.NewFromInt(25_000)))
}

func TestLoadCostModelConfig_OverridesFeePercent(t *testing.T) {
	v := viper.New()
	v.Set("backtest.cost_model.taker_fee_percent", "0.40")
	v.Set("backtest.cost_model.use_tiered_fees", true)

	cfg := backtest.LoadCostModelConfig(v)

	assert.True(t, cfg.TakerFeePercent.Equal(decimal.NewFromFloat(0.40)))
	assert.True(t, cfg.UseTieredFees)
}

func TestValidateRunConfig_RejectsNonPositiveBalance(t *testing.T) {
	cfg := backtest.BacktestRunConfig{DataRootDir: "./data", StartingBalance: decimal.Zero}
	assert.Error(t, backtest.ValidateRunConfig(cfg))
}
