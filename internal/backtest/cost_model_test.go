package backtest_test

import (
	"testing"

	"github.com/mExOms/backtester/internal/backtest"
	"github.com/mExOms/backtester/pkg/money"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCostModel_HalfSpreadExactness(t *testing.T) {
	cfg := backtest.DefaultCostModelConfig()
	cfg.TakerFeePercent = decimal.NewFromFloat(0.26)
	cfg.SpreadPercent = decimal.NewFromFloat(0.02)
	cfg.SlippagePercent = decimal.NewFromFloat(0.05)
	cfg.UseRealisticSlippage = false
	cfg.UseTieredFees = false
	model := backtest.NewCostModel(cfg)

	cost := model.Compute(backtest.ExecutionTaker, money.NewFromInt(10_000), money.Zero, false)

	assert.True(t, cost.SpreadPercent.Equal(decimal.NewFromFloat(0.01)), "spread percent should be half of configured 0.02")
	assert.Equal(t, "1.00000000", cost.SpreadCost.String())
	assert.Equal(t, "26.00000000", cost.Fee.String())
	assert.Equal(t, "5.00000000", cost.SlippageAmount.String())
	assert.Equal(t, "32.00000000", cost.Total.String())
}

func TestCostModel_SlippageScalesByBand(t *testing.T) {
	cfg := backtest.DefaultCostModelConfig()
	cfg.UseRealisticSlippage = true
	cfg.SlippagePercent = decimal.NewFromFloat(0.1)
	model := backtest.NewCostModel(cfg)

	below := model.Compute(backtest.ExecutionTaker, money.NewFromInt(5_000), money.Zero, false)
	belowDoubled := model.Compute(backtest.ExecutionTaker, money.NewFromInt(10_000), money.Zero, false)
	assert.True(t, below.SlippagePercent.Equal(belowDoubled.SlippagePercent), "doubling below a band boundary must not change the rate")

	above := model.Compute(backtest.ExecutionTaker, money.NewFromInt(60_000), money.Zero, false)
	assert.True(t, above.SlippagePercent.Equal(decimal.NewFromFloat(0.15)), "crossing the >50k band applies the 1.5x factor")

	large := model.Compute(backtest.ExecutionTaker, money.NewFromInt(1_000), money.Zero, true)
	assert.True(t, large.SlippagePercent.Equal(decimal.NewFromFloat(0.3)), "isLargeOrder always applies the 3x factor")
}

func TestCostModel_TieredFeesSelectBand(t *testing.T) {
	cfg := backtest.DefaultCostModelConfig()
	cfg.UseTieredFees = true
	model := backtest.NewCostModel(cfg)

	low := model.Compute(backtest.ExecutionTaker, money.NewFromInt(1_000), money.NewFromInt(0), false)
	high := model.Compute(backtest.ExecutionTaker, money.NewFromInt(1_000), money.NewFromInt(2_600_000), false)

	assert.True(t, low.Fee.GreaterThan(high.Fee), "higher 30-day volume should land in a cheaper band")
}

func TestCostModel_PureFunction(t *testing.T) {
	model := backtest.NewCostModel(backtest.DefaultCostModelConfig())
	a := model.Compute(backtest.ExecutionMaker, money.NewFromInt(2_500), money.Zero, false)
	b := model.Compute(backtest.ExecutionMaker, money.NewFromInt(2_500), money.Zero, false)
	assert.True(t, a.Total.Equal(b.Total))
}
