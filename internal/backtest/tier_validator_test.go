package backtest_test

import (
	"testing"

	"github.com/mExOms/backtester/internal/backtest"
	"github.com/mExOms/backtester/pkg/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeBar(ts int64, tier backtest.DataTier) backtest.PriceBar {
	return backtest.PriceBar{
		Timestamp: ts,
		Open:      money.NewFromInt(100),
		High:      money.NewFromInt(101),
		Low:       money.NewFromInt(99),
		Close:     money.NewFromInt(100),
		Volume:    money.NewFromInt(10),
		Tier:      tier,
	}
}

func TestValidateTier_MixedTiersFail(t *testing.T) {
	bars := []backtest.PriceBar{
		makeBar(1, backtest.TierPremium),
		makeBar(2, backtest.TierBasic),
	}
	_, err := backtest.ValidateTier(bars, 2)
	require.Error(t, err)

	var tierErr *backtest.TierValidationError
	assert.ErrorAs(t, err, &tierErr)
}

func TestValidateTier_FullCoverageScoresOne(t *testing.T) {
	bars := []backtest.PriceBar{
		makeBar(1, backtest.TierPremium),
		makeBar(2, backtest.TierPremium),
	}
	result, err := backtest.ValidateTier(bars, 2)
	require.NoError(t, err)
	assert.Equal(t, backtest.TierPremium, result.Tier)
	assert.InDelta(t, 1.0, result.QualityScore, 0.0001)
}

func TestValidateTier_ExcessiveGapFails(t *testing.T) {
	bars := []backtest.PriceBar{makeBar(1, backtest.TierPremium)}
	_, err := backtest.ValidateTier(bars, 10)
	require.Error(t, err)
}
