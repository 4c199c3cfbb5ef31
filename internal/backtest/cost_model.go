package backtest

import (
	"github.com/mExOms/backtester/pkg/money"
	"github.com/shopspring/decimal"
)

// ExecutionType is the liquidity side of a fill.
type ExecutionType string

const (
	ExecutionMaker ExecutionType = "MAKER"
	ExecutionTaker ExecutionType = "TAKER"
)

// feeBand is one floor of a volume-tiered fee schedule: any 30-day
// volume at or above Floor (and below the next band's Floor) pays
// Rate percent.
type feeBand struct {
	Floor money.Money
	Rate  decimal.Decimal // percent, e.g. 0.26 for 0.26%
}

// CostModelConfig parameterizes the Trading Cost Model. All percent
// fields are fractions-of-a-hundred (0.26 means 0.26%), matching the
// external configuration contract in spec §6. Version is set by the
// caller; the core never infers it (spec §9 open question: cost-model
// config versioning is external).
type CostModelConfig struct {
	Version              string
	MakerFeePercent      decimal.Decimal
	TakerFeePercent      decimal.Decimal
	SlippagePercent      decimal.Decimal
	SpreadPercent        decimal.Decimal
	UseRealisticSlippage bool
	UseTieredFees        bool
	MakerFeeBands        []feeBand
	TakerFeeBands        []feeBand
}

// DefaultCostModelConfig models Kraken spot defaults: 0.16% maker,
// 0.26% taker, 0.05% slippage, 0.02% spread, realistic slippage on,
// tiering off.
func DefaultCostModelConfig() CostModelConfig {
	return CostModelConfig{
		Version:              "1.0.0",
		MakerFeePercent:      decimal.NewFromFloat(0.16),
		TakerFeePercent:      decimal.NewFromFloat(0.26),
		SlippagePercent:      decimal.NewFromFloat(0.05),
		SpreadPercent:        decimal.NewFromFloat(0.02),
		UseRealisticSlippage: true,
		UseTieredFees:        false,
		MakerFeeBands:        krakenMakerBands(),
		TakerFeeBands:        krakenTakerBands(),
	}
}

// krakenMakerBands and krakenTakerBands model a nine-band volume-tiered
// schedule keyed on 30-day traded volume, floors at 0, 50k, 100k,
// 250k, 500k, 1M, 2.5M, 5M, 10M quote-currency units.
func krakenMakerBands() []feeBand {
	return []feeBand{
		{Floor: money.NewFromInt(0), Rate: decimal.NewFromFloat(0.16)},
		{Floor: money.NewFromInt(50_000), Rate: decimal.NewFromFloat(0.14)},
		{Floor: money.NewFromInt(100_000), Rate: decimal.NewFromFloat(0.12)},
		{Floor: money.NewFromInt(250_000), Rate: decimal.NewFromFloat(0.10)},
		{Floor: money.NewFromInt(500_000), Rate: decimal.NewFromFloat(0.08)},
		{Floor: money.NewFromInt(1_000_000), Rate: decimal.NewFromFloat(0.06)},
		{Floor: money.NewFromInt(2_500_000), Rate: decimal.NewFromFloat(0.04)},
		{Floor: money.NewFromInt(5_000_000), Rate: decimal.NewFromFloat(0.02)},
		{Floor: money.NewFromInt(10_000_000), Rate: decimal.NewFromFloat(0.00)},
	}
}

func krakenTakerBands() []feeBand {
	return []feeBand{
		{Floor: money.NewFromInt(0), Rate: decimal.NewFromFloat(0.26)},
		{Floor: money.NewFromInt(50_000), Rate: decimal.NewFromFloat(0.24)},
		{Floor: money.NewFromInt(100_000), Rate: decimal.NewFromFloat(0.22)},
		{Floor: money.NewFromInt(250_000), Rate: decimal.NewFromFloat(0.20)},
		{Floor: money.NewFromInt(500_000), Rate: decimal.NewFromFloat(0.18)},
		{Floor: money.NewFromInt(1_000_000), Rate: decimal.NewFromFloat(0.16)},
		{Floor: money.NewFromInt(2_500_000), Rate: decimal.NewFromFloat(0.14)},
		{Floor: money.NewFromInt(5_000_000), Rate: decimal.NewFromFloat(0.12)},
		{Floor: money.NewFromInt(10_000_000), Rate: decimal.NewFromFloat(0.10)},
	}
}

// AssumedCostBps is the cost-model's own notion of "expected" cost in
// basis points, computed from the flat (non-tiered) fee plus the
// half-spread. It answers spec §9's open question on assumedCostBps
// sourcing: computed once, at config-attach time, from configuration
// alone, never from observed fills.
func (c CostModelConfig) AssumedCostBps() decimal.Decimal {
	flatFee := c.TakerFeePercent
	halfSpread := c.SpreadPercent.Div(decimal.NewFromInt(2))
	return flatFee.Add(halfSpread).Mul(decimal.NewFromInt(100)) // percent -> bps
}

// CostModel is a pure function of its configuration: given the same
// config and inputs it always returns the same TradeCost.
type CostModel struct {
	config CostModelConfig
}

// NewCostModel builds a CostModel bound to a fixed configuration.
func NewCostModel(config CostModelConfig) *CostModel {
	return &CostModel{config: config}
}

// Config returns the bound configuration.
func (m *CostModel) Config() CostModelConfig { return m.config }

// Compute produces the TradeCost for a prospective order. orderValue
// must be > 0; volume30Day may be zero when tiering is disabled or
// the caller has no trailing-volume data.
func (m *CostModel) Compute(execType ExecutionType, orderValue money.Money, volume30Day money.Money, isLargeOrder bool) TradeCost {
	feeRate := m.feeRate(execType, volume30Day)
	fee := orderValue.PercentOf(feeRate)

	slipPercent := m.config.SlippagePercent
	if m.config.UseRealisticSlippage {
		slipPercent = slipPercent.Mul(slippageMultiplier(orderValue, isLargeOrder))
	}
	slippageAmount := orderValue.PercentOf(slipPercent)

	// Half-spread: the configured spread is a round-trip quantity; one
	// side of a fill crosses only half of it.
	spreadPercent := m.config.SpreadPercent.Div(decimal.NewFromInt(2))
	spreadCost := orderValue.PercentOf(spreadPercent)

	total := fee.Add(slippageAmount).Add(spreadCost)
	totalPercent := decimal.Zero
	if orderValue.IsPositive() {
		totalPercent = total.Div(orderValue).Decimal().Mul(decimal.NewFromInt(100))
	}

	return TradeCost{
		Fee:             fee,
		SlippageAmount:  slippageAmount,
		SlippagePercent: slipPercent,
		SpreadCost:      spreadCost,
		SpreadPercent:   spreadPercent,
		Total:           total,
		TotalPercent:    totalPercent,
	}
}

func (m *CostModel) feeRate(execType ExecutionType, volume30Day money.Money) decimal.Decimal {
	if !m.config.UseTieredFees {
		if execType == ExecutionMaker {
			return m.config.MakerFeePercent
		}
		return m.config.TakerFeePercent
	}

	bands := m.config.TakerFeeBands
	if execType == ExecutionMaker {
		bands = m.config.MakerFeeBands
	}
	return bandRate(bands, volume30Day)
}

// bandRate returns the rate of the highest band whose Floor does not
// exceed volume30Day. Bands must be supplied in ascending Floor order.
func bandRate(bands []feeBand, volume30Day money.Money) decimal.Decimal {
	if len(bands) == 0 {
		return decimal.Zero
	}
	rate := bands[0].Rate
	for _, b := range bands {
		if volume30Day.GreaterThanOrEqual(b.Floor) {
			rate = b.Rate
		} else {
			break
		}
	}
	return rate
}

// slippageMultiplier scales the configured slippage percentage by
// order size: an explicit "large order" flag always wins at 3x;
// otherwise the multiplier steps with notional value. The multiplier
// is applied to the rate, not the resulting dollar amount.
func slippageMultiplier(orderValue money.Money, isLargeOrder bool) decimal.Decimal {
	switch {
	case isLargeOrder:
		return decimal.NewFromInt(3)
	case orderValue.GreaterThan(money.NewFromInt(100_000)):
		return decimal.NewFromInt(2)
	case orderValue.GreaterThan(money.NewFromInt(50_000)):
		return decimal.NewFromFloat(1.5)
	case orderValue.GreaterThan(money.NewFromInt(10_000)):
		return decimal.NewFromFloat(1.25)
	default:
		return decimal.NewFromInt(1)
	}
}
