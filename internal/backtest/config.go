package backtest

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// BacktestRunConfig is the set of knobs LoadRunConfig pulls from a
// *viper.Viper under the "backtest" key, independent of per-strategy
// fields that live on Strategy itself.
type BacktestRunConfig struct {
	DataRootDir     string
	ResultsRootDir  string
	TradesRootDir   string
	EventsRootDir   string
	StartingBalance decimal.Decimal
	RedisAddr       string // empty disables the result cache
	NATSUrl         string // empty disables event broadcast
}

// LoadRunConfig reads backtest.* keys from v. v is injected rather
// than read from a package-level viper singleton, so a server process
// and a one-shot CLI can each own a distinct configuration without
// racing on global state.
func LoadRunConfig(v *viper.Viper) BacktestRunConfig {
	v.SetDefault("backtest.data_root_dir", "./data/bars")
	v.SetDefault("backtest.results_root_dir", "./data/backtests/results")
	v.SetDefault("backtest.trades_root_dir", "./data/backtests/trades")
	v.SetDefault("backtest.events_root_dir", "./data/backtests")
	v.SetDefault("backtest.starting_balance", "10000")

	balance, err := decimal.NewFromString(v.GetString("backtest.starting_balance"))
	if err != nil {
		balance = decimal.NewFromInt(10_000)
	}

	return BacktestRunConfig{
		DataRootDir:     v.GetString("backtest.data_root_dir"),
		ResultsRootDir:  v.GetString("backtest.results_root_dir"),
		TradesRootDir:   v.GetString("backtest.trades_root_dir"),
		EventsRootDir:   v.GetString("backtest.events_root_dir"),
		StartingBalance: balance,
		RedisAddr:       v.GetString("backtest.redis_addr"),
		NATSUrl:         v.GetString("backtest.nats_url"),
	}
}

// LoadCostModelConfig reads backtest.cost_model.* keys from v, falling
// back to DefaultCostModelConfig for anything unset.
func LoadCostModelConfig(v *viper.Viper) CostModelConfig {
	cfg := DefaultCostModelConfig()

	v.SetDefault("backtest.cost_model.maker_fee_percent", cfg.MakerFeePercent.String())
	v.SetDefault("backtest.cost_model.taker_fee_percent", cfg.TakerFeePercent.String())
	v.SetDefault("backtest.cost_model.slippage_percent", cfg.SlippagePercent.String())
	v.SetDefault("backtest.cost_model.spread_percent", cfg.SpreadPercent.String())
	v.SetDefault("backtest.cost_model.use_realistic_slippage", cfg.UseRealisticSlippage)
	v.SetDefault("backtest.cost_model.use_tiered_fees", cfg.UseTieredFees)
	v.SetDefault("backtest.cost_model.version", cfg.Version)

	cfg.Version = v.GetString("backtest.cost_model.version")
	cfg.UseRealisticSlippage = v.GetBool("backtest.cost_model.use_realistic_slippage")
	cfg.UseTieredFees = v.GetBool("backtest.cost_model.use_tiered_fees")

	if d, err := decimal.NewFromString(v.GetString("backtest.cost_model.maker_fee_percent")); err == nil {
		cfg.MakerFeePercent = d
	}
	if d, err := decimal.NewFromString(v.GetString("backtest.cost_model.taker_fee_percent")); err == nil {
		cfg.TakerFeePercent = d
	}
	if d, err := decimal.NewFromString(v.GetString("backtest.cost_model.slippage_percent")); err == nil {
		cfg.SlippagePercent = d
	}
	if d, err := decimal.NewFromString(v.GetString("backtest.cost_model.spread_percent")); err == nil {
		cfg.SpreadPercent = d
	}

	return cfg
}

// ValidateRunConfig rejects obviously unusable configuration before
// the Orchestrator wires up any stores.
func ValidateRunConfig(cfg BacktestRunConfig) error {
	if cfg.DataRootDir == "" {
		return fmt.Errorf("backtest: data_root_dir must not be empty")
	}
	if cfg.StartingBalance.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("backtest: starting_balance must be positive, got %s", cfg.StartingBalance)
	}
	return nil
}
