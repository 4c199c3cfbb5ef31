package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mExOms/backtester/internal/backtest"
	"github.com/mExOms/backtester/pkg/money"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

func main() {
	var (
		configFile = flag.String("config", "", "Path to a config file (yaml/json/toml); optional")
		dataDir    = flag.String("data", "", "Historical bar data directory (overrides config)")
		asset      = flag.String("asset", "", "Asset/pair to backtest, e.g. BTCUSD")
		timeframe  = flag.String("timeframe", "1h", "Bar timeframe: 1m,5m,15m,30m,1h,4h,1d,1w")
		strategyID = flag.String("strategy-id", "cli-strategy", "Strategy identifier")
		entry      = flag.String("entry", "sma_cross_up(20)", "Comma-separated entry condition expressions")
		exit       = flag.String("exit", "sma_cross_down(20)", "Comma-separated exit condition expressions")
		sizePct    = flag.Float64("position-size", 95, "Position size as a percent of balance")
		stopLoss   = flag.Float64("stop-loss", 0, "Stop-loss percent, 0 disables")
		takeProfit = flag.Float64("take-profit", 0, "Take-profit percent, 0 disables")
		balance    = flag.Float64("balance", 0, "Starting balance override, 0 uses config default")
	)
	flag.Parse()

	log := logrus.NewEntry(logrus.New())

	v := viper.New()
	if *configFile != "" {
		v.SetConfigFile(*configFile)
		if err := v.ReadInConfig(); err != nil {
			log.WithError(err).Fatal("failed to read config file")
		}
	}
	runCfg := backtest.LoadRunConfig(v)
	if *dataDir != "" {
		runCfg.DataRootDir = *dataDir
	}
	if *balance > 0 {
		runCfg.StartingBalance = decimal.NewFromFloat(*balance)
	}
	if err := backtest.ValidateRunConfig(runCfg); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	startingBalance, err := money.NewFromString(runCfg.StartingBalance.String())
	if err != nil {
		log.WithError(err).Fatal("invalid starting balance")
	}

	costModel := backtest.NewCostModel(backtest.LoadCostModelConfig(v))

	barStore := backtest.NewFileBarStore(runCfg.DataRootDir)
	evaluator := backtest.NewDefaultEvaluator()
	events := backtest.NewEventLogger(runCfg.EventsRootDir, log)
	results := backtest.NewFileResultStore(runCfg.ResultsRootDir)
	trades := backtest.NewFileTradeStore(runCfg.TradesRootDir)

	var publisher backtest.EventPublisher
	if runCfg.NATSUrl != "" {
		natsPublisher, err := backtest.NewNATSEventPublisher(runCfg.NATSUrl, log)
		if err != nil {
			log.WithError(err).Warn("nats publisher disabled: connect failed")
		} else {
			defer natsPublisher.Close()
			publisher = natsPublisher
		}
	}

	var resultStore backtest.ResultStore = results
	if runCfg.RedisAddr != "" {
		resultStore = backtest.NewRedisResultCache(results, runCfg.RedisAddr, 24*time.Hour)
	}

	orch := backtest.NewOrchestrator(barStore, costModel, evaluator, events, resultStore, trades, publisher, log)

	if *asset == "" {
		fmt.Fprintln(os.Stderr, "-asset is required")
		os.Exit(1)
	}

	strategy := backtest.Strategy{
		ID:                  *strategyID,
		Name:                *strategyID,
		EntryConditions:     splitExprs(*entry),
		ExitConditions:      splitExprs(*exit),
		PositionSizePercent: decimal.NewFromFloat(*sizePct),
		StopLossPercent:     decimal.NewFromFloat(*stopLoss),
		TakeProfitPercent:   decimal.NewFromFloat(*takeProfit),
		TradingPairs:        []string{*asset},
		TradingMode:         backtest.TradingModeBacktest,
	}

	req := backtest.RunRequest{
		Strategy:        strategy,
		Asset:           *asset,
		Timeframe:       backtest.Timeframe(*timeframe),
		StartingBalance: startingBalance,
	}

	result, analytics, err := orch.Run(context.Background(), req, time.Now().UnixMilli())
	if err != nil {
		log.WithError(err).Fatal("backtest run failed")
	}
	if result.Failed() {
		fmt.Printf("Run did not complete: %s\n", result.ValidationError)
		os.Exit(1)
	}

	printSummary(result, analytics)
}

func splitExprs(s string) []backtest.Expr {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	exprs := make([]backtest.Expr, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			exprs = append(exprs, backtest.Expr(p))
		}
	}
	return exprs
}

func printSummary(result backtest.BacktestResult, a backtest.Analytics) {
	fmt.Printf("\n=== Backtest Results ===\n")
	fmt.Printf("Total Trades: %d\n", result.TotalTrades())
	fmt.Printf("Ending Balance: %s\n", result.EndingBalance.String())
	fmt.Printf("Win Rate: %s%%\n", a.WinRatePercent.StringFixed(2))
	if a.ProfitFactorInfinite {
		fmt.Printf("Profit Factor: inf\n")
	} else {
		fmt.Printf("Profit Factor: %s\n", a.ProfitFactor.StringFixed(2))
	}
	fmt.Printf("Sharpe Ratio: %s\n", a.SharpeRatio.StringFixed(2))
	fmt.Printf("Max Drawdown: %s%%\n", a.MaxDrawdownPercent.StringFixed(2))
	fmt.Printf("Aggregated Fees: %s\n", a.AggregatedFees.String())
	fmt.Printf("Aggregated Slippage: %s\n", a.AggregatedSlippage.String())
}
