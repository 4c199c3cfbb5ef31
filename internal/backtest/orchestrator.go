package backtest

import (
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mExOms/backtester/pkg/money"
	"github.com/sirupsen/logrus"
)

// EngineVersion and ParserVersion are stamped onto every persisted
// RunSummary for provenance. Bump EngineVersion whenever RunBacktest's
// economics change in a way that would make two runs numerically
// incomparable; bump ParserVersion when FileBarStore's row format
// changes.
const (
	EngineVersion = "1.0.0"
	ParserVersion = "1.0.0"
)

// RunRequest is everything the Orchestrator needs to execute and
// persist one backtest run.
type RunRequest struct {
	Strategy        Strategy
	Asset           string
	Timeframe       Timeframe
	StartTs, EndTs  int64
	StartingBalance money.Money
}

// Orchestrator wires the Data Provider, Data Tier Validator,
// Simulation Engine, and Analytics together and persists the outcome
// through an EventLogger, ResultStore, and TradeStore. It is the only
// component callers (CLI, API handler) interact with directly.
type Orchestrator struct {
	dataProvider *DataProvider
	barStore     BarStore
	costModel    *CostModel
	evaluator    StrategyEvaluator
	events       *EventLogger
	results      ResultStore
	trades       TradeStore
	publisher    EventPublisher
	log          *logrus.Entry
}

// NewOrchestrator wires dependencies. publisher may be nil, in which
// case events are not broadcast outside the process.
func NewOrchestrator(
	barStore BarStore,
	costModel *CostModel,
	evaluator StrategyEvaluator,
	events *EventLogger,
	results ResultStore,
	trades TradeStore,
	publisher EventPublisher,
	log *logrus.Entry,
) *Orchestrator {
	if publisher == nil {
		publisher = NoopEventPublisher{}
	}
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	return &Orchestrator{
		dataProvider: NewDataProvider(barStore),
		barStore:     barStore,
		costModel:    costModel,
		evaluator:    evaluator,
		events:       events,
		results:      results,
		trades:       trades,
		publisher:    publisher,
		log:          log.WithField("component", "orchestrator"),
	}
}

// newRunID mints a run identifier of the form bt_<epochMillis>. Takes
// nowMillis explicitly since workflow scripts and tests must not call
// time.Now() themselves inside deterministic code paths; production
// callers pass time.Now().UnixMilli().
func newRunID(nowMillis int64) string {
	return "bt_" + strconv.FormatInt(nowMillis, 10)
}

// Run executes req end to end: resolve data, validate tier, simulate,
// compute analytics, persist, broadcast. An invalid strategy or a data
// request that cannot be resolved or loaded returns a non-nil error. A
// dataset that fails the engine's pre-flight or tier validation
// surfaces as a BacktestResult with ValidationError set, which is
// written to the event log and, having no trades, not persisted.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest, nowMillis int64) (BacktestResult, Analytics, error) {
	runID := newRunID(nowMillis)
	log := o.log.WithFields(logrus.Fields{"runId": runID, "strategy": req.Strategy.Name, "asset": req.Asset})

	if err := req.Strategy.Validate(); err != nil {
		return BacktestResult{ValidationError: err.Error()}, Analytics{}, fmt.Errorf("backtest: invalid strategy: %w", err)
	}

	selection, bars, err := o.dataProvider.Load(DataRequest{
		Asset: req.Asset, Timeframe: req.Timeframe, StartTs: req.StartTs, EndTs: req.EndTs,
	})
	if err != nil {
		return BacktestResult{}, Analytics{}, fmt.Errorf("backtest: resolve data: %w", err)
	}

	coverage, err := o.barStore.GetCoverage(req.Asset, req.Timeframe)
	if err != nil {
		return BacktestResult{}, Analytics{}, fmt.Errorf("backtest: coverage: %w", err)
	}
	expectedBars := len(bars)
	if coverage != nil {
		expectedBars = coverage.ExpectedBars
	}

	writer, err := o.events.Open(runID)
	if err != nil {
		return BacktestResult{}, Analytics{}, fmt.Errorf("backtest: open event log: %w", err)
	}
	defer writer.Close()

	startedAt := time.UnixMilli(nowMillis)
	_ = writer.BacktestStart(req.Strategy.Name, req.StartingBalance.String(), req.Asset, req.Timeframe, selection.Tier)
	o.publisher.PublishStart(runID, req.Strategy.Name, req.Asset)

	engine := NewSimulationEngine(log)
	result := engine.RunBacktest(ctx, req.Strategy, req.Asset, bars, req.StartingBalance, o.costModel, o.evaluator, bars, expectedBars)

	for _, t := range result.Trades {
		pnlStr := t.PnL.String()
		_ = writer.Trade(t.Timestamp, ActionSell, t.ExitPrice.String(), t.Volume.String(), &pnlStr)
		o.publisher.PublishTrade(runID, t)
	}
	if result.Failed() {
		_ = writer.Error(result.ValidationError, 0)
	}

	analytics := Compute(result, o.costModel.Config())
	result.ObservedCostBps = analytics.ObservedCostBps
	result.AssumedCostBps = analytics.AssumedCostBps
	result.CostDeltaBps = analytics.CostDeltaBps
	status := StatusTag(analytics.WinRatePercent, analytics.ProfitFactor, analytics.ProfitFactorInfinite)

	_ = writer.BacktestEnd(result.TotalTrades(), analytics.WinRatePercent.String(), result.EndingBalance.Sub(result.StartingBalance).String(), analytics.SharpeRatio.String(), analytics.MaxDrawdownPercent.String())
	_ = writer.Close()

	eventsPath, _ := writer.Path()
	finishedAt := time.UnixMilli(nowMillis)

	summary := RunSummary{
		RunID:          runID,
		StrategyID:     req.Strategy.ID,
		StrategyName:   req.Strategy.Name,
		Asset:          req.Asset,
		Timeframe:      req.Timeframe,
		StartedAt:      startedAt,
		FinishedAt:     finishedAt,
		TotalTrades:    result.TotalTrades(),
		WinRatePercent: analytics.WinRatePercent,
		ProfitFactor:   analytics.ProfitFactor,
		SharpeRatio:    analytics.SharpeRatio,
		MaxDrawdownPct: analytics.MaxDrawdownPercent,
		EndingBalance:  result.EndingBalance,
		Status:         status,
		DataFileHashes: []string{datasetHash(selection, bars)},
		ParserVersion:  ParserVersion,
		EngineVersion:  EngineVersion,
	}

	// Only a run with at least one trade is persisted (spec §7): a
	// zero-trade run is almost always a misconfigured strategy or an
	// empty dataset, and polluting the result store with it makes
	// every "list my runs" query noisier for no analytical benefit.
	if result.TotalTrades() > 0 {
		if err := o.results.SaveRun(ctx, summary); err != nil {
			log.WithError(err).Warn("failed to persist run summary")
		}
		if err := o.trades.RecordTrades(runID, req.Strategy.ID, result.Trades); err != nil {
			log.WithError(err).Warn("failed to persist trades")
		}
		if err := o.events.AppendIndex(IndexRow{
			RunID: runID, StrategyName: req.Strategy.Name, StartTime: startedAt, EndTime: finishedAt,
			TotalTrades: result.TotalTrades(), WinRate: analytics.WinRatePercent.String(),
			TotalPnL: result.EndingBalance.Sub(result.StartingBalance).String(), SharpeRatio: analytics.SharpeRatio.String(),
			EventsFile: eventsPath,
		}); err != nil {
			log.WithError(err).Warn("failed to append index row")
		}
		if err := o.GenerateReport(runID, bars, result, analytics, summary); err != nil {
			log.WithError(err).Warn("failed to generate run report")
		}
	} else {
		log.Info("zero-trade run, skipping persistence")
	}

	o.publisher.PublishEnd(runID, summary)
	log.WithFields(logrus.Fields{"trades": result.TotalTrades(), "status": status}).Info("run complete")

	return result, analytics, nil
}

// datasetHash fingerprints exactly what was replayed — asset,
// timeframe, tier, and every bar in order — so two runs that produced
// different numbers can always be traced back to different input data
// rather than a silent engine change.
func datasetHash(selection DataSelection, bars []PriceBar) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s", selection.Asset, selection.Timeframe, selection.Tier.TierName())
	for _, b := range bars {
		fmt.Fprintf(h, "|%d,%s,%s,%s,%s,%s", b.Timestamp, b.Open, b.High, b.Low, b.Close, b.Volume)
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil))
}

// GenerateReport writes the per-run report bundle into the run's event
// directory: result.json (the full BacktestResult), trades.csv,
// equity_curve.csv (daily granularity, via DailyEquity), and a
// human-readable summary.txt. Carried forward from the teacher's
// performance_analyzer.go, which produced the same
// JSON+CSV+summary.txt bundle per run.
func (o *Orchestrator) GenerateReport(runID string, bars []PriceBar, result BacktestResult, analytics Analytics, summary RunSummary) error {
	dir := o.events.RunDir(runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("backtest: create report directory: %w", err)
	}

	resultJSON, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("backtest: marshal result.json: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "result.json"), resultJSON, 0o644); err != nil {
		return fmt.Errorf("backtest: write result.json: %w", err)
	}

	if err := writeTradesReport(filepath.Join(dir, "trades.csv"), result.Trades); err != nil {
		return err
	}

	if err := writeEquityCurveReport(filepath.Join(dir, "equity_curve.csv"), DailyEquity(bars, result.EquityCurve)); err != nil {
		return err
	}

	if err := os.WriteFile(filepath.Join(dir, "summary.txt"), []byte(summaryText(summary, analytics)), 0o644); err != nil {
		return fmt.Errorf("backtest: write summary.txt: %w", err)
	}
	return nil
}

func writeTradesReport(path string, trades []CompletedTrade) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("backtest: create trades.csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	_ = w.Write([]string{
		"trade_id", "position_id", "timestamp", "pair", "entry_price", "exit_price",
		"volume", "pnl", "entry_costs", "exit_costs", "reason",
	})
	for _, t := range trades {
		_ = w.Write([]string{
			t.TradeID, t.PositionID, strconv.FormatInt(t.Timestamp, 10), t.Pair,
			t.EntryPrice.String(), t.ExitPrice.String(), t.Volume.String(),
			t.PnL.String(), t.EntryCosts.String(), t.ExitCosts.String(), string(t.Reason),
		})
	}
	w.Flush()
	return w.Error()
}

func writeEquityCurveReport(path string, points []DailyEquityPoint) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("backtest: create equity_curve.csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	_ = w.Write([]string{"date", "equity"})
	for _, p := range points {
		_ = w.Write([]string{p.Date, p.Equity.String()})
	}
	w.Flush()
	return w.Error()
}

func summaryText(summary RunSummary, analytics Analytics) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run:              %s\n", summary.RunID)
	fmt.Fprintf(&b, "Strategy:         %s (%s)\n", summary.StrategyName, summary.StrategyID)
	fmt.Fprintf(&b, "Asset/Timeframe:  %s / %s\n", summary.Asset, summary.Timeframe)
	fmt.Fprintf(&b, "Status:           %s\n", summary.Status)
	fmt.Fprintf(&b, "Total Trades:     %d\n", summary.TotalTrades)
	fmt.Fprintf(&b, "Win Rate:         %s%%\n", summary.WinRatePercent.StringFixed(2))
	fmt.Fprintf(&b, "Profit Factor:    %s\n", profitFactorText(analytics))
	fmt.Fprintf(&b, "Sharpe Ratio:     %s\n", summary.SharpeRatio.StringFixed(2))
	fmt.Fprintf(&b, "Max Drawdown:     %s%%\n", summary.MaxDrawdownPct.StringFixed(2))
	fmt.Fprintf(&b, "Ending Balance:   %s\n", summary.EndingBalance.String())
	fmt.Fprintf(&b, "Dataset Hash:     %s\n", strings.Join(summary.DataFileHashes, ","))
	fmt.Fprintf(&b, "Parser/Engine:    %s / %s\n", summary.ParserVersion, summary.EngineVersion)
	return b.String()
}

func profitFactorText(a Analytics) string {
	if a.ProfitFactorInfinite {
		return "inf"
	}
	return a.ProfitFactor.StringFixed(2)
}
