package backtest

// Coverage summarizes what a BarStore holds for one asset/timeframe
// pair, used by the Data Provider to auto-resolve a date range and by
// the Data Tier Validator to size ExpectedBars.
type Coverage struct {
	Earliest     int64
	Latest       int64
	TotalBars    int
	ExpectedBars int
	GapsCount    int
	QualityScore float64
}

// BarStore is the inbound capability set the core consumes for bar
// data. Implementations are read-only during a run (spec §5).
type BarStore interface {
	GetBarsInRange(asset string, timeframe Timeframe, startTs, endTs int64) ([]PriceBar, error)
	GetCoverage(asset string, timeframe Timeframe) (*Coverage, error)
	GetDistinctDataTiers(asset string, timeframe Timeframe) ([]DataTier, error)
}
