package backtest

import "fmt"

// DataSelection is the resolved asset/timeframe/tier/range a run will
// replay, whether the caller supplied it explicitly or left it to be
// auto-resolved from the store's coverage.
type DataSelection struct {
	Asset     string
	Timeframe Timeframe
	Tier      DataTier
	StartTs   int64
	EndTs     int64
}

// DataRequest is the caller's (possibly partial) request. StartTs/EndTs
// of 0 take the store's full coverage. Asset and Timeframe are
// required: Resolve returns an error when either is empty and does not
// pick or detect a timeframe itself.
type DataRequest struct {
	Asset     string
	Timeframe Timeframe
	StartTs   int64
	EndTs     int64
}

// DataProvider resolves a DataRequest against a BarStore and loads the
// resulting bars (spec §2 "Data Provider").
type DataProvider struct {
	store BarStore
}

// NewDataProvider builds a DataProvider over store.
func NewDataProvider(store BarStore) *DataProvider {
	return &DataProvider{store: store}
}

// Resolve fills in any unspecified fields of req from the store's
// coverage and distinct tiers, preferring the highest-quality
// (lowest-ordinal) DataTier present.
func (p *DataProvider) Resolve(req DataRequest) (DataSelection, error) {
	if req.Asset == "" {
		return DataSelection{}, fmt.Errorf("backtest: data request missing asset")
	}
	if req.Timeframe == "" {
		return DataSelection{}, fmt.Errorf("backtest: data request missing timeframe")
	}

	coverage, err := p.store.GetCoverage(req.Asset, req.Timeframe)
	if err != nil {
		return DataSelection{}, fmt.Errorf("backtest: coverage lookup: %w", err)
	}
	if coverage == nil {
		return DataSelection{}, fmt.Errorf("backtest: no data for %s/%s", req.Asset, req.Timeframe)
	}

	tiers, err := p.store.GetDistinctDataTiers(req.Asset, req.Timeframe)
	if err != nil {
		return DataSelection{}, fmt.Errorf("backtest: tier lookup: %w", err)
	}
	if len(tiers) == 0 {
		return DataSelection{}, fmt.Errorf("backtest: no data tiers available for %s/%s", req.Asset, req.Timeframe)
	}
	tier := bestTier(tiers)

	start, end := req.StartTs, req.EndTs
	if start == 0 {
		start = coverage.Earliest
	}
	if end == 0 {
		end = coverage.Latest
	}

	return DataSelection{
		Asset:     req.Asset,
		Timeframe: req.Timeframe,
		Tier:      tier,
		StartTs:   start,
		EndTs:     end,
	}, nil
}

// Load resolves req and returns the bars it selects.
func (p *DataProvider) Load(req DataRequest) (DataSelection, []PriceBar, error) {
	selection, err := p.Resolve(req)
	if err != nil {
		return DataSelection{}, nil, err
	}
	bars, err := p.store.GetBarsInRange(selection.Asset, selection.Timeframe, selection.StartTs, selection.EndTs)
	if err != nil {
		return DataSelection{}, nil, fmt.Errorf("backtest: load bars: %w", err)
	}
	return selection, bars, nil
}

func bestTier(tiers []DataTier) DataTier {
	best := tiers[0]
	for _, t := range tiers[1:] {
		if t < best {
			best = t
		}
	}
	return best
}
