package backtest

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/mExOms/backtester/pkg/money"
)

// FileBarStore reads OHLCV bars from per-asset-per-timeframe CSV files
// laid out as <rootDir>/<asset>/<timeframe>.csv with header
// timestamp,open,high,low,close,volume,tier. Rows are cached in memory
// per asset/timeframe on first read; the store is read-only from the
// engine's perspective.
type FileBarStore struct {
	rootDir string

	mu    sync.Mutex
	cache map[string][]PriceBar
}

// NewFileBarStore builds a FileBarStore rooted at rootDir.
func NewFileBarStore(rootDir string) *FileBarStore {
	return &FileBarStore{rootDir: rootDir, cache: make(map[string][]PriceBar)}
}

func cacheKey(asset string, timeframe Timeframe) string {
	return asset + "|" + string(timeframe)
}

func (s *FileBarStore) path(asset string, timeframe Timeframe) string {
	return filepath.Join(s.rootDir, asset, string(timeframe)+".csv")
}

func (s *FileBarStore) load(asset string, timeframe Timeframe) ([]PriceBar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := cacheKey(asset, timeframe)
	if bars, ok := s.cache[key]; ok {
		return bars, nil
	}

	f, err := os.Open(s.path(asset, timeframe))
	if err != nil {
		return nil, fmt.Errorf("backtest: open bar file for %s/%s: %w", asset, timeframe, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("backtest: read bar file for %s/%s: %w", asset, timeframe, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	bars := make([]PriceBar, 0, len(rows)-1)
	for i, row := range rows {
		if i == 0 && len(row) > 0 && row[0] == "timestamp" {
			continue // header
		}
		bar, err := parseBarRow(row)
		if err != nil {
			return nil, fmt.Errorf("backtest: bar file %s/%s row %d: %w", asset, timeframe, i, err)
		}
		bars = append(bars, bar)
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp < bars[j].Timestamp })

	s.cache[key] = bars
	return bars, nil
}

func parseBarRow(row []string) (PriceBar, error) {
	if len(row) < 7 {
		return PriceBar{}, fmt.Errorf("expected 7 columns, got %d", len(row))
	}
	ts, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return PriceBar{}, fmt.Errorf("timestamp: %w", err)
	}
	open, err := money.NewFromString(row[1])
	if err != nil {
		return PriceBar{}, fmt.Errorf("open: %w", err)
	}
	high, err := money.NewFromString(row[2])
	if err != nil {
		return PriceBar{}, fmt.Errorf("high: %w", err)
	}
	low, err := money.NewFromString(row[3])
	if err != nil {
		return PriceBar{}, fmt.Errorf("low: %w", err)
	}
	closeP, err := money.NewFromString(row[4])
	if err != nil {
		return PriceBar{}, fmt.Errorf("close: %w", err)
	}
	volume, err := money.NewFromString(row[5])
	if err != nil {
		return PriceBar{}, fmt.Errorf("volume: %w", err)
	}
	tier, err := ParseDataTier(row[6])
	if err != nil {
		return PriceBar{}, err
	}
	return PriceBar{
		Timestamp: ts,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closeP,
		Volume:    volume,
		Tier:      tier,
	}, nil
}

// GetBarsInRange returns bars with startTs <= Timestamp <= endTs.
func (s *FileBarStore) GetBarsInRange(asset string, timeframe Timeframe, startTs, endTs int64) ([]PriceBar, error) {
	all, err := s.load(asset, timeframe)
	if err != nil {
		return nil, err
	}
	lo := sort.Search(len(all), func(i int) bool { return all[i].Timestamp >= startTs })
	hi := sort.Search(len(all), func(i int) bool { return all[i].Timestamp > endTs })
	if lo >= hi {
		return nil, nil
	}
	out := make([]PriceBar, hi-lo)
	copy(out, all[lo:hi])
	return out, nil
}

// GetCoverage summarizes the full range held for asset/timeframe.
func (s *FileBarStore) GetCoverage(asset string, timeframe Timeframe) (*Coverage, error) {
	all, err := s.load(asset, timeframe)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, nil
	}

	width, ok := timeframeMillis[timeframe]
	if !ok {
		width = 0
	}
	expected := len(all)
	gaps := 0
	if width > 0 {
		span := all[len(all)-1].Timestamp - all[0].Timestamp
		expected = int(span/width) + 1
		gaps = expected - len(all)
		if gaps < 0 {
			gaps = 0
		}
	}

	quality := 1.0
	if expected > 0 {
		quality = float64(len(all)) / float64(expected)
	}

	return &Coverage{
		Earliest:     all[0].Timestamp,
		Latest:       all[len(all)-1].Timestamp,
		TotalBars:    len(all),
		ExpectedBars: expected,
		GapsCount:    gaps,
		QualityScore: quality,
	}, nil
}

// GetDistinctDataTiers returns the set of tiers present in the stored
// bars for asset/timeframe, in declared-tier order.
func (s *FileBarStore) GetDistinctDataTiers(asset string, timeframe Timeframe) ([]DataTier, error) {
	all, err := s.load(asset, timeframe)
	if err != nil {
		return nil, err
	}
	seen := make(map[DataTier]bool)
	for _, b := range all {
		seen[b.Tier] = true
	}
	tiers := make([]DataTier, 0, len(seen))
	for _, t := range []DataTier{TierPremium, TierProfessional, TierStandard, TierBasic} {
		if seen[t] {
			tiers = append(tiers, t)
		}
	}
	return tiers, nil
}
