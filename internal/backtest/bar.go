package backtest

import (
	"fmt"
	"sort"

	"github.com/mExOms/backtester/pkg/money"
)

// Timeframe is a canonical bar-interval tag. Detected from the median
// inter-bar delta when a caller does not supply one explicitly.
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe30m Timeframe = "30m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe1d  Timeframe = "1d"
	Timeframe1w  Timeframe = "1w"
)

// timeframeMillis maps each canonical timeframe to its nominal bar
// width in milliseconds, used for detection, for TimeframeMillis, and
// for FileBarStore's expected-bar count.
var timeframeMillis = map[Timeframe]int64{
	Timeframe1m:  60_000,
	Timeframe5m:  5 * 60_000,
	Timeframe15m: 15 * 60_000,
	Timeframe30m: 30 * 60_000,
	Timeframe1h:  60 * 60_000,
	Timeframe4h:  4 * 60 * 60_000,
	Timeframe1d:  24 * 60 * 60_000,
	Timeframe1w:  7 * 24 * 60 * 60_000,
}

// orderedTimeframes is timeframeMillis in ascending width, used for
// nearest-match detection.
var orderedTimeframes = []Timeframe{
	Timeframe1m, Timeframe5m, Timeframe15m, Timeframe30m,
	Timeframe1h, Timeframe4h, Timeframe1d, Timeframe1w,
}

// TimeframeMillis returns the nominal bar width in milliseconds for a
// canonical timeframe, for callers (e.g. a kline ingester) that need
// to compute a time range from a bar count.
func TimeframeMillis(tf Timeframe) (int64, bool) {
	width, ok := timeframeMillis[tf]
	return width, ok
}

// DetectTimeframe infers the canonical timeframe from the median
// inter-bar delta of an ordered bar sequence. Returns ("", false) for
// fewer than two bars.
func DetectTimeframe(bars []PriceBar) (Timeframe, bool) {
	if len(bars) < 2 {
		return "", false
	}

	deltas := make([]int64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		deltas = append(deltas, bars[i].Timestamp-bars[i-1].Timestamp)
	}
	sort.Slice(deltas, func(i, j int) bool { return deltas[i] < deltas[j] })
	median := deltas[len(deltas)/2]

	best := orderedTimeframes[0]
	bestDiff := abs64(median - timeframeMillis[best])
	for _, tf := range orderedTimeframes[1:] {
		diff := abs64(median - timeframeMillis[tf])
		if diff < bestDiff {
			best, bestDiff = tf, diff
		}
	}
	return best, true
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// DataTier is an ordered quality classification of a source dataset,
// highest quality first.
type DataTier int

const (
	TierPremium DataTier = iota
	TierProfessional
	TierStandard
	TierBasic
)

var tierNames = map[DataTier]string{
	TierPremium:      "PREMIUM",
	TierProfessional: "PROFESSIONAL",
	TierStandard:     "STANDARD",
	TierBasic:        "BASIC",
}

// TierName returns the canonical uppercase name of the tier.
func (t DataTier) TierName() string { return tierNames[t] }

// IsProductionGrade reports whether the tier is trustworthy enough for
// decisions gating real capital (PREMIUM or PROFESSIONAL).
func (t DataTier) IsProductionGrade() bool {
	return t == TierPremium || t == TierProfessional
}

func (t DataTier) String() string { return t.TierName() }

// ParseDataTier parses a tier name case-sensitively, as persisted.
func ParseDataTier(name string) (DataTier, error) {
	for tier, n := range tierNames {
		if n == name {
			return tier, nil
		}
	}
	return 0, fmt.Errorf("backtest: unknown data tier %q", name)
}

// PriceBar is one immutable OHLCV observation. Bars form a strictly
// increasing sequence (by Timestamp) within a run; the invariants
// low <= open,close <= high and volume >= 0 are checked by
// ValidateSequence in the simulation engine's pre-flight, not
// re-checked per access here.
type PriceBar struct {
	Timestamp int64 // milliseconds since epoch
	Open      money.Money
	High      money.Money
	Low       money.Money
	Close     money.Money
	Volume    money.Money
	Tier      DataTier
}

// Validate checks the OHLC invariants for a single bar.
func (b PriceBar) Validate() error {
	if b.Low.GreaterThan(b.Open) || b.Low.GreaterThan(b.Close) {
		return fmt.Errorf("backtest: bar at %d violates low<=open,close", b.Timestamp)
	}
	if b.High.LessThan(b.Open) || b.High.LessThan(b.Close) {
		return fmt.Errorf("backtest: bar at %d violates high>=open,close", b.Timestamp)
	}
	if b.Volume.IsNegative() {
		return fmt.Errorf("backtest: bar at %d has negative volume", b.Timestamp)
	}
	return nil
}

// ValidateSequence checks that bars are OHLC-valid and in strictly
// increasing timestamp order. Used as the first pre-flight
// check of the simulation engine (spec §4.5 "Pre-flight").
func ValidateSequence(bars []PriceBar) error {
	var prev int64 = -1
	for i, b := range bars {
		if err := b.Validate(); err != nil {
			return err
		}
		if i > 0 && b.Timestamp <= prev {
			return fmt.Errorf("backtest: bars out of order at index %d (timestamp %d <= %d)", i, b.Timestamp, prev)
		}
		prev = b.Timestamp
	}
	return nil
}
