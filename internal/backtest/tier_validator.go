package backtest

import "fmt"

// TierValidationResult is returned by ValidateTier on success.
type TierValidationResult struct {
	Tier         DataTier
	QualityScore float64 // [0,1]
}

// TierValidationError reports why a run's dataset failed tier
// validation: mixed tiers, excessive gaps, or a bar count that
// deviates from ExpectedBars beyond GapTolerance.
type TierValidationError struct {
	Reason string
}

func (e *TierValidationError) Error() string { return "backtest: tier validation failed: " + e.Reason }

// GapTolerance is the fraction of ExpectedBars a run's actual bar
// count may fall short of before validation fails outright (as
// opposed to merely depressing QualityScore).
const GapTolerance = 0.20

// ValidateTier checks that every bar in bars carries the same
// DataTier and that the bar count is consistent with expectedBars,
// returning a quality score in [0,1] on success.
//
//	qualityScore = (actualBars / expectedBars) * (1 - gapFraction)
//
// where gapFraction = max(0, (expectedBars-actualBars)/expectedBars).
func ValidateTier(bars []PriceBar, expectedBars int) (TierValidationResult, error) {
	if len(bars) == 0 {
		return TierValidationResult{}, &TierValidationError{Reason: "no bars supplied"}
	}

	tier := bars[0].Tier
	for _, b := range bars[1:] {
		if b.Tier != tier {
			return TierValidationResult{}, &TierValidationError{
				Reason: fmt.Sprintf("mixed data tiers: found both %s and %s", tier.TierName(), b.Tier.TierName()),
			}
		}
	}

	actual := len(bars)
	if expectedBars <= 0 {
		expectedBars = actual
	}

	gapFraction := 0.0
	if expectedBars > actual {
		gapFraction = float64(expectedBars-actual) / float64(expectedBars)
	}
	if gapFraction > GapTolerance {
		return TierValidationResult{}, &TierValidationError{
			Reason: fmt.Sprintf("bar count %d deviates from expected %d beyond tolerance", actual, expectedBars),
		}
	}

	coverage := float64(actual) / float64(expectedBars)
	quality := coverage * (1 - gapFraction)
	if quality > 1 {
		quality = 1
	}
	if quality < 0 {
		quality = 0
	}

	return TierValidationResult{Tier: tier, QualityScore: quality}, nil
}
