package risk

// Policy holds the venue's risk limits.
type Policy struct {
	// Exposure limits
	MaxOpenPositions  int     // per account
	MaxSymbolExposure float64 // sum of units*price per account per symbol

	// Margin thresholds, as margin-level percentages
	MarginCallLevelPct float64 // below this a new trade draws a warning
	StopOutLevelPct    float64 // at or below this the venue force-closes

	// When set, a losing close can never take the balance below zero.
	NegativeBalanceProtection bool
}

func DefaultPolicy() Policy {
	return Policy{
		MaxOpenPositions:          200,
		MaxSymbolExposure:         5_000_000,
		MarginCallLevelPct:        100,
		StopOutLevelPct:           50,
		NegativeBalanceProtection: true,
	}
}

// RequiredMargin is the margin a trade of the given size commits:
// units * price / leverage, scaled by the calendar's margin multiplier.
func RequiredMargin(units, price, leverage, multiplier float64) float64 {
	if leverage <= 0 {
		return 0
	}
	if multiplier <= 0 {
		multiplier = 1
	}
	return abs(units) * price / leverage * multiplier
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
