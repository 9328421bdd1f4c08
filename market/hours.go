package market

import "time"

// Margin multipliers applied by the calendar. The venue doubles margin
// requirements while the market is closed and raises them ahead of a flagged
// high-impact news event.
const (
	MultiplierNormal = 1.0
	MultiplierNews   = 1.5
	MultiplierClosed = 2.0
)

// NewsSource reports whether a high-impact event is expected soon for a
// symbol. Implemented externally so tests can force deterministic outcomes.
type NewsSource interface {
	HighImpactSoon(symbol string, at time.Time) bool
}

// Calendar answers market-hours questions for the FX session week:
// the market closes Friday 21:00 UTC and reopens Sunday 21:00 UTC.
type Calendar struct {
	news NewsSource
}

func NewCalendar(news NewsSource) *Calendar {
	return &Calendar{news: news}
}

// IsMarketOpen reports whether trading is allowed at t. FX trades around the
// clock outside the weekend closure window; the boundary is symmetric in UTC.
func (c *Calendar) IsMarketOpen(t time.Time) bool {
	u := t.UTC()
	switch u.Weekday() {
	case time.Saturday:
		return false
	case time.Friday:
		return u.Hour() < 21
	case time.Sunday:
		return u.Hour() >= 21
	default:
		return true
	}
}

// MarginMultiplier returns the margin scaling in effect for symbol at t.
func (c *Calendar) MarginMultiplier(symbol string, t time.Time) float64 {
	if !c.IsMarketOpen(t) {
		return MultiplierClosed
	}
	if c.news != nil && c.news.HighImpactSoon(symbol, t) {
		return MultiplierNews
	}
	return MultiplierNormal
}
