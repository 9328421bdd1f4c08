package market

import (
	"testing"
	"time"
)

type stubNews struct{ hot bool }

func (s stubNews) HighImpactSoon(string, time.Time) bool { return s.hot }

func TestIsMarketOpenWeekendBoundaries(t *testing.T) {
	c := NewCalendar(nil)

	cases := []struct {
		name string
		at   time.Time
		open bool
	}{
		{"wednesday midday", time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC), true},
		{"friday before close", time.Date(2024, 3, 8, 20, 59, 59, 0, time.UTC), true},
		{"friday at close", time.Date(2024, 3, 8, 21, 0, 0, 0, time.UTC), false},
		{"saturday", time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC), false},
		{"sunday before open", time.Date(2024, 3, 10, 20, 59, 59, 0, time.UTC), false},
		{"sunday at open", time.Date(2024, 3, 10, 21, 0, 0, 0, time.UTC), true},
	}
	for _, c2 := range cases {
		if got := c.IsMarketOpen(c2.at); got != c2.open {
			t.Fatalf("%s: IsMarketOpen = %v, want %v", c2.name, got, c2.open)
		}
	}
}

func TestIsMarketOpenNormalizesToUTC(t *testing.T) {
	c := NewCalendar(nil)

	// Friday 22:00 in UTC+1 is 21:00 UTC: closed.
	loc := time.FixedZone("CET", 3600)
	at := time.Date(2024, 3, 8, 22, 0, 0, 0, loc)
	if c.IsMarketOpen(at) {
		t.Fatalf("expected closed at %v", at)
	}
}

func TestMarginMultiplier(t *testing.T) {
	weekday := time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC)
	weekend := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)

	calm := NewCalendar(stubNews{hot: false})
	if got := calm.MarginMultiplier("EUR_USD", weekday); got != MultiplierNormal {
		t.Fatalf("weekday multiplier: got %v want %v", got, MultiplierNormal)
	}
	if got := calm.MarginMultiplier("EUR_USD", weekend); got != MultiplierClosed {
		t.Fatalf("weekend multiplier: got %v want %v", got, MultiplierClosed)
	}

	hot := NewCalendar(stubNews{hot: true})
	if got := hot.MarginMultiplier("EUR_USD", weekday); got != MultiplierNews {
		t.Fatalf("news multiplier: got %v want %v", got, MultiplierNews)
	}
	// Closure dominates the news flag.
	if got := hot.MarginMultiplier("EUR_USD", weekend); got != MultiplierClosed {
		t.Fatalf("weekend with news: got %v want %v", got, MultiplierClosed)
	}
}
