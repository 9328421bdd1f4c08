package risk

import (
	"fmt"

	"github.com/rustyeddy/fxbroker/broker"
)

// Decision is the full outcome of pre-trade validation. Violations block the
// trade; Warnings do not. RequiredMargin and ProjectedExposure are filled in
// regardless of the outcome so callers can display them on rejection too.
type Decision struct {
	Allowed    bool
	Violations []broker.Violation
	Warnings   []broker.Violation

	RequiredMargin    float64
	ProjectedExposure float64
}

func (d *Decision) add(code, msg string) {
	d.Violations = append(d.Violations, broker.Violation{Code: code, Msg: msg})
	d.Allowed = false
}

func (d *Decision) warn(code, msg string) {
	d.Warnings = append(d.Warnings, broker.Violation{Code: code, Msg: msg})
}

// Validate runs every check and accumulates all applicable violations, so a
// single request surfaces everything wrong with it at once.
//
// price is the current market price for the order's symbol, marginMultiplier
// the calendar scaling in effect, and open the account's open positions.
func Validate(
	p Policy,
	acct broker.Account,
	order broker.OrderRequest,
	price float64,
	marginMultiplier float64,
	open []broker.Position,
) Decision {
	d := Decision{Allowed: true}

	leverage := order.Leverage
	if leverage <= 0 {
		leverage = acct.Leverage
	}

	d.RequiredMargin = RequiredMargin(order.Units, price, leverage, marginMultiplier)
	if d.RequiredMargin > acct.FreeMargin {
		d.add("INSUFFICIENT_MARGIN",
			fmt.Sprintf("required margin %.2f exceeds free margin %.2f",
				d.RequiredMargin, acct.FreeMargin))
	}

	if len(open) >= p.MaxOpenPositions {
		d.add("POSITION_LIMIT",
			fmt.Sprintf("open positions %d >= max %d", len(open), p.MaxOpenPositions))
	}

	var exposure float64
	for _, pos := range open {
		if pos.Symbol == order.Symbol {
			exposure += abs(pos.Units) * pos.CurrentPrice
		}
	}
	d.ProjectedExposure = exposure + abs(order.Units)*price
	if d.ProjectedExposure > p.MaxSymbolExposure {
		d.add("EXPOSURE_LIMIT",
			fmt.Sprintf("%s exposure %.2f exceeds ceiling %.2f",
				order.Symbol, d.ProjectedExposure, p.MaxSymbolExposure))
	}

	if projected := projectedMarginLevel(acct, d.RequiredMargin); projected > 0 && projected < p.MarginCallLevelPct {
		d.warn("MARGIN_LEVEL_LOW",
			fmt.Sprintf("projected margin level %.1f%% below margin call level %.1f%%",
				projected, p.MarginCallLevelPct))
	}

	return d
}

func projectedMarginLevel(acct broker.Account, required float64) float64 {
	total := acct.Margin + required
	if total <= 0 {
		return 0
	}
	return acct.Equity / total * 100
}
