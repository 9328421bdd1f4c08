// Package sim is the venue core: it validates and opens trades, sweeps price
// ticks over open positions, force-closes on stop-loss / take-profit /
// margin-call, and settles overnight swap at rollover.
package sim

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rustyeddy/fxbroker/broker"
	"github.com/rustyeddy/fxbroker/internal/id"
	"github.com/rustyeddy/fxbroker/journal"
	"github.com/rustyeddy/fxbroker/market"
	"github.com/rustyeddy/fxbroker/pricing"
	"github.com/rustyeddy/fxbroker/risk"
)

// VolatilitySource supplies the per-symbol volatility hint fed to the pricing
// engine. 1 is a calm market.
type VolatilitySource func(symbol string) float64

type Engine struct {
	accounts  broker.AccountStore
	positions broker.PositionStore
	pricer    *pricing.Engine
	calendar  *market.Calendar
	policy    risk.Policy
	journal   journal.Journal
	ticks     *market.TickStore

	volatility VolatilitySource
	now        func() time.Time
}

type Option func(*Engine)

// WithVolatility sets the volatility hint source.
func WithVolatility(v VolatilitySource) Option {
	return func(e *Engine) { e.volatility = v }
}

// WithClock replaces the engine clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(
	accounts broker.AccountStore,
	positions broker.PositionStore,
	pricer *pricing.Engine,
	calendar *market.Calendar,
	policy risk.Policy,
	j journal.Journal,
	opts ...Option,
) *Engine {
	e := &Engine{
		accounts:   accounts,
		positions:  positions,
		pricer:     pricer,
		calendar:   calendar,
		policy:     policy,
		journal:    j,
		ticks:      market.NewTickStore(),
		volatility: func(string) float64 { return 1 },
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Ticks exposes the engine's latest-tick store.
func (e *Engine) Ticks() *market.TickStore { return e.ticks }

// RequiredMargin is the read-only margin preview for the UI layer. It applies
// the calendar multiplier currently in effect.
func (e *Engine) RequiredMargin(symbol string, units, leverage, price float64) float64 {
	mult := e.calendar.MarginMultiplier(symbol, e.now())
	return risk.RequiredMargin(units, price, leverage, mult)
}

// OpenPosition validates, prices and opens a trade. Validation and requote
// failures leave no state behind; so does cancellation of ctx while the
// simulated execution delay is pending. Margin is reserved only after the
// executed price is known, under the account's lock.
func (e *Engine) OpenPosition(ctx context.Context, req broker.OrderRequest) (broker.Position, error) {
	if _, ok := market.Meta(req.Symbol); !ok {
		return broker.Position{}, fmt.Errorf("open: unknown symbol %q", req.Symbol)
	}
	tick, err := e.ticks.Get(req.Symbol)
	if err != nil {
		return broker.Position{}, fmt.Errorf("open %s: %w", req.Symbol, err)
	}

	now := e.now()
	if !e.calendar.IsMarketOpen(now) {
		return broker.Position{}, &broker.ValidationError{Violations: []broker.Violation{
			{Code: "MARKET_CLOSED", Msg: "market is closed for the weekend"},
		}}
	}
	mult := e.calendar.MarginMultiplier(req.Symbol, now)

	acct, err := e.accounts.Get(ctx, req.AccountID)
	if err != nil {
		return broker.Position{}, err
	}
	open, err := e.positions.ListOpen(ctx, broker.PositionFilter{AccountID: req.AccountID})
	if err != nil {
		return broker.Position{}, fmt.Errorf("open: list positions: %w", err)
	}

	// Validation always prices at the current market; the requested price
	// only matters for the requote check at fill time.
	requested := req.Price
	if requested <= 0 {
		requested = tick.Mid()
	}
	decision := risk.Validate(e.policy, acct, req, tick.Mid(), mult, open)
	if !decision.Allowed {
		return broker.Position{}, &broker.ValidationError{Violations: decision.Violations}
	}
	for _, w := range decision.Warnings {
		slog.Warn("risk warning on open", "account", req.AccountID, "code", w.Code, "msg", w.Msg)
	}

	// The simulated broker delay runs here, before any lock is taken, so a
	// slow fill never blocks tick processing and a cancelled caller leaves
	// nothing behind.
	fill, err := e.pricer.Execute(ctx, pricing.Order{
		Symbol:     req.Symbol,
		Units:      req.Units,
		Requested:  requested,
		Tick:       tick,
		Volatility: e.volatility(req.Symbol),
	})
	if err != nil {
		return broker.Position{}, err
	}
	if fill.Requoted {
		return broker.Position{}, &broker.RequoteError{
			Symbol:      req.Symbol,
			Requested:   requested,
			MarketPrice: fill.Executed,
		}
	}

	leverage := req.Leverage
	if leverage <= 0 {
		leverage = acct.Leverage
	}
	required := risk.RequiredMargin(req.Units, fill.Executed, leverage, mult)

	pos := broker.Position{
		ID:           id.New(),
		AccountID:    req.AccountID,
		Symbol:       req.Symbol,
		Units:        req.Units,
		Leverage:     leverage,
		EntryPrice:   fill.Executed,
		CurrentPrice: fill.Executed,
		StopLoss:     req.StopLoss,
		TakeProfit:   req.TakeProfit,
		Margin:       required,
		Commission:   fill.Commission,
		Status:       broker.StatusOpen,
		OpenTime:     fill.Time,
	}

	// Margin reserve and position insert commit together or not at all:
	// Apply only persists the account mutation when fn returns nil, and the
	// insert happens inside fn.
	err = e.accounts.Apply(ctx, req.AccountID, func(a *broker.Account) error {
		if required > a.FreeMargin {
			return &broker.ValidationError{Violations: []broker.Violation{
				{Code: "INSUFFICIENT_MARGIN", Msg: fmt.Sprintf(
					"required margin %.2f exceeds free margin %.2f", required, a.FreeMargin)},
			}}
		}
		if err := e.positions.Insert(ctx, pos); err != nil {
			return fmt.Errorf("insert position: %w", err)
		}
		a.Margin += required
		a.FreeMargin -= required
		return nil
	})
	if err != nil {
		return broker.Position{}, err
	}
	return pos, nil
}

// ClosePosition transitions a position to closed exactly once and settles the
// account. A concurrent close of the same position loses the transition and
// gets ErrPositionClosed; balance is mutated exactly once.
func (e *Engine) ClosePosition(ctx context.Context, positionID string, reason broker.CloseReason) error {
	var closed broker.Position
	err := e.positions.Update(ctx, positionID, func(p *broker.Position) error {
		if p.Status != broker.StatusOpen {
			return broker.ErrPositionClosed
		}
		tick, err := e.ticks.Get(p.Symbol)
		if err != nil {
			return fmt.Errorf("close %s: %w", p.Symbol, err)
		}
		closePrice := tick.Bid
		if p.Units < 0 {
			closePrice = tick.Ask
		}
		p.Status = broker.StatusClosed
		p.CurrentPrice = closePrice
		p.CloseTime = e.now()
		p.CloseReason = reason
		// Swap was already settled into the balance at each rollover, so the
		// realized figure folds in only price P/L net of commission.
		p.RealizedPL = p.UnrealizedAt(closePrice) - p.Commission
		p.UnrealizedPL = 0
		closed = *p
		return nil
	})
	if err != nil {
		return err
	}

	var snap broker.Account
	err = e.accounts.Apply(ctx, closed.AccountID, func(a *broker.Account) error {
		a.Margin -= closed.Margin
		if a.Margin < 0 {
			a.Margin = 0
		}
		a.Balance += closed.RealizedPL
		if e.policy.NegativeBalanceProtection && a.Balance < 0 {
			a.Balance = 0
		}
		floating, err := e.floatingPL(ctx, a.ID)
		if err != nil {
			return err
		}
		a.Equity = a.Balance + floating
		a.FreeMargin = a.Equity - a.Margin
		snap = *a
		return nil
	})
	if err != nil {
		return fmt.Errorf("close settle: %w", err)
	}

	if err := e.journal.RecordTrade(journal.TradeRecord{
		PositionID: closed.ID,
		AccountID:  closed.AccountID,
		Symbol:     closed.Symbol,
		Units:      closed.Units,
		EntryPrice: closed.EntryPrice,
		ExitPrice:  closed.CurrentPrice,
		OpenTime:   closed.OpenTime,
		CloseTime:  closed.CloseTime,
		Commission: closed.Commission,
		Swap:       closed.Swap,
		RealizedPL: closed.RealizedPL,
		Reason:     string(closed.CloseReason),
	}); err != nil {
		slog.Warn("journal trade record failed", "position", closed.ID, "error", err)
	}
	if err := e.journal.RecordEquity(journal.EquitySnapshot{
		Time:        closed.CloseTime,
		AccountID:   snap.ID,
		Balance:     snap.Balance,
		Equity:      snap.Equity,
		Margin:      snap.Margin,
		FreeMargin:  snap.FreeMargin,
		MarginLevel: snap.MarginLevel(),
	}); err != nil {
		slog.Warn("journal equity record failed", "account", snap.ID, "error", err)
	}
	return nil
}

// floatingPL sums unrealized P/L over an account's open positions.
func (e *Engine) floatingPL(ctx context.Context, accountID string) (float64, error) {
	open, err := e.positions.ListOpen(ctx, broker.PositionFilter{AccountID: accountID})
	if err != nil {
		return 0, err
	}
	var floating float64
	for _, p := range open {
		floating += p.UnrealizedPL
	}
	return floating, nil
}

// refreshAccount recomputes equity and free margin from current marks and
// returns the resulting margin level.
func (e *Engine) refreshAccount(ctx context.Context, accountID string) (float64, error) {
	var level float64
	err := e.accounts.Apply(ctx, accountID, func(a *broker.Account) error {
		floating, err := e.floatingPL(ctx, a.ID)
		if err != nil {
			return err
		}
		a.Equity = a.Balance + floating
		a.FreeMargin = a.Equity - a.Margin
		level = a.MarginLevel()
		return nil
	})
	return level, err
}
