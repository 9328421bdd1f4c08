package sim

import (
	"context"
	"errors"
	"log/slog"
	"math"

	"github.com/rustyeddy/fxbroker/broker"
	"github.com/rustyeddy/fxbroker/market"
)

// ApplyTicks runs one price sweep. For every open position whose symbol has a
// fresh tick it recomputes the mark and unrealized P/L, then checks stop-loss
// and take-profit before the margin-call condition. A malformed tick or an
// unknown symbol is dropped with a warning and never aborts the rest of the
// batch.
func (e *Engine) ApplyTicks(ctx context.Context, ticks []market.Tick) []broker.PositionUpdate {
	var sweeps []sweepResult
	touched := make(map[string]struct{})

	for _, tick := range ticks {
		if !saneTick(tick) {
			slog.Warn("dropping malformed tick", "symbol", tick.Symbol, "bid", tick.Bid, "ask", tick.Ask)
			continue
		}
		if _, ok := market.Meta(tick.Symbol); !ok {
			slog.Warn("dropping tick for unknown symbol", "symbol", tick.Symbol)
			continue
		}
		e.ticks.Set(tick)

		open, err := e.positions.ListOpen(ctx, broker.PositionFilter{Symbol: tick.Symbol})
		if err != nil {
			slog.Warn("list positions failed", "symbol", tick.Symbol, "error", err)
			continue
		}
		for _, pos := range open {
			res, ok := e.sweepPosition(ctx, pos, tick)
			if !ok {
				continue
			}
			sweeps = append(sweeps, res)
			touched[pos.AccountID] = struct{}{}
		}
	}

	// Margin-call pass: one forced close per account per sweep, closing the
	// most adverse position. Deliberately not a close-until-restored loop;
	// the next sweep picks up the next position if the level is still at or
	// below stop-out.
	levels := make(map[string]float64, len(touched))
	for acctID := range touched {
		level, err := e.refreshAccount(ctx, acctID)
		if err != nil {
			slog.Warn("account refresh failed", "account", acctID, "error", err)
			continue
		}
		if level > 0 && level <= e.policy.StopOutLevelPct {
			if closedID := e.closeWorst(ctx, acctID); closedID != "" {
				for i := range sweeps {
					if sweeps[i].update.ID == closedID {
						sweeps[i].update.Closed = true
						sweeps[i].update.CloseReason = broker.CloseMarginCall
					}
				}
				if level, err = e.refreshAccount(ctx, acctID); err != nil {
					slog.Warn("account refresh failed", "account", acctID, "error", err)
				}
			}
		}
		levels[acctID] = level
	}

	updates := make([]broker.PositionUpdate, 0, len(sweeps))
	for _, s := range sweeps {
		s.update.MarginLevel = levels[s.accountID]
		updates = append(updates, s.update)
	}
	return updates
}

type sweepResult struct {
	accountID string
	update    broker.PositionUpdate
}

// sweepPosition marks one position to the tick and closes it when a stop or
// target is breached. Returns false when the position was closed by someone
// else mid-sweep.
func (e *Engine) sweepPosition(ctx context.Context, pos broker.Position, tick market.Tick) (sweepResult, bool) {
	mark := tick.Bid
	if pos.Units < 0 {
		mark = tick.Ask
	}

	var marked broker.Position
	err := e.positions.Update(ctx, pos.ID, func(p *broker.Position) error {
		if p.Status != broker.StatusOpen {
			return broker.ErrPositionClosed
		}
		p.CurrentPrice = mark
		p.UnrealizedPL = p.UnrealizedAt(mark)
		marked = *p
		return nil
	})
	if err != nil {
		if !errors.Is(err, broker.ErrPositionClosed) {
			slog.Warn("position mark failed", "position", pos.ID, "error", err)
		}
		return sweepResult{}, false
	}

	res := sweepResult{
		accountID: marked.AccountID,
		update: broker.PositionUpdate{
			ID:           marked.ID,
			CurrentPrice: mark,
			PL:           marked.UnrealizedPL,
		},
	}

	var reason broker.CloseReason
	switch {
	case hitStopLoss(marked, mark):
		reason = broker.CloseStopLoss
	case hitTakeProfit(marked, mark):
		reason = broker.CloseTakeProfit
	}
	if reason != "" {
		if err := e.ClosePosition(ctx, marked.ID, reason); err != nil {
			if !errors.Is(err, broker.ErrPositionClosed) {
				slog.Warn("trigger close failed", "position", marked.ID, "error", err)
			}
			return res, true
		}
		if final, err := e.positions.Get(ctx, marked.ID); err == nil {
			res.update.PL = final.RealizedPL
			res.update.CurrentPrice = final.CurrentPrice
		}
		res.update.Closed = true
		res.update.CloseReason = reason
	}
	return res, true
}

// closeWorst force-closes the account's most adverse open position and
// returns its id, or "" when there was nothing to close.
func (e *Engine) closeWorst(ctx context.Context, accountID string) string {
	open, err := e.positions.ListOpen(ctx, broker.PositionFilter{AccountID: accountID})
	if err != nil || len(open) == 0 {
		return ""
	}
	worst := open[0]
	for _, p := range open[1:] {
		if p.UnrealizedPL < worst.UnrealizedPL {
			worst = p
		}
	}
	if err := e.ClosePosition(ctx, worst.ID, broker.CloseMarginCall); err != nil {
		if !errors.Is(err, broker.ErrPositionClosed) {
			slog.Warn("margin call close failed", "position", worst.ID, "error", err)
		}
		return ""
	}
	return worst.ID
}

func hitStopLoss(p broker.Position, mark float64) bool {
	if p.StopLoss == nil {
		return false
	}
	if p.Units > 0 {
		return mark <= *p.StopLoss
	}
	return mark >= *p.StopLoss
}

func hitTakeProfit(p broker.Position, mark float64) bool {
	if p.TakeProfit == nil {
		return false
	}
	if p.Units > 0 {
		return mark >= *p.TakeProfit
	}
	return mark <= *p.TakeProfit
}

func saneTick(t market.Tick) bool {
	if t.Bid <= 0 || t.Ask <= 0 || t.Ask < t.Bid {
		return false
	}
	if math.IsNaN(t.Bid) || math.IsInf(t.Bid, 0) || math.IsNaN(t.Ask) || math.IsInf(t.Ask, 0) {
		return false
	}
	return true
}
