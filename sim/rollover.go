package sim

import (
	"context"
	"log/slog"
	"time"

	"github.com/rustyeddy/fxbroker/broker"
)

// SettleSwaps applies the overnight financing charge to every position still
// open at the given rollover boundary. It is idempotent per boundary: a
// position already stamped with this boundary is skipped, so a retried job
// never charges twice. Returns the number of positions charged.
func (e *Engine) SettleSwaps(ctx context.Context, boundary time.Time) (int, error) {
	open, err := e.positions.ListOpen(ctx, broker.PositionFilter{})
	if err != nil {
		return 0, err
	}

	charged := 0
	for _, pos := range open {
		amount, err := e.pricer.Swap(pos.Symbol, pos.Units)
		if err != nil {
			slog.Warn("swap computation failed", "position", pos.ID, "error", err)
			continue
		}

		applied := false
		err = e.positions.Update(ctx, pos.ID, func(p *broker.Position) error {
			if p.Status != broker.StatusOpen {
				return broker.ErrPositionClosed
			}
			if !p.SwapAppliedAt.Before(boundary) {
				return nil // already charged for this boundary
			}
			p.Swap += amount
			p.SwapAppliedAt = boundary
			applied = true
			return nil
		})
		if err != nil || !applied {
			continue
		}

		err = e.accounts.Apply(ctx, pos.AccountID, func(a *broker.Account) error {
			a.Balance += amount
			a.Equity += amount
			a.FreeMargin = a.Equity - a.Margin
			return nil
		})
		if err != nil {
			slog.Warn("swap settle failed", "position", pos.ID, "account", pos.AccountID, "error", err)
			continue
		}
		charged++
	}
	return charged, nil
}

// Rollover fires SettleSwaps once per day at the configured UTC time.
type Rollover struct {
	engine *Engine
	hour   int
	minute int
	now    func() time.Time
}

func NewRollover(engine *Engine, hour, minute int) *Rollover {
	return &Rollover{engine: engine, hour: hour, minute: minute, now: time.Now}
}

// Next returns the first rollover boundary strictly after t.
func (r *Rollover) Next(t time.Time) time.Time {
	u := t.UTC()
	next := time.Date(u.Year(), u.Month(), u.Day(), r.hour, r.minute, 0, 0, time.UTC)
	if !next.After(u) {
		next = next.Add(24 * time.Hour)
	}
	return next
}

// Run blocks, settling swaps at every boundary until ctx is cancelled.
func (r *Rollover) Run(ctx context.Context) error {
	for {
		boundary := r.Next(r.now())
		timer := time.NewTimer(boundary.Sub(r.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		n, err := r.engine.SettleSwaps(ctx, boundary)
		if err != nil {
			slog.Warn("swap settlement run failed", "boundary", boundary, "error", err)
			continue
		}
		slog.Info("swap settlement complete", "boundary", boundary, "positions", n)
	}
}
