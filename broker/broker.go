package broker

import (
	"context"
	"time"
)

// Account is the margin account snapshot every component works against.
// Invariants: Equity = Balance + sum of open-position unrealized P/L, and
// FreeMargin = Equity - Margin. Only the sim engine mutates these fields,
// always through AccountStore.Apply.
type Account struct {
	ID       string
	Currency string
	Leverage float64

	Balance    float64 // realized equity
	Equity     float64 // balance + floating P/L
	Margin     float64 // committed to open positions
	FreeMargin float64 // equity - margin
}

// MarginLevel is the solvency ratio equity/margin*100; zero when no margin
// is committed.
func (a Account) MarginLevel() float64 {
	if a.Margin <= 0 {
		return 0
	}
	return a.Equity / a.Margin * 100
}

type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

type CloseReason string

const (
	CloseManual     CloseReason = "manual"
	CloseStopLoss   CloseReason = "stop_loss"
	CloseTakeProfit CloseReason = "take_profit"
	CloseMarginCall CloseReason = "margin_call"
)

// Position is a single leveraged trade. Units are signed: positive long,
// negative short. The open -> closed transition happens exactly once.
type Position struct {
	ID        string
	AccountID string
	Symbol    string
	Units     float64
	Leverage  float64

	EntryPrice   float64
	CurrentPrice float64
	StopLoss     *float64
	TakeProfit   *float64

	Margin       float64 // reserved at open, released in full at close
	Commission   float64
	Swap         float64 // accumulated financing charges
	UnrealizedPL float64
	RealizedPL   float64

	Status      Status
	OpenTime    time.Time
	CloseTime   time.Time
	CloseReason CloseReason

	// SwapAppliedAt is the last rollover boundary this position was charged
	// for; the settlement job uses it to stay idempotent per boundary.
	SwapAppliedAt time.Time
}

// UnrealizedAt returns the floating P/L at the given mark price. Signed units
// make the long and short cases the same expression.
func (p Position) UnrealizedAt(mark float64) float64 {
	return p.Units * (mark - p.EntryPrice)
}

// OrderRequest is a proposed trade as the caller states it.
type OrderRequest struct {
	AccountID  string
	Symbol     string
	Units      float64 // signed: >0 buy, <0 sell
	Price      float64 // price the caller saw; 0 means at market
	Leverage   float64 // 0 means use the account default
	StopLoss   *float64
	TakeProfit *float64
}

// PositionUpdate describes the outcome of one price sweep for one position.
type PositionUpdate struct {
	ID           string
	CurrentPrice float64
	PL           float64
	MarginLevel  float64
	Closed       bool
	CloseReason  CloseReason
}

// AccountStore reads account snapshots and applies atomic mutations.
// Apply must run fn under account-level exclusive access and commit the
// mutation only when fn returns nil.
type AccountStore interface {
	Get(ctx context.Context, id string) (Account, error)
	Apply(ctx context.Context, id string, fn func(*Account) error) error
}

// PositionFilter narrows ListOpen; zero values match everything.
type PositionFilter struct {
	AccountID string
	Symbol    string
}

// PositionStore persists positions. Update runs fn on the stored position
// under that position's lock and commits only when fn returns nil, which is
// what makes the open -> closed transition single-winner.
type PositionStore interface {
	Insert(ctx context.Context, p Position) error
	Get(ctx context.Context, id string) (Position, error)
	Update(ctx context.Context, id string, fn func(*Position) error) error
	ListOpen(ctx context.Context, f PositionFilter) ([]Position, error)
}
