// journal/journal.go
package journal

import "time"

// TradeRecord is written once per position close.
type TradeRecord struct {
	PositionID string
	AccountID  string
	Symbol     string
	Units      float64 // signed: >0 long, <0 short
	EntryPrice float64
	ExitPrice  float64
	OpenTime   time.Time
	CloseTime  time.Time
	Commission float64
	Swap       float64
	RealizedPL float64
	Reason     string
}

// EquitySnapshot is written whenever account state settles after a close.
type EquitySnapshot struct {
	Time        time.Time
	AccountID   string
	Balance     float64
	Equity      float64
	Margin      float64
	FreeMargin  float64
	MarginLevel float64
}

type Journal interface {
	RecordTrade(TradeRecord) error
	RecordEquity(EquitySnapshot) error
	Close() error
}

// Nop discards everything; useful when no journaling is configured.
type Nop struct{}

func (Nop) RecordTrade(TradeRecord) error     { return nil }
func (Nop) RecordEquity(EquitySnapshot) error { return nil }
func (Nop) Close() error                      { return nil }
