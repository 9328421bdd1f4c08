package sim

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rustyeddy/fxbroker/broker"
	"github.com/rustyeddy/fxbroker/journal"
	"github.com/rustyeddy/fxbroker/market"
	"github.com/rustyeddy/fxbroker/pricing"
	"github.com/rustyeddy/fxbroker/risk"
	"github.com/rustyeddy/fxbroker/store"
)

type testJournal struct {
	trades []journal.TradeRecord
	equity []journal.EquitySnapshot
	closed bool
}

func (j *testJournal) RecordTrade(rec journal.TradeRecord) error {
	j.trades = append(j.trades, rec)
	return nil
}

func (j *testJournal) RecordEquity(rec journal.EquitySnapshot) error {
	j.equity = append(j.equity, rec)
	return nil
}

func (j *testJournal) Close() error {
	j.closed = true
	return nil
}

type harness struct {
	engine    *Engine
	accounts  *store.MemoryAccounts
	positions *store.MemoryPositions
	journal   *testJournal
}

// midweek keeps the engine clock inside market hours so tests never hit
// the weekend gate by accident.
var midweek = time.Date(2024, 3, 6, 10, 0, 0, 0, time.UTC)

func newHarness(t *testing.T, balance float64) *harness {
	t.Helper()

	accounts := store.NewMemoryAccounts()
	accounts.Put(broker.Account{
		ID:         "acct-1",
		Currency:   "USD",
		Leverage:   30,
		Balance:    balance,
		Equity:     balance,
		FreeMargin: balance,
	})
	positions := store.NewMemoryPositions()

	cfg := pricing.DefaultConfig()
	cfg.DelayMin = 0
	cfg.DelayMax = 0
	pricer := pricing.NewEngine(cfg, pricing.WithClock(func() time.Time { return midweek }))

	j := &testJournal{}
	engine := NewEngine(
		accounts, positions, pricer, market.NewCalendar(nil), risk.DefaultPolicy(), j,
		WithClock(func() time.Time { return midweek }),
	)
	return &harness{engine: engine, accounts: accounts, positions: positions, journal: j}
}

func (h *harness) setTick(symbol string, bid, ask float64) {
	h.engine.Ticks().Set(market.Tick{Symbol: symbol, Bid: bid, Ask: ask, Time: midweek})
}

func (h *harness) open(t *testing.T, req broker.OrderRequest) broker.Position {
	t.Helper()
	pos, err := h.engine.OpenPosition(context.Background(), req)
	if err != nil {
		t.Fatalf("open position: %v", err)
	}
	return pos
}

func (h *harness) account(t *testing.T) broker.Account {
	t.Helper()
	acct, err := h.accounts.Get(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	return acct
}

func approxEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestOpenReservesExactMargin(t *testing.T) {
	h := newHarness(t, 100000)
	h.setTick("EUR_USD", 1.0850, 1.0852)

	// 1000 units: spread cost 0.6 pips, no size slippage.
	pos := h.open(t, broker.OrderRequest{AccountID: "acct-1", Symbol: "EUR_USD", Units: 1000})

	wantEntry := 1.0851 + 0.00006
	if !approxEqual(pos.EntryPrice, wantEntry, 1e-9) {
		t.Fatalf("entry price: got %.6f want %.6f", pos.EntryPrice, wantEntry)
	}
	wantMargin := 1000 * wantEntry / 30
	if !approxEqual(pos.Margin, wantMargin, 1e-9) {
		t.Fatalf("position margin: got %.6f want %.6f", pos.Margin, wantMargin)
	}

	acct := h.account(t)
	if !approxEqual(acct.Margin, wantMargin, 1e-9) {
		t.Fatalf("account margin: got %.6f want %.6f", acct.Margin, wantMargin)
	}
	if !approxEqual(acct.FreeMargin, 100000-wantMargin, 1e-9) {
		t.Fatalf("free margin: got %.6f", acct.FreeMargin)
	}
	if !approxEqual(acct.Balance, 100000, 1e-9) {
		t.Fatalf("open must not touch the balance: got %.6f", acct.Balance)
	}
}

func TestOpenRejectionLeavesNoState(t *testing.T) {
	h := newHarness(t, 1000)
	h.setTick("EUR_USD", 1.0850, 1.0852)

	_, err := h.engine.OpenPosition(context.Background(), broker.OrderRequest{
		AccountID: "acct-1", Symbol: "EUR_USD", Units: 100_000, Leverage: 10,
	})
	var verr *broker.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Violations) == 0 || verr.Violations[0].Code != "INSUFFICIENT_MARGIN" {
		t.Fatalf("unexpected violations: %v", verr.Violations)
	}

	open, _ := h.positions.ListOpen(context.Background(), broker.PositionFilter{})
	if len(open) != 0 {
		t.Fatalf("rejected order left %d positions behind", len(open))
	}
	acct := h.account(t)
	if acct.Margin != 0 || acct.Balance != 1000 {
		t.Fatalf("rejected order mutated account: %+v", acct)
	}
}

func TestOpenBlockedOnWeekend(t *testing.T) {
	h := newHarness(t, 100000)
	h.setTick("EUR_USD", 1.0850, 1.0852)
	saturday := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)
	WithClock(func() time.Time { return saturday })(h.engine)

	_, err := h.engine.OpenPosition(context.Background(), broker.OrderRequest{
		AccountID: "acct-1", Symbol: "EUR_USD", Units: 1000,
	})
	var verr *broker.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Violations[0].Code != "MARKET_CLOSED" {
		t.Fatalf("unexpected violation: %v", verr.Violations)
	}
}

func TestOpenRequotedWhenClientPriceIsStale(t *testing.T) {
	h := newHarness(t, 100000)
	h.setTick("EUR_USD", 1.0850, 1.0852)

	// Client saw a price 5 pips below the current mid.
	_, err := h.engine.OpenPosition(context.Background(), broker.OrderRequest{
		AccountID: "acct-1", Symbol: "EUR_USD", Units: 1000, Price: 1.0846,
	})
	var rerr *broker.RequoteError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected RequoteError, got %v", err)
	}
	if !approxEqual(rerr.MarketPrice, 1.0851, 1e-9) {
		t.Fatalf("requote should carry the fresh mid: got %.6f", rerr.MarketPrice)
	}

	open, _ := h.positions.ListOpen(context.Background(), broker.PositionFilter{})
	if len(open) != 0 {
		t.Fatalf("requoted order left %d positions behind", len(open))
	}
	if acct := h.account(t); acct.Margin != 0 {
		t.Fatalf("requoted order reserved margin: %.6f", acct.Margin)
	}
}

func TestOpenCancelledDuringDelayLeavesNoState(t *testing.T) {
	h := newHarness(t, 100000)
	h.setTick("EUR_USD", 1.0850, 1.0852)

	cfg := pricing.DefaultConfig()
	cfg.DelayMin = time.Second
	cfg.DelayMax = time.Second
	h.engine.pricer = pricing.NewEngine(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.engine.OpenPosition(ctx, broker.OrderRequest{
		AccountID: "acct-1", Symbol: "EUR_USD", Units: 1000,
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	open, _ := h.positions.ListOpen(context.Background(), broker.PositionFilter{})
	if len(open) != 0 {
		t.Fatalf("cancelled open left %d positions behind", len(open))
	}
}

func TestCloseRealizesPLAndReleasesMargin(t *testing.T) {
	h := newHarness(t, 100000)
	h.setTick("EUR_USD", 1.0850, 1.0852)
	pos := h.open(t, broker.OrderRequest{AccountID: "acct-1", Symbol: "EUR_USD", Units: 1000})

	// Price moves 50 pips in favor; longs close at the bid.
	h.setTick("EUR_USD", 1.0900, 1.0902)
	if err := h.engine.ClosePosition(context.Background(), pos.ID, broker.CloseManual); err != nil {
		t.Fatalf("close: %v", err)
	}

	closed, err := h.positions.Get(context.Background(), pos.ID)
	if err != nil {
		t.Fatalf("get position: %v", err)
	}
	wantRealized := 1000*(1.0900-pos.EntryPrice) - pos.Commission
	if !approxEqual(closed.RealizedPL, wantRealized, 1e-9) {
		t.Fatalf("realized: got %.6f want %.6f", closed.RealizedPL, wantRealized)
	}
	if closed.Status != broker.StatusClosed || closed.CloseReason != broker.CloseManual {
		t.Fatalf("unexpected close state: %+v", closed)
	}

	acct := h.account(t)
	if !approxEqual(acct.Balance, 100000+wantRealized, 1e-9) {
		t.Fatalf("balance: got %.6f want %.6f", acct.Balance, 100000+wantRealized)
	}
	if acct.Margin != 0 {
		t.Fatalf("margin not released: %.6f", acct.Margin)
	}
	if !approxEqual(acct.Equity, acct.Balance, 1e-9) {
		t.Fatalf("flat account equity should equal balance: %.6f vs %.6f", acct.Equity, acct.Balance)
	}

	if len(h.journal.trades) != 1 {
		t.Fatalf("expected 1 trade record, got %d", len(h.journal.trades))
	}
	rec := h.journal.trades[0]
	if rec.PositionID != pos.ID || rec.Reason != "manual" {
		t.Fatalf("unexpected trade record: %+v", rec)
	}
	if len(h.journal.equity) != 1 {
		t.Fatalf("expected 1 equity snapshot, got %d", len(h.journal.equity))
	}
}

func TestDoubleCloseMutatesBalanceOnce(t *testing.T) {
	h := newHarness(t, 100000)
	h.setTick("EUR_USD", 1.0850, 1.0852)
	pos := h.open(t, broker.OrderRequest{AccountID: "acct-1", Symbol: "EUR_USD", Units: 1000})

	if err := h.engine.ClosePosition(context.Background(), pos.ID, broker.CloseManual); err != nil {
		t.Fatalf("first close: %v", err)
	}
	balance := h.account(t).Balance

	err := h.engine.ClosePosition(context.Background(), pos.ID, broker.CloseManual)
	if !errors.Is(err, broker.ErrPositionClosed) {
		t.Fatalf("expected ErrPositionClosed, got %v", err)
	}
	if got := h.account(t).Balance; got != balance {
		t.Fatalf("second close mutated balance: %.6f -> %.6f", balance, got)
	}
	if len(h.journal.trades) != 1 {
		t.Fatalf("second close journaled: %d records", len(h.journal.trades))
	}
}

func TestCloseUnknownPosition(t *testing.T) {
	h := newHarness(t, 100000)
	err := h.engine.ClosePosition(context.Background(), "nope", broker.CloseManual)
	if !errors.Is(err, broker.ErrPositionNotFound) {
		t.Fatalf("expected ErrPositionNotFound, got %v", err)
	}
}

func TestNegativeBalanceProtectionFloorsAtZero(t *testing.T) {
	h := newHarness(t, 1000)
	h.setTick("EUR_USD", 1.0850, 1.0852)
	pos := h.open(t, broker.OrderRequest{AccountID: "acct-1", Symbol: "EUR_USD", Units: 20_000})

	// A 600-pip collapse loses far more than the account holds.
	h.setTick("EUR_USD", 1.0250, 1.0252)
	if err := h.engine.ClosePosition(context.Background(), pos.ID, broker.CloseManual); err != nil {
		t.Fatalf("close: %v", err)
	}

	acct := h.account(t)
	if acct.Balance != 0 {
		t.Fatalf("balance should floor at zero, got %.6f", acct.Balance)
	}
}

func TestRoundTripCostIsSpreadPlusCommission(t *testing.T) {
	h := newHarness(t, 100000)
	h.setTick("EUR_USD", 1.0850, 1.0852)
	pos := h.open(t, broker.OrderRequest{AccountID: "acct-1", Symbol: "EUR_USD", Units: 1000})

	// Close on the unchanged tick: the only loss is entry markup above the
	// bid plus commission.
	if err := h.engine.ClosePosition(context.Background(), pos.ID, broker.CloseManual); err != nil {
		t.Fatalf("close: %v", err)
	}

	acct := h.account(t)
	wantCost := 1000*(pos.EntryPrice-1.0850) + pos.Commission
	if !approxEqual(100000-acct.Balance, wantCost, 1e-9) {
		t.Fatalf("round trip cost: got %.6f want %.6f", 100000-acct.Balance, wantCost)
	}
}

func TestRequiredMarginPreview(t *testing.T) {
	h := newHarness(t, 100000)
	got := h.engine.RequiredMargin("EUR_USD", 10_000, 10, 1.0850)
	if !approxEqual(got, 1085, 1e-9) {
		t.Fatalf("preview: got %.2f want 1085.00", got)
	}
}
