// Package pricing simulates broker-side execution: spread widening under
// volatility, size-dependent slippage, requotes, commission and overnight
// swap. All calculations are pure functions of their inputs; the only
// stateful piece is the injected randomness used for the execution delay.
package pricing

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rustyeddy/fxbroker/market"
)

type Config struct {
	SpreadMultiplier     float64       // volatility sensitivity of the spread
	ReferenceUnits       float64       // order size that slips by exactly the base amount
	MaxSlippagePips      float64       // global slippage clamp
	RequoteThresholdPips float64       // drift beyond this forces a requote
	CommissionPerLot     float64       // account currency per standard lot
	DelayMin             time.Duration // simulated execution latency bounds
	DelayMax             time.Duration
}

func DefaultConfig() Config {
	return Config{
		SpreadMultiplier:     2.0,
		ReferenceUnits:       100_000,
		MaxSlippagePips:      5.0,
		RequoteThresholdPips: 3.0,
		CommissionPerLot:     7.0,
		DelayMin:             20 * time.Millisecond,
		DelayMax:             120 * time.Millisecond,
	}
}

// Engine computes execution prices for the venue.
type Engine struct {
	cfg Config

	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

type Option func(*Engine)

// WithRand replaces the delay randomness, letting tests force deterministic
// latency.
func WithRand(rng *rand.Rand) Option {
	return func(e *Engine) { e.rng = rng }
}

// WithClock replaces the execution timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(cfg Config, opts ...Option) *Engine {
	e := &Engine{
		cfg: cfg,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Spread returns the quoted spread in pips for the given volatility hint.
// Volatility 1 is a calm market; higher values widen the spread, clamped to
// the symbol's configured maximum.
func (e *Engine) Spread(symbol string, volatility float64) (float64, error) {
	meta, ok := market.Meta(symbol)
	if !ok {
		return 0, fmt.Errorf("spread: unknown symbol %q", symbol)
	}
	if volatility < 1 {
		volatility = 1
	}
	spread := meta.BaseSpreadPips * (1 + (volatility-1)*e.cfg.SpreadMultiplier)
	return math.Min(spread, meta.MaxSpreadPips), nil
}

// Slippage returns the adverse price movement in pips for an order of the
// given size. Larger orders slip more, on a log10 scale relative to the
// reference size, scaled by volatility and clamped to the global maximum.
func (e *Engine) Slippage(symbol string, units, volatility float64) (float64, error) {
	meta, ok := market.Meta(symbol)
	if !ok {
		return 0, fmt.Errorf("slippage: unknown symbol %q", symbol)
	}
	if volatility < 1 {
		volatility = 1
	}
	sizeFactor := 1 + math.Log10(math.Abs(units)/e.cfg.ReferenceUnits)
	if sizeFactor < 0 {
		sizeFactor = 0
	}
	slip := meta.BaseSlippagePips * sizeFactor * volatility
	return math.Min(slip, e.cfg.MaxSlippagePips), nil
}

// Commission returns the round-turn commission for an order size.
func (e *Engine) Commission(symbol string, units float64) (float64, error) {
	meta, ok := market.Meta(symbol)
	if !ok {
		return 0, fmt.Errorf("commission: unknown symbol %q", symbol)
	}
	lots := math.Abs(units) / meta.ContractSize
	return e.cfg.CommissionPerLot * lots, nil
}

// Swap returns the daily financing amount for holding the position across one
// rollover. Sign follows the configured per-direction rate; negative is a
// charge to the account.
func (e *Engine) Swap(symbol string, units float64) (float64, error) {
	meta, ok := market.Meta(symbol)
	if !ok {
		return 0, fmt.Errorf("swap: unknown symbol %q", symbol)
	}
	rate := meta.SwapLongRate
	if units < 0 {
		rate = meta.SwapShortRate
	}
	return math.Abs(units) * rate * meta.PipSize() / 365, nil
}

// Order is one execution request against a current market tick.
type Order struct {
	Symbol     string
	Units      float64 // signed
	Requested  float64 // price the caller saw
	Tick       market.Tick
	Volatility float64
}

// Fill describes one simulated execution. When Requoted is set no position
// may be opened; Executed then carries the fresh market price.
type Fill struct {
	Requested    float64
	Executed     float64
	SpreadPips   float64
	SlippagePips float64
	Commission   float64
	Requoted     bool
	Time         time.Time
}

// Execute prices an order against the market. It waits out a bounded
// simulated broker delay first; the wait is cancellable through ctx, and a
// cancelled call has no side effects.
func (e *Engine) Execute(ctx context.Context, o Order) (Fill, error) {
	meta, ok := market.Meta(o.Symbol)
	if !ok {
		return Fill{}, fmt.Errorf("execute: unknown symbol %q", o.Symbol)
	}
	if o.Units == 0 {
		return Fill{}, fmt.Errorf("execute: zero units")
	}

	if err := e.wait(ctx); err != nil {
		return Fill{}, err
	}

	pip := meta.PipSize()
	mid := o.Tick.Mid()

	if math.Abs(o.Requested-mid) > e.cfg.RequoteThresholdPips*pip {
		return Fill{
			Requested: o.Requested,
			Executed:  mid,
			Requoted:  true,
			Time:      e.now(),
		}, nil
	}

	spread, err := e.Spread(o.Symbol, o.Volatility)
	if err != nil {
		return Fill{}, err
	}
	slip, err := e.Slippage(o.Symbol, o.Units, o.Volatility)
	if err != nil {
		return Fill{}, err
	}
	commission, err := e.Commission(o.Symbol, o.Units)
	if err != nil {
		return Fill{}, err
	}

	// Half the spread plus slippage, always against the taker.
	adjust := (spread/2 + slip) * pip
	executed := mid + adjust
	if o.Units < 0 {
		executed = mid - adjust
	}

	return Fill{
		Requested:    o.Requested,
		Executed:     executed,
		SpreadPips:   spread,
		SlippagePips: slip,
		Commission:   commission,
		Time:         e.now(),
	}, nil
}

// wait blocks for a random delay between the configured bounds, or until ctx
// is done.
func (e *Engine) wait(ctx context.Context) error {
	d := e.cfg.DelayMin
	if span := e.cfg.DelayMax - e.cfg.DelayMin; span > 0 {
		e.mu.Lock()
		d += time.Duration(e.rng.Int63n(int64(span)))
		e.mu.Unlock()
	}
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
