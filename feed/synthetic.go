package feed

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rustyeddy/fxbroker/market"
)

type symbolState struct {
	meta market.InstrumentMeta
	mid  float64
}

// Synthetic generates random-walk bid/ask ticks for a set of instruments.
// A fixed seed makes the stream fully deterministic.
type Synthetic struct {
	rng      *rand.Rand
	interval time.Duration
	sigma    float64 // per-tick relative step size
	symbols  []*symbolState
	now      func() time.Time
}

func NewSynthetic(symbols map[string]float64, interval time.Duration, seed int64) (*Synthetic, error) {
	s := &Synthetic{
		rng:      rand.New(rand.NewSource(seed)),
		interval: interval,
		sigma:    0.0001,
		now:      time.Now,
	}
	for symbol, start := range symbols {
		meta, ok := market.Meta(symbol)
		if !ok {
			return nil, fmt.Errorf("synthetic feed: unknown symbol %q", symbol)
		}
		if start <= 0 {
			return nil, fmt.Errorf("synthetic feed: starting price for %s must be positive", symbol)
		}
		s.symbols = append(s.symbols, &symbolState{meta: meta, mid: start})
	}
	return s, nil
}

func (s *Synthetic) Run(ctx context.Context, out chan<- market.Tick) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		for _, st := range s.symbols {
			tick := s.step(st)
			select {
			case out <- tick:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// step advances one symbol's random walk and quotes a spread around the mid.
func (s *Synthetic) step(st *symbolState) market.Tick {
	st.mid += st.mid * s.sigma * s.rng.NormFloat64()
	half := st.meta.BaseSpreadPips / 2 * st.meta.PipSize()
	return market.Tick{
		Symbol: st.meta.Name,
		Bid:    st.mid - half,
		Ask:    st.mid + half,
		Time:   s.now(),
	}
}
