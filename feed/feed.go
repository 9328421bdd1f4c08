// Package feed delivers price ticks to the engine: a synthetic random-walk
// generator, a remote websocket stream, or a CSV replay of recorded ticks.
package feed

import (
	"context"

	"github.com/rustyeddy/fxbroker/market"
)

// Source pushes ticks into out until ctx is cancelled. Order within a symbol
// is monotonic in timestamp; order across symbols is not guaranteed.
type Source interface {
	Run(ctx context.Context, out chan<- market.Tick) error
}
