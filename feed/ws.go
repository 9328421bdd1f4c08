package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rustyeddy/fxbroker/market"
)

// wsFrame is the wire format of one quote message.
type wsFrame struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	TS     int64   `json:"ts"` // unix milliseconds
}

// WS subscribes to a websocket quote stream and forwards decoded ticks.
// Malformed frames are logged and skipped, never fatal.
type WS struct {
	URL     string
	Symbols []string

	dialer *websocket.Dialer
}

func NewWS(url string, symbols []string) *WS {
	return &WS{
		URL:     url,
		Symbols: symbols,
		dialer:  websocket.DefaultDialer,
	}
}

func (w *WS) Run(ctx context.Context, out chan<- market.Tick) error {
	conn, _, err := w.dialer.DialContext(ctx, w.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	if len(w.Symbols) > 0 {
		sub := map[string]any{"op": "subscribe", "symbols": w.Symbols}
		if err := conn.WriteJSON(sub); err != nil {
			return err
		}
	}

	// Unblock ReadMessage when the context is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.SetReadDeadline(time.Now())
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		var frame wsFrame
		if err := json.Unmarshal(msg, &frame); err != nil {
			slog.Warn("feed: dropping malformed frame", "error", err)
			continue
		}
		if frame.Symbol == "" || frame.Bid <= 0 || frame.Ask <= 0 {
			slog.Warn("feed: dropping incomplete quote", "symbol", frame.Symbol)
			continue
		}

		tick := market.Tick{
			Symbol: frame.Symbol,
			Bid:    frame.Bid,
			Ask:    frame.Ask,
			Time:   time.UnixMilli(frame.TS).UTC(),
		}
		select {
		case out <- tick:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
