package feed

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rustyeddy/fxbroker/market"
)

// Replay streams recorded ticks from a CSV file.
//
// Expected columns:
//
//	time,symbol,bid,ask
//
// A header row is allowed. Time is RFC3339 or unix milliseconds. Malformed
// rows are logged and skipped, matching the live feeds.
type Replay struct {
	Path string
}

func NewReplay(path string) *Replay {
	return &Replay{Path: path}
}

func (r *Replay) Run(ctx context.Context, out chan<- market.Tick) error {
	f, err := os.Open(r.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1

	for {
		row, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("replay %s: %w", r.Path, err)
		}

		tick, err := parseRow(row)
		if err != nil {
			if isHeader(row) {
				continue
			}
			slog.Warn("replay: dropping malformed row", "row", row, "error", err)
			continue
		}

		select {
		case out <- tick:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func parseRow(row []string) (market.Tick, error) {
	if len(row) < 4 {
		return market.Tick{}, fmt.Errorf("want 4 columns, got %d", len(row))
	}
	ts, err := parseTime(strings.TrimSpace(row[0]))
	if err != nil {
		return market.Tick{}, err
	}
	bid, err := strconv.ParseFloat(strings.TrimSpace(row[2]), 64)
	if err != nil {
		return market.Tick{}, fmt.Errorf("bid: %w", err)
	}
	ask, err := strconv.ParseFloat(strings.TrimSpace(row[3]), 64)
	if err != nil {
		return market.Tick{}, fmt.Errorf("ask: %w", err)
	}
	return market.Tick{
		Symbol: strings.TrimSpace(row[1]),
		Bid:    bid,
		Ask:    ask,
		Time:   ts,
	}, nil
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unparsable time %q", s)
}

func isHeader(row []string) bool {
	return len(row) > 0 && strings.EqualFold(strings.TrimSpace(row[0]), "time")
}
