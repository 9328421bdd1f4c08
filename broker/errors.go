package broker

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrAccountNotFound  = errors.New("account not found")
	ErrPositionNotFound = errors.New("position not found")
	ErrPositionClosed   = errors.New("position already closed")
)

// Violation is one blocking or advisory finding from trade validation.
type Violation struct {
	Code string
	Msg  string
}

// ValidationError carries every violation found for a request, never just the
// first one. It is not fatal; the caller simply does not open the trade.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.Msg
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// RequoteError means the market moved past the acceptable threshold between
// request and fill. MarketPrice carries the fresh price so the caller can
// resubmit.
type RequoteError struct {
	Symbol      string
	Requested   float64
	MarketPrice float64
}

func (e *RequoteError) Error() string {
	return fmt.Sprintf("requote %s: requested %.5f, market moved to %.5f",
		e.Symbol, e.Requested, e.MarketPrice)
}
