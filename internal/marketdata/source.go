package marketdata

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable indicates that no source could supply the requested data.
// Callers degrade by skipping the affected symbol; it is never fatal.
var ErrUnavailable = errors.New("market data unavailable")

// Candle is one observation in a price series, ordered oldest first.
type Candle struct {
	Time  time.Time
	Close float64
}

// Source supplies historical and live prices for a symbol.
type Source interface {
	Name() string

	// PriceHistory returns up to lookbackDays daily closes, oldest first.
	PriceHistory(ctx context.Context, symbol string, lookbackDays int) ([]Candle, error)

	// CurrentPrice returns the most recent traded price.
	CurrentPrice(ctx context.Context, symbol string) (float64, error)
}

// Closes extracts the close prices from a candle series.
func Closes(series []Candle) []float64 {
	out := make([]float64, len(series))
	for i, c := range series {
		out[i] = c.Close
	}
	return out
}
