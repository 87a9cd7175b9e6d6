package strategy

import (
	"robinhood-trade-bot-go/internal/config"
	"robinhood-trade-bot-go/internal/marketdata"
)

// Strategy evaluates a price series for one symbol and produces a Signal.
//
// An evaluation that cannot be performed because the series is too short
// must fail softly: a Hold signal with zero confidence and a reason, not
// an error. Errors are reserved for genuine faults and cause the signal
// to be excluded from the aggregation pass.
type Strategy interface {
	Name() string
	Evaluate(symbol string, series []marketdata.Candle) (Signal, error)
}

// FromConfig builds the full strategy set, keyed by name. Which of
// them actually vote is decided by the caller's active list.
func FromConfig(cfg config.Strategies) map[string]Strategy {
	return map[string]Strategy{
		"sma": NewSMA(cfg.SMA.ShortWindow, cfg.SMA.LongWindow, cfg.SMA.Threshold),
		"rsi": NewRSI(cfg.RSI.Period, cfg.RSI.Oversold, cfg.RSI.Overbought),
	}
}
