package strategy

import (
	"fmt"
	"math"

	"robinhood-trade-bot-go/internal/marketdata"
)

// RSI is an oversold/overbought oscillator strategy.
//
// Buy when the index drops below Oversold, Sell when it rises above
// Overbought, Hold in the neutral zone.
type RSI struct {
	Period     int
	Oversold   float64
	Overbought float64
}

// NewRSI creates an RSI strategy; zero parameters fall back to the
// conventional 14-period 30/70 bands.
func NewRSI(period int, oversold, overbought float64) *RSI {
	if period <= 0 {
		period = 14
	}
	if oversold <= 0 {
		oversold = 30
	}
	if overbought <= 0 {
		overbought = 70
	}
	return &RSI{Period: period, Oversold: oversold, Overbought: overbought}
}

func (r *RSI) Name() string { return "rsi" }

// value computes the 0-100 index from the ratio of mean gains to mean
// losses over the trailing window. Returns the neutral 50 when the
// series is shorter than period+1; a window with zero mean loss drives
// the index to 100.
func (r *RSI) value(series []marketdata.Candle) float64 {
	if len(series) < r.Period+1 {
		return 50.0
	}

	window := series[len(series)-r.Period-1:]
	var gains, losses float64
	for i := 1; i < len(window); i++ {
		delta := window[i].Close - window[i-1].Close
		if delta > 0 {
			gains += delta
		} else {
			losses -= delta
		}
	}

	avgGain := gains / float64(r.Period)
	avgLoss := losses / float64(r.Period)
	if avgLoss == 0 {
		return 100.0
	}

	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// Evaluate maps the oscillator value to a signal, scaling confidence
// linearly with the distance past each threshold.
func (r *RSI) Evaluate(symbol string, series []marketdata.Candle) (Signal, error) {
	if len(series) < r.Period+1 {
		return Signal{
			Action:     ActionHold,
			Confidence: 0.0,
			Reason:     fmt.Sprintf("insufficient price history: need %d periods, got %d", r.Period+1, len(series)),
		}, nil
	}

	rsi := r.value(series)
	current := series[len(series)-1].Close

	evidence := map[string]float64{
		"rsi":           rsi,
		"oversold":      r.Oversold,
		"overbought":    r.Overbought,
		"current_price": current,
	}

	switch {
	case rsi < r.Oversold:
		confidence := math.Min((r.Oversold-rsi)/r.Oversold, 1.0)
		return Signal{
			Action:     ActionBuy,
			Confidence: confidence,
			Reason:     fmt.Sprintf("RSI (%.2f) indicates oversold condition (< %.0f)", rsi, r.Oversold),
			Evidence:   evidence,
		}, nil
	case rsi > r.Overbought:
		confidence := math.Min((rsi-r.Overbought)/(100-r.Overbought), 1.0)
		return Signal{
			Action:     ActionSell,
			Confidence: confidence,
			Reason:     fmt.Sprintf("RSI (%.2f) indicates overbought condition (> %.0f)", rsi, r.Overbought),
			Evidence:   evidence,
		}, nil
	default:
		return Signal{
			Action:     ActionHold,
			Confidence: 0.5,
			Reason:     fmt.Sprintf("RSI (%.2f) in neutral zone (%.0f-%.0f)", rsi, r.Oversold, r.Overbought),
			Evidence:   evidence,
		}, nil
	}
}
