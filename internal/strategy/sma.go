package strategy

import (
	"fmt"
	"math"

	"robinhood-trade-bot-go/internal/marketdata"
)

// SMA is a simple moving-average crossover strategy.
//
// Buy when the short-window mean exceeds the long-window mean by more
// than Threshold (relative), Sell when it trails by more than Threshold,
// Hold otherwise.
type SMA struct {
	ShortWindow int
	LongWindow  int
	Threshold   float64 // minimum relative difference to trigger a signal
}

// NewSMA creates an SMA strategy; zero parameters fall back to the
// classic 50/200 windows with a 1% threshold.
func NewSMA(short, long int, threshold float64) *SMA {
	if short <= 0 {
		short = 50
	}
	if long <= 0 {
		long = 200
	}
	if threshold <= 0 {
		threshold = 0.01
	}
	return &SMA{ShortWindow: short, LongWindow: long, Threshold: threshold}
}

func (s *SMA) Name() string { return "sma" }

// Evaluate computes the trailing means over the most recent prices and
// maps their relative difference to a signal.
func (s *SMA) Evaluate(symbol string, series []marketdata.Candle) (Signal, error) {
	if len(series) < s.LongWindow {
		return Signal{
			Action:     ActionHold,
			Confidence: 0.0,
			Reason:     fmt.Sprintf("insufficient price history: need %d periods, got %d", s.LongWindow, len(series)),
		}, nil
	}

	shortMA := trailingMean(series, s.ShortWindow)
	longMA := trailingMean(series, s.LongWindow)
	pctDiff := (shortMA - longMA) / longMA
	current := series[len(series)-1].Close

	evidence := map[string]float64{
		"short_ma":      shortMA,
		"long_ma":       longMA,
		"pct_diff":      pctDiff,
		"threshold":     s.Threshold,
		"current_price": current,
	}

	switch {
	case pctDiff > s.Threshold:
		return Signal{
			Action:     ActionBuy,
			Confidence: math.Min(math.Abs(pctDiff)*10, 1.0),
			Reason:     fmt.Sprintf("short MA (%.2f) > long MA (%.2f) by %.2f%%", shortMA, longMA, pctDiff*100),
			Evidence:   evidence,
		}, nil
	case pctDiff < -s.Threshold:
		return Signal{
			Action:     ActionSell,
			Confidence: math.Min(math.Abs(pctDiff)*10, 1.0),
			Reason:     fmt.Sprintf("short MA (%.2f) < long MA (%.2f) by %.2f%%", shortMA, longMA, pctDiff*100),
			Evidence:   evidence,
		}, nil
	default:
		return Signal{
			Action:     ActionHold,
			Confidence: 0.5,
			Reason:     fmt.Sprintf("MAs are close: short %.2f, long %.2f", shortMA, longMA),
			Evidence:   evidence,
		}, nil
	}
}

// trailingMean averages the closes of the last n candles.
func trailingMean(series []marketdata.Candle, n int) float64 {
	sum := 0.0
	for _, c := range series[len(series)-n:] {
		sum += c.Close
	}
	return sum / float64(n)
}
