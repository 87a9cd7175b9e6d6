package strategy

import (
	"testing"
	"time"

	"robinhood-trade-bot-go/internal/marketdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// steppedSeries produces n1 candles at p1 followed by n2 candles at p2.
func steppedSeries(n1 int, p1 float64, n2 int, p2 float64) []marketdata.Candle {
	series := make([]marketdata.Candle, 0, n1+n2)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n1; i++ {
		series = append(series, marketdata.Candle{Time: base.AddDate(0, 0, i), Close: p1})
	}
	for i := 0; i < n2; i++ {
		series = append(series, marketdata.Candle{Time: base.AddDate(0, 0, n1+i), Close: p2})
	}
	return series
}

func TestSMAInsufficientHistory(t *testing.T) {
	s := NewSMA(50, 200, 0.01)

	sig, err := s.Evaluate("AAPL", steppedSeries(100, 100, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, ActionHold, sig.Action)
	assert.Equal(t, 0.0, sig.Confidence)
	assert.Contains(t, sig.Reason, "insufficient price history")
}

func TestSMAGoldenCross(t *testing.T) {
	s := NewSMA(50, 200, 0.01)

	// Last 50 closes at 120; the 200-window mean is 105, so the short
	// mean leads by ~14%.
	sig, err := s.Evaluate("AAPL", steppedSeries(200, 100, 50, 120))
	require.NoError(t, err)
	assert.Equal(t, ActionBuy, sig.Action)
	assert.Equal(t, 1.0, sig.Confidence)
	assert.InDelta(t, 120.0, sig.Evidence["short_ma"], 1e-9)
	assert.InDelta(t, 105.0, sig.Evidence["long_ma"], 1e-9)
}

func TestSMADeathCross(t *testing.T) {
	s := NewSMA(50, 200, 0.01)

	sig, err := s.Evaluate("AAPL", steppedSeries(200, 100, 50, 80))
	require.NoError(t, err)
	assert.Equal(t, ActionSell, sig.Action)
	assert.Equal(t, 1.0, sig.Confidence)
}

func TestSMAFlatSeriesHolds(t *testing.T) {
	s := NewSMA(50, 200, 0.01)

	sig, err := s.Evaluate("AAPL", steppedSeries(250, 100, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, ActionHold, sig.Action)
	assert.Equal(t, 0.5, sig.Confidence)
}

func TestSMAConfidenceScalesWithDivergence(t *testing.T) {
	s := NewSMA(50, 200, 0.01)

	// A 2% divergence is over the threshold but far from the cap.
	weak, err := s.Evaluate("AAPL", steppedSeries(200, 100, 50, 102.8))
	require.NoError(t, err)
	strong, err := s.Evaluate("AAPL", steppedSeries(200, 100, 50, 120))
	require.NoError(t, err)

	assert.Equal(t, ActionBuy, weak.Action)
	assert.Less(t, weak.Confidence, strong.Confidence)
}

func TestSMADefaults(t *testing.T) {
	s := NewSMA(0, 0, 0)
	assert.Equal(t, 50, s.ShortWindow)
	assert.Equal(t, 200, s.LongWindow)
	assert.Equal(t, 0.01, s.Threshold)
	assert.Equal(t, "sma", s.Name())
}
