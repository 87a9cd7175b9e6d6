package marketdata

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const yahooBaseURL = "https://query1.finance.yahoo.com"

// Yahoo fetches price data from the Yahoo Finance public chart API.
type Yahoo struct {
	client *resty.Client
	logger *zap.Logger
}

var _ Source = (*Yahoo)(nil)

// NewYahoo creates a Yahoo Finance source.
func NewYahoo(logger *zap.Logger) *Yahoo {
	client := resty.New().
		SetBaseURL(yahooBaseURL).
		SetTimeout(30 * time.Second).
		SetHeader("User-Agent", "Mozilla/5.0")

	return &Yahoo{client: client, logger: logger.Named("yahoo")}
}

func (y *Yahoo) Name() string { return "yahoo" }

// yahooChart is the response structure of the chart endpoint. Closes are
// nullable: holidays and halts come back as JSON nulls.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// rangeForDays maps a lookback length onto the coarse ranges the chart
// API accepts for daily bars.
func rangeForDays(days int) string {
	switch {
	case days <= 7:
		return "7d"
	case days <= 30:
		return "1mo"
	case days <= 90:
		return "3mo"
	case days <= 180:
		return "6mo"
	case days <= 365:
		return "1y"
	default:
		return "2y"
	}
}

func (y *Yahoo) fetchChart(ctx context.Context, symbol, interval, rng string) ([]Candle, error) {
	var chart yahooChart

	resp, err := y.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"interval": interval,
			"range":    rng,
		}).
		SetResult(&chart).
		Get("/v8/finance/chart/" + url.PathEscape(symbol))
	if err != nil {
		return nil, fmt.Errorf("yahoo fetch %s: %w", symbol, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("yahoo fetch %s: status %s", symbol, resp.Status())
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo api error for %s: %s", symbol, chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Timestamp) == 0 {
		return nil, fmt.Errorf("yahoo: no data returned for %s", symbol)
	}

	result := chart.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("yahoo: no quote data returned for %s", symbol)
	}
	closes := result.Indicators.Quote[0].Close

	candles := make([]Candle, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			continue // skip null bars (holidays etc.)
		}
		candles = append(candles, Candle{
			Time:  time.Unix(ts, 0),
			Close: *closes[i],
		})
	}
	return candles, nil
}

// PriceHistory returns up to lookbackDays daily closes, oldest first.
func (y *Yahoo) PriceHistory(ctx context.Context, symbol string, lookbackDays int) ([]Candle, error) {
	candles, err := y.fetchChart(ctx, symbol, "1d", rangeForDays(lookbackDays))
	if err != nil {
		return nil, err
	}
	if len(candles) > lookbackDays {
		candles = candles[len(candles)-lookbackDays:]
	}
	y.logger.Debug("fetched price history",
		zap.String("symbol", symbol),
		zap.Int("candles", len(candles)))
	return candles, nil
}

// CurrentPrice returns the latest close from an intraday chart.
func (y *Yahoo) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	candles, err := y.fetchChart(ctx, symbol, "1d", "1d")
	if err != nil {
		return 0, err
	}
	if len(candles) == 0 {
		return 0, fmt.Errorf("yahoo: no price data for %s", symbol)
	}
	return candles[len(candles)-1].Close, nil
}
