package marketdata

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Chain is an ordered list of sources tried in sequence. The first
// source to answer wins; when every source fails the error wraps
// ErrUnavailable together with each source's failure.
type Chain struct {
	sources []Source
	logger  *zap.Logger
}

var _ Source = (*Chain)(nil)

// NewChain creates a fallback chain over the given sources, in priority order.
func NewChain(logger *zap.Logger, sources ...Source) *Chain {
	return &Chain{sources: sources, logger: logger.Named("marketdata")}
}

func (c *Chain) Name() string { return "chain" }

// PriceHistory tries each source in order.
func (c *Chain) PriceHistory(ctx context.Context, symbol string, lookbackDays int) ([]Candle, error) {
	errs := make([]error, 0, len(c.sources))
	for _, src := range c.sources {
		series, err := src.PriceHistory(ctx, symbol, lookbackDays)
		if err == nil {
			return series, nil
		}
		c.logger.Warn("price history source failed",
			zap.String("source", src.Name()),
			zap.String("symbol", symbol),
			zap.Error(err))
		errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
	}
	return nil, fmt.Errorf("price history for %s: %w", symbol, errors.Join(append([]error{ErrUnavailable}, errs...)...))
}

// CurrentPrice tries each source in order.
func (c *Chain) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	errs := make([]error, 0, len(c.sources))
	for _, src := range c.sources {
		price, err := src.CurrentPrice(ctx, symbol)
		if err == nil {
			return price, nil
		}
		c.logger.Warn("current price source failed",
			zap.String("source", src.Name()),
			zap.String("symbol", symbol),
			zap.Error(err))
		errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
	}
	return 0, fmt.Errorf("current price for %s: %w", symbol, errors.Join(append([]error{ErrUnavailable}, errs...)...))
}
