package engine

import (
	"context"
	"time"

	"robinhood-trade-bot-go/internal/broker"
	"robinhood-trade-bot-go/internal/risk"

	"go.uber.org/zap"
)

// Status is the engine state summary served over the web interface.
type Status struct {
	Running          bool      `json:"is_running"`
	Authenticated    bool      `json:"is_authenticated"`
	ActiveStrategies []string  `json:"active_strategies"`
	UptimeSeconds    float64   `json:"uptime_seconds"`
	Timestamp        time.Time `json:"timestamp"`
}

// Status reports whether the engine is running and which strategies
// vote on each cycle.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	uptime := 0.0
	if e.running {
		uptime = time.Since(e.startTime).Seconds()
	}
	return Status{
		Running:          e.running,
		Authenticated:    e.broker.IsAuthenticated(),
		ActiveStrategies: append([]string(nil), e.active...),
		UptimeSeconds:    uptime,
		Timestamp:        time.Now(),
	}
}

// PortfolioSummary fetches the current portfolio and open positions
// from the brokerage.
func (e *Engine) PortfolioSummary(ctx context.Context) (broker.Portfolio, []broker.Position, error) {
	portfolio, err := e.broker.Portfolio(ctx)
	if err != nil {
		return broker.Portfolio{}, nil, err
	}
	positions, err := e.broker.OpenPositions(ctx)
	if err != nil {
		return portfolio, nil, err
	}
	return portfolio, positions, nil
}

// RiskReport combines the risk gate's counters with live position and
// portfolio figures.
type RiskReport struct {
	risk.Metrics
	CurrentPositions   int     `json:"current_positions"`
	PositionsRemaining int     `json:"positions_remaining"`
	PortfolioValue     float64 `json:"portfolio_value"`
	BuyingPower        float64 `json:"buying_power"`
}

// RiskReport returns the current risk posture. Brokerage failures
// degrade to zeroed live figures rather than an error.
func (e *Engine) RiskReport(ctx context.Context) RiskReport {
	report := RiskReport{Metrics: e.gate.Metrics()}

	portfolio, err := e.broker.Portfolio(ctx)
	if err != nil {
		e.logger.Warn("could not fetch portfolio for risk report", zap.Error(err))
	} else {
		report.PortfolioValue = portfolio.TotalValue
		report.BuyingPower = portfolio.BuyingPower
	}

	if positions, err := e.broker.OpenPositions(ctx); err == nil {
		report.CurrentPositions = len(positions)
	}
	report.PositionsRemaining = report.MaxPositions - report.CurrentPositions
	if report.PositionsRemaining < 0 {
		report.PositionsRemaining = 0
	}
	return report
}

// Settings are the runtime-tunable engine parameters.
type Settings struct {
	ActiveStrategies   []string `json:"active_strategies"`
	MinConfidence      float64  `json:"min_confidence"`
	DefaultTradeAmount float64  `json:"default_trade_amount"`
}

// SettingsPatch carries a partial settings update; nil fields are left
// unchanged.
type SettingsPatch struct {
	ActiveStrategies   []string `json:"active_strategies"`
	MinConfidence      *float64 `json:"min_confidence"`
	DefaultTradeAmount *float64 `json:"default_trade_amount"`
}

// Settings returns the current runtime parameters.
func (e *Engine) Settings() Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Settings{
		ActiveStrategies:   append([]string(nil), e.active...),
		MinConfidence:      e.minConfidence,
		DefaultTradeAmount: e.defaultAmount,
	}
}

// ApplySettings updates runtime parameters. Unknown strategy names are
// dropped with a warning; the change takes effect on the next cycle.
func (e *Engine) ApplySettings(patch SettingsPatch) Settings {
	e.mu.Lock()
	defer e.mu.Unlock()

	if patch.ActiveStrategies != nil {
		active := make([]string, 0, len(patch.ActiveStrategies))
		for _, name := range patch.ActiveStrategies {
			if _, ok := e.strategies[name]; !ok {
				e.logger.Warn("ignoring unknown strategy", zap.String("strategy", name))
				continue
			}
			active = append(active, name)
		}
		e.active = active
	}
	if patch.MinConfidence != nil && *patch.MinConfidence >= 0 && *patch.MinConfidence <= 1 {
		e.minConfidence = *patch.MinConfidence
	}
	if patch.DefaultTradeAmount != nil && *patch.DefaultTradeAmount > 0 {
		e.defaultAmount = *patch.DefaultTradeAmount
	}

	return Settings{
		ActiveStrategies:   append([]string(nil), e.active...),
		MinConfidence:      e.minConfidence,
		DefaultTradeAmount: e.defaultAmount,
	}
}
