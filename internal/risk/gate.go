package risk

import (
	"fmt"
	"sync"
	"time"

	"robinhood-trade-bot-go/internal/strategy"

	"go.uber.org/zap"
)

// Limits is the static risk configuration.
type Limits struct {
	MaxPositionSize float64 // dollar ceiling per trade
	MaxDailyLoss    float64 // dollar ceiling on realized losses per day
	MaxPositions    int     // open-position count ceiling, buy orders only
	RiskPercentage  float64 // max percent of portfolio value per trade
	DefaultAmount   float64 // fallback sizing when the portfolio value is unknown
}

// RejectionError is a policy refusal. It is a normal outcome, not a
// fault: callers record it and move on.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string {
	return "trade rejected: " + e.Reason
}

// Gate approves or rejects proposed trades against the configured limits
// and the accumulated daily loss. All state lives behind one mutex: the
// scheduled cycle and concurrent operator requests must observe the
// reset check, the loss counter and the limit checks atomically.
type Gate struct {
	limits Limits
	logger *zap.Logger

	mu            sync.Mutex
	dailyLoss     float64
	lastResetDate time.Time

	now func() time.Time // injectable clock
}

// NewGate creates a risk gate with a fresh daily counter.
func NewGate(limits Limits, logger *zap.Logger) *Gate {
	g := &Gate{
		limits: limits,
		logger: logger.Named("risk"),
		now:    time.Now,
	}
	g.lastResetDate = dateOf(g.now())
	return g
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// resetLocked zeroes the daily loss counter when the calendar date has
// advanced. Callers must hold g.mu.
func (g *Gate) resetLocked() {
	today := dateOf(g.now())
	if today.After(g.lastResetDate) {
		g.dailyLoss = 0
		g.lastResetDate = today
		g.logger.Info("daily risk counters reset")
	}
}

// Approve checks a proposed trade against every limit, first failing
// check wins. A nil return means approved; a *RejectionError carries the
// refusal reason. An unknown (zero) portfolio value skips the
// portfolio-percentage check rather than rejecting: degraded data is not
// a risk violation.
func (g *Gate) Approve(symbol string, action strategy.Action, amount float64, openPositions int, portfolioValue float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.resetLocked()

	if g.dailyLoss >= g.limits.MaxDailyLoss {
		return &RejectionError{Reason: fmt.Sprintf(
			"daily loss limit reached: $%.2f >= $%.2f", g.dailyLoss, g.limits.MaxDailyLoss)}
	}

	if amount > g.limits.MaxPositionSize {
		return &RejectionError{Reason: fmt.Sprintf(
			"position size too large: $%.2f > $%.2f", amount, g.limits.MaxPositionSize)}
	}

	if action == strategy.ActionBuy && openPositions >= g.limits.MaxPositions {
		return &RejectionError{Reason: fmt.Sprintf(
			"maximum positions limit reached: %d >= %d", openPositions, g.limits.MaxPositions)}
	}

	if portfolioValue > 0 {
		riskAmount := portfolioValue * (g.limits.RiskPercentage / 100)
		if amount > riskAmount {
			return &RejectionError{Reason: fmt.Sprintf(
				"trade amount exceeds risk percentage: $%.2f > $%.2f", amount, riskAmount)}
		}
	}

	return nil
}

// SizePosition computes a dollar amount from the signal confidence and
// the portfolio value: a base portfolio-percentage amount scaled into
// the [0.5, 1.0] confidence band, clamped to [$10, MaxPositionSize].
// Falls back to the configured default when the portfolio value is
// unknown.
func (g *Gate) SizePosition(confidence, portfolioValue float64) float64 {
	if portfolioValue <= 0 {
		return g.limits.DefaultAmount
	}

	base := portfolioValue * (g.limits.RiskPercentage / 100)
	amount := base * (0.5 + confidence*0.5)

	if amount > g.limits.MaxPositionSize {
		amount = g.limits.MaxPositionSize
	}
	if amount < 10.0 {
		amount = 10.0
	}
	return amount
}

// RecordLoss adds a realized loss to the daily counter. Only called
// after a trade outcome confirms the loss, never speculatively.
func (g *Gate) RecordLoss(amount float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.resetLocked()
	g.dailyLoss += amount
	g.logger.Info("daily loss updated", zap.Float64("daily_loss", g.dailyLoss))
}

// Metrics is a read-only view of the gate's state and limits.
type Metrics struct {
	DailyLoss          float64 `json:"daily_loss"`
	MaxDailyLoss       float64 `json:"max_daily_loss"`
	DailyLossRemaining float64 `json:"daily_loss_remaining"`
	MaxPositions       int     `json:"max_positions"`
	MaxPositionSize    float64 `json:"max_position_size"`
	RiskPercentage     float64 `json:"risk_percentage"`
}

// Metrics returns the current risk metrics, applying the daily reset first.
func (g *Gate) Metrics() Metrics {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.resetLocked()
	remaining := g.limits.MaxDailyLoss - g.dailyLoss
	if remaining < 0 {
		remaining = 0
	}
	return Metrics{
		DailyLoss:          g.dailyLoss,
		MaxDailyLoss:       g.limits.MaxDailyLoss,
		DailyLossRemaining: remaining,
		MaxPositions:       g.limits.MaxPositions,
		MaxPositionSize:    g.limits.MaxPositionSize,
		RiskPercentage:     g.limits.RiskPercentage,
	}
}
