package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"robinhood-trade-bot-go/internal/broker"
	"robinhood-trade-bot-go/internal/config"
	"robinhood-trade-bot-go/internal/ledger"
	"robinhood-trade-bot-go/internal/marketdata"
	"robinhood-trade-bot-go/internal/metrics"
	"robinhood-trade-bot-go/internal/models"
	"robinhood-trade-bot-go/internal/risk"
	"robinhood-trade-bot-go/internal/strategy"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrNotRunning indicates the engine has not been started, or was
// stopped by an authentication failure.
var ErrNotRunning = errors.New("engine is not running")

// Engine drives the trading cycle: fetch data, run strategies,
// aggregate signals, gate through risk policy, execute and record.
//
// One Engine instance is shared between the cron-triggered cycle and
// operator requests arriving over the web interface; both paths go
// through the same risk gate and brokerage session.
type Engine struct {
	logger       *zap.Logger
	broker       broker.Client
	data         marketdata.Source
	ledger       ledger.Ledger
	gate         *risk.Gate
	metrics      *metrics.Registry
	strategies   map[string]strategy.Strategy
	lookbackDays int
	pace         *rate.Limiter // minimum spacing between per-symbol requests

	mu            sync.Mutex
	running       bool
	startTime     time.Time
	active        []string
	minConfidence float64
	defaultAmount float64

	// inFlight tracks trades between record creation and terminal
	// status; Stop waits for it so no record is orphaned as pending.
	inFlight sync.WaitGroup
}

// NewEngine creates a trading engine. Nothing is started and no
// network call is made until Start.
func NewEngine(
	logger *zap.Logger,
	cfg *config.Config,
	brokerClient broker.Client,
	data marketdata.Source,
	led ledger.Ledger,
	gate *risk.Gate,
	reg *metrics.Registry,
) *Engine {
	interval := time.Duration(cfg.Trading.SymbolInterval) * time.Second
	if interval <= 0 {
		interval = time.Second
	}

	return &Engine{
		logger:        logger.Named("engine"),
		broker:        brokerClient,
		data:          data,
		ledger:        led,
		gate:          gate,
		metrics:       reg,
		strategies:    strategy.FromConfig(cfg.Strategies),
		lookbackDays:  cfg.Trading.LookbackDays,
		pace:          rate.NewLimiter(rate.Every(interval), 1),
		active:        append([]string(nil), cfg.Strategies.Active...),
		minConfidence: cfg.Trading.MinConfidence,
		defaultAmount: cfg.Trading.DefaultTradeAmount,
	}
}

// Start authenticates the brokerage session and marks the engine
// running. Idempotent: a running engine returns nil immediately.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	if !e.broker.IsAuthenticated() {
		if err := e.broker.Login(ctx); err != nil {
			e.logger.Error("failed to authenticate with brokerage", zap.Error(err))
			return err
		}
	}

	e.mu.Lock()
	e.running = true
	e.startTime = time.Now()
	e.mu.Unlock()

	e.logger.Info("trading engine started")
	return nil
}

// Stop marks the engine not-running, waits for any in-flight trade to
// reach a terminal status, then closes the brokerage session.
func (e *Engine) Stop(ctx context.Context) {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.mu.Unlock()

	e.inFlight.Wait()

	if err := e.broker.Logout(ctx); err != nil {
		e.logger.Warn("brokerage logout failed", zap.Error(err))
	}
	e.logger.Info("trading engine stopped")
}

// Running reports whether the engine accepts trades.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// halt transitions to not-running without waiting; used on
// authentication failure mid-cycle.
func (e *Engine) halt() {
	e.mu.Lock()
	e.running = false
	e.mu.Unlock()
	e.logger.Error("engine halted: brokerage session lost")
}

// AnalyzeSymbol fetches market data and runs every active strategy,
// returning the per-strategy signals and the aggregated decision. A
// strategy that fails is logged and excluded; only a data fetch failure
// is an error.
func (e *Engine) AnalyzeSymbol(ctx context.Context, symbol string) (map[string]strategy.Signal, strategy.Signal, error) {
	results, final, _, err := e.analyze(ctx, symbol)
	return results, final, err
}

// analyze additionally returns the ledger IDs of the logged signals
// keyed by action, so a trade that follows can flag its contributors.
func (e *Engine) analyze(ctx context.Context, symbol string) (map[string]strategy.Signal, strategy.Signal, map[strategy.Action][]uint, error) {
	series, err := e.data.PriceHistory(ctx, symbol, e.lookbackDays)
	if err != nil {
		return nil, strategy.Signal{}, nil, fmt.Errorf("market data for %s: %w", symbol, err)
	}

	e.mu.Lock()
	active := append([]string(nil), e.active...)
	e.mu.Unlock()

	results := make(map[string]strategy.Signal, len(active))
	signalIDs := make(map[strategy.Action][]uint)
	for _, name := range active {
		strat, ok := e.strategies[name]
		if !ok {
			e.logger.Warn("unknown strategy configured", zap.String("strategy", name))
			continue
		}

		sig, err := strat.Evaluate(symbol, series)
		if err != nil {
			e.logger.Error("strategy evaluation failed",
				zap.String("strategy", name),
				zap.String("symbol", symbol),
				zap.Error(err))
			continue
		}
		results[name] = sig
		e.metrics.SignalGenerated(name, string(sig.Action))

		logged := &models.StrategySignal{
			StrategyName: name,
			Symbol:       symbol,
			SignalType:   string(sig.Action),
			Confidence:   sig.Confidence,
		}
		if err := e.ledger.LogSignal(logged); err != nil {
			e.logger.Warn("failed to log strategy signal", zap.Error(err))
		} else {
			signalIDs[sig.Action] = append(signalIDs[sig.Action], logged.ID)
		}

		e.logger.Info("strategy signal",
			zap.String("strategy", name),
			zap.String("symbol", symbol),
			zap.String("action", string(sig.Action)),
			zap.Float64("confidence", sig.Confidence))
	}

	return results, strategy.Aggregate(results), signalIDs, nil
}

// RunCycle analyzes and potentially trades each symbol in order, then
// appends one portfolio snapshot. Failures are local: a bad symbol is
// skipped, a failed order marks its record failed, and only an
// authentication failure aborts the cycle. A snapshot write failure
// propagates to the caller.
func (e *Engine) RunCycle(ctx context.Context, symbols []string) error {
	if !e.Running() {
		return ErrNotRunning
	}

	e.logger.Info("running trading cycle", zap.Strings("symbols", symbols))
	start := time.Now()

	for _, symbol := range symbols {
		// Minimum inter-symbol spacing toward external APIs.
		if err := e.pace.Wait(ctx); err != nil {
			return err
		}

		results, final, signalIDs, err := e.analyze(ctx, symbol)
		if err != nil {
			e.logger.Warn("skipping symbol", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		if len(results) == 0 {
			e.logger.Warn("no signals generated", zap.String("symbol", symbol))
			continue
		}

		e.mu.Lock()
		minConfidence := e.minConfidence
		e.mu.Unlock()

		if final.Confidence < minConfidence {
			e.logger.Info("signal confidence below threshold",
				zap.String("symbol", symbol),
				zap.Float64("confidence", final.Confidence),
				zap.Float64("min_confidence", minConfidence))
			continue
		}
		if final.Action == strategy.ActionHold {
			e.logger.Info("holding position",
				zap.String("symbol", symbol),
				zap.String("reason", final.Reason))
			continue
		}

		err = e.executeTrade(ctx, symbol, final, 0, "combined")
		var rejection *risk.RejectionError
		switch {
		case err == nil:
			if merr := e.ledger.MarkSignalsExecuted(signalIDs[final.Action]); merr != nil {
				e.logger.Warn("failed to flag executed signals", zap.Error(merr))
			}
		case errors.As(err, &rejection):
			// Policy refusal, already recorded; move on.
		case errors.Is(err, broker.ErrNotAuthenticated):
			e.halt()
			return err
		default:
			e.logger.Error("trade execution failed",
				zap.String("symbol", symbol), zap.Error(err))
		}
	}

	err := e.appendSnapshot(ctx)
	e.metrics.CycleCompleted(time.Since(start).Seconds())
	e.logger.Info("trading cycle complete", zap.Duration("elapsed", time.Since(start)))
	return err
}

// ExecuteManualTrade runs an operator-supplied trade through the same
// risk-gated execution path as the cycle. An amount of zero uses the
// configured default trade amount.
func (e *Engine) ExecuteManualTrade(ctx context.Context, symbol string, action strategy.Action, amount float64) error {
	if action != strategy.ActionBuy && action != strategy.ActionSell {
		return fmt.Errorf("invalid order type %q", action)
	}
	if !e.Running() {
		return ErrNotRunning
	}

	if amount <= 0 {
		e.mu.Lock()
		amount = e.defaultAmount
		e.mu.Unlock()
	}

	sig := strategy.Signal{Action: action, Confidence: 1.0, Reason: "manual trade"}
	return e.executeTrade(ctx, symbol, sig, amount, "manual")
}

// executeTrade sizes, risk-checks, places and records one trade.
// A *risk.RejectionError return means the trade was refused and a
// rejected record appended; other errors are execution or persistence
// failures.
func (e *Engine) executeTrade(ctx context.Context, symbol string, sig strategy.Signal, amount float64, label string) error {
	if !e.broker.IsAuthenticated() {
		return broker.ErrNotAuthenticated
	}

	l := e.logger.With(
		zap.String("symbol", symbol),
		zap.String("action", string(sig.Action)),
		zap.String("strategy", label),
	)

	portfolio, err := e.broker.Portfolio(ctx)
	if err != nil {
		if errors.Is(err, broker.ErrNotAuthenticated) {
			return err
		}
		// Degraded data: the percentage check is skipped, not failed.
		l.Warn("could not fetch portfolio, proceeding with unknown value", zap.Error(err))
		portfolio = broker.Portfolio{}
	}

	positions, err := e.broker.OpenPositions(ctx)
	if err != nil {
		if errors.Is(err, broker.ErrNotAuthenticated) {
			return err
		}
		return e.reject(symbol, sig, amount, label,
			&risk.RejectionError{Reason: "could not verify open positions"})
	}

	if sig.Action == strategy.ActionSell && !holdsPosition(positions, symbol) {
		return e.reject(symbol, sig, amount, label,
			&risk.RejectionError{Reason: fmt.Sprintf("no open position in %s to sell", symbol)})
	}

	if amount <= 0 {
		amount = e.gate.SizePosition(sig.Confidence, portfolio.TotalValue)
	}

	if sig.Action == strategy.ActionBuy && portfolio.BuyingPower > 0 && amount > portfolio.BuyingPower {
		return e.reject(symbol, sig, amount, label,
			&risk.RejectionError{Reason: fmt.Sprintf(
				"insufficient buying power: need $%.2f, have $%.2f", amount, portfolio.BuyingPower)})
	}

	if err := e.gate.Approve(symbol, sig.Action, amount, len(positions), portfolio.TotalValue); err != nil {
		var rejection *risk.RejectionError
		if errors.As(err, &rejection) {
			return e.reject(symbol, sig, amount, label, rejection)
		}
		return err
	}

	price, err := e.data.CurrentPrice(ctx, symbol)
	if err != nil {
		l.Warn("could not fetch execution price", zap.Error(err))
		price = 0
	}
	quantity := 0.0
	if price > 0 {
		quantity = amount / price
	}

	// Guard the create-then-update sequence so Stop cannot complete
	// while this record is still pending.
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return ErrNotRunning
	}
	e.inFlight.Add(1)
	e.mu.Unlock()
	defer e.inFlight.Done()

	record := &models.TradeRecord{
		Symbol:      symbol,
		Action:      string(sig.Action),
		Quantity:    quantity,
		Price:       price,
		TotalAmount: amount,
		Strategy:    label,
		Confidence:  sig.Confidence,
		Reason:      sig.Reason,
		Status:      models.StatusPending,
	}
	if err := e.ledger.CreateTrade(record); err != nil {
		return err
	}

	l.Info("executing trade", zap.Float64("amount", amount), zap.Float64("price", price))

	order, err := e.broker.PlaceOrder(ctx, symbol, sig.Action, amount)
	now := time.Now()
	if err != nil {
		if uerr := e.ledger.UpdateTradeStatus(record.ID, models.StatusFailed, &now, ""); uerr != nil {
			l.Error("failed to mark trade failed", zap.Error(uerr))
		}
		e.metrics.TradeRecorded(string(sig.Action), string(models.StatusFailed))
		if errors.Is(err, broker.ErrNotAuthenticated) {
			return err
		}
		return fmt.Errorf("order placement for %s failed: %w", symbol, err)
	}

	if err := e.ledger.UpdateTradeStatus(record.ID, models.StatusExecuted, &now, order.ID); err != nil {
		// The brokerage order already happened; the persistence failure
		// propagates without any attempt to roll the trade back.
		return err
	}
	e.metrics.TradeRecorded(string(sig.Action), string(models.StatusExecuted))

	l.Info("trade executed",
		zap.Uint("trade_id", record.ID),
		zap.String("broker_order_id", order.ID),
		zap.Float64("amount", amount))
	return nil
}

// reject appends a rejected trade record and returns the rejection.
func (e *Engine) reject(symbol string, sig strategy.Signal, amount float64, label string, rejection *risk.RejectionError) error {
	e.logger.Warn("trade rejected",
		zap.String("symbol", symbol),
		zap.String("action", string(sig.Action)),
		zap.String("reason", rejection.Reason))

	record := &models.TradeRecord{
		Symbol:      symbol,
		Action:      string(sig.Action),
		TotalAmount: amount,
		Strategy:    label,
		Confidence:  sig.Confidence,
		Reason:      rejection.Reason,
		Status:      models.StatusRejected,
	}
	if err := e.ledger.CreateTrade(record); err != nil {
		e.logger.Error("failed to record rejected trade", zap.Error(err))
	}
	e.metrics.TradeRecorded(string(sig.Action), string(models.StatusRejected))
	return rejection
}

// appendSnapshot records the end-of-cycle portfolio state. A brokerage
// failure degrades to skipping the snapshot; a ledger failure
// propagates.
func (e *Engine) appendSnapshot(ctx context.Context) error {
	portfolio, err := e.broker.Portfolio(ctx)
	if err != nil {
		e.logger.Warn("skipping portfolio snapshot", zap.Error(err))
		return nil
	}

	positionsCount := 0
	if positions, err := e.broker.OpenPositions(ctx); err == nil {
		positionsCount = len(positions)
	}

	dayChangePercent := 0.0
	if prev := portfolio.TotalValue - portfolio.DayChange; prev > 0 {
		dayChangePercent = portfolio.DayChange / prev * 100
	}

	return e.ledger.AppendSnapshot(&models.PortfolioSnapshot{
		TotalValue:       portfolio.TotalValue,
		BuyingPower:      portfolio.BuyingPower,
		PositionsCount:   positionsCount,
		DayChange:        portfolio.DayChange,
		DayChangePercent: dayChangePercent,
	})
}

func holdsPosition(positions []broker.Position, symbol string) bool {
	for _, p := range positions {
		if p.Symbol == symbol && p.Quantity > 0 {
			return true
		}
	}
	return false
}
