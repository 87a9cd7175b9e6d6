package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"robinhood-trade-bot-go/internal/broker"
	"robinhood-trade-bot-go/internal/config"
	"robinhood-trade-bot-go/internal/marketdata"
	"robinhood-trade-bot-go/internal/metrics"
	"robinhood-trade-bot-go/internal/models"
	"robinhood-trade-bot-go/internal/risk"
	"robinhood-trade-bot-go/internal/strategy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockBroker struct {
	mock.Mock
}

func (m *mockBroker) IsAuthenticated() bool {
	return m.Called().Bool(0)
}

func (m *mockBroker) Login(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockBroker) Logout(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockBroker) Portfolio(ctx context.Context) (broker.Portfolio, error) {
	args := m.Called(ctx)
	return args.Get(0).(broker.Portfolio), args.Error(1)
}

func (m *mockBroker) OpenPositions(ctx context.Context) ([]broker.Position, error) {
	args := m.Called(ctx)
	var positions []broker.Position
	if v := args.Get(0); v != nil {
		positions = v.([]broker.Position)
	}
	return positions, args.Error(1)
}

func (m *mockBroker) PlaceOrder(ctx context.Context, symbol string, side strategy.Action, dollarAmount float64) (broker.Order, error) {
	args := m.Called(ctx, symbol, side, dollarAmount)
	return args.Get(0).(broker.Order), args.Error(1)
}

type mockSource struct {
	mock.Mock
}

func (m *mockSource) Name() string { return "mock" }

func (m *mockSource) PriceHistory(ctx context.Context, symbol string, lookbackDays int) ([]marketdata.Candle, error) {
	args := m.Called(ctx, symbol, lookbackDays)
	var series []marketdata.Candle
	if v := args.Get(0); v != nil {
		series = v.([]marketdata.Candle)
	}
	return series, args.Error(1)
}

func (m *mockSource) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(float64), args.Error(1)
}

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) CreateTrade(record *models.TradeRecord) error {
	return m.Called(record).Error(0)
}

func (m *mockLedger) UpdateTradeStatus(id uint, status models.TradeStatus, executedAt *time.Time, brokerOrderID string) error {
	return m.Called(id, status, executedAt, brokerOrderID).Error(0)
}

func (m *mockLedger) AppendSnapshot(snapshot *models.PortfolioSnapshot) error {
	return m.Called(snapshot).Error(0)
}

func (m *mockLedger) LogSignal(signal *models.StrategySignal) error {
	return m.Called(signal).Error(0)
}

func (m *mockLedger) MarkSignalsExecuted(ids []uint) error {
	return m.Called(ids).Error(0)
}

func (m *mockLedger) RecentTrades(limit int) ([]models.TradeRecord, error) {
	args := m.Called(limit)
	var trades []models.TradeRecord
	if v := args.Get(0); v != nil {
		trades = v.([]models.TradeRecord)
	}
	return trades, args.Error(1)
}

func (m *mockLedger) PortfolioHistory(sinceDays int) ([]models.PortfolioSnapshot, error) {
	args := m.Called(sinceDays)
	var snapshots []models.PortfolioSnapshot
	if v := args.Get(0); v != nil {
		snapshots = v.([]models.PortfolioSnapshot)
	}
	return snapshots, args.Error(1)
}

func testConfig(active ...string) *config.Config {
	return &config.Config{
		Trading: config.Trading{
			MinConfidence:      0.6,
			DefaultTradeAmount: 100,
			SymbolInterval:     1,
			LookbackDays:       365,
		},
		Risk: config.Risk{
			MaxPositionSize: 1000,
			MaxDailyLoss:    500,
			MaxPositions:    5,
			RiskPercentage:  2.0,
		},
		Strategies: config.Strategies{
			Active: active,
			SMA:    config.SMA{ShortWindow: 50, LongWindow: 200, Threshold: 0.01},
			RSI:    config.RSI{Period: 14, Oversold: 30, Overbought: 70},
		},
	}
}

func newTestEngine(t *testing.T, cfg *config.Config, b broker.Client, d marketdata.Source, l *mockLedger) *Engine {
	t.Helper()
	logger := zap.NewNop()
	gate := risk.NewGate(risk.Limits{
		MaxPositionSize: cfg.Risk.MaxPositionSize,
		MaxDailyLoss:    cfg.Risk.MaxDailyLoss,
		MaxPositions:    cfg.Risk.MaxPositions,
		RiskPercentage:  cfg.Risk.RiskPercentage,
		DefaultAmount:   cfg.Trading.DefaultTradeAmount,
	}, logger)
	return NewEngine(logger, cfg, b, d, l, gate, metrics.NewRegistry())
}

// risingSeries is a steadily climbing price history long enough for the
// moving-average crossover to produce a decisive buy.
func risingSeries(n int) []marketdata.Candle {
	series := make([]marketdata.Candle, n)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range series {
		series[i] = marketdata.Candle{
			Time:  base.AddDate(0, 0, i),
			Close: 100 + float64(i)*0.5,
		}
	}
	return series
}

func startEngine(t *testing.T, e *Engine, b *mockBroker) {
	t.Helper()
	b.On("IsAuthenticated").Return(true)
	require.NoError(t, e.Start(context.Background()))
	require.True(t, e.Running())
}

func TestRunCycleEmptySeriesProducesNoTrade(t *testing.T) {
	b := new(mockBroker)
	d := new(mockSource)
	l := new(mockLedger)
	e := newTestEngine(t, testConfig("sma", "rsi"), b, d, l)
	startEngine(t, e, b)

	d.On("PriceHistory", mock.Anything, "AAPL", 365).Return([]marketdata.Candle{}, nil)
	l.On("LogSignal", mock.Anything).Return(nil)
	b.On("Portfolio", mock.Anything).Return(broker.Portfolio{TotalValue: 50000, BuyingPower: 10000}, nil)
	b.On("OpenPositions", mock.Anything).Return([]broker.Position{}, nil)
	l.On("AppendSnapshot", mock.Anything).Return(nil)

	err := e.RunCycle(context.Background(), []string{"AAPL"})
	require.NoError(t, err)

	l.AssertNotCalled(t, "CreateTrade", mock.Anything)
	b.AssertNotCalled(t, "PlaceOrder", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	l.AssertNumberOfCalls(t, "AppendSnapshot", 1)
}

func TestRunCycleExecutesConfidentBuy(t *testing.T) {
	b := new(mockBroker)
	d := new(mockSource)
	l := new(mockLedger)
	e := newTestEngine(t, testConfig("sma"), b, d, l)
	startEngine(t, e, b)

	d.On("PriceHistory", mock.Anything, "AAPL", 365).Return(risingSeries(250), nil)
	d.On("CurrentPrice", mock.Anything, "AAPL").Return(225.0, nil)
	l.On("LogSignal", mock.Anything).Return(nil)
	b.On("Portfolio", mock.Anything).Return(broker.Portfolio{TotalValue: 50000, BuyingPower: 10000}, nil)
	b.On("OpenPositions", mock.Anything).Return([]broker.Position{}, nil)
	l.On("CreateTrade", mock.MatchedBy(func(r *models.TradeRecord) bool {
		return r.Symbol == "AAPL" && r.Action == "buy" && r.Status == models.StatusPending
	})).Run(func(args mock.Arguments) {
		args.Get(0).(*models.TradeRecord).ID = 1
	}).Return(nil)
	b.On("PlaceOrder", mock.Anything, "AAPL", strategy.ActionBuy, 1000.0).
		Return(broker.Order{ID: "ord-1", State: "confirmed"}, nil)
	l.On("UpdateTradeStatus", uint(1), models.StatusExecuted, mock.Anything, "ord-1").Return(nil)
	l.On("MarkSignalsExecuted", mock.Anything).Return(nil)
	l.On("AppendSnapshot", mock.MatchedBy(func(s *models.PortfolioSnapshot) bool {
		return s.TotalValue == 50000 && s.BuyingPower == 10000
	})).Return(nil)

	err := e.RunCycle(context.Background(), []string{"AAPL"})
	require.NoError(t, err)

	l.AssertNumberOfCalls(t, "CreateTrade", 1)
	l.AssertNumberOfCalls(t, "UpdateTradeStatus", 1)
	l.AssertNumberOfCalls(t, "AppendSnapshot", 1)
}

func TestRunCycleRecordsRejection(t *testing.T) {
	cfg := testConfig("sma")
	cfg.Risk.MaxPositions = 1
	b := new(mockBroker)
	d := new(mockSource)
	l := new(mockLedger)
	e := newTestEngine(t, cfg, b, d, l)
	startEngine(t, e, b)

	d.On("PriceHistory", mock.Anything, "AAPL", 365).Return(risingSeries(250), nil)
	l.On("LogSignal", mock.Anything).Return(nil)
	b.On("Portfolio", mock.Anything).Return(broker.Portfolio{TotalValue: 50000, BuyingPower: 10000}, nil)
	b.On("OpenPositions", mock.Anything).Return([]broker.Position{{Symbol: "MSFT", Quantity: 2}}, nil)
	l.On("CreateTrade", mock.MatchedBy(func(r *models.TradeRecord) bool {
		return r.Status == models.StatusRejected && r.Symbol == "AAPL"
	})).Return(nil)
	l.On("AppendSnapshot", mock.Anything).Return(nil)

	err := e.RunCycle(context.Background(), []string{"AAPL"})
	require.NoError(t, err)

	b.AssertNotCalled(t, "PlaceOrder", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	l.AssertNotCalled(t, "UpdateTradeStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	l.AssertNumberOfCalls(t, "CreateTrade", 1)
}

func TestRunCycleMarksFailedOrder(t *testing.T) {
	b := new(mockBroker)
	d := new(mockSource)
	l := new(mockLedger)
	e := newTestEngine(t, testConfig("sma"), b, d, l)
	startEngine(t, e, b)

	d.On("PriceHistory", mock.Anything, "AAPL", 365).Return(risingSeries(250), nil)
	d.On("CurrentPrice", mock.Anything, "AAPL").Return(225.0, nil)
	l.On("LogSignal", mock.Anything).Return(nil)
	b.On("Portfolio", mock.Anything).Return(broker.Portfolio{TotalValue: 50000, BuyingPower: 10000}, nil)
	b.On("OpenPositions", mock.Anything).Return([]broker.Position{}, nil)
	l.On("CreateTrade", mock.Anything).Run(func(args mock.Arguments) {
		args.Get(0).(*models.TradeRecord).ID = 7
	}).Return(nil)
	b.On("PlaceOrder", mock.Anything, "AAPL", strategy.ActionBuy, 1000.0).
		Return(broker.Order{}, errors.New("order endpoint returned 500"))
	l.On("UpdateTradeStatus", uint(7), models.StatusFailed, mock.Anything, "").Return(nil)
	l.On("AppendSnapshot", mock.Anything).Return(nil)

	err := e.RunCycle(context.Background(), []string{"AAPL"})
	require.NoError(t, err)

	l.AssertCalled(t, "UpdateTradeStatus", uint(7), models.StatusFailed, mock.Anything, "")
	l.AssertNumberOfCalls(t, "AppendSnapshot", 1)
}

func TestRunCycleSkipsUnavailableSymbol(t *testing.T) {
	b := new(mockBroker)
	d := new(mockSource)
	l := new(mockLedger)
	e := newTestEngine(t, testConfig("sma"), b, d, l)
	startEngine(t, e, b)

	d.On("PriceHistory", mock.Anything, "AAPL", 365).
		Return(nil, marketdata.ErrUnavailable)
	b.On("Portfolio", mock.Anything).Return(broker.Portfolio{TotalValue: 50000}, nil)
	b.On("OpenPositions", mock.Anything).Return([]broker.Position{}, nil)
	l.On("AppendSnapshot", mock.Anything).Return(nil)

	err := e.RunCycle(context.Background(), []string{"AAPL"})
	require.NoError(t, err)
	l.AssertNotCalled(t, "CreateTrade", mock.Anything)
}

func TestRunCycleNotRunning(t *testing.T) {
	b := new(mockBroker)
	d := new(mockSource)
	l := new(mockLedger)
	e := newTestEngine(t, testConfig("sma"), b, d, l)

	err := e.RunCycle(context.Background(), []string{"AAPL"})
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestManualTradeGoesThroughRiskGate(t *testing.T) {
	b := new(mockBroker)
	d := new(mockSource)
	l := new(mockLedger)
	e := newTestEngine(t, testConfig("sma"), b, d, l)
	startEngine(t, e, b)

	b.On("Portfolio", mock.Anything).Return(broker.Portfolio{TotalValue: 50000, BuyingPower: 10000}, nil)
	b.On("OpenPositions", mock.Anything).Return([]broker.Position{}, nil)
	l.On("CreateTrade", mock.MatchedBy(func(r *models.TradeRecord) bool {
		return r.Status == models.StatusRejected && r.Strategy == "manual"
	})).Return(nil)

	err := e.ExecuteManualTrade(context.Background(), "AAPL", strategy.ActionBuy, 5000)

	var rejection *risk.RejectionError
	require.ErrorAs(t, err, &rejection)
	assert.Contains(t, rejection.Reason, "position size too large")
	b.AssertNotCalled(t, "PlaceOrder", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestManualSellWithoutPositionIsRejected(t *testing.T) {
	b := new(mockBroker)
	d := new(mockSource)
	l := new(mockLedger)
	e := newTestEngine(t, testConfig("sma"), b, d, l)
	startEngine(t, e, b)

	b.On("Portfolio", mock.Anything).Return(broker.Portfolio{TotalValue: 50000, BuyingPower: 10000}, nil)
	b.On("OpenPositions", mock.Anything).Return([]broker.Position{}, nil)
	l.On("CreateTrade", mock.Anything).Return(nil)

	err := e.ExecuteManualTrade(context.Background(), "AAPL", strategy.ActionSell, 100)

	var rejection *risk.RejectionError
	require.ErrorAs(t, err, &rejection)
	assert.Contains(t, rejection.Reason, "no open position")
}

func TestManualTradeRequiresRunningEngine(t *testing.T) {
	b := new(mockBroker)
	d := new(mockSource)
	l := new(mockLedger)
	e := newTestEngine(t, testConfig("sma"), b, d, l)

	err := e.ExecuteManualTrade(context.Background(), "AAPL", strategy.ActionBuy, 100)
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestManualTradeRejectsInvalidAction(t *testing.T) {
	b := new(mockBroker)
	d := new(mockSource)
	l := new(mockLedger)
	e := newTestEngine(t, testConfig("sma"), b, d, l)

	err := e.ExecuteManualTrade(context.Background(), "AAPL", strategy.ActionHold, 100)
	assert.Error(t, err)
}

func TestStopWaitsForInFlightTrade(t *testing.T) {
	b := new(mockBroker)
	d := new(mockSource)
	l := new(mockLedger)
	e := newTestEngine(t, testConfig("sma"), b, d, l)
	startEngine(t, e, b)

	started := make(chan struct{})
	release := make(chan struct{})

	d.On("CurrentPrice", mock.Anything, "AAPL").Return(225.0, nil)
	b.On("Portfolio", mock.Anything).Return(broker.Portfolio{TotalValue: 50000, BuyingPower: 10000}, nil)
	b.On("OpenPositions", mock.Anything).Return([]broker.Position{}, nil)
	l.On("CreateTrade", mock.Anything).Run(func(args mock.Arguments) {
		args.Get(0).(*models.TradeRecord).ID = 3
	}).Return(nil)
	b.On("PlaceOrder", mock.Anything, "AAPL", strategy.ActionBuy, 100.0).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(broker.Order{ID: "ord-3"}, nil)
	l.On("UpdateTradeStatus", uint(3), models.StatusExecuted, mock.Anything, "ord-3").Return(nil)
	b.On("Logout", mock.Anything).Return(nil)

	tradeDone := make(chan error, 1)
	go func() {
		tradeDone <- e.ExecuteManualTrade(context.Background(), "AAPL", strategy.ActionBuy, 100)
	}()
	<-started

	stopped := make(chan struct{})
	go func() {
		e.Stop(context.Background())
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a trade was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return after the trade completed")
	}
	require.NoError(t, <-tradeDone)

	l.AssertCalled(t, "UpdateTradeStatus", uint(3), models.StatusExecuted, mock.Anything, "ord-3")
	assert.False(t, e.Running())
}

func TestApplySettingsFiltersUnknownStrategies(t *testing.T) {
	b := new(mockBroker)
	d := new(mockSource)
	l := new(mockLedger)
	e := newTestEngine(t, testConfig("sma", "rsi"), b, d, l)

	minConf := 0.8
	got := e.ApplySettings(SettingsPatch{
		ActiveStrategies: []string{"sma", "macd"},
		MinConfidence:    &minConf,
	})

	assert.Equal(t, []string{"sma"}, got.ActiveStrategies)
	assert.Equal(t, 0.8, got.MinConfidence)
	assert.Equal(t, 100.0, got.DefaultTradeAmount)
}
