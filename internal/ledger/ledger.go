package ledger

import (
	"fmt"
	"time"

	"robinhood-trade-bot-go/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Ledger is the append/query store for trade records, portfolio
// snapshots and per-strategy signal history. Appends are durable before
// the call returns.
type Ledger interface {
	// CreateTrade appends a new trade record and assigns its ID.
	CreateTrade(record *models.TradeRecord) error

	// UpdateTradeStatus transitions a pending record to the given status.
	// Records already in a terminal status are left untouched, so
	// repeating a terminal transition is a no-op.
	UpdateTradeStatus(id uint, status models.TradeStatus, executedAt *time.Time, brokerOrderID string) error

	// AppendSnapshot appends a portfolio snapshot.
	AppendSnapshot(snapshot *models.PortfolioSnapshot) error

	// LogSignal appends one strategy's signal for a symbol.
	LogSignal(signal *models.StrategySignal) error

	// MarkSignalsExecuted flags the signals that led to an executed trade.
	MarkSignalsExecuted(ids []uint) error

	// RecentTrades returns up to limit trade records, newest first.
	RecentTrades(limit int) ([]models.TradeRecord, error)

	// PortfolioHistory returns snapshots from the last sinceDays days,
	// newest first.
	PortfolioHistory(sinceDays int) ([]models.PortfolioSnapshot, error)
}

// GormLedger implements Ledger on a gorm database.
type GormLedger struct {
	db     *gorm.DB
	logger *zap.Logger
}

var _ Ledger = (*GormLedger)(nil)

// New creates a ledger backed by the given database.
func New(db *gorm.DB, logger *zap.Logger) *GormLedger {
	return &GormLedger{db: db, logger: logger.Named("ledger")}
}

func (l *GormLedger) CreateTrade(record *models.TradeRecord) error {
	if record.Status == "" {
		record.Status = models.StatusPending
	}
	if err := l.db.Create(record).Error; err != nil {
		return fmt.Errorf("failed to create trade record: %w", err)
	}
	l.logger.Info("trade record created",
		zap.Uint("trade_id", record.ID),
		zap.String("symbol", record.Symbol),
		zap.String("action", record.Action),
		zap.String("status", string(record.Status)))
	return nil
}

func (l *GormLedger) UpdateTradeStatus(id uint, status models.TradeStatus, executedAt *time.Time, brokerOrderID string) error {
	updates := map[string]interface{}{"status": status}
	if executedAt != nil {
		updates["executed_at"] = executedAt
	}
	if brokerOrderID != "" {
		updates["broker_order_id"] = brokerOrderID
	}

	// Only pending records may transition; a repeated terminal update
	// matches zero rows and changes nothing.
	res := l.db.Model(&models.TradeRecord{}).
		Where("id = ? AND status = ?", id, models.StatusPending).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update trade %d status: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		l.logger.Debug("trade status unchanged",
			zap.Uint("trade_id", id),
			zap.String("status", string(status)))
		return nil
	}

	l.logger.Info("trade status updated",
		zap.Uint("trade_id", id),
		zap.String("status", string(status)))
	return nil
}

func (l *GormLedger) AppendSnapshot(snapshot *models.PortfolioSnapshot) error {
	if err := l.db.Create(snapshot).Error; err != nil {
		return fmt.Errorf("failed to append portfolio snapshot: %w", err)
	}
	return nil
}

func (l *GormLedger) LogSignal(signal *models.StrategySignal) error {
	if err := l.db.Create(signal).Error; err != nil {
		return fmt.Errorf("failed to log strategy signal: %w", err)
	}
	return nil
}

func (l *GormLedger) MarkSignalsExecuted(ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	err := l.db.Model(&models.StrategySignal{}).
		Where("id IN ?", ids).
		Update("executed", true).Error
	if err != nil {
		return fmt.Errorf("failed to mark signals executed: %w", err)
	}
	return nil
}

func (l *GormLedger) RecentTrades(limit int) ([]models.TradeRecord, error) {
	var trades []models.TradeRecord
	if err := l.db.Order("created_at desc, id desc").Limit(limit).Find(&trades).Error; err != nil {
		return nil, fmt.Errorf("failed to query recent trades: %w", err)
	}
	return trades, nil
}

func (l *GormLedger) PortfolioHistory(sinceDays int) ([]models.PortfolioSnapshot, error) {
	since := time.Now().AddDate(0, 0, -sinceDays)
	var snapshots []models.PortfolioSnapshot
	if err := l.db.Where("created_at >= ?", since).Order("created_at desc").Find(&snapshots).Error; err != nil {
		return nil, fmt.Errorf("failed to query portfolio history: %w", err)
	}
	return snapshots, nil
}
