package models

import "gorm.io/gorm"

// StrategySignal records one strategy's output for one symbol during an
// analysis pass, whether or not it led to a trade.
type StrategySignal struct {
	gorm.Model
	StrategyName string  `json:"strategy_name" gorm:"index;not null"`
	Symbol       string  `json:"symbol" gorm:"index;not null"`
	SignalType   string  `json:"signal_type" gorm:"not null"` // "buy", "sell" or "hold"
	Confidence   float64 `json:"confidence"`
	Executed     bool    `json:"executed" gorm:"default:false"`
}
